package index

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/storage/models"
	"github.com/flowvana/backend/pkg/logger"
)

// MilvusStore backs the index with one milvus collection shared across
// tenants, filtered by tenant_id on every search. Replace deletes the
// tenant's rows and inserts the new snapshot, so a rebuild is wholesale here
// too.
type MilvusStore struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewMilvusStore(ctx context.Context, endpoint, collectionName string, vectorDim int) (*MilvusStore, error) {
	c, err := client.NewGrpcClient(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	s := &MilvusStore{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}
	if err := s.ensureCollection(ctx); err != nil {
		c.Close()
		return nil, err
	}

	logger.Info("milvus index store initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)
	return s, nil
}

func (s *MilvusStore) Close() error {
	return s.client.Close()
}

func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	has, err := s.client.HasCollection(ctx, s.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if has {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collectionName,
		Description:    "navigation phrase embeddings",
		Fields: []*entity.Field{
			{
				Name:       "row_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "128"},
			},
			{
				Name:       "tenant_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "url",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{
				Name:       "navigation_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "phrase",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", s.vectorDim)},
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.IP, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index definition: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.collectionName, "embedding", idx, false); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := s.client.LoadCollection(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("milvus collection created", zap.String("collection", s.collectionName))
	return nil
}

func (s *MilvusStore) Replace(ctx context.Context, snap *Snapshot) error {
	if err := s.client.Delete(ctx, s.collectionName, "", tenantExpr(snap.TenantID)); err != nil {
		return fmt.Errorf("failed to clear tenant rows: %w", err)
	}
	if len(snap.Rows) == 0 {
		return nil
	}

	n := len(snap.Rows)
	rowIDs := make([]string, n)
	tenantIDs := make([]string, n)
	urls := make([]string, n)
	titles := make([]string, n)
	navIDs := make([]string, n)
	phrases := make([]string, n)

	for i, row := range snap.Rows {
		rowIDs[i] = fmt.Sprintf("%s:%d", snap.TenantID, i)
		tenantIDs[i] = snap.TenantID
		urls[i] = row.URL
		titles[i] = row.Title
		navIDs[i] = row.NavigationID
		phrases[i] = row.Phrase
	}

	_, err := s.client.Insert(
		ctx,
		s.collectionName,
		"",
		entity.NewColumnVarChar("row_id", rowIDs),
		entity.NewColumnVarChar("tenant_id", tenantIDs),
		entity.NewColumnVarChar("url", urls),
		entity.NewColumnVarChar("title", titles),
		entity.NewColumnVarChar("navigation_id", navIDs),
		entity.NewColumnVarChar("phrase", phrases),
		entity.NewColumnFloatVector("embedding", s.vectorDim, snap.Vectors),
	)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if err := s.client.Flush(ctx, s.collectionName, false); err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("tenant index published",
		zap.String("tenant_id", snap.TenantID),
		zap.Int("rows", n),
	)
	return nil
}

func (s *MilvusStore) Search(ctx context.Context, tenantID string, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		return nil, nil
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)
	searchResult, err := s.client.Search(
		ctx,
		s.collectionName,
		[]string{},
		tenantExpr(tenantID),
		[]string{"url", "title", "navigation_id", "phrase"},
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding",
		entity.IP,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	var hits []Hit
	for _, sr := range searchResult {
		urlCol := sr.Fields.GetColumn("url")
		titleCol := sr.Fields.GetColumn("title")
		navIDCol := sr.Fields.GetColumn("navigation_id")
		phraseCol := sr.Fields.GetColumn("phrase")

		for i := 0; i < sr.ResultCount; i++ {
			url, err := urlCol.GetAsString(i)
			if err != nil {
				continue
			}
			title, _ := titleCol.GetAsString(i)
			navID, _ := navIDCol.GetAsString(i)
			phrase, _ := phraseCol.GetAsString(i)

			hits = append(hits, Hit{
				Row: models.IndexRow{
					URL:          url,
					Title:        title,
					NavigationID: navID,
					Phrase:       phrase,
				},
				Score: float64(sr.Scores[i]),
			})
		}
	}

	return hits, nil
}

func (s *MilvusStore) Count(ctx context.Context, tenantID string) (int, error) {
	rs, err := s.client.Query(ctx, s.collectionName, nil, tenantExpr(tenantID), []string{"count(*)"})
	if err != nil {
		return 0, fmt.Errorf("failed to count tenant rows: %w", err)
	}
	for _, col := range rs {
		if c, ok := col.(*entity.ColumnInt64); ok && c.Len() > 0 {
			return int(c.Data()[0]), nil
		}
	}
	return 0, nil
}

func tenantExpr(tenantID string) string {
	return fmt.Sprintf(`tenant_id == "%s"`, strings.ReplaceAll(tenantID, `"`, ""))
}
