package sqlite

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/flowvana/backend/internal/storage/models"
	"github.com/flowvana/backend/pkg/logger"
)

// Client is the document store behind navigations, request logs, and the
// locally persisted index snapshots.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("sqlite client initialized", zap.String("path", dbPath))
	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS navigations (
		navigation_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		phrases TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (tenant_id, navigation_id)
	);
	CREATE INDEX IF NOT EXISTS idx_navigations_tenant ON navigations(tenant_id);

	CREATE TABLE IF NOT EXISTS request_logs (
		request_id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		request_query TEXT NOT NULL,
		response TEXT,
		type TEXT NOT NULL,
		time_taken REAL,
		error TEXT,
		feedback_response TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logs_tenant ON request_logs(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_logs_created ON request_logs(created_at);

	CREATE TABLE IF NOT EXISTS index_snapshots (
		tenant_id TEXT PRIMARY KEY,
		built_at INTEGER NOT NULL,
		dim INTEGER NOT NULL,
		row_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS index_rows (
		tenant_id TEXT NOT NULL,
		row_idx INTEGER NOT NULL,
		url TEXT NOT NULL,
		title TEXT NOT NULL,
		navigation_id TEXT NOT NULL,
		phrase TEXT NOT NULL,
		vector BLOB NOT NULL,
		PRIMARY KEY (tenant_id, row_idx)
	);
	`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("sqlite schema initialized")
	return nil
}

func (c *Client) UpsertNavigation(nav *models.Navigation) error {
	phrases, err := json.Marshal(nav.Phrases)
	if err != nil {
		return fmt.Errorf("failed to marshal phrases: %w", err)
	}

	query := `
		INSERT INTO navigations (navigation_id, tenant_id, url, title, phrases, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, navigation_id) DO UPDATE SET
			url = excluded.url,
			title = excluded.title,
			phrases = excluded.phrases,
			updated_at = excluded.updated_at
	`

	_, err = c.db.Exec(query,
		nav.NavigationID,
		nav.TenantID,
		nav.URL,
		nav.Title,
		string(phrases),
		nav.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert navigation: %w", err)
	}

	logger.Debug("navigation upserted",
		zap.String("tenant_id", nav.TenantID),
		zap.String("navigation_id", nav.NavigationID),
	)
	return nil
}

func (c *Client) ListNavigations(tenantID string) ([]models.Navigation, error) {
	query := `SELECT navigation_id, tenant_id, url, title, phrases, updated_at
		FROM navigations WHERE tenant_id = ? ORDER BY navigation_id`

	rows, err := c.db.Query(query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list navigations: %w", err)
	}
	defer rows.Close()

	return scanNavigations(rows)
}

// ListAllNavigations returns the full cross-tenant snapshot the index
// builder works from.
func (c *Client) ListAllNavigations() ([]models.Navigation, error) {
	query := `SELECT navigation_id, tenant_id, url, title, phrases, updated_at
		FROM navigations ORDER BY tenant_id, navigation_id`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list navigations: %w", err)
	}
	defer rows.Close()

	return scanNavigations(rows)
}

func scanNavigations(rows *sql.Rows) ([]models.Navigation, error) {
	var navs []models.Navigation
	for rows.Next() {
		var nav models.Navigation
		var phrasesJSON string
		var updatedAt int64

		if err := rows.Scan(&nav.NavigationID, &nav.TenantID, &nav.URL, &nav.Title, &phrasesJSON, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan navigation: %w", err)
		}
		if err := json.Unmarshal([]byte(phrasesJSON), &nav.Phrases); err != nil {
			logger.Warn("skipping navigation with malformed phrases",
				zap.String("navigation_id", nav.NavigationID), zap.Error(err))
			continue
		}
		nav.UpdatedAt = time.Unix(updatedAt, 0)
		navs = append(navs, nav)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate navigations: %w", err)
	}
	return navs, nil
}

func (c *Client) DeleteNavigation(tenantID, navigationID string) (bool, error) {
	res, err := c.db.Exec(`DELETE FROM navigations WHERE tenant_id = ? AND navigation_id = ?`, tenantID, navigationID)
	if err != nil {
		return false, fmt.Errorf("failed to delete navigation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

func (c *Client) InsertRequestLog(entry *models.RequestLog) error {
	query := `
		INSERT INTO request_logs (request_id, tenant_id, request_query, response, type,
			time_taken, error, feedback_response, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := c.db.Exec(query,
		entry.RequestID,
		entry.TenantID,
		entry.Query,
		entry.Response,
		entry.Type,
		entry.TimeTaken,
		entry.Error,
		entry.Feedback,
		createdAt.Unix(),
		now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert request log: %w", err)
	}

	logger.Debug("request logged",
		zap.String("request_id", entry.RequestID),
		zap.String("type", entry.Type),
	)
	return nil
}

func (c *Client) UpdateLogFeedback(requestID, feedback string) (bool, error) {
	res, err := c.db.Exec(
		`UPDATE request_logs SET feedback_response = ?, updated_at = ? WHERE request_id = ?`,
		feedback, time.Now().Unix(), requestID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// SaveIndexSnapshot replaces a tenant's persisted index wholesale. Rows and
// vectors are parallel; callers guarantee equal length.
func (c *Client) SaveIndexSnapshot(tenantID string, rows []models.IndexRow, vectors [][]float32, builtAt time.Time) error {
	if len(rows) != len(vectors) {
		return fmt.Errorf("row/vector length mismatch: %d vs %d", len(rows), len(vectors))
	}

	dim := 0
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM index_rows WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("failed to clear index rows: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM index_snapshots WHERE tenant_id = ?`, tenantID); err != nil {
		return fmt.Errorf("failed to clear index snapshot: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO index_rows (tenant_id, row_idx, url, title, navigation_id, phrase, vector)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		var buf bytes.Buffer
		if err := gob.NewEncoder(&buf).Encode(vectors[i]); err != nil {
			return fmt.Errorf("failed to encode vector: %w", err)
		}
		if _, err := stmt.Exec(tenantID, i, row.URL, row.Title, row.NavigationID, row.Phrase, buf.Bytes()); err != nil {
			return fmt.Errorf("failed to insert index row: %w", err)
		}
	}

	_, err = tx.Exec(`INSERT INTO index_snapshots (tenant_id, built_at, dim, row_count) VALUES (?, ?, ?, ?)`,
		tenantID, builtAt.Unix(), dim, len(rows))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}

	logger.Info("index snapshot saved",
		zap.String("tenant_id", tenantID),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// LoadIndexSnapshot returns the persisted index for a tenant. The second
// return is false when the tenant was never indexed. A row whose vector blob
// fails to decode is skipped along with its metadata so the parallel-array
// invariant holds.
func (c *Client) LoadIndexSnapshot(tenantID string) ([]models.IndexRow, [][]float32, time.Time, bool, error) {
	var builtAt int64
	err := c.db.QueryRow(`SELECT built_at FROM index_snapshots WHERE tenant_id = ?`, tenantID).Scan(&builtAt)
	if err == sql.ErrNoRows {
		return nil, nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, nil, time.Time{}, false, fmt.Errorf("failed to read snapshot record: %w", err)
	}

	dbRows, err := c.db.Query(`SELECT url, title, navigation_id, phrase, vector
		FROM index_rows WHERE tenant_id = ? ORDER BY row_idx`, tenantID)
	if err != nil {
		return nil, nil, time.Time{}, false, fmt.Errorf("failed to read index rows: %w", err)
	}
	defer dbRows.Close()

	var rows []models.IndexRow
	var vectors [][]float32
	for dbRows.Next() {
		var row models.IndexRow
		var blob []byte
		if err := dbRows.Scan(&row.URL, &row.Title, &row.NavigationID, &row.Phrase, &blob); err != nil {
			return nil, nil, time.Time{}, false, fmt.Errorf("failed to scan index row: %w", err)
		}
		var vec []float32
		if err := gob.NewDecoder(bytes.NewReader(blob)).Decode(&vec); err != nil {
			logger.Warn("skipping corrupt index row",
				zap.String("tenant_id", tenantID), zap.String("phrase", row.Phrase), zap.Error(err))
			continue
		}
		rows = append(rows, row)
		vectors = append(vectors, vec)
	}
	if err := dbRows.Err(); err != nil {
		return nil, nil, time.Time{}, false, fmt.Errorf("failed to iterate index rows: %w", err)
	}

	return rows, vectors, time.Unix(builtAt, 0), true, nil
}
