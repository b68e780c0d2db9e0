package kb

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/flowvana/backend/pkg/circuitbreaker"
	"github.com/flowvana/backend/pkg/logger"
	"github.com/flowvana/backend/pkg/retry"
)

// Checker answers whether a tenant has any indexed knowledge entries. The
// knowledge base itself (ingestion, retrieval, answering) lives elsewhere;
// this client only probes for existence.
type Checker struct {
	driver   neo4j.DriverWithContext
	database string
	cb       *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
}

func NewChecker(ctx context.Context, uri, username, password, database string) (*Checker, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.New("kb", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         20 * time.Second,
		Logger:           logger.GetLogger(),
	})

	logger.Info("knowledge base checker initialized", zap.String("uri", uri))
	return &Checker{
		driver:   driver,
		database: database,
		cb:       cb,
		retryCfg: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 200 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Logger:       logger.GetLogger(),
		},
	}, nil
}

func (c *Checker) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// HasEntries reports whether any knowledge entry exists for the tenant.
func (c *Checker) HasEntries(ctx context.Context, tenantID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var found bool
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)

			result, err := session.Run(ctx,
				`MATCH (e:KnowledgeEntry {tenant_id: $tenant_id}) RETURN e LIMIT 1`,
				map[string]interface{}{"tenant_id": tenantID},
			)
			if err != nil {
				return fmt.Errorf("failed to query knowledge entries: %w", err)
			}

			found = result.Next(ctx)
			if err := result.Err(); err != nil {
				return fmt.Errorf("failed to read knowledge entries: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
