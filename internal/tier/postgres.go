package tier

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const subscriptionsSchema = `
	CREATE TABLE IF NOT EXISTS tenant_subscriptions (
		tenant_id  TEXT PRIMARY KEY,
		plan       TEXT NOT NULL,
		active     BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// PostgresAssignments lê a assinatura ativa do tenant na tabela
// tenant_subscriptions.
type PostgresAssignments struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresAssignments abre o pool e testa a conexão.
func NewPostgresAssignments(ctx context.Context, dsn string, maxConns int32, logger *zap.Logger) (*PostgresAssignments, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresAssignments{pool: pool, logger: logger}, nil
}

func (s *PostgresAssignments) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, subscriptionsSchema); err != nil {
		return fmt.Errorf("failed to create tenant_subscriptions: %w", err)
	}
	return nil
}

func (s *PostgresAssignments) PlanFor(ctx context.Context, tenantID string) (string, error) {
	query := `
		SELECT plan
		FROM tenant_subscriptions
		WHERE tenant_id = $1 AND active
	`

	var plan string
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(&plan)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrTenantNotFound
	}
	if err != nil {
		s.logger.Error("Failed to query tenant subscription",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return "", fmt.Errorf("failed to get subscription: %w", err)
	}
	return plan, nil
}

// Assign grava (ou reativa) a assinatura do tenant.
func (s *PostgresAssignments) Assign(ctx context.Context, tenantID, plan string, active bool) error {
	query := `
		INSERT INTO tenant_subscriptions (tenant_id, plan, active, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (tenant_id)
		DO UPDATE SET plan = EXCLUDED.plan, active = EXCLUDED.active, updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, tenantID, plan, active); err != nil {
		return fmt.Errorf("failed to assign plan: %w", err)
	}
	return nil
}

func (s *PostgresAssignments) Close() {
	s.pool.Close()
}
