package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository and the search cache backend on a pgx pool.
type PostgresRepository struct {
	Pool   *pgxpool.Pool
	Logger *slog.Logger
}

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	logger.Info("Connected to PostgreSQL")
	return &PostgresRepository{Pool: pool, Logger: logger}, nil
}

// Close releases the pool.
func (r *PostgresRepository) Close() {
	if r.Pool != nil {
		r.Pool.Close()
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS price_snapshots (
	id          BIGSERIAL PRIMARY KEY,
	run_id      UUID          NOT NULL,
	origin      VARCHAR(3)    NOT NULL,
	destination VARCHAR(3)    NOT NULL,
	flight_date TEXT          NOT NULL,
	cabin       TEXT          NOT NULL,
	program     TEXT          NOT NULL,
	miles       INTEGER       NOT NULL,
	taxes_usd   NUMERIC(10,2) NOT NULL DEFAULT 0,
	flight_no   TEXT          NOT NULL DEFAULT '',
	recorded_at TIMESTAMPTZ   NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_snapshots_route ON price_snapshots (origin, destination, flight_date, cabin);
CREATE INDEX IF NOT EXISTS idx_snapshots_recorded ON price_snapshots (recorded_at);

CREATE TABLE IF NOT EXISTS alerts (
	id           BIGSERIAL PRIMARY KEY,
	origin       VARCHAR(3)  NOT NULL,
	destination  VARCHAR(3)  NOT NULL,
	cabin        TEXT        NOT NULL DEFAULT '',
	program      TEXT        NOT NULL DEFAULT 'all',
	max_miles    INTEGER     NOT NULL DEFAULT 0,
	webhooks     TEXT[]      NOT NULL DEFAULT '{}',
	email_to     TEXT[]      NOT NULL DEFAULT '{}',
	email_config TEXT        NOT NULL DEFAULT '',
	enabled      BOOLEAN     NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS alert_history (
	id          BIGSERIAL PRIMARY KEY,
	alert_id    BIGINT        NOT NULL,
	flight_no   TEXT          NOT NULL DEFAULT '',
	flight_date TEXT          NOT NULL,
	cabin       TEXT          NOT NULL,
	program     TEXT          NOT NULL,
	miles       INTEGER       NOT NULL,
	taxes_usd   NUMERIC(10,2) NOT NULL DEFAULT 0,
	is_new_low  BOOLEAN       NOT NULL DEFAULT FALSE,
	fired_at    TIMESTAMPTZ   NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_alert_history_key ON alert_history (alert_id, flight_date, cabin, program, miles, fired_at);

CREATE TABLE IF NOT EXISTS email_configs (
	name       TEXT PRIMARY KEY,
	smtp_host  TEXT        NOT NULL,
	smtp_port  INTEGER     NOT NULL DEFAULT 587,
	smtp_user  TEXT        NOT NULL DEFAULT '',
	smtp_pass  TEXT        NOT NULL DEFAULT '',
	from_addr  TEXT        NOT NULL,
	use_tls    BOOLEAN     NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS search_cache (
	cache_key  TEXT PRIMARY KEY,
	data       JSONB       NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);
`

// Migrate creates every table the application uses. It is safe to run repeatedly.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
