package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wombat/internal/model"
)

const emailColumns = `name, smtp_host, smtp_port, smtp_user, smtp_pass, from_addr, use_tls, created_at`

// SaveEmailConfig inserts or replaces the named SMTP configuration.
func (r *PostgresRepository) SaveEmailConfig(ctx context.Context, c model.EmailConfig) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO email_configs (`+emailColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (name) DO UPDATE SET
			smtp_host = EXCLUDED.smtp_host,
			smtp_port = EXCLUDED.smtp_port,
			smtp_user = EXCLUDED.smtp_user,
			smtp_pass = EXCLUDED.smtp_pass,
			from_addr = EXCLUDED.from_addr,
			use_tls   = EXCLUDED.use_tls`,
		c.Name, c.SMTPHost, c.SMTPPort, c.SMTPUser, c.SMTPPass, c.FromAddr, c.UseTLS, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save email config: %w", err)
	}
	return nil
}

// GetEmailConfig returns ErrNotFound for an unknown name.
func (r *PostgresRepository) GetEmailConfig(ctx context.Context, name string) (model.EmailConfig, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+emailColumns+` FROM email_configs WHERE name = $1`, name)
	if err != nil {
		return model.EmailConfig{}, fmt.Errorf("failed to query email config: %w", err)
	}
	c, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.EmailConfig])
	if errors.Is(err, pgx.ErrNoRows) {
		return model.EmailConfig{}, fmt.Errorf("email config %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return model.EmailConfig{}, fmt.Errorf("failed to read email config: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) ListEmailConfigs(ctx context.Context) ([]model.EmailConfig, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+emailColumns+` FROM email_configs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query email configs: %w", err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.EmailConfig])
	if err != nil {
		return nil, fmt.Errorf("failed to read email configs: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) RemoveEmailConfig(ctx context.Context, name string) (bool, error) {
	tag, err := r.Pool.Exec(ctx, `DELETE FROM email_configs WHERE name = $1`, name)
	if err != nil {
		return false, fmt.Errorf("failed to delete email config: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
