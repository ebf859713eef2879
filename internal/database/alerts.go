package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"wombat/internal/model"
)

const alertColumns = `id, origin, destination, cabin, program, max_miles, webhooks, email_to, email_config, enabled, created_at`

// AddAlert stores a new alert and returns its id.
func (r *PostgresRepository) AddAlert(ctx context.Context, a model.Alert) (int64, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var id int64
	err := r.Pool.QueryRow(ctx, `
		INSERT INTO alerts (origin, destination, cabin, program, max_miles, webhooks, email_to, email_config, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		a.Origin, a.Destination, string(a.Cabin), string(a.Program), a.MaxMiles,
		nonNil(a.Webhooks), nonNil(a.EmailTo), a.EmailConfig, a.Enabled, a.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}
	return id, nil
}

// GetAlert returns ErrNotFound for an unknown id.
func (r *PostgresRepository) GetAlert(ctx context.Context, id int64) (model.Alert, error) {
	rows, err := r.Pool.Query(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	if err != nil {
		return model.Alert{}, fmt.Errorf("failed to query alert: %w", err)
	}
	a, err := pgx.CollectOneRow(rows, scanAlert)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Alert{}, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Alert{}, fmt.Errorf("failed to read alert: %w", err)
	}
	return a, nil
}

// ListAlerts returns alerts ordered by id.
func (r *PostgresRepository) ListAlerts(ctx context.Context, includeDisabled bool) ([]model.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	if !includeDisabled {
		query += ` WHERE enabled`
	}
	query += ` ORDER BY id`

	rows, err := r.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanAlert)
	if err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}
	return out, nil
}

func scanAlert(row pgx.CollectableRow) (model.Alert, error) {
	var a model.Alert
	var cabin, program string
	err := row.Scan(&a.ID, &a.Origin, &a.Destination, &cabin, &program, &a.MaxMiles,
		&a.Webhooks, &a.EmailTo, &a.EmailConfig, &a.Enabled, &a.CreatedAt)
	a.Cabin = model.Cabin(cabin)
	a.Program = model.Program(program)
	return a, err
}

// RemoveAlert deletes an alert and its firing log. It reports whether the alert existed.
func (r *PostgresRepository) RemoveAlert(ctx context.Context, id int64) (bool, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM alert_history WHERE alert_id = $1`, id); err != nil {
		return false, fmt.Errorf("failed to delete alert history: %w", err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete alert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetAlertEnabled reports whether the alert existed.
func (r *PostgresRepository) SetAlertEnabled(ctx context.Context, id int64, enabled bool) (bool, error) {
	tag, err := r.Pool.Exec(ctx, `UPDATE alerts SET enabled = $1 WHERE id = $2`, enabled, id)
	if err != nil {
		return false, fmt.Errorf("failed to update alert: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RecordFiring appends to the alert audit log.
func (r *PostgresRepository) RecordFiring(ctx context.Context, f model.AlertFiring) error {
	if f.FiredAt.IsZero() {
		f.FiredAt = time.Now().UTC()
	}
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO alert_history (alert_id, flight_no, flight_date, cabin, program, miles, taxes_usd, is_new_low, fired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		f.AlertID, f.FlightNo, f.FlightDate, string(f.Cabin), string(f.Program), f.Miles, f.Taxes.InexactFloat64(), f.IsNewLow, f.FiredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert alert firing: %w", err)
	}
	return nil
}

// FiredSince reports whether key fired at or after since.
func (r *PostgresRepository) FiredSince(ctx context.Context, key model.FiringKey, since time.Time) (bool, error) {
	var exists bool
	err := r.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alert_history
			WHERE alert_id = $1 AND flight_date = $2 AND cabin = $3 AND program = $4 AND miles = $5 AND fired_at >= $6
		)`,
		key.AlertID, key.FlightDate, string(key.Cabin), string(key.Program), key.Miles, since,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to query alert history: %w", err)
	}
	return exists, nil
}

// ListFirings returns the newest firings first, joined with their alert's route.
// alertID 0 lists every alert.
func (r *PostgresRepository) ListFirings(ctx context.Context, alertID int64, limit int) ([]model.AlertFiring, error) {
	query := `
		SELECT h.id, h.alert_id, h.flight_no, h.flight_date, h.cabin, h.program, h.miles, h.taxes_usd::text, h.is_new_low, h.fired_at,
		       COALESCE(a.origin || ' → ' || a.destination, '')
		FROM alert_history h
		LEFT JOIN alerts a ON a.id = h.alert_id`
	args := []any{limit}
	if alertID > 0 {
		query += ` WHERE h.alert_id = $2`
		args = append(args, alertID)
	}
	query += ` ORDER BY h.fired_at DESC, h.id DESC LIMIT $1`

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert history: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.AlertFiring, error) {
		var f model.AlertFiring
		var cabin, program, taxes string
		if err := row.Scan(&f.ID, &f.AlertID, &f.FlightNo, &f.FlightDate, &cabin, &program, &f.Miles, &taxes, &f.IsNewLow, &f.FiredAt, &f.Route); err != nil {
			return f, err
		}
		f.Cabin = model.Cabin(cabin)
		f.Program = model.Program(program)
		var err error
		f.Taxes, err = parseDecimal(taxes)
		return f, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read alert history: %w", err)
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid numeric %q: %w", s, err)
	}
	return d, nil
}
