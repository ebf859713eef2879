package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"wombat/internal/history"
	"wombat/internal/model"
)

// InsertSnapshots appends observations with COPY.
func (r *PostgresRepository) InsertSnapshots(ctx context.Context, snapshots []model.PriceSnapshot) (int, error) {
	if len(snapshots) == 0 {
		return 0, nil
	}
	n, err := r.Pool.CopyFrom(ctx,
		pgx.Identifier{"price_snapshots"},
		[]string{"run_id", "origin", "destination", "flight_date", "cabin", "program", "miles", "taxes_usd", "flight_no", "recorded_at"},
		pgx.CopyFromSlice(len(snapshots), func(i int) ([]any, error) {
			s := snapshots[i]
			return []any{s.RunID, s.Origin, s.Destination, s.FlightDate, string(s.Cabin), string(s.Program), s.Miles, s.Taxes.InexactFloat64(), s.FlightNo, s.RecordedAt}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert price snapshots: %w", err)
	}
	return int(n), nil
}

// ListSnapshots returns snapshots matching f in insertion order.
func (r *PostgresRepository) ListSnapshots(ctx context.Context, f history.SnapshotFilter) ([]model.PriceSnapshot, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Origin != "" {
		add("origin = $%d", f.Origin)
	}
	if f.Destination != "" {
		add("destination = $%d", f.Destination)
	}
	if f.FlightDate != "" {
		add("flight_date = $%d", f.FlightDate)
	}
	if f.Cabin != "" {
		add("cabin = $%d", string(f.Cabin))
	}
	if f.Program != "" {
		add("program = $%d", string(f.Program))
	}
	if !f.Since.IsZero() {
		add("recorded_at >= $%d", f.Since)
	}

	query := `SELECT id, run_id, origin, destination, flight_date, cabin, program, miles, taxes_usd::text, flight_no, recorded_at FROM price_snapshots`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price snapshots: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanSnapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to read price snapshots: %w", err)
	}
	return out, nil
}

func scanSnapshot(row pgx.CollectableRow) (model.PriceSnapshot, error) {
	var s model.PriceSnapshot
	var cabin, program, taxes string
	err := row.Scan(&s.ID, &s.RunID, &s.Origin, &s.Destination, &s.FlightDate, &cabin, &program, &s.Miles, &taxes, &s.FlightNo, &s.RecordedAt)
	if err != nil {
		return s, err
	}
	s.Cabin = model.Cabin(cabin)
	s.Program = model.Program(program)
	s.Taxes, err = parseDecimal(taxes)
	return s, err
}

// DeleteSnapshots removes one route's snapshots, or all of them when origin is empty.
func (r *PostgresRepository) DeleteSnapshots(ctx context.Context, origin, destination string) (int64, error) {
	var tag pgconn.CommandTag
	var err error
	if origin == "" {
		tag, err = r.Pool.Exec(ctx, `DELETE FROM price_snapshots`)
	} else {
		tag, err = r.Pool.Exec(ctx, `DELETE FROM price_snapshots WHERE origin = $1 AND destination = $2`, origin, destination)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to delete price snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
