package database

import (
	"context"
	"errors"

	"wombat/internal/alerts"
	"wombat/internal/history"
	"wombat/internal/model"
)

// ErrNotFound is returned when a looked up row does not exist.
var ErrNotFound = errors.New("not found")

// Repository defines the standard interface for database operations.
type Repository interface {
	history.Store
	alerts.Store

	SaveEmailConfig(ctx context.Context, cfg model.EmailConfig) error
	GetEmailConfig(ctx context.Context, name string) (model.EmailConfig, error)
	ListEmailConfigs(ctx context.Context) ([]model.EmailConfig, error)
	RemoveEmailConfig(ctx context.Context, name string) (bool, error)

	Migrate(ctx context.Context) error
	Close()
}

var _ Repository = (*PostgresRepository)(nil)
