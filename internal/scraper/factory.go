package scraper

import (
	"fmt"
	"log/slog"
	"strings"

	"wombat/internal/config"
	"wombat/internal/model"
)

// NewClient creates a new program client based on the given name and configuration.
func NewClient(name string, fetcher Fetcher, logger *slog.Logger, cfg config.SearchConfig) (Client, error) {
	b := base{
		logger:  logger,
		fetcher: fetcher,
		limiter: NewRateLimiter(cfg.RateLimitDelay),
		retries: cfg.Retries,
	}
	switch model.Program(strings.ToLower(name)) {
	case model.ProgramAlaska:
		return NewAlaskaClient(b, cfg.MaxStops), nil
	case model.ProgramAeroplan:
		return NewAeroplanClient(b), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProgram, name)
	}
}

// NewClients resolves "all" or a single program name to clients.
func NewClients(name string, fetcher Fetcher, logger *slog.Logger, cfg config.SearchConfig) ([]Client, error) {
	names := []string{name}
	if name == "" || strings.EqualFold(name, string(model.ProgramAll)) {
		names = names[:0]
		for _, p := range model.Programs {
			names = append(names, string(p))
		}
	}
	clients := make([]Client, 0, len(names))
	for _, n := range names {
		c, err := NewClient(n, fetcher, logger, cfg)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, nil
}
