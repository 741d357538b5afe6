package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/branchd-dev/sessiongate/internal/config"
	"github.com/branchd-dev/sessiongate/internal/pgclient"
)

const localScheme = "sqlite://"

// IsLocal reports whether url selects the embedded SQLite provider
func IsLocal(url string) bool {
	return strings.HasPrefix(url, localScheme)
}

// LocalPath extracts the database path from a sqlite:// URL
func LocalPath(url string) string {
	return strings.TrimPrefix(url, localScheme)
}

// Open builds the Service selected by cfg.URL. The returned service
// implements io.Closer when it holds database connections.
func Open(cfg config.IdentityConfig, logger zerolog.Logger) (Service, error) {
	var svc Service
	switch {
	case IsLocal(cfg.URL):
		local, err := OpenLocal(LocalPath(cfg.URL), cfg.Key, logger)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", LocalPath(cfg.URL)).Msg("Using local identity provider")
		svc = local
	case strings.HasPrefix(cfg.URL, "http://"), strings.HasPrefix(cfg.URL, "https://"):
		logger.Info().Str("url", cfg.URL).Msg("Using GoTrue identity service")
		svc = NewGoTrueClient(cfg.URL, cfg.Key, logger)
	default:
		return nil, fmt.Errorf("unsupported identity URL %q", cfg.URL)
	}

	if cfg.ProfilesDatabaseURL == "" {
		return svc, nil
	}

	roles, err := pgclient.NewClient(cfg.ProfilesDatabaseURL)
	if err != nil {
		Close(svc)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := roles.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("Profiles database not reachable yet - role lookups will default to user until it is")
	}

	return WithRoleStore(svc, roles), nil
}

// Unwrap returns the provider behind a role store override
func Unwrap(svc Service) Service {
	if r, ok := svc.(*roleOverride); ok {
		return r.Service
	}
	return svc
}

// Close releases resources held by svc, if any
func Close(svc Service) error {
	if c, ok := svc.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (r *roleOverride) Close() error {
	var errs []error
	if c, ok := r.roles.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	errs = append(errs, Close(r.Service))
	return errors.Join(errs...)
}
