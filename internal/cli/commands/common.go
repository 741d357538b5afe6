package commands

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/branchd-dev/sessiongate/internal/config"
	"github.com/branchd-dev/sessiongate/internal/identity"
)

// openLocalProvider opens the embedded provider at dbPath, or the one
// IDENTITY_URL points at when dbPath is empty.
func openLocalProvider(dbPath string) (*identity.LocalProvider, error) {
	secret := ""
	if dbPath == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w\nPass --db to point at a sqlite database directly", err)
		}
		if !identity.IsLocal(cfg.Identity.URL) {
			return nil, fmt.Errorf("IDENTITY_URL %q is not a sqlite:// URL; accounts of a remote provider are managed there", cfg.Identity.URL)
		}
		dbPath = identity.LocalPath(cfg.Identity.URL)
		secret = cfg.Identity.Key
	}

	return identity.OpenLocal(dbPath, secret, zerolog.Nop())
}
