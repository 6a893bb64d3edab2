package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dukex/blueprint/pkg/persistence"
	"github.com/dukex/blueprint/pkg/persistence/file"
	"github.com/dukex/blueprint/pkg/persistence/postgresql"
	"github.com/dukex/blueprint/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the template store named by databaseURL: file://<dir> or
// postgres://... A URL without a scheme is treated as a directory.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider, rest := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "file":
		if rest == "" {
			return nil, fmt.Errorf("file persistence requires a directory: %q", databaseURL)
		}

		err := os.MkdirAll(rest, 0750)
		if err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		return file.NewPersistence(rest), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider %q (supported: %s)",
			provider, strings.Join(supportedPersistenceProviders, ", "))
	}
}

// NewTriggerLedger opens a Redis trigger ledger when ledgerURL is set. A nil ledger means
// the template store's own ledger is used.
func NewTriggerLedger(ctx context.Context, logger *slog.Logger, ledgerURL string) (persistence.TriggerRepository, error) {
	if ledgerURL == "" {
		return nil, nil
	}

	provider, _ := parsePersistenceProvider(ledgerURL)
	if provider != "redis" && provider != "rediss" {
		return nil, fmt.Errorf("unsupported trigger ledger provider %q", provider)
	}

	return redis.NewTriggerRepository(ctx, logger, ledgerURL)
}

func parsePersistenceProvider(databaseURL string) (string, string) {
	provider, rest, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file", databaseURL
	}

	return provider, rest
}
