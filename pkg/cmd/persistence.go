package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/trellis/pkg/persistence"
	"github.com/dukex/trellis/pkg/persistence/file"
	"github.com/dukex/trellis/pkg/persistence/postgresql"
	"github.com/dukex/trellis/pkg/scheduler/redisstore"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the store named by databaseURL's scheme. URLs without
// a known scheme are treated as file paths.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, retention int) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	case "postgres", "postgresql":
		store, err := postgresql.NewPersistence(ctx, logger, databaseURL, postgresql.WithHistoryRetention(retention))
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres persistence: %w", err)
		}

		return store, nil
	default:
		return file.NewPersistence(databaseURL, file.WithHistoryRetention(retention)), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}

// SchedulerStore is scheduler state that may own a connection of its own.
type SchedulerStore struct {
	persistence.SchedulerRepository

	close func() error
}

func (s *SchedulerStore) Close() error {
	if s.close == nil {
		return nil
	}

	return s.close()
}

// NewSchedulerStore keeps scheduler state in Redis for redis:// URLs and in
// the main store otherwise.
func NewSchedulerStore(ctx context.Context, schedulerURL string, store persistence.Persistence) (*SchedulerStore, error) {
	if !strings.HasPrefix(schedulerURL, "redis://") && !strings.HasPrefix(schedulerURL, "rediss://") {
		return &SchedulerStore{SchedulerRepository: store.SchedulerRepository()}, nil
	}

	client, err := redisstore.NewClient(ctx, schedulerURL)
	if err != nil {
		return nil, err
	}

	return &SchedulerStore{
		SchedulerRepository: redisstore.NewSchedulerRepository(client, redisstore.DefaultPrefix),
		close:               client.Close,
	}, nil
}
