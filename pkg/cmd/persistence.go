package cmd

import (
	"fmt"
	"strings"

	"github.com/loomctl/loom/pkg/persistence"
	"github.com/loomctl/loom/pkg/persistence/file"
	"github.com/loomctl/loom/pkg/persistence/redis"
)

// NewPersistence selects the workflow store from the database URL scheme:
// redis:// picks the Redis backend, anything else falls back to file storage.
func NewPersistence(databaseURL string) persistence.Persistence {
	switch parsePersistenceProvider(databaseURL) {
	case "redis":
		store, err := redis.NewPersistence(databaseURL)
		if err != nil {
			panic(fmt.Errorf("failed to create redis persistence: %w", err))
		}

		return store
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")

	return parts[0]
}
