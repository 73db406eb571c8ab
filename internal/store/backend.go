package store

import (
	"context"
	"fmt"

	"github.com/soyeahso/xmlbot/internal/config"
	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/logging"
)

// ClientStore persists robot clients.
type ClientStore interface {
	SaveClient(ctx context.Context, c domain.Client) error
	ListClients(ctx context.Context) ([]domain.Client, error)
	DeleteClient(ctx context.Context, id string) error
}

// Backend bundles the stores selected by configuration.
type Backend struct {
	Clients     ClientStore
	Transcripts TranscriptStore
	db          *DB
}

// OpenBackend opens the configured backend. defaultPath is used when the
// sqlite backend has no explicit path.
func OpenBackend(cfg config.StoreConfig, defaultPath string, log *logging.Logger) (*Backend, error) {
	switch cfg.Backend {
	case "memory":
		return &Backend{
			Clients:     NewMemoryClientStore(),
			Transcripts: NewMemoryTranscriptStore(),
		}, nil
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = defaultPath
		}
		db, err := Open(path, log)
		if err != nil {
			return nil, err
		}
		return &Backend{
			Clients:     NewSQLiteClientStore(db),
			Transcripts: NewSQLiteTranscriptStore(db),
			db:          db,
		}, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// Close releases the database, if any.
func (b *Backend) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
