package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/soyeahso/xmlbot/internal/domain"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteClientStore persists robot clients in the clients table.
type SQLiteClientStore struct {
	db *DB
}

// NewSQLiteClientStore creates a client store using the given database.
func NewSQLiteClientStore(db *DB) *SQLiteClientStore {
	return &SQLiteClientStore{db: db}
}

// SaveClient inserts or replaces a client.
func (s *SQLiteClientStore) SaveClient(ctx context.Context, c domain.Client) error {
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO clients (id, name, type, identifier, certificate, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   type = excluded.type,
		   identifier = excluded.identifier,
		   certificate = excluded.certificate`,
		c.ID, c.Name, string(c.Type), c.Identifier, c.Certificate, created.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving client %s: %w", c.ID, err)
	}
	return nil
}

// ListClients returns all clients in registration order.
func (s *SQLiteClientStore) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, name, type, identifier, certificate, created_at FROM clients ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	var out []domain.Client
	for rows.Next() {
		var c domain.Client
		var typ, created string
		if err := rows.Scan(&c.ID, &c.Name, &typ, &c.Identifier, &c.Certificate, &created); err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}
		c.Type = domain.ClientType(typ)
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteClient removes a client by ID.
func (s *SQLiteClientStore) DeleteClient(ctx context.Context, id string) error {
	res, err := s.db.sql.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting client %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("client %s: %w", id, ErrNotFound)
	}
	return nil
}

// MemoryClientStore keeps clients in process memory.
type MemoryClientStore struct {
	mu      sync.RWMutex
	clients []domain.Client
}

// NewMemoryClientStore creates an empty in-memory client store.
func NewMemoryClientStore() *MemoryClientStore {
	return &MemoryClientStore{}
}

// SaveClient inserts or replaces a client.
func (m *MemoryClientStore) SaveClient(_ context.Context, c domain.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.clients {
		if m.clients[i].ID == c.ID {
			m.clients[i] = c
			return nil
		}
	}
	m.clients = append(m.clients, c)
	return nil
}

// ListClients returns all clients in registration order.
func (m *MemoryClientStore) ListClients(context.Context) ([]domain.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Client, len(m.clients))
	copy(out, m.clients)
	return out, nil
}

// DeleteClient removes a client by ID.
func (m *MemoryClientStore) DeleteClient(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.clients {
		if m.clients[i].ID == id {
			m.clients = append(m.clients[:i], m.clients[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("client %s: %w", id, ErrNotFound)
}
