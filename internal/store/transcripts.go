package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/soyeahso/xmlbot/internal/domain"
)

// Transcript is the audit copy of one run's conversation. Transcripts are
// written for record keeping only; nothing replays them into a session.
type Transcript struct {
	ID        string           `json:"id"`
	Provider  string           `json:"provider"`
	StartedAt time.Time        `json:"startedAt"`
	LastError string           `json:"lastError,omitempty"`
	Messages  []domain.Message `json:"messages,omitempty"`
}

// TranscriptStore persists transcripts.
type TranscriptStore interface {
	CreateTranscript(ctx context.Context, t Transcript) error
	// AppendMessages stores msgs with sequence numbers starting at firstSeq.
	AppendMessages(ctx context.Context, id string, firstSeq int, msgs []domain.Message) error
	SetLastError(ctx context.Context, id, lastError string) error
	GetTranscript(ctx context.Context, id string) (*Transcript, error)
	// ListTranscripts returns the newest transcripts first, without messages.
	ListTranscripts(ctx context.Context, limit int) ([]Transcript, error)
}

// SQLiteTranscriptStore implements TranscriptStore on the transcripts tables.
type SQLiteTranscriptStore struct {
	db *DB
}

// NewSQLiteTranscriptStore creates a transcript store using the given database.
func NewSQLiteTranscriptStore(db *DB) *SQLiteTranscriptStore {
	return &SQLiteTranscriptStore{db: db}
}

func (s *SQLiteTranscriptStore) CreateTranscript(ctx context.Context, t Transcript) error {
	started := t.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO transcripts (id, provider, started_at, last_error) VALUES (?, ?, ?, ?)`,
		t.ID, t.Provider, started.Format(time.RFC3339Nano), t.LastError,
	)
	if err != nil {
		return fmt.Errorf("creating transcript %s: %w", t.ID, err)
	}
	return nil
}

func (s *SQLiteTranscriptStore) AppendMessages(ctx context.Context, id string, firstSeq int, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO transcript_messages (transcript_id, seq, role, content, timestamp) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare append: %w", err)
	}
	defer stmt.Close()

	for i, m := range msgs {
		ts := m.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, id, firstSeq+i, string(m.Role), m.Content, ts.UTC().Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("appending message %d to %s: %w", firstSeq+i, id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteTranscriptStore) SetLastError(ctx context.Context, id, lastError string) error {
	res, err := s.db.sql.ExecContext(ctx, `UPDATE transcripts SET last_error = ? WHERE id = ?`, lastError, id)
	if err != nil {
		return fmt.Errorf("updating transcript %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("transcript %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteTranscriptStore) GetTranscript(ctx context.Context, id string) (*Transcript, error) {
	var t Transcript
	var started string
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT id, provider, started_at, last_error FROM transcripts WHERE id = ?`, id,
	).Scan(&t.ID, &t.Provider, &started, &t.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transcript %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading transcript %s: %w", id, err)
	}
	t.StartedAt, _ = time.Parse(time.RFC3339Nano, started)

	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT role, content, timestamp FROM transcript_messages WHERE transcript_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("loading messages of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m domain.Message
		var role, ts string
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.Role = domain.Role(role)
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		t.Messages = append(t.Messages, m)
	}
	return &t, rows.Err()
}

func (s *SQLiteTranscriptStore) ListTranscripts(ctx context.Context, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT id, provider, started_at, last_error FROM transcripts ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	defer rows.Close()

	var out []Transcript
	for rows.Next() {
		var t Transcript
		var started string
		if err := rows.Scan(&t.ID, &t.Provider, &started, &t.LastError); err != nil {
			return nil, fmt.Errorf("scanning transcript: %w", err)
		}
		t.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		out = append(out, t)
	}
	return out, rows.Err()
}

// MemoryTranscriptStore keeps transcripts in process memory.
type MemoryTranscriptStore struct {
	mu          sync.RWMutex
	transcripts map[string]*Transcript
}

// NewMemoryTranscriptStore creates an empty in-memory transcript store.
func NewMemoryTranscriptStore() *MemoryTranscriptStore {
	return &MemoryTranscriptStore{transcripts: make(map[string]*Transcript)}
}

func (m *MemoryTranscriptStore) CreateTranscript(_ context.Context, t Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.transcripts[t.ID]; exists {
		return fmt.Errorf("transcript %s already exists", t.ID)
	}
	if t.StartedAt.IsZero() {
		t.StartedAt = time.Now().UTC()
	}
	t.Messages = nil
	m.transcripts[t.ID] = &t
	return nil
}

func (m *MemoryTranscriptStore) AppendMessages(_ context.Context, id string, firstSeq int, msgs []domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[id]
	if !ok {
		return fmt.Errorf("transcript %s: %w", id, ErrNotFound)
	}
	if firstSeq != len(t.Messages) {
		return fmt.Errorf("transcript %s: sequence %d out of order (have %d)", id, firstSeq, len(t.Messages))
	}
	t.Messages = append(t.Messages, msgs...)
	return nil
}

func (m *MemoryTranscriptStore) SetLastError(_ context.Context, id, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transcripts[id]
	if !ok {
		return fmt.Errorf("transcript %s: %w", id, ErrNotFound)
	}
	t.LastError = lastError
	return nil
}

func (m *MemoryTranscriptStore) GetTranscript(_ context.Context, id string) (*Transcript, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transcripts[id]
	if !ok {
		return nil, fmt.Errorf("transcript %s: %w", id, ErrNotFound)
	}
	cp := *t
	cp.Messages = append([]domain.Message(nil), t.Messages...)
	return &cp, nil
}

func (m *MemoryTranscriptStore) ListTranscripts(_ context.Context, limit int) ([]Transcript, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.RLock()
	out := make([]Transcript, 0, len(m.transcripts))
	for _, t := range m.transcripts {
		cp := *t
		cp.Messages = nil
		out = append(out, cp)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
