// Package robot is the mock side of the XML import robot: the list of
// registered certificate holders, their selection, and the simulated check
// and download actions.
package robot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/xmlbot/internal/domain"
	"github.com/soyeahso/xmlbot/internal/logging"
)

var (
	// ErrIncompleteRegistration mirrors the registration form's rejection.
	ErrIncompleteRegistration = errors.New("Please fill all fields and select a certificate file.")
	ErrInvalidClientType      = errors.New("client type must be CPF or CNPJ")
	ErrInvalidCertificate     = errors.New("certificate file must be a .pfx or .p12 file")
	ErrUnknownClient          = errors.New("unknown client")
)

// Registration is the input of the "add certificate" form.
type Registration struct {
	Name            string            `json:"name"`
	Type            domain.ClientType `json:"type"`
	Identifier      string            `json:"identifier"`
	Password        string            `json:"password"`
	CertificateFile string            `json:"certificateFile"`
}

// Validate checks that every field is filled, the type is CPF or CNPJ and
// the certificate is a PKCS#12 file.
func (r Registration) Validate() error {
	for _, v := range []string{r.Name, r.Identifier, r.Password, r.CertificateFile} {
		if strings.TrimSpace(v) == "" {
			return ErrIncompleteRegistration
		}
	}
	if !r.Type.Valid() {
		return ErrInvalidClientType
	}
	switch strings.ToLower(filepath.Ext(r.CertificateFile)) {
	case ".pfx", ".p12":
	default:
		return ErrInvalidCertificate
	}
	return nil
}

// ClientStore persists registered clients.
type ClientStore interface {
	SaveClient(ctx context.Context, c domain.Client) error
	ListClients(ctx context.Context) ([]domain.Client, error)
	DeleteClient(ctx context.Context, id string) error
}

// Book is the ordered list of registered clients and the current selection.
type Book struct {
	mu       sync.RWMutex
	clients  []domain.Client
	selected map[string]bool
	store    ClientStore
	log      *logging.Logger
}

// NewBook creates an empty book. store may be nil.
func NewBook(store ClientStore, log *logging.Logger) *Book {
	return &Book{
		selected: make(map[string]bool),
		store:    store,
		log:      log.Sub("robot"),
	}
}

// Load replaces the in-memory list with the clients held by the store.
// The selection is cleared.
func (b *Book) Load(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	clients, err := b.store.ListClients(ctx)
	if err != nil {
		return fmt.Errorf("load clients: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients = clients
	b.selected = make(map[string]bool)
	b.log.Debug().Int("count", len(clients)).Msg("clients loaded")
	return nil
}

// Register validates reg and appends a new client. The password is checked
// for presence only and never kept.
func (b *Book) Register(ctx context.Context, reg Registration) (domain.Client, error) {
	if err := reg.Validate(); err != nil {
		return domain.Client{}, err
	}

	client := domain.Client{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(reg.Name),
		Type:        reg.Type,
		Identifier:  strings.TrimSpace(reg.Identifier),
		Certificate: filepath.Base(reg.CertificateFile),
		CreatedAt:   time.Now().UTC(),
	}

	if b.store != nil {
		if err := b.store.SaveClient(ctx, client); err != nil {
			return domain.Client{}, fmt.Errorf("save client: %w", err)
		}
	}

	b.mu.Lock()
	b.clients = append(b.clients, client)
	b.mu.Unlock()

	b.log.Info().Str("client", client.ID).Str("type", string(client.Type)).Msg("client registered")
	return client, nil
}

// Remove forgets a client and drops it from the selection.
func (b *Book) Remove(ctx context.Context, id string) error {
	b.mu.RLock()
	known := b.hasLocked(id)
	b.mu.RUnlock()
	if !known {
		return fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}

	if b.store != nil {
		if err := b.store.DeleteClient(ctx, id); err != nil {
			return fmt.Errorf("delete client: %w", err)
		}
	}

	b.mu.Lock()
	b.clients = slices.DeleteFunc(b.clients, func(c domain.Client) bool { return c.ID == id })
	delete(b.selected, id)
	b.mu.Unlock()

	b.log.Info().Str("client", id).Msg("client removed")
	return nil
}

// List returns a copy of the registered clients in registration order.
func (b *Book) List() []domain.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]domain.Client, len(b.clients))
	copy(out, b.clients)
	return out
}

// Select marks or unmarks one client.
func (b *Book) Select(id string, selected bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasLocked(id) {
		return fmt.Errorf("%w: %s", ErrUnknownClient, id)
	}
	if selected {
		b.selected[id] = true
	} else {
		delete(b.selected, id)
	}
	return nil
}

// SelectAll marks every client, or clears the selection.
func (b *Book) SelectAll(selected bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selected = make(map[string]bool)
	if selected {
		for _, c := range b.clients {
			b.selected[c.ID] = true
		}
	}
}

// IsSelected reports whether the client is selected.
func (b *Book) IsSelected(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.selected[id]
}

// Selected returns the selected clients in registration order.
func (b *Book) Selected() []domain.Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []domain.Client
	for _, c := range b.clients {
		if b.selected[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// AnySelected reports whether at least one client is selected.
func (b *Book) AnySelected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.selected) > 0
}

// AllSelected reports whether the book is non-empty and every client is selected.
func (b *Book) AllSelected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients) > 0 && len(b.selected) == len(b.clients)
}

func (b *Book) hasLocked(id string) bool {
	for _, c := range b.clients {
		if c.ID == id {
			return true
		}
	}
	return false
}
