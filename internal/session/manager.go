// Package session owns each user's entity collection and serializes writes
// to it.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/applier"
	"github.com/starford/dagaz/internal/checksum"
	"github.com/starford/dagaz/internal/models"
	"github.com/starford/dagaz/internal/storage"
)

// Change kinds passed to a Notifier.
const (
	ChangeApplied  = "applied"
	ChangeReplaced = "replaced"
	ChangeExternal = "external"
)

// Collection is a user's entities together with their version checksum.
type Collection struct {
	Entities []models.Entity `json:"entities"`
	Checksum string          `json:"checksum"`
}

// Notifier receives a message after every persisted change.
type Notifier interface {
	PublishEntityEvent(kind, user string, count int, checksum string)
}

// Manager coordinates the applier and the storage provider.
type Manager struct {
	store   storage.Provider
	applier *applier.Applier
	notify  Notifier
	logger  *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithApplier overrides the applier used by ApplyPlan.
func WithApplier(a *applier.Applier) Option {
	return func(m *Manager) { m.applier = a }
}

// WithNotifier registers n to receive change messages.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notify = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager backed by store.
func NewManager(store storage.Provider, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		applier: applier.New(),
		logger:  slog.Default(),
		locks:   make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lock(user string) func() {
	m.mu.Lock()
	l, ok := m.locks[user]
	if !ok {
		l = &sync.Mutex{}
		m.locks[user] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Snapshot returns the user's stored collection.
func (m *Manager) Snapshot(ctx context.Context, user string) (*Collection, error) {
	entities, err := m.store.Load(ctx, user)
	if err != nil {
		return nil, err
	}
	return newCollection(entities)
}

// ApplyPlan applies ops to the user's collection and persists the result in
// a single write. Concurrent calls for the same user run one at a time.
func (m *Manager) ApplyPlan(ctx context.Context, user string, ops []models.Operation) (*Collection, error) {
	unlock := m.lock(user)
	defer unlock()

	current, err := m.store.Load(ctx, user)
	if err != nil {
		return nil, err
	}
	next := m.applier.Apply(current, ops)
	if err := m.store.Save(ctx, user, next); err != nil {
		return nil, fmt.Errorf("session: persist: %w", err)
	}
	col, err := newCollection(next)
	if err != nil {
		return nil, err
	}
	m.logger.Info("plan applied",
		slog.String("user", user),
		slog.Int("operations", len(ops)),
		slog.Int("entities", len(next)),
	)
	m.publish(ChangeApplied, user, col)
	return col, nil
}

// Replace overwrites the user's collection. A non-empty ifMatch must equal
// the current checksum, otherwise apperr.ErrConflict is returned.
func (m *Manager) Replace(ctx context.Context, user string, entities []models.Entity, ifMatch string) (*Collection, error) {
	unlock := m.lock(user)
	defer unlock()

	if ifMatch != "" {
		current, err := m.store.Load(ctx, user)
		if err != nil {
			return nil, err
		}
		sum, err := checksum.Entities(current)
		if err != nil {
			return nil, err
		}
		if sum != ifMatch {
			return nil, apperr.ErrConflict
		}
	}
	if entities == nil {
		entities = []models.Entity{}
	}
	if err := m.store.Save(ctx, user, entities); err != nil {
		return nil, fmt.Errorf("session: persist: %w", err)
	}
	col, err := newCollection(entities)
	if err != nil {
		return nil, err
	}
	m.publish(ChangeReplaced, user, col)
	return col, nil
}

// ExternalChange announces a document changed outside this process.
func (m *Manager) ExternalChange(ctx context.Context, user string) {
	col, err := m.Snapshot(ctx, user)
	if err != nil {
		m.logger.Warn("external change: reload failed", slog.String("user", user), slog.String("error", err.Error()))
		return
	}
	m.publish(ChangeExternal, user, col)
}

func (m *Manager) publish(kind, user string, col *Collection) {
	if m.notify != nil {
		m.notify.PublishEntityEvent(kind, user, len(col.Entities), col.Checksum)
	}
}

func newCollection(entities []models.Entity) (*Collection, error) {
	if entities == nil {
		entities = []models.Entity{}
	}
	sum, err := checksum.Entities(entities)
	if err != nil {
		return nil, err
	}
	return &Collection{Entities: entities, Checksum: sum}, nil
}
