package rules

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// RuleStore persists rule definitions and the site-wide settings.
type RuleStore interface {
	// Add a new definition
	Add(ctx context.Context, def *Definition) error

	// Get a definition by ID
	Get(ctx context.Context, id string) (*Definition, error)

	// List all definitions, oldest first
	List(ctx context.Context) ([]*Definition, error)

	// ListActive lists active definitions, oldest first
	ListActive(ctx context.Context) ([]*Definition, error)

	// Update an existing definition
	Update(ctx context.Context, def *Definition) error

	// Delete a definition
	Delete(ctx context.Context, id string) error

	Settings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) error
}

// InMemoryRuleStore implements RuleStore with a map. Registration order is kept
// so that first-registered tie-breaks survive a reload.
type InMemoryRuleStore struct {
	defs     map[string]*Definition
	order    []string
	settings Settings
	mu       sync.RWMutex
}

// NewInMemoryRuleStore creates an empty store with DefaultSettings.
func NewInMemoryRuleStore() *InMemoryRuleStore {
	return &InMemoryRuleStore{
		defs:     make(map[string]*Definition),
		settings: DefaultSettings(),
	}
}

// Add stores a copy of def and stamps its timestamps.
func (s *InMemoryRuleStore) Add(_ context.Context, def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[def.ID]; exists {
		return fmt.Errorf("%w: %s", ErrRuleExists, def.ID)
	}

	now := time.Now()
	def.CreatedAt = now
	def.UpdatedAt = now
	stored := *def
	s.defs[def.ID] = &stored
	s.order = append(s.order, def.ID)
	return nil
}

func (s *InMemoryRuleStore) Get(_ context.Context, id string) (*Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, exists := s.defs[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	out := *def
	return &out, nil
}

func (s *InMemoryRuleStore) List(_ context.Context) ([]*Definition, error) {
	return s.list(false), nil
}

func (s *InMemoryRuleStore) ListActive(_ context.Context) ([]*Definition, error) {
	return s.list(true), nil
}

func (s *InMemoryRuleStore) list(activeOnly bool) []*Definition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Definition, 0, len(s.order))
	for _, id := range s.order {
		def := s.defs[id]
		if activeOnly && !def.Active {
			continue
		}
		cp := *def
		out = append(out, &cp)
	}
	return out
}

// Update replaces a definition, preserving CreatedAt.
func (s *InMemoryRuleStore) Update(_ context.Context, def *Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.defs[def.ID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, def.ID)
	}

	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = time.Now()
	stored := *def
	s.defs[def.ID] = &stored
	return nil
}

func (s *InMemoryRuleStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.defs[id]; !exists {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	delete(s.defs, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemoryRuleStore) Settings(_ context.Context) (Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

func (s *InMemoryRuleStore) SaveSettings(_ context.Context, settings Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}
