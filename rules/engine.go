package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Engine turns the definitions in a RuleStore into RuleSet snapshots.
// Writes go through the Engine so that definitions are validated before they
// are stored and cached snapshots are dropped afterwards.
type Engine struct {
	store     RuleStore
	cache     RuleSetCache
	now       func() time.Time
	listeners []func()
	writeMu   sync.Mutex // serialises duplicate checks with writes
	mu        sync.RWMutex
}

// NewEngine creates an engine with an hourly snapshot cache and builds the
// first snapshot.
func NewEngine(ctx context.Context, store RuleStore) (*Engine, error) {
	return NewEngineWithCache(ctx, store, NewInMemoryRuleSetCache(DefaultCacheConfig()))
}

// NewEngineWithCache creates an engine using the given cache.
func NewEngineWithCache(ctx context.Context, store RuleStore, cache RuleSetCache) (*Engine, error) {
	en := &Engine{
		store: store,
		cache: cache,
		now:   time.Now,
	}

	if _, err := en.Rebuild(ctx); err != nil {
		return nil, fmt.Errorf("failed to build rule set: %w", err)
	}

	return en, nil
}

// OnChange registers fn to run after every successful write.
func (en *Engine) OnChange(fn func()) {
	en.mu.Lock()
	en.listeners = append(en.listeners, fn)
	en.mu.Unlock()
}

// RuleSet returns the current snapshot, rebuilding it on a cache miss.
func (en *Engine) RuleSet(ctx context.Context) (*RuleSet, error) {
	if rs := en.cache.Get(); rs != nil {
		return rs, nil
	}
	return en.Rebuild(ctx)
}

// Rebuild reads the store and caches a fresh snapshot.
func (en *Engine) Rebuild(ctx context.Context) (*RuleSet, error) {
	settings, err := en.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	defs, err := en.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	rs, err := BuildRuleSet(settings, defs, en.now().UTC())
	if err != nil {
		return nil, err
	}
	en.cache.Set(rs)
	return rs, nil
}

// Evaluate applies the current snapshot to node.
func (en *Engine) Evaluate(ctx context.Context, publicationTime time.Time, node ContentNode, urls NodeURLResolver) (*EvaluationResult, error) {
	rs, err := en.RuleSet(ctx)
	if err != nil {
		return nil, err
	}
	return Evaluate(rs, publicationTime, node, urls)
}

// Definitions lists every stored definition.
func (en *Engine) Definitions(ctx context.Context) ([]*Definition, error) {
	return en.store.List(ctx)
}

// Definition returns one stored definition.
func (en *Engine) Definition(ctx context.Context, id string) (*Definition, error) {
	return en.store.Get(ctx, id)
}

// Settings returns the stored site-wide settings.
func (en *Engine) Settings(ctx context.Context) (Settings, error) {
	return en.store.Settings(ctx)
}

// AddRule validates and stores a new definition. An empty ID is assigned.
func (en *Engine) AddRule(ctx context.Context, def *Definition) error {
	if err := ValidateDefinition(def); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if def.ID == "" {
		def.ID = uuid.NewString()
	}

	en.writeMu.Lock()
	defer en.writeMu.Unlock()

	if err := en.checkDuplicate(ctx, def); err != nil {
		return err
	}
	if err := en.store.Add(ctx, def); err != nil {
		return err
	}

	en.changed()
	return nil
}

// UpdateRule validates and replaces an existing definition.
func (en *Engine) UpdateRule(ctx context.Context, def *Definition) error {
	if err := ValidateDefinition(def); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	en.writeMu.Lock()
	defer en.writeMu.Unlock()

	if err := en.checkDuplicate(ctx, def); err != nil {
		return err
	}
	if err := en.store.Update(ctx, def); err != nil {
		return err
	}

	en.changed()
	return nil
}

// DeleteRule removes a definition.
func (en *Engine) DeleteRule(ctx context.Context, id string) error {
	en.writeMu.Lock()
	defer en.writeMu.Unlock()

	if err := en.store.Delete(ctx, id); err != nil {
		return err
	}

	en.changed()
	return nil
}

// UpdateSettings validates and stores the site-wide settings.
func (en *Engine) UpdateSettings(ctx context.Context, s Settings) error {
	if err := ValidateSettings(s); err != nil {
		return fmt.Errorf("%w: settings: %w", ErrValidation, err)
	}
	if err := en.store.SaveSettings(ctx, s); err != nil {
		return err
	}

	en.changed()
	return nil
}

func (en *Engine) checkDuplicate(ctx context.Context, def *Definition) error {
	if !def.Active {
		return nil
	}
	active, err := en.store.ListActive(ctx)
	if err != nil {
		return err
	}
	key := MatchKey(def)
	for _, existing := range active {
		if existing.ID != def.ID && MatchKey(existing) == key {
			return fmt.Errorf("%w: rule %s already matches %s", ErrDuplicateRule, existing.ID, key)
		}
	}
	return nil
}

func (en *Engine) changed() {
	en.cache.Invalidate()

	en.mu.RLock()
	listeners := append([]func(){}, en.listeners...)
	en.mu.RUnlock()

	for _, fn := range listeners {
		fn()
	}
}
