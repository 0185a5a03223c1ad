package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/liamcoop/expiry/internal/metrics"
	"github.com/liamcoop/expiry/rules"
)

type Options struct {
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
}

// Manager holds the active rule snapshot. Readers never block: a reload
// builds a new snapshot and swaps it in, and evaluations already running
// finish against the snapshot they started with.
type Manager struct {
	source   Source
	current  atomic.Pointer[rules.RuleSet]
	loadedAt atomic.Pointer[time.Time]
	reloadMu sync.Mutex
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

// NewManager loads the first snapshot from source. It fails if that load fails.
func NewManager(ctx context.Context, source Source, opts Options) (*Manager, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Manager{
		source:  source,
		metrics: opts.Metrics,
		log:     opts.Logger,
		now:     opts.Now,
	}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload replaces the snapshot. On failure the previous snapshot stays active.
func (m *Manager) Reload(ctx context.Context) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	rs, err := m.source.Load(ctx)
	m.metrics.RecordReload(m.source.Name(), err, ruleCount(rs, err))
	if err != nil {
		m.log.Error("failed to reload expiry rules",
			slog.String("source", m.source.Name()),
			slog.String("err", err.Error()))
		return fmt.Errorf("failed to load rules from %s: %w", m.source.Name(), err)
	}

	m.current.Store(rs)
	now := m.now()
	m.loadedAt.Store(&now)
	m.log.Info("expiry rules loaded",
		slog.String("source", m.source.Name()),
		slog.Bool("enabled", rs.IsEnabled()),
		slog.Int("rules", rs.Len()))
	return nil
}

func ruleCount(rs *rules.RuleSet, err error) int {
	if err != nil || rs == nil {
		return 0
	}
	return rs.Len()
}

// Current returns the active snapshot.
func (m *Manager) Current() *rules.RuleSet {
	return m.current.Load()
}

// LoadedAt returns when the active snapshot was loaded.
func (m *Manager) LoadedAt() time.Time {
	if t := m.loadedAt.Load(); t != nil {
		return *t
	}
	return time.Time{}
}

func (m *Manager) SourceName() string { return m.source.Name() }

// Enforce evaluates node against the active snapshot as if it were being
// published at publicationTime.
func (m *Manager) Enforce(node rules.ContentNode, urls rules.NodeURLResolver, publicationTime time.Time) (*rules.EvaluationResult, error) {
	start := time.Now()
	res, err := rules.Evaluate(m.Current(), publicationTime, node, urls)
	if err != nil {
		return nil, err
	}

	decision := res.Decision()
	m.metrics.RecordDecision(string(decision), RuleKind(res.MatchedRule), time.Since(start))
	if decision != rules.DecisionAllow {
		m.log.Debug("expiry rule applied",
			slog.String("document_type", node.DocumentTypeAlias()),
			slog.Int("level", node.Level()),
			slog.String("decision", string(decision)),
			slog.String("rule", describe(res.MatchedRule)))
	}
	return res, nil
}

// RuleKind names the kind of rule for metrics and responses.
func RuleKind(r rules.Rule) string {
	switch r.(type) {
	case rules.DocumentTypeRule, *rules.DocumentTypeRule:
		return string(rules.KindDocumentType)
	case rules.PathRule, *rules.PathRule:
		return string(rules.KindPath)
	case nil:
		return "default"
	}
	return "other"
}

func describe(r rules.Rule) string {
	if r == nil {
		return "default"
	}
	return r.Describe()
}
