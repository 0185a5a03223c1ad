package policy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/liamcoop/expiry/content"
	"github.com/liamcoop/expiry/internal/logger"
	"github.com/liamcoop/expiry/rules"
	"golang.org/x/sync/errgroup"
)

const (
	ActionCleared = "cleared"
	ActionSet     = "set"
	ActionClamped = "clamped"
)

// DefaultWorkers bounds how many nodes of one tree level are checked at once.
const DefaultWorkers = 8

// Invalidator drops cached state for a node whose expiry date changed.
type Invalidator interface {
	Invalidate(ctx context.Context, nodeID int) error
}

type WalkOptions struct {
	Workers int
	// DryRun reports the changes without writing them.
	DryRun bool
}

type Change struct {
	NodeID int        `json:"nodeId"`
	Name   string     `json:"name"`
	Action string     `json:"action"`
	From   *time.Time `json:"from,omitempty"`
	To     *time.Time `json:"to,omitempty"`
	Rule   string     `json:"rule"`
}

type Summary struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	DryRun    bool          `json:"dryRun"`
	Visited   int           `json:"visited"`
	Checked   int           `json:"checked"`
	Cleared   int           `json:"cleared"`
	Set       int           `json:"set"`
	Clamped   int           `json:"clamped"`
	Failed    int           `json:"failed"`
	Changes   []Change      `json:"changes"`
}

// Enforcer brings stored expiry dates in line with the active policy.
type Enforcer struct {
	manager *Manager
	tree    content.Tree
	urls    *content.URLBuilder
	cache   Invalidator
	log     *slog.Logger
}

// NewEnforcer creates an Enforcer. cache may be nil.
func NewEnforcer(m *Manager, tree content.Tree, cache Invalidator) *Enforcer {
	return &Enforcer{
		manager: m,
		tree:    tree,
		urls:    content.NewURLBuilder(tree),
		cache:   cache,
		log:     m.log,
	}
}

// EnsurePolicy walks the content tree breadth first. Every published page
// is evaluated as if it were published now:
//   - a never-expire page with a date has the date cleared
//   - a page with no date gets the maximum allowed date
//   - a date beyond the maximum is brought back to it
//
// A failure on one node is logged and counted; the walk carries on.
func (e *Enforcer) EnsurePolicy(ctx context.Context, opts WalkOptions) (*Summary, error) {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	start := time.Now()
	now := e.manager.now()
	sum := &Summary{StartedAt: now, DryRun: opts.DryRun, Changes: []Change{}}
	var mu sync.Mutex

	level, err := e.tree.Roots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load root nodes: %w", err)
	}

	for len(level) > 0 {
		children := make([][]*content.Node, len(level))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i, n := range level {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				e.checkNode(gctx, n, now, opts.DryRun, sum, &mu)

				kids, err := e.tree.Children(gctx, n.ID)
				if err != nil {
					e.log.Error("failed to load child nodes", slog.Int("node_id", n.ID), slog.String("err", err.Error()))
					mu.Lock()
					sum.Failed++
					mu.Unlock()
					return nil
				}
				children[i] = kids
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			sum.Duration = time.Since(start)
			return sum, err
		}

		var next []*content.Node
		for _, kids := range children {
			next = append(next, kids...)
		}
		level = next
	}

	sum.Duration = time.Since(start)
	e.log.Info("expiry policy enforced",
		slog.Int("visited", sum.Visited),
		slog.Int("cleared", sum.Cleared),
		slog.Int("set", sum.Set),
		slog.Int("clamped", sum.Clamped),
		slog.Int("failed", sum.Failed),
		slog.Bool("dry_run", sum.DryRun))
	return sum, nil
}

func (e *Enforcer) checkNode(ctx context.Context, n *content.Node, now time.Time, dryRun bool, sum *Summary, mu *sync.Mutex) {
	mu.Lock()
	sum.Visited++
	mu.Unlock()

	if !n.Published {
		return
	}

	res, err := e.manager.Enforce(n, e.urls.Resolver(ctx), now)
	if err != nil {
		e.fail(n, err, sum, mu)
		return
	}

	e.log.Log(ctx, logger.LevelTrace, "checked node",
		slog.Int("node_id", n.ID),
		slog.String("decision", string(res.Decision())),
		slog.String("rule", describe(res.MatchedRule)))

	var action string
	switch res.Decision() {
	case rules.DecisionReject:
		action = ActionCleared
	case rules.DecisionModify:
		action = ActionClamped
		if n.Expires == nil {
			action = ActionSet
		}
	default:
		mu.Lock()
		sum.Checked++
		mu.Unlock()
		return
	}

	var target *time.Time
	if action != ActionCleared {
		target = res.ExpireDate
	}

	if !dryRun {
		if err := e.tree.SetExpireDate(ctx, n.ID, target); err != nil {
			e.fail(n, err, sum, mu)
			return
		}
		if e.cache != nil {
			if err := e.cache.Invalidate(ctx, n.ID); err != nil {
				e.log.Warn("failed to invalidate cached expiry date", slog.Int("node_id", n.ID), slog.String("err", err.Error()))
			}
		}
		e.manager.metrics.RecordEnforcement(action)
	}

	mu.Lock()
	defer mu.Unlock()
	sum.Checked++
	switch action {
	case ActionCleared:
		sum.Cleared++
	case ActionSet:
		sum.Set++
	case ActionClamped:
		sum.Clamped++
	}
	sum.Changes = append(sum.Changes, Change{
		NodeID: n.ID,
		Name:   n.Name,
		Action: action,
		From:   n.Expires,
		To:     target,
		Rule:   describe(res.MatchedRule),
	})
}

func (e *Enforcer) fail(n *content.Node, err error, sum *Summary, mu *sync.Mutex) {
	e.log.Error("failed to enforce expiry policy", slog.Int("node_id", n.ID), slog.String("err", err.Error()))
	mu.Lock()
	sum.Failed++
	mu.Unlock()
}
