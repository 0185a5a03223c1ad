package policy

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/liamcoop/expiry/internal/metrics"
	"github.com/liamcoop/expiry/rules"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSource serves rule sets in order, then repeats the last one.
type stubSource struct {
	sets  []*rules.RuleSet
	errs  []error
	calls atomic.Int32
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Load(context.Context) (*rules.RuleSet, error) {
	i := int(s.calls.Add(1)) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	if i >= len(s.sets) {
		i = len(s.sets) - 1
	}
	return s.sets[i], nil
}

func months(n int) *time.Duration {
	return rules.MaximumFor(base, n, 0, false)
}

func mustRuleSet(t *testing.T, docRules []rules.DocumentTypeRule, pathRules []rules.PathRule, def *time.Duration) *rules.RuleSet {
	t.Helper()
	rs, err := rules.NewRuleSet(true, docRules, pathRules, def)
	require.NoError(t, err)
	return rs
}

func TestManagerReloadKeepsPreviousOnFailure(t *testing.T) {
	ctx := context.Background()
	first := mustRuleSet(t, []rules.DocumentTypeRule{{Alias: "news", Maximum: months(1)}}, nil, months(6))
	second := mustRuleSet(t, nil, nil, months(3))
	src := &stubSource{
		sets: []*rules.RuleSet{first, first, second},
		errs: []error{nil, errors.New("file is broken"), nil},
	}
	m := metrics.New("test")

	mgr, err := NewManager(ctx, src, Options{Metrics: m})
	require.NoError(t, err)
	assert.Same(t, first, mgr.Current())

	err = mgr.Reload(ctx)
	assert.ErrorContains(t, err, "file is broken")
	assert.Same(t, first, mgr.Current())

	require.NoError(t, mgr.Reload(ctx))
	assert.Same(t, second, mgr.Current())

	expected := `
# HELP test_rules_reloads_total Total number of rule set reloads
# TYPE test_rules_reloads_total counter
test_rules_reloads_total{result="error",source="stub"} 1
test_rules_reloads_total{result="success",source="stub"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "test_rules_reloads_total"))
}

func TestNewManagerFailsWithoutRules(t *testing.T) {
	src := &stubSource{errs: []error{errors.New("no rules")}}
	_, err := NewManager(context.Background(), src, Options{})
	assert.Error(t, err)
}

func TestManagerEnforce(t *testing.T) {
	ctx := context.Background()
	rs := mustRuleSet(t,
		[]rules.DocumentTypeRule{{Alias: "homepage"}},
		[]rules.PathRule{{Path: "/news/", ApplyToDescendants: true, Maximum: months(1)}},
		months(6))
	mgr, err := NewManager(ctx, &stubSource{sets: []*rules.RuleSet{rs}}, Options{})
	require.NoError(t, err)

	future := base.AddDate(1, 0, 0)

	t.Run("never expire rejects a date", func(t *testing.T) {
		res, err := mgr.Enforce(rules.EvaluationInput{DocumentType: "homepage", TreeLevel: 1, CurrentExpireDate: &future}, rules.InputURLResolver{}, base)
		require.NoError(t, err)
		assert.Equal(t, rules.DecisionReject, res.Decision())
		assert.Equal(t, "document_type", RuleKind(res.MatchedRule))
	})

	t.Run("path rule clamps", func(t *testing.T) {
		res, err := mgr.Enforce(rules.EvaluationInput{DocumentType: "article", TreeLevel: 3, CurrentExpireDate: &future, ResolvedURL: "/News/2024/"}, rules.InputURLResolver{}, base)
		require.NoError(t, err)
		assert.Equal(t, rules.DecisionModify, res.Decision())
		assert.Equal(t, base.AddDate(0, 1, 0), *res.ExpireDate)
		assert.Equal(t, "path", RuleKind(res.MatchedRule))
	})

	t.Run("default applies to the rest", func(t *testing.T) {
		res, err := mgr.Enforce(rules.EvaluationInput{DocumentType: "article", TreeLevel: 3}, rules.InputURLResolver{}, base)
		require.NoError(t, err)
		assert.Equal(t, base.AddDate(0, 6, 0), *res.ExpireDate)
		assert.Equal(t, "default", RuleKind(res.MatchedRule))
	})

	t.Run("nil resolver is an argument error", func(t *testing.T) {
		_, err := mgr.Enforce(rules.EvaluationInput{DocumentType: "article"}, nil, base)
		assert.ErrorIs(t, err, rules.ErrInvalidArgument)
	})
}

func TestStoreSource(t *testing.T) {
	ctx := context.Background()
	engine, err := rules.NewEngine(ctx, rules.NewInMemoryRuleStore())
	require.NoError(t, err)

	mgr, err := NewManager(ctx, StoreSource{Engine: engine}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, mgr.Current().Len())
	assert.Equal(t, "store", mgr.SourceName())

	require.NoError(t, engine.AddRule(ctx, &rules.Definition{Kind: rules.KindDocumentType, Alias: "news", Months: 1, Active: true}))
	require.NoError(t, mgr.Reload(ctx))
	assert.Equal(t, 1, mgr.Current().Len())
}
