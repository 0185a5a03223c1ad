package rules

import (
	"fmt"
	"time"
)

// RuleProvider exposes the active expiry policy.
type RuleProvider interface {
	IsEnabled() bool
	DocumentTypeRules() []DocumentTypeRule
	PathRules() []PathRule
	DefaultMaximumExpiry() *time.Duration
}

// RuleSet is an immutable snapshot of the expiry policy. It is safe for
// concurrent use; replace it rather than changing it.
//
// A disabled RuleSet reports no rules and no default, so evaluating against
// it always accepts the node's date unchanged.
type RuleSet struct {
	enabled    bool
	docRules   []DocumentTypeRule
	pathRules  []PathRule
	defaultMax *time.Duration

	docTypes *DocumentTypeRuleMatcher
	paths    *PathRuleMatcher
}

// NewRuleSet validates and copies the given rules. Path rules are normalized.
// A repeated document type alias or path returns ErrDuplicateRule. The
// alias alone is the key: a matcher only ever consults the first rule for
// an alias, so a second one at another level could never apply.
func NewRuleSet(enabled bool, docRules []DocumentTypeRule, pathRules []PathRule, defaultMax *time.Duration) (*RuleSet, error) {
	seenDoc := make(map[string]struct{}, len(docRules))
	for _, r := range docRules {
		if _, ok := seenDoc[r.Alias]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.Describe())
		}
		seenDoc[r.Alias] = struct{}{}
	}

	normalized := make([]PathRule, len(pathRules))
	seenPath := make(map[string]struct{}, len(pathRules))
	for i, r := range pathRules {
		r.Path = NormalizePath(r.Path)
		if _, ok := seenPath[r.Path]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRule, r.Describe())
		}
		seenPath[r.Path] = struct{}{}
		normalized[i] = r
	}

	rs := &RuleSet{enabled: enabled}
	if enabled {
		rs.docRules = append([]DocumentTypeRule(nil), docRules...)
		rs.pathRules = normalized
		rs.defaultMax = copyDuration(defaultMax)
	}
	rs.docTypes = NewDocumentTypeRuleMatcher(rs.docRules)
	rs.paths = NewPathRuleMatcher(rs.pathRules)
	return rs, nil
}

// EmptyRuleSet returns a disabled snapshot.
func EmptyRuleSet() *RuleSet {
	rs, _ := NewRuleSet(false, nil, nil, nil)
	return rs
}

func (rs *RuleSet) IsEnabled() bool { return rs.enabled }

func (rs *RuleSet) DocumentTypeRules() []DocumentTypeRule {
	return append([]DocumentTypeRule(nil), rs.docRules...)
}

func (rs *RuleSet) PathRules() []PathRule {
	return append([]PathRule(nil), rs.pathRules...)
}

func (rs *RuleSet) DefaultMaximumExpiry() *time.Duration {
	return copyDuration(rs.defaultMax)
}

// Len returns the number of rules in the snapshot.
func (rs *RuleSet) Len() int { return len(rs.docRules) + len(rs.pathRules) }

func copyDuration(d *time.Duration) *time.Duration {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
