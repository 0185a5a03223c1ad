package rules

import "strings"

// PathMatcher finds the path rule that governs a URL.
type PathMatcher interface {
	MatchRule(path string) *PathRule
}

// PathRuleMatcher prefers an exact (trailing-slash-insensitive) match, then the
// deepest ancestor rule that applies to descendants. Among ancestors with the
// same depth the first registered wins.
type PathRuleMatcher struct {
	rules []PathRule
}

// NewPathRuleMatcher normalizes a private copy of rules.
func NewPathRuleMatcher(rules []PathRule) *PathRuleMatcher {
	own := make([]PathRule, len(rules))
	for i, r := range rules {
		r.Path = NormalizePath(r.Path)
		own[i] = r
	}
	return &PathRuleMatcher{rules: own}
}

// NormalizePath ensures path ends in exactly one '/'.
func NormalizePath(path string) string {
	return strings.TrimRight(path, "/") + "/"
}

func (m *PathRuleMatcher) MatchRule(path string) *PathRule {
	if path == "" || len(m.rules) == 0 {
		return nil
	}
	path = NormalizePath(path)

	for i := range m.rules {
		if m.rules[i].Path == path {
			rule := m.rules[i]
			return &rule
		}
	}

	best := -1
	bestDepth := -1
	for i := range m.rules {
		if !strings.HasPrefix(path, m.rules[i].Path) {
			continue
		}
		if depth := strings.Count(m.rules[i].Path, "/"); depth > bestDepth {
			best, bestDepth = i, depth
		}
	}
	if best < 0 || !m.rules[best].ApplyToDescendants {
		return nil
	}

	rule := m.rules[best]
	return &rule
}
