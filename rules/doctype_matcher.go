package rules

// DocumentTypeMatcher finds the document-type rule that governs a node.
type DocumentTypeMatcher interface {
	// MatchRule returns the rule for alias at level, or nil.
	// A nil level matches any rule with the alias.
	MatchRule(alias string, level *int) *DocumentTypeRule
}

// DocumentTypeRuleMatcher matches on exact, case-sensitive alias.
// Only the first rule registered for an alias is considered.
type DocumentTypeRuleMatcher struct {
	rules []DocumentTypeRule
}

// NewDocumentTypeRuleMatcher copies rules into a new matcher.
func NewDocumentTypeRuleMatcher(rules []DocumentTypeRule) *DocumentTypeRuleMatcher {
	own := make([]DocumentTypeRule, len(rules))
	copy(own, rules)
	return &DocumentTypeRuleMatcher{rules: own}
}

func (m *DocumentTypeRuleMatcher) MatchRule(alias string, level *int) *DocumentTypeRule {
	if alias == "" {
		return nil
	}

	for i := range m.rules {
		rule := m.rules[i]
		if rule.Alias != alias {
			continue
		}
		if rule.Level == nil || level == nil || *rule.Level == *level {
			return &rule
		}
		return nil
	}
	return nil
}
