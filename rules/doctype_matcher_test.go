package rules

import "testing"

func intPtr(v int) *int { return &v }

// TestDocumentTypeRuleMatcher verifies alias and level matching.
func TestDocumentTypeRuleMatcher(t *testing.T) {
	tests := []struct {
		name      string
		rules     []DocumentTypeRule
		alias     string
		level     *int
		wantMatch bool
	}{
		{"alias matched", []DocumentTypeRule{{Alias: "example"}}, "example", nil, true},
		{"alias is case sensitive", []DocumentTypeRule{{Alias: "Example"}}, "example", nil, false},
		{"empty alias never matches", []DocumentTypeRule{{Alias: ""}}, "", intPtr(1), false},
		{"level matched", []DocumentTypeRule{{Alias: "example", Level: intPtr(2)}}, "example", intPtr(2), true},
		{"different level not matched", []DocumentTypeRule{{Alias: "example", Level: intPtr(2)}}, "example", intPtr(3), false},
		{"wildcard level matched", []DocumentTypeRule{{Alias: "example"}}, "example", intPtr(2), true},
		{"no query level matches levelled rule", []DocumentTypeRule{{Alias: "example", Level: intPtr(2)}}, "example", nil, true},
		{"no rules", nil, "example", intPtr(1), false},
		{"other alias", []DocumentTypeRule{{Alias: "news"}}, "example", intPtr(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewDocumentTypeRuleMatcher(tt.rules).MatchRule(tt.alias, tt.level)
			if (got != nil) != tt.wantMatch {
				t.Errorf("MatchRule(%q) = %v, want match %v", tt.alias, got, tt.wantMatch)
			}
		})
	}
}

// TestDocumentTypeRuleMatcherFirstAliasWins verifies that only the first rule
// registered for an alias is consulted.
func TestDocumentTypeRuleMatcherFirstAliasWins(t *testing.T) {
	m := NewDocumentTypeRuleMatcher([]DocumentTypeRule{
		{Alias: "example", Level: intPtr(2)},
		{Alias: "example", Level: intPtr(3)},
	})

	if got := m.MatchRule("example", intPtr(2)); got == nil || *got.Level != 2 {
		t.Errorf("MatchRule(level 2) = %v, want the level 2 rule", got)
	}
	if got := m.MatchRule("example", intPtr(3)); got != nil {
		t.Errorf("MatchRule(level 3) = %v, want nil", got)
	}
}

// TestDocumentTypeRuleMatcherCopiesInput verifies later changes to the caller's
// slice do not leak into the matcher.
func TestDocumentTypeRuleMatcherCopiesInput(t *testing.T) {
	in := []DocumentTypeRule{{Alias: "example"}}
	m := NewDocumentTypeRuleMatcher(in)
	in[0].Alias = "changed"

	if m.MatchRule("example", nil) == nil {
		t.Error("matcher should keep its own copy of the rules")
	}
}
