package rules

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func durPtr(d time.Duration) *time.Duration { return &d }
func timePtr(t time.Time) *time.Time        { return &t }

const day = 24 * time.Hour

var publishedAt = time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

func failingResolver() NodeURLResolver {
	return URLResolverFunc(func(ContentNode) (string, error) {
		return "", errors.New("resolver should not be called")
	})
}

func evaluate(t *testing.T, def *time.Duration, docRules []DocumentTypeRule, pathRules []PathRule, node EvaluationInput) *EvaluationResult {
	t.Helper()
	result, err := ApplyExpiryRules(publishedAt, def,
		NewDocumentTypeRuleMatcher(docRules), NewPathRuleMatcher(pathRules),
		node, InputURLResolver{})
	if err != nil {
		t.Fatalf("ApplyExpiryRules() error = %v", err)
	}
	return result
}

// TestApplyExpiryRulesClampsToDefault verifies a date beyond the default window
// is brought back to the ceiling.
func TestApplyExpiryRulesClampsToDefault(t *testing.T) {
	node := EvaluationInput{DocumentType: "page", TreeLevel: 2, CurrentExpireDate: timePtr(publishedAt.Add(60 * day)), ResolvedURL: "/page/"}

	result := evaluate(t, durPtr(30*day), nil, nil, node)

	want := time.Date(2018, 1, 31, 0, 0, 0, 0, time.UTC)
	if result.ExpireDate == nil || !result.ExpireDate.Equal(want) {
		t.Errorf("ExpireDate = %v, want %v", result.ExpireDate, want)
	}
	if result.ExpireDateChangedMessage == "" {
		t.Error("ExpireDateChangedMessage should be set")
	}
	if result.CancellationMessage != "" {
		t.Errorf("CancellationMessage = %q, want empty", result.CancellationMessage)
	}
	wantMsg := "The 'Unpublish at' date is too far into the future. The date has been set to: 31 January 2018 12.00am. You can refresh the page to see the new date."
	if result.ExpireDateChangedMessage != wantMsg {
		t.Errorf("ExpireDateChangedMessage = %q, want %q", result.ExpireDateChangedMessage, wantMsg)
	}
	if result.Decision() != DecisionModify {
		t.Errorf("Decision() = %s, want %s", result.Decision(), DecisionModify)
	}
}

// TestApplyExpiryRulesNeverExpireRejectsDate verifies a never-expire rule
// cancels a save that carries a date.
func TestApplyExpiryRulesNeverExpireRejectsDate(t *testing.T) {
	current := time.Date(2018, 2, 10, 0, 0, 0, 0, time.UTC)
	node := EvaluationInput{DocumentType: "example", TreeLevel: 1, CurrentExpireDate: &current}

	result := evaluate(t, durPtr(30*day), []DocumentTypeRule{{Alias: "example"}}, nil, node)

	if !strings.Contains(result.CancellationMessage, "cannot enter an 'Unpublish at' date") {
		t.Errorf("CancellationMessage = %q", result.CancellationMessage)
	}
	if result.ExpireDate == nil || !result.ExpireDate.Equal(current) {
		t.Errorf("ExpireDate = %v, want unchanged %v", result.ExpireDate, current)
	}
	if result.ExpireDateChangedMessage != "" {
		t.Errorf("ExpireDateChangedMessage = %q, want empty", result.ExpireDateChangedMessage)
	}
	if result.Decision() != DecisionReject {
		t.Errorf("Decision() = %s, want %s", result.Decision(), DecisionReject)
	}
}

// TestApplyExpiryRulesNeverExpireWithoutDate verifies never-expire content
// without a date is accepted and the default is not applied.
func TestApplyExpiryRulesNeverExpireWithoutDate(t *testing.T) {
	node := EvaluationInput{DocumentType: "example", TreeLevel: 1}

	result := evaluate(t, durPtr(30*day), []DocumentTypeRule{{Alias: "example"}}, nil, node)

	if result.ExpireDate != nil || result.Decision() != DecisionAllow {
		t.Errorf("result = %+v, want unchanged with no date", result)
	}
}

// TestApplyExpiryRulesNoRuleNoDefault verifies unconstrained content is left alone.
func TestApplyExpiryRulesNoRuleNoDefault(t *testing.T) {
	result := evaluate(t, nil, nil, nil, EvaluationInput{DocumentType: "page", TreeLevel: 1})

	if result.ExpireDate != nil {
		t.Errorf("ExpireDate = %v, want nil", result.ExpireDate)
	}
	if result.CancellationMessage != "" || result.ExpireDateChangedMessage != "" {
		t.Errorf("messages should be empty, got %+v", result)
	}
}

// TestApplyExpiryRulesRequiredField verifies a missing date is set to the ceiling.
func TestApplyExpiryRulesRequiredField(t *testing.T) {
	result := evaluate(t, durPtr(30*day), nil, nil, EvaluationInput{DocumentType: "page", TreeLevel: 1})

	want := publishedAt.Add(30 * day)
	if result.ExpireDate == nil || !result.ExpireDate.Equal(want) {
		t.Fatalf("ExpireDate = %v, want %v", result.ExpireDate, want)
	}
	wantMsg := "The 'Unpublish at' date is a required field. The date has been set to 31 January 2018 12.00am. You can refresh the page to see the new date."
	if result.ExpireDateChangedMessage != wantMsg {
		t.Errorf("ExpireDateChangedMessage = %q, want %q", result.ExpireDateChangedMessage, wantMsg)
	}
}

// TestApplyExpiryRulesWithinCeiling verifies dates at or before the ceiling pass.
func TestApplyExpiryRulesWithinCeiling(t *testing.T) {
	for _, offset := range []time.Duration{day, 29 * day, 30 * day} {
		current := publishedAt.Add(offset)
		result := evaluate(t, durPtr(30*day), nil, nil, EvaluationInput{DocumentType: "page", CurrentExpireDate: &current})

		if result.Decision() != DecisionAllow {
			t.Errorf("offset %v: Decision() = %s, want allow", offset, result.Decision())
		}
		if !result.ExpireDate.Equal(current) {
			t.Errorf("offset %v: ExpireDate = %v, want %v", offset, result.ExpireDate, current)
		}
	}
}

// TestApplyExpiryRulesDocumentTypeBeatsPath verifies the lookup order.
func TestApplyExpiryRulesDocumentTypeBeatsPath(t *testing.T) {
	docRules := []DocumentTypeRule{{Alias: "news", Maximum: durPtr(10 * day)}}
	pathRules := []PathRule{{Path: "/news/", ApplyToDescendants: true, Maximum: durPtr(60 * day)}}
	node := EvaluationInput{DocumentType: "news", TreeLevel: 2}

	result, err := ApplyExpiryRules(publishedAt, nil,
		NewDocumentTypeRuleMatcher(docRules), NewPathRuleMatcher(pathRules), node, failingResolver())
	if err != nil {
		t.Fatalf("ApplyExpiryRules() error = %v", err)
	}

	if want := publishedAt.Add(10 * day); !result.ExpireDate.Equal(want) {
		t.Errorf("ExpireDate = %v, want %v", result.ExpireDate, want)
	}
	if _, ok := result.MatchedRule.(DocumentTypeRule); !ok {
		t.Errorf("MatchedRule = %T, want DocumentTypeRule", result.MatchedRule)
	}
}

// TestApplyExpiryRulesPathUsesLowerCasedURL verifies URLs are compared in lower case.
func TestApplyExpiryRulesPathUsesLowerCasedURL(t *testing.T) {
	pathRules := []PathRule{{Path: "/news/", ApplyToDescendants: true, Maximum: durPtr(60 * day)}}
	node := EvaluationInput{DocumentType: "page", TreeLevel: 2, ResolvedURL: "/News/Item-One"}

	result := evaluate(t, durPtr(10*day), nil, pathRules, node)

	if want := publishedAt.Add(60 * day); !result.ExpireDate.Equal(want) {
		t.Errorf("ExpireDate = %v, want %v", result.ExpireDate, want)
	}
}

// TestApplyExpiryRulesMatchedRuleOverridesDefault verifies the default only
// applies when nothing matches.
func TestApplyExpiryRulesMatchedRuleOverridesDefault(t *testing.T) {
	current := publishedAt.Add(20 * day)
	node := EvaluationInput{DocumentType: "event", TreeLevel: 3, CurrentExpireDate: &current}

	result := evaluate(t, durPtr(10*day), []DocumentTypeRule{{Alias: "event", Maximum: durPtr(90 * day)}}, nil, node)

	if result.Decision() != DecisionAllow {
		t.Errorf("Decision() = %s, want allow", result.Decision())
	}
}

// TestApplyExpiryRulesMissingCollaborators verifies nil collaborators fail fast.
func TestApplyExpiryRulesMissingCollaborators(t *testing.T) {
	docs := NewDocumentTypeRuleMatcher(nil)
	paths := NewPathRuleMatcher(nil)
	node := EvaluationInput{DocumentType: "page"}
	var nilMatcher *PathRuleMatcher

	tests := []struct {
		name  string
		docs  DocumentTypeMatcher
		paths PathMatcher
		node  ContentNode
		urls  NodeURLResolver
	}{
		{"no document type matcher", nil, paths, node, InputURLResolver{}},
		{"no path matcher", docs, nil, node, InputURLResolver{}},
		{"typed nil path matcher", docs, nilMatcher, node, InputURLResolver{}},
		{"no node", docs, paths, nil, InputURLResolver{}},
		{"no resolver", docs, paths, node, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ApplyExpiryRules(publishedAt, nil, tt.docs, tt.paths, tt.node, tt.urls)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

// TestApplyExpiryRulesResolverError verifies URL failures reach the caller.
func TestApplyExpiryRulesResolverError(t *testing.T) {
	_, err := ApplyExpiryRules(publishedAt, nil,
		NewDocumentTypeRuleMatcher(nil), NewPathRuleMatcher(nil),
		EvaluationInput{DocumentType: "page"}, failingResolver())
	if err == nil {
		t.Fatal("expected an error from the resolver")
	}
}

// TestEvaluateDisabledRuleSet verifies a disabled policy accepts everything.
func TestEvaluateDisabledRuleSet(t *testing.T) {
	rs, err := NewRuleSet(false, []DocumentTypeRule{{Alias: "page"}}, nil, durPtr(day))
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}
	current := publishedAt.Add(365 * day)

	result, err := Evaluate(rs, publishedAt, EvaluationInput{DocumentType: "page", CurrentExpireDate: &current}, InputURLResolver{})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if result.Decision() != DecisionAllow {
		t.Errorf("Decision() = %s, want allow", result.Decision())
	}
}

func TestFormatMessageDate(t *testing.T) {
	tests := []struct {
		in   time.Time
		want string
	}{
		{time.Date(2025, 1, 30, 14, 30, 0, 0, time.UTC), "30 January 2025 2.30pm"},
		{time.Date(2025, 1, 5, 9, 5, 0, 0, time.UTC), "5 January 2025 9.05am"},
		{time.Date(2018, 1, 31, 0, 0, 0, 0, time.UTC), "31 January 2018 12.00am"},
		{time.Date(2018, 7, 1, 12, 0, 0, 0, time.UTC), "1 July 2018 12.00pm"},
	}
	for _, tt := range tests {
		if got := FormatMessageDate(tt.in); got != tt.want {
			t.Errorf("FormatMessageDate(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
