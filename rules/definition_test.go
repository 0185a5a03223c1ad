package rules

import (
	"errors"
	"testing"
	"time"
)

// TestMaximumFor verifies calendar windows convert relative to the base date.
func TestMaximumFor(t *testing.T) {
	base := time.Date(2018, 1, 31, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		months int
		days   int
		never  bool
		want   *time.Duration
	}{
		{"never", 6, 0, true, nil},
		{"empty window", 0, 0, false, nil},
		{"days only", 0, 10, false, durPtr(10 * day)},
		// 31 Jan + 1 month normalises to 3 March in a non leap year.
		{"one month from end of january", 1, 0, false, durPtr(31 * day)},
		{"months and days", 1, 1, false, durPtr(32 * day)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaximumFor(base, tt.months, tt.days, tt.never)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("MaximumFor() = %v, want nil", *got)
			case tt.want != nil && (got == nil || *got != *tt.want):
				t.Errorf("MaximumFor() = %v, want %v", got, *tt.want)
			}
		})
	}
}

// TestSettingsDefaultMaximum verifies allow-never disables the default.
func TestSettingsDefaultMaximum(t *testing.T) {
	base := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)

	if got := (Settings{DefaultMonths: 1, AllowNeverExpire: true}).DefaultMaximum(base); got != nil {
		t.Errorf("DefaultMaximum() = %v, want nil when pages may never expire", *got)
	}
	if got := (Settings{DefaultMonths: 1}).DefaultMaximum(base); got == nil || *got != 31*day {
		t.Errorf("DefaultMaximum() = %v, want 31 days", got)
	}
}

// TestBuildRuleSet verifies conversion, de-duplication and path normalization.
func TestBuildRuleSet(t *testing.T) {
	base := time.Date(2018, 1, 1, 0, 0, 0, 0, time.UTC)
	defs := []*Definition{
		{ID: "1", Kind: KindDocumentType, Alias: "news", Days: 7, Active: true},
		{ID: "2", Kind: KindDocumentType, Alias: "news", Days: 99, Active: true},
		{ID: "3", Kind: KindDocumentType, Alias: "news", Level: intPtr(2), NeverExpire: true, Active: true},
		{ID: "7", Kind: KindDocumentType, Alias: "landing", Level: intPtr(2), NeverExpire: true, Active: true},
		{ID: "4", Kind: KindPath, Path: "/About-Us", ApplyToDescendants: true, Months: 12, Active: true},
		{ID: "5", Kind: KindPath, Path: "/about-us/", Days: 1, Active: true},
		{ID: "6", Kind: KindPath, Path: "/inactive/", Days: 1, Active: false},
		nil,
	}

	rs, err := BuildRuleSet(Settings{Enabled: true, DefaultMonths: 6}, defs, base)
	if err != nil {
		t.Fatalf("BuildRuleSet() error = %v", err)
	}

	docRules := rs.DocumentTypeRules()
	if len(docRules) != 2 {
		t.Fatalf("got %d document type rules, want 2", len(docRules))
	}
	if *docRules[0].Maximum != 7*day {
		t.Errorf("first news rule should win, got maximum %v", *docRules[0].Maximum)
	}
	if docRules[0].Level != nil {
		t.Errorf("a repeated news alias at level 2 should have been skipped, got level %d", *docRules[0].Level)
	}
	if docRules[1].Alias != "landing" || docRules[1].Maximum != nil {
		t.Errorf("second rule = %+v, want landing that never expires", docRules[1])
	}

	pathRules := rs.PathRules()
	if len(pathRules) != 1 {
		t.Fatalf("got %d path rules, want 1", len(pathRules))
	}
	if pathRules[0].Path != "/about-us/" || !pathRules[0].ApplyToDescendants {
		t.Errorf("path rule = %+v, want lower-cased /about-us/ with descendants", pathRules[0])
	}

	if def := rs.DefaultMaximumExpiry(); def == nil || *def != base.AddDate(0, 6, 0).Sub(base) {
		t.Errorf("DefaultMaximumExpiry() = %v", def)
	}
}

// TestNewRuleSetRejectsDuplicates verifies duplicate keys are a precondition error.
func TestNewRuleSetRejectsDuplicates(t *testing.T) {
	_, err := NewRuleSet(true, []DocumentTypeRule{{Alias: "a"}, {Alias: "a"}}, nil, nil)
	if !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("duplicate alias: error = %v, want ErrDuplicateRule", err)
	}

	_, err = NewRuleSet(true, nil, []PathRule{{Path: "/a"}, {Path: "/a/"}}, nil)
	if !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("duplicate path: error = %v, want ErrDuplicateRule", err)
	}

	// Only the first rule for an alias is ever matched, so a second one at
	// another level is a duplicate too.
	_, err = NewRuleSet(true, []DocumentTypeRule{{Alias: "a", Level: intPtr(2)}, {Alias: "a", Level: intPtr(3)}}, nil, nil)
	if !errors.Is(err, ErrDuplicateRule) {
		t.Errorf("same alias at another level: error = %v, want ErrDuplicateRule", err)
	}
}

// TestRuleSetAccessorsReturnCopies verifies callers cannot change a snapshot.
func TestRuleSetAccessorsReturnCopies(t *testing.T) {
	rs, err := NewRuleSet(true, []DocumentTypeRule{{Alias: "a"}}, []PathRule{{Path: "/a"}}, durPtr(day))
	if err != nil {
		t.Fatalf("NewRuleSet() error = %v", err)
	}

	rs.DocumentTypeRules()[0].Alias = "changed"
	rs.PathRules()[0].Path = "/changed/"
	*rs.DefaultMaximumExpiry() = 0

	if rs.DocumentTypeRules()[0].Alias != "a" || rs.PathRules()[0].Path != "/a/" || *rs.DefaultMaximumExpiry() != day {
		t.Error("RuleSet snapshot was modified through an accessor")
	}
}

func TestValidateDefinition(t *testing.T) {
	tests := []struct {
		name    string
		def     *Definition
		wantErr bool
	}{
		{"valid document type", &Definition{Kind: KindDocumentType, Alias: "newsArticle", Months: 6}, false},
		{"valid never expire", &Definition{Kind: KindDocumentType, Alias: "home", NeverExpire: true}, false},
		{"valid path", &Definition{Kind: KindPath, Path: "/news/", ApplyToDescendants: true, Days: 30}, false},
		{"nil", nil, true},
		{"unknown kind", &Definition{Kind: "tag", Alias: "x", Days: 1}, true},
		{"bad alias", &Definition{Kind: KindDocumentType, Alias: "9news", Days: 1}, true},
		{"alias with path", &Definition{Kind: KindDocumentType, Alias: "news", Path: "/n/", Days: 1}, true},
		{"negative level", &Definition{Kind: KindDocumentType, Alias: "news", Level: intPtr(-1), Days: 1}, true},
		{"relative path", &Definition{Kind: KindPath, Path: "news/", Days: 1}, true},
		{"path with query", &Definition{Kind: KindPath, Path: "/news?x=1", Days: 1}, true},
		{"path with level", &Definition{Kind: KindPath, Path: "/news/", Level: intPtr(1), Days: 1}, true},
		{"never with window", &Definition{Kind: KindPath, Path: "/news/", NeverExpire: true, Days: 1}, true},
		{"empty window", &Definition{Kind: KindPath, Path: "/news/"}, true},
		{"too many months", &Definition{Kind: KindPath, Path: "/news/", Months: 121}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDefinition(tt.def)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateDefinition() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
