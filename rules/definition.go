package rules

import (
	"log/slog"
	"strings"
	"time"
)

// Kind identifies what a Definition matches on.
type Kind string

const (
	KindDocumentType Kind = "document_type"
	KindPath         Kind = "path"
)

// Definition is an editable, persisted expiry rule. Durations are held as
// calendar months and days and converted when a RuleSet is built.
type Definition struct {
	ID                 string    `json:"id"`
	Kind               Kind      `json:"kind"`
	Alias              string    `json:"alias,omitempty"`
	Level              *int      `json:"level,omitempty"`
	Path               string    `json:"path,omitempty"`
	ApplyToDescendants bool      `json:"applyToDescendants,omitempty"`
	Months             int       `json:"months"`
	Days               int       `json:"days"`
	NeverExpire        bool      `json:"neverExpire"`
	Active             bool      `json:"active"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Settings holds the site-wide expiry policy.
type Settings struct {
	Enabled          bool `json:"enabled"`
	DefaultMonths    int  `json:"defaultMonths"`
	DefaultDays      int  `json:"defaultDays"`
	AllowNeverExpire bool `json:"allowNeverExpire"`
}

// DefaultSettings enables the policy with a six month default window.
func DefaultSettings() Settings {
	return Settings{Enabled: true, DefaultMonths: 6}
}

// MaximumFor converts a calendar window to a duration measured from base.
// It returns nil, meaning never expire, when never is set or the window is empty.
func MaximumFor(base time.Time, months, days int, never bool) *time.Duration {
	if never || (months <= 0 && days <= 0) {
		return nil
	}
	d := base.AddDate(0, months, days).Sub(base)
	return &d
}

// DefaultMaximum returns the default window for s, or nil when content may
// be left without an expire date.
func (s Settings) DefaultMaximum(base time.Time) *time.Duration {
	return MaximumFor(base, s.DefaultMonths, s.DefaultDays, s.AllowNeverExpire)
}

// BuildRuleSet converts active definitions into a snapshot using base as the
// reference time for calendar arithmetic. Paths are lower-cased. When two
// definitions share a match key the first one wins and the other is logged
// and skipped.
func BuildRuleSet(settings Settings, defs []*Definition, base time.Time) (*RuleSet, error) {
	var (
		docRules  []DocumentTypeRule
		pathRules []PathRule
		seenDoc   = make(map[string]string)
		seenPath  = make(map[string]string)
	)

	for _, d := range defs {
		if d == nil || !d.Active {
			continue
		}
		maximum := MaximumFor(base, d.Months, d.Days, d.NeverExpire)

		switch d.Kind {
		case KindDocumentType:
			if first, dup := seenDoc[d.Alias]; dup {
				slog.Warn("skipping document type rule with a repeated alias",
					slog.String("id", d.ID),
					slog.String("alias", d.Alias),
					slog.String("kept", first))
				continue
			}
			seenDoc[d.Alias] = d.ID
			rule := DocumentTypeRule{Alias: d.Alias, Level: copyInt(d.Level), Maximum: maximum}
			docRules = append(docRules, rule)

		case KindPath:
			rule := PathRule{
				Path:               NormalizePath(strings.ToLower(d.Path)),
				ApplyToDescendants: d.ApplyToDescendants,
				Maximum:            maximum,
			}
			if first, dup := seenPath[rule.Path]; dup {
				slog.Warn("skipping path rule with a repeated path",
					slog.String("id", d.ID),
					slog.String("path", rule.Path),
					slog.String("kept", first))
				continue
			}
			seenPath[rule.Path] = d.ID
			pathRules = append(pathRules, rule)
		}
	}

	return NewRuleSet(settings.Enabled, docRules, pathRules, settings.DefaultMaximum(base))
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}
