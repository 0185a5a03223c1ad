package notifier

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/liamcoop/expiry/content"
)

// DefaultEscalation matches pages expiring within days+1 days, the window
// the administrator's last warning has always covered.
func DefaultEscalation(days int) string {
	return fmt.Sprintf("page.has_expiry && page.days_until_expiry <= %d.0", days+1)
}

// EscalationFilter picks the pages that go into the administrator's last
// warning. The expression sees one variable, page, with the fields id,
// name, url, has_expiry and days_until_expiry (a double; infinite for pages
// that never expire).
type EscalationFilter struct {
	expression string
	program    cel.Program
}

func NewEscalationFilter(expression string) (*EscalationFilter, error) {
	env, err := cel.NewEnv(
		cel.Variable("page", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) && !ast.OutputType().IsExactType(cel.DynType) {
		return nil, fmt.Errorf("escalation expression must return bool, got %s", ast.OutputType())
	}

	prog, err := env.Program(ast, cel.CostLimit(1000000))
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return &EscalationFilter{expression: expression, program: prog}, nil
}

func (f *EscalationFilter) String() string { return f.expression }

// Match reports whether page should be escalated. Evaluation errors and
// non-boolean results count as no match.
func (f *EscalationFilter) Match(page content.Page, now time.Time) bool {
	days := math.Inf(1)
	if page.ExpiryDate != nil {
		days = page.ExpiryDate.Sub(now).Hours() / 24
	}
	out, _, err := f.program.Eval(map[string]any{
		"page": map[string]any{
			"id":                int64(page.ID),
			"name":              page.Name,
			"url":               page.URL,
			"has_expiry":        page.ExpiryDate != nil,
			"days_until_expiry": days,
		},
	})
	if err != nil {
		slog.Debug("escalation expression failed", slog.Int("page_id", page.ID), slog.String("err", err.Error()))
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

// Escalate collects the matching pages from every bucket, once each,
// ordered by expiry date.
func (f *EscalationFilter) Escalate(users []*PagesForUser, now time.Time) []content.Page {
	seen := map[int]struct{}{}
	var pages []content.Page
	for _, u := range users {
		for _, p := range u.Pages {
			if _, ok := seen[p.ID]; ok || !f.Match(p, now) {
				continue
			}
			seen[p.ID] = struct{}{}
			pages = append(pages, p)
		}
	}
	slices.SortStableFunc(pages, func(a, b content.Page) int {
		switch {
		case a.ExpiryDate == nil && b.ExpiryDate == nil:
			return 0
		case a.ExpiryDate == nil:
			return 1
		case b.ExpiryDate == nil:
			return -1
		}
		return a.ExpiryDate.Compare(*b.ExpiryDate)
	})
	return pages
}
