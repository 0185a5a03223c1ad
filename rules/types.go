package rules

import (
	"fmt"
	"time"
)

// Rule is the capability shared by document-type and path rules.
// A nil MaximumExpiry means content governed by the rule must never expire.
type Rule interface {
	MaximumExpiry() *time.Duration
	Describe() string
}

// DocumentTypeRule limits the publish window of content of one document type.
// A nil Level applies the rule at every tree level.
type DocumentTypeRule struct {
	Alias   string
	Level   *int
	Maximum *time.Duration
}

// MaximumExpiry returns the maximum publish duration, or nil for never-expire.
func (r DocumentTypeRule) MaximumExpiry() *time.Duration { return r.Maximum }

// Describe returns a short human readable description of the rule.
func (r DocumentTypeRule) Describe() string {
	if r.Level == nil {
		return fmt.Sprintf("document type %q", r.Alias)
	}
	return fmt.Sprintf("document type %q at level %d", r.Alias, *r.Level)
}

// PathRule limits the publish window of content at, and optionally below, a URL path.
type PathRule struct {
	Path               string
	ApplyToDescendants bool
	Maximum            *time.Duration
}

// MaximumExpiry returns the maximum publish duration, or nil for never-expire.
func (r PathRule) MaximumExpiry() *time.Duration { return r.Maximum }

// Describe returns a short human readable description of the rule.
func (r PathRule) Describe() string {
	if r.ApplyToDescendants {
		return fmt.Sprintf("path %q and descendants", r.Path)
	}
	return fmt.Sprintf("path %q", r.Path)
}

// ContentNode is the read view of a content item the evaluator needs.
type ContentNode interface {
	DocumentTypeAlias() string
	Level() int
	ExpireDate() *time.Time
}

// EvaluationInput is a self-contained ContentNode for callers that already
// know the node's URL, such as API clients.
type EvaluationInput struct {
	DocumentType      string     `json:"documentType"`
	TreeLevel         int        `json:"level"`
	CurrentExpireDate *time.Time `json:"expireDate,omitempty"`
	ResolvedURL       string     `json:"url,omitempty"`
}

func (in EvaluationInput) DocumentTypeAlias() string { return in.DocumentType }
func (in EvaluationInput) Level() int                { return in.TreeLevel }
func (in EvaluationInput) ExpireDate() *time.Time    { return in.CurrentExpireDate }

// Decision summarises an EvaluationResult.
type Decision string

const (
	DecisionAllow  Decision = "allow"
	DecisionModify Decision = "modify"
	DecisionReject Decision = "reject"
)

// EvaluationResult is the outcome of applying the expiry rules to one node.
// At most one of CancellationMessage and ExpireDateChangedMessage is set.
// ExpireDate holds the date the save should proceed with.
type EvaluationResult struct {
	CancellationMessage      string
	ExpireDateChangedMessage string
	ExpireDate               *time.Time
	MatchedRule              Rule
}

// Decision reports whether the save is allowed as-is, modified, or rejected.
func (r *EvaluationResult) Decision() Decision {
	switch {
	case r.CancellationMessage != "":
		return DecisionReject
	case r.ExpireDateChangedMessage != "":
		return DecisionModify
	default:
		return DecisionAllow
	}
}
