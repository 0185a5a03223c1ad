package main

import (
	"time"

	"github.com/liamcoop/expiry/rules"
)

// API Request and Response Models

// EvaluateRequest asks whether a node may be saved with an expiry date.
// When NodeID is set the document type, level and URL come from the content
// tree, and ExpireDate defaults to the date currently stored for the node.
type EvaluateRequest struct {
	DocumentType    string     `json:"documentType" example:"newsArticle"`
	Level           int        `json:"level" example:"3"`
	ExpireDate      *time.Time `json:"expireDate,omitempty" example:"2024-09-01T00:00:00Z"`
	URL             string     `json:"url,omitempty" example:"/news/2024/"`
	NodeID          *int       `json:"nodeId,omitempty" example:"1234"`
	PublicationTime *time.Time `json:"publicationTime,omitempty" example:"2024-03-01T09:00:00Z"`
} // @name EvaluateRequest

// EvaluateResponse is the outcome of one evaluation
type EvaluateResponse struct {
	Decision                 rules.Decision `json:"decision" example:"modify"`
	ExpireDate               *time.Time     `json:"expireDate,omitempty"`
	CancellationMessage      string         `json:"cancellationMessage,omitempty"`
	ExpireDateChangedMessage string         `json:"expireDateChangedMessage,omitempty"`
	RuleKind                 string         `json:"ruleKind" example:"document_type"`
	Rule                     string         `json:"rule,omitempty" example:"document type \"newsArticle\""`
	EvaluationTime           string         `json:"evaluationTime" example:"12µs"`
} // @name EvaluateResponse

// RuleRequest creates or replaces a stored rule definition
type RuleRequest struct {
	Kind               rules.Kind `json:"kind" example:"document_type" binding:"required"`
	Alias              string     `json:"alias,omitempty" example:"newsArticle"`
	Level              *int       `json:"level,omitempty" example:"3"`
	Path               string     `json:"path,omitempty" example:"/news/"`
	ApplyToDescendants bool       `json:"applyToDescendants,omitempty"`
	Months             int        `json:"months" example:"6"`
	Days               int        `json:"days" example:"0"`
	NeverExpire        bool       `json:"neverExpire"`
	Active             *bool      `json:"active,omitempty" example:"true"`
} // @name RuleRequest

func (r RuleRequest) definition(id string) *rules.Definition {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return &rules.Definition{
		ID:                 id,
		Kind:               r.Kind,
		Alias:              r.Alias,
		Level:              r.Level,
		Path:               r.Path,
		ApplyToDescendants: r.ApplyToDescendants,
		Months:             r.Months,
		Days:               r.Days,
		NeverExpire:        r.NeverExpire,
		Active:             active,
	}
}

// RulesListResponse represents the response for listing rules
type RulesListResponse struct {
	Rules []*rules.Definition `json:"rules"`
} // @name RulesListResponse

// EnforceRequest starts a policy walk over the whole site
type EnforceRequest struct {
	DryRun  bool `json:"dryRun"`
	Workers int  `json:"workers,omitempty" example:"8"`
} // @name EnforceRequest

// ReloadResponse reports the snapshot now in use
type ReloadResponse struct {
	Source      string    `json:"source" example:"store"`
	RulesLoaded int       `json:"rulesLoaded" example:"12"`
	LoadedAt    time.Time `json:"loadedAt"`
} // @name ReloadResponse

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error" example:"rule not found"`
	Details string `json:"details,omitempty" example:"validation failed: months 200 is out of range 0-120"`
} // @name ErrorResponse

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string    `json:"status" example:"healthy"`
	Error       string    `json:"error,omitempty"`
	RulesSource string    `json:"rulesSource,omitempty" example:"store"`
	RulesLoaded int       `json:"rulesLoaded" example:"12"`
	LoadedAt    time.Time `json:"loadedAt"`
} // @name HealthResponse
