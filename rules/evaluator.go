package rules

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MessageNeverExpire rejects a save that sets a date on never-expiring content.
	MessageNeverExpire = "You cannot enter an 'Unpublish at' date for this page."

	messageRequired = "The 'Unpublish at' date is a required field. The date has been set to %s. You can refresh the page to see the new date."
	messageTooFar   = "The 'Unpublish at' date is too far into the future. The date has been set to: %s. You can refresh the page to see the new date."
)

// ApplyExpiryRules decides what expire date a node may be saved with when it is
// published at publicationTime.
//
// Document-type rules are consulted first; the path matcher is only asked, with
// the node's lower-cased URL, when no document-type rule matches. When neither
// matches, defaultMaximum bounds the publish window. A nil defaultMaximum
// leaves unmatched content unconstrained.
//
// A missing matcher, node or resolver is a caller bug and is reported as
// ErrInvalidArgument. A URL resolver failure is returned as-is.
func ApplyExpiryRules(publicationTime time.Time, defaultMaximum *time.Duration, docTypes DocumentTypeMatcher, paths PathMatcher, node ContentNode, urls NodeURLResolver) (*EvaluationResult, error) {
	switch {
	case isNil(docTypes):
		return nil, fmt.Errorf("%w: document type matcher is required", ErrInvalidArgument)
	case isNil(paths):
		return nil, fmt.Errorf("%w: path matcher is required", ErrInvalidArgument)
	case isNil(node):
		return nil, fmt.Errorf("%w: content node is required", ErrInvalidArgument)
	case isNil(urls):
		return nil, fmt.Errorf("%w: url resolver is required", ErrInvalidArgument)
	}

	matched, err := matchRule(docTypes, paths, node, urls)
	if err != nil {
		return nil, err
	}

	current := node.ExpireDate()
	result := &EvaluationResult{ExpireDate: current, MatchedRule: matched}

	var maximum *time.Duration
	if matched != nil {
		maximum = matched.MaximumExpiry()
		if maximum == nil && current != nil {
			result.CancellationMessage = MessageNeverExpire
			return result, nil
		}
	} else {
		maximum = defaultMaximum
	}

	if maximum == nil {
		return result, nil
	}

	ceiling := publicationTime.Add(*maximum)
	switch {
	case current == nil:
		result.ExpireDate = &ceiling
		result.ExpireDateChangedMessage = fmt.Sprintf(messageRequired, FormatMessageDate(ceiling))
	case current.After(ceiling):
		result.ExpireDate = &ceiling
		result.ExpireDateChangedMessage = fmt.Sprintf(messageTooFar, FormatMessageDate(ceiling))
	}
	return result, nil
}

// MatchRule returns the rule governing node, or nil when none applies.
func MatchRule(docTypes DocumentTypeMatcher, paths PathMatcher, node ContentNode, urls NodeURLResolver) (Rule, error) {
	if isNil(docTypes) || isNil(paths) || isNil(node) || isNil(urls) {
		return nil, fmt.Errorf("%w: matchers, node and resolver are required", ErrInvalidArgument)
	}
	return matchRule(docTypes, paths, node, urls)
}

func matchRule(docTypes DocumentTypeMatcher, paths PathMatcher, node ContentNode, urls NodeURLResolver) (Rule, error) {
	level := node.Level()
	if rule := docTypes.MatchRule(node.DocumentTypeAlias(), &level); rule != nil {
		return *rule, nil
	}

	url, err := urls.NodeURL(node)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve node url: %w", err)
	}
	if rule := paths.MatchRule(strings.ToLower(url)); rule != nil {
		return *rule, nil
	}
	return nil, nil
}

// Evaluate applies the rules exposed by provider to node.
func Evaluate(provider RuleProvider, publicationTime time.Time, node ContentNode, urls NodeURLResolver) (*EvaluationResult, error) {
	if isNil(provider) {
		return nil, fmt.Errorf("%w: rule provider is required", ErrInvalidArgument)
	}
	if rs, ok := provider.(*RuleSet); ok {
		return ApplyExpiryRules(publicationTime, rs.DefaultMaximumExpiry(), rs.docTypes, rs.paths, node, urls)
	}
	return ApplyExpiryRules(
		publicationTime,
		provider.DefaultMaximumExpiry(),
		NewDocumentTypeRuleMatcher(provider.DocumentTypeRules()),
		NewPathRuleMatcher(provider.PathRules()),
		node,
		urls,
	)
}
