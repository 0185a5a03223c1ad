package rules

import "errors"

var (
	// ErrInvalidArgument is returned when a required collaborator is missing.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateRule is returned when a rule set repeats a match key.
	ErrDuplicateRule = errors.New("duplicate rule")

	// ErrRuleNotFound is returned by stores for unknown rule ids.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists is returned by stores when an id is already taken.
	ErrRuleExists = errors.New("rule already exists")

	// ErrValidation wraps definition and settings validation failures.
	ErrValidation = errors.New("validation failed")
)
