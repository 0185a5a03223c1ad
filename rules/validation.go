package rules

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxIdentifierLength = 100
	maxPathLength       = 500
	maxLevel            = 100
	maxMonths           = 120
	maxDays             = 3650
)

var aliasPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateDefinition checks a definition before it is stored.
func ValidateDefinition(def *Definition) error {
	if def == nil {
		return fmt.Errorf("%w: definition is required", ErrInvalidArgument)
	}

	switch def.Kind {
	case KindDocumentType:
		if err := validateAlias(def.Alias); err != nil {
			return fmt.Errorf("invalid alias %q: %w", def.Alias, err)
		}
		if def.Path != "" || def.ApplyToDescendants {
			return fmt.Errorf("document type rule %q cannot set a path", def.Alias)
		}
		if def.Level != nil && (*def.Level < 0 || *def.Level > maxLevel) {
			return fmt.Errorf("level %d is out of range 0-%d", *def.Level, maxLevel)
		}
	case KindPath:
		if err := validatePath(def.Path); err != nil {
			return fmt.Errorf("invalid path %q: %w", def.Path, err)
		}
		if def.Alias != "" || def.Level != nil {
			return fmt.Errorf("path rule %q cannot set an alias or level", def.Path)
		}
	default:
		return fmt.Errorf("unknown rule kind %q (must be %s or %s)", def.Kind, KindDocumentType, KindPath)
	}

	return ValidateWindow(def.Months, def.Days, def.NeverExpire)
}

// ValidateWindow checks a months/days window. A never-expire rule must not
// also set a window, and any other rule needs a positive one.
func ValidateWindow(months, days int, never bool) error {
	if months < 0 || months > maxMonths {
		return fmt.Errorf("months %d is out of range 0-%d", months, maxMonths)
	}
	if days < 0 || days > maxDays {
		return fmt.Errorf("days %d is out of range 0-%d", days, maxDays)
	}
	if never && (months > 0 || days > 0) {
		return fmt.Errorf("a never-expire rule cannot set months or days")
	}
	if !never && months == 0 && days == 0 {
		return fmt.Errorf("months or days must be set unless the rule never expires")
	}
	return nil
}

// ValidateSettings checks the site-wide defaults.
func ValidateSettings(s Settings) error {
	if s.DefaultMonths < 0 || s.DefaultMonths > maxMonths {
		return fmt.Errorf("default months %d is out of range 0-%d", s.DefaultMonths, maxMonths)
	}
	if s.DefaultDays < 0 || s.DefaultDays > maxDays {
		return fmt.Errorf("default days %d is out of range 0-%d", s.DefaultDays, maxDays)
	}
	return nil
}

func validateAlias(alias string) error {
	if alias == "" {
		return fmt.Errorf("alias cannot be empty")
	}
	if len(alias) > maxIdentifierLength {
		return fmt.Errorf("alias length %d exceeds maximum of %d characters", len(alias), maxIdentifierLength)
	}
	if !aliasPattern.MatchString(alias) {
		return fmt.Errorf("must match pattern %s", aliasPattern)
	}
	return nil
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if len(path) > maxPathLength {
		return fmt.Errorf("path length %d exceeds maximum of %d characters", len(path), maxPathLength)
	}
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("path must start with '/'")
	}
	if strings.ContainsAny(path, " \t\r\n?#") {
		return fmt.Errorf("path cannot contain whitespace, query or fragment")
	}
	return nil
}

// MatchKey identifies the definitions that would collide in a RuleSet.
// Document type rules collide on alias whatever their level.
func MatchKey(def *Definition) string {
	switch def.Kind {
	case KindDocumentType:
		return string(def.Kind) + ":" + def.Alias
	case KindPath:
		return string(def.Kind) + ":" + NormalizePath(strings.ToLower(def.Path))
	}
	return string(def.Kind) + ":" + def.ID
}
