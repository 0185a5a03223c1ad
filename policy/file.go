// Package policy keeps the active expiry policy current and applies it:
// to a single page at publish time, or to the whole site in one walk.
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/liamcoop/expiry/rules"
	"gopkg.in/yaml.v3"
)

// File is the YAML rules file.
//
//	enabled: true
//	default:
//	  months: 6
//	document_types:
//	  - aliases: [homepage, landing]
//	    never_expire: true
//	  - aliases: [news]
//	    level: 3
//	    months: 12
//	paths:
//	  - paths: [/schools/]
//	    apply_to_descendants: true
//	    days: 90
type File struct {
	Enabled       *bool               `yaml:"enabled"`
	Default       DefaultWindow       `yaml:"default"`
	DocumentTypes []DocumentTypeEntry `yaml:"document_types"`
	Paths         []PathEntry         `yaml:"paths"`
}

type DefaultWindow struct {
	Months           int  `yaml:"months"`
	Days             int  `yaml:"days"`
	AllowNeverExpire bool `yaml:"allow_never_expire"`
}

// DocumentTypeEntry applies one window to several aliases. A missing level
// matches every level.
type DocumentTypeEntry struct {
	Aliases     []string `yaml:"aliases"`
	Level       *int     `yaml:"level"`
	Months      int      `yaml:"months"`
	Days        int      `yaml:"days"`
	NeverExpire bool     `yaml:"never_expire"`
}

type PathEntry struct {
	Paths              []string `yaml:"paths"`
	ApplyToDescendants bool     `yaml:"apply_to_descendants"`
	Months             int      `yaml:"months"`
	Days               int      `yaml:"days"`
	NeverExpire        bool     `yaml:"never_expire"`
}

// ParseFile decodes a rules file. Unknown keys are rejected.
func ParseFile(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return &f, nil
}

// LoadFile reads and parses the rules file at path.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseFile(data)
}

// Settings returns the site-wide settings described by the file. A file
// that does not mention enabled is enabled.
func (f *File) Settings() rules.Settings {
	enabled := true
	if f.Enabled != nil {
		enabled = *f.Enabled
	}
	return rules.Settings{
		Enabled:          enabled,
		DefaultMonths:    f.Default.Months,
		DefaultDays:      f.Default.Days,
		AllowNeverExpire: f.Default.AllowNeverExpire,
	}
}

// Definitions expands the file into one definition per alias and per path,
// in file order.
func (f *File) Definitions() []*rules.Definition {
	var defs []*rules.Definition
	for _, e := range f.DocumentTypes {
		for _, alias := range e.Aliases {
			id := "file:document_type:" + alias
			if e.Level != nil {
				id += ":" + strconv.Itoa(*e.Level)
			}
			def := &rules.Definition{
				ID:          id,
				Kind:        rules.KindDocumentType,
				Alias:       alias,
				Months:      e.Months,
				Days:        e.Days,
				NeverExpire: e.NeverExpire,
				Active:      true,
			}
			if e.Level != nil {
				level := *e.Level
				def.Level = &level
			}
			defs = append(defs, def)
		}
	}
	for _, e := range f.Paths {
		for _, path := range e.Paths {
			defs = append(defs, &rules.Definition{
				ID:                 "file:path:" + path,
				Kind:               rules.KindPath,
				Path:               path,
				ApplyToDescendants: e.ApplyToDescendants,
				Months:             e.Months,
				Days:               e.Days,
				NeverExpire:        e.NeverExpire,
				Active:             true,
			})
		}
	}
	return defs
}

// ValidateFile reports every problem in the file, not just the first.
func ValidateFile(f *File) error {
	var errs []error

	if err := rules.ValidateSettings(f.Settings()); err != nil {
		errs = append(errs, fmt.Errorf("default: %w", err))
	}
	for i, e := range f.DocumentTypes {
		if len(e.Aliases) == 0 {
			errs = append(errs, fmt.Errorf("document_types[%d]: at least one alias is required", i))
		}
	}
	for i, e := range f.Paths {
		if len(e.Paths) == 0 {
			errs = append(errs, fmt.Errorf("paths[%d]: at least one path is required", i))
		}
	}

	seen := make(map[string]string)
	for _, def := range f.Definitions() {
		if err := rules.ValidateDefinition(def); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", def.ID, err))
			continue
		}
		key := rules.MatchKey(def)
		if first, ok := seen[key]; ok {
			errs = append(errs, fmt.Errorf("%s: %w: already defined by %s", def.ID, rules.ErrDuplicateRule, first))
			continue
		}
		seen[key] = def.ID
	}

	return errors.Join(errs...)
}

// RuleSet validates the file and builds a snapshot measured from base.
func (f *File) RuleSet(base time.Time) (*rules.RuleSet, error) {
	if err := ValidateFile(f); err != nil {
		return nil, fmt.Errorf("invalid rules file: %w", err)
	}
	return rules.BuildRuleSet(f.Settings(), f.Definitions(), base)
}
