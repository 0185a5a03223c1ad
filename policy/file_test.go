package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/liamcoop/expiry/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `
enabled: true
default:
  months: 6
document_types:
  - aliases: [homepage, landing]
    never_expire: true
  - aliases: [news]
    level: 3
    months: 12
paths:
  - paths: [/Schools/]
    apply_to_descendants: true
    days: 90
  - paths: [/about/]
    never_expire: true
`

var base = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestParseFile(t *testing.T) {
	f, err := ParseFile([]byte(sampleRules))
	require.NoError(t, err)

	defs := f.Definitions()
	require.Len(t, defs, 5)
	assert.Equal(t, "homepage", defs[0].Alias)
	assert.True(t, defs[1].NeverExpire)
	assert.Equal(t, 3, *defs[2].Level)
	assert.Equal(t, "file:document_type:news:3", defs[2].ID)
	assert.Equal(t, rules.KindPath, defs[3].Kind)
	assert.True(t, defs[3].ApplyToDescendants)

	s := f.Settings()
	assert.True(t, s.Enabled)
	assert.Equal(t, 6, s.DefaultMonths)
}

func TestParseFileRejectsUnknownKeys(t *testing.T) {
	_, err := ParseFile([]byte("document_type: []\n"))
	assert.Error(t, err)
}

func TestParseEmptyFile(t *testing.T) {
	f, err := ParseFile(nil)
	require.NoError(t, err)
	assert.True(t, f.Settings().Enabled)
	assert.Empty(t, f.Definitions())
}

func TestFileRuleSet(t *testing.T) {
	f, err := ParseFile([]byte(sampleRules))
	require.NoError(t, err)

	rs, err := f.RuleSet(base)
	require.NoError(t, err)
	assert.True(t, rs.IsEnabled())
	assert.Equal(t, 5, rs.Len())
	assert.Equal(t, 182*24*time.Hour, *rs.DefaultMaximumExpiry())

	var paths []string
	for _, p := range rs.PathRules() {
		paths = append(paths, p.Path)
	}
	assert.Contains(t, paths, "/schools/")
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"valid", sampleRules, ""},
		{"bad alias", "document_types:\n  - aliases: ['news page']\n    months: 1\n", "invalid alias"},
		{"missing aliases", "document_types:\n  - months: 1\n", "at least one alias"},
		{"relative path", "paths:\n  - paths: [schools]\n    months: 1\n", "must start with '/'"},
		{"never with window", "paths:\n  - paths: [/a/]\n    never_expire: true\n    months: 1\n", "cannot set months"},
		{"empty window", "document_types:\n  - aliases: [news]\n", "months or days must be set"},
		{"negative default", "default:\n  months: -1\n", "default months"},
		{"duplicate path", "paths:\n  - paths: [/a/, /A]\n    months: 1\n", "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseFile([]byte(tt.yaml))
			require.NoError(t, err)

			err = ValidateFile(f)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateFileRejectsAliasRepeatedAtAnotherLevel(t *testing.T) {
	f, err := ParseFile([]byte(`
document_types:
  - aliases: [news]
    level: 2
    months: 3
  - aliases: [news]
    level: 3
    never_expire: true
`))
	require.NoError(t, err)

	err = ValidateFile(f)
	require.ErrorIs(t, err, rules.ErrDuplicateRule)
	assert.Contains(t, err.Error(), "file:document_type:news:3")
	assert.Contains(t, err.Error(), "already defined by file:document_type:news:2")

	_, err = f.RuleSet(base)
	assert.ErrorIs(t, err, rules.ErrDuplicateRule)
}

func TestValidateFileReportsEveryProblem(t *testing.T) {
	f, err := ParseFile([]byte("document_types:\n  - aliases: ['1bad', '2bad']\n    months: 1\n"))
	require.NoError(t, err)

	err = ValidateFile(f)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1bad")
	assert.Contains(t, err.Error(), "2bad")
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o644))

	src := FileSource{Path: path, Now: func() time.Time { return base }}
	rs, err := src.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 5, rs.Len())

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.yaml")}.Load(t.Context())
	assert.Error(t, err)
}
