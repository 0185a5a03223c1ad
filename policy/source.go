package policy

import (
	"context"
	"time"

	"github.com/liamcoop/expiry/rules"
)

// Source produces a fresh rule snapshot.
type Source interface {
	Name() string
	Load(ctx context.Context) (*rules.RuleSet, error)
}

// StoreSource reads rules from the rule store through an Engine.
type StoreSource struct {
	Engine *rules.Engine
}

func (StoreSource) Name() string { return "store" }

func (s StoreSource) Load(ctx context.Context) (*rules.RuleSet, error) {
	return s.Engine.Rebuild(ctx)
}

// FileSource reads rules from a YAML file.
type FileSource struct {
	Path string
	Now  func() time.Time
}

func (FileSource) Name() string { return "file" }

func (s FileSource) Load(_ context.Context) (*rules.RuleSet, error) {
	f, err := LoadFile(s.Path)
	if err != nil {
		return nil, err
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	return f.RuleSet(now().UTC())
}
