package main

import (
	"errors"
	"testing"

	"github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMigrator struct {
	upErr   error
	version uint
	dirty   bool
	verErr  error
	forced  *int
	calls   []string
}

func (f *fakeMigrator) Up() error {
	f.calls = append(f.calls, "up")
	return f.upErr
}

func (f *fakeMigrator) Down() error {
	f.calls = append(f.calls, "down")
	return migrate.ErrNoChange
}

func (f *fakeMigrator) Version() (uint, bool, error) {
	f.calls = append(f.calls, "version")
	return f.version, f.dirty, f.verErr
}

func (f *fakeMigrator) Force(v int) error {
	f.calls = append(f.calls, "force")
	f.forced = &v
	return nil
}

func TestEmbeddedSource(t *testing.T) {
	src, err := embeddedSource()
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	r, name, err := src.ReadUp(first)
	require.NoError(t, err)
	r.Close()
	assert.Equal(t, "initial_schema", name)

	r, _, err = src.ReadDown(first)
	require.NoError(t, err)
	r.Close()
}

func TestRun(t *testing.T) {
	t.Run("up with nothing to do", func(t *testing.T) {
		m := &fakeMigrator{upErr: migrate.ErrNoChange}
		assert.NoError(t, run(m, "up", nil))
	})

	t.Run("up failure", func(t *testing.T) {
		m := &fakeMigrator{upErr: errors.New("dirty database")}
		assert.EqualError(t, run(m, "up", nil), "dirty database")
	})

	t.Run("down tolerates no change", func(t *testing.T) {
		m := &fakeMigrator{}
		require.NoError(t, run(m, "down", nil))
		assert.Equal(t, []string{"down"}, m.calls)
	})

	t.Run("version on an empty database", func(t *testing.T) {
		m := &fakeMigrator{verErr: migrate.ErrNilVersion}
		assert.NoError(t, run(m, "version", nil))
	})

	t.Run("force", func(t *testing.T) {
		m := &fakeMigrator{}
		require.NoError(t, run(m, "force", []string{"1"}))
		require.NotNil(t, m.forced)
		assert.Equal(t, 1, *m.forced)

		assert.Error(t, run(m, "force", nil))
		assert.Error(t, run(m, "force", []string{"one"}))
	})

	t.Run("unknown command", func(t *testing.T) {
		err := run(&fakeMigrator{}, "sideways", nil)
		assert.ErrorContains(t, err, "unknown command")
	})
}
