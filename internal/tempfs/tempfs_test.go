package tempfs

import (
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupRemovesDirs(t *testing.T) {
	r := New(false, zerolog.Nop())
	a, err := r.MkdirTemp("genpkg-test-*")
	require.NoError(t, err)
	b, err := r.MkdirTemp("genpkg-test-*")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(a+"/file", []byte("x"), 0o644))

	require.NoError(t, r.Cleanup())
	assert.NoDirExists(t, a)
	assert.NoDirExists(t, b)
	assert.Empty(t, r.Dirs())
}

func TestCleanupKeep(t *testing.T) {
	r := New(true, zerolog.Nop())
	dir, err := r.MkdirTemp("genpkg-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	require.NoError(t, r.Cleanup())
	assert.DirExists(t, dir)
}

func TestCleanupIdempotent(t *testing.T) {
	r := New(false, zerolog.Nop())
	_, err := r.MkdirTemp("genpkg-test-*")
	require.NoError(t, err)

	require.NoError(t, r.Cleanup())
	require.NoError(t, r.Cleanup())
}
