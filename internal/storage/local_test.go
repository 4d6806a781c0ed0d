package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("boom") }

func TestLocalPutOpenRemove(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	l := NewLocal(fs)

	ok, err := l.Exists(ctx, "alice/abc.PNG")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.Put(ctx, "alice/abc.PNG", strings.NewReader("data"), 4))

	ok, err = l.Exists(ctx, "alice/abc.PNG")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := l.Open(ctx, "alice/abc.PNG")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "data", string(b))

	_, err = l.ModTime(ctx, "alice/abc.PNG")
	require.NoError(t, err)

	require.NoError(t, l.Remove(ctx, "alice/abc.PNG"))
	require.NoError(t, l.Remove(ctx, "alice/abc.PNG"))

	_, err = l.Open(ctx, "alice/abc.PNG")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = l.ModTime(ctx, "alice/abc.PNG")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalPutOverwrites(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(afero.NewMemMapFs())

	require.NoError(t, l.Put(ctx, "bob/x.GIF", strings.NewReader("first"), 5))
	require.NoError(t, l.Put(ctx, "bob/x.GIF", bytes.NewReader([]byte("second")), 6))

	rc, err := l.Open(ctx, "bob/x.GIF")
	require.NoError(t, err)
	defer rc.Close()

	b, _ := io.ReadAll(rc)
	assert.Equal(t, "second", string(b))
}

func TestLocalPutFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	l := NewLocal(fs)

	err := l.Put(ctx, "carol/y.PNG", failingReader{}, 10)
	require.Error(t, err)

	entries, err := afero.ReadDir(fs, "carol")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanKeyRejectsTraversal(t *testing.T) {
	for _, k := range []string{"", "/etc/passwd", "../x", "a/../../b", "a//b", "."} {
		_, err := cleanKey(k)
		assert.ErrorIs(t, err, ErrInvalidKey, k)
	}

	k, err := cleanKey("user/file.PNG")
	require.NoError(t, err)
	assert.Equal(t, "user/file.PNG", k)
}
