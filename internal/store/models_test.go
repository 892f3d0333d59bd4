package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelFiles_SaveFetch(t *testing.T) {
	m := NewModelFiles(filepath.Join(t.TempDir(), "models"), time.Hour)

	require.NoError(t, m.Save("ball.json", []byte(`{"step":0.01}`)))
	assert.True(t, m.Exists("ball.json"))

	data, err := m.Fetch(context.Background(), "ball.json")
	require.NoError(t, err)
	assert.Equal(t, `{"step":0.01}`, string(data))

	_, err = m.Fetch(context.Background(), "nope.fmu")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestModelFiles_PathStaysInsideBaseDir(t *testing.T) {
	m := NewModelFiles("/srv/models", 0)

	p, err := m.Path("../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/srv/models", "passwd"), p)

	_, err = m.Path("..")
	assert.Error(t, err)
	_, err = m.Path("  ")
	assert.Error(t, err)
}

func TestModelFiles_Cleanup(t *testing.T) {
	dir := t.TempDir()
	m := NewModelFiles(dir, time.Hour)
	require.NoError(t, m.Save("old.fmu", []byte("old")))
	require.NoError(t, m.Save("new.fmu", []byte("new")))

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "old.fmu"), old, old))

	removed, err := m.Cleanup(time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.False(t, m.Exists("old.fmu"))
	assert.True(t, m.Exists("new.fmu"))
}

func TestModelFiles_FileType(t *testing.T) {
	m := NewModelFiles("", 0)
	assert.Equal(t, "application/zip", m.FileType("Ball.FMU"))
	assert.Equal(t, "application/json", m.FileType("ball.json"))
	assert.Equal(t, "application/octet-stream", m.FileType("ball"))
}
