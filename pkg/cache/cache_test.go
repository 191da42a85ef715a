package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

func TestFileCacheRoundTrip(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), nil)
	require.NoError(t, err)

	var got []entry
	ok, err := c.Get(KeyRemotePlugins, time.Hour, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	want := []entry{{Name: "blog", Version: "4.2.0"}}
	require.NoError(t, c.Write(KeyRemotePlugins, want))

	ok, err = c.Get(KeyRemotePlugins, time.Hour, &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)

	require.NoError(t, c.Remove(KeyRemotePlugins))
	require.NoError(t, c.Remove(KeyRemotePlugins))
	ok, err = c.Get(KeyRemotePlugins, time.Hour, &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCacheExpiry(t *testing.T) {
	c, err := NewFileCache(t.TempDir(), nil)
	require.NoError(t, err)
	require.NoError(t, c.Write("k", "v"))

	c.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	var v string
	ok, err := c.Get("k", time.Hour, &v)
	require.NoError(t, err)
	assert.False(t, ok)

	// ttl<=0 永不过期
	ok, err = c.Get("k", 0, &v)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestFileCacheCorruptEntry(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0644))

	var v map[string]string
	ok, err := c.Get("bad", time.Hour, &v)
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestFileCacheSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, nil)
	require.NoError(t, err)
	require.NoError(t, c.Write("../escape/key", 1))

	_, err = os.Stat(filepath.Join(dir, ".._escape_key.json"))
	assert.NoError(t, err)
}
