package sessioncache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCacheLifecycle(t *testing.T) {
	ctx := context.Background()
	c := NewFileCache(filepath.Join(t.TempDir(), "nested", "session.json"))

	_, err := c.Load(ctx)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, c.Save(ctx, []byte(`{"token":"a"}`)))
	require.NoError(t, c.Save(ctx, []byte(`{"token":"b"}`)))

	data, err := c.Load(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"b"}`, string(data))

	info, err := os.Stat(c.Path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, c.Delete(ctx))
	require.NoError(t, c.Delete(ctx))
	_, err = c.Load(ctx)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewRedisCacheValidatesInput(t *testing.T) {
	_, err := NewRedisCache("", "k", 0)
	assert.ErrorContains(t, err, "redis url is required")

	_, err = NewRedisCache("redis://localhost:6379/0", " ", 0)
	assert.ErrorContains(t, err, "redis key is required")

	_, err = NewRedisCache("not-a-url", "k", 0)
	assert.Error(t, err)
}
