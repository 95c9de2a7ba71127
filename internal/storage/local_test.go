package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestProvider(t *testing.T) (*LocalProvider, string) {
	t.Helper()
	dir := t.TempDir()
	provider, err := NewLocalProvider(dir)
	require.NoError(t, err)
	return provider, dir
}

func TestLocalProvider_PutGetObject(t *testing.T) {
	provider, baseDir := setupTestProvider(t)
	ctx := context.Background()

	content := []byte("ip,bytes\n10.0.0.1,5\n")
	require.NoError(t, provider.PutObject(ctx, "uploads", "upload_1.csv", bytes.NewReader(content)))

	data, err := os.ReadFile(filepath.Join(baseDir, "uploads", "upload_1.csv"))
	require.NoError(t, err)
	assert.Equal(t, content, data)

	data, err = provider.GetObject(ctx, "uploads", "upload_1.csv")
	require.NoError(t, err)
	assert.Equal(t, content, data)

	stream, err := provider.GetObjectStream(ctx, "uploads", "upload_1.csv")
	require.NoError(t, err)
	defer stream.Close()
	streamed, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, content, streamed)

	entries, err := os.ReadDir(filepath.Join(baseDir, "uploads"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files should be left behind")
}

func TestLocalProvider_Overwrite(t *testing.T) {
	provider, _ := setupTestProvider(t)
	ctx := context.Background()

	require.NoError(t, provider.PutObject(ctx, "b", "k", bytes.NewReader([]byte("first"))))
	require.NoError(t, provider.PutObject(ctx, "b", "k", bytes.NewReader([]byte("second"))))

	data, err := provider.GetObject(ctx, "b", "k")
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestLocalProvider_NotFound(t *testing.T) {
	provider, _ := setupTestProvider(t)
	ctx := context.Background()

	_, err := provider.GetObject(ctx, "b", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = provider.GetObjectStream(ctx, "b", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, provider.DeleteObject(ctx, "b", "missing"))
}

func TestLocalProvider_DeleteObject(t *testing.T) {
	provider, _ := setupTestProvider(t)
	ctx := context.Background()

	require.NoError(t, provider.PutObject(ctx, "b", "k", bytes.NewReader([]byte("x"))))
	require.NoError(t, provider.DeleteObject(ctx, "b", "k"))

	_, err := provider.GetObject(ctx, "b", "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocalProvider_ListObjects(t *testing.T) {
	provider, baseDir := setupTestProvider(t)
	ctx := context.Background()

	objects, err := provider.ListObjects(ctx, "empty", "")
	require.NoError(t, err)
	assert.Empty(t, objects)

	for _, key := range []string{"upload_2.csv", "upload_1.csv", "other.txt", "nested/upload_3.csv"} {
		require.NoError(t, provider.PutObject(ctx, "b", key, bytes.NewReader([]byte(key))))
	}
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "b", ".upload-123"), []byte("partial"), 0644))

	objects, err = provider.ListObjects(ctx, "b", "upload_")
	require.NoError(t, err)
	assert.Equal(t, []Object{
		{Name: "upload_1.csv", Size: int64(len("upload_1.csv"))},
		{Name: "upload_2.csv", Size: int64(len("upload_2.csv"))},
	}, objects)

	objects, err = provider.ListObjects(ctx, "b", "")
	require.NoError(t, err)
	assert.Len(t, objects, 4)

	count := 0
	for _, err := range provider.IterObjects(ctx, "b", "") {
		require.NoError(t, err)
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}
