package imagecache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileStore_PutThenGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "images.json")
	store := NewFileStore(path)

	before := time.Now().UTC()
	store.Put("img-1", "aGVsbG8=", "image/png", "image-1.png")

	entry, ok := store.Get("img-1")
	require.True(t, ok)
	require.Equal(t, "img-1", entry.ID)
	require.Equal(t, "aGVsbG8=", entry.Base64Data)
	require.Equal(t, "image/png", entry.MimeType)
	require.Equal(t, "image-1.png", entry.Filename)
	require.False(t, entry.CachedAt.Before(before))

	// Put creates the directory and file.
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var onDisk map[string]CachedImage
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Len(t, onDisk, 1)
	require.Equal(t, "img-1", onDisk["img-1"].ID)
}

func TestFileStore_GetMissingFile(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "missing.json"))

	_, ok := store.Get("x")
	require.False(t, ok)
}

func TestFileStore_RemoveIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.json")
	store := NewFileStore(path)

	store.Put("img-1", "QUFBQQ==", "image/png", "image-1.png")
	store.Remove("img-1")
	store.Remove("img-1")

	_, ok := store.Get("img-1")
	require.False(t, ok)
}

func TestFileStore_ReloadsFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.json")

	NewFileStore(path).Put("img-1", "QUFBQQ==", "image/gif", "image-1.gif")

	// A fresh store lazily loads the previous process's file.
	entry, ok := NewFileStore(path).Get("img-1")
	require.True(t, ok)
	require.Equal(t, "image/gif", entry.MimeType)
}

func TestFileStore_CorruptFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewFileStore(path)
	_, ok := store.Get("img-1")
	require.False(t, ok)

	// The next successful write replaces the corrupt file.
	store.Put("img-2", "QUFBQQ==", "image/webp", "image-2.webp")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk map[string]CachedImage
	require.NoError(t, json.Unmarshal(data, &onDisk))
	require.Len(t, onDisk, 1)
}

func TestFileStore_SweepRemovesOnlyExpired(t *testing.T) {
	path := filepath.Join(t.TempDir(), "images.json")

	current := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }
	store := NewFileStore(path, WithNow(clock))

	current = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store.Put("old", "QUFBQQ==", "image/png", "image-1.png")

	current = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store.Put("fresh", "QkJCQg==", "image/png", "image-2.png")

	removed := store.Sweep(30)
	require.Equal(t, 1, removed)

	_, ok := store.Get("old")
	require.False(t, ok)
	_, ok = store.Get("fresh")
	require.True(t, ok)

	// A second sweep finds nothing left to remove.
	require.Zero(t, store.Sweep(30))
}

func TestFileStore_Stats(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "images.json"))

	require.Zero(t, store.Stats().Count)

	store.Put("a", "QUFBQQ==", "image/png", "a.png") // 8 chars -> ~6 bytes
	store.Put("b", "QkJCQkJCQkI=", "image/png", "b.png")

	stats := store.Stats()
	require.Equal(t, 2, stats.Count)
	require.Equal(t, int64(8*3/4+12*3/4), stats.ApproximateSizeBytes)
}
