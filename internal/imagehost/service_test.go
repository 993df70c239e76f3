package imagehost

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imagetolink/internal/logging"
	"imagetolink/internal/storage"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db, err := storage.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	svc, err := NewService(db, nil, filepath.Join(t.TempDir(), "blobs"), logging.Nop())
	require.NoError(t, err)
	return svc
}

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: shade, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestValidateKey(t *testing.T) {
	for _, key := range []string{"cat.webp", "notes/today/cat1.webp", "a-b_c/d.e"} {
		assert.NoError(t, ValidateKey(key), key)
	}
	for _, key := range []string{"", "/abs.webp", "../up.webp", "a/../b", "a//b", "a\\b", "./x"} {
		assert.ErrorIs(t, ValidateKey(key), ErrInvalidKey, key)
	}
}

func TestStoreAndLookup(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	data := pngBytes(t, 10)

	img, err := svc.Store(ctx, "notes/today/cat1.png", data)
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)
	assert.EqualValues(t, len(data), img.Size)
	assert.Len(t, img.Hash, 64)

	onDisk, err := os.ReadFile(svc.BlobPath(img.Hash))
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	got, err := svc.Lookup(ctx, "notes/today/cat1.png")
	require.NoError(t, err)
	assert.Equal(t, img.Hash, got.Hash)

	_, err = svc.Lookup(ctx, "missing.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDeduplicatesAndReplaces(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	a, b := pngBytes(t, 1), pngBytes(t, 2)

	first, err := svc.Store(ctx, "x/one.png", a)
	require.NoError(t, err)
	second, err := svc.Store(ctx, "x/two.png", a)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)

	replaced, err := svc.Store(ctx, "x/one.png", b)
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, replaced.Hash)

	got, err := svc.Lookup(ctx, "x/one.png")
	require.NoError(t, err)
	assert.Equal(t, replaced.Hash, got.Hash)
}

func TestStoreRejects(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Store(context.Background(), "a.txt", []byte("just text"))
	assert.ErrorIs(t, err, ErrNotImage)
	_, err = svc.Store(context.Background(), "../a.png", pngBytes(t, 1))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestSweepRemovesOnlyUnreferencedBlobs(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	kept, err := svc.Store(ctx, "keep.png", pngBytes(t, 1))
	require.NoError(t, err)
	dropped, err := svc.Store(ctx, "drop.png", pngBytes(t, 2))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, "drop.png"))
	assert.ErrorIs(t, svc.Delete(ctx, "drop.png"), ErrNotFound)

	// fresh blobs survive a sweep with a past cutoff
	removed, err := svc.Sweep(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = svc.Sweep(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(svc.BlobPath(kept.Hash))
	assert.NoError(t, err)
	_, err = os.Stat(svc.BlobPath(dropped.Hash))
	assert.True(t, os.IsNotExist(err))
}

func TestHashBlobIsStable(t *testing.T) {
	assert.Equal(t, HashBlob([]byte("abc")), HashBlob([]byte("abc")))
	assert.NotEqual(t, HashBlob([]byte("abc")), HashBlob([]byte("abd")))
}
