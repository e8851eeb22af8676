package decode

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoslicer/internal/models"
	"videoslicer/pkg/volume"
)

var (
	_ volume.Decoder = (*Cache)(nil)
	_ volume.Decoder = (*ImageSequence)(nil)
)

type countingDecoder struct {
	frames *models.Frames
	err    error
	calls  int
}

func (d *countingDecoder) Decode(path string, format models.PixelFormat, frameOffset, frameCount int) (*models.Frames, error) {
	d.calls++
	return d.frames, d.err
}

func sampleFrames() *models.Frames {
	data := make([]uint8, 4*3*2*3)
	for i := range data {
		data[i] = uint8(i * 7)
	}
	return &models.Frames{Dims: models.Dims{Width: 4, Height: 3, Depth: 2}, Format: models.RGB, Data: data}
}

func newCacheFixture(t *testing.T) (*Cache, *countingDecoder, string) {
	t.Helper()
	src := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("not really a video"), 0644))
	next := &countingDecoder{frames: sampleFrames()}
	return &Cache{Dir: filepath.Join(t.TempDir(), "cache"), Next: next}, next, src
}

func TestCacheHit(t *testing.T) {
	cache, next, src := newCacheFixture(t)

	first, err := cache.Decode(src, models.RGB, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)

	second, err := cache.Decode(src, models.RGB, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls, "second request is served from disk")
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(cache.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCacheKeyedOnRequest(t *testing.T) {
	cache, next, src := newCacheFixture(t)

	_, err := cache.Decode(src, models.RGB, 0, -1)
	require.NoError(t, err)
	_, err = cache.Decode(src, models.RGB, 5, -1)
	require.NoError(t, err)
	_, err = cache.Decode(src, models.Gray, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
}

func TestCacheCorruptEntryFallsBack(t *testing.T) {
	cache, next, src := newCacheFixture(t)

	_, err := cache.Decode(src, models.RGB, 0, -1)
	require.NoError(t, err)

	key, err := cacheKey(src, models.RGB, 0, -1)
	require.NoError(t, err)
	entry := filepath.Join(cache.Dir, key+cacheExt)
	data, err := os.ReadFile(entry)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xff
	require.NoError(t, os.WriteFile(entry, data, 0644))

	_, err = readCacheEntry(entry)
	assert.ErrorIs(t, err, errCacheCorrupt)

	frames, err := cache.Decode(src, models.RGB, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, sampleFrames(), frames)

	// the rewritten entry is valid again
	_, err = readCacheEntry(entry)
	assert.NoError(t, err)
}

func TestCacheErrors(t *testing.T) {
	cache, next, src := newCacheFixture(t)

	_, err := cache.Decode(filepath.Join(t.TempDir(), "missing.mp4"), models.RGB, 0, -1)
	assert.Error(t, err)
	assert.Zero(t, next.calls)

	next.err = errors.New("codec not supported")
	_, err = cache.Decode(src, models.RGB, 0, -1)
	assert.ErrorContains(t, err, "codec not supported")
	_, statErr := os.Stat(cache.Dir)
	assert.True(t, os.IsNotExist(statErr), "failed decodes are not cached")
}
