package decode

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoslicer/internal/models"
)

// writeFrames writes n PNG frames of w x h pixels; pixel (x, y) of frame i is
// (10*i, y, x, 255).
func writeFrames(t *testing.T, dir string, n, w, h int) {
	t.Helper()
	for i := 0; i < n; i++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, color.RGBA{R: uint8(10 * i), G: uint8(y), B: uint8(x), A: 255})
			}
		}
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("frame_%d.png", i)))
		require.NoError(t, err)
		require.NoError(t, png.Encode(f, img))
		require.NoError(t, f.Close())
	}
}

func voxel(f *models.Frames, x, y, z int) []uint8 {
	c := f.Format.Channels()
	i := ((z*f.Dims.Height+y)*f.Dims.Width + x) * c
	return f.Data[i : i+c]
}

func TestRange(t *testing.T) {
	r := Range{Offset: 2, Count: 3}
	assert.False(t, r.Contains(1))
	assert.True(t, r.Contains(2))
	assert.True(t, r.Contains(4))
	assert.False(t, r.Contains(5))
	assert.False(t, r.Done(4))
	assert.True(t, r.Done(5))

	all := Range{Offset: 1, Count: -1}
	assert.True(t, all.Contains(1000))
	assert.False(t, all.Done(1000))
}

func TestExtractNumber(t *testing.T) {
	assert.Equal(t, 12, extractNumber("frame_12.png"))
	assert.Equal(t, 3, extractNumber("/tmp/x/003.jpg"))
	assert.Equal(t, 0, extractNumber("cover.png"))
}

func TestImageSequenceDecode(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	dir := t.TempDir()
	// more than ten frames so lexical and numeric order differ
	writeFrames(t, dir, 12, 4, 3)

	t.Run("all frames in numeric order", func(t *testing.T) {
		dec := &ImageSequence{}
		frames, err := dec.Decode(dir, models.RGB, 0, -1)
		require.NoError(t, err)
		assert.Equal(t, models.Dims{Width: 4, Height: 3, Depth: 12}, frames.Dims)
		require.NoError(t, frames.Validate())

		for z := 0; z < 12; z++ {
			assert.Equal(t, []uint8{uint8(10 * z), 2, 1}, voxel(frames, 1, 2, z), "frame %d", z)
		}
	})

	t.Run("offset and count", func(t *testing.T) {
		dec := &ImageSequence{}
		frames, err := dec.Decode(dir, models.RGBA, 9, 2)
		require.NoError(t, err)
		assert.Equal(t, 2, frames.Dims.Depth)
		assert.Equal(t, []uint8{90, 0, 3, 255}, voxel(frames, 3, 0, 0))
		assert.Equal(t, []uint8{100, 0, 3, 255}, voxel(frames, 3, 0, 1))
	})

	t.Run("count past the end is clipped", func(t *testing.T) {
		dec := &ImageSequence{}
		frames, err := dec.Decode(dir, models.Gray, 10, 50)
		require.NoError(t, err)
		assert.Equal(t, 2, frames.Dims.Depth)
		assert.Len(t, frames.Data, 4*3*2)
	})

	t.Run("vertical flip", func(t *testing.T) {
		dec := &ImageSequence{FlipVertical: true}
		frames, err := dec.Decode(dir, models.RGB, 0, 1)
		require.NoError(t, err)
		assert.Equal(t, []uint8{0, 2, 0}, voxel(frames, 0, 0, 0), "bottom image row comes first")
		assert.Equal(t, []uint8{0, 0, 0}, voxel(frames, 0, 2, 0))
	})

	t.Run("offset out of range", func(t *testing.T) {
		dec := &ImageSequence{}
		_, err := dec.Decode(dir, models.RGB, 12, -1)
		assert.ErrorIs(t, err, ErrFrameRange)
	})
}

func TestImageSequenceErrors(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}

	_, err := (&ImageSequence{}).Decode(filepath.Join(t.TempDir(), "missing"), models.RGB, 0, -1)
	assert.Error(t, err)

	empty := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(empty, "notes.txt"), []byte("x"), 0644))
	_, err = (&ImageSequence{}).Decode(empty, models.RGB, 0, -1)
	assert.ErrorIs(t, err, ErrNoFrames)

	mixed := t.TempDir()
	writeFrames(t, mixed, 2, 4, 3)
	img := image.NewRGBA(image.Rect(0, 0, 5, 3))
	f, err := os.Create(filepath.Join(mixed, "frame_2.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	_, err = (&ImageSequence{}).Decode(mixed, models.RGB, 0, -1)
	assert.ErrorIs(t, err, ErrFrameSize)
}

func TestStackGrayConversion(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 2, 1))
	img.SetGray(0, 0, color.Gray{Y: 17})
	img.SetGray(1, 0, color.Gray{Y: 200})

	s := &Stack{Format: models.Gray}
	require.NoError(t, s.Add(img))
	frames, err := s.Frames()
	require.NoError(t, err)
	assert.Equal(t, []uint8{17, 200}, frames.Data)

	_, err = (&Stack{}).Frames()
	assert.ErrorIs(t, err, ErrNoFrames)
}
