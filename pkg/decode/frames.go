// Package decode provides frame decoders that turn a range of frames into the
// flat voxel buffer a volume.Grid is loaded from.
package decode

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"videoslicer/internal/models"
)

var (
	ErrNoFrames   = errors.New("no frames found")
	ErrFrameSize  = errors.New("frames differ in size")
	ErrFrameRange = errors.New("frame offset past the last frame")
)

var logger = slog.Default()

// SetLogger replaces the logger used by this package
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Range selects frames [Offset, Offset+Count). A negative Count selects every
// frame from Offset on.
type Range struct {
	Offset int
	Count  int
}

// Contains reports whether frame i is selected
func (r Range) Contains(i int) bool {
	if i < r.Offset {
		return false
	}
	return r.Count < 0 || i < r.Offset+r.Count
}

// Done reports whether every selected frame before i has been seen
func (r Range) Done(i int) bool {
	return r.Count >= 0 && i >= r.Offset+r.Count
}

// Stack accumulates decoded frames into a single voxel buffer
type Stack struct {
	Format       models.PixelFormat
	FlipVertical bool

	width, height, depth int
	data                 []uint8
}

// Add appends one frame. Every frame must have the size of the first one.
func (s *Stack) Add(img image.Image) error {
	b := img.Bounds()
	if s.depth == 0 {
		s.width, s.height = b.Dx(), b.Dy()
	} else if b.Dx() != s.width || b.Dy() != s.height {
		return fmt.Errorf("%w: frame %d is %dx%d, expected %dx%d", ErrFrameSize, s.depth, b.Dx(), b.Dy(), s.width, s.height)
	}
	s.data = appendPixels(s.data, img, s.Format, s.FlipVertical)
	s.depth++
	return nil
}

// Depth returns the number of frames added so far
func (s *Stack) Depth() int {
	return s.depth
}

// Frames returns the accumulated volume
func (s *Stack) Frames() (*models.Frames, error) {
	if s.depth == 0 {
		return nil, ErrNoFrames
	}
	return &models.Frames{
		Dims:   models.Dims{Width: s.width, Height: s.height, Depth: s.depth},
		Format: s.Format,
		Data:   s.data,
	}, nil
}

// appendPixels writes img row by row in the requested layout. With flip the
// bottom image row becomes voxel row 0, matching texture orientation.
func appendPixels(dst []uint8, img image.Image, format models.PixelFormat, flip bool) []uint8 {
	b := img.Bounds()
	for row := 0; row < b.Dy(); row++ {
		y := b.Min.Y + row
		if flip {
			y = b.Max.Y - 1 - row
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			dst = appendPixel(dst, img, x, y, format)
		}
	}
	return dst
}

func appendPixel(dst []uint8, img image.Image, x, y int, format models.PixelFormat) []uint8 {
	if rgba, ok := img.(*image.RGBA); ok {
		i := rgba.PixOffset(x, y)
		p := rgba.Pix[i : i+4]
		switch format {
		case models.Gray:
			g := color.GrayModel.Convert(color.RGBA{R: p[0], G: p[1], B: p[2], A: p[3]}).(color.Gray)
			return append(dst, g.Y)
		case models.RGB:
			return append(dst, p[0], p[1], p[2])
		default:
			return append(dst, p[0], p[1], p[2], p[3])
		}
	}

	c := img.At(x, y)
	switch format {
	case models.Gray:
		return append(dst, color.GrayModel.Convert(c).(color.Gray).Y)
	case models.RGB:
		r, g, b, _ := c.RGBA()
		return append(dst, uint8(r>>8), uint8(g>>8), uint8(b>>8))
	default:
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		return append(dst, n.R, n.G, n.B, n.A)
	}
}
