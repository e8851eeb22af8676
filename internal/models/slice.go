package models

import (
	"fmt"
	"strings"
)

// PixelFormat describes the channel layout of a decoded frame.
// All channels are 8-bit unsigned.
type PixelFormat int

const (
	Gray PixelFormat = iota
	RGB
	RGBA
)

// Channels returns the number of 8-bit channels per voxel
func (f PixelFormat) Channels() int {
	switch f {
	case Gray:
		return 1
	case RGB:
		return 3
	case RGBA:
		return 4
	}
	return 0
}

func (f PixelFormat) String() string {
	switch f {
	case Gray:
		return "gray"
	case RGB:
		return "rgb"
	case RGBA:
		return "rgba"
	}
	return fmt.Sprintf("PixelFormat(%d)", int(f))
}

// ParsePixelFormat converts a config string ("gray", "rgb", "rgba") into a PixelFormat
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(s) {
	case "gray", "grey", "luminance":
		return Gray, nil
	case "rgb":
		return RGB, nil
	case "rgba":
		return RGBA, nil
	}
	return 0, fmt.Errorf("unknown pixel format %q (must be gray, rgb or rgba)", s)
}

// Dims holds the number of voxels along each axis.
// Width and Height come from the frame size, Depth is the number of frames.
type Dims struct {
	Width  int
	Height int
	Depth  int
}

// Axis returns the voxel count along axis 0 (x), 1 (y) or 2 (z)
func (d Dims) Axis(axis int) int {
	switch axis {
	case 0:
		return d.Width
	case 1:
		return d.Height
	case 2:
		return d.Depth
	}
	panic(fmt.Sprintf("models: axis %d out of range", axis))
}

// Voxels returns the total number of voxels
func (d Dims) Voxels() int {
	return d.Width * d.Height * d.Depth
}

// IsZero reports whether any dimension is zero or negative
func (d Dims) IsZero() bool {
	return d.Width <= 0 || d.Height <= 0 || d.Depth <= 0
}

func (d Dims) String() string {
	return fmt.Sprintf("%dx%dx%d", d.Width, d.Height, d.Depth)
}

// Color is a straight-alpha RGBA color with components in [0,1]
type Color struct {
	R, G, B, A float64
}

// DefaultSliceColor is the translucent cyan used for oblique slices
// when no color is given.
var DefaultSliceColor = Color{R: 0, G: 1, B: 1, A: 0.05}

// White is the color used for axis-aligned slice quads
var White = Color{R: 1, G: 1, B: 1, A: 1}

// Frames is the result of decoding a frame range: a flat row-major voxel
// buffer, x fastest then y then frame index, with Format.Channels() bytes per voxel.
type Frames struct {
	Dims   Dims
	Format PixelFormat
	Data   []uint8
}

// Validate checks that the buffer length matches the dimensions and pixel format
func (f *Frames) Validate() error {
	if f.Dims.IsZero() {
		return fmt.Errorf("zero-sized frames %s", f.Dims)
	}
	want := f.Dims.Voxels() * f.Format.Channels()
	if len(f.Data) != want {
		return fmt.Errorf("frame buffer holds %d bytes, expected %d for %s %s", len(f.Data), want, f.Dims, f.Format)
	}
	return nil
}
