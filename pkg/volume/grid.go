// Package volume holds the voxel data built from a range of video frames and
// the mapping between world space and voxel/texture space.
//
// A Grid is not safe for concurrent use. Load replaces the sample buffer, so
// callers embedding a Grid in a multi-threaded host must not call Load while
// another goroutine is running transforms or building slice geometry.
package volume

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"

	"videoslicer/internal/models"
)

var (
	ErrDecode      = errors.New("frame decoding failed")
	ErrEmptyVolume = errors.New("decoded volume is empty")
	ErrNotLoaded   = errors.New("volume not loaded")
	ErrSampleCount = errors.New("sample buffer does not match dimensions")
)

// AllFrames is the frame count sentinel meaning "every frame after the offset"
const AllFrames = -1

// floorClearance lifts the box just above the y=0 reference plane
const floorClearance = 0.01

var logger = slog.Default()

// SetLogger replaces the logger used by this package
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Decoder turns a frame range of a media file into a flat voxel buffer
type Decoder interface {
	Decode(path string, format models.PixelFormat, frameOffset, frameCount int) (*models.Frames, error)
}

// Placement identifies everything that affects the world<->voxel mapping.
// Two equal placements produce identical transforms.
type Placement struct {
	Dims     models.Dims
	Extent   r3.Vec
	Position r3.Vec
}

// Grid is the voxel volume together with its world-space box.
// The box is centered at Position and has size Extent.
type Grid struct {
	dims    models.Dims
	format  models.PixelFormat
	samples []uint8

	extent   r3.Vec
	position r3.Vec

	source      string
	frameOffset int
	frameCount  int

	textureStale bool
}

// NewGrid returns an empty grid resting just above the reference plane
func NewGrid() *Grid {
	return &Grid{
		position:   r3.Vec{X: 0, Y: 0.501, Z: 0},
		frameCount: AllFrames,
	}
}

// Load decodes the requested frame range and replaces the grid contents.
// On failure the previous contents are kept untouched.
func (g *Grid) Load(dec Decoder, path string, format models.PixelFormat, frameOffset, frameCount int) error {
	frames, err := dec.Decode(path, format, frameOffset, frameCount)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, path, err)
	}
	if frames == nil || frames.Dims.IsZero() {
		return fmt.Errorf("%w: %s", ErrEmptyVolume, path)
	}
	if err := g.SetFrames(frames); err != nil {
		return err
	}
	g.source = path
	g.frameOffset = frameOffset
	g.frameCount = frames.Dims.Depth
	return nil
}

// SetFrames installs an already decoded buffer, recomputing the default
// extent and position from the dimensions.
func (g *Grid) SetFrames(frames *models.Frames) error {
	if frames.Dims.IsZero() {
		return fmt.Errorf("%w: %s", ErrEmptyVolume, frames.Dims)
	}
	if err := frames.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrSampleCount, err)
	}

	g.dims = frames.Dims
	g.format = frames.Format
	g.samples = frames.Data
	g.extent = DefaultExtent(g.dims)
	g.position = r3.Vec{X: 0, Y: 0.5*g.extent.Y + floorClearance, Z: 0}
	g.textureStale = true

	logger.Info("volume loaded",
		"dims", g.dims.String(),
		"format", g.format.String(),
		"extent", fmt.Sprintf("%.4g,%.4g,%.4g", g.extent.X, g.extent.Y, g.extent.Z))
	return nil
}

// DefaultExtent picks a box size that keeps the volume at a roughly constant
// displayed size. When the frame stack is deep relative to the frame size the
// depth is fixed and the frame shrinks; otherwise the width is fixed.
func DefaultExtent(d models.Dims) r3.Vec {
	w, h, n := float64(d.Width), float64(d.Height), float64(d.Depth)
	if 4*d.Depth > max(d.Width, d.Height) {
		return r3.Scale(0.7, r3.Vec{X: 0.25 * w / n, Y: 0.25 * h / n, Z: 1})
	}
	return r3.Scale(0.7, r3.Vec{X: 1, Y: h / w, Z: 4 * n / w})
}

// Loaded reports whether the grid holds voxel data
func (g *Grid) Loaded() bool {
	return !g.dims.IsZero()
}

func (g *Grid) Dims() models.Dims { return g.dims }
func (g *Grid) PixelFormat() models.PixelFormat { return g.format }
func (g *Grid) Extent() r3.Vec { return g.extent }
func (g *Grid) Position() r3.Vec { return g.position }
func (g *Grid) Source() string { return g.source }

// FrameRange returns the offset and number of frames of the last load
func (g *Grid) FrameRange() (offset, count int) {
	return g.frameOffset, g.frameCount
}

// Samples exposes the voxel buffer for texture upload. The slice is owned by
// the grid and stays valid until the next Load.
func (g *Grid) Samples() []uint8 {
	return g.samples
}

// SetPosition moves the box center
func (g *Grid) SetPosition(p r3.Vec) {
	g.position = p
}

// SetExtent resizes the box. Every component must be strictly positive.
func (g *Grid) SetExtent(e r3.Vec) error {
	if e.X <= 0 || e.Y <= 0 || e.Z <= 0 {
		return fmt.Errorf("extent must be positive, got %v", e)
	}
	g.extent = e
	return nil
}

// Placement returns the current transform inputs
func (g *Grid) Placement() Placement {
	return Placement{Dims: g.dims, Extent: g.extent, Position: g.position}
}

// TextureStale reports whether the voxel buffer changed since the renderer
// last called MarkTextureCurrent.
func (g *Grid) TextureStale() bool {
	return g.textureStale
}

// MarkTextureCurrent records that the renderer uploaded the current buffer
func (g *Grid) MarkTextureCurrent() {
	g.textureStale = false
}

// BoxMin is the world-space minimum corner of the volume box
func (g *Grid) BoxMin() r3.Vec {
	return r3.Sub(g.position, r3.Scale(0.5, g.extent))
}

// VoxelBox is the voxel-space bounding box [0, dims]
func (g *Grid) VoxelBox() r3.Box {
	return r3.Box{
		Min: r3.Vec{},
		Max: dimsVec(g.dims),
	}
}

// WorldToVoxel maps a world point into voxel space, where the box spans [0, dims]
func (g *Grid) WorldToVoxel(p r3.Vec) r3.Vec {
	return div(mul(dimsVec(g.dims), r3.Sub(p, g.BoxMin())), g.extent)
}

// VoxelToWorld is the inverse of WorldToVoxel
func (g *Grid) VoxelToWorld(p r3.Vec) r3.Vec {
	return r3.Add(div(mul(p, g.extent), dimsVec(g.dims)), g.BoxMin())
}

// VoxelCenterToWorld maps an integer voxel index to the world position of that voxel's center
func (g *Grid) VoxelCenterToWorld(x, y, z int) r3.Vec {
	return g.VoxelToWorld(r3.Vec{X: float64(x) + 0.5, Y: float64(y) + 0.5, Z: float64(z) + 0.5})
}

// WorldToTexture maps a world point into normalized [0,1]^3 texture coordinates
func (g *Grid) WorldToTexture(p r3.Vec) r3.Vec {
	return div(r3.Sub(p, g.BoxMin()), g.extent)
}

// ContainsVoxel reports whether p lies inside the closed voxel box [0, dims]
func (g *Grid) ContainsVoxel(p r3.Vec) bool {
	b := g.VoxelBox()
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Voxel returns the channels of the voxel at integer index (x, y, z).
// The returned slice aliases the sample buffer.
func (g *Grid) Voxel(x, y, z int) []uint8 {
	c := g.format.Channels()
	i := ((z*g.dims.Height+y)*g.dims.Width + x) * c
	return g.samples[i : i+c]
}

// SampleTexture returns the nearest voxel for normalized texture coordinates,
// clamping to the volume border.
func (g *Grid) SampleTexture(t r3.Vec) []uint8 {
	x := clampIndex(t.X*float64(g.dims.Width), g.dims.Width)
	y := clampIndex(t.Y*float64(g.dims.Height), g.dims.Height)
	z := clampIndex(t.Z*float64(g.dims.Depth), g.dims.Depth)
	return g.Voxel(x, y, z)
}

// ChannelStats summarizes the intensity distribution of one channel
type ChannelStats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Stats computes per-channel statistics over at most maxSamples evenly strided voxels
func (g *Grid) Stats(maxSamples int) ([]ChannelStats, error) {
	if !g.Loaded() {
		return nil, ErrNotLoaded
	}
	c := g.format.Channels()
	n := g.dims.Voxels()
	stride := 1
	if maxSamples > 0 && n > maxSamples {
		stride = int(math.Ceil(float64(n) / float64(maxSamples)))
	}

	channels := make([][]float64, c)
	for ch := range channels {
		channels[ch] = make([]float64, 0, n/stride+1)
	}
	for v := 0; v < n; v += stride {
		for ch := 0; ch < c; ch++ {
			channels[ch] = append(channels[ch], float64(g.samples[v*c+ch]))
		}
	}

	out := make([]ChannelStats, c)
	for ch, values := range channels {
		mean, std := stat.MeanStdDev(values, nil)
		lo, hi := values[0], values[0]
		for _, x := range values[1:] {
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
		out[ch] = ChannelStats{Mean: mean, StdDev: std, Min: lo, Max: hi}
	}
	return out, nil
}

func clampIndex(v float64, n int) int {
	i := int(math.Floor(v))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

func dimsVec(d models.Dims) r3.Vec {
	return r3.Vec{X: float64(d.Width), Y: float64(d.Height), Z: float64(d.Depth)}
}

func mul(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: a.X * b.X, Y: a.Y * b.Y, Z: a.Z * b.Z}
}

func div(a, b r3.Vec) r3.Vec {
	return r3.Vec{X: a.X / b.X, Y: a.Y / b.Y, Z: a.Z / b.Z}
}
