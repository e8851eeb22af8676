// Package visualization renders slices of a loaded volume into images on the
// CPU. Axis slices copy voxel rows directly; oblique slices are sampled the
// way the slice shader does it, by mapping each point of the slice polygon
// to texture coordinates and reading the nearest voxel.
package visualization

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"videoslicer/internal/models"
	"videoslicer/pkg/slicing"
	"videoslicer/pkg/volume"
)

// ErrEmptySlice is returned when an oblique slice does not cut the volume
var ErrEmptySlice = errors.New("slice does not intersect the volume")

// insideTolerance absorbs rounding when testing pixels against polygon edges
const insideTolerance = 1e-9

type window struct {
	lo, hi float64
}

// Viewer extracts and saves 2D images of a volume grid. Images are oriented
// with +y pointing up.
type Viewer struct {
	grid *volume.Grid

	// per-channel intensity window, nil shows raw values
	windows []*window
}

// NewViewer creates a viewer over grid
func NewViewer(grid *volume.Grid) *Viewer {
	return &Viewer{grid: grid}
}

// AutoContrast stretches each color channel so that mean ± 2 standard
// deviations (clipped to the observed range) fill the full output range
func (v *Viewer) AutoContrast(maxSamples int) error {
	stats, err := v.grid.Stats(maxSamples)
	if err != nil {
		return err
	}
	v.windows = make([]*window, len(stats))
	for ch, s := range stats {
		if v.grid.PixelFormat() == models.RGBA && ch == 3 {
			continue
		}
		lo := math.Max(s.Min, s.Mean-2*s.StdDev)
		hi := math.Min(s.Max, s.Mean+2*s.StdDev)
		if hi <= lo {
			lo, hi = s.Min, s.Max
		}
		if hi > lo {
			v.windows[ch] = &window{lo: lo, hi: hi}
		}
	}
	return nil
}

// ResetContrast shows raw voxel values again
func (v *Viewer) ResetContrast() {
	v.windows = nil
}

func (v *Viewer) level(ch int, x uint8) uint8 {
	if ch >= len(v.windows) || v.windows[ch] == nil {
		return x
	}
	w := v.windows[ch]
	t := (float64(x) - w.lo) / (w.hi - w.lo)
	return uint8(math.Round(255 * math.Max(0, math.Min(1, t))))
}

func (v *Viewer) voxelColor(sample []uint8) color.RGBA {
	switch v.grid.PixelFormat() {
	case models.Gray:
		g := v.level(0, sample[0])
		return color.RGBA{R: g, G: g, B: g, A: 255}
	case models.RGB:
		return color.RGBA{R: v.level(0, sample[0]), G: v.level(1, sample[1]), B: v.level(2, sample[2]), A: 255}
	default:
		// premultiplied for image.RGBA
		a := uint16(sample[3])
		return color.RGBA{
			R: uint8(uint16(v.level(0, sample[0])) * a / 255),
			G: uint8(uint16(v.level(1, sample[1])) * a / 255),
			B: uint8(uint16(v.level(2, sample[2])) * a / 255),
			A: sample[3],
		}
	}
}

// ExtractSlice extracts a 2D slice from the volume along the given axis.
// The x slice is laid out depth by height, the y slice width by depth and the
// z slice width by height.
func (v *Viewer) ExtractSlice(axis string, position int) (image.Image, error) {
	if !v.grid.Loaded() {
		return nil, volume.ErrNotLoaded
	}
	a, err := parseAxis(axis)
	if err != nil {
		return nil, err
	}
	d := v.grid.Dims()
	if position < 0 || position >= d.Axis(a) {
		return nil, fmt.Errorf("%w: position %d, %s size %d", slicing.ErrRangeOutOfBounds, position, axis, d.Axis(a))
	}

	var w, h int
	var at func(px, py int) []uint8
	switch a {
	case 0:
		w, h = d.Depth, d.Height
		at = func(px, py int) []uint8 { return v.grid.Voxel(position, d.Height-1-py, px) }
	case 1:
		w, h = d.Width, d.Depth
		at = func(px, py int) []uint8 { return v.grid.Voxel(px, position, py) }
	default:
		w, h = d.Width, d.Height
		at = func(px, py int) []uint8 { return v.grid.Voxel(px, d.Height-1-py, position) }
	}

	if v.grid.PixelFormat() == models.Gray {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for py := 0; py < h; py++ {
			for px := 0; px < w; px++ {
				img.SetGray(px, py, color.Gray{Y: v.level(0, at(px, py)[0])})
			}
		}
		return img, nil
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			img.SetRGBA(px, py, v.voxelColor(at(px, py)))
		}
	}
	return img, nil
}

// ExtractRegion extracts a 3D subregion of raw voxel samples
func (v *Viewer) ExtractRegion(startX, startY, startZ, sizeX, sizeY, sizeZ int) ([]uint8, error) {
	if !v.grid.Loaded() {
		return nil, volume.ErrNotLoaded
	}
	if startX < 0 || startY < 0 || startZ < 0 {
		return nil, fmt.Errorf("start coordinates must be non-negative")
	}
	if sizeX <= 0 || sizeY <= 0 || sizeZ <= 0 {
		return nil, fmt.Errorf("size dimensions must be positive")
	}
	d := v.grid.Dims()
	if startX+sizeX > d.Width || startY+sizeY > d.Height || startZ+sizeZ > d.Depth {
		return nil, fmt.Errorf("%w: region extends beyond volume boundaries", slicing.ErrRangeOutOfBounds)
	}

	c := v.grid.PixelFormat().Channels()
	region := make([]uint8, 0, sizeX*sizeY*sizeZ*c)
	for z := 0; z < sizeZ; z++ {
		for y := 0; y < sizeY; y++ {
			for x := 0; x < sizeX; x++ {
				region = append(region, v.grid.Voxel(startX+x, startY+y, startZ+z)...)
			}
		}
	}
	return region, nil
}

// RenderOblique samples oblique slice i of set into an image whose longer
// side has resolution pixels. Pixels outside the slice polygon are left
// transparent.
func (v *Viewer) RenderOblique(set *slicing.Set, i, resolution int) (image.Image, error) {
	if resolution <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %d", resolution)
	}
	sl, ok := set.Oblique(i)
	if !ok {
		return nil, fmt.Errorf("%w: oblique slice %d of %d", slicing.ErrRangeOutOfBounds, i, set.Count())
	}
	poly, err := set.Polygon(i)
	if err != nil {
		return nil, err
	}
	if len(poly) < 3 {
		return nil, fmt.Errorf("%w: oblique slice %d", ErrEmptySlice, i)
	}
	return v.renderPolygon(poly, sl.Normal, resolution), nil
}

func (v *Viewer) renderPolygon(poly []r3.Vec, normal r3.Vec, resolution int) *image.RGBA {
	u, w := planeBasis(normal)

	origin := poly[0]
	minU, maxU := math.Inf(1), math.Inf(-1)
	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, p := range poly {
		d := r3.Sub(p, origin)
		a, b := r3.Dot(d, u), r3.Dot(d, w)
		minU, maxU = math.Min(minU, a), math.Max(maxU, a)
		minV, maxV = math.Min(minV, b), math.Max(maxV, b)
	}

	spanU, spanV := maxU-minU, maxV-minV
	step := math.Max(spanU, spanV) / float64(resolution)
	width := max(1, int(math.Round(spanU/step)))
	height := max(1, int(math.Round(spanV/step)))

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for py := 0; py < height; py++ {
		for px := 0; px < width; px++ {
			a := minU + (float64(px)+0.5)*step
			b := maxV - (float64(py)+0.5)*step
			p := r3.Add(origin, r3.Add(r3.Scale(a, u), r3.Scale(b, w)))
			if !insideConvex(poly, normal, p) {
				continue
			}
			img.SetRGBA(px, py, v.voxelColor(v.grid.SampleTexture(v.grid.WorldToTexture(p))))
		}
	}
	return img
}

// planeBasis returns two orthonormal in-plane directions u, w with
// u × w = n for the unit normal n
func planeBasis(normal r3.Vec) (u, w r3.Vec) {
	n := r3.Unit(normal)
	ref := r3.Vec{X: 1}
	if math.Abs(n.X) > 0.9 {
		ref = r3.Vec{Y: 1}
	}
	u = r3.Unit(r3.Cross(n, ref))
	w = r3.Cross(n, u)
	return u, w
}

// insideConvex reports whether p lies in the convex polygon poly, which must
// wind counter-clockwise about normal
func insideConvex(poly []r3.Vec, normal, p r3.Vec) bool {
	for i, a := range poly {
		b := poly[(i+1)%len(poly)]
		if r3.Dot(r3.Cross(r3.Sub(b, a), r3.Sub(p, a)), normal) < -insideTolerance {
			return false
		}
	}
	return true
}

// SaveSlice saves an extracted slice as a JPEG image
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveSliceSequence extracts and saves every slice along axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) error {
	a, err := parseAxis(axis)
	if err != nil {
		return err
	}
	if !v.grid.Loaded() {
		return volume.ErrNotLoaded
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	name := strings.ToLower(axis)
	for pos := 0; pos < v.grid.Dims().Axis(a); pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", name, pos))
		if err := v.SaveSlice(img, filename); err != nil {
			return err
		}
	}

	return nil
}

// SaveSlices writes one image per visible axis slice and per oblique slice of
// set that cuts the volume. It returns the number of images written.
func (v *Viewer) SaveSlices(set *slicing.Set, outputDir string, resolution int) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	written := 0
	for a, name := range axisNames {
		sl, err := set.Axis(a)
		if err != nil {
			return written, err
		}
		if !sl.Visible || sl.Index == slicing.Unset {
			continue
		}
		img, err := v.ExtractSlice(name, sl.Index)
		if err != nil {
			return written, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.jpg", name, sl.Index))
		if err := v.SaveSlice(img, filename); err != nil {
			return written, err
		}
		written++
	}

	for i := 0; i < set.Count(); i++ {
		img, err := v.RenderOblique(set, i, resolution)
		if errors.Is(err, ErrEmptySlice) {
			continue
		}
		if err != nil {
			return written, err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("oblique_%03d.jpg", i))
		if err := v.SaveSlice(img, filename); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

var axisNames = [3]string{"x", "y", "z"}

func parseAxis(axis string) (int, error) {
	switch axis {
	case "x", "X":
		return 0, nil
	case "y", "Y":
		return 1, nil
	case "z", "Z":
		return 2, nil
	}
	return 0, fmt.Errorf("%w: %s (must be x, y, or z)", slicing.ErrInvalidAxis, axis)
}
