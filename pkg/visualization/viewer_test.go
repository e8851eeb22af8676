package visualization

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"videoslicer/internal/models"
	"videoslicer/pkg/slicing"
	"videoslicer/pkg/volume"
)

// patternGrid loads a gray volume whose voxel (x, y, z) holds 100z + 10y + x
func patternGrid(t *testing.T, d models.Dims) *volume.Grid {
	t.Helper()
	data := make([]uint8, 0, d.Voxels())
	for z := 0; z < d.Depth; z++ {
		for y := 0; y < d.Height; y++ {
			for x := 0; x < d.Width; x++ {
				data = append(data, uint8(100*z+10*y+x))
			}
		}
	}
	grid := volume.NewGrid()
	require.NoError(t, grid.SetFrames(&models.Frames{Dims: d, Format: models.Gray, Data: data}))
	return grid
}

func uniformGrid(t *testing.T, d models.Dims, format models.PixelFormat, value []uint8) *volume.Grid {
	t.Helper()
	data := make([]uint8, 0, d.Voxels()*format.Channels())
	for i := 0; i < d.Voxels(); i++ {
		data = append(data, value...)
	}
	grid := volume.NewGrid()
	require.NoError(t, grid.SetFrames(&models.Frames{Dims: d, Format: format, Data: data}))
	return grid
}

func grayAt(t *testing.T, img image.Image, x, y int) uint8 {
	t.Helper()
	g, ok := img.(*image.Gray)
	require.True(t, ok, "expected a gray image, got %T", img)
	return g.GrayAt(x, y).Y
}

func TestExtractSlice(t *testing.T) {
	viewer := NewViewer(patternGrid(t, models.Dims{Width: 4, Height: 3, Depth: 2}))

	tests := []struct {
		axis     string
		position int
		size     image.Point
		px, py   int
		want     uint8
	}{
		// image rows run top-down, voxel rows bottom-up
		{"z", 1, image.Pt(4, 3), 1, 0, 121},
		{"Z", 0, image.Pt(4, 3), 3, 2, 3},
		{"x", 2, image.Pt(2, 3), 1, 0, 122},
		{"y", 1, image.Pt(4, 2), 3, 1, 113},
	}

	for _, tc := range tests {
		t.Run(tc.axis, func(t *testing.T) {
			img, err := viewer.ExtractSlice(tc.axis, tc.position)
			require.NoError(t, err)
			assert.Equal(t, tc.size, img.Bounds().Size())
			assert.Equal(t, tc.want, grayAt(t, img, tc.px, tc.py))
		})
	}
}

func TestExtractSliceErrors(t *testing.T) {
	_, err := NewViewer(volume.NewGrid()).ExtractSlice("z", 0)
	assert.ErrorIs(t, err, volume.ErrNotLoaded)

	viewer := NewViewer(patternGrid(t, models.Dims{Width: 4, Height: 3, Depth: 2}))
	_, err = viewer.ExtractSlice("w", 0)
	assert.ErrorIs(t, err, slicing.ErrInvalidAxis)
	_, err = viewer.ExtractSlice("z", 2)
	assert.ErrorIs(t, err, slicing.ErrRangeOutOfBounds)
	_, err = viewer.ExtractSlice("x", -1)
	assert.ErrorIs(t, err, slicing.ErrRangeOutOfBounds)
}

func TestExtractSliceRGB(t *testing.T) {
	viewer := NewViewer(uniformGrid(t, models.Dims{Width: 2, Height: 2, Depth: 2}, models.RGB, []uint8{10, 20, 30}))
	img, err := viewer.ExtractSlice("y", 0)
	require.NoError(t, err)
	rgba, ok := img.(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 255}, rgba.RGBAAt(1, 1))
}

func TestExtractRegion(t *testing.T) {
	viewer := NewViewer(patternGrid(t, models.Dims{Width: 4, Height: 3, Depth: 2}))

	region, err := viewer.ExtractRegion(1, 1, 0, 2, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint8{11, 12, 21, 22, 111, 112, 121, 122}, region)

	_, err = viewer.ExtractRegion(-1, 0, 0, 1, 1, 1)
	assert.Error(t, err)
	_, err = viewer.ExtractRegion(0, 0, 0, 0, 1, 1)
	assert.Error(t, err)
	_, err = viewer.ExtractRegion(3, 0, 0, 2, 1, 1)
	assert.ErrorIs(t, err, slicing.ErrRangeOutOfBounds)
}

func TestAutoContrast(t *testing.T) {
	d := models.Dims{Width: 2, Height: 2, Depth: 2}
	data := []uint8{0, 0, 0, 0, 100, 100, 100, 100}
	grid := volume.NewGrid()
	require.NoError(t, grid.SetFrames(&models.Frames{Dims: d, Format: models.Gray, Data: data}))

	viewer := NewViewer(grid)
	require.NoError(t, viewer.AutoContrast(0))

	img, err := viewer.ExtractSlice("x", 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(0), grayAt(t, img, 0, 0))
	assert.Equal(t, uint8(255), grayAt(t, img, 1, 0))

	viewer.ResetContrast()
	img, err = viewer.ExtractSlice("x", 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(100), grayAt(t, img, 1, 0))

	assert.ErrorIs(t, NewViewer(volume.NewGrid()).AutoContrast(0), volume.ErrNotLoaded)
}

func TestPlaneBasis(t *testing.T) {
	for _, n := range []r3.Vec{{Y: 1}, {X: 1}, {X: 1, Y: -2, Z: 0.5}} {
		u, w := planeBasis(n)
		assert.InDelta(t, 1, r3.Norm(u), 1e-12)
		assert.InDelta(t, 1, r3.Norm(w), 1e-12)
		assert.InDelta(t, 0, r3.Dot(u, w), 1e-12)
		cross := r3.Cross(u, w)
		unit := r3.Unit(n)
		assert.InDelta(t, unit.X, cross.X, 1e-12)
		assert.InDelta(t, unit.Y, cross.Y, 1e-12)
		assert.InDelta(t, unit.Z, cross.Z, 1e-12)
	}
}

func TestRenderOblique(t *testing.T) {
	grid := uniformGrid(t, models.Dims{Width: 8, Height: 8, Depth: 8}, models.Gray, []uint8{200})
	set := slicing.NewSet(grid)
	i, err := set.AddOblique(grid.Position(), r3.Vec{Y: 1})
	require.NoError(t, err)

	viewer := NewViewer(grid)
	img, err := viewer.RenderOblique(set, i, 16)
	require.NoError(t, err)

	// the horizontal cut spans the 0.7 deep by 0.175 wide box floor
	assert.Equal(t, image.Pt(16, 4), img.Bounds().Size())
	rgba := img.(*image.RGBA)
	for y := 0; y < 4; y++ {
		for x := 0; x < 16; x++ {
			assert.Equal(t, color.RGBA{R: 200, G: 200, B: 200, A: 255}, rgba.RGBAAt(x, y), "pixel %d,%d", x, y)
		}
	}

	_, err = viewer.RenderOblique(set, 5, 16)
	assert.ErrorIs(t, err, slicing.ErrRangeOutOfBounds)
	_, err = viewer.RenderOblique(set, i, 0)
	assert.Error(t, err)
}

func TestRenderObliqueLeavesOutsideTransparent(t *testing.T) {
	grid := uniformGrid(t, models.Dims{Width: 8, Height: 8, Depth: 8}, models.Gray, []uint8{200})
	set := slicing.NewSet(grid)
	// a corner-cutting plane gives a triangle that does not fill its bounds
	ext := grid.Extent()
	corner := r3.Add(grid.BoxMin(), r3.Scale(0.1, ext))
	i, err := set.AddOblique(corner, r3.Vec{X: 1 / ext.X, Y: 1 / ext.Y, Z: 1 / ext.Z})
	require.NoError(t, err)

	img, err := NewViewer(grid).RenderOblique(set, i, 32)
	require.NoError(t, err)

	rgba := img.(*image.RGBA)
	opaque, clear := 0, 0
	b := rgba.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			switch rgba.RGBAAt(x, y).A {
			case 255:
				opaque++
			case 0:
				clear++
			}
		}
	}
	assert.Positive(t, opaque)
	assert.Positive(t, clear)
	assert.Equal(t, b.Dx()*b.Dy(), opaque+clear)
}

func TestSaveSlices(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping file I/O test in short mode")
	}
	grid := patternGrid(t, models.Dims{Width: 4, Height: 3, Depth: 2})
	viewer := NewViewer(grid)
	dir := t.TempDir()

	require.NoError(t, viewer.SaveSliceSequence("z", filepath.Join(dir, "seq")))
	entries, err := os.ReadDir(filepath.Join(dir, "seq"))
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	assert.ErrorIs(t, viewer.SaveSliceSequence("q", dir), slicing.ErrInvalidAxis)

	set := slicing.NewSet(grid)
	set.CenterAxisSlices()
	_, err = set.AddOblique(grid.Position(), r3.Vec{X: 1, Y: 1})
	require.NoError(t, err)

	written, err := viewer.SaveSlices(set, filepath.Join(dir, "slices"), 16)
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	for _, name := range []string{"slice_z_001.jpg", "oblique_000.jpg"} {
		_, err := os.Stat(filepath.Join(dir, "slices", name))
		assert.NoError(t, err, name)
	}
}
