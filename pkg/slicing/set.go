// Package slicing manages the cutting planes placed through a volume and
// turns each of them into render geometry.
package slicing

import (
	"errors"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/spatial/r3"

	"videoslicer/internal/models"
	"videoslicer/pkg/volume"
)

var (
	ErrOutsideVolume    = errors.New("slice origin outside volume")
	ErrRangeOutOfBounds = errors.New("slice range out of bounds")
	ErrOpenBoundary     = errors.New("intersection points do not form a closed loop")
	ErrZeroNormal       = errors.New("slice normal has zero length")
	ErrInvalidAxis      = errors.New("axis must be 0, 1 or 2")
)

// Unset marks an axis slice that has no plane
const Unset = -1

var logger = slog.Default()

// SetLogger replaces the logger used by this package
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// Slice is either an AxisSlice or an ObliqueSlice
type Slice interface {
	isSlice()
}

// AxisSlice is the plane through the voxel centers at Index along Axis
type AxisSlice struct {
	Axis    int
	Index   int
	Visible bool
}

// ObliqueSlice is an arbitrary plane given in world space. Normal has unit length.
type ObliqueSlice struct {
	Origin r3.Vec
	Normal r3.Vec
	Color  models.Color
}

func (AxisSlice) isSlice()    {}
func (ObliqueSlice) isSlice() {}

// Plane returns the cutting plane of the slice
func (s ObliqueSlice) Plane() Plane {
	return Plane{Origin: s.Origin, Normal: s.Normal}
}

type obliqueEntry struct {
	slice ObliqueSlice

	// cached intersection, valid while slice and placement are unchanged
	cached    bool
	placement volume.Placement
	polygon   []r3.Vec
	err       error
}

// Set holds one axis slice per axis and an ordered list of oblique slices
// placed through a volume grid.
type Set struct {
	grid    *volume.Grid
	axes    [3]AxisSlice
	oblique []*obliqueEntry
}

// NewSet returns a set bound to grid with no planes; only the z slice is
// shown once an index is assigned.
func NewSet(grid *volume.Grid) *Set {
	s := &Set{grid: grid}
	for i := range s.axes {
		s.axes[i] = AxisSlice{Axis: i, Index: Unset}
	}
	s.axes[2].Visible = true
	return s
}

// Grid returns the volume the slices are placed in
func (s *Set) Grid() *volume.Grid {
	return s.grid
}

// AddOblique adds a plane with the default slice color
func (s *Set) AddOblique(origin, normal r3.Vec) (int, error) {
	return s.AddObliqueColor(origin, normal, models.DefaultSliceColor)
}

// AddObliqueColor appends a plane through origin with the given normal and
// returns its index. The origin must lie inside the volume box.
func (s *Set) AddObliqueColor(origin, normal r3.Vec, color models.Color) (int, error) {
	sl, err := s.validate(ObliqueSlice{Origin: origin, Normal: normal, Color: color})
	if err != nil {
		logger.Debug("oblique slice rejected", "origin", origin, "normal", normal, "err", err)
		return -1, err
	}
	s.oblique = append(s.oblique, &obliqueEntry{slice: sl})
	return len(s.oblique) - 1, nil
}

// SetOblique replaces the plane at index i after the same validation as AddObliqueColor
func (s *Set) SetOblique(i int, sl ObliqueSlice) error {
	if i < 0 || i >= len(s.oblique) {
		return fmt.Errorf("%w: index %d, count %d", ErrRangeOutOfBounds, i, len(s.oblique))
	}
	sl, err := s.validate(sl)
	if err != nil {
		return err
	}
	s.oblique[i] = &obliqueEntry{slice: sl}
	return nil
}

func (s *Set) validate(sl ObliqueSlice) (ObliqueSlice, error) {
	if !s.grid.Loaded() {
		return sl, volume.ErrNotLoaded
	}
	if r3.Norm(sl.Normal) == 0 {
		return sl, ErrZeroNormal
	}
	if v := s.grid.WorldToVoxel(sl.Origin); !s.grid.ContainsVoxel(v) {
		return sl, fmt.Errorf("%w: voxel position %.3f,%.3f,%.3f", ErrOutsideVolume, v.X, v.Y, v.Z)
	}
	sl.Normal = r3.Unit(sl.Normal)
	return sl, nil
}

// RemoveOblique deletes count planes starting at start. Nothing is removed
// if the range does not fit inside the list.
func (s *Set) RemoveOblique(start, count int) error {
	if start < 0 || count < 0 || start+count > len(s.oblique) {
		return fmt.Errorf("%w: start %d, count %d, have %d", ErrRangeOutOfBounds, start, count, len(s.oblique))
	}
	n := len(s.oblique)
	s.oblique = append(s.oblique[:start], s.oblique[start+count:]...)
	clear(s.oblique[len(s.oblique):n])
	return nil
}

// Count returns the number of oblique slices
func (s *Set) Count() int {
	return len(s.oblique)
}

// Oblique returns the oblique slice at index i
func (s *Set) Oblique(i int) (ObliqueSlice, bool) {
	if i < 0 || i >= len(s.oblique) {
		return ObliqueSlice{}, false
	}
	return s.oblique[i].slice, true
}

// Axis returns the slice for the given axis
func (s *Set) Axis(axis int) (AxisSlice, error) {
	if axis < 0 || axis > 2 {
		return AxisSlice{}, fmt.Errorf("%w: %d", ErrInvalidAxis, axis)
	}
	return s.axes[axis], nil
}

// SetAxisSlice replaces the slice for axis. The index is not range checked;
// Unset removes the plane.
func (s *Set) SetAxisSlice(axis, index int, visible bool) error {
	if axis < 0 || axis > 2 {
		return fmt.Errorf("%w: %d", ErrInvalidAxis, axis)
	}
	s.axes[axis] = AxisSlice{Axis: axis, Index: index, Visible: visible}
	return nil
}

// CenterAxisSlices puts every unset axis slice in the middle of the volume
func (s *Set) CenterAxisSlices() {
	if !s.grid.Loaded() {
		return
	}
	dims := s.grid.Dims()
	for i := range s.axes {
		if s.axes[i].Index == Unset {
			s.axes[i].Index = dims.Axis(i) / 2
		}
	}
}

// Revalidate drops oblique slices whose origin left the volume, typically
// after a reload changed its dimensions. It returns how many were removed.
func (s *Set) Revalidate() int {
	kept := s.oblique[:0]
	for _, e := range s.oblique {
		if _, err := s.validate(e.slice); err != nil {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(s.oblique) - len(kept)
	for i := len(kept); i < len(s.oblique); i++ {
		s.oblique[i] = nil
	}
	s.oblique = kept
	if removed > 0 {
		logger.Info("oblique slices dropped after reload", "removed", removed, "kept", len(kept))
	}
	return removed
}

// Slices lists the three axis slices followed by the oblique slices
func (s *Set) Slices() []Slice {
	out := make([]Slice, 0, 3+len(s.oblique))
	for _, a := range s.axes {
		out = append(out, a)
	}
	for _, e := range s.oblique {
		out = append(out, e.slice)
	}
	return out
}

// Polygon returns the world-space intersection polygon of oblique slice i.
// The result is cached until the slice or the grid placement changes.
func (s *Set) Polygon(i int) ([]r3.Vec, error) {
	if i < 0 || i >= len(s.oblique) {
		return nil, fmt.Errorf("%w: index %d, count %d", ErrRangeOutOfBounds, i, len(s.oblique))
	}
	e := s.oblique[i]
	placement := s.grid.Placement()
	if !e.cached || e.placement != placement {
		e.polygon, e.err = Intersect(s.grid.VoxelBox(), s.grid.VoxelToWorld, e.slice.Plane())
		e.placement = placement
		e.cached = true
	}
	return e.polygon, e.err
}

// axisQuad returns the two triangles covering the voxel-center plane of a,
// spanning the full box along the other two axes
func (s *Set) axisQuad(a AxisSlice) []r3.Vec {
	b := s.grid.VoxelBox()
	setComponent(&b.Min, a.Axis, float64(a.Index)+0.5)
	setComponent(&b.Max, a.Axis, float64(a.Index)+0.5)

	j := (a.Axis + 1) % 3
	k := (j + 1) % 3
	offJ, offK := 1<<j, 1<<k

	c0 := s.grid.VoxelToWorld(corner(b, 0))
	cj := s.grid.VoxelToWorld(corner(b, offJ))
	cjk := s.grid.VoxelToWorld(corner(b, offJ+offK))
	ck := s.grid.VoxelToWorld(corner(b, offK))
	return []r3.Vec{c0, cj, cjk, c0, cjk, ck}
}
