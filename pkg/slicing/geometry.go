package slicing

import (
	"gonum.org/v1/gonum/spatial/r3"

	"videoslicer/internal/models"
)

// Geometry is a flat triangle list ready for a renderer: every three
// consecutive vertices form one triangle. The per-vertex arrays all have
// the same length as Vertices.
type Geometry struct {
	Vertices []r3.Vec
	Opacity  []float64

	// TexCoords are the normalized 3D texture coordinates of each vertex
	TexCoords []r3.Vec
	Colors    []models.Color
}

// TriangleCount returns the number of triangles
func (g Geometry) TriangleCount() int {
	return len(g.Vertices) / 3
}

// IsEmpty returns true if the geometry holds no triangles
func (g Geometry) IsEmpty() bool {
	return len(g.Vertices) == 0
}

func (g *Geometry) add(tris []r3.Vec, color models.Color, toTexture func(r3.Vec) r3.Vec) {
	for _, v := range tris {
		g.Vertices = append(g.Vertices, v)
		g.Opacity = append(g.Opacity, 1)
		g.TexCoords = append(g.TexCoords, toTexture(v))
		g.Colors = append(g.Colors, color)
	}
}

// BuildRenderGeometry emits a quad for each visible axis slice followed by a
// triangle fan for each oblique slice that cuts the volume. Oblique slices
// whose polygon cannot be built are skipped and logged.
func (s *Set) BuildRenderGeometry() Geometry {
	var geom Geometry
	if !s.grid.Loaded() {
		return geom
	}

	for _, a := range s.axes {
		if !a.Visible || a.Index == Unset {
			continue
		}
		geom.add(s.axisQuad(a), models.White, s.grid.WorldToTexture)
	}

	for i, e := range s.oblique {
		poly, err := s.Polygon(i)
		if err != nil {
			logger.Warn("skipping oblique slice", "index", i, "err", err)
			continue
		}
		geom.add(Fan(poly), e.slice.Color, s.grid.WorldToTexture)
	}
	return geom
}
