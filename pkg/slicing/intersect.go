package slicing

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r3"
)

// Epsilon is the tolerance, in voxel units, used to decide whether a point
// lies on a box face and whether two intersection points coincide.
const Epsilon = 1e-4

// Box corners are numbered by bit: bit 0 selects max x, bit 1 max y, bit 2 max z.
// Edge e runs from edgeStart[e] to edgeEnd[e] along axis e/4; the start corner
// is always the one at the minimum of that axis.
var (
	edgeStart = [12]int{0, 2, 6, 4, 0, 4, 5, 1, 0, 1, 3, 2}
	edgeEnd   = [12]int{1, 3, 7, 5, 2, 6, 7, 3, 4, 5, 7, 6}
)

// Plane is a cutting plane in world space. Points on the positive side of
// Normal are classified as outside.
type Plane struct {
	Origin r3.Vec
	Normal r3.Vec
}

// SignedDistance returns the distance of p from the plane, scaled by |Normal|
func (p Plane) SignedDistance(q r3.Vec) float64 {
	return r3.Dot(p.Normal, r3.Sub(q, p.Origin))
}

// Transform maps a voxel-space point to world space
type Transform func(r3.Vec) r3.Vec

type edgePoint struct {
	edge int
	p    r3.Vec
}

// Intersect computes the polygon where plane cuts the voxel-space box.
// Corners are classified in world space through toWorld, so the plane keeps
// its world-space meaning whatever the box placement. The result is a closed
// convex loop in world space, wound counter-clockwise when viewed from the
// positive side of the normal. A plane that misses the box, or only touches
// it along an edge or at a corner, yields an empty polygon and no error.
func Intersect(box r3.Box, toWorld Transform, plane Plane) ([]r3.Vec, error) {
	loop, err := intersectVoxel(box, toWorld, plane)
	if err != nil || len(loop) == 0 {
		return nil, err
	}

	world := make([]r3.Vec, len(loop))
	for i, p := range loop {
		world[i] = toWorld(p)
	}
	if r3.Dot(newellNormal(world), plane.Normal) < 0 {
		reverseTail(world)
	}
	return world, nil
}

// intersectVoxel returns the boundary-ordered loop in voxel space
func intersectVoxel(box r3.Box, toWorld Transform, plane Plane) ([]r3.Vec, error) {
	if r3.Norm(plane.Normal) == 0 {
		return nil, ErrZeroNormal
	}

	var (
		values  [8]float64
		outside [8]bool
	)
	for c := 0; c < 8; c++ {
		values[c] = plane.SignedDistance(toWorld(corner(box, c)))
		outside[c] = values[c] >= 0
	}

	size := r3.Sub(box.Max, box.Min)
	var points []edgePoint
	for e := 0; e < 12; e++ {
		a, b := edgeStart[e], edgeEnd[e]
		if outside[a] == outside[b] {
			continue
		}
		va, vb := math.Abs(values[a]), math.Abs(values[b])
		t := va / (va + vb)

		axis := e / 4
		p := corner(box, a)
		setComponent(&p, axis, t*component(size, axis)+component(box.Min, axis))
		points = appendDistinct(points, edgePoint{edge: e, p: p})
	}

	if len(points) < 3 {
		return nil, nil
	}
	return walkBoundary(points, box)
}

// walkBoundary chains the unordered edge points into a loop by moving from
// face to face. Among the remaining points sharing a face with the current
// one the nearest is taken next, ties going to the lower edge index.
func walkBoundary(points []edgePoint, box r3.Box) ([]r3.Vec, error) {
	cur := points[0]
	rest := append([]edgePoint(nil), points[1:]...)
	loop := []r3.Vec{cur.p}

	for len(rest) > 1 {
		best := -1
		bestDist := math.Inf(1)
		for axis := 0; axis < 3; axis++ {
			v := component(cur.p, axis)
			if !scalar.EqualWithinAbs(v, component(box.Min, axis), Epsilon) &&
				!scalar.EqualWithinAbs(v, component(box.Max, axis), Epsilon) {
				continue
			}
			for j, q := range rest {
				if !scalar.EqualWithinAbs(component(q.p, axis), v, Epsilon) {
					continue
				}
				d := r3.Norm2(r3.Sub(q.p, cur.p))
				if best < 0 || d < bestDist || (d == bestDist && q.edge < rest[best].edge) {
					best, bestDist = j, d
				}
			}
		}
		if best < 0 {
			return nil, ErrOpenBoundary
		}

		cur = rest[best]
		loop = append(loop, cur.p)
		rest = append(rest[:best], rest[best+1:]...)
	}

	return append(loop, rest[0].p), nil
}

// appendDistinct adds q unless a point within Epsilon on every axis is
// already present; the earlier (lower edge index) point wins.
func appendDistinct(points []edgePoint, q edgePoint) []edgePoint {
	for _, p := range points {
		if scalar.EqualWithinAbs(p.p.X, q.p.X, Epsilon) &&
			scalar.EqualWithinAbs(p.p.Y, q.p.Y, Epsilon) &&
			scalar.EqualWithinAbs(p.p.Z, q.p.Z, Epsilon) {
			return points
		}
	}
	return append(points, q)
}

// newellNormal returns the (unnormalized) normal of a planar polygon
func newellNormal(poly []r3.Vec) r3.Vec {
	var n r3.Vec
	for i, a := range poly {
		b := poly[(i+1)%len(poly)]
		n.X += (a.Y - b.Y) * (a.Z + b.Z)
		n.Y += (a.Z - b.Z) * (a.X + b.X)
		n.Z += (a.X - b.X) * (a.Y + b.Y)
	}
	return n
}

// reverseTail reverses the winding while keeping the first vertex in place
func reverseTail(poly []r3.Vec) {
	for i, j := 1, len(poly)-1; i < j; i, j = i+1, j-1 {
		poly[i], poly[j] = poly[j], poly[i]
	}
}

// Fan triangulates a convex polygon around its first vertex, emitting the
// triangles (0, i, i-1) for i = n-1 down to 2.
func Fan(poly []r3.Vec) []r3.Vec {
	if len(poly) < 3 {
		return nil
	}
	tris := make([]r3.Vec, 0, 3*(len(poly)-2))
	for i := len(poly) - 1; i > 1; i-- {
		tris = append(tris, poly[0], poly[i], poly[i-1])
	}
	return tris
}

func corner(b r3.Box, c int) r3.Vec {
	p := b.Min
	if c&1 != 0 {
		p.X = b.Max.X
	}
	if c&2 != 0 {
		p.Y = b.Max.Y
	}
	if c&4 != 0 {
		p.Z = b.Max.Z
	}
	return p
}

func component(v r3.Vec, axis int) float64 {
	switch axis {
	case 0:
		return v.X
	case 1:
		return v.Y
	case 2:
		return v.Z
	}
	panic("slicing: axis out of range")
}

func setComponent(v *r3.Vec, axis int, x float64) {
	switch axis {
	case 0:
		v.X = x
	case 1:
		v.Y = x
	case 2:
		v.Z = x
	default:
		panic("slicing: axis out of range")
	}
}
