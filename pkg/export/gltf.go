// Package export converts slice render geometry into mesh files that
// external viewers can display: binary glTF with per-vertex colors and STL.
package export

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"videoslicer/pkg/slicing"
	"videoslicer/pkg/stl"
)

// BuildDocument converts geometry into a glTF document with one mesh.
// Vertex colors carry the slice color with its alpha scaled by the vertex
// opacity; the material is double sided and alpha blended when any vertex
// is translucent.
func BuildDocument(geom slicing.Geometry) (*gltf.Document, error) {
	if geom.IsEmpty() {
		return nil, fmt.Errorf("no triangles to export")
	}
	if len(geom.Vertices)%3 != 0 {
		return nil, fmt.Errorf("vertex count %d is not a multiple of 3", len(geom.Vertices))
	}

	n := len(geom.Vertices)
	positions := make([][3]float32, n)
	colors := make([][4]float32, n)
	indices := make([]uint32, n)
	hasAlpha := false
	for i, v := range geom.Vertices {
		positions[i] = [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}

		c := geom.Colors[i]
		alpha := c.A * geom.Opacity[i]
		if alpha < 1 {
			hasAlpha = true
		}
		colors[i] = [4]float32{float32(c.R), float32(c.G), float32(c.B), float32(alpha)}
		indices[i] = uint32(i)
	}

	doc := gltf.NewDocument()
	doc.Asset.Generator = "videoslicer"
	posAccessor := modeler.WritePosition(doc, positions)
	colorAccessor := modeler.WriteColor(doc, colors)
	indicesAccessor := modeler.WriteIndices(doc, indices)
	prim := &gltf.Primitive{
		Attributes: gltf.PrimitiveAttributes{
			gltf.POSITION: posAccessor,
			gltf.COLOR_0:  colorAccessor,
		},
		Indices:  gltf.Index(indicesAccessor),
		Material: gltf.Index(0),
	}

	pbr := &gltf.PBRMetallicRoughness{BaseColorFactor: &[4]float64{1, 1, 1, 1}, MetallicFactor: gltf.Float(0), RoughnessFactor: gltf.Float(1)}
	material := &gltf.Material{Name: "slices", PBRMetallicRoughness: pbr, DoubleSided: true}
	if hasAlpha {
		material.AlphaMode = gltf.AlphaBlend
	} else {
		material.AlphaMode = gltf.AlphaOpaque
	}
	doc.Materials = []*gltf.Material{material}
	doc.Meshes = []*gltf.Mesh{{Name: "slices", Primitives: []*gltf.Primitive{prim}}}
	doc.Nodes = []*gltf.Node{{Name: "slices", Mesh: gltf.Index(0)}}
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 0)
	return doc, nil
}

// EncodeGLB writes geometry as a binary glTF stream
func EncodeGLB(w io.Writer, geom slicing.Geometry) error {
	doc, err := BuildDocument(geom)
	if err != nil {
		return err
	}
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	return enc.Encode(doc)
}

// WriteGLB saves geometry as a .glb file
func WriteGLB(path string, geom slicing.Geometry) error {
	var out bytes.Buffer
	if err := EncodeGLB(&out, geom); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return os.WriteFile(path, out.Bytes(), 0644)
}

// Triangles converts geometry into STL facets
func Triangles(geom slicing.Geometry) []stl.Triangle {
	triangles := make([]stl.Triangle, 0, geom.TriangleCount())
	for i := 0; i+2 < len(geom.Vertices); i += 3 {
		var v [3][3]float32
		for j := range v {
			p := geom.Vertices[i+j]
			v[j] = [3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
		}
		triangles = append(triangles, stl.NewTriangle(v[0], v[1], v[2]))
	}
	return triangles
}

// WriteSTL saves geometry as a binary STL file. Colors are dropped.
func WriteSTL(path string, geom slicing.Geometry) error {
	return stl.SaveToSTL(path, Triangles(geom))
}
