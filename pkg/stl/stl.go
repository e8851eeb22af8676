// Package stl writes triangle lists as binary STL files.
package stl

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
)

const headerSize = 80

// Triangle represents a single facet of a mesh
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// NewTriangle builds a facet from three vertices with its normal derived from
// the winding order (right-hand rule)
func NewTriangle(v1, v2, v3 [3]float32) Triangle {
	return Triangle{
		Normal:  FaceNormal(v1, v2, v3),
		Vertex1: v1,
		Vertex2: v2,
		Vertex3: v3,
	}
}

// FaceNormal returns the unit normal of the triangle, or zero for a
// degenerate one
func FaceNormal(v1, v2, v3 [3]float32) [3]float32 {
	ax, ay, az := v2[0]-v1[0], v2[1]-v1[1], v2[2]-v1[2]
	bx, by, bz := v3[0]-v1[0], v3[1]-v1[1], v3[2]-v1[2]
	n := [3]float32{ay*bz - az*by, az*bx - ax*bz, ax*by - ay*bx}

	length := float32(math.Sqrt(float64(n[0]*n[0] + n[1]*n[1] + n[2]*n[2])))
	if length == 0 {
		return [3]float32{}
	}
	return [3]float32{n[0] / length, n[1] / length, n[2] / length}
}

// WriteSTL encodes triangles in binary STL format
func WriteSTL(w io.Writer, triangles []Triangle) error {
	bw := bufio.NewWriter(w)

	var header [headerSize]byte
	copy(header[:], "binary STL written by videoslicer")
	if _, err := bw.Write(header[:]); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return err
	}

	// normal, three vertices, attribute byte count
	var facet [4*12 + 2]byte
	for _, t := range triangles {
		putVec(facet[0:], t.Normal)
		putVec(facet[12:], t.Vertex1)
		putVec(facet[24:], t.Vertex2)
		putVec(facet[36:], t.Vertex3)
		if _, err := bw.Write(facet[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadSTL decodes a binary STL stream
func ReadSTL(r io.Reader) ([]Triangle, error) {
	br := bufio.NewReader(r)

	var header [headerSize]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return nil, fmt.Errorf("failed to read STL header: %w", err)
	}
	var count uint32
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read triangle count: %w", err)
	}

	triangles := make([]Triangle, 0, count)
	var facet [4*12 + 2]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(br, facet[:]); err != nil {
			return nil, fmt.Errorf("failed to read triangle %d: %w", i, err)
		}
		triangles = append(triangles, Triangle{
			Normal:  getVec(facet[0:]),
			Vertex1: getVec(facet[12:]),
			Vertex2: getVec(facet[24:]),
			Vertex3: getVec(facet[36:]),
		})
	}
	return triangles, nil
}

// SaveToSTL saves triangles to a binary STL file
func SaveToSTL(filename string, triangles []Triangle) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := WriteSTL(file, triangles); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func putVec(b []byte, v [3]float32) {
	for i, c := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(c))
	}
}

func getVec(b []byte) [3]float32 {
	var v [3]float32
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
