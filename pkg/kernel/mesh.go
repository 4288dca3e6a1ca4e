package kernel

import "strings"

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
type Mesh struct {
	Vertices []float32 `json:"vertices"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals"`  // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices"`  // [i0,i1,i2, ...] triangles
	PartName string    `json:"partName"` // frame path of the solid, joined with "/"
}

// PathSeparator joins frame names in PartName.
const PathSeparator = "/"

// PartName builds a mesh part name from a frame path and a fallback used
// when the path is empty.
func PartName(path []string, fallback string) string {
	if len(path) == 0 {
		return fallback
	}
	return strings.Join(path, PathSeparator)
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	return len(m.Indices) / 3
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Bounds returns the axis-aligned bounds of the vertices. ok is false for an
// empty mesh.
func (m *Mesh) Bounds() (min, max [3]float32, ok bool) {
	if m.IsEmpty() {
		return min, max, false
	}
	copy(min[:], m.Vertices[:3])
	copy(max[:], m.Vertices[:3])
	for i := 3; i+2 < len(m.Vertices); i += 3 {
		for j := 0; j < 3; j++ {
			v := m.Vertices[i+j]
			if v < min[j] {
				min[j] = v
			}
			if v > max[j] {
				max[j] = v
			}
		}
	}
	return min, max, true
}
