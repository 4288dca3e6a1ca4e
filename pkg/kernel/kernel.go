// Package kernel defines the geometry kernel used to turn solid payloads
// into meshes. Transforms are the same affine matrices a traversal
// accumulates, so a solid can be placed in root space in one call.
package kernel

import "github.com/chazu/blockwalk/pkg/geom"

// Solid is an opaque handle to a kernel solid.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel builds, combines, places and tessellates solids.
type Kernel interface {
	// Box has its minimum corner at the origin.
	Box(x, y, z float64) Solid
	// Cylinder is Z-aligned and centred on the origin.
	Cylinder(height, radius float64) Solid

	Union(a, b Solid) Solid
	Difference(a, b Solid) Solid
	Intersection(a, b Solid) Solid

	Transform(s Solid, m geom.Matrix) Solid

	ToMesh(s Solid) (*Mesh, error)
}
