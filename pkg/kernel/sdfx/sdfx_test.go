package sdfx

import (
	"math"
	"testing"

	"github.com/chazu/blockwalk/pkg/geom"
)

// testCells keeps marching cubes fast in tests.
const testCells = 40

func assertBounds(t *testing.T, gotMin, gotMax, wantMin, wantMax [3]float64, tol float64) {
	t.Helper()
	for i := 0; i < 3; i++ {
		if math.Abs(gotMin[i]-wantMin[i]) > tol {
			t.Errorf("min[%d] = %f, expected ~%f", i, gotMin[i], wantMin[i])
		}
		if math.Abs(gotMax[i]-wantMax[i]) > tol {
			t.Errorf("max[%d] = %f, expected ~%f", i, gotMax[i], wantMax[i])
		}
	}
}

func TestNewOptions(t *testing.T) {
	if got := New().Cells(); got != DefaultMeshCells {
		t.Errorf("default cells = %d, want %d", got, DefaultMeshCells)
	}
	if got := New(WithCells(64)).Cells(); got != 64 {
		t.Errorf("cells = %d, want 64", got)
	}
	if got := New(WithCells(0)).Cells(); got != DefaultMeshCells {
		t.Errorf("non-positive cells should keep default, got %d", got)
	}
}

func TestBox(t *testing.T) {
	k := New(WithCells(testCells))
	mesh, err := k.ToMesh(k.Box(100, 50, 25))
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("mesh is empty")
	}
	if len(mesh.Vertices) != len(mesh.Normals) {
		t.Fatalf("vertices length %d != normals length %d", len(mesh.Vertices), len(mesh.Normals))
	}
	if len(mesh.Indices) != mesh.TriangleCount()*3 {
		t.Fatalf("indices length %d != triCount*3 %d", len(mesh.Indices), mesh.TriangleCount()*3)
	}
}

func TestBoxMinCornerAtOrigin(t *testing.T) {
	k := New()
	min, max := k.Box(100, 50, 25).BoundingBox()
	assertBounds(t, min, max, [3]float64{0, 0, 0}, [3]float64{100, 50, 25}, 0.01)
}

func TestCylinderCentred(t *testing.T) {
	k := New(WithCells(testCells))
	cyl := k.Cylinder(50, 10)
	min, max := cyl.BoundingBox()
	assertBounds(t, min, max, [3]float64{-10, -10, -25}, [3]float64{10, 10, 25}, 0.01)
	mesh, err := k.ToMesh(cyl)
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if mesh.TriangleCount() == 0 {
		t.Fatal("expected non-zero triangle count")
	}
}

func TestTransformTranslate(t *testing.T) {
	k := New()
	moved := k.Transform(k.Box(10, 10, 10), geom.Translate(geom.Vec{X: 100, Y: 200, Z: 300}))
	min, max := moved.BoundingBox()
	assertBounds(t, min, max, [3]float64{100, 200, 300}, [3]float64{110, 210, 310}, 0.5)
}

func TestTransformRotate(t *testing.T) {
	k := New()
	// A long box along X rotated 90 degrees around Z extends along Y instead.
	rotated := k.Transform(k.Box(100, 10, 10), geom.RotateZ(90))
	min, max := rotated.BoundingBox()
	if dx := max[0] - min[0]; math.Abs(dx-10) > 0.5 {
		t.Errorf("X extent = %f, want ~10", dx)
	}
	if dy := max[1] - min[1]; math.Abs(dy-100) > 0.5 {
		t.Errorf("Y extent = %f, want ~100", dy)
	}
}

func TestDifference(t *testing.T) {
	k := New(WithCells(testCells))
	box := k.Box(100, 100, 100)
	boxMesh, err := k.ToMesh(box)
	if err != nil {
		t.Fatalf("ToMesh(box) failed: %v", err)
	}

	hole := k.Transform(k.Cylinder(120, 20), geom.Translate(geom.Vec{X: 50, Y: 50, Z: 50}))
	diffMesh, err := k.ToMesh(k.Difference(box, hole))
	if err != nil {
		t.Fatalf("ToMesh(diff) failed: %v", err)
	}
	// A box with a hole has more surface to cover than a plain box.
	if diffMesh.TriangleCount() <= boxMesh.TriangleCount() {
		t.Fatalf("difference (%d triangles) should have more triangles than box (%d triangles)",
			diffMesh.TriangleCount(), boxMesh.TriangleCount())
	}
}

func TestUnionAndIntersection(t *testing.T) {
	k := New(WithCells(testCells))
	a := k.Box(50, 50, 50)
	b := k.Transform(k.Box(50, 50, 50), geom.Translate(geom.Vec{X: 30}))

	umin, umax := k.Union(a, b).BoundingBox()
	if math.Abs(umax[0]-umin[0]-80) > 0.5 {
		t.Errorf("union X extent = %f, want ~80", umax[0]-umin[0])
	}
	mesh, err := k.ToMesh(k.Intersection(a, b))
	if err != nil {
		t.Fatalf("ToMesh failed: %v", err)
	}
	if mesh.IsEmpty() {
		t.Fatal("intersection mesh is empty")
	}
}

func TestFinerCellsProduceMoreTriangles(t *testing.T) {
	coarse, err := New(WithCells(16)).ToMesh(New().Cylinder(20, 10))
	if err != nil {
		t.Fatal(err)
	}
	fine, err := New(WithCells(64)).ToMesh(New().Cylinder(20, 10))
	if err != nil {
		t.Fatal(err)
	}
	if fine.TriangleCount() <= coarse.TriangleCount() {
		t.Errorf("fine mesh (%d) should have more triangles than coarse (%d)", fine.TriangleCount(), coarse.TriangleCount())
	}
}
