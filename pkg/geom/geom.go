// Package geom provides the affine transforms used to place block references.
// Matrices are sdfx 4x4 matrices so the same values can be handed straight to
// the geometry kernel.
package geom

import (
	"math"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// DefaultTolerance is the comparison tolerance used for scale checks.
const DefaultTolerance = 1e-9

// Matrix is a 4x4 affine transform.
type Matrix = sdf.M44

// Vec is a 3D point or vector.
type Vec = v3.Vec

// Identity returns the identity transform.
func Identity() Matrix {
	return sdf.Identity3d()
}

// Translate returns a translation by v.
func Translate(v Vec) Matrix {
	return sdf.Translate3d(v)
}

// Scale returns a per-axis scale.
func Scale(v Vec) Matrix {
	return sdf.Scale3d(v)
}

// RotateZ returns a rotation about the Z axis by deg degrees.
func RotateZ(deg float64) Matrix {
	return sdf.RotateZ(deg * math.Pi / 180.0)
}

// Compose returns outer*inner: inner is applied to a point first.
func Compose(outer, inner Matrix) Matrix {
	return outer.Mul(inner)
}

// Apply maps point p through m.
func Apply(m Matrix, p Vec) Vec {
	return m.MulPosition(p)
}

// Origin returns the image of the origin under m.
func Origin(m Matrix) Vec {
	return m.MulPosition(Vec{})
}

// Columns returns the images of the unit axes under the linear part of m.
func Columns(m Matrix) (x, y, z Vec) {
	o := Origin(m)
	x = sub(m.MulPosition(Vec{X: 1}), o)
	y = sub(m.MulPosition(Vec{Y: 1}), o)
	z = sub(m.MulPosition(Vec{Z: 1}), o)
	return x, y, z
}

// ScaleFactors returns the length of each transformed unit axis.
func ScaleFactors(m Matrix) Vec {
	x, y, z := Columns(m)
	return Vec{X: length(x), Y: length(y), Z: length(z)}
}

// Determinant returns the determinant of the linear part of m. A negative
// value means m mirrors.
func Determinant(m Matrix) float64 {
	x, y, z := Columns(m)
	return dot(x, cross(y, z))
}

// IsUniformScaled reports whether m scales equally along every axis and
// keeps the axes orthogonal, so circles stay circles under m.
func IsUniformScaled(m Matrix, tol float64) bool {
	x, y, z := Columns(m)
	sx, sy, sz := length(x), length(y), length(z)
	if sx <= tol {
		return false
	}
	scaleTol := tol * math.Max(1, sx)
	if math.Abs(sx-sy) > scaleTol || math.Abs(sx-sz) > scaleTol {
		return false
	}
	orthoTol := tol * math.Max(1, sx*sx)
	return math.Abs(dot(x, y)) <= orthoTol &&
		math.Abs(dot(y, z)) <= orthoTol &&
		math.Abs(dot(x, z)) <= orthoTol
}

// UniformScale returns the X axis scale factor, which equals every axis
// factor when IsUniformScaled holds.
func UniformScale(m Matrix) float64 {
	x, _, _ := Columns(m)
	return length(x)
}

// RotationZ returns the rotation of the X axis about Z, in degrees.
func RotationZ(m Matrix) float64 {
	x, _, _ := Columns(m)
	return math.Atan2(x.Y, x.X) * 180.0 / math.Pi
}

// Equal compares the affine parts of a and b.
func Equal(a, b Matrix, tol float64) bool {
	aa, bb := Affine(a), Affine(b)
	for i := range aa {
		if math.Abs(aa[i]-bb[i]) > tol {
			return false
		}
	}
	return true
}

// Affine flattens m into its X, Y, Z columns followed by the translation.
func Affine(m Matrix) [12]float64 {
	x, y, z := Columns(m)
	o := Origin(m)
	return [12]float64{x.X, x.Y, x.Z, y.X, y.Y, y.Z, z.X, z.Y, z.Z, o.X, o.Y, o.Z}
}

// FromAffine is the inverse of Affine.
func FromAffine(a [12]float64) Matrix {
	return sdf.NewM44([16]float64{
		a[0], a[3], a[6], a[9],
		a[1], a[4], a[7], a[10],
		a[2], a[5], a[8], a[11],
		0, 0, 0, 1,
	})
}

// Distance returns |a-b|.
func Distance(a, b Vec) float64 {
	return length(sub(a, b))
}

func sub(a, b Vec) Vec {
	return Vec{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

func dot(a, b Vec) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func cross(a, b Vec) Vec {
	return Vec{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func length(a Vec) float64 {
	return math.Sqrt(dot(a, a))
}
