package mathx

import "math"

// Vec3 is a world-space point or vector. Y is up; motion happens on the XZ plane.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }

func (a Vec3) Scale(s float64) Vec3 { return Vec3{a.X * s, a.Y * s, a.Z * s} }

func (a Vec3) Len() float64 { return math.Sqrt(a.X*a.X + a.Y*a.Y + a.Z*a.Z) }

// LenXZ ignores the vertical component.
func (a Vec3) LenXZ() float64 { return math.Hypot(a.X, a.Z) }

func (a Vec3) IsZero() bool { return a.X == 0 && a.Y == 0 && a.Z == 0 }

// Normalize returns the unit vector and false for a zero-length input.
func (a Vec3) Normalize() (Vec3, bool) {
	l := a.Len()
	if l == 0 {
		return Vec3{}, false
	}
	inv := 1 / l
	return Vec3{a.X * inv, a.Y * inv, a.Z * inv}, true
}

func (a Vec3) Array() [3]float64 { return [3]float64{a.X, a.Y, a.Z} }

func FromArray(v [3]float64) Vec3 { return Vec3{X: v[0], Y: v[1], Z: v[2]} }

func DistXZ(a, b Vec3) float64 { return b.Sub(a).LenXZ() }

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
