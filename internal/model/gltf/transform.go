package gltf

import (
	"cogentcore.org/core/math32"
	"github.com/qmuntal/gltf"
)

// affine is a node frame: translated origin plus rotated, scaled axes
type affine struct {
	origin  math32.Vector3
	x, y, z math32.Vector3
}

func identity() affine {
	return affine{
		x: math32.Vec3(1, 0, 0),
		y: math32.Vec3(0, 1, 0),
		z: math32.Vec3(0, 0, 1),
	}
}

func (a affine) dir(d math32.Vector3) math32.Vector3 {
	return a.x.MulScalar(d.X).Add(a.y.MulScalar(d.Y)).Add(a.z.MulScalar(d.Z))
}

func (a affine) point(p math32.Vector3) math32.Vector3 {
	return a.origin.Add(a.dir(p))
}

func (a affine) within(parent affine) affine {
	return affine{
		origin: parent.point(a.origin),
		x:      parent.dir(a.x),
		y:      parent.dir(a.y),
		z:      parent.dir(a.z),
	}
}

var (
	zeroMatrix     [16]float64
	identityMatrix = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
)

// localTransform reads a node's matrix, or its TRS properties when the
// matrix is absent or identity. Zero-valued rotation and scale mean unset.
func localTransform(n *gltf.Node) affine {
	if n.Matrix != zeroMatrix && n.Matrix != identityMatrix {
		m := n.Matrix
		return affine{
			x:      math32.Vec3(float32(m[0]), float32(m[1]), float32(m[2])),
			y:      math32.Vec3(float32(m[4]), float32(m[5]), float32(m[6])),
			z:      math32.Vec3(float32(m[8]), float32(m[9]), float32(m[10])),
			origin: math32.Vec3(float32(m[12]), float32(m[13]), float32(m[14])),
		}
	}

	s := n.Scale
	if s == [3]float64{} {
		s = [3]float64{1, 1, 1}
	}
	q := n.Rotation
	if q == [4]float64{} {
		q = [4]float64{0, 0, 0, 1}
	}
	t := n.Translation

	return affine{
		x:      rotate(q, math32.Vec3(1, 0, 0)).MulScalar(float32(s[0])),
		y:      rotate(q, math32.Vec3(0, 1, 0)).MulScalar(float32(s[1])),
		z:      rotate(q, math32.Vec3(0, 0, 1)).MulScalar(float32(s[2])),
		origin: math32.Vec3(float32(t[0]), float32(t[1]), float32(t[2])),
	}
}

// rotate applies unit quaternion q (x, y, z, w) to v
func rotate(q [4]float64, v math32.Vector3) math32.Vector3 {
	u := math32.Vec3(float32(q[0]), float32(q[1]), float32(q[2]))
	w := float32(q[3])
	t := u.Cross(v).MulScalar(2)
	return v.Add(t.MulScalar(w)).Add(u.Cross(t))
}
