package rift

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Pose is a rigid transform: an orientation (unit quaternion) and a
// position (r3.Vec), both expressed in whatever frame the caller documents.
type Pose struct {
	Position    r3.Vec
	Orientation quat.Number
}

// IdentityPose returns the identity transform.
func IdentityPose() Pose {
	return Pose{Orientation: quat.Number{Real: 1}}
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	qInv := quat.Conj(p.Orientation)
	return Pose{
		Orientation: qInv,
		Position:    rotate(qInv, r3.Scale(-1, p.Position)),
	}
}

// Compose returns a pose equivalent to first applying p, then applying o —
// i.e. the transform "o after p" (o ∘ p), the same convention
// device_from_fusion ∘ device_from_model composition uses.
func (p Pose) Compose(o Pose) Pose {
	return Pose{
		Orientation: quat.Mul(o.Orientation, p.Orientation),
		Position:    r3.Add(rotate(o.Orientation, p.Position), o.Position),
	}
}

// Apply rotates and translates v by p.
func (p Pose) Apply(v r3.Vec) r3.Vec {
	return r3.Add(rotate(p.Orientation, v), p.Position)
}

// ApplyRotation rotates v by p's orientation only (no translation) — used
// for velocity/angular-velocity frame changes.
func (p Pose) ApplyRotation(v r3.Vec) r3.Vec {
	return rotate(p.Orientation, v)
}

func rotate(q quat.Number, v r3.Vec) r3.Vec {
	p := quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	r := quat.Mul(quat.Mul(q, p), quat.Conj(q))
	return r3.Vec{X: r.Imag, Y: r.Jmag, Z: r.Kmag}
}

// normalizeQuat returns q scaled to unit length, or the identity quaternion if
// q is degenerate (all-zero).
func normalizeQuat(q quat.Number) quat.Number {
	n := math.Sqrt(q.Real*q.Real + q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if n == 0 {
		return quat.Number{Real: 1}
	}
	return quat.Scale(1/n, q)
}

// slerp performs a spherical linear interpolation from a to b by t in [0,1].
// Falls back to a normalized linear blend when a and b are nearly parallel,
// which is adequate for the small per-sample steps the output filter takes.
func slerp(a, b quat.Number, t float64) quat.Number {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	if dot < 0 {
		b = quat.Scale(-1, b)
		dot = -dot
	}
	if dot > 0.9995 {
		return normalizeQuat(quat.Number{
			Real: a.Real + t*(b.Real-a.Real),
			Imag: a.Imag + t*(b.Imag-a.Imag),
			Jmag: a.Jmag + t*(b.Jmag-a.Jmag),
			Kmag: a.Kmag + t*(b.Kmag-a.Kmag),
		})
	}
	theta0 := math.Acos(dot)
	theta := theta0 * t
	sinTheta0 := math.Sin(theta0)
	if sinTheta0 == 0 {
		return a
	}
	s0 := math.Cos(theta) - dot*math.Sin(theta)/sinTheta0
	s1 := math.Sin(theta) / sinTheta0
	return normalizeQuat(quat.Number{
		Real: s0*a.Real + s1*b.Real,
		Imag: s0*a.Imag + s1*b.Imag,
		Jmag: s0*a.Jmag + s1*b.Jmag,
		Kmag: s0*a.Kmag + s1*b.Kmag,
	})
}

// positionDelta returns the Euclidean distance between two positions.
func positionDelta(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}

// orientationDelta returns the angle in radians between two orientations.
func orientationDelta(a, b quat.Number) float64 {
	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return 2 * math.Acos(math.Abs(dot))
}
