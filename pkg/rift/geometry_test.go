package rift

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

func approxEqualVec(a, b r3.Vec, eps float64) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps && math.Abs(a.Z-b.Z) < eps
}

func TestPose_InverseIsSelfInverse(t *testing.T) {
	p := Pose{
		Position:    r3.Vec{X: 1, Y: 2, Z: 3},
		Orientation: axisAngleQuat(r3.Vec{X: 0, Y: 0, Z: 1}, 0.7),
	}
	roundTrip := p.Inverse().Inverse()

	if !approxEqualVec(roundTrip.Position, p.Position, 1e-9) {
		t.Errorf("expected inverse-of-inverse position to match, got %+v vs %+v", roundTrip.Position, p.Position)
	}
	if orientationDelta(roundTrip.Orientation, p.Orientation) > 1e-9 {
		t.Errorf("expected inverse-of-inverse orientation to match, delta=%v", orientationDelta(roundTrip.Orientation, p.Orientation))
	}
}

// TestPose_ComposeWithInverseIsIdentity checks the round-trip property for
// device_from_fusion / fusion_from_model composition: p composed with its
// inverse yields identity.
func TestPose_ComposeWithInverseIsIdentity(t *testing.T) {
	p := Pose{
		Position:    r3.Vec{X: -0.5, Y: 0.25, Z: 0.1},
		Orientation: axisAngleQuat(r3.Vec{X: 1, Y: 1, Z: 0}, 1.2),
	}
	identityLike := p.Compose(p.Inverse())

	if !approxEqualVec(identityLike.Position, r3.Vec{}, 1e-9) {
		t.Errorf("expected identity position, got %+v", identityLike.Position)
	}
	if orientationDelta(identityLike.Orientation, IdentityPose().Orientation) > 1e-9 {
		t.Errorf("expected identity orientation, got %+v", identityLike.Orientation)
	}
}

func TestPose_ApplyIdentity(t *testing.T) {
	v := r3.Vec{X: 3, Y: 4, Z: 5}
	got := IdentityPose().Apply(v)
	if got != v {
		t.Errorf("expected identity pose to leave v unchanged, got %+v", got)
	}
}

func TestPose_ApplyRotationMatchesAxisAngle(t *testing.T) {
	// A 90-degree rotation about Z should send +X to +Y.
	p := Pose{Orientation: axisAngleQuat(r3.Vec{X: 0, Y: 0, Z: 1}, math.Pi/2)}
	got := p.ApplyRotation(r3.Vec{X: 1})
	if !approxEqualVec(got, r3.Vec{Y: 1}, 1e-9) {
		t.Errorf("expected +X rotated 90deg about Z to be +Y, got %+v", got)
	}
}

func TestOrientationDelta_Identical(t *testing.T) {
	q := axisAngleQuat(r3.Vec{X: 0, Y: 1, Z: 0}, 0.4)
	if d := orientationDelta(q, q); d > 1e-9 {
		t.Errorf("expected zero delta between identical orientations, got %v", d)
	}
}

func TestOrientationDelta_OppositeSignIsSameRotation(t *testing.T) {
	q := axisAngleQuat(r3.Vec{X: 0, Y: 1, Z: 0}, 0.4)
	negQ := quat.Scale(-1, q)
	if d := orientationDelta(q, negQ); d > 1e-9 {
		t.Errorf("expected q and -q to represent the same rotation, got delta %v", d)
	}
}

func TestPositionDelta(t *testing.T) {
	a := r3.Vec{X: 0, Y: 0, Z: 0}
	b := r3.Vec{X: 3, Y: 4, Z: 0}
	if got := positionDelta(a, b); got != 5 {
		t.Errorf("expected distance 5, got %v", got)
	}
}
