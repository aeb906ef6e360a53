package geometry_test

import (
	"math"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/spatial/r2"

	"go.viam.com/slam-backend/geometry"
)

func TestIdentityComposeIsNoop(t *testing.T) {
	p := geometry.NewRigid2D(1, 2, 0.5)
	test.That(t, p.Compose(geometry.Identity2D()).AlmostEqual(p, 1e-9), test.ShouldBeTrue)
	test.That(t, geometry.Identity2D().Compose(p).AlmostEqual(p, 1e-9), test.ShouldBeTrue)
}

func TestComposeInverseIsIdentity(t *testing.T) {
	p := geometry.NewRigid2D(3, -4, 1.2)
	composed := p.Compose(p.Inverse())
	test.That(t, composed.AlmostEqual(geometry.Identity2D(), 1e-9), test.ShouldBeTrue)
}

func TestApplyRotatesThenTranslates(t *testing.T) {
	p := geometry.NewRigid2D(1, 0, math.Pi/2)
	got := p.Apply(r2.Vec{X: 1, Y: 0})
	test.That(t, math.Abs(got.X-1) < 1e-9, test.ShouldBeTrue)
	test.That(t, math.Abs(got.Y-1) < 1e-9, test.ShouldBeTrue)
}

func TestComposeChainMatchesSequentialApply(t *testing.T) {
	a := geometry.NewRigid2D(1, 2, 0.3)
	b := geometry.NewRigid2D(-2, 1, -0.7)
	point := r2.Vec{X: 5, Y: -3}

	viaCompose := a.Compose(b).Apply(point)
	viaSequential := a.Apply(b.Apply(point))

	test.That(t, math.Abs(viaCompose.X-viaSequential.X) < 1e-9, test.ShouldBeTrue)
	test.That(t, math.Abs(viaCompose.Y-viaSequential.Y) < 1e-9, test.ShouldBeTrue)
}
