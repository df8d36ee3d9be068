package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestControllerSphericalPosition(t *testing.T) {
	cc := NewCameraController(WithRadius(5), WithAzimuth(0), WithElevation(0.05))
	pos := cc.Position()
	assert.InDelta(t, 5*math32.Sin(0.05), pos[1], 1e-5)
	assert.InDelta(t, 0, pos[0], 1e-5)
	assert.InDelta(t, 5*math32.Cos(0.05), pos[2], 1e-5)

	cc.SetAzimuth(math32.Pi / 2)
	pos = cc.Position()
	assert.InDelta(t, 5*math32.Cos(0.05), pos[0], 1e-4)
	assert.InDelta(t, 0, pos[2], 1e-4)
}

func TestControllerClampsRadiusAndElevation(t *testing.T) {
	cc := NewCameraController(WithRadius(4), WithRadiusBounds(2, 6), WithZoomSpeed(1))
	cc.Zoom(10)
	assert.Equal(t, float32(2), cc.Radius())
	cc.Zoom(-10)
	assert.Equal(t, float32(6), cc.Radius())

	cc.SetElevation(3)
	assert.InDelta(t, math32.Pi/2-0.1, cc.Elevation(), 1e-6)
	cc.SetElevation(-1)
	assert.InDelta(t, 0.05, cc.Elevation(), 1e-6)
}

func TestControllerOrbitSteps(t *testing.T) {
	cc := NewCameraController(WithOrbitSpeed(0.25))
	cc.OrbitRight()
	cc.OrbitRight()
	cc.OrbitLeft()
	assert.InDelta(t, 0.25, cc.Azimuth(), 1e-6)
}

func TestControllerFramesBounds(t *testing.T) {
	cc := NewCameraController()
	box := common.EmptyAABB().Extend(common.Vec3{-1, 0, -1}).Extend(common.Vec3{1, 2, 1})
	cc.Frame(box, math32.Pi/2)
	assert.Equal(t, common.Vec3{0, 1, 0}, cc.Target())
	assert.InDelta(t, math32.Sqrt(3)/math32.Sin(math32.Pi/4), cc.Radius(), 1e-4)

	before := cc.Radius()
	cc.Frame(common.EmptyAABB(), math32.Pi/2)
	assert.Equal(t, before, cc.Radius())
}

func TestCameraPreviousViewProjection(t *testing.T) {
	cc := NewCameraController(WithRadius(10))
	cam := NewCamera(WithController(cc), WithAspect(16.0/9.0))

	cam.Update()
	first := cam.ViewProjection()
	assert.Equal(t, first, cam.PreviousViewProjection())

	cc.OrbitRight()
	cam.Update()
	assert.Equal(t, first, cam.PreviousViewProjection())
	assert.False(t, common.ApproxEqual4(first, cam.ViewProjection(), 1e-6))
}

func TestCameraFrameMatchesController(t *testing.T) {
	cc := NewCameraController(WithTarget(common.Vec3{1, 0, 0}))
	cam := NewCamera(WithController(cc))
	cam.Update()

	frame := cam.Frame()
	assert.Equal(t, cc.Position(), frame.Position)
	assert.True(t, common.ApproxEqual4(cam.ViewProjection(), common.Mul4(frame.Projection, frame.View), 1e-5))

	// the target sits at the centre of the view
	v := common.TransformPoint(frame.View, cc.Target())
	assert.InDelta(t, 0, v[0], 1e-4)
	assert.InDelta(t, 0, v[1], 1e-4)
	assert.Less(t, v[2], float32(0))
}

func TestCameraWithoutControllerIsInert(t *testing.T) {
	cam := NewCamera(WithFov(1), WithNear(0.5), WithFar(50))
	cam.Update()
	require.Nil(t, cam.Controller())
	assert.Equal(t, common.Identity4(), cam.ViewProjection())
	assert.Equal(t, float32(1), cam.Fov())
	assert.Equal(t, float32(0.5), cam.Near())
	assert.Equal(t, float32(50), cam.Far())
}
