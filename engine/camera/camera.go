package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/Carmen-Shannon/oxy-rt/engine/pass"
	"github.com/chewxy/math32"
)

type cameraImpl struct {
	mu *sync.Mutex

	up common.Vec3

	fov    float32
	aspect float32
	near   float32
	far    float32

	view           common.Mat4
	projection     common.Mat4
	viewProjection common.Mat4
	prevViewProj   common.Mat4
	position       common.Vec3
	updated        bool

	controller CameraController
}

// Camera defines the interface for the camera system.
// The camera holds perspective settings and computes view/projection matrices
// from an attached CameraController each frame via Update(). It remembers the
// view-projection of the previous Update so temporal passes can reproject.
type Camera interface {
	// Fov returns the vertical field of view in radians.
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// Near returns the near clipping plane distance.
	Near() float32

	// Far returns the far clipping plane distance.
	Far() float32

	// SetAspect sets the aspect ratio (width / height) and recomputes matrices.
	//
	// Parameters:
	//   - aspect: the aspect ratio
	SetAspect(aspect float32)

	// Controller returns the attached CameraController.
	// Returns nil if no controller is attached.
	//
	// Returns:
	//   - CameraController: the attached controller or nil
	Controller() CameraController

	// SetController attaches a CameraController to the camera.
	//
	// Parameters:
	//   - ctrl: the controller to attach
	SetController(ctrl CameraController)

	// Update reads position/target from the controller, shifts the current view-projection
	// into the previous one and recomputes matrices. Should be called once per frame.
	// If no controller is attached, this method does nothing.
	Update()

	// ViewProjection returns the current combined view-projection matrix.
	ViewProjection() common.Mat4

	// PreviousViewProjection returns the view-projection before the last Update. It equals
	// ViewProjection after the first Update.
	PreviousViewProjection() common.Mat4

	// Frame returns the view state consumed by the pass orchestrator.
	//
	// Returns:
	//   - pass.Camera: view, projection and eye position
	Frame() pass.Camera
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera with default perspective settings.
// A controller must be attached via SetController or WithController option
// before position/target data is available.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:             &sync.Mutex{},
		up:             common.Vec3{0, 1, 0},
		fov:            45.0 * (math32.Pi / 180.0),
		aspect:         1.0,
		near:           0.1,
		far:            100.0,
		view:           common.Identity4(),
		projection:     common.Identity4(),
		viewProjection: common.Identity4(),
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
	c.updateMatrices()
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	prev := c.viewProjection
	c.updateMatrices()
	if c.updated {
		c.prevViewProj = prev
	} else {
		c.prevViewProj = c.viewProjection
		c.updated = true
	}
}

func (c *cameraImpl) ViewProjection() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjection
}

func (c *cameraImpl) PreviousViewProjection() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prevViewProj
}

func (c *cameraImpl) Frame() pass.Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return pass.Camera{View: c.view, Projection: c.projection, Position: c.position}
}

// updateMatrices recalculates the view, projection and view-projection matrices.
// It reads position and target from the attached controller. This is a no-op when the controller is nil.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	if c.controller == nil {
		return
	}
	c.position = c.controller.Position()
	c.view = common.LookAt(c.position, c.controller.Target(), c.up)
	c.projection = common.Perspective(c.fov, c.aspect, c.near, c.far)
	c.viewProjection = common.Mul4(c.projection, c.view)
}
