package camera

import "github.com/Carmen-Shannon/oxy-rt/common"

// CameraController defines the interface for positioning a camera around a target using
// spherical coordinates. Key bindings in the windowed run map onto the Orbit and Zoom methods.
type CameraController interface {
	// Position returns the camera's world-space position.
	//
	// Returns:
	//   - common.Vec3: the eye position
	Position() common.Vec3

	// Target returns the look-at point.
	//
	// Returns:
	//   - common.Vec3: the target position
	Target() common.Vec3

	// SetTarget sets the look-at point and recomputes the position.
	//
	// Parameters:
	//   - target: the new target
	SetTarget(target common.Vec3)

	// Zoom moves the camera toward (positive) or away from (negative) the target, clamped to
	// the radius bounds.
	//
	// Parameters:
	//   - delta: zoom amount, scaled by the zoom speed
	Zoom(delta float32)

	// OrbitLeft rotates the camera left around the target by the orbit speed.
	OrbitLeft()

	// OrbitRight rotates the camera right around the target by the orbit speed.
	OrbitRight()

	// OrbitUp raises the camera, clamped to the maximum elevation.
	OrbitUp()

	// OrbitDown lowers the camera, clamped to the minimum elevation.
	OrbitDown()

	// Radius returns the distance from the target.
	Radius() float32

	// SetRadius sets the distance from the target, clamped to the radius bounds.
	SetRadius(radius float32)

	// Azimuth returns the horizontal angle around the Y axis in radians.
	Azimuth() float32

	// SetAzimuth sets the horizontal angle around the Y axis.
	SetAzimuth(azimuth float32)

	// Elevation returns the vertical angle from the horizontal plane in radians.
	Elevation() float32

	// SetElevation sets the vertical angle, clamped to the elevation bounds.
	SetElevation(elevation float32)

	// Frame moves the target to the centre of bounds and sets a radius that keeps the whole box
	// in view for the given vertical field of view.
	//
	// Parameters:
	//   - bounds: the world-space box to frame
	//   - fov: the camera's vertical field of view in radians
	Frame(bounds common.AABB, fov float32)
}
