package common

// Virtual key codes for cross-platform input handling.
// These values match GLFW key codes which use ASCII values for printable keys.
// Reference: https://pkg.go.dev/github.com/go-gl/glfw/v3.3/glfw#Key
const (
	KeyL     = 76  // L key (ASCII): toggle the point light
	KeyD     = 68  // D key (ASCII): toggle shadow denoising
	KeyP     = 80  // P key (ASCII): print frame statistics
	KeySpace = 32  // Spacebar (ASCII): pause scene animation
	KeyEsc   = 256 // Escape key (GLFW)

	KeyEqual = 61  // = key (ASCII): zoom in
	KeyMinus = 45  // - key (ASCII): zoom out
	KeyRight = 262 // Right arrow (GLFW): orbit right
	KeyLeft  = 263 // Left arrow (GLFW): orbit left
	KeyDown  = 264 // Down arrow (GLFW): orbit down
	KeyUp    = 265 // Up arrow (GLFW): orbit up
)
