package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoalesce(t *testing.T) {
	assert.Equal(t, 3, Coalesce(0, 3, 4))
	assert.Equal(t, "file", Coalesce("", "file"))
	assert.Equal(t, 0, Coalesce[int]())
}

func TestClamp(t *testing.T) {
	assert.Equal(t, float32(0.5), Clamp(float32(0.1), 0.5, 500))
	assert.Equal(t, float32(500), Clamp(float32(900), 0.5, 500))
	assert.Equal(t, 3, Clamp(3, 1, 5))
}
