package model

import (
	"sort"

	"github.com/Carmen-Shannon/oxy-rt/common"
	"github.com/chewxy/math32"
)

// Wrap maps t into [0, Duration). Negative times wrap from the end.
func (c *AnimationClip) Wrap(t float32) float32 {
	if c.Duration <= 0 {
		return 0
	}
	t = math32.Mod(t, c.Duration)
	if t < 0 {
		t += c.Duration
	}
	return t
}

// Sample evaluates the clip at time t, wrapped at the clip duration, over the given pose.
//
// Parameters:
//   - pose: local transforms indexed by NodeID; it is not modified
//   - t: playback time in seconds
//
// Returns:
//   - []Transform: a copy of pose with every animated component replaced
func (c *AnimationClip) Sample(pose []Transform, t float32) []Transform {
	out := append([]Transform(nil), pose...)
	t = c.Wrap(t)
	for _, ch := range c.Channels {
		if int(ch.Node) >= len(out) {
			continue
		}
		local := &out[ch.Node]
		if len(ch.PositionKeys) > 0 {
			local.Translation = sampleVector(ch.PositionKeys, t)
		}
		if len(ch.RotationKeys) > 0 {
			local.Rotation = sampleQuaternion(ch.RotationKeys, t)
		}
		if len(ch.ScaleKeys) > 0 {
			local.Scale = sampleVector(ch.ScaleKeys, t)
		}
	}
	return out
}

// bracket returns the keys surrounding t and the blend factor between them. Times before the
// first key or after the last clamp to that key.
func bracket(n int, at func(int) float32, t float32) (int, int, float32) {
	i := sort.Search(n, func(i int) bool { return at(i) > t })
	switch {
	case i == 0:
		return 0, 0, 0
	case i == n:
		return n - 1, n - 1, 0
	}
	t0, t1 := at(i-1), at(i)
	if t1 <= t0 {
		return i, i, 0
	}
	return i - 1, i, (t - t0) / (t1 - t0)
}

func sampleVector(keys []VectorKeyframe, t float32) common.Vec3 {
	a, b, f := bracket(len(keys), func(i int) float32 { return keys[i].Time }, t)
	return common.Lerp3(keys[a].Value, keys[b].Value, f)
}

func sampleQuaternion(keys []QuaternionKeyframe, t float32) common.Vec4 {
	a, b, f := bracket(len(keys), func(i int) float32 { return keys[i].Time }, t)
	if a == b {
		return keys[a].Value
	}
	return common.Slerp(keys[a].Value, keys[b].Value, f)
}

// AnimationInstance plays one clip of a Model.
type AnimationInstance struct {
	clip   *AnimationClip
	time   float32
	speed  float32
	paused bool
}

// NewAnimationInstance starts clip at time zero with unit speed.
func NewAnimationInstance(clip *AnimationClip) *AnimationInstance {
	return &AnimationInstance{clip: clip, speed: 1}
}

// Clip returns the clip being played.
func (a *AnimationInstance) Clip() *AnimationClip { return a.clip }

// Time returns the current playback time, always inside [0, Duration).
func (a *AnimationInstance) Time() float32 { return a.time }

// SetSpeed scales subsequent Advance steps.
func (a *AnimationInstance) SetSpeed(speed float32) { a.speed = speed }

// Paused reports whether Advance is currently ignored.
func (a *AnimationInstance) Paused() bool { return a.paused }

// SetPaused stops or resumes playback.
func (a *AnimationInstance) SetPaused(paused bool) { a.paused = paused }

// Advance moves playback forward by dt seconds, wrapping at the clip duration.
func (a *AnimationInstance) Advance(dt float32) {
	if a.paused {
		return
	}
	a.time = a.clip.Wrap(a.time + dt*a.speed)
}

// Seek jumps to time t, wrapped at the clip duration.
func (a *AnimationInstance) Seek(t float32) {
	a.time = a.clip.Wrap(t)
}

// Pose samples the clip at the current time over the model's bind pose.
func (a *AnimationInstance) Pose(m Model) []Transform {
	return a.clip.Sample(m.BindPose(), a.time)
}
