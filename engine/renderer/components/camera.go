package components

import (
	"github.com/spaghettifunk/tempo/engine/math"
	"github.com/spaghettifunk/tempo/engine/renderer/driver"
)

// 89 degrees, keeps the view clear of the up vector.
const pitchLimit float32 = 1.55334306

/**
 * @brief A camera orbiting a target point. The view matrix is rebuilt
 * lazily when the orbit changes.
 */
type Camera struct {
	Target   math.Vec3
	Distance float32
	yaw      float32
	pitch    float32

	FOV  float32
	Near float32
	Far  float32

	isDirty    bool
	viewMatrix math.Mat4
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.Target = math.NewVec3(0, 0, 0)
	c.Distance = 5.0
	c.yaw = 0
	c.pitch = 0
	c.FOV = math.DegToRad(45.0)
	c.Near = 0.1
	c.Far = 1000.0
	c.isDirty = true
}

func (c *Camera) Position() math.Vec3 {
	return c.Target.Add(math.NewVec3Spherical(c.yaw, c.pitch, c.Distance))
}

func (c *Camera) Yaw(amount float32) {
	c.yaw += amount
	if c.yaw > math.K_PI_2 {
		c.yaw -= math.K_PI_2
	}
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.pitch = math.Clamp(c.pitch+amount, -pitchLimit, pitchLimit)
	c.isDirty = true
}

func (c *Camera) View() math.Mat4 {
	if c.isDirty {
		c.viewMatrix = math.NewMat4LookAt(c.Position(), c.Target, math.NewVec3Up())
		c.isDirty = false
	}
	return c.viewMatrix
}

// Projection for a target of the given size. A zero extent keeps a square
// aspect so the matrix stays finite while minimized.
func (c *Camera) Projection(extent driver.Extent) math.Mat4 {
	aspect := float32(1.0)
	if !extent.IsZero() {
		aspect = float32(extent.Width) / float32(extent.Height)
	}
	return math.NewMat4Perspective(c.FOV, aspect, c.Near, c.Far)
}
