package math

import (
	"encoding/binary"
	m "math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(10), Clamp(uint32(3), 10, 20))
	assert.Equal(t, uint32(20), Clamp(uint32(30), 10, 20))
	assert.Equal(t, 1.5, Clamp(1.5, 0, 2))
}

func TestMulIdentity(t *testing.T) {
	rot := NewMat4EulerY(DegToRad(30))
	assert.Equal(t, rot, NewMat4Identity().Mul(rot))
	assert.Equal(t, rot, rot.Mul(NewMat4Identity()))
}

func TestLookAtMovesEyeToOrigin(t *testing.T) {
	eye := NewVec3(0, 2, 5)
	view := NewMat4LookAt(eye, NewVec3(0, 0, 0), NewVec3Up())
	got := eye.Transform(view)
	assert.True(t, got.Compare(NewVec3(0, 0, 0), 1e-5), "%v", got)

	// The target ends up straight ahead on -Z.
	target := NewVec3(0, 0, 0).Transform(view)
	assert.InDelta(t, 0, target.X, 1e-5)
	assert.InDelta(t, 0, target.Y, 1e-5)
	assert.Less(t, target.Z, float32(0))
}

func TestPerspectiveDepthRange(t *testing.T) {
	p := NewMat4Perspective(DegToRad(45), 4.0/3.0, 0.1, 100)
	depth := func(z float32) float32 {
		clipZ := z*p.Data[10] + p.Data[14]
		clipW := z * p.Data[11]
		return clipZ / clipW
	}
	assert.InDelta(t, 0, depth(-0.1), 1e-4)
	assert.InDelta(t, 1, depth(-100), 1e-4)
}

func TestPutBytes(t *testing.T) {
	buf := make([]byte, 64)
	NewMat4Identity().PutBytes(buf)
	assert.Equal(t, float32(1), m.Float32frombits(binary.LittleEndian.Uint32(buf[0:])))
	assert.Equal(t, float32(0), m.Float32frombits(binary.LittleEndian.Uint32(buf[4:])))
	assert.Equal(t, float32(1), m.Float32frombits(binary.LittleEndian.Uint32(buf[60:])))
}

func TestSpherical(t *testing.T) {
	assert.True(t, NewVec3Spherical(0, 0, 5).Compare(NewVec3(0, 0, 5), 1e-5))
	assert.True(t, NewVec3Spherical(K_PI/2, 0, 2).Compare(NewVec3(2, 0, 0), 1e-5))
	assert.InDelta(t, 3, NewVec3Spherical(1.1, 0.4, 3).Length(), 1e-5)
}
