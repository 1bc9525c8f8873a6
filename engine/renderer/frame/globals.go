package frame

import (
	"encoding/binary"
	m "math"

	"github.com/spaghettifunk/tempo/engine/math"
)

// GlobalsSize is the std140 size of the per-frame uniform block.
const GlobalsSize = 2*64 + 4*4

// Globals is the uniform block every frame writes before recording.
type Globals struct {
	Projection math.Mat4
	View       math.Mat4
	Time       float32
	DeltaTime  float32
	Viewport   [2]float32
}

// Bytes encodes g in the layout the shaders declare:
// mat4 projection; mat4 view; float time; float delta; vec2 viewport.
func (g Globals) Bytes() []byte {
	buf := make([]byte, GlobalsSize)
	g.Projection.PutBytes(buf[0:64])
	g.View.PutBytes(buf[64:128])
	binary.LittleEndian.PutUint32(buf[128:], m.Float32bits(g.Time))
	binary.LittleEndian.PutUint32(buf[132:], m.Float32bits(g.DeltaTime))
	binary.LittleEndian.PutUint32(buf[136:], m.Float32bits(g.Viewport[0]))
	binary.LittleEndian.PutUint32(buf[140:], m.Float32bits(g.Viewport[1]))
	return buf
}
