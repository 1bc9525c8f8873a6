package core

import (
	"github.com/spaghettifunk/tempo/engine/containers"
)

const AVG_COUNT = 30

// FrameMetrics keeps a rolling frame time average and a frames-per-second
// counter refreshed once per second.
type FrameMetrics struct {
	samples            *containers.Ring[float64]
	msAvg              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{
		samples: containers.NewRing[float64](AVG_COUNT),
	}
}

func (m *FrameMetrics) Update(frameElapsedSeconds float64) {
	frameMS := frameElapsedSeconds * 1000.0
	m.samples.Push(frameMS)
	if m.samples.Full() {
		sum := 0.0
		m.samples.Each(func(v float64) { sum += v })
		m.msAvg = sum / float64(m.samples.Len())
	}

	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}
	m.frames++
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

func (m *FrameMetrics) FrameTime() float64 {
	return m.msAvg
}

func (m *FrameMetrics) Frame() (float64, float64) {
	return m.fps, m.msAvg
}
