package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusFireStopsWhenHandled(t *testing.T) {
	bus := NewEventBus()
	var calls []string
	first, second := "first", "second"

	require.True(t, bus.Register(EVENT_CODE_RESIZED, first, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return data.Data.U32[0] == 0
	}))
	require.True(t, bus.Register(EVENT_CODE_RESIZED, second, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		calls = append(calls, listener.(string))
		return true
	}))
	assert.False(t, bus.Register(EVENT_CODE_RESIZED, first, nil), "duplicate listener")

	ctx := EventContext{}
	ctx.Data.U32[0] = 1024
	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, []string{"first", "second"}, calls)

	calls = nil
	ctx.Data.U32[0] = 0
	assert.True(t, bus.Fire(EVENT_CODE_RESIZED, nil, ctx))
	assert.Equal(t, []string{"first"}, calls)

	assert.True(t, bus.Unregister(EVENT_CODE_RESIZED, first))
	assert.False(t, bus.Unregister(EVENT_CODE_RESIZED, first))
	assert.False(t, bus.Fire(EVENT_CODE_APPLICATION_QUIT, nil, EventContext{}))
}

func TestClockDelta(t *testing.T) {
	base := time.Unix(100, 0)
	now := base
	c := NewClock()
	c.now = func() time.Time { return now }

	c.Update()
	assert.Zero(t, c.Elapsed(), "not started")

	c.Start()
	now = base.Add(16 * time.Millisecond)
	c.Update()
	now = base.Add(40 * time.Millisecond)
	c.Update()

	assert.Equal(t, 24*time.Millisecond, c.Delta())
	assert.Equal(t, 40*time.Millisecond, c.Elapsed())
}

func TestFrameMetricsAverage(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < AVG_COUNT; i++ {
		m.Update(0.010)
	}
	assert.InDelta(t, 10.0, m.FrameTime(), 1e-9)

	for i := 0; i < 100; i++ {
		m.Update(0.010)
	}
	fps, _ := m.Frame()
	assert.InDelta(t, 100.0, fps, 1.0)
}

func TestParseLogLevel(t *testing.T) {
	lvl, err := ParseLogLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lvl)

	_, err = ParseLogLevel("verbose")
	assert.Error(t, err)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(fmt.Errorf("submit: %w", ErrDeviceLost)))
	assert.True(t, IsFatal(fmt.Errorf("present: %w", ErrFatal)))
	assert.True(t, IsFatal(fmt.Errorf("allocate globals: %w", ErrCapacityExceeded)))
	assert.True(t, IsFatal(fmt.Errorf("record: %w", ErrInvalidState)))
	assert.True(t, IsFatal(errors.New("other")))
	assert.False(t, IsFatal(fmt.Errorf("acquire: %w", ErrStale)))
	assert.False(t, IsFatal(nil))
}
