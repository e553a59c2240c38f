package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestResourceMonitorDefaults(t *testing.T) {
	rm := NewResourceMonitor(ResourceMonitorConfig{Logger: zerolog.Nop()})
	require.Equal(t, int64(500*1024*1024), rm.threshold)
	require.Equal(t, 60*time.Second, rm.interval)
}

func TestResourceMonitorSweepUnderThreshold(t *testing.T) {
	// A huge threshold keeps the sweep on the quiet path; it must still
	// sample without error.
	rm := NewResourceMonitor(ResourceMonitorConfig{
		Threshold: 1 << 60,
		Logger:    zerolog.Nop(),
	})
	rm.Sweep()
}

func TestResourceMonitorSweepWarnsOnPressure(t *testing.T) {
	called := false
	rm := NewResourceMonitor(ResourceMonitorConfig{
		Threshold: 1, // any live heap crosses this
		ConnCount: func() int { called = true; return 42 },
		Logger:    zerolog.Nop(),
	})
	rm.Sweep()
	require.True(t, called, "pressure warning should report the connection count")
}

func TestResourceMonitorStartStop(t *testing.T) {
	rm := NewResourceMonitor(ResourceMonitorConfig{
		Clock:  clock.NewMock(),
		Logger: zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	rm.Start(ctx)
	cancel()
	rm.Wait()
}
