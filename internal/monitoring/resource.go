package monitoring

import (
	"context"
	"os"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceMonitor periodically samples process memory usage and warns when
// heap usage crosses the configured threshold. It is purely observational:
// admission control is the only backpressure mechanism, the monitor never
// rejects work.
type ResourceMonitor struct {
	logger    zerolog.Logger
	clock     clock.Clock
	threshold int64
	interval  time.Duration
	proc      *process.Process

	// connCount reports the current connection total for warning context.
	connCount func() int

	wg sync.WaitGroup
}

// ResourceMonitorConfig holds resource monitor configuration.
type ResourceMonitorConfig struct {
	Threshold int64         // Heap bytes above which to warn (default 500MB)
	Interval  time.Duration // Sample interval (default 60s)
	Clock     clock.Clock   // Optional, real clock when nil
	ConnCount func() int
	Logger    zerolog.Logger
}

// NewResourceMonitor creates a resource monitor. The gopsutil process handle
// is best-effort; RSS sampling is skipped if the handle cannot be created.
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.Threshold <= 0 {
		config.Threshold = 500 * 1024 * 1024
	}
	if config.Interval <= 0 {
		config.Interval = 60 * time.Second
	}
	if config.Clock == nil {
		config.Clock = clock.New()
	}
	if config.ConnCount == nil {
		config.ConnCount = func() int { return 0 }
	}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		config.Logger.Warn().Err(err).Msg("Process handle unavailable, RSS sampling disabled")
		proc = nil
	}

	return &ResourceMonitor{
		logger:    config.Logger.With().Str("component", "resource_monitor").Logger(),
		clock:     config.Clock,
		threshold: config.Threshold,
		interval:  config.Interval,
		proc:      proc,
		connCount: config.ConnCount,
	}
}

// Start begins the periodic sweep. The goroutine exits when ctx is cancelled.
func (rm *ResourceMonitor) Start(ctx context.Context) {
	rm.wg.Add(1)
	go func() {
		defer rm.wg.Done()

		ticker := rm.clock.Ticker(rm.interval)
		defer ticker.Stop()

		rm.logger.Info().
			Dur("interval", rm.interval).
			Int64("threshold_mb", rm.threshold/(1024*1024)).
			Msg("Resource monitor started")

		for {
			select {
			case <-ticker.C:
				rm.Sweep()
			case <-ctx.Done():
				rm.logger.Info().Msg("Resource monitor stopped")
				return
			}
		}
	}()
}

// Sweep samples heap and RSS once, updates gauges, and warns on pressure.
func (rm *ResourceMonitor) Sweep() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	heap := int64(mem.HeapAlloc)
	MemoryHeapBytes.Set(float64(heap))

	if rm.proc != nil {
		if info, err := rm.proc.MemoryInfo(); err == nil {
			MemoryRSSBytes.Set(float64(info.RSS))
		}
	}

	if heap > rm.threshold {
		MemoryPressureWarnings.Inc()
		rm.logger.Warn().
			Int64("heap_mb", heap/(1024*1024)).
			Int64("threshold_mb", rm.threshold/(1024*1024)).
			Int("connections", rm.connCount()).
			Msg("Memory pressure detected")

		// Best-effort GC hint, returns memory to the OS.
		debug.FreeOSMemory()
	}
}

// Wait blocks until the monitor goroutine has exited.
func (rm *ResourceMonitor) Wait() {
	rm.wg.Wait()
}
