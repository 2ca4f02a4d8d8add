package infrastructure

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// RuntimeStats is a point-in-time view of the Go runtime
type RuntimeStats struct {
	Goroutines  int           `json:"goroutines"`
	HeapAlloc   uint64        `json:"heap_alloc_bytes"`
	HeapSys     uint64        `json:"heap_sys_bytes"`
	GCCount     uint32        `json:"gc_count"`
	LastGCPause time.Duration `json:"last_gc_pause_ns"`
	CPUCount    int           `json:"cpu_count"`
	Uptime      time.Duration `json:"uptime_ns"`
	CollectedAt time.Time     `json:"collected_at"`
}

// ReadRuntimeStats samples the runtime
func ReadRuntimeStats(started time.Time) RuntimeStats {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeStats{
		Goroutines:  runtime.NumGoroutine(),
		HeapAlloc:   mem.HeapAlloc,
		HeapSys:     mem.HeapSys,
		GCCount:     mem.NumGC,
		LastGCPause: time.Duration(mem.PauseNs[(mem.NumGC+255)%256]),
		CPUCount:    runtime.NumCPU(),
		Uptime:      time.Since(started),
		CollectedAt: time.Now(),
	}
}

// RuntimeCollector periodically records runtime gauges
type RuntimeCollector struct {
	started    time.Time
	interval   time.Duration
	goroutines metric.Int64Gauge
	heapAlloc  metric.Int64Gauge
	uptime     metric.Float64Gauge
}

// NewRuntimeCollector registers the runtime gauges on meter
func NewRuntimeCollector(meter metric.Meter, interval time.Duration) (*RuntimeCollector, error) {
	goroutines, err := meter.Int64Gauge("system_goroutines",
		metric.WithDescription("Number of active goroutines"))
	if err != nil {
		return nil, err
	}
	heapAlloc, err := meter.Int64Gauge("system_heap_alloc_bytes",
		metric.WithDescription("Bytes of allocated heap objects"), metric.WithUnit("By"))
	if err != nil {
		return nil, err
	}
	uptime, err := meter.Float64Gauge("system_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &RuntimeCollector{
		started:    time.Now(),
		interval:   interval,
		goroutines: goroutines,
		heapAlloc:  heapAlloc,
		uptime:     uptime,
	}, nil
}

// Collect samples the runtime once and records the gauges
func (c *RuntimeCollector) Collect(ctx context.Context) RuntimeStats {
	stats := ReadRuntimeStats(c.started)
	c.goroutines.Record(ctx, int64(stats.Goroutines))
	c.heapAlloc.Record(ctx, int64(stats.HeapAlloc))
	c.uptime.Record(ctx, stats.Uptime.Seconds())
	return stats
}

// Run collects on every tick until ctx is done
func (c *RuntimeCollector) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.Collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.Collect(ctx)
		case <-ctx.Done():
			return
		}
	}
}
