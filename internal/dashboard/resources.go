package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"heatflow/logger"
	"heatflow/processor"
)

// engineSample is the engine's counters at sample time plus the rates since
// the previous sample.
type engineSample struct {
	Frames          int64   `json:"frames"`
	Snapshots       int64   `json:"snapshots"`
	Orders          int64   `json:"orders"`
	Malformed       int64   `json:"malformed"`
	Columns         int64   `json:"columns"`
	FPS             float64 `json:"fps"`
	SnapshotsPerSec float64 `json:"snapshots_per_sec"`
}

// resourceSample pairs engine throughput with host utilisation. Host fields
// stay zero when the host could not be read.
type resourceSample struct {
	Timestamp   time.Time    `json:"timestamp"`
	Engine      engineSample `json:"engine"`
	CPUPercent  float64      `json:"cpu_percent"`
	MemoryUsed  uint64       `json:"memory_used"`
	MemoryTotal uint64       `json:"memory_total"`
	MemoryPct   float64      `json:"memory_percent"`
	DiskUsed    uint64       `json:"disk_used"`
	DiskTotal   uint64       `json:"disk_total"`
	DiskPct     float64      `json:"disk_percent"`
}

// hostStats reads host utilisation.
type hostStats struct {
	cpu    func(ctx context.Context) ([]float64, error)
	memory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	disk   func(ctx context.Context, path string) (*disk.UsageStat, error)
}

func gopsutilHost() hostStats {
	return hostStats{
		// zero interval: utilisation since the previous call
		cpu: func(ctx context.Context) ([]float64, error) {
			return cpu.PercentWithContext(ctx, 0, false)
		},
		memory: mem.VirtualMemoryWithContext,
		disk:   disk.UsageWithContext,
	}
}

type resourceSampler struct {
	samples  *ring[resourceSample]
	interval time.Duration
	diskPath string
	stats    func() processor.EngineStats
	host     hostStats
	log      *logger.Log

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newResourceSampler(limit int, interval time.Duration, stats func() processor.EngineStats, log *logger.Log) *resourceSampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &resourceSampler{
		samples:  newRing[resourceSample](limit),
		interval: interval,
		diskPath: "/",
		stats:    stats,
		host:     gopsutilHost(),
		log:      log,
	}
}

func (s *resourceSampler) start(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

func (s *resourceSampler) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *resourceSampler) snapshot() []resourceSample {
	if s == nil {
		return nil
	}
	return s.samples.collect(nil)
}

func (s *resourceSampler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sample(ctx, now)
		}
	}
}

func (s *resourceSampler) sample(ctx context.Context, now time.Time) {
	sample := resourceSample{Timestamp: now}

	if s.stats != nil {
		st := s.stats()
		sample.Engine = engineSample{
			Frames:    st.Frames,
			Snapshots: st.Snapshots,
			Orders:    st.Orders,
			Malformed: st.Malformed,
			Columns:   st.Columns,
		}
		if prev, ok := s.samples.last(); ok {
			if elapsed := now.Sub(prev.Timestamp).Seconds(); elapsed > 0 {
				sample.Engine.FPS = float64(st.Frames-prev.Engine.Frames) / elapsed
				sample.Engine.SnapshotsPerSec = float64(st.Snapshots-prev.Engine.Snapshots) / elapsed
			}
		}
	}

	log := s.log.WithComponent("resource_sampler")
	if pct, err := s.host.cpu(ctx); err != nil {
		log.WithError(err).Debug("failed to sample cpu usage")
	} else if len(pct) > 0 {
		sample.CPUPercent = pct[0]
	}
	if vm, err := s.host.memory(ctx); err != nil {
		log.WithError(err).Debug("failed to sample memory usage")
	} else {
		sample.MemoryUsed, sample.MemoryTotal, sample.MemoryPct = vm.Used, vm.Total, vm.UsedPercent
	}
	if du, err := s.host.disk(ctx, s.diskPath); err != nil {
		log.WithError(err).Debug("failed to sample disk usage")
	} else {
		sample.DiskUsed, sample.DiskTotal, sample.DiskPct = du.Used, du.Total, du.UsedPercent
	}

	s.samples.push(sample)
}
