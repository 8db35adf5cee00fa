package dashboard

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"heatflow/logger"
	"heatflow/processor"
)

func stubHost(cpuErr error) hostStats {
	return hostStats{
		cpu: func(context.Context) ([]float64, error) {
			if cpuErr != nil {
				return nil, cpuErr
			}
			return []float64{42.5}, nil
		},
		memory: func(context.Context) (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Used: 1024, Total: 2048, UsedPercent: 50}, nil
		},
		disk: func(context.Context, string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Used: 4096, Total: 8192, UsedPercent: 25}, nil
		},
	}
}

// countingStats advances frames by 10 and snapshots by 4 on every call.
func countingStats() func() processor.EngineStats {
	var calls atomic.Int64
	return func() processor.EngineStats {
		n := calls.Add(1)
		return processor.EngineStats{Frames: 10 * n, Snapshots: 4 * n, Malformed: 1, Columns: 7}
	}
}

func TestResourceSamplerEngineRates(t *testing.T) {
	sampler := newResourceSampler(5, time.Second, countingStats(), logger.Logger())
	sampler.host = stubHost(nil)

	t0 := time.Unix(100, 0)
	sampler.sample(context.Background(), t0)
	sampler.sample(context.Background(), t0.Add(2*time.Second))

	samples := sampler.snapshot()
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2", len(samples))
	}
	if first := samples[0].Engine; first.FPS != 0 || first.Frames != 10 {
		t.Fatalf("first sample has no previous one to rate against: %+v", first)
	}
	latest := samples[1]
	if latest.Engine.FPS != 5 || latest.Engine.SnapshotsPerSec != 2 {
		t.Fatalf("rates = %v fps, %v snapshots/s; want 5 and 2", latest.Engine.FPS, latest.Engine.SnapshotsPerSec)
	}
	if latest.Engine.Columns != 7 || latest.Engine.Malformed != 1 {
		t.Fatalf("engine sample = %+v", latest.Engine)
	}
	if latest.CPUPercent != 42.5 || latest.MemoryPct != 50 || latest.DiskPct != 25 {
		t.Fatalf("host sample = %+v", latest)
	}
}

func TestResourceSamplerKeepsEngineSampleWhenHostFails(t *testing.T) {
	sampler := newResourceSampler(5, time.Second, countingStats(), logger.Logger())
	sampler.host = stubHost(errors.New("no /proc"))

	sampler.sample(context.Background(), time.Unix(100, 0))

	samples := sampler.snapshot()
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	if samples[0].CPUPercent != 0 || samples[0].Engine.Frames != 10 || samples[0].MemoryPct != 50 {
		t.Fatalf("sample = %+v", samples[0])
	}
}

func TestResourceSamplerRunsUntilStopped(t *testing.T) {
	sampler := newResourceSampler(3, 5*time.Millisecond, countingStats(), logger.Logger())
	sampler.host = stubHost(nil)

	sampler.start(context.Background())
	sampler.start(context.Background())

	deadline := time.Now().Add(time.Second)
	for len(sampler.snapshot()) < 3 {
		if time.Now().After(deadline) {
			t.Fatal("sampler did not collect samples in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
	sampler.stop()

	n := len(sampler.snapshot())
	if n != 3 {
		t.Fatalf("retained %d samples, want the limit of 3", n)
	}
	samples := sampler.snapshot()
	if samples[len(samples)-1].Engine.Frames <= samples[0].Engine.Frames {
		t.Fatalf("samples out of order: %+v", samples)
	}
	sampler.stop()
}
