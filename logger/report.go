package logger

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	reportMode atomic.Bool

	errorsFeed      int64
	errorsRender    int64
	warnsFeed       int64
	warnsRender     int64
	snapshotsRead   int64
	ordersRead      int64
	framesRendered  int64
	messagesDropped int64
	channels        sync.Map // map[string]*channelStat

	reportPublisherMu sync.RWMutex
	reportPublisher   ReportPublisher
)

// ReportPublisher receives the numeric values of every runtime report, keyed
// by metric name. The metrics package installs one to forward reports to
// CloudWatch.
type ReportPublisher func(ctx context.Context, values map[string]float64)

// SetReportPublisher installs p. A nil p disables publishing.
func SetReportPublisher(p ReportPublisher) {
	reportPublisherMu.Lock()
	reportPublisher = p
	reportPublisherMu.Unlock()
}

// ReportMode reports whether the logger was configured with level "report".
func ReportMode() bool {
	return reportMode.Load()
}

func recordWarn(component string) {
	switch {
	case isFeedComponent(component):
		atomic.AddInt64(&warnsFeed, 1)
	case strings.Contains(component, "render"), strings.Contains(component, "engine"):
		atomic.AddInt64(&warnsRender, 1)
	}
}

func recordError(component string) {
	switch {
	case isFeedComponent(component):
		atomic.AddInt64(&errorsFeed, 1)
	case strings.Contains(component, "render"), strings.Contains(component, "engine"):
		atomic.AddInt64(&errorsRender, 1)
	}
}

func isFeedComponent(component string) bool {
	return strings.Contains(component, "feed") || strings.Contains(component, "reader") || strings.Contains(component, "adapter")
}

func IncrementSnapshotRead(size int) {
	atomic.AddInt64(&snapshotsRead, 1)
	recordChannel("feed_snapshots", size)
}

func IncrementOrdersRead(count int) {
	atomic.AddInt64(&ordersRead, int64(count))
	recordChannel("feed_orders", count)
}

func IncrementFrameRendered(size int) {
	atomic.AddInt64(&framesRendered, 1)
	recordChannel("frames", size)
}

func IncrementDropped() {
	atomic.AddInt64(&messagesDropped, 1)
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

// StartReport begins periodic logging of system and pipeline statistics
// until ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	netStats, _ := gnet.IOCounters(false)

	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		channelData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memoryMB := 0.0
	if memStats != nil {
		memoryMB = float64(memStats.Used) / 1024 / 1024
	}
	var bytesSent, bytesRecv uint64
	if len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	values := map[string]float64{
		"ErrorsFeed":      float64(atomic.LoadInt64(&errorsFeed)),
		"ErrorsRender":    float64(atomic.LoadInt64(&errorsRender)),
		"WarnsFeed":       float64(atomic.LoadInt64(&warnsFeed)),
		"WarnsRender":     float64(atomic.LoadInt64(&warnsRender)),
		"SnapshotsRead":   float64(atomic.LoadInt64(&snapshotsRead)),
		"OrdersRead":      float64(atomic.LoadInt64(&ordersRead)),
		"FramesRendered":  float64(atomic.LoadInt64(&framesRendered)),
		"MessagesDropped": float64(atomic.LoadInt64(&messagesDropped)),
		"CPUPercent":      cpuPct,
		"MemoryMB":        memoryMB,
		"NetBytesSent":    float64(bytesSent),
		"NetBytesRecv":    float64(bytesRecv),
	}

	fields := Fields{
		"goroutines": runtime.NumGoroutine(),
		"channels":   channelData,
	}
	for k, v := range values {
		fields[k] = v
	}
	log.WithComponent("report").WithFields(fields).Info("runtime report")

	reportPublisherMu.RLock()
	publish := reportPublisher
	reportPublisherMu.RUnlock()
	if publish != nil {
		publish(ctx, values)
	}
}
