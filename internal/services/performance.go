package services

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/broadcastkit/studiod/internal/config"
)

// PerformanceSnapshot is one system performance sample.
type PerformanceSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryPercent float64   `json:"memoryPercent"`
	MemoryUsed    uint64    `json:"memoryUsedBytes"`
	MemoryTotal   uint64    `json:"memoryTotalBytes"`
	LoadAvg1m     float64   `json:"loadAvg1m"`
	NumGoroutine  int       `json:"numGoroutine"`
}

// PerformanceService samples system load on a fixed interval and publishes
// each sample on the performance topic. Sampling failures are logged and
// skipped; partial samples are published as-is.
type PerformanceService struct {
	cfg config.PerformanceConfig
	bus *Bus
	log *slog.Logger

	mu     sync.Mutex
	last   PerformanceSnapshot
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPerformanceService creates the performance sampler.
func NewPerformanceService(cfg config.PerformanceConfig, bus *Bus, log *slog.Logger) *PerformanceService {
	if log == nil {
		log = slog.Default()
	}
	return &PerformanceService{cfg: cfg, bus: bus, log: log}
}

// Start launches the sampling loop. A no-op when sampling is disabled.
func (s *PerformanceService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		return
	}
	interval := s.cfg.SampleInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				snapshot := s.sample(ctx)
				s.mu.Lock()
				s.last = snapshot
				s.mu.Unlock()
				if s.bus != nil {
					s.bus.Publish(TopicPerformance, snapshot)
				}
			}
		}
	}()
	s.log.Info("performance sampling started",
		slog.Duration("interval", interval))
}

// Stop terminates the sampling loop and waits for it to exit.
func (s *PerformanceService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.cancel = nil
}

// Last returns the most recent sample.
func (s *PerformanceService) Last() PerformanceSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *PerformanceService) sample(ctx context.Context) PerformanceSnapshot {
	snapshot := PerformanceSnapshot{
		Timestamp:    time.Now(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		snapshot.CPUPercent = percents[0]
	} else if err != nil {
		s.log.Debug("cpu sample failed", slog.String("error", err.Error()))
	}

	if memInfo, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		snapshot.MemoryPercent = memInfo.UsedPercent
		snapshot.MemoryUsed = memInfo.Used
		snapshot.MemoryTotal = memInfo.Total
	} else {
		s.log.Debug("memory sample failed", slog.String("error", err.Error()))
	}

	if loadAvg, err := load.AvgWithContext(ctx); err == nil {
		snapshot.LoadAvg1m = loadAvg.Load1
	}

	return snapshot
}
