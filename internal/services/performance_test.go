package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/broadcastkit/studiod/internal/config"
)

func TestPerformanceSamplePopulatesSnapshot(t *testing.T) {
	svc := NewPerformanceService(config.PerformanceConfig{}, nil, slog.Default())
	snapshot := svc.sample(context.Background())

	assert.False(t, snapshot.Timestamp.IsZero())
	assert.Positive(t, snapshot.NumGoroutine)
	assert.Positive(t, snapshot.MemoryTotal)
}

func TestPerformanceLoopPublishesSamples(t *testing.T) {
	bus := NewBus(slog.Default())
	var mu sync.Mutex
	count := 0
	bus.Subscribe(TopicPerformance, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	svc := NewPerformanceService(config.PerformanceConfig{
		Enabled:        true,
		SampleInterval: 10 * time.Millisecond,
	}, bus, slog.Default())
	svc.Start(context.Background())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count >= 2
	}, 2*time.Second, 5*time.Millisecond)
	svc.Stop()

	assert.False(t, svc.Last().Timestamp.IsZero())
}

func TestPerformanceDisabledDoesNotStart(t *testing.T) {
	svc := NewPerformanceService(config.PerformanceConfig{Enabled: false}, nil, slog.Default())
	svc.Start(context.Background())
	svc.Stop()
}
