package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/officialmortgage/livbridge/plugin/ai/timeout"
)

// Sweeper evicts idle sessions.
type Sweeper interface {
	Sweep(idleTTL time.Duration) int
}

// CleanupConfig holds configuration for the cleanup job.
type CleanupConfig struct {
	IdleTTL         time.Duration // Sessions untouched for this long are evicted (default: 30m)
	CleanupInterval time.Duration // Interval between cleanup runs (default: 1m)
}

// DefaultCleanupConfig returns the default cleanup configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		IdleTTL:         timeout.SessionIdleTTL,
		CleanupInterval: timeout.SessionSweepInterval,
	}
}

// CleanupJob periodically evicts idle sessions.
type CleanupJob struct {
	store  Sweeper
	config CleanupConfig

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewCleanupJob creates a new cleanup job.
func NewCleanupJob(store Sweeper, config CleanupConfig) *CleanupJob {
	if config.IdleTTL <= 0 {
		config.IdleTTL = timeout.SessionIdleTTL
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = timeout.SessionSweepInterval
	}

	return &CleanupJob{
		store:  store,
		config: config,
	}
}

// Start begins the periodic cleanup job.
// This method is non-blocking and starts the cleanup in a goroutine.
func (j *CleanupJob) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}

	j.running = true
	j.stopChan = make(chan struct{})
	j.done = make(chan struct{})

	go j.run(ctx, j.stopChan, j.done)

	slog.Info("session cleanup job started",
		"idle_ttl", j.config.IdleTTL,
		"interval", j.config.CleanupInterval)
}

// Stop stops the cleanup job and waits for the loop to exit.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	close(j.stopChan)
	done := j.done
	j.running = false
	j.mu.Unlock()

	<-done
	slog.Info("session cleanup job stopped")
}

// RunOnce executes a single cleanup run immediately.
func (j *CleanupJob) RunOnce() int {
	return j.store.Sweep(j.config.IdleTTL)
}

func (j *CleanupJob) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.mu.Lock()
			j.running = false
			j.mu.Unlock()
			return
		case <-stop:
			return
		case <-ticker.C:
			if evicted := j.RunOnce(); evicted > 0 {
				slog.Info("idle sessions evicted", "evicted", evicted)
			}
		}
	}
}

// IsRunning returns whether the cleanup job is currently running.
func (j *CleanupJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}
