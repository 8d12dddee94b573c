package ffmpeg

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessStats contains resource usage statistics for an FFmpeg process.
type ProcessStats struct {
	PID            int           `json:"pid"`
	CPUPercent     float64       `json:"cpu_percent"`
	MemoryRSSBytes uint64        `json:"memory_rss_bytes"`
	MemoryPercent  float32       `json:"memory_percent"`
	Uptime         time.Duration `json:"uptime"`
	LastUpdated    time.Time     `json:"last_updated,omitzero"`
}

// ProcessMonitor samples CPU and memory usage of a process at an interval.
type ProcessMonitor struct {
	pid       int
	interval  time.Duration
	startedAt time.Time

	mu    sync.RWMutex
	stats ProcessStats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewProcessMonitor creates a monitor for pid sampling every interval.
func NewProcessMonitor(pid int, interval time.Duration) *ProcessMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &ProcessMonitor{
		pid:       pid,
		interval:  interval,
		startedAt: time.Now(),
		stats:     ProcessStats{PID: pid},
	}
}

// Start begins sampling until Stop is called or the process disappears.
func (pm *ProcessMonitor) Start(ctx context.Context) {
	proc, err := process.NewProcessWithContext(ctx, int32(pm.pid))
	if err != nil {
		return
	}

	ctx, pm.cancel = context.WithCancel(ctx)
	pm.wg.Add(1)
	go func() {
		defer pm.wg.Done()
		ticker := time.NewTicker(pm.interval)
		defer ticker.Stop()

		pm.sample(ctx, proc)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !pm.sample(ctx, proc) {
					return
				}
			}
		}
	}()
}

// Stop stops sampling and waits for the sampler to exit.
func (pm *ProcessMonitor) Stop() {
	if pm.cancel != nil {
		pm.cancel()
	}
	pm.wg.Wait()
}

// Stats returns the last sample.
func (pm *ProcessMonitor) Stats() ProcessStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.stats
}

func (pm *ProcessMonitor) sample(ctx context.Context, proc *process.Process) bool {
	running, err := proc.IsRunningWithContext(ctx)
	if err != nil || !running {
		return false
	}

	stats := ProcessStats{
		PID:         pm.pid,
		Uptime:      time.Since(pm.startedAt),
		LastUpdated: time.Now(),
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		stats.MemoryRSSBytes = mem.RSS
	}
	if pct, err := proc.MemoryPercentWithContext(ctx); err == nil {
		stats.MemoryPercent = pct
	}

	pm.mu.Lock()
	pm.stats = stats
	pm.mu.Unlock()
	return true
}
