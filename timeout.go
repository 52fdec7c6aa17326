package vkfg

import (
	"log"
	"sync"
	"time"

	"github.com/chewxy/math32"
)

const (
	// dispatchWarnThreshold flags a dispatch worth logging.
	dispatchWarnThreshold = 50 * time.Millisecond
	// dispatchCriticalThreshold counts toward marking the GPU unhealthy.
	dispatchCriticalThreshold = 200 * time.Millisecond
	// criticalStreakLimit is how many critical dispatches in a row flip the
	// detector to unhealthy.
	criticalStreakLimit = 3
	// unhealthyRecoveryCooldown is how long without a critical dispatch before
	// an unhealthy detector reports healthy again.
	unhealthyRecoveryCooldown = 5 * time.Second
	// minWorkgroupCeiling is the floor the adaptive ceiling halves down to.
	minWorkgroupCeiling = 256
	// healthyStreakForRaise is how many clean dispatches in a row earn a
	// ceiling raise.
	healthyStreakForRaise = 120
)

// DispatchStats summarizes observed dispatch timings.
type DispatchStats struct {
	Count         uint64
	CriticalCount uint64
	AverageMillis float32
	MaxMillis     float32
}

// GPUTimeoutDetector watches wall-clock dispatch durations and adapts a
// per-dispatch workgroup ceiling. It cannot interrupt running GPU work; it
// only shapes what gets submitted next. Safe for use from one recording
// goroutine plus readers.
type GPUTimeoutDetector struct {
	mu sync.Mutex

	inDispatch     bool
	dispatchName   string
	dispatchGroups uint32
	started        time.Time

	unhealthy      bool
	criticalStreak int
	healthyStreak  int
	lastCritical   time.Time
	ceiling        uint32

	stats DispatchStats
}

func NewGPUTimeoutDetector() *GPUTimeoutDetector {
	return &GPUTimeoutDetector{ceiling: MaxWorkgroupsPerChunk}
}

func (d *GPUTimeoutDetector) BeginComputeDispatch(name string, workgroups uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inDispatch = true
	d.dispatchName = name
	d.dispatchGroups = workgroups
	d.started = time.Now()
}

func (d *GPUTimeoutDetector) EndComputeDispatch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.inDispatch {
		return
	}
	d.inDispatch = false
	elapsed := time.Since(d.started)

	d.stats.Count++
	millis := float32(elapsed.Microseconds()) / 1000
	d.stats.MaxMillis = math32.Max(d.stats.MaxMillis, millis)
	// Running average without keeping a history.
	d.stats.AverageMillis += (millis - d.stats.AverageMillis) / float32(d.stats.Count)

	switch {
	case elapsed >= dispatchCriticalThreshold:
		d.stats.CriticalCount++
		d.criticalStreak++
		d.healthyStreak = 0
		d.lastCritical = time.Now()
		if d.ceiling/2 >= minWorkgroupCeiling {
			d.ceiling /= 2
		} else {
			d.ceiling = minWorkgroupCeiling
		}
		log.Printf("GPU timeout detector: dispatch %q (%d groups) took %v, ceiling now %d",
			d.dispatchName, d.dispatchGroups, elapsed, d.ceiling)
		if d.criticalStreak >= criticalStreakLimit && !d.unhealthy {
			d.unhealthy = true
			log.Printf("GPU timeout detector: %d critical dispatches in a row, marking GPU unhealthy", d.criticalStreak)
		}
	case elapsed >= dispatchWarnThreshold:
		d.criticalStreak = 0
		d.healthyStreak = 0
		log.Printf("GPU timeout detector: slow dispatch %q (%d groups): %v", d.dispatchName, d.dispatchGroups, elapsed)
	default:
		d.criticalStreak = 0
		d.healthyStreak++
		if d.healthyStreak >= healthyStreakForRaise && d.ceiling < MaxWorkgroupsPerChunk {
			d.ceiling *= 2
			if d.ceiling > MaxWorkgroupsPerChunk {
				d.ceiling = MaxWorkgroupsPerChunk
			}
			d.healthyStreak = 0
		}
	}
}

// IsGPUHealthy reports the current health verdict. An unhealthy detector
// recovers on its own once no critical dispatch has been seen for the
// cooldown period.
func (d *GPUTimeoutDetector) IsGPUHealthy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unhealthy && time.Since(d.lastCritical) >= unhealthyRecoveryCooldown {
		d.unhealthy = false
		d.criticalStreak = 0
		log.Printf("GPU timeout detector: cooldown elapsed, GPU considered healthy again")
	}
	return !d.unhealthy
}

func (d *GPUTimeoutDetector) RecoveryRecommendation() RecoveryRecommendation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return RecoveryRecommendation{
		ShouldReduceWorkload:     d.unhealthy || d.ceiling < MaxWorkgroupsPerChunk,
		RecommendedMaxWorkgroups: d.ceiling,
		ShouldSplitDispatches:    d.unhealthy || d.criticalStreak > 0,
	}
}

// ResetHealth clears the unhealthy flag and restores the default ceiling,
// typically after a device-level recovery.
func (d *GPUTimeoutDetector) ResetHealth() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unhealthy = false
	d.criticalStreak = 0
	d.healthyStreak = 0
	d.ceiling = MaxWorkgroupsPerChunk
}

// Stats returns a snapshot of observed dispatch timings.
func (d *GPUTimeoutDetector) Stats() DispatchStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
