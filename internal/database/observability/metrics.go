// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package observability

import (
	"sync/atomic"
	"time"

	"github.com/qolzam/kinit-dal/internal/pkg/log"
)

// SessionStats is a snapshot of unit-of-work counters.
type SessionStats struct {
	Active          int64         `json:"active_sessions"`
	Total           int64         `json:"total_sessions"`
	Committed       int64         `json:"committed_sessions"`
	RolledBack      int64         `json:"rolled_back_sessions"`
	Operations      int64         `json:"operations"`
	CacheHits       int64         `json:"identity_cache_hits"`
	AverageDuration time.Duration `json:"average_duration"`
}

// MetricsCollector counts relational sessions. It keeps no per-session state; the session
// owns its own start time and hands the duration back on completion.
type MetricsCollector struct {
	active        int64
	total         int64
	committed     int64
	rolledBack    int64
	operations    int64
	cacheHits     int64
	totalDuration int64
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

var globalMetrics = NewMetricsCollector()

// GetGlobalMetrics returns the process-wide collector used when none is injected.
func GetGlobalMetrics() *MetricsCollector {
	return globalMetrics
}

func (mc *MetricsCollector) StartSession(id string) time.Time {
	atomic.AddInt64(&mc.active, 1)
	atomic.AddInt64(&mc.total, 1)
	log.Debug("Session started: %s", id)
	return time.Now()
}

func (mc *MetricsCollector) IncrementOperations() {
	atomic.AddInt64(&mc.operations, 1)
}

func (mc *MetricsCollector) RecordCacheHit() {
	atomic.AddInt64(&mc.cacheHits, 1)
}

func (mc *MetricsCollector) CommitSession(id string, started time.Time, operations int64) {
	d := time.Since(started)
	atomic.AddInt64(&mc.active, -1)
	atomic.AddInt64(&mc.committed, 1)
	atomic.AddInt64(&mc.totalDuration, int64(d))
	log.Debug("Session committed: %s (duration: %v, operations: %d)", id, d, operations)
}

func (mc *MetricsCollector) RollbackSession(id string, started time.Time, err error) {
	d := time.Since(started)
	atomic.AddInt64(&mc.active, -1)
	atomic.AddInt64(&mc.rolledBack, 1)
	atomic.AddInt64(&mc.totalDuration, int64(d))
	log.Warn("Session rolled back: %s (duration: %v, error: %v)", id, d, err)
}

// Stats returns the current counters.
func (mc *MetricsCollector) Stats() SessionStats {
	stats := SessionStats{
		Active:     atomic.LoadInt64(&mc.active),
		Total:      atomic.LoadInt64(&mc.total),
		Committed:  atomic.LoadInt64(&mc.committed),
		RolledBack: atomic.LoadInt64(&mc.rolledBack),
		Operations: atomic.LoadInt64(&mc.operations),
		CacheHits:  atomic.LoadInt64(&mc.cacheHits),
	}
	if done := stats.Committed + stats.RolledBack; done > 0 {
		stats.AverageDuration = time.Duration(atomic.LoadInt64(&mc.totalDuration) / done)
	}
	return stats
}
