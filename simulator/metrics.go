package simulator

import (
	"sync"
	"time"

	"github.com/example/walker_sim/logging"
)

// Metrics accumulates engine throughput and logs it once per interval.
type Metrics struct {
	mu             sync.Mutex
	interval       time.Duration
	trials         int64
	replications   int
	totalTrials    int64
	lastReportTime time.Time
	now            func() time.Time
}

// NewMetrics creates a collector reporting every interval.
func NewMetrics(interval time.Duration) *Metrics {
	return &Metrics{
		interval:       interval,
		lastReportTime: time.Now(),
		now:            time.Now,
	}
}

// RecordTrials adds finished trials.
func (m *Metrics) RecordTrials(count int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.trials += int64(count)
	m.totalTrials += int64(count)
	m.emitIfNeeded()
	m.mu.Unlock()
}

// RecordReplication counts one committed replication.
func (m *Metrics) RecordReplication() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.replications++
	m.emitIfNeeded()
	m.mu.Unlock()
}

// TotalTrials returns every trial recorded since creation.
func (m *Metrics) TotalTrials() int64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalTrials
}

func (m *Metrics) emitIfNeeded() {
	now := m.now()
	if now.Sub(m.lastReportTime) < m.interval {
		return
	}
	duration := now.Sub(m.lastReportTime).Seconds()
	throughput := float64(m.trials)
	if duration > 0 {
		throughput = throughput / duration
	}
	logging.GetLogger().Infof("Throughput %.0f trials/s, replications committed %d", throughput, m.replications)
	m.trials = 0
	m.replications = 0
	m.lastReportTime = now
}
