package logger

import (
	"sync"
	"time"
)

// ProgressTracker logs periodic progress for long-running row-oriented
// operations such as parsing a large statement file.
type ProgressTracker struct {
	logger      Logger
	operation   string
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// NewProgressTracker creates a tracker that logs at most once per interval.
// A zero interval defaults to five seconds.
func NewProgressTracker(log Logger, operation string, interval time.Duration) *ProgressTracker {
	if log == nil {
		log = GetGlobalLogger()
	}
	if interval == 0 {
		interval = 5 * time.Second
	}

	now := time.Now()
	return &ProgressTracker{
		logger:      log.WithComponent("progress"),
		operation:   operation,
		startTime:   now,
		lastLogTime: now,
		logInterval: interval,
	}
}

// Increment advances the row counter and logs if the interval has elapsed
func (p *ProgressTracker) Increment() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current++
	now := time.Now()
	if now.Sub(p.lastLogTime) >= p.logInterval {
		p.logger.WithFields(Fields{
			"operation": p.operation,
			"rows":      p.current,
			"elapsed":   now.Sub(p.startTime).String(),
		}).Info("Operation in progress")
		p.lastLogTime = now
	}
}

// Finish logs the final row count and total elapsed time
func (p *ProgressTracker) Finish() {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.logger.WithFields(Fields{
		"operation": p.operation,
		"rows":      p.current,
		"elapsed":   time.Since(p.startTime).String(),
	}).Info("Operation completed")
}

// Count returns the number of increments recorded so far
func (p *ProgressTracker) Count() int64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.current
}
