package orientation

import (
	"sync"
	"time"
)

// Latest is the single-slot handoff between the acquisition loop and
// its consumers: one writer, any number of readers, last-writer-wins.
// Readers may skip samples but never observe a torn or out-of-order one.
type Latest struct {
	mu      sync.RWMutex
	sample  Sample
	have    bool
	updated time.Time
}

// Set publishes a new sample, replacing whatever was there.
func (l *Latest) Set(s Sample) {
	l.mu.Lock()
	l.sample = s
	l.have = true
	l.updated = time.Now()
	l.mu.Unlock()
}

// Get returns a copy of the newest sample, or ok=false before the
// first successful read.
func (l *Latest) Get() (Sample, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sample, l.have
}

// UpdatedAt returns when the newest sample was published. Consumers
// use it to detect a device that stopped producing (stale display
// beats silent hang).
func (l *Latest) UpdatedAt() time.Time {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.updated
}
