package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for sweeps and the HTTP surface.
type Metrics struct {
	mu           sync.Mutex
	sweepCount   map[string]int64
	itemCount    map[string]int64
	itemErrors   map[string]int64
	requestCount map[string]int64
	errorCount   map[string]int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		sweepCount:   make(map[string]int64),
		itemCount:    make(map[string]int64),
		itemErrors:   make(map[string]int64),
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
	}
}

// RecordSweep counts one execution of a scheduled sweep.
func (m *Metrics) RecordSweep(sweep string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepCount[sweep]++
}

// RecordItem counts one successfully processed sweep item.
func (m *Metrics) RecordItem(sweep string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemCount[sweep]++
}

// RecordItemError counts one failed sweep item.
func (m *Metrics) RecordItemError(sweep string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.itemErrors[sweep]++
}

// RecordRequest increments counters for HTTP requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments HTTP error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// Snapshot returns a copy of all counters for the metrics endpoint.
func (m *Metrics) Snapshot() map[string]map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]map[string]int64{
		"sweeps":      copyCounters(m.sweepCount),
		"items":       copyCounters(m.itemCount),
		"item_errors": copyCounters(m.itemErrors),
		"requests":    copyCounters(m.requestCount),
		"errors":      copyCounters(m.errorCount),
	}
}

func copyCounters(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
