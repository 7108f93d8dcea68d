package recovery

import (
	"sync"
	"time"
)

// Operation outcome labels recorded against the sample store.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Sample is one counted operation outcome.
type Sample struct {
	At     time.Time
	Status string
}

// SampleReader is the metrics-store view the reporter consumes: a
// time-range query over counter samples tagged with a status label.
type SampleReader interface {
	Samples(from, to time.Time) []Sample
}

// WindowStore is an in-memory SampleReader fed by the coordinator and
// batch operator. Samples past the horizon are pruned on write.
type WindowStore struct {
	mu      sync.RWMutex
	samples []Sample
	horizon time.Duration
}

// NewWindowStore keeps samples for the given horizon (default 1h).
func NewWindowStore(horizon time.Duration) *WindowStore {
	if horizon <= 0 {
		horizon = time.Hour
	}
	return &WindowStore{horizon: horizon}
}

// Record adds one outcome sample.
func (s *WindowStore) Record(status string) {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, Sample{At: now, Status: status})

	cutoff := now.Add(-s.horizon)
	i := 0
	for i < len(s.samples) && s.samples[i].At.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.samples = append(s.samples[:0], s.samples[i:]...)
	}
}

// Samples returns the samples in [from, to].
func (s *WindowStore) Samples(from, to time.Time) []Sample {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Sample
	for _, smp := range s.samples {
		if !smp.At.Before(from) && !smp.At.After(to) {
			out = append(out, smp)
		}
	}
	return out
}

// Reporter computes aggregate error rates over a rolling window.
type Reporter struct {
	reader SampleReader
}

// NewReporter creates a reporter over the given sample source.
func NewReporter(reader SampleReader) *Reporter {
	return &Reporter{reader: reader}
}

// ErrorRate returns errored/total over the trailing window, or 0 when
// no samples fall inside it.
func (r *Reporter) ErrorRate(window time.Duration) float64 {
	now := time.Now()
	samples := r.reader.Samples(now.Add(-window), now)
	if len(samples) == 0 {
		return 0
	}

	errored := 0
	for _, s := range samples {
		if s.Status == StatusError {
			errored++
		}
	}
	return float64(errored) / float64(len(samples))
}
