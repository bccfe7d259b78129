// Package perf tracks the timing and outcome of every generation call and
// derives adaptive timeouts and degradation signals from the history.
// It only reads and writes in-memory state: absence of data yields defaults,
// never errors.
package perf

import (
	"sync"
	"time"
)

// maxRecords bounds the ring buffer; the oldest record is evicted on overflow.
const maxRecords = 500

const (
	// TimeoutFloor and TimeoutCeil clamp every adaptive timeout.
	TimeoutFloor = 60 * time.Second
	TimeoutCeil  = 900 * time.Second

	safetyMargin = 60 * time.Second
	trendFactor  = 2.5
)

// defaultTimeouts is keyed by operation kind; unknown kinds fall back to
// DefaultTimeout.
var defaultTimeouts = map[string]time.Duration{
	"skeleton": 240 * time.Second,
	"section":  240 * time.Second,
	"question": 180 * time.Second,
	"answer":   180 * time.Second,
	"analysis": 120 * time.Second,
	"revision": 300 * time.Second,
	"redraft":  300 * time.Second,
}

const DefaultTimeout = 240 * time.Second

// OperationRecord is one completed generation call. Immutable once appended.
type OperationRecord struct {
	Model        string        `json:"model"`
	Op           string        `json:"op"`
	Duration     time.Duration `json:"duration"`
	At           time.Time     `json:"at"`
	Succeeded    bool          `json:"succeeded"`
	OutputLength int           `json:"output_length,omitempty"`
}

// Profile is the derived view over the records of one (model, op) pair.
type Profile struct {
	Avg         time.Duration
	Min         time.Duration
	Max         time.Duration
	SuccessRate float64
	SampleCount int
	RecentAvg   time.Duration // over the last 10 samples
}

// Ledger is the bounded operation-performance history for one book run.
// Mutated only by the orchestrator's execution thread; the mutex guards the
// snapshot writer.
type Ledger struct {
	mu      sync.Mutex
	records []OperationRecord
	path    string // optional JSON snapshot target; empty disables persistence
}

func NewLedger() *Ledger { return &Ledger{} }

// NewPersistentLedger loads any previous snapshot from path and writes a new
// snapshot after every record. Snapshot failures are logged and ignored.
func NewPersistentLedger(path string) *Ledger {
	l := &Ledger{path: path}
	l.loadSnapshot()
	return l
}

// Record appends one operation outcome and trims the ring to capacity.
func (l *Ledger) Record(model, op string, d time.Duration, succeeded bool, outputLength int) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.records = append(l.records, OperationRecord{
		Model:        model,
		Op:           op,
		Duration:     d,
		At:           time.Now(),
		Succeeded:    succeeded,
		OutputLength: outputLength,
	})
	if over := len(l.records) - maxRecords; over > 0 {
		l.records = append(l.records[:0:0], l.records[over:]...)
	}
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.writeSnapshot(snapshot)
}

// Profile computes the derived stats for a (model, op) pair. Pass op == ""
// to aggregate over every operation kind of the model.
func (l *Ledger) Profile(model, op string) Profile {
	recs := l.recordsFor(model, op)
	if len(recs) == 0 {
		return Profile{}
	}
	var p Profile
	p.SampleCount = len(recs)
	p.Min = recs[0].Duration
	var total time.Duration
	successes := 0
	for _, r := range recs {
		total += r.Duration
		if r.Duration < p.Min {
			p.Min = r.Duration
		}
		if r.Duration > p.Max {
			p.Max = r.Duration
		}
		if r.Succeeded {
			successes++
		}
	}
	p.Avg = total / time.Duration(len(recs))
	p.SuccessRate = float64(successes) / float64(len(recs))
	p.RecentAvg = avgDuration(durations(tail(recs, 10)))
	return p
}

// RecommendedTimeout derives the adaptive timeout for the next call of
// (model, op). With fewer than 3 successful samples it returns the fixed
// default for the operation kind, independent of failure history.
func (l *Ledger) RecommendedTimeout(model, op string) time.Duration {
	successes := successDurations(l.recordsFor(model, op))
	if len(successes) < 3 {
		if d, ok := defaultTimeouts[op]; ok {
			return d
		}
		return DefaultTimeout
	}
	trend := time.Duration(float64(avgDuration(tail(successes, 10))) * trendFactor)
	safety := maxDuration(successes) + safetyMargin
	timeout := trend
	if safety > timeout {
		timeout = safety
	}
	if timeout < TimeoutFloor {
		timeout = TimeoutFloor
	}
	if timeout > TimeoutCeil {
		timeout = TimeoutCeil
	}
	return timeout
}

// IsDegrading reports whether the model's recent calls are markedly slower
// than its lifetime average. Requires at least 10 samples across all
// operation kinds.
func (l *Ledger) IsDegrading(model string) bool {
	recs := l.recordsFor(model, "")
	if len(recs) < 10 {
		return false
	}
	all := durations(recs)
	overall := avgDuration(all)
	recent := avgDuration(tail(all, 20))
	return float64(recent) > 1.5*float64(overall)
}

// Len reports the number of retained records.
func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

func (l *Ledger) recordsFor(model, op string) []OperationRecord {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]OperationRecord, 0, len(l.records))
	for _, r := range l.records {
		if r.Model != model {
			continue
		}
		if op != "" && r.Op != op {
			continue
		}
		out = append(out, r)
	}
	return out
}

func successDurations(recs []OperationRecord) []time.Duration {
	out := make([]time.Duration, 0, len(recs))
	for _, r := range recs {
		if r.Succeeded {
			out = append(out, r.Duration)
		}
	}
	return out
}

func durations(recs []OperationRecord) []time.Duration {
	out := make([]time.Duration, len(recs))
	for i, r := range recs {
		out[i] = r.Duration
	}
	return out
}

func tail[T any](s []T, n int) []T {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func avgDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var total time.Duration
	for _, d := range ds {
		total += d
	}
	return total / time.Duration(len(ds))
}

func maxDuration(ds []time.Duration) time.Duration {
	var m time.Duration
	for _, d := range ds {
		if d > m {
			m = d
		}
	}
	return m
}
