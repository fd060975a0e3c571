package stats

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	minTrackableUs = 1
	maxTrackableUs = 3600000000 // one hour
	sigFigs        = 3
)

// Latency records per-block transfer latencies in microsecond resolution.
// Values above an hour are clamped.
type Latency struct {
	hist *hdrhistogram.Histogram
}

func NewLatency() *Latency {
	return &Latency{hist: hdrhistogram.New(minTrackableUs, maxTrackableUs, sigFigs)}
}

// Record records a single transfer latency.
func (l *Latency) Record(d time.Duration) {
	us := d.Microseconds()
	if us < minTrackableUs {
		us = minTrackableUs
	}
	if us > maxTrackableUs {
		us = maxTrackableUs
	}
	_ = l.hist.RecordValue(us)
}

// Quantile returns the latency at q, where q is in [0, 1].
func (l *Latency) Quantile(q float64) time.Duration {
	if l.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(l.hist.ValueAtQuantile(q*100)) * time.Microsecond
}

func (l *Latency) Max() time.Duration {
	if l.hist.TotalCount() == 0 {
		return 0
	}
	return time.Duration(l.hist.Max()) * time.Microsecond
}

func (l *Latency) Mean() time.Duration {
	return time.Duration(l.hist.Mean() * float64(time.Microsecond))
}

func (l *Latency) Count() int64 { return l.hist.TotalCount() }

// Merge adds the samples of other into l.
func (l *Latency) Merge(other *Latency) {
	l.hist.Merge(other.hist)
}

func (l *Latency) Reset() { l.hist.Reset() }
