package report

import (
	"github.com/runningwild/diskmark/pkg/engine"
)

type tee []engine.Reporter

// Tee fans every report out to all reporters. Cancellation is requested
// when any of them requests it.
func Tee(reporters ...engine.Reporter) engine.Reporter {
	return tee(reporters)
}

func (t tee) ReportProgress(pct int) {
	for _, r := range t {
		r.ReportProgress(pct)
	}
}

func (t tee) ReportMark(m engine.Mark) {
	for _, r := range t {
		r.ReportMark(m)
	}
}

func (t tee) ReportLog(msg string) {
	for _, r := range t {
		r.ReportLog(msg)
	}
}

func (t tee) CancellationRequested() bool {
	for _, r := range t {
		if r.CancellationRequested() {
			return true
		}
	}
	return false
}
