package engine

// Reporter receives live output from a running phase. ReportProgress,
// ReportMark and ReportLog are called from the goroutine running the phase;
// CancellationRequested may be backed by state that another goroutine sets,
// so implementations must make it safe for concurrent use.
type Reporter interface {
	// ReportProgress receives the percent of the phase completed, 0..100.
	ReportProgress(percent int)
	// ReportMark is called once per completed mark, in mark index order.
	ReportMark(m Mark)
	ReportLog(msg string)
	// CancellationRequested is polled before each mark.
	CancellationRequested() bool
}

type nopReporter struct{}

func (nopReporter) ReportProgress(int)          {}
func (nopReporter) ReportMark(Mark)             {}
func (nopReporter) ReportLog(string)            {}
func (nopReporter) CancellationRequested() bool { return false }
