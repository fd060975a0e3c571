package report

import (
	"sync"

	"github.com/runningwild/diskmark/pkg/engine"
)

// Collector is a synchronous Reporter that keeps everything it receives.
type Collector struct {
	mu          sync.Mutex
	marks       []engine.Mark
	progress    []int
	logs        []string
	cancelled   bool
	cancelAfter int
}

// CancelAfter requests cancellation once n marks have been reported.
func (c *Collector) CancelAfter(n int) {
	c.mu.Lock()
	c.cancelAfter = n
	c.mu.Unlock()
}

func (c *Collector) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
}

func (c *Collector) ReportProgress(pct int) {
	c.mu.Lock()
	c.progress = append(c.progress, pct)
	c.mu.Unlock()
}

func (c *Collector) ReportMark(m engine.Mark) {
	c.mu.Lock()
	c.marks = append(c.marks, m)
	c.mu.Unlock()
}

func (c *Collector) ReportLog(msg string) {
	c.mu.Lock()
	c.logs = append(c.logs, msg)
	c.mu.Unlock()
}

func (c *Collector) CancellationRequested() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled || (c.cancelAfter > 0 && len(c.marks) >= c.cancelAfter)
}

func (c *Collector) Marks() []engine.Mark {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]engine.Mark(nil), c.marks...)
}

func (c *Collector) Progress() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.progress...)
}

func (c *Collector) Logs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.logs...)
}
