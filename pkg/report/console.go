package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"

	"github.com/runningwild/diskmark/pkg/engine"
)

const barWidth = 30

// Console renders marks and a progress bar on a terminal. Cancel may be
// called from any goroutine, typically a signal handler.
type Console struct {
	Verbose bool // also print the engine's log lines

	mu      sync.Mutex
	w       io.Writer
	lastPct int
	inBar   bool

	cancel atomic.Bool

	writeColor *color.Color
	readColor  *color.Color
	logColor   *color.Color
}

func NewConsole(w io.Writer) *Console {
	return &Console{
		w:          w,
		lastPct:    -1,
		writeColor: color.New(color.FgYellow),
		readColor:  color.New(color.FgCyan),
		logColor:   color.New(color.Faint),
	}
}

// Cancel asks the running phase to stop before its next mark.
func (c *Console) Cancel() { c.cancel.Store(true) }

// Reset clears the cancellation flag and progress state.
func (c *Console) Reset() {
	c.cancel.Store(false)
	c.mu.Lock()
	c.lastPct = -1
	c.mu.Unlock()
}

func (c *Console) CancellationRequested() bool { return c.cancel.Load() }

func (c *Console) ReportProgress(pct int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if pct == c.lastPct {
		return
	}
	c.lastPct = pct
	filled := pct * barWidth / 100
	fmt.Fprintf(c.w, "\r[%s%s] %3d%%", strings.Repeat("#", filled), strings.Repeat(" ", barWidth-filled), pct)
	c.inBar = true
	if pct >= 100 {
		c.endBar()
		c.lastPct = -1
	}
}

func (c *Console) ReportMark(m engine.Mark) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endBar()
	col := c.writeColor
	if m.Direction == engine.Read {
		col = c.readColor
	}
	col.Fprintf(c.w, "%-5s mark %4d %10.2f MB/s   min %8.2f  max %8.2f  avg %8.2f\n",
		m.Direction, m.Index, m.Bandwidth, m.CumMin, m.CumMax, m.CumAvg)
}

func (c *Console) ReportLog(msg string) {
	if !c.Verbose {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endBar()
	c.logColor.Fprintln(c.w, msg)
}

// Message prints an operator-facing line regardless of Verbose.
func (c *Console) Message(format string, args ...interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endBar()
	fmt.Fprintf(c.w, format+"\n", args...)
}

// Summary prints the final line for a phase.
func (c *Console) Summary(rec *engine.RunRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endBar()
	attr := color.FgYellow
	if rec.Direction == engine.Read {
		attr = color.FgCyan
	}
	color.New(attr, color.Bold).Fprintf(c.w, "%s %s: %d/%d marks, min %.2f max %.2f avg %.2f MB/s, p99 block latency %v\n",
		strings.ToUpper(string(rec.Direction)), rec.State, rec.MarksCompleted, rec.NumMarks,
		rec.Min, rec.Max, rec.Avg, rec.P99Latency)
}

func (c *Console) endBar() {
	if c.inBar {
		fmt.Fprintln(c.w)
		c.inBar = false
	}
}
