package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/runningwild/diskmark/pkg/stats"
)

// Engine runs a single WRITE or READ phase. An Engine is single use: once
// RunPhase has started, further calls fail with ErrEngineUsed.
type Engine struct {
	state atomic.Int32
	units atomic.Int64 // blocks transferred so far

	timer   Timer
	stats   stats.RunningStats
	latency *stats.Latency
	rand    *rand.Rand
	open    openFunc
}

type Option func(*Engine)

// WithSeed fixes the seed used for random block offsets.
func WithSeed(seed int64) Option {
	return func(e *Engine) {
		e.rand = rand.New(rand.NewSource(seed))
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{
		latency: stats.NewLatency(),
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		open:    openBlockFile,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current lifecycle state. Safe for concurrent use.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// UnitsComplete returns the number of blocks transferred so far. Safe for
// concurrent use.
func (e *Engine) UnitsComplete() int64 {
	return e.units.Load()
}

// Normalize fills in defaults for the optional fields of cfg.
func Normalize(cfg PhaseConfig) PhaseConfig {
	if cfg.Order == "" {
		cfg.Order = Sequential
	}
	if cfg.Mode == "" {
		cfg.Mode = Buffered
	}
	if cfg.Backend == "" {
		cfg.Backend = BackendSync
	}
	return cfg
}

// Validate checks cfg without touching the filesystem.
func Validate(cfg PhaseConfig) error {
	cfg = Normalize(cfg)
	switch cfg.Direction {
	case Write, Read:
	default:
		return invalidConfig("unknown direction %q", cfg.Direction)
	}
	if cfg.BlockSize <= 0 {
		return invalidConfig("block size must be positive, got %d", cfg.BlockSize)
	}
	if cfg.BlocksPerMark <= 0 {
		return invalidConfig("blocks per mark must be positive, got %d", cfg.BlocksPerMark)
	}
	if cfg.NumMarks <= 0 {
		return invalidConfig("number of marks must be positive, got %d", cfg.NumMarks)
	}
	if cfg.StartMark < 0 {
		return invalidConfig("start mark must not be negative, got %d", cfg.StartMark)
	}
	switch cfg.Order {
	case Sequential, Random:
	default:
		return invalidConfig("unknown block order %q", cfg.Order)
	}
	switch cfg.Mode {
	case Buffered, Durable:
	case Direct:
		if directFlag == 0 {
			return invalidConfig("direct mode is not supported on this platform")
		}
		if cfg.BlockSize%512 != 0 {
			return invalidConfig("direct mode needs a block size multiple of 512, got %d", cfg.BlockSize)
		}
	default:
		return invalidConfig("unknown access mode %q", cfg.Mode)
	}
	switch cfg.Backend {
	case BackendSync, BackendUring, BackendLibAIO:
	default:
		return invalidConfig("unknown backend %q", cfg.Backend)
	}
	if cfg.Dir == "" {
		return invalidConfig("target directory is empty")
	}
	return nil
}

// RunPhase executes the phase described by cfg, reporting progress and
// marks to r, and returns rec populated with the phase results. A nil rec
// is replaced by a fresh record; a nil r discards all reports.
//
// The reporter's cancellation flag is polled before each mark. Cancelling
// ctx additionally aborts a mark between blocks; the partial mark is not
// reported. Either way the phase ends in the Cancelled state with a nil
// error. I/O failures end the phase immediately with a *PhaseError that
// carries the partially populated record.
func (e *Engine) RunPhase(ctx context.Context, cfg PhaseConfig, rec *RunRecord, r Reporter) (*RunRecord, error) {
	if e.State() != Ready {
		return rec, ErrEngineUsed
	}
	cfg = Normalize(cfg)
	if err := Validate(cfg); err != nil {
		return rec, err
	}
	if !e.state.CompareAndSwap(int32(Ready), int32(Running)) {
		return rec, ErrEngineUsed
	}

	if rec == nil {
		rec = &RunRecord{}
	}
	if r == nil {
		r = nopReporter{}
	}
	rec.apply(cfg)
	if rec.StartTime.IsZero() {
		rec.StartTime = time.Now()
	}
	e.stats.Reset()
	e.latency.Reset()

	buf, err := NewBlockBuffer(cfg.BlockSize)
	if err != nil {
		e.finish(rec, Failed, err)
		return rec, err
	}
	defer buf.Close()

	total := cfg.TotalUnits()
	end := cfg.StartMark + cfg.NumMarks
	for m := cfg.StartMark; m < end; m++ {
		if r.CancellationRequested() || ctx.Err() != nil {
			e.finish(rec, Cancelled, nil)
			return rec, nil
		}

		mark, err := e.runMark(ctx, cfg, m, buf, r, total)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				e.finish(rec, Cancelled, nil)
				return rec, nil
			}
			e.finish(rec, Failed, err)
			var pe *PhaseError
			if errors.As(err, &pe) {
				pe.Record = rec
			}
			return rec, err
		}

		e.stats.Update(mark.Bandwidth)
		mark.CumMin = e.stats.Min()
		mark.CumMax = e.stats.Max()
		mark.CumAvg = e.stats.Avg()
		rec.Min = mark.CumMin
		rec.Max = mark.CumMax
		rec.Avg = mark.CumAvg
		rec.MarksCompleted++
		rec.EndTime = time.Now()

		r.ReportMark(mark)
		r.ReportLog(markSummary(mark))
	}

	e.finish(rec, Completed, nil)
	r.ReportProgress(100)
	return rec, nil
}

func (e *Engine) runMark(ctx context.Context, cfg PhaseConfig, m int, buf *BlockBuffer, r Reporter, total int64) (mark Mark, err error) {
	path := FilePath(cfg, m)
	f, err := e.open(path, cfg)
	if err != nil {
		return Mark{}, &PhaseError{Op: "open", Path: path, Mark: m, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = &PhaseError{Op: "close", Path: path, Mark: m, Err: cerr}
		}
	}()

	data := buf.Bytes()
	e.timer.Start()
	// Block latencies chain off a single clock read per block. That read,
	// the histogram update and the progress report are counted in the
	// mark's elapsed time.
	prev := time.Now()
	for b := 0; b < cfg.BlocksPerMark; b++ {
		if err := ctx.Err(); err != nil {
			return Mark{}, err
		}
		off := e.blockOffset(cfg, b)
		if cfg.Direction == Write {
			err = f.WriteBlock(data, off)
		} else {
			err = f.ReadBlock(data, off)
		}
		if err != nil {
			return Mark{}, &PhaseError{Op: string(cfg.Direction), Path: path, Mark: m, Err: err}
		}
		now := time.Now()
		e.latency.Record(now.Sub(prev))
		prev = now
		r.ReportProgress(percentComplete(e.units.Add(1), total))
	}
	elapsed, err := e.timer.Stop()
	if err != nil {
		return Mark{}, err
	}
	// Clock resolution can make a tiny mark appear instantaneous.
	if elapsed <= 0 {
		elapsed = 1
	}

	bytes := cfg.MarkBytes()
	seconds := float64(elapsed) / 1e9
	megabytes := float64(bytes) / float64(MiB)
	return Mark{
		Index:            m,
		Direction:        cfg.Direction,
		Bandwidth:        megabytes / seconds,
		Elapsed:          time.Duration(elapsed),
		BytesTransferred: bytes,
	}, nil
}

// blockOffset returns the byte offset of block b within the mark's file.
// Random offsets are drawn with replacement, so a short mark may visit a
// location twice and skip another.
func (e *Engine) blockOffset(cfg PhaseConfig, b int) int64 {
	idx := b
	if cfg.Order == Random {
		idx = e.rand.Intn(cfg.BlocksPerMark)
	}
	return int64(idx) * int64(cfg.BlockSize)
}

func (e *Engine) finish(rec *RunRecord, s State, err error) {
	e.state.Store(int32(s))
	rec.EndTime = time.Now()
	rec.State = s.String()
	if err != nil {
		rec.Error = err.Error()
	}
	if e.latency.Count() > 0 {
		rec.P50Latency = e.latency.Quantile(0.50)
		rec.P99Latency = e.latency.Quantile(0.99)
		rec.MaxLatency = e.latency.Max()
	}
}

// percentComplete truncates to 0..99; 100 is reserved for a finished phase.
func percentComplete(done, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(done * 100 / total)
	if p > 99 {
		p = 99
	}
	return p
}

func markSummary(m Mark) string {
	verb := "written"
	if m.Direction == Read {
		verb = "read"
	}
	return fmt.Sprintf("m:%d %s IO is %.3f MB/s (%.2f MB %s in %.4f sec)",
		m.Index, m.Direction, m.Bandwidth, m.MegabytesTransferred(), verb, m.ElapsedSeconds())
}
