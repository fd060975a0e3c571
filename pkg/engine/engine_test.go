package engine

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testReporter collects everything a phase reports and can request
// cancellation once a given number of marks have been seen.
type testReporter struct {
	mu          sync.Mutex
	marks       []Mark
	progress    []int
	logs        []string
	cancelAfter int
}

func (r *testReporter) ReportProgress(p int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *testReporter) ReportMark(m Mark) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks = append(r.marks, m)
}

func (r *testReporter) ReportLog(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, msg)
}

func (r *testReporter) CancellationRequested() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelAfter > 0 && len(r.marks) >= r.cancelAfter
}

// recordingFile remembers the offset of every transfer without touching disk.
type recordingFile struct {
	offsets *[]int64
	onBlock func(n int) error
}

func (f *recordingFile) WriteBlock(buf []byte, off int64) error { return f.record(off) }
func (f *recordingFile) ReadBlock(buf []byte, off int64) error  { return f.record(off) }
func (f *recordingFile) Close() error                           { return nil }

func (f *recordingFile) record(off int64) error {
	*f.offsets = append(*f.offsets, off)
	if f.onBlock != nil {
		return f.onBlock(len(*f.offsets))
	}
	return nil
}

func recordingEngine(offsets *[]int64, opts ...Option) *Engine {
	e := New(opts...)
	e.open = func(string, PhaseConfig) (blockFile, error) {
		return &recordingFile{offsets: offsets}, nil
	}
	return e
}

func phase(dir Direction, t *testing.T) PhaseConfig {
	return PhaseConfig{
		Direction:     dir,
		BlockSize:     4096,
		BlocksPerMark: 4,
		NumMarks:      3,
		Dir:           t.TempDir(),
	}
}

func TestSequentialOffsets(t *testing.T) {
	var offsets []int64
	e := recordingEngine(&offsets)

	cfg := phase(Write, t)
	cfg.NumMarks = 1
	_, err := e.RunPhase(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 4096, 8192, 12288}, offsets)
}

func TestLatencyRecordedPerBlock(t *testing.T) {
	var offsets []int64
	e := recordingEngine(&offsets)

	rec, err := e.RunPhase(context.Background(), phase(Write, t), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3*4), e.latency.Count())
	assert.LessOrEqual(t, rec.P50Latency, rec.MaxLatency)
}

func TestRandomOffsetsStayInRange(t *testing.T) {
	var offsets []int64
	e := recordingEngine(&offsets, WithSeed(42))

	cfg := phase(Read, t)
	cfg.Order = Random
	cfg.BlocksPerMark = 8
	cfg.NumMarks = 200
	_, err := e.RunPhase(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, offsets, 8*200)

	seen := make(map[int64]bool)
	for _, off := range offsets {
		assert.Zero(t, off%4096, "offset %d is not block aligned", off)
		assert.GreaterOrEqual(t, off, int64(0))
		assert.LessOrEqual(t, off, int64(7*4096))
		seen[off] = true
	}
	assert.Len(t, seen, 8, "every block location should eventually be drawn")
}

func TestMarksAndRecord(t *testing.T) {
	dir := t.TempDir()
	rep := &testReporter{}
	cfg := PhaseConfig{
		Direction:     Write,
		BlockSize:     4096,
		BlocksPerMark: 16,
		NumMarks:      3,
		StartMark:     10,
		MultiFile:     true,
		Dir:           dir,
	}

	e := New()
	rec, err := e.RunPhase(context.Background(), cfg, &RunRecord{DiskInfo: "test disk"}, rep)
	require.NoError(t, err)
	assert.Equal(t, Completed, e.State())
	assert.Equal(t, int64(48), e.UnitsComplete())

	require.Len(t, rep.marks, 3)
	for i, m := range rep.marks {
		assert.Equal(t, 10+i, m.Index)
		assert.Equal(t, int64(16*4096), m.BytesTransferred)
		assert.Greater(t, m.Bandwidth, 0.0)
		assert.False(t, math.IsInf(m.Bandwidth, 0))
		assert.LessOrEqual(t, m.CumMin, m.CumAvg)
		assert.LessOrEqual(t, m.CumAvg, m.CumMax)
		assert.FileExists(t, filepath.Join(dir, FileName(true, m.Index)))
	}
	assert.Len(t, rep.logs, 3)
	assert.Contains(t, rep.logs[0], "m:10 write IO is")

	assert.Equal(t, "test disk", rec.DiskInfo)
	assert.Equal(t, Write, rec.Direction)
	assert.Equal(t, 4096, rec.BlockSize)
	assert.Equal(t, 16, rec.BlocksPerMark)
	assert.Equal(t, 3, rec.NumMarks)
	assert.Equal(t, int64(3*16*4), rec.TxSizeKB)
	assert.Equal(t, 3, rec.MarksCompleted)
	assert.Equal(t, "completed", rec.State)
	assert.Equal(t, rep.marks[2].CumAvg, rec.Avg)
	assert.Equal(t, rep.marks[2].CumMin, rec.Min)
	assert.Equal(t, rep.marks[2].CumMax, rec.Max)
	assert.False(t, rec.EndTime.Before(rec.StartTime))
	assert.Greater(t, rec.P99Latency, time.Duration(0))
}

func TestProgress(t *testing.T) {
	var offsets []int64
	e := recordingEngine(&offsets)
	rep := &testReporter{}

	cfg := phase(Write, t)
	_, err := e.RunPhase(context.Background(), cfg, nil, rep)
	require.NoError(t, err)

	require.Len(t, rep.progress, 13)
	for i, p := range rep.progress[:12] {
		assert.LessOrEqual(t, p, 99)
		if i > 0 {
			assert.GreaterOrEqual(t, p, rep.progress[i-1])
		}
	}
	assert.Equal(t, 8, rep.progress[0])
	assert.Equal(t, 99, rep.progress[11])
	assert.Equal(t, 100, rep.progress[12])
}

func TestCancellationBetweenMarks(t *testing.T) {
	dir := t.TempDir()
	rep := &testReporter{cancelAfter: 2}
	cfg := PhaseConfig{
		Direction:     Write,
		BlockSize:     4096,
		BlocksPerMark: 4,
		NumMarks:      5,
		MultiFile:     true,
		Dir:           dir,
	}

	e := New()
	rec, err := e.RunPhase(context.Background(), cfg, nil, rep)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, e.State())
	assert.Equal(t, "cancelled", rec.State)
	assert.Len(t, rep.marks, 2)
	assert.Equal(t, 2, rec.MarksCompleted)
	assert.NotContains(t, rep.progress, 100)

	for m := 0; m < 5; m++ {
		_, err := os.Stat(filepath.Join(dir, FileName(true, m)))
		if m < 2 {
			assert.NoError(t, err, "mark %d", m)
		} else {
			assert.True(t, os.IsNotExist(err), "mark %d file should not exist", m)
		}
	}
}

func TestContextCancelAbortsMark(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var offsets []int64
	e := New()
	e.open = func(string, PhaseConfig) (blockFile, error) {
		return &recordingFile{offsets: &offsets, onBlock: func(n int) error {
			if n == 6 {
				cancel()
			}
			return nil
		}}, nil
	}
	rep := &testReporter{}
	rec, err := e.RunPhase(ctx, phase(Write, t), nil, rep)
	require.NoError(t, err)
	assert.Equal(t, Cancelled, e.State())
	assert.Len(t, rep.marks, 1)
	assert.Equal(t, 1, rec.MarksCompleted)
	assert.Len(t, offsets, 6)
}

func TestWriteThenRead(t *testing.T) {
	dir := t.TempDir()
	cfg := PhaseConfig{
		Direction:     Write,
		BlockSize:     8192,
		BlocksPerMark: 32,
		NumMarks:      4,
		Order:         Random,
		Dir:           dir,
	}
	_, err := New().RunPhase(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "testdata.bin"))

	cfg.Direction = Read
	cfg.Order = Random
	rec, err := New().RunPhase(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, rec.MarksCompleted)
	assert.Greater(t, rec.Avg, 0.0)
	assert.False(t, math.IsInf(rec.Avg, 0))
	assert.False(t, math.IsNaN(rec.Avg))
}

func TestRandomWriteFillsEveryMarkFile(t *testing.T) {
	dir := t.TempDir()
	cfg := PhaseConfig{
		Direction:     Write,
		BlockSize:     4096,
		BlocksPerMark: 8,
		NumMarks:      10,
		Order:         Random,
		MultiFile:     true,
		Dir:           dir,
	}
	// With 8 draws out of 8 blocks the last block is skipped in about a
	// third of the marks.
	_, err := New(WithSeed(1)).RunPhase(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	for m := 0; m < cfg.NumMarks; m++ {
		fi, err := os.Stat(FilePath(cfg, m))
		require.NoError(t, err)
		assert.Equal(t, cfg.MarkBytes(), fi.Size(), "mark %d", m)
	}

	cfg.Direction = Read
	cfg.Order = Sequential
	rec, err := New().RunPhase(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, rec.MarksCompleted)
}

func TestWriteKeepsLargerFile(t *testing.T) {
	cfg := phase(Write, t)
	path := FilePath(cfg, 0)
	require.NoError(t, os.WriteFile(path, make([]byte, 64*1024), 0644))

	_, err := New().RunPhase(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(64*1024), fi.Size())
}

func TestDurableWrite(t *testing.T) {
	cfg := phase(Write, t)
	cfg.Mode = Durable
	rec, err := New().RunPhase(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Durable, rec.Mode)
	assert.Greater(t, rec.Min, 0.0)
}

func TestInvalidConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PhaseConfig)
	}{
		{"zero block size", func(c *PhaseConfig) { c.BlockSize = 0 }},
		{"zero marks", func(c *PhaseConfig) { c.NumMarks = 0 }},
		{"zero blocks", func(c *PhaseConfig) { c.BlocksPerMark = 0 }},
		{"negative start", func(c *PhaseConfig) { c.StartMark = -1 }},
		{"bad direction", func(c *PhaseConfig) { c.Direction = "sideways" }},
		{"bad order", func(c *PhaseConfig) { c.Order = "shuffled" }},
		{"bad backend", func(c *PhaseConfig) { c.Backend = "mmap" }},
		{"unaligned direct", func(c *PhaseConfig) { c.Mode = Direct; c.BlockSize = 1000 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := phase(Write, t)
			tt.mutate(&cfg)

			e := New()
			_, err := e.RunPhase(context.Background(), cfg, nil, nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfiguration), "got %v", err)
			assert.Equal(t, Ready, e.State())

			entries, err := os.ReadDir(cfg.Dir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}

func TestShortRead(t *testing.T) {
	cfg := phase(Read, t)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Dir, "testdata.bin"), make([]byte, 4096*2+100), 0644))

	e := New()
	rec, err := e.RunPhase(context.Background(), cfg, nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrShortRead))
	assert.True(t, errors.Is(err, ErrIOFailure))
	assert.Equal(t, Failed, e.State())
	assert.Equal(t, "failed", rec.State)
	assert.NotEmpty(t, rec.Error)

	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "read", pe.Op)
	assert.Same(t, rec, pe.Record)
}

func TestMissingFileIsIOFailure(t *testing.T) {
	_, err := New().RunPhase(context.Background(), phase(Read, t), nil, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIOFailure))
	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "open", pe.Op)
}

func TestPartialRecordOnFailure(t *testing.T) {
	var offsets []int64
	opens := 0
	e := New()
	e.open = func(path string, cfg PhaseConfig) (blockFile, error) {
		opens++
		if opens == 3 {
			return nil, errors.New("disk full")
		}
		return &recordingFile{offsets: &offsets}, nil
	}
	rep := &testReporter{}
	rec, err := e.RunPhase(context.Background(), phase(Write, t), nil, rep)
	require.Error(t, err)

	var pe *PhaseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 2, pe.Mark)
	assert.Equal(t, 2, pe.Record.MarksCompleted)
	assert.Equal(t, 2, rec.MarksCompleted)
	assert.Len(t, rep.marks, 2)
	assert.Greater(t, rec.Avg, 0.0)
}

func TestEngineIsSingleUse(t *testing.T) {
	var offsets []int64
	e := recordingEngine(&offsets)
	cfg := phase(Write, t)
	_, err := e.RunPhase(context.Background(), cfg, nil, nil)
	require.NoError(t, err)

	_, err = e.RunPhase(context.Background(), cfg, nil, nil)
	assert.ErrorIs(t, err, ErrEngineUsed)
}
