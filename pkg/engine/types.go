package engine

import (
	"time"
)

const (
	KiB = 1024
	MiB = KiB * KiB
)

// Direction selects whether a phase writes or reads blocks.
type Direction string

const (
	Write Direction = "write"
	Read  Direction = "read"
)

// BlockOrder selects how block offsets are chosen within a mark.
type BlockOrder string

const (
	Sequential BlockOrder = "sequential"
	Random     BlockOrder = "random"
)

// AccessMode controls how the target file is opened.
type AccessMode string

const (
	Buffered AccessMode = "buffered"
	Durable  AccessMode = "durable" // O_DSYNC: every write reaches the medium before returning
	Direct   AccessMode = "direct"  // O_DIRECT: bypass the page cache
)

// Backend names the mechanism used to transfer a single block.
const (
	BackendSync   = "sync"
	BackendUring  = "uring"
	BackendLibAIO = "libaio"
)

// State is the lifecycle state of an Engine.
type State int32

const (
	Ready State = iota
	Running
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// PhaseConfig defines the parameters for one WRITE or READ phase.
type PhaseConfig struct {
	Direction     Direction  `json:"direction"`
	BlockSize     int        `json:"block_size"`      // Size of each block in bytes
	BlocksPerMark int        `json:"blocks_per_mark"` // Blocks transferred per timed mark
	NumMarks      int        `json:"num_marks"`
	StartMark     int        `json:"start_mark"` // Index of the first mark in this phase
	Order         BlockOrder `json:"order"`
	MultiFile     bool       `json:"multi_file"` // One file per mark instead of a shared file
	Dir           string     `json:"dir"`        // Directory holding the test files
	Mode          AccessMode `json:"mode"`
	Backend       string     `json:"backend"` // "sync", "uring" or "libaio"
}

// TotalUnits is the number of block transfers the phase performs.
func (c PhaseConfig) TotalUnits() int64 {
	return int64(c.BlocksPerMark) * int64(c.NumMarks)
}

// MarkBytes is the number of bytes moved by one mark.
func (c PhaseConfig) MarkBytes() int64 {
	return int64(c.BlocksPerMark) * int64(c.BlockSize)
}

// Mark is the result of one timed batch of block transfers.
type Mark struct {
	Index            int           `json:"index"`
	Direction        Direction     `json:"direction"`
	Bandwidth        float64       `json:"bandwidth_mbs"` // MB/s
	Elapsed          time.Duration `json:"elapsed"`
	BytesTransferred int64         `json:"bytes"`

	// Running statistics for the phase, including this mark.
	CumMin float64 `json:"cum_min"`
	CumMax float64 `json:"cum_max"`
	CumAvg float64 `json:"cum_avg"`
}

// ElapsedSeconds returns the mark duration in seconds.
func (m Mark) ElapsedSeconds() float64 {
	return float64(m.Elapsed) / float64(time.Second)
}

// MegabytesTransferred returns the mark payload in MB (1 MB = 1 MiB).
func (m Mark) MegabytesTransferred() float64 {
	return float64(m.BytesTransferred) / float64(MiB)
}

// RunRecord summarizes a full phase for persistence.
type RunRecord struct {
	ID            uint64     `json:"id,omitempty"`
	Direction     Direction  `json:"direction"`
	BlockSize     int        `json:"block_size"`
	BlocksPerMark int        `json:"blocks_per_mark"`
	NumMarks      int        `json:"num_marks"`
	StartMark     int        `json:"start_mark"`
	Order         BlockOrder `json:"order"`
	MultiFile     bool       `json:"multi_file"`
	Mode          AccessMode `json:"mode"`
	Backend       string     `json:"backend"`
	TxSizeKB      int64      `json:"tx_size_kb"` // Planned payload of the phase

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Min float64 `json:"min_mbs"`
	Max float64 `json:"max_mbs"`
	Avg float64 `json:"avg_mbs"`

	MarksCompleted int           `json:"marks_completed"`
	P50Latency     time.Duration `json:"p50_latency"`
	P99Latency     time.Duration `json:"p99_latency"`
	MaxLatency     time.Duration `json:"max_latency"`

	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
	DiskInfo string `json:"disk_info"`
}

// NewRunRecord creates a record echoing the phase configuration.
func NewRunRecord(cfg PhaseConfig) *RunRecord {
	rec := &RunRecord{}
	rec.apply(cfg)
	return rec
}

func (r *RunRecord) apply(cfg PhaseConfig) {
	r.Direction = cfg.Direction
	r.BlockSize = cfg.BlockSize
	r.BlocksPerMark = cfg.BlocksPerMark
	r.NumMarks = cfg.NumMarks
	r.StartMark = cfg.StartMark
	r.Order = cfg.Order
	r.MultiFile = cfg.MultiFile
	r.Mode = cfg.Mode
	r.Backend = cfg.Backend
	if r.TxSizeKB == 0 {
		r.TxSizeKB = cfg.MarkBytes() * int64(cfg.NumMarks) / KiB
	}
}

// Duration is the wall time covered by the record.
func (r *RunRecord) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
