// Package fio converts phase configurations into fio job files and reads
// fio's JSON output, so a diskmark result can be cross-checked with fio.
package fio

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/runningwild/diskmark/pkg/engine"
)

// GenerateJob creates a fio job file equivalent to the phase: the same
// file, block size, order and access mode, looped once per mark.
func GenerateJob(p engine.PhaseConfig) string {
	p = engine.Normalize(p)
	var sb strings.Builder

	sb.WriteString("[global]\n")
	switch p.Backend {
	case engine.BackendUring:
		sb.WriteString("ioengine=io_uring\n")
	case engine.BackendLibAIO:
		sb.WriteString("ioengine=libaio\n")
	default:
		sb.WriteString("ioengine=psync\n")
	}
	sb.WriteString("iodepth=1\n")
	fmt.Fprintf(&sb, "filename=%s\n", engine.FilePath(p, p.StartMark))
	fmt.Fprintf(&sb, "bs=%d\n", p.BlockSize)
	fmt.Fprintf(&sb, "size=%d\n", p.MarkBytes())
	fmt.Fprintf(&sb, "loops=%d\n", p.NumMarks)

	switch p.Mode {
	case engine.Direct:
		sb.WriteString("direct=1\n")
	case engine.Durable:
		sb.WriteString("direct=0\nsync=dsync\n")
	default:
		sb.WriteString("direct=0\n")
	}

	rw := string(p.Direction)
	if p.Order == engine.Random {
		rw = "rand" + rw
		// diskmark draws offsets with replacement
		sb.WriteString("norandommap\n")
	}
	fmt.Fprintf(&sb, "rw=%s\n", rw)

	fmt.Fprintf(&sb, "\n[diskmark_%s]\n", p.Direction)
	return sb.String()
}

// Structures for parsing fio JSON output
type Output struct {
	Jobs        []Job `json:"jobs"`
	ClientStats []Job `json:"client_stats"`
}

type Job struct {
	Read  Stats `json:"read"`
	Write Stats `json:"write"`
}

type Stats struct {
	IOPS     float64  `json:"iops"`
	BwBytes  float64  `json:"bw_bytes"` // bytes per second
	TotalIOS int64    `json:"total_ios"`
	ClatNs   LatStats `json:"clat_ns"` // Completion latency
}

type LatStats struct {
	Mean       float64           `json:"mean"`
	Percentile map[string]uint64 `json:"percentile"` // e.g. "99.000000": 1234
}

// Summary is fio's result expressed in diskmark units.
type Summary struct {
	ReadMBs    float64
	WriteMBs   float64
	ReadIOPS   float64
	WriteIOPS  float64
	P99Latency time.Duration
}

// ParseOutput sums the jobs of a fio --output-format=json run.
func ParseOutput(data []byte) (*Summary, error) {
	var out Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "parse fio output")
	}
	jobs := out.Jobs
	if len(jobs) == 0 {
		jobs = out.ClientStats
	}
	if len(jobs) == 0 {
		return nil, errors.New("fio output contains no jobs")
	}

	s := &Summary{}
	var weighted, total float64
	for _, j := range jobs {
		s.ReadMBs += j.Read.BwBytes / engine.MiB
		s.WriteMBs += j.Write.BwBytes / engine.MiB
		s.ReadIOPS += j.Read.IOPS
		s.WriteIOPS += j.Write.IOPS

		for _, st := range []Stats{j.Read, j.Write} {
			if st.TotalIOS == 0 {
				continue
			}
			weighted += float64(st.ClatNs.Percentile["99.000000"]) * float64(st.TotalIOS)
			total += float64(st.TotalIOS)
		}
	}
	if total > 0 {
		s.P99Latency = time.Duration(weighted / total)
	}
	return s, nil
}
