// Package bench drives a full benchmark session: a WRITE phase followed by
// a READ phase over the same files, with results handed to the history
// store.
package bench

import (
	"context"
	"fmt"
	"os"

	"github.com/chzyer/logex"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/runningwild/diskmark/pkg/config"
	"github.com/runningwild/diskmark/pkg/diskinfo"
	"github.com/runningwild/diskmark/pkg/engine"
	"github.com/runningwild/diskmark/pkg/history"
)

const cacheWarning = "For valid READ measurements clear the disk cache between WRITE and READ " +
	"(enable drop_caches as root, or remount/reconnect the device)."

// Session runs phases sequentially and keeps mark numbering continuous
// across runs, so consecutive runs plot as one series.
type Session struct {
	cfg      *config.Config
	store    *history.Store
	nextMark int

	dropCaches func() error
}

// NewSession creates a session. store may be nil to skip persistence.
func NewSession(cfg *config.Config, store *history.Store) *Session {
	return &Session{
		cfg:        cfg,
		store:      store,
		nextMark:   cfg.StartMark,
		dropCaches: dropPageCache,
	}
}

// Resume continues the mark numbering of earlier runs recorded in the
// store. Without a store, or with an empty one, it does nothing.
func (s *Session) Resume() {
	if s.store == nil {
		return
	}
	if next, ok := s.store.NextMark(); ok {
		s.nextMark = next
	}
}

// NextMark is the index the next run will start at.
func (s *Session) NextMark() int { return s.nextMark }

// Run executes the enabled phases and returns one record per phase that
// started. A cancelled WRITE phase skips the READ phase. On an I/O error
// the records gathered so far are returned along with the error.
func (s *Session) Run(ctx context.Context, r engine.Reporter) ([]*engine.RunRecord, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	dir := s.cfg.DataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create data directory")
	}
	if s.cfg.AutoRemove {
		defer func() {
			if err := os.RemoveAll(dir); err != nil {
				logex.Errorf("failed to remove %s: %v", dir, err)
			}
		}()
	}

	start := s.nextMark
	defer func() { s.nextMark = start + s.cfg.Marks }()

	info := diskinfo.Describe(dir)
	r.ReportLog(fmt.Sprintf("disk info: (%s)", info))
	r.ReportLog(fmt.Sprintf("write: %v, read: %v, marks: %d, blocks: %d, block size (KB): %d, order: %s",
		s.cfg.Write, s.cfg.Read, s.cfg.Marks, s.cfg.BlocksPerMark, s.cfg.BlockSizeKB, s.cfg.Order))

	var records []*engine.RunRecord
	if s.cfg.Write {
		rec, err := s.runPhase(ctx, engine.Write, start, info, r)
		records = append(records, rec)
		if err != nil {
			return records, err
		}
	}

	if s.cancelled(ctx, r) {
		return records, nil
	}

	if s.cfg.Read {
		if s.cfg.Write {
			r.ReportLog(cacheWarning)
			if s.cfg.DropCaches {
				if err := s.dropCaches(); err != nil {
					logex.Info("could not drop page cache:", err)
				} else {
					r.ReportLog("page cache dropped")
				}
			}
		}
		rec, err := s.runPhase(ctx, engine.Read, start, info, r)
		records = append(records, rec)
		if err != nil {
			return records, err
		}
	}
	return records, nil
}

func (s *Session) cancelled(ctx context.Context, r engine.Reporter) bool {
	return ctx.Err() != nil || r.CancellationRequested()
}

func (s *Session) runPhase(ctx context.Context, dir engine.Direction, start int, info string, r engine.Reporter) (*engine.RunRecord, error) {
	pc := s.cfg.Phase(dir, start)
	logex.Info(fmt.Sprintf("starting %s phase: marks %d..%d in %s", dir, start, start+pc.NumMarks-1, pc.Dir))

	rec := &engine.RunRecord{DiskInfo: info}
	rec, err := engine.New().RunPhase(ctx, pc, rec, r)
	if err != nil {
		logex.Errorf("%s phase failed: %v", dir, err)
	}

	if s.store != nil {
		if perr := s.store.Add(rec); perr != nil {
			if err == nil {
				err = errors.Wrap(perr, "persist run")
			} else {
				logex.Errorf("failed to persist partial run: %v", perr)
			}
		}
	}
	return rec, err
}

// dropPageCache flushes dirty pages and asks the kernel to drop clean
// caches. It needs root.
func dropPageCache() error {
	unix.Sync()
	return os.WriteFile("/proc/sys/vm/drop_caches", []byte("3\n"), 0200)
}
