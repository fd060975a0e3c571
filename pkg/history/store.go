// Package history persists finished phase records. Records are appended as
// JSON lines to a single file and indexed in memory by start time.
package history

import (
	"bufio"
	"encoding/json"
	"os"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"

	"github.com/runningwild/diskmark/pkg/engine"
)

var ErrNotFound = errors.New("run not found")

type item struct {
	rec *engine.RunRecord
}

func (i *item) Less(than btree.Item) bool {
	o := than.(*item)
	if !i.rec.StartTime.Equal(o.rec.StartTime) {
		return i.rec.StartTime.Before(o.rec.StartTime)
	}
	return i.rec.ID < o.rec.ID
}

// Store is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	path   string
	file   *os.File
	tree   *btree.BTree
	byID   map[uint64]*engine.RunRecord
	nextID uint64
}

// Open loads the history file at path, creating it if needed.
func Open(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open history")
	}
	s := &Store{
		path:   path,
		file:   f,
		tree:   btree.New(32),
		byID:   make(map[uint64]*engine.RunRecord),
		nextID: 1,
	}
	if err := s.load(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	sc := bufio.NewScanner(s.file)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		rec := &engine.RunRecord{}
		if err := json.Unmarshal(sc.Bytes(), rec); err != nil {
			return errors.Wrapf(err, "%s:%d", s.path, line)
		}
		s.index(rec)
	}
	return errors.Wrap(sc.Err(), "read history")
}

func (s *Store) index(rec *engine.RunRecord) {
	if rec.ID >= s.nextID {
		s.nextID = rec.ID + 1
	}
	s.tree.ReplaceOrInsert(&item{rec: rec})
	s.byID[rec.ID] = rec
}

// Add assigns rec an ID and appends it durably to the history file. The
// store keeps its own copy; later changes to rec are not persisted.
func (s *Store) Add(rec *engine.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *rec
	c.ID = s.nextID
	data, err := json.Marshal(&c)
	if err != nil {
		return errors.Wrap(err, "marshal run")
	}
	data = append(data, '\n')
	if _, err := s.file.Write(data); err != nil {
		return errors.Wrap(err, "append run")
	}
	if err := s.file.Sync(); err != nil {
		return errors.Wrap(err, "sync history")
	}
	rec.ID = c.ID
	s.index(&c)
	return nil
}

// List returns all runs ordered by start time.
func (s *Store) List() []*engine.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*engine.RunRecord, 0, s.tree.Len())
	s.tree.Ascend(func(i btree.Item) bool {
		c := *i.(*item).rec
		out = append(out, &c)
		return true
	})
	return out
}

// Recent returns up to n runs, newest first.
func (s *Store) Recent(n int) []*engine.RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*engine.RunRecord
	s.tree.Descend(func(i btree.Item) bool {
		if len(out) >= n {
			return false
		}
		c := *i.(*item).rec
		out = append(out, &c)
		return true
	})
	return out
}

func (s *Store) Get(id uint64) (*engine.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "id %d", id)
	}
	c := *rec
	return &c, nil
}

// NextMark returns the index one past the highest mark of any stored run.
// ok is false when the store is empty.
func (s *Store) NextMark() (next int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.byID {
		if end := rec.StartMark + rec.NumMarks; !ok || end > next {
			next, ok = end, true
		}
	}
	return next, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Len()
}

// Clear removes every run from the store and the file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.file.Truncate(0); err != nil {
		return errors.Wrap(err, "truncate history")
	}
	s.tree.Clear(false)
	s.byID = make(map[uint64]*engine.RunRecord)
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
