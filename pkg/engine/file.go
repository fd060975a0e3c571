package engine

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	singleFileName = "testdata.bin"
	filePerm       = 0644
)

// blockFile transfers whole blocks at absolute offsets. Implementations
// block until the transfer completes.
type blockFile interface {
	WriteBlock(buf []byte, off int64) error
	ReadBlock(buf []byte, off int64) error
	Close() error
}

type openFunc func(path string, cfg PhaseConfig) (blockFile, error)

// FileName returns the name of the test file used by a mark.
func FileName(multiFile bool, mark int) string {
	if multiFile {
		return fmt.Sprintf("testdata%d.bin", mark)
	}
	return singleFileName
}

// FilePath returns the full path of the test file used by a mark.
func FilePath(cfg PhaseConfig, mark int) string {
	return filepath.Join(cfg.Dir, FileName(cfg.MultiFile, mark))
}

func openFlags(cfg PhaseConfig) int {
	flags := os.O_RDONLY
	if cfg.Direction == Write {
		flags = os.O_RDWR | os.O_CREATE
	}
	switch cfg.Mode {
	case Durable:
		flags |= unix.O_DSYNC
	case Direct:
		flags |= directFlag
	}
	return flags
}

func openBlockFile(path string, cfg PhaseConfig) (blockFile, error) {
	if cfg.Direction == Write {
		if err := reserve(path, cfg.MarkBytes()); err != nil {
			return nil, err
		}
	}
	switch cfg.Backend {
	case "", BackendSync:
		return openSync(path, openFlags(cfg))
	case BackendUring:
		return openUring(path, openFlags(cfg))
	case BackendLibAIO:
		return openLibAIO(path, openFlags(cfg))
	}
	return nil, invalidConfig("unknown backend %q", cfg.Backend)
}

// reserve creates path and grows it to at least size bytes. Random writes
// draw offsets with replacement and may never reach the last block, yet a
// later read phase visits every offset of the mark.
func reserve(path string, size int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, filePerm)
	if err != nil {
		return err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return errors.Wrap(err, "stat")
	}
	if fi.Size() < size {
		if err := f.Truncate(size); err != nil {
			return errors.Wrapf(err, "extend to %d bytes", size)
		}
	}
	return nil
}

// syncFile seeks and then issues a plain read or write system call.
type syncFile struct {
	f *os.File
}

func openSync(path string, flags int) (blockFile, error) {
	f, err := os.OpenFile(path, flags, filePerm)
	if err != nil {
		return nil, err
	}
	return &syncFile{f: f}, nil
}

func (s *syncFile) WriteBlock(buf []byte, off int64) error {
	if _, err := s.f.Seek(off, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek")
	}
	n, err := s.f.Write(buf)
	if err != nil {
		return err
	}
	if n < len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

func (s *syncFile) ReadBlock(buf []byte, off int64) error {
	if _, err := s.f.Seek(off, io.SeekStart); err != nil {
		return errors.Wrap(err, "seek")
	}
	n, err := io.ReadFull(s.f, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return shortRead(n, len(buf), off)
	}
	return err
}

func (s *syncFile) Close() error {
	return s.f.Close()
}

func shortRead(got, want int, off int64) error {
	return errors.Wrapf(ErrShortRead, "got %d of %d bytes at offset %d", got, want, off)
}
