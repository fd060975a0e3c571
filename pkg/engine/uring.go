//go:build linux

package engine

import (
	"io"
	"os"
	"syscall"

	"github.com/godzie44/go-uring/uring"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const directFlag = unix.O_DIRECT

const uringEntries = 4

// uringFile pushes one SQE per block through a private ring and waits for
// its completion before returning.
type uringFile struct {
	f    *os.File
	ring *uring.Ring
}

func openUring(path string, flags int) (blockFile, error) {
	f, err := os.OpenFile(path, flags, filePerm)
	if err != nil {
		return nil, err
	}
	ring, err := uring.New(uringEntries)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "failed to setup io_uring")
	}
	return &uringFile{f: f, ring: ring}, nil
}

func (u *uringFile) WriteBlock(buf []byte, off int64) error {
	n, err := u.do(uring.Write(u.f.Fd(), buf, uint64(off)))
	if err != nil {
		return err
	}
	if n < len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

func (u *uringFile) ReadBlock(buf []byte, off int64) error {
	n, err := u.do(uring.Read(u.f.Fd(), buf, uint64(off)))
	if err != nil {
		return err
	}
	if n < len(buf) {
		return shortRead(n, len(buf), off)
	}
	return nil
}

func (u *uringFile) do(op uring.Operation) (int, error) {
	if err := u.ring.QueueSQE(op, 0, 0); err != nil {
		return 0, errors.Wrap(err, "queue sqe")
	}
	for {
		_, err := u.ring.Submit()
		if err == nil {
			break
		}
		if !isEINTR(err) {
			return 0, errors.Wrap(err, "submit")
		}
	}

	var cqe *uring.CQEvent
	var err error
	for {
		cqe, err = u.ring.WaitCQEvents(1)
		if err == nil || !isEINTR(err) {
			break
		}
	}
	if err != nil {
		return 0, errors.Wrap(err, "wait cqe")
	}
	res := cqe.Res
	u.ring.SeenCQE(cqe)
	if res < 0 {
		return 0, syscall.Errno(-res)
	}
	return int(res), nil
}

func (u *uringFile) Close() error {
	ringErr := u.ring.Close()
	if err := u.f.Close(); err != nil {
		return err
	}
	return ringErr
}

func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EINTR) {
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) {
		return sysErr.Err == syscall.EINTR
	}
	return false
}
