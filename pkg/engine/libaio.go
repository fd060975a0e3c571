//go:build linux

package engine

import (
	"io"
	"os"
	"syscall"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Constants for libaio
const (
	iocbCmdPread  = 0
	iocbCmdPwrite = 1
)

// Kernel structures (Standard 64-bit layout for x86_64 and arm64)
type iocb struct {
	Data      uint64
	Key       uint32
	RwFlags   uint32
	OpCode    uint16
	ReqPrio   int16
	Fd        uint32
	Buf       uint64
	NBytes    uint64
	Offset    int64
	Reserved2 uint64
	Flags     uint32
	ResFd     uint32
}

type ioEvent struct {
	Data uint64
	Obj  uint64
	Res  int64
	Res2 int64
}

// aioFile submits a single iocb per block and reaps it with io_getevents.
// Buffers handed to it must not be managed by the Go heap; BlockBuffer
// memory is mmapped so the kernel can hold on to the address.
type aioFile struct {
	f     *os.File
	ctxID uint64
	cb    iocb
	cbPtr [1]*iocb
	evt   [1]ioEvent
}

func openLibAIO(path string, flags int) (blockFile, error) {
	f, err := os.OpenFile(path, flags, filePerm)
	if err != nil {
		return nil, err
	}
	a := &aioFile{f: f}
	if _, _, errno := unix.Syscall(unix.SYS_IO_SETUP, 1, uintptr(unsafe.Pointer(&a.ctxID)), 0); errno != 0 {
		f.Close()
		return nil, errors.Wrap(errno, "io_setup failed")
	}
	return a, nil
}

func (a *aioFile) WriteBlock(buf []byte, off int64) error {
	n, err := a.do(iocbCmdPwrite, buf, off)
	if err != nil {
		return err
	}
	if n < len(buf) {
		return io.ErrShortWrite
	}
	return nil
}

func (a *aioFile) ReadBlock(buf []byte, off int64) error {
	n, err := a.do(iocbCmdPread, buf, off)
	if err != nil {
		return err
	}
	if n < len(buf) {
		return shortRead(n, len(buf), off)
	}
	return nil
}

func (a *aioFile) do(opcode uint16, buf []byte, off int64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	a.cb = iocb{
		Fd:     uint32(a.f.Fd()),
		OpCode: opcode,
		Buf:    uint64(uintptr(unsafe.Pointer(&buf[0]))),
		NBytes: uint64(len(buf)),
		Offset: off,
	}
	a.cbPtr[0] = &a.cb

	for {
		nSub, _, errno := unix.Syscall(unix.SYS_IO_SUBMIT, uintptr(a.ctxID), 1, uintptr(unsafe.Pointer(&a.cbPtr[0])))
		if errno == syscall.EINTR {
			continue
		}
		if errno != 0 {
			return 0, errors.Wrap(errno, "io_submit failed")
		}
		if nSub != 1 {
			return 0, errors.Errorf("io_submit submitted %d < 1", nSub)
		}
		break
	}

	for {
		nEvt, _, errno := unix.Syscall6(unix.SYS_IO_GETEVENTS, uintptr(a.ctxID), 1, 1, uintptr(unsafe.Pointer(&a.evt[0])), 0, 0)
		if errno == syscall.EINTR {
			continue
		}
		if errno != 0 {
			return 0, errors.Wrap(errno, "io_getevents failed")
		}
		if nEvt == 1 {
			break
		}
	}

	if a.evt[0].Res < 0 {
		return 0, syscall.Errno(-a.evt[0].Res)
	}
	return int(a.evt[0].Res), nil
}

func (a *aioFile) Close() error {
	unix.Syscall(unix.SYS_IO_DESTROY, uintptr(a.ctxID), 0, 0)
	return a.f.Close()
}
