package engine

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// BlockBuffer is the single block of data reused for every transfer in a
// phase. Its memory comes from an anonymous mapping so it is page aligned,
// which O_DIRECT and the kernel async interfaces require.
type BlockBuffer struct {
	data []byte
}

// NewBlockBuffer allocates size bytes with every even-indexed byte set to
// 0xFF and odd-indexed bytes left at zero.
func NewBlockBuffer(size int) (*BlockBuffer, error) {
	if size <= 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "size %d", size)
	}
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate aligned memory")
	}
	for i := 0; i < len(data); i += 2 {
		data[i] = 0xFF
	}
	return &BlockBuffer{data: data}, nil
}

// Bytes returns the backing storage. Reads overwrite it in place.
func (b *BlockBuffer) Bytes() []byte { return b.data }

func (b *BlockBuffer) Len() int { return len(b.data) }

// Close releases the mapping. The buffer must not be used afterwards.
func (b *BlockBuffer) Close() error {
	if b.data == nil {
		return nil
	}
	err := unix.Munmap(b.data)
	b.data = nil
	return err
}
