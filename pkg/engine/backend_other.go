//go:build !linux

package engine

const directFlag = 0

func openUring(path string, flags int) (blockFile, error) {
	return nil, invalidConfig("uring backend is only supported on Linux")
}

func openLibAIO(path string, flags int) (blockFile, error) {
	return nil, invalidConfig("libaio backend is only supported on Linux")
}
