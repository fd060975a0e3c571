// Package diskinfo builds a short human readable description of the block
// device that holds a directory.
package diskinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const gigabyte = 1000 * 1000 * 1000

type Info struct {
	Device     string // e.g. /dev/nvme0n1p2, empty if no node was found
	Model      string // from sysfs, empty if unknown
	Major      uint32
	Minor      uint32
	TotalBytes uint64
	FreeBytes  uint64
}

// Lookup inspects the filesystem containing dir.
func Lookup(dir string) (*Info, error) {
	var st unix.Stat_t
	if err := unix.Stat(dir, &st); err != nil {
		return nil, errors.Wrapf(err, "stat %s", dir)
	}
	var fs unix.Statfs_t
	if err := unix.Statfs(dir, &fs); err != nil {
		return nil, errors.Wrapf(err, "statfs %s", dir)
	}
	dev := uint64(st.Dev)
	info := &Info{
		Major:      unix.Major(dev),
		Minor:      unix.Minor(dev),
		TotalBytes: uint64(fs.Blocks) * uint64(fs.Bsize),
		FreeBytes:  uint64(fs.Bavail) * uint64(fs.Bsize),
	}
	info.Device = devnodeFor(dev)
	info.Model = modelFor(info.Major, info.Minor)
	return info, nil
}

// devnodeFor scans /dev for a block device whose device number matches.
func devnodeFor(dev uint64) string {
	entries, err := os.ReadDir("/dev")
	if err != nil {
		return ""
	}
	for _, e := range entries {
		mode := e.Type()
		if mode&os.ModeDevice == 0 || mode&os.ModeCharDevice != 0 {
			continue
		}
		path := filepath.Join("/dev", e.Name())
		var st unix.Stat_t
		if err := unix.Stat(path, &st); err != nil {
			continue
		}
		if uint64(st.Rdev) == dev {
			return path
		}
	}
	return ""
}

// modelFor reads the device model from sysfs. Partitions keep the model on
// their parent device.
func modelFor(major, minor uint32) string {
	base := fmt.Sprintf("/sys/dev/block/%d:%d", major, minor)
	for _, p := range []string{"device/model", "../device/model"} {
		data, err := os.ReadFile(filepath.Join(base, p))
		if err == nil {
			if m := strings.TrimSpace(string(data)); m != "" {
				return m
			}
		}
	}
	return ""
}

func (i *Info) String() string {
	var parts []string
	if i.Model != "" {
		parts = append(parts, i.Model)
	}
	if i.Device != "" {
		parts = append(parts, i.Device)
	} else {
		parts = append(parts, fmt.Sprintf("dev %d:%d", i.Major, i.Minor))
	}
	parts = append(parts, fmt.Sprintf("%.1f GB total, %.1f GB free",
		float64(i.TotalBytes)/gigabyte, float64(i.FreeBytes)/gigabyte))
	return strings.Join(parts, " ")
}

// Describe returns the descriptor for dir, or "unknown device" when the
// filesystem cannot be inspected.
func Describe(dir string) string {
	info, err := Lookup(dir)
	if err != nil {
		return "unknown device"
	}
	return info.String()
}
