//go:build linux

package blockdev

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
)

// rawDeviceSizeBytes discovers the size of a raw block device via the
// BLKGETSIZE64 ioctl. A file-length fallback is deliberately not used here:
// block devices report a zero or meaningless length from Stat, so the ioctl
// is the only correct source of truth.
func rawDeviceSizeBytes(f *os.File) (uint64, error) {
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, aegisfserr.Wrap(aegisfserr.KindInputOutput, errno, "BLKGETSIZE64 ioctl")
	}
	return size, nil
}
