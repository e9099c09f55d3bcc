//go:build !linux

package blockdev

import (
	"os"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
)

// rawDeviceSizeBytes is unsupported outside Linux; callers are expected to
// stick to file-backed devices on other platforms.
func rawDeviceSizeBytes(f *os.File) (uint64, error) {
	return 0, aegisfserr.New(aegisfserr.KindParameter, "raw block devices are only supported on linux")
}
