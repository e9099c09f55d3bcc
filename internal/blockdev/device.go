// Package blockdev provides byte-addressable, block-aligned access to the
// file or raw device backing an AegisFS volume.
package blockdev

import (
	"github.com/reekid420/AegisFS/internal/aegisfserr"
)

// Device is the block-level primitive every higher layer builds on: read a
// block given its index, write a block given its index and exactly
// block-size bytes, and flush pending writes to durable storage.
type Device interface {
	// ReadBlock returns the current contents of the block at idx. The
	// returned slice has exactly BlockSize() bytes and is safe for the
	// caller to retain.
	ReadBlock(idx uint64) ([]byte, error)

	// WriteBlock writes data (which must be exactly BlockSize() bytes) to
	// the block at idx.
	WriteBlock(idx uint64, data []byte) error

	// Flush persists all writes issued so far to durable storage.
	Flush() error

	// BlockSize returns the fixed block size this device was opened with.
	BlockSize() uint32

	// SizeBytes returns the total addressable size of the device, as
	// discovered at open time (file length for a file-backed device, the
	// platform's device-size ioctl for a raw device).
	SizeBytes() uint64

	// NumBlocks returns SizeBytes() / BlockSize().
	NumBlocks() uint64

	// ReadOnly reports whether the device was opened read-only.
	ReadOnly() bool

	// Close releases the underlying file handle.
	Close() error
}

// errReadOnly is returned by WriteBlock on a device opened read-only.
func errReadOnly() error {
	return aegisfserr.New(aegisfserr.KindReadOnlyFilesystem, "device opened read-only")
}

// errOutOfRange is returned when idx is beyond NumBlocks.
func errOutOfRange(idx, numBlocks uint64) error {
	return aegisfserr.New(aegisfserr.KindParameter, "block index %d out of range (device has %d blocks)", idx, numBlocks)
}

// errShortBuffer is returned when WriteBlock is given a buffer of the wrong
// length.
func errShortBuffer(got int, want uint32) error {
	return aegisfserr.New(aegisfserr.KindParameter, "write buffer has %d bytes, want exactly %d", got, want)
}
