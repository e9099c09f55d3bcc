// Package clock provides a small abstraction over wall-clock time so that
// inode and superblock timestamps can be driven deterministically in tests.
package clock

import "time"

// Clock is the time source AegisFS uses for inode timestamps
// (atime/mtime/ctime) and the superblock's mount and write times. The
// write-back flushers use the time package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}
