package layout_test

import "github.com/reekid420/AegisFS/internal/ondisk"

func newTestInode() *ondisk.Inode {
	return &ondisk.Inode{
		Mode:  uint16(ondisk.TypeRegular) | 0644,
		Links: 1,
	}
}
