package diskfs

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/reekid420/AegisFS/internal/ondisk"
)

// ScrubReport summarizes the findings of a single Scrub pass.
type ScrubReport struct {
	InodesChecked  uint64
	Issues         []string
	BlocksRepaired int
	InodesRepaired int
}

// Clean reports whether the pass found no issues.
func (r *ScrubReport) Clean() bool {
	return len(r.Issues) == 0
}

// Scrub walks the superblock, both bitmaps, and (if deep) every allocated
// inode's block pointers, cross-checking the invariants from the
// specification's testable-properties list: every allocated inode bit has
// a sane link count, and every block reachable from an inode has its bit
// set in the data bitmap. With fix set, disagreements are repaired in
// memory and the repaired bitmaps/superblock are persisted by the caller.
func (fs *DiskFS) Scrub(deep bool, fix bool) (*ScrubReport, error) {
	report := &ScrubReport{}

	fs.sbMu.Lock()
	sb := *fs.sb // the stored counters, not the bitmap-derived ones Superblock() reports
	fs.sbMu.Unlock()
	if sb.FreeInodes != fs.inodeBitmap.FreeCount() {
		report.Issues = append(report.Issues, fmt.Sprintf(
			"superblock free-inode count %d disagrees with bitmap %d", sb.FreeInodes, fs.inodeBitmap.FreeCount()))
	}
	if sb.FreeBlocks != fs.dataBitmap.FreeCount() {
		report.Issues = append(report.Issues, fmt.Sprintf(
			"superblock free-block count %d disagrees with bitmap %d", sb.FreeBlocks, fs.dataBitmap.FreeCount()))
	}

	if !deep {
		return report, nil
	}

	fs.scrubInodesDeep(fix, report)

	if ondisk.RootInodeID != 1 || !fs.inodeBitmap.IsAllocated(ondisk.RootInodeID) {
		report.Issues = append(report.Issues, "root inode is not allocated")
	}

	return report, nil
}

// inodeFinding is one worker's read of a single allocated inode: its
// block list if readable, or whichever of readErr/zeroLink stopped the
// walk short. Findings are collected before any report/bitmap mutation
// so the workers below need no lock beyond what ReadInode/Walk already
// take internally.
type inodeFinding struct {
	id       uint64
	readErr  error
	zeroLink bool
	walkErr  error
	blocks   []uint64
}

// scrubInodesDeep reads every allocated inode and walks its block
// pointers across a pool of runtime.NumCPU() workers, then folds the
// findings into report (and, with fix set, the bitmaps) on the calling
// goroutine so the duplicate-block and repair bookkeeping stays
// single-threaded.
func (fs *DiskFS) scrubInodesDeep(fix bool, report *ScrubReport) {
	var ids []uint64
	for id := uint64(1); id <= fs.layout.TotalInodes; id++ {
		if fs.inodeBitmap.IsAllocated(id) {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return
	}

	findings := make([]inodeFinding, len(ids))
	indices := make(chan int, len(ids))
	for i := range ids {
		indices <- i
	}
	close(indices)

	workers := runtime.NumCPU()
	if workers > len(ids) {
		workers = len(ids)
	}

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := range indices {
				id := ids[i]
				f := inodeFinding{id: id}

				ino, err := fs.ReadInode(id)
				switch {
				case err != nil:
					f.readErr = err
				case ino.Links == 0:
					f.zeroLink = true
				default:
					f.walkErr = fs.blockMapper.Walk(ino, func(blockNum uint64) error {
						f.blocks = append(f.blocks, blockNum)
						return nil
					})
				}
				findings[i] = f
			}
			return nil
		})
	}
	g.Wait() // workers never return a non-nil error; nothing to check

	seen := make(map[uint64]uint64) // block number -> first owning inode
	for _, f := range findings {
		report.InodesChecked++

		if f.readErr != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("inode %d: %v", f.id, f.readErr))
			continue
		}
		if f.zeroLink {
			report.Issues = append(report.Issues, fmt.Sprintf("inode %d: allocated with zero link count", f.id))
			if fix {
				fs.inodeBitmap.Free(f.id)
				report.InodesRepaired++
			}
			continue
		}
		if f.walkErr != nil {
			report.Issues = append(report.Issues, fmt.Sprintf("inode %d: walking blocks: %v", f.id, f.walkErr))
		}
		for _, blockNum := range f.blocks {
			if owner, dup := seen[blockNum]; dup {
				report.Issues = append(report.Issues, fmt.Sprintf(
					"block %d referenced by both inode %d and inode %d", blockNum, owner, f.id))
				continue
			}
			seen[blockNum] = f.id

			if !fs.dataBitmap.IsAllocated(blockNum) {
				report.Issues = append(report.Issues, fmt.Sprintf(
					"block %d reachable from inode %d but clear in data bitmap", blockNum, f.id))
				if fix {
					fs.dataBitmap.MarkAllocated(blockNum)
					report.BlocksRepaired++
				}
			}
		}
	}
}
