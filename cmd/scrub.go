package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/reekid420/AegisFS/internal/cfg"
	"github.com/reekid420/AegisFS/internal/clock"
	"github.com/reekid420/AegisFS/internal/diskfs"
)

var scrubCmd = &cobra.Command{
	Use:   "scrub <device>",
	Short: "Verify superblock and bitmap consistency, optionally repairing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runScrub,
}

var (
	scrubFix  bool
	scrubDeep bool
)

func init() {
	if err := cfg.BindCommonFlags(scrubCmd.Flags()); err != nil {
		panic(err)
	}
	scrubCmd.Flags().BoolVar(&scrubFix, "fix", false, "Repair disagreements found during the scan.")
	scrubCmd.Flags().BoolVar(&scrubDeep, "deep", false, "Walk every allocated inode's blocks, not just the superblock counters.")
}

func runScrub(cmd *cobra.Command, args []string) error {
	device := args[0]

	c, err := cfg.Load()
	if err != nil {
		return withExit(1, err)
	}
	log := buildLogger(c.Logging)

	disk, err := diskfs.Mount(device, !scrubFix, clock.RealClock{})
	if err != nil {
		return withExit(3, err)
	}
	defer disk.Close()

	report, err := disk.Scrub(scrubDeep, scrubFix)
	if err != nil {
		return withExit(3, err)
	}

	for _, issue := range report.Issues {
		fmt.Println(issue)
	}
	log.Info("scrub complete", "inodes_checked", report.InodesChecked,
		"issues", len(report.Issues), "blocks_repaired", report.BlocksRepaired,
		"inodes_repaired", report.InodesRepaired)

	if scrubFix {
		if err := disk.PersistBitmapsAndSuperblock(); err != nil {
			return withExit(3, err)
		}
		return nil
	}

	if !report.Clean() {
		return withExit(5, fmt.Errorf("scrub found %d issue(s)", len(report.Issues)))
	}
	return nil
}
