package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/reekid420/AegisFS/internal/aegisfserr"
	"github.com/reekid420/AegisFS/internal/cfg"
	"github.com/reekid420/AegisFS/internal/clock"
	"github.com/reekid420/AegisFS/internal/diskfs"
)

var formatCmd = &cobra.Command{
	Use:   "format <device-or-file> <size-GiB>",
	Short: "Write a fresh AegisFS layout to a device or file",
	Args:  cobra.ExactArgs(2),
	RunE:  runFormat,
}

func init() {
	if err := cfg.BindCommonFlags(formatCmd.Flags()); err != nil {
		panic(err)
	}
	if err := cfg.BindFormatFlags(formatCmd.Flags()); err != nil {
		panic(err)
	}
}

func runFormat(cmd *cobra.Command, args []string) error {
	path := args[0]
	sizeGiB, err := strconv.ParseFloat(args[1], 64)
	if err != nil || sizeGiB <= 0 {
		return withExit(1, fmt.Errorf("size-GiB must be a positive number, got %q", args[1]))
	}

	c, err := cfg.Load()
	if err != nil {
		return withExit(1, err)
	}

	log := buildLogger(c.Logging)
	sizeBytes := uint64(sizeGiB * 1024 * 1024 * 1024)

	disk, err := diskfs.Format(path, sizeBytes, c.BlockSizeBytes, c.VolumeName, c.Force, clock.RealClock{})
	if err != nil {
		switch aegisfserr.KindOf(err) {
		case aegisfserr.KindAlreadyFormatted:
			return withExit(2, err)
		case aegisfserr.KindParameter:
			return withExit(1, err)
		default:
			return withExit(3, err)
		}
	}
	defer disk.Close()

	log.Info("formatted volume", "path", path, "size_bytes", sizeBytes, "block_size", c.BlockSizeBytes)
	return nil
}
