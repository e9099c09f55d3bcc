package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jacobsa/fuse"
	"github.com/spf13/cobra"

	"github.com/reekid420/AegisFS/internal/cfg"
	"github.com/reekid420/AegisFS/internal/clock"
	"github.com/reekid420/AegisFS/internal/diskfs"
	"github.com/reekid420/AegisFS/internal/fuseadapter"
	"github.com/reekid420/AegisFS/internal/vfs"
)

var mountCmd = &cobra.Command{
	Use:   "mount <device> <mountpoint>",
	Short: "Mount an AegisFS volume, blocking until unmounted",
	Args:  cobra.ExactArgs(2),
	RunE:  runMount,
}

func init() {
	if err := cfg.BindCommonFlags(mountCmd.Flags()); err != nil {
		panic(err)
	}
	if err := cfg.BindMountFlags(mountCmd.Flags()); err != nil {
		panic(err)
	}
}

func runMount(cmd *cobra.Command, args []string) error {
	device := args[0]
	mountPoint := args[1]

	fi, err := os.Stat(mountPoint)
	if err != nil {
		return withExit(1, fmt.Errorf("mountpoint %q: %w", mountPoint, err))
	}
	if !fi.IsDir() {
		return withExit(1, fmt.Errorf("mountpoint %q is not a directory", mountPoint))
	}

	c, err := cfg.Load()
	if err != nil {
		return withExit(1, err)
	}

	log := buildLogger(c.Logging)

	disk, err := diskfs.Mount(device, c.ReadOnly, clock.RealClock{})
	if err != nil {
		return withExit(3, err)
	}

	engine := vfs.NewEngine(disk, clock.RealClock{})
	adapter := fuseadapter.New(engine, uidOrSelf(c.Uid), gidOrSelf(c.Gid))
	server := fuseadapter.NewServer(adapter)

	mountCfg := &fuse.MountConfig{
		FSName:     device,
		Subtype:    "aegisfs",
		VolumeName: orDefault(disk.Superblock().VolumeNameString(), "aegisfs"),
		ReadOnly:   c.ReadOnly,
	}

	mfs, err := fuse.Mount(mountPoint, server, mountCfg)
	if err != nil {
		engine.Close()
		return withExit(4, fmt.Errorf("mount refused: %w", err))
	}

	registerSIGINTHandler(mountPoint, log)

	log.Info("mounted volume", "device", device, "mountpoint", mountPoint, "read_only", c.ReadOnly)

	joinErr := mfs.Join(context.Background())
	closeErr := engine.Close()

	if joinErr != nil {
		return withExit(3, fmt.Errorf("serving file system: %w", joinErr))
	}
	if closeErr != nil {
		return withExit(3, fmt.Errorf("final flush on unmount: %w", closeErr))
	}
	return nil
}

func registerSIGINTHandler(mountPoint string, log interface{ Info(string, ...any) }) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)

	go func() {
		for range signalChan {
			log.Info("received interrupt, attempting to unmount", "mountpoint", mountPoint)
			if err := fuse.Unmount(mountPoint); err != nil {
				log.Info("unmount failed, will retry on next interrupt", "error", err.Error())
				continue
			}
			return
		}
	}()
}

func uidOrSelf(uid int) uint32 {
	if uid < 0 {
		return uint32(os.Getuid())
	}
	return uint32(uid)
}

func gidOrSelf(gid int) uint32 {
	if gid < 0 {
		return uint32(os.Getgid())
	}
	return uint32(gid)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
