// Package cfg defines the configuration surface shared by the format,
// mount, and scrub subcommands: command-line flags bound through pflag,
// overlaid with an optional YAML config file via viper.
package cfg

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of tunables any AegisFS subcommand may read.
// Not every field applies to every subcommand: format reads the block
// size, volume name, force and logging fields; mount reads read-only,
// uid, gid and logging; scrub reads logging. FileMode, DirMode,
// FlushInterval, HighWaterMarkMB and BlockCacheBlocks are parsed but no
// subcommand passes them on: the VFS engine and block cache use their
// built-in flush interval (5s), high-water mark (64 MiB) and cache size
// (1024 blocks), and new inodes take their permission bits from the
// kernel request.
type Config struct {
	// ConfigFile, when set, is a YAML file overlaid on top of flag
	// defaults (flags explicitly set on the command line still win).
	ConfigFile string `yaml:"-"`

	BlockSizeBytes uint32 `yaml:"block-size-bytes"`
	VolumeName     string `yaml:"volume-name"`
	Force          bool   `yaml:"force"`

	ReadOnly bool `yaml:"read-only"`

	FileMode Octal `yaml:"file-mode"`
	DirMode  Octal `yaml:"dir-mode"`
	Uid      int   `yaml:"uid"`
	Gid      int   `yaml:"gid"`

	FlushInterval    time.Duration `yaml:"flush-interval"`
	HighWaterMarkMB  int           `yaml:"high-water-mark-mb"`
	BlockCacheBlocks int           `yaml:"block-cache-blocks"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig controls internal/logger.
type LoggingConfig struct {
	Path       string `yaml:"path"`
	Debug      bool   `yaml:"debug"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// BindCommonFlags registers the flags shared by all three subcommands:
// the logging section and the viper-backed config file pointer.
func BindCommonFlags(flags *pflag.FlagSet) error {
	flags.String("config-file", "", "Path to a YAML config file overlaid on top of these flags.")
	flags.String("log-path", "", "Path to the log file; empty means stderr.")
	flags.Bool("log-debug", false, "Enable debug-level logging.")

	for _, name := range []string{"config-file", "log-path", "log-debug"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

// BindFormatFlags registers the flags specific to the format subcommand.
func BindFormatFlags(flags *pflag.FlagSet) error {
	flags.Uint32("block-size-bytes", 4096, "Block size in bytes; must be a power of two.")
	flags.String("volume-name", "", "Volume label stored in the superblock.")
	flags.Bool("force", false, "Overwrite an existing AegisFS superblock.")

	for _, name := range []string{"block-size-bytes", "volume-name", "force"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

// BindMountFlags registers the flags specific to the mount subcommand.
func BindMountFlags(flags *pflag.FlagSet) error {
	flags.Bool("read-only", false, "Mount read-only.")
	flags.String("file-mode", "0644", "Default permission bits for new files, octal (parsed, not applied by mount).")
	flags.String("dir-mode", "0755", "Default permission bits for new directories, octal (parsed, not applied by mount).")
	flags.Int("uid", -1, "Owning uid for new inodes; -1 means the mounting user.")
	flags.Int("gid", -1, "Owning gid for new inodes; -1 means the mounting user's primary group.")
	flags.Duration("flush-interval", 5*time.Second, "Background write-back flush interval (parsed, not applied: mount always uses 5s).")
	flags.Int("high-water-mark-mb", 64, "Write-back queue size that triggers a synchronous flush (parsed, not applied: mount always uses 64).")
	flags.Int("block-cache-blocks", 1024, "Number of blocks held in the read-through block cache (parsed, not applied: mount always uses 1024).")

	for _, name := range []string{"read-only", "file-mode", "dir-mode", "uid", "gid", "flush-interval", "high-water-mark-mb", "block-cache-blocks"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

// Load overlays any config file named by --config-file on top of the
// flag-bound viper state and unmarshals the result into a Config.
func Load() (*Config, error) {
	if path := viper.GetString("config-file"); path != "" {
		viper.SetConfigFile(path)
		viper.SetConfigType("yaml")
		if err := viper.MergeInConfig(); err != nil {
			return nil, err
		}
	}

	var c Config
	c.ConfigFile = viper.GetString("config-file")
	c.BlockSizeBytes = viper.GetUint32("block-size-bytes")
	c.VolumeName = viper.GetString("volume-name")
	c.Force = viper.GetBool("force")
	c.ReadOnly = viper.GetBool("read-only")
	c.Uid = viper.GetInt("uid")
	c.Gid = viper.GetInt("gid")
	c.FlushInterval = viper.GetDuration("flush-interval")
	c.HighWaterMarkMB = viper.GetInt("high-water-mark-mb")
	c.BlockCacheBlocks = viper.GetInt("block-cache-blocks")
	c.Logging.Path = viper.GetString("log-path")
	c.Logging.Debug = viper.GetBool("log-debug")

	if s := viper.GetString("file-mode"); s != "" {
		if err := c.FileMode.UnmarshalText([]byte(s)); err != nil {
			return nil, err
		}
	}
	if s := viper.GetString("dir-mode"); s != "" {
		if err := c.DirMode.UnmarshalText([]byte(s)); err != nil {
			return nil, err
		}
	}

	return &c, nil
}
