package cmd

import (
	"log/slog"

	"github.com/reekid420/AegisFS/internal/cfg"
	"github.com/reekid420/AegisFS/internal/logger"
)

func buildLogger(l cfg.LoggingConfig) *slog.Logger {
	return logger.New(logger.Config{
		Path:       l.Path,
		Debug:      l.Debug,
		MaxSizeMB:  l.MaxSizeMB,
		MaxBackups: l.MaxBackups,
		MaxAgeDays: l.MaxAgeDays,
	})
}
