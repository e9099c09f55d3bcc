package logger_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/reekid420/AegisFS/internal/logger"
)

func TestNewWithFilePathDoesNotPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aegisfs.log")
	log := logger.New(logger.Config{Path: path, Debug: true})
	assert.NotNil(t, log)
	log.Info("hello", "k", "v")
}

func TestNewWithoutPathUsesStderr(t *testing.T) {
	log := logger.New(logger.Config{})
	assert.NotNil(t, log)
}
