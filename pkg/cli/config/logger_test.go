package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/mnemo-lab/mnemosyne/pkg/cli/config"
)

func TestLogger_Configure(t *testing.T) {
	t.Run("defaults configure without error", func(t *testing.T) {
		cfg := config.NewLoggerForTest("info", "console", "stdout", "", "")
		closer, err := cfg.Configure()
		gt.NoError(t, err).Required()
		closer()
	})

	t.Run("unknown level is rejected", func(t *testing.T) {
		cfg := config.NewLoggerForTest("verbose", "console", "stdout", "", "")
		_, err := cfg.Configure()
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, config.ErrInvalidLogLevel)).True()
	})

	t.Run("unknown format is rejected", func(t *testing.T) {
		cfg := config.NewLoggerForTest("info", "xml", "stdout", "", "")
		_, err := cfg.Configure()
		gt.Value(t, err).NotNil()
		gt.Bool(t, errors.Is(err, config.ErrInvalidLogFormat)).True()
	})

	t.Run("file output creates the log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mnemosyne.log")
		cfg := config.NewLoggerForTest("debug", "json", path, "", "")

		closer, err := cfg.Configure()
		gt.NoError(t, err).Required()
		closer()

		_, err = os.Stat(path)
		gt.NoError(t, err)
	})

	t.Run("unwritable output path fails", func(t *testing.T) {
		cfg := config.NewLoggerForTest("info", "console", "/nonexistent-dir/mnemosyne.log", "", "")
		_, err := cfg.Configure()
		gt.Value(t, err).NotNil()
	})
}

func TestLogger_Flags(t *testing.T) {
	var cfg config.Logger
	gt.Value(t, len(cfg.Flags())).Equal(5)
}
