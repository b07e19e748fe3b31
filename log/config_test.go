/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-feedgate/config"
)

func TestConfig(t *testing.T) {
	load := func(t *testing.T, data string) (*Config, error) {
		t.Helper()
		cfg := NewConfig()
		err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
		return cfg, err
	}

	t.Run("defaults", func(t *testing.T) {
		cfg, err := load(t, "")
		require.NoError(t, err)
		require.Equal(t, LevelInfo, cfg.Level)
		require.Equal(t, FormatJSON, cfg.Format)
		require.Equal(t, OutputStdout, cfg.Output)
		require.Equal(t, config.ByteSize(DefaultFileRotationMaxSizeBytes), cfg.File.Rotation.MaxSize)
		require.Equal(t, DefaultFileRotationMaxBackups, cfg.File.Rotation.MaxBackups)
		require.Equal(t, defaultErrorVerboseSuffix, cfg.Error.VerboseSuffix)
	})

	t.Run("custom values", func(t *testing.T) {
		cfg, err := load(t, `
log:
  level: DEBUG
  format: text
  output: file
  file:
    path: /var/log/feedgate.log
    rotation:
      maxSize: 10M
      maxBackups: 3
`)
		require.NoError(t, err)
		require.Equal(t, LevelDebug, cfg.Level)
		require.Equal(t, FormatText, cfg.Format)
		require.Equal(t, OutputFile, cfg.Output)
		require.Equal(t, "/var/log/feedgate.log", cfg.File.Path)
		require.Equal(t, config.ByteSize(10*1024*1024), cfg.File.Rotation.MaxSize)
		require.Equal(t, 3, cfg.File.Rotation.MaxBackups)
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := load(t, "log: {level: verbose}")
		require.ErrorContains(t, err, "log.level")
	})

	t.Run("file output without path", func(t *testing.T) {
		_, err := load(t, "log: {output: file}")
		require.EqualError(t, err, `log.file.path: cannot be empty when "file" output is used`)
	})

	t.Run("too small rotation size", func(t *testing.T) {
		_, err := load(t, "log: {file: {rotation: {maxSize: 1K}}}")
		require.ErrorContains(t, err, "log.file.rotation.maxSize")
	})
}
