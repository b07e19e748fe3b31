/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_FileOutput(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.Level = LevelWarn
	cfg.File.Path = filepath.Join(t.TempDir(), "feedgate.log")

	logger, closeFn := NewLogger(cfg)
	logger.Info("dropped by level")
	logger.With(String("client_id", "feeder-1")).Warn("client session evicted", Int("sessions", 2))
	logger.Errorf("backend %s is unreachable", "docs")
	logger.Error("dispatch failed", Error(errors.New("boom")))
	closeFn()

	data, err := os.ReadFile(cfg.File.Path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "client session evicted", entry["msg"])
	require.Equal(t, "feeder-1", entry["client_id"])
	require.EqualValues(t, 2, entry["sessions"])
	require.EqualValues(t, os.Getpid(), entry["pid"])

	require.NoError(t, json.Unmarshal([]byte(lines[1]), &entry))
	require.Equal(t, "backend docs is unreachable", entry["msg"])

	entry = map[string]interface{}{}
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &entry))
	require.Equal(t, "boom", entry["error"])
}

func TestLogfAdapter_WithLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.Level = LevelDebug
	cfg.Format = FormatText
	cfg.NoColor = true
	cfg.File.Path = filepath.Join(t.TempDir(), "feedgate.log")

	logger, closeFn := NewLogger(cfg)
	logger.WithLevel(LevelError).Warn("suppressed warning")
	logger.Debug("debug message")
	closeFn()

	data, err := os.ReadFile(cfg.File.Path)
	require.NoError(t, err)
	require.Contains(t, string(data), "debug message")
	require.NotContains(t, string(data), "suppressed warning")
}

func TestExpandFilePath(t *testing.T) {
	start := time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)
	require.Equal(t, "/var/log/feedgate-202403051407-42.log",
		expandFilePath("/var/log/feedgate-{{starttime}}-{{pid}}.log", start, 42))
	require.Equal(t, "/var/log/feedgate.log", expandFilePath("/var/log/feedgate.log", start, 42))
}
