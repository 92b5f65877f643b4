package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 10, cfg.MaxConnections)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
	assert.Equal(t, 1024, cfg.BufferSize)
	assert.Equal(t, time.Second, cfg.PollInterval())
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, "localhost:9090 (max_connections: 10, timeout: 30s, buffer: 1024 bytes)", cfg.String())
}

func TestDefaultChatConfig(t *testing.T) {
	cfg := DefaultChatConfig()
	assert.Equal(t, 9091, cfg.Port)
	assert.Equal(t, 20, cfg.MaxConnections)
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty host", func(c *Config) { c.Host = "" }, "host"},
		{"blank host", func(c *Config) { c.Host = "   " }, "host"},
		{"port zero", func(c *Config) { c.Port = 0 }, "port"},
		{"port too high", func(c *Config) { c.Port = 65536 }, "port"},
		{"no connections", func(c *Config) { c.MaxConnections = 0 }, "max_connections"},
		{"negative timeout", func(c *Config) { c.TimeoutSeconds = -1 }, "timeout_seconds"},
		{"zero buffer", func(c *Config) { c.BufferSize = 0 }, "buffer_size"},
		{"negative frame size", func(c *Config) { c.MaxFrameSize = -1 }, "max_frame_size"},
		{"negative poll interval", func(c *Config) { c.PollIntervalMs = -5 }, "poll_interval_ms"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidateBoundaries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Port = 1
	assert.NoError(t, cfg.Validate())
	cfg.Port = 65535
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults("", DefaultChatConfig())
	require.NoError(t, err)
	assert.Equal(t, 9091, cfg.Port)
}

func TestLoadJSONOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 7000, "max_connections": 3, "log_level": ""}`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 3, cfg.MaxConnections)
	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 1024, cfg.BufferSize)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "host: 0.0.0.0\nport: 7100\nbuffer_size: 4096\nmetrics_addr: 127.0.0.1:9100\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 7100, cfg.Port)
	assert.Equal(t, 4096, cfg.BufferSize)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.Equal(t, 10, cfg.MaxConnections)
}

func TestLoadInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"port": "nope"`), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveAndLoad(t *testing.T) {
	for _, name := range []string{"config.json", "config.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "nested", name)
			cfg := DefaultConfig()
			cfg.Port = 7200
			cfg.ChatHistoryPath = "/tmp/history.db"
			require.NoError(t, cfg.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("NETSERVER_LOG_LEVEL", "debug")
	t.Setenv("NETSERVER_LOG_PATH", "/tmp/netserver.log")

	cfg := DefaultConfig()
	cfg.ApplyEnv()
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/netserver.log", cfg.LogPath)
}

func TestAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "::1"
	cfg.Port = 80
	assert.Equal(t, "[::1]:80", cfg.Address())
}

func TestWatchReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"info"}`), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var lastLevel atomic.Value
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, DefaultConfig(), func(cfg *Config) {
			lastLevel.Store(cfg.LogLevel)
		})
	}()

	// give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"log_level":"debug"}`), 0644))

	require.Eventually(t, func() bool {
		v, _ := lastLevel.Load().(string)
		return v == "debug"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchIgnoresInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{}`), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go Watch(ctx, path, DefaultConfig(), func(*Config) { calls.Add(1) })

	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"port": 0}`), 0644))
	time.Sleep(200 * time.Millisecond)

	assert.Equal(t, int32(0), calls.Load())
}
