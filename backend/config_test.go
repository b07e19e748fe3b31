/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-feedgate/config"
	"github.com/acronis/go-feedgate/httpclient"
)

func loadConfig(data string) (*Config, error) {
	cfg := NewConfig()
	err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(bytes.NewBufferString(data), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadConfig("backend:\n  url: http://localhost:8080\n")
		require.NoError(t, err)
		require.Equal(t, NewDefaultConfig("http://localhost:8080"), cfg)
	})

	t.Run("custom values", func(t *testing.T) {
		cfg, err := loadConfig(`
backend:
  url: https://docs.example.com
  requestTimeout: 5s
  maxIdleConnsPerHost: 8
  retries:
    maxAttempts: 0
    initialInterval: 1s
    maxInterval: 10s
  dns:
    servers: ["10.0.0.53:53", "10.0.1.53:53"]
    timeout: 2s
  client:
    logger:
      mode: all
    rateLimits:
      enabled: true
      limit: 200
`)
		require.NoError(t, err)
		require.Equal(t, "https://docs.example.com", cfg.URL)
		require.Equal(t, config.TimeDuration(time.Second*5), cfg.RequestTimeout)
		require.Equal(t, 8, cfg.MaxIdleConnsPerHost)
		require.Equal(t, 0, cfg.Retries.MaxAttempts)
		require.Equal(t, config.TimeDuration(time.Second), cfg.Retries.InitialInterval)
		require.Equal(t, config.TimeDuration(time.Second*10), cfg.Retries.MaxInterval)
		require.Equal(t, DNSConfig{
			Servers: []string{"10.0.0.53:53", "10.0.1.53:53"},
			Timeout: config.TimeDuration(time.Second * 2),
		}, cfg.DNS)
		require.Equal(t, httpclient.LoggingModeAll, cfg.Client.Logger.Mode)
		require.True(t, cfg.Client.RateLimits.Enabled)
		require.Equal(t, 200, cfg.Client.RateLimits.Limit)
		require.Equal(t, httpclient.DefaultRateLimitingBurst, cfg.Client.RateLimits.Burst)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name   string
			data   string
			errMsg string
		}{
			{"missing url", "backend: {}\n", `backend.url: absolute http(s) URL is required, got ""`},
			{"relative url", "backend:\n  url: /docs\n", `backend.url: absolute http(s) URL is required, got "/docs"`},
			{"zero request timeout", "backend:\n  url: http://a\n  requestTimeout: 0s\n", "backend.requestTimeout: must be positive"},
			{"negative retries", "backend:\n  url: http://a\n  retries:\n    maxAttempts: -1\n", "backend.retries.maxAttempts: cannot be negative"},
			{"max interval less than initial", "backend:\n  url: http://a\n  retries:\n    initialInterval: 2s\n    maxInterval: 1s\n",
				"backend.retries.maxInterval: cannot be less than retries.initialInterval"},
			{"bad dns server", "backend:\n  url: http://a\n  dns:\n    servers: [10.0.0.53]\n", `backend.dns.servers: "10.0.0.53" should be in host:port format`},
			{"zero dns timeout", "backend:\n  url: http://a\n  dns:\n    timeout: 0s\n", "backend.dns.timeout: must be positive"},
			{"bad client logger mode", "backend:\n  url: http://a\n  client:\n    logger:\n      mode: verbose\n",
				`backend.client.logger.mode: unknown value "verbose", should be one of [none all failed]`},
		}
		for _, tt := range tests {
			tt := tt
			t.Run(tt.name, func(t *testing.T) {
				_, err := loadConfig(tt.data)
				require.EqualError(t, err, tt.errMsg)
			})
		}
	})
}
