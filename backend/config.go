/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package backend

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/acronis/go-feedgate/config"
	"github.com/acronis/go-feedgate/httpclient"
)

const cfgDefaultKeyPrefix = "backend"

const (
	cfgKeyURL                    = "url"
	cfgKeyRequestTimeout         = "requestTimeout"
	cfgKeyMaxIdleConnsPerHost    = "maxIdleConnsPerHost"
	cfgKeyRetriesMaxAttempts     = "retries.maxAttempts"
	cfgKeyRetriesInitialInterval = "retries.initialInterval"
	cfgKeyRetriesMaxInterval     = "retries.maxInterval"
	cfgKeyDNSServers             = "dns.servers"
	cfgKeyDNSTimeout             = "dns.timeout"
	cfgKeyClient                 = "client"
)

const (
	defaultRequestTimeout         = time.Second * 30
	defaultMaxIdleConnsPerHost    = 64
	defaultRetriesMaxAttempts     = 3
	defaultRetriesInitialInterval = time.Millisecond * 200
	defaultRetriesMaxInterval     = time.Second * 5
	defaultDNSTimeout             = time.Second * 5
)

// Config represents a set of configuration parameters for the HTTP delivery channel.
type Config struct {
	URL                 string              `mapstructure:"url" yaml:"url" json:"url"`
	RequestTimeout      config.TimeDuration `mapstructure:"requestTimeout" yaml:"requestTimeout" json:"requestTimeout"`
	MaxIdleConnsPerHost int                 `mapstructure:"maxIdleConnsPerHost" yaml:"maxIdleConnsPerHost" json:"maxIdleConnsPerHost"`
	Retries             RetriesConfig       `mapstructure:"retries" yaml:"retries" json:"retries"`
	DNS                 DNSConfig           `mapstructure:"dns" yaml:"dns" json:"dns"`
	Client              *httpclient.Config  `mapstructure:"client" yaml:"client" json:"client"`

	keyPrefix string
}

// DNSConfig configures resolving of the backend host name.
// The system resolver is used when no servers are set.
type DNSConfig struct {
	Servers []string            `mapstructure:"servers" yaml:"servers" json:"servers"`
	Timeout config.TimeDuration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// RetriesConfig configures retrying of failed deliveries.
type RetriesConfig struct {
	// MaxAttempts is the number of retries after the first failed attempt. Zero disables retries.
	MaxAttempts     int                 `mapstructure:"maxAttempts" yaml:"maxAttempts" json:"maxAttempts"`
	InitialInterval config.TimeDuration `mapstructure:"initialInterval" yaml:"initialInterval" json:"initialInterval"`

	// MaxInterval caps the exponentially growing delay between attempts.
	MaxInterval config.TimeDuration `mapstructure:"maxInterval" yaml:"maxInterval" json:"maxInterval"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix, Client: httpclient.NewConfig()}
}

// NewDefaultConfig creates a new instance of the Config with default values (URL must be set anyway).
func NewDefaultConfig(backendURL string) *Config {
	return &Config{
		keyPrefix:           cfgDefaultKeyPrefix,
		URL:                 backendURL,
		RequestTimeout:      config.TimeDuration(defaultRequestTimeout),
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		Retries: RetriesConfig{
			MaxAttempts:     defaultRetriesMaxAttempts,
			InitialInterval: config.TimeDuration(defaultRetriesInitialInterval),
			MaxInterval:     config.TimeDuration(defaultRetriesMaxInterval),
		},
		DNS:    DNSConfig{Timeout: config.TimeDuration(defaultDNSTimeout)},
		Client: httpclient.NewDefaultConfig(),
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRequestTimeout, defaultRequestTimeout)
	dp.SetDefault(cfgKeyMaxIdleConnsPerHost, defaultMaxIdleConnsPerHost)
	dp.SetDefault(cfgKeyRetriesMaxAttempts, defaultRetriesMaxAttempts)
	dp.SetDefault(cfgKeyRetriesInitialInterval, defaultRetriesInitialInterval)
	dp.SetDefault(cfgKeyRetriesMaxInterval, defaultRetriesMaxInterval)
	dp.SetDefault(cfgKeyDNSTimeout, defaultDNSTimeout)
	c.client().SetProviderDefaults(config.NewKeyPrefixedDataProvider(dp, cfgKeyClient))
}

func (c *Config) client() *httpclient.Config {
	if c.Client == nil {
		c.Client = httpclient.NewConfig()
	}
	return c.Client
}

// Set sets configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.URL, err = dp.GetString(cfgKeyURL); err != nil {
		return err
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return dp.WrapKeyErr(cfgKeyURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return dp.WrapKeyErr(cfgKeyURL, fmt.Errorf("absolute http(s) URL is required, got %q", c.URL))
	}

	var dur time.Duration
	if dur, err = dp.GetDuration(cfgKeyRequestTimeout); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyRequestTimeout, fmt.Errorf("must be positive"))
	}
	c.RequestTimeout = config.TimeDuration(dur)

	if c.MaxIdleConnsPerHost, err = dp.GetInt(cfgKeyMaxIdleConnsPerHost); err != nil {
		return err
	}

	if c.Retries.MaxAttempts, err = dp.GetInt(cfgKeyRetriesMaxAttempts); err != nil {
		return err
	}
	if c.Retries.MaxAttempts < 0 {
		return dp.WrapKeyErr(cfgKeyRetriesMaxAttempts, fmt.Errorf("cannot be negative"))
	}
	if dur, err = dp.GetDuration(cfgKeyRetriesInitialInterval); err != nil {
		return err
	}
	c.Retries.InitialInterval = config.TimeDuration(dur)
	if dur, err = dp.GetDuration(cfgKeyRetriesMaxInterval); err != nil {
		return err
	}
	if dur < time.Duration(c.Retries.InitialInterval) {
		return dp.WrapKeyErr(cfgKeyRetriesMaxInterval, fmt.Errorf("cannot be less than %s", cfgKeyRetriesInitialInterval))
	}
	c.Retries.MaxInterval = config.TimeDuration(dur)

	if c.DNS.Servers, err = dp.GetStringSlice(cfgKeyDNSServers); err != nil {
		return err
	}
	for _, addr := range c.DNS.Servers {
		if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
			return dp.WrapKeyErr(cfgKeyDNSServers, fmt.Errorf("%q should be in host:port format", addr))
		}
	}
	if dur, err = dp.GetDuration(cfgKeyDNSTimeout); err != nil {
		return err
	}
	if dur <= 0 {
		return dp.WrapKeyErr(cfgKeyDNSTimeout, fmt.Errorf("must be positive"))
	}
	c.DNS.Timeout = config.TimeDuration(dur)

	return c.client().Set(config.NewKeyPrefixedDataProvider(dp, cfgKeyClient))
}
