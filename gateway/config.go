/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package gateway

import (
	"fmt"
	"math"
	"time"

	"github.com/acronis/go-feedgate/admission"
	"github.com/acronis/go-feedgate/backend"
	"github.com/acronis/go-feedgate/config"
	"github.com/acronis/go-feedgate/session"
)

const cfgDefaultKeyPrefix = "gateway"

const (
	cfgKeyErrorDomain              = "errorDomain"
	cfgKeyCapacityMaxThreads       = "capacity.maxThreads"
	cfgKeyCapacitySoftStartSeconds = "capacity.softStartSeconds"
	cfgKeyReaperInitialDelay       = "reaper.initialDelay"
	cfgKeyReaperInterval           = "reaper.interval"
	cfgKeyReaperIdleTimeout        = "reaper.idleTimeout"
	cfgKeyDefaultTimeout           = "defaultTimeout"
	cfgKeyRetryAfter               = "retryAfter"
)

const (
	defaultErrorDomain = "FeedGate"
	defaultRetryAfter  = time.Second
)

// Config represents a set of configuration parameters for Gateway.
type Config struct {
	ErrorDomain string `mapstructure:"errorDomain" yaml:"errorDomain" json:"errorDomain"`

	// Capacity is nil when the capacity of the host is not configured, the fallback budget is used then.
	Capacity *admission.CapacityConfig `mapstructure:"capacity" yaml:"capacity" json:"capacity"`

	Reaper ReaperConfig `mapstructure:"reaper" yaml:"reaper" json:"reaper"`

	// DefaultTimeout is used for backend handles of clients which don't send a valid X-Feed-Timeout header.
	DefaultTimeout config.TimeDuration `mapstructure:"defaultTimeout" yaml:"defaultTimeout" json:"defaultTimeout"`

	// RetryAfter is sent in Retry-After header when all admission permits are taken.
	RetryAfter config.TimeDuration `mapstructure:"retryAfter" yaml:"retryAfter" json:"retryAfter"`

	keyPrefix string
}

// ReaperConfig represents a set of configuration parameters for sweeping idle client sessions.
type ReaperConfig struct {
	InitialDelay config.TimeDuration `mapstructure:"initialDelay" yaml:"initialDelay" json:"initialDelay"`
	Interval     config.TimeDuration `mapstructure:"interval" yaml:"interval" json:"interval"`
	IdleTimeout  config.TimeDuration `mapstructure:"idleTimeout" yaml:"idleTimeout" json:"idleTimeout"`
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows to specify key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix:   cfgDefaultKeyPrefix,
		ErrorDomain: defaultErrorDomain,
		Reaper: ReaperConfig{
			InitialDelay: config.TimeDuration(session.DefaultReaperInitialDelay),
			Interval:     config.TimeDuration(session.DefaultReaperInterval),
			IdleTimeout:  config.TimeDuration(session.DefaultIdleTimeout),
		},
		DefaultTimeout: config.TimeDuration(backend.DefaultTimeout),
		RetryAfter:     config.TimeDuration(defaultRetryAfter),
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for Gateway in config.DataProvider.
// Capacity has no defaults, its absence is meaningful.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyErrorDomain, defaultErrorDomain)
	dp.SetDefault(cfgKeyReaperInitialDelay, session.DefaultReaperInitialDelay)
	dp.SetDefault(cfgKeyReaperInterval, session.DefaultReaperInterval)
	dp.SetDefault(cfgKeyReaperIdleTimeout, session.DefaultIdleTimeout)
	dp.SetDefault(cfgKeyDefaultTimeout, backend.DefaultTimeout)
	dp.SetDefault(cfgKeyRetryAfter, defaultRetryAfter)
}

// Set sets Gateway configuration values from config.DataProvider.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.ErrorDomain, err = dp.GetString(cfgKeyErrorDomain); err != nil {
		return err
	}
	if c.ErrorDomain == "" {
		return dp.WrapKeyErr(cfgKeyErrorDomain, fmt.Errorf("error domain should be set"))
	}

	if err = c.setCapacity(dp); err != nil {
		return err
	}
	if err = c.Reaper.Set(dp); err != nil {
		return err
	}

	if c.DefaultTimeout, err = getPositiveDuration(dp, cfgKeyDefaultTimeout); err != nil {
		return err
	}
	if c.RetryAfter, err = getPositiveDuration(dp, cfgKeyRetryAfter); err != nil {
		return err
	}
	return nil
}

func (c *Config) setCapacity(dp config.DataProvider) error {
	c.Capacity = nil
	if !dp.IsSet(cfgKeyCapacityMaxThreads) {
		return nil
	}

	var capacity admission.CapacityConfig
	var err error
	if capacity.MaxThreads, err = dp.GetInt(cfgKeyCapacityMaxThreads); err != nil {
		return err
	}
	if capacity.MaxThreads <= 0 {
		return dp.WrapKeyErr(cfgKeyCapacityMaxThreads, fmt.Errorf("must be positive"))
	}
	if capacity.SoftStartSeconds, err = dp.GetFloat64(cfgKeyCapacitySoftStartSeconds); err != nil {
		return err
	}
	if capacity.SoftStartSeconds < 0 {
		return dp.WrapKeyErr(cfgKeyCapacitySoftStartSeconds, fmt.Errorf("cannot be negative"))
	}
	if math.IsNaN(capacity.SoftStartSeconds) || math.IsInf(capacity.SoftStartSeconds, 0) {
		return dp.WrapKeyErr(cfgKeyCapacitySoftStartSeconds, fmt.Errorf("must be a finite number"))
	}
	c.Capacity = &capacity
	return nil
}

// Set sets reaper configuration values from config.DataProvider.
func (r *ReaperConfig) Set(dp config.DataProvider) error {
	dur, err := dp.GetDuration(cfgKeyReaperInitialDelay)
	if err != nil {
		return err
	}
	if dur < 0 {
		return dp.WrapKeyErr(cfgKeyReaperInitialDelay, fmt.Errorf("cannot be negative"))
	}
	r.InitialDelay = config.TimeDuration(dur)

	if r.Interval, err = getPositiveDuration(dp, cfgKeyReaperInterval); err != nil {
		return err
	}
	if r.IdleTimeout, err = getPositiveDuration(dp, cfgKeyReaperIdleTimeout); err != nil {
		return err
	}
	return nil
}

func (r ReaperConfig) sessionConfig() session.ReaperConfig {
	return session.ReaperConfig{
		InitialDelay: time.Duration(r.InitialDelay),
		Interval:     time.Duration(r.Interval),
		IdleTimeout:  time.Duration(r.IdleTimeout),
	}
}

func getPositiveDuration(dp config.DataProvider, key string) (config.TimeDuration, error) {
	dur, err := dp.GetDuration(key)
	if err != nil {
		return 0, err
	}
	if dur <= 0 {
		return 0, dp.WrapKeyErr(key, fmt.Errorf("must be positive"))
	}
	return config.TimeDuration(dur), nil
}
