/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package config loads configuration of the feed gateway components from YAML/JSON files
// and environment variables.
package config

// Config is implemented by every configuration section that may be filled by Loader.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by sections whose parameters live under a key prefix (e.g. "gateway").
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// dataProviderFor returns data provider which should be used for the given section.
func dataProviderFor(dp DataProvider, cfg Config) DataProvider {
	if kp, ok := cfg.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
	}
	return dp
}
