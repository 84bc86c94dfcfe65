// Package config handles application configuration loading and validation.
//
// Configuration is loaded from config.yml, overlaid with a small set of
// environment variables, and validated using struct tags. Unset fields
// fall back to documented defaults, so only the watched stop pair is
// strictly required.
package config
