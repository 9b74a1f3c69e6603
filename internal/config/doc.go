// Package config loads, validates, and normalizes the landopt TOML
// configuration. The configuration is an immutable value constructed once
// at startup and passed explicitly to every component.
package config
