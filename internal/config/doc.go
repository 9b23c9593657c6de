// Package config loads, normalizes, and validates Eclipse's TOML
// configuration. Path fields are tilde-expanded and secrets may be
// supplied through the environment instead of the file.
package config
