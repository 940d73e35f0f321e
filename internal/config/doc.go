// Package config loads farmfield's configuration.
//
// Settings come from, in increasing precedence:
//
//  1. built-in defaults (GetDefaultConfig)
//  2. ~/.config/farmfield/config.yaml (or the directory given with --config)
//  3. .env files in the working directory and the config directory
//  4. FARMFIELD_* environment variables
//
// Client credentials are usually supplied through the environment or a .env
// file rather than the YAML file. Missing credentials are reported as a
// ConfigurationError only when an operation actually needs them, so the
// sample field source keeps working without any provider account.
package config
