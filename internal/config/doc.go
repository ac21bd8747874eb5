// Package config loads and saves the wsduplex server configuration.
//
// The configuration is a YAML file stored in a platform-appropriate location:
//   - Linux: $XDG_CONFIG_HOME/wsduplex/config.yaml or $HOME/.config/wsduplex/config.yaml
//   - macOS: $HOME/.config/wsduplex/config.yaml
//   - Windows: %LOCALAPPDATA%\wsduplex\config.yaml
//
// A missing file is not an error; Load returns Default. Fields left out of
// the file keep their defaults, and durations use Go syntax ("30s", "5m").
//
// # Example
//
//	version: 1
//	host: ""
//	port: 8080
//	path: /
//	log_level: info
//	handler: pingpong
//	timeouts:
//	  idle: 5m
//	  write: 30s
//	limits:
//	  read_limit: 16777216
//	  output_reserve: 1048576
//	advertise:
//	  enabled: true
//
// Save writes to a temporary file and renames it into place so a crash
// never leaves a truncated file behind.
package config
