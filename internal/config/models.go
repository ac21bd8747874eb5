package config

import (
	"net"
	"strconv"
	"time"
)

// CurrentVersion is the config file schema version.
const CurrentVersion = 1

// Config is the server configuration file.
type Config struct {
	Version    int       `yaml:"version"`
	Host       string    `yaml:"host"`                  // Empty = all interfaces
	Port       int       `yaml:"port"`                  // TCP port to listen on
	Path       string    `yaml:"path"`                  // HTTP path of the upgrade endpoint
	LogLevel   string    `yaml:"log_level"`             // debug, info, warn, error (empty = silent)
	Workers    int       `yaml:"workers"`               // Executor worker goroutines (0 = GOMAXPROCS)
	Handler    string    `yaml:"handler"`               // Stock handler name (echo, pingpong, discard)
	CaptureDir string    `yaml:"capture_dir,omitempty"` // Directory for JSONL frame captures (empty = disabled)
	Timeouts   Timeouts  `yaml:"timeouts"`
	Limits     Limits    `yaml:"limits"`
	Advertise  Advertise `yaml:"advertise"`
}

// Timeouts bounds the transport and shutdown phases.
type Timeouts struct {
	Handshake time.Duration `yaml:"handshake"` // HTTP upgrade
	Idle      time.Duration `yaml:"idle"`      // Time allowed between inbound frames
	Write     time.Duration `yaml:"write"`     // Time allowed to write one frame
	Shutdown  time.Duration `yaml:"shutdown"`  // Grace period for draining sessions
}

// Limits bounds per-connection memory.
type Limits struct {
	ReadLimit     int64 `yaml:"read_limit"`     // Maximum inbound frame size in bytes (0 = unlimited)
	OutputReserve int   `yaml:"output_reserve"` // Response buffer capacity reserved per frame
}

// Advertise controls mDNS service advertisement.
type Advertise struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance,omitempty"` // Service instance name (empty = hostname)
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version:  CurrentVersion,
		Host:     "",
		Port:     8080,
		Path:     "/",
		LogLevel: "info",
		Workers:  0,
		Handler:  "echo",
		Timeouts: Timeouts{
			Handshake: 30 * time.Second,
			Idle:      300 * time.Second,
			Write:     30 * time.Second,
			Shutdown:  10 * time.Second,
		},
		Limits: Limits{
			ReadLimit:     16 << 20,
			OutputReserve: 1 << 20,
		},
	}
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
