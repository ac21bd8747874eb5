package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "windows" && runtime.GOOS != "darwin" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	}

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if !strings.Contains(configDir, "wsduplex") {
		t.Errorf("GetConfigDir() = %v, should contain 'wsduplex'", configDir)
	}
	if runtime.GOOS != "windows" && runtime.GOOS != "darwin" {
		if want := filepath.Join("/tmp/xdg", "wsduplex"); configDir != want {
			t.Errorf("GetConfigDir() = %v, want %v", configDir, want)
		}
	}

	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() = %v, want config.yaml file", configPath)
	}
}

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != Default().Port || cfg.Handler != "echo" {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
	if cfg.Limits.OutputReserve != 1<<20 {
		t.Errorf("OutputReserve = %d, want %d", cfg.Limits.OutputReserve, 1<<20)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `version: 1
port: 9001
handler: pingpong
timeouts:
  idle: 45s
`
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9001 {
		t.Errorf("Port = %d, want 9001", cfg.Port)
	}
	if cfg.Handler != "pingpong" {
		t.Errorf("Handler = %q, want pingpong", cfg.Handler)
	}
	if cfg.Timeouts.Idle != 45*time.Second {
		t.Errorf("Timeouts.Idle = %v, want 45s", cfg.Timeouts.Idle)
	}
	if cfg.Timeouts.Write != 30*time.Second {
		t.Errorf("Timeouts.Write = %v, want default 30s", cfg.Timeouts.Write)
	}
	if cfg.Path != "/" {
		t.Errorf("Path = %q, want default /", cfg.Path)
	}
}

func TestLoadRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "port: [1, 2"},
		{"wrong version", "version: 2\n"},
		{"bad port", "version: 1\nport: 70000\n"},
		{"bad path", "version: 1\npath: ws\n"},
		{"bad level", "version: 1\nlog_level: loud\n"},
		{"negative timeout", "version: 1\ntimeouts:\n  idle: -1s\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() error = nil, want error")
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Port = 7777
	cfg.Advertise.Enabled = true
	cfg.Advertise.Instance = "bench"
	cfg.Timeouts.Shutdown = 3 * time.Second

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(raw), "# wsduplex server configuration") {
		t.Error("saved file is missing the header comment")
	}
	if !strings.Contains(string(raw), "shutdown: 3s") {
		t.Errorf("durations should be saved in Go syntax, got:\n%s", raw)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Port != 7777 || !loaded.Advertise.Enabled || loaded.Advertise.Instance != "bench" {
		t.Errorf("Load() = %+v, want saved values", loaded)
	}
	if loaded.Timeouts.Shutdown != 3*time.Second {
		t.Errorf("Timeouts.Shutdown = %v, want 3s", loaded.Timeouts.Shutdown)
	}
}

func TestValidateCaptureDir(t *testing.T) {
	cfg := Default()
	cfg.CaptureDir = t.TempDir()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with existing dir error = %v", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0600); err != nil {
		t.Fatal(err)
	}
	cfg.CaptureDir = file
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with file as capture dir error = nil")
	}

	cfg.CaptureDir = filepath.Join(t.TempDir(), "missing")
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() with missing capture dir error = nil")
	}
}

func TestAddr(t *testing.T) {
	cfg := Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = 9000
	if got := cfg.Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:9000")
	}
	cfg.Host = ""
	if got := cfg.Addr(); got != ":9000" {
		t.Errorf("Addr() = %q, want %q", got, ":9000")
	}
}
