// Wsduplex-server is a duplex WebSocket endpoint.
//
// It accepts WebSocket connections, runs each through a strict
// read, dispatch, optional write cycle and hands every inbound frame to a
// stock handler. It is useful as a protocol test peer, a load target and a
// reference for embedding the session package.
//
// Usage:
//
//	wsduplex-server server [flags]
//
// See 'wsduplex-server server --help' for available options.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/wsduplex/internal/config"
	"github.com/muurk/wsduplex/internal/handlers"
	"github.com/muurk/wsduplex/internal/server"
	"github.com/muurk/wsduplex/internal/ui"
	"github.com/muurk/wsduplex/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var configPath string

var rootCmd = &cobra.Command{
	Use:   "wsduplex-server",
	Short: "Duplex WebSocket endpoint",
	Long: `A WebSocket server that delivers every inbound frame to a handler exactly once
and writes at most one response per frame.

Each connection alternates strictly between reading a frame and, optionally,
writing one response. Settings come from a YAML config file; command-line
flags override it.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default $XDG_CONFIG_HOME/wsduplex/config.yaml)")

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

// Server command and flags
var (
	host          string
	port          int
	path          string
	logLevel      string
	handlerName   string
	workers       int
	idleTimeout   time.Duration
	writeTimeout  time.Duration
	readLimit     int64
	captureDir    string
	advertise     bool
	instanceName  string
	deferResponse time.Duration
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the WebSocket server",
	Long: `Start the server and accept WebSocket connections until interrupted.

Stock handlers:
  echo      write every frame back
  pingpong  answer "ping" with "pong", ignore anything else
  discard   never respond

To capture inbound frames for offline analysis, use --capture-dir to name a
directory where a JSON Lines file will be written.`,
	Example: `  # Echo server on the default port
  wsduplex-server server

  # Ping/pong on a custom port with debug frame logging
  wsduplex-server server --handler pingpong --port 9000 --log-level debug

  # Respond after a delay, from outside the read cycle
  wsduplex-server server --handler echo --defer 500ms

  # Capture inbound frames and advertise via mDNS
  wsduplex-server server --capture-dir ./captures --advertise`,
	RunE: runServer,
}

func init() {
	f := serverCmd.Flags()
	f.StringVar(&host, "host", "", "Listen address (empty = all interfaces)")
	f.IntVar(&port, "port", 8080, "Listen port")
	f.StringVar(&path, "path", "/", "HTTP path of the upgrade endpoint")
	f.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	f.StringVar(&handlerName, "handler", "echo", "Stock handler (echo, pingpong, discard)")
	f.IntVar(&workers, "workers", 0, "Executor worker goroutines (0 = GOMAXPROCS)")
	f.DurationVar(&idleTimeout, "idle-timeout", 300*time.Second, "Time allowed between inbound frames")
	f.DurationVar(&writeTimeout, "write-timeout", 30*time.Second, "Time allowed to write one frame")
	f.Int64Var(&readLimit, "read-limit", 16<<20, "Maximum inbound frame size in bytes (0 = unlimited)")
	f.StringVar(&captureDir, "capture-dir", "", "Directory to write frame captures (disabled if not specified)")
	f.BoolVar(&advertise, "advertise", false, "Advertise the server via mDNS")
	f.StringVar(&instanceName, "instance", "", "mDNS instance name (default hostname)")
	f.DurationVar(&deferResponse, "defer", 0, "Hand each frame to the handler after this delay")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	h, err := handlers.ByName(cfg.Handler)
	if err != nil {
		return err
	}
	if deferResponse > 0 {
		h = handlers.Deferred(deferResponse, h)
	}

	srv, err := server.New(cfg, h)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if ui.IsTerminal(os.Stdout) {
		fmt.Println(banner(cfg).Render())
	}

	return srv.Start(cmd.Context())
}

// applyFlags overrides config file values with flags set on the command line.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host = host
	}
	if f.Changed("port") {
		cfg.Port = port
	}
	if f.Changed("path") {
		cfg.Path = path
	}
	if f.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if f.Changed("handler") {
		cfg.Handler = handlerName
	}
	if f.Changed("workers") {
		cfg.Workers = workers
	}
	if f.Changed("idle-timeout") {
		cfg.Timeouts.Idle = idleTimeout
	}
	if f.Changed("write-timeout") {
		cfg.Timeouts.Write = writeTimeout
	}
	if f.Changed("read-limit") {
		cfg.Limits.ReadLimit = readLimit
	}
	if f.Changed("capture-dir") {
		cfg.CaptureDir = captureDir
	}
	if f.Changed("advertise") {
		cfg.Advertise.Enabled = advertise
	}
	if f.Changed("instance") {
		cfg.Advertise.Instance = instanceName
	}
}

func banner(cfg *config.Config) *ui.Header {
	listenHost := cfg.Host
	if listenHost == "" {
		listenHost = "0.0.0.0"
	}

	params := []ui.Param{
		{Key: "Listen", Value: "ws://" + net.JoinHostPort(listenHost, strconv.Itoa(cfg.Port)) + cfg.Path},
		{Key: "Handler", Value: cfg.Handler},
		{Key: "Idle timeout", Value: cfg.Timeouts.Idle.String()},
	}
	if deferResponse > 0 {
		params = append(params, ui.Param{Key: "Deferred", Value: deferResponse.String()})
	}
	if cfg.CaptureDir != "" {
		params = append(params, ui.Param{Key: "Capture", Value: cfg.CaptureDir})
	}
	if cfg.Advertise.Enabled {
		params = append(params, ui.Param{Key: "mDNS", Value: "advertising"})
	}
	return ui.NewHeader("wsduplex server", version.Full(), params...)
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("wsduplex-server %s (commit: %s)\n", version.Version, version.Commit)
	},
}
