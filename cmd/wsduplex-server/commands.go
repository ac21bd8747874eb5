package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/wsduplex/internal/config"
	"github.com/muurk/wsduplex/internal/discovery"
	"github.com/muurk/wsduplex/internal/handlers"
	"github.com/muurk/wsduplex/internal/ui"
)

var (
	forceInit   bool
	scanTimeout time.Duration
)

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(inspectCmd)

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file")
	discoverCmd.Flags().DurationVar(&scanTimeout, "timeout", discovery.DefaultScanTimeout, "How long to listen for responses")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

// configInitCmd writes a config file holding the defaults
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Example: `  # Write to the default location
  wsduplex-server config init

  # Write somewhere else, replacing any existing file
  wsduplex-server config init --config ./wsduplex.yaml --force`,
	RunE: runConfigInit,
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		p, err := config.GetConfigPath()
		if err != nil {
			return fmt.Errorf("failed to get config path: %w", err)
		}
		path = p
	}

	if _, err := os.Stat(path); err == nil && !forceInit {
		return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cannot access config file: %w", err)
	}

	if err := config.Default().Save(path); err != nil {
		return err
	}

	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}

// discoverCmd lists servers advertising on the local network
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Find wsduplex servers on the network",
	Long: `Find wsduplex servers started with --advertise using mDNS/DNS-SD.

Lists every server found with its WebSocket URL and version.`,
	Example: `  # Listen for 5 seconds (default)
  wsduplex-server discover

  # Longer scan for slow networks
  wsduplex-server discover --timeout 15s`,
	RunE: runDiscover,
}

func runDiscover(cmd *cobra.Command, args []string) error {
	fmt.Printf("Scanning for wsduplex servers (timeout: %s)...\n\n", scanTimeout)

	scanner := discovery.NewScanner()
	scanner.Timeout = scanTimeout

	instances, err := scanner.Scan(cmd.Context())
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	fmt.Println(ui.RenderInstances(instances))
	return nil
}

// inspectCmd summarizes a capture file written with --capture-dir
var inspectCmd = &cobra.Command{
	Use:   "inspect <capture-file>",
	Short: "Summarize a frame capture file",
	Long: `Print every frame recorded in a capture file followed by totals.

Capture files are JSON Lines written by 'wsduplex-server server --capture-dir'.`,
	Example: `  wsduplex-server inspect captures/capture-20250101-120000.jsonl`,
	Args:    cobra.ExactArgs(1),
	RunE:    runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open capture file: %w", err)
	}
	defer func() { _ = f.Close() }()

	records, err := handlers.ReadCapture(f)
	if err != nil {
		return fmt.Errorf("failed to read capture file: %w", err)
	}

	printCaptureSummary(cmd.OutOrStdout(), args[0], records)
	return nil
}

const previewLen = 48

func printCaptureSummary(w io.Writer, name string, records []handlers.FrameRecord) {
	fmt.Fprintf(w, "File:   %s\n", name)
	fmt.Fprintf(w, "Frames: %d\n\n", len(records))

	var total, largest int
	byType := make(map[string]int)
	for _, rec := range records {
		preview := rec.PayloadASCII
		if len(preview) > previewLen {
			preview = preview[:previewLen] + "..."
		}
		fmt.Fprintf(w, "#%-5d %s %-6s %6d bytes  %s\n",
			rec.FrameNum, rec.Timestamp.Format("15:04:05.000"), rec.FrameType, rec.PayloadLen, preview)

		total += rec.PayloadLen
		largest = max(largest, rec.PayloadLen)
		byType[rec.FrameType]++
	}

	if len(records) == 0 {
		return
	}
	fmt.Fprintf(w, "\nText frames:   %d\n", byType["text"])
	fmt.Fprintf(w, "Binary frames: %d\n", byType["binary"])
	fmt.Fprintf(w, "Total bytes:   %d (largest %d, average %d)\n", total, largest, total/len(records))
}
