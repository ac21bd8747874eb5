// Package ui renders terminal output for the wsduplex command line.
//
// Output is styled with lipgloss: a bordered startup banner listing the
// endpoint and its settings, and a compact list of servers found by the
// discover command. Callers check IsTerminal first and fall back to plain
// text or structured logs when output is redirected.
//
//	if ui.IsTerminal(os.Stdout) {
//	    fmt.Println(ui.NewHeader("wsduplex server", version.Full(),
//	        ui.Param{Key: "Listen", Value: "ws://localhost:8080/"},
//	    ).Render())
//	}
package ui
