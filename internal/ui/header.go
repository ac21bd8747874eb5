package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Param is one key/value line of a header. Params render in the order given.
type Param struct {
	Key   string
	Value string
}

// Header is the startup banner: a title, a subtitle and parameters.
type Header struct {
	Title    string  // e.g., "wsduplex server"
	Subtitle string  // e.g., "v1.2.0 (commit: abc1234)"
	Params   []Param // e.g., {"Listen", "ws://0.0.0.0:8080/"}
	Width    int     // Terminal width for responsive rendering
}

// NewHeader creates a new header sized to the terminal
func NewHeader(title, subtitle string, params ...Param) *Header {
	return &Header{
		Title:    title,
		Subtitle: subtitle,
		Params:   params,
		Width:    GetTerminalWidth(),
	}
}

// SetWidth sets the terminal width for responsive rendering
func (h *Header) SetWidth(width int) *Header {
	h.Width = width
	return h
}

// Render returns the styled header as a string
func (h *Header) Render() string {
	width := h.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	titleLine := HeaderTitleStyle.Render(strings.ToUpper(h.Title))
	subtitleLine := HeaderCommandStyle.Render(h.Subtitle)
	topSection := lipgloss.JoinVertical(lipgloss.Left, titleLine, subtitleLine)

	content := topSection
	if len(h.Params) > 0 {
		keyWidth := 0
		for _, p := range h.Params {
			keyWidth = max(keyWidth, len(p.Key)+1)
		}

		paramLines := make([]string, 0, len(h.Params))
		for _, p := range h.Params {
			// Aligned colons: "  Key:    Value"
			key := HeaderParamKeyStyle.Render(p.Key + ":" + strings.Repeat(" ", keyWidth-len(p.Key)-1))
			paramLines = append(paramLines, key+" "+HeaderParamValueStyle.Render(p.Value))
		}

		divider := RenderHorizontalDivider(max(width-6, 10), "─")
		content = lipgloss.JoinVertical(lipgloss.Left, topSection, divider, strings.Join(paramLines, "\n"))
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(PrimaryColor).
		Width(width - 2). // Account for border characters
		Render(content)
}

// String implements fmt.Stringer
func (h *Header) String() string {
	return h.Render()
}
