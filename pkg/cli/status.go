package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/haivivi/pcmlink/pkg/uplink"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color
	Warn    lipgloss.Color
	Error   lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is the default bright green theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Warn:    lipgloss.Color("#ffb300"),
	Error:   lipgloss.Color("#ff5f5f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds all styles derived from a theme.
type Styles struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
	Warn   lipgloss.Style
	Error  lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Label:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Border: lipgloss.NewStyle().Foreground(t.Primary),
		Help:   lipgloss.NewStyle().Foreground(t.Dim),
		Warn:   lipgloss.NewStyle().Foreground(t.Warn),
		Error:  lipgloss.NewStyle().Foreground(t.Error),
	}
}

// stateStyle picks the style for a session state.
func (s Styles) stateStyle(st uplink.SessionState) lipgloss.Style {
	switch st {
	case uplink.Connected:
		return s.Title
	case uplink.Connecting:
		return s.Warn.Bold(true)
	default:
		return s.Help.Bold(true)
	}
}

// StatusLine renders a telemetry event as one terminal line.
func (s Styles) StatusLine(t uplink.Telemetry) string {
	var b strings.Builder
	b.WriteString(s.stateStyle(t.Status).Render(fmt.Sprintf("%-12s", strings.ToUpper(t.Status.String()))))
	if t.Endpoint != "" {
		b.WriteString(" " + t.Endpoint)
	}
	if t.Kbps > 0 {
		b.WriteString(" " + s.Label.Render(FormatKbps(t.Kbps)))
	}
	fmt.Fprintf(&b, " %s %s", s.Help.Render("gain"), fmt.Sprintf("%.2f", t.Gain))
	if t.Muted {
		b.WriteString(" " + s.Warn.Render("MUTED"))
	}
	if t.Attempts > 0 {
		fmt.Fprintf(&b, " %s %d", s.Help.Render("retries"), t.Attempts)
	}
	if t.SessionTxBytes > 0 {
		fmt.Fprintf(&b, " %s %s", s.Help.Render("sent"), FormatBytes(t.SessionTxBytes))
	}
	if t.Error != "" {
		b.WriteString(" " + s.Error.Render(t.Error))
	}
	return b.String()
}

// Panel renders a bordered box with a title and label/value rows.
type Panel struct {
	Styles Styles
	Title  string
	Rows   [][2]string
}

// Render renders the panel to a string.
func (p Panel) Render() string {
	labelWidth := 0
	for _, r := range p.Rows {
		labelWidth = max(labelWidth, lipgloss.Width(r[0]))
	}
	lines := make([]string, 0, len(p.Rows))
	for _, r := range p.Rows {
		label := p.Styles.Label.Render(r[0] + strings.Repeat(" ", labelWidth-lipgloss.Width(r[0])))
		lines = append(lines, label+"  "+r[1])
	}
	body := strings.Join(lines, "\n")
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(p.Styles.Border.GetForeground()).
		Padding(0, 1)
	return p.Styles.Title.Render(p.Title) + "\n" + box.Render(body)
}

// HistoryTable renders session records one per line, newest first.
func (s Styles) HistoryTable(recs []uplink.SessionRecord) string {
	if len(recs) == 0 {
		return s.Help.Render("no sessions recorded")
	}
	header := fmt.Sprintf("%-19s  %-22s  %9s  %9s  %8s  %10s", "STARTED", "ENDPOINT", "DURATION", "CONNECTED", "RETRIES", "SENT")
	lines := []string{s.Label.Render(header)}
	for _, r := range recs {
		line := fmt.Sprintf("%-19s  %-22s  %9s  %9s  %8d  %10s",
			r.StartedAt.Local().Format(time.DateTime),
			r.Endpoint,
			FormatDuration(r.EndedAt.Sub(r.StartedAt)),
			FormatDuration(r.ConnectedFor),
			r.Attempts,
			FormatBytes(r.TxBytes),
		)
		if r.Error != "" {
			line += "  " + s.Error.Render(r.Error)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
