package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/haivivi/pcmlink/pkg/uplink"
)

// OutputFormat selects how Output renders a value.
type OutputFormat string

const (
	// FormatYAML is the default.
	FormatYAML OutputFormat = "yaml"
	// FormatJSON writes indented JSON.
	FormatJSON OutputFormat = "json"
	// FormatJSONL writes one compact JSON document per line, for event streams.
	FormatJSONL OutputFormat = "jsonl"
	// FormatTable uses the value's Table rendering, falling back to YAML.
	FormatTable OutputFormat = "table"
)

// Table is implemented by values with a styled terminal rendering.
type Table interface {
	RenderTable(Styles) string
}

// Sessions is a list of session records that renders as a history table.
type Sessions []uplink.SessionRecord

// RenderTable implements Table.
func (s Sessions) RenderTable(st Styles) string {
	return st.HistoryTable(s)
}

// OutputOptions configures Output.
type OutputOptions struct {
	Format OutputFormat

	// File is the output file path (empty for stdout)
	File string

	// Writer overrides File when set.
	Writer io.Writer

	// Styles is used by FormatTable. Zero means NewStyles(DefaultTheme).
	Styles *Styles
}

// Output renders result to the configured destination.
func Output(result any, opts OutputOptions) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
		if opts.File != "" {
			f, err := os.Create(opts.File)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			w = f
		}
	}

	switch opts.Format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case FormatJSONL:
		return json.NewEncoder(w).Encode(result)
	case FormatTable:
		if t, ok := result.(Table); ok {
			st := NewStyles(DefaultTheme)
			if opts.Styles != nil {
				st = *opts.Styles
			}
			_, err := fmt.Fprintln(w, t.RenderTable(st))
			return err
		}
		return writeYAML(w, result)
	case FormatYAML, "":
		return writeYAML(w, result)
	default:
		return fmt.Errorf("unsupported output format: %s", opts.Format)
	}
}

func writeYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = w.Write(data)
	return err
}

var notices = NewStyles(DefaultTheme)

// PrintSuccess prints a success message with checkmark
func PrintSuccess(format string, args ...any) {
	fmt.Println(notices.Title.Render("✓") + " " + fmt.Sprintf(format, args...))
}

// PrintError prints an error message to stderr
func PrintError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, notices.Error.Render("Error:")+" "+fmt.Sprintf(format, args...))
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...any) {
	fmt.Println(notices.Help.Render("ℹ") + " " + fmt.Sprintf(format, args...))
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...any) {
	fmt.Println(notices.Warn.Render("⚠") + " " + fmt.Sprintf(format, args...))
}
