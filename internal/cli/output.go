package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// ParseFormat validates a --output flag value
func ParseFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (use table, json or yaml)", s)
	}
}

// OutputFormatter handles formatted output
type OutputFormatter struct {
	writer  io.Writer
	format  OutputFormat
	noColor bool

	success *color.Color
	failure *color.Color
	warning *color.Color
	info    *color.Color
	header  *color.Color
	muted   *color.Color
}

// NewOutputFormatter creates a formatter writing to stdout
func NewOutputFormatter() *OutputFormatter {
	return NewOutputFormatterTo(os.Stdout)
}

// NewOutputFormatterTo creates a formatter writing to w
func NewOutputFormatterTo(w io.Writer) *OutputFormatter {
	return &OutputFormatter{
		writer:  w,
		format:  FormatTable,
		success: color.New(color.FgGreen),
		failure: color.New(color.FgRed),
		warning: color.New(color.FgYellow),
		info:    color.New(color.FgBlue),
		header:  color.New(color.Bold, color.FgCyan),
		muted:   color.New(color.FgHiBlack),
	}
}

// Writer returns the underlying writer
func (f *OutputFormatter) Writer() io.Writer {
	return f.writer
}

// SetFormat sets the output format
func (f *OutputFormatter) SetFormat(format OutputFormat) {
	f.format = format
}

// Format returns the output format
func (f *OutputFormatter) Format() OutputFormat {
	return f.format
}

// DisableColor disables colored output
func (f *OutputFormatter) DisableColor() {
	f.noColor = true
	for _, c := range []*color.Color{f.success, f.failure, f.warning, f.info, f.header, f.muted} {
		c.DisableColor()
	}
}

// Success prints a success message
func (f *OutputFormatter) Success(message string, args ...interface{}) {
	fmt.Fprintln(f.writer, f.success.Sprint("✓ "+fmt.Sprintf(message, args...)))
}

// Error prints an error message
func (f *OutputFormatter) Error(message string, args ...interface{}) {
	fmt.Fprintln(f.writer, f.failure.Sprint("✗ "+fmt.Sprintf(message, args...)))
}

// Warning prints a warning message
func (f *OutputFormatter) Warning(message string, args ...interface{}) {
	fmt.Fprintln(f.writer, f.warning.Sprint("⚠ "+fmt.Sprintf(message, args...)))
}

// Info prints an info message
func (f *OutputFormatter) Info(message string, args ...interface{}) {
	fmt.Fprintln(f.writer, f.info.Sprint("ℹ "+fmt.Sprintf(message, args...)))
}

// Muted prints a dimmed line, used for hints
func (f *OutputFormatter) Muted(message string, args ...interface{}) {
	fmt.Fprintln(f.writer, f.muted.Sprintf(message, args...))
}

// Header prints a header
func (f *OutputFormatter) Header(text string) {
	fmt.Fprintln(f.writer)
	fmt.Fprintln(f.writer, f.header.Sprint(strings.ToUpper(text)))
	fmt.Fprintln(f.writer, f.header.Sprint(strings.Repeat("=", len(text))))
}

// Table prints rows with a borderless table
func (f *OutputFormatter) Table(headers []string, rows [][]string) {
	table := tablewriter.NewWriter(f.writer)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator(" ")
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.AppendBulk(rows)
	table.Render()
}

// KeyValue prints aligned key/value pairs in the given order
func (f *OutputFormatter) KeyValue(keys []string, values map[string]string) {
	width := 0
	for _, k := range keys {
		if len(k) > width {
			width = len(k)
		}
	}
	for _, k := range keys {
		fmt.Fprintf(f.writer, "%-*s  %s\n", width+1, k+":", values[k])
	}
}

// Structured writes v as JSON or YAML. It reports false when the
// formatter is in table mode and the caller should render itself.
func (f *OutputFormatter) Structured(v interface{}) (bool, error) {
	switch f.format {
	case FormatJSON:
		enc := json.NewEncoder(f.writer)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(f.writer)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(v)
	default:
		return false, nil
	}
}
