// Package output renders command results as aligned text, JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// Printer writes results to out and diagnostics to errOut.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	format string
	yellow func(a ...any) string
	red    func(a ...any) string
}

// New creates a Printer for one of "text", "json" or "yaml".
func New(out, errOut io.Writer, format string) *Printer {
	return &Printer{
		out:    out,
		errOut: errOut,
		format: format,
		yellow: color.New(color.FgYellow).SprintFunc(),
		red:    color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

// Structured reports whether results are machine readable.
func (p *Printer) Structured() bool {
	return p.format == "json" || p.format == "yaml"
}

// Table prints rows under headers as text, or v when the format is
// structured.
func (p *Printer) Table(headers []string, rows [][]string, v any) error {
	if p.Structured() {
		return p.Value(v)
	}
	tw := tabwriter.NewWriter(p.out, 0, 0, 2, ' ', 0)
	if len(headers) > 0 {
		_, _ = fmt.Fprintln(tw, strings.Join(headers, "\t"))
	}
	for _, row := range rows {
		_, _ = fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Line prints text, or v when the format is structured.
func (p *Printer) Line(text string, v any) error {
	if p.Structured() {
		return p.Value(v)
	}
	_, err := fmt.Fprintln(p.out, text)
	return err
}

// Value encodes v in the structured format, defaulting to JSON.
func (p *Printer) Value(v any) error {
	if p.format == "yaml" {
		enc := yaml.NewEncoder(p.out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(p.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// DryRun marks an action that was not performed.
func (p *Printer) DryRun(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, "%s %s\n", p.yellow("[dry-run]"), fmt.Sprintf(format, args...))
}

// Error prints err behind its kind prefix.
func (p *Printer) Error(kind string, err error) {
	_, _ = fmt.Fprintf(p.errOut, "%s %v\n", p.red(kind+":"), err)
}
