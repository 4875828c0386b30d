// Package output prints results and status lines for the bb-inflator CLI.
package output

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/fatih/color"
)

// Printer writes results to out and status lines to err.
type Printer struct {
	out       io.Writer
	err       io.Writer
	useColors bool
}

// NewPrinter returns a printer on stdout and stderr. Colors follow the
// terminal: off when stdout is not a TTY or NO_COLOR is set.
func NewPrinter() *Printer {
	return &Printer{out: os.Stdout, err: os.Stderr, useColors: !color.NoColor}
}

// NewPrinterTo returns a printer on the given writers.
func NewPrinterTo(out, err io.Writer, useColors bool) *Printer {
	return &Printer{out: out, err: err, useColors: useColors}
}

func (p *Printer) Out() io.Writer { return p.out }

// Status prints a progress line.
func (p *Printer) Status(format string, args ...interface{}) {
	p.line(color.FgGreen, false, format, args...)
}

// Heading prints a section title such as a secret name.
func (p *Printer) Heading(format string, args ...interface{}) {
	p.line(color.FgGreen, true, format, args...)
}

// Failure prints an error line.
func (p *Printer) Failure(format string, args ...interface{}) {
	p.line(color.FgRed, false, format, args...)
}

func (p *Printer) line(fg color.Attribute, bold bool, format string, args ...interface{}) {
	if !p.useColors {
		fmt.Fprintf(p.err, format+"\n", args...)
		return
	}
	c := color.New(fg)
	if bold {
		c.Add(color.Bold)
	}
	c.EnableColor()
	c.Fprintf(p.err, format+"\n", args...)
}

// YAML prints a YAML document, highlighted with the monokai theme when
// colors are on.
func (p *Printer) YAML(text string) error {
	if !p.useColors {
		_, err := io.WriteString(p.out, text)
		return err
	}
	if err := quick.Highlight(p.out, text, "yaml", "terminal256", "monokai"); err != nil {
		return fmt.Errorf("failed to highlight output: %w", err)
	}
	return nil
}

// Text prints raw output such as rendered manifests.
func (p *Printer) Text(text string) error {
	_, err := io.WriteString(p.out, text)
	return err
}
