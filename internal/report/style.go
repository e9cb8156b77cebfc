// Package report renders run results and single responses for the terminal
// or as JSON.
package report

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

type Options struct {
	NoColor bool
	// NameWidth and URLWidth are display cells; longer values are truncated.
	NameWidth int
	URLWidth  int
	// Bodies prints each step's response payload under its row.
	Bodies bool
}

func (o Options) withDefaults() Options {
	if o.NameWidth <= 0 {
		o.NameWidth = 28
	}
	if o.URLWidth <= 0 {
		o.URLWidth = 60
	}
	return o
}

type palette struct {
	pass   lipgloss.Style
	fail   lipgloss.Style
	muted  lipgloss.Style
	header lipgloss.Style
	hunk   lipgloss.Style
	meta   lipgloss.Style
}

func newPalette(w io.Writer, noColor bool) palette {
	if noColor {
		return palette{}
	}
	r := lipgloss.NewRenderer(w)
	return palette{
		pass:   r.NewStyle().Foreground(lipgloss.Color("#44C25B")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("#F25F5C")),
		muted:  r.NewStyle().Foreground(lipgloss.Color("#A6A1BB")),
		header: r.NewStyle().Bold(true),
		hunk:   r.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true),
		meta:   r.NewStyle().Foreground(lipgloss.Color("#A6A1BB")).Italic(true),
	}
}
