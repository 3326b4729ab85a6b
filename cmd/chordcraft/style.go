package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/chordcraft-go/internal/dsl"
)

type Styles struct {
	Error    lipgloss.Style
	Warning  lipgloss.Style
	Location lipgloss.Style
	Label    lipgloss.Style
	Dim      lipgloss.Style
}

var styles = Styles{
	Error:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#ef4444")),
	Warning:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#f59e0b")),
	Location: lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
	Label:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3b82f6")),
	Dim:      lipgloss.NewStyle().Foreground(lipgloss.Color("#6e7681")),
}

func printDiagnostics(w io.Writer, name string, diags []dsl.Diagnostic) {
	for _, d := range diags {
		sev := styles.Warning.Render(d.Severity.String())
		if d.Severity == dsl.SeverityError {
			sev = styles.Error.Render(d.Severity.String())
		}
		loc := styles.Location.Render(fmt.Sprintf("%s:%d:%d:", name, d.Line, d.Col))
		fmt.Fprintf(w, "%s %s: %s\n", loc, sev, d.Message)
	}
}
