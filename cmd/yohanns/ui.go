package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"golang.org/x/term"
)

var (
	accentColor = lipgloss.AdaptiveColor{Light: "#101F38", Dark: "#8BC34A"}
	mutedColor  = lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"}
	warnColor   = lipgloss.Color("#FFC107")
	errColor    = lipgloss.Color("#E53935")

	accentStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	warnStyle   = lipgloss.NewStyle().Foreground(warnColor)
	errStyle    = lipgloss.NewStyle().Foreground(errColor)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor).PaddingRight(2)
	cellStyle   = lipgloss.NewStyle().PaddingRight(2)
)

func accent(s string) string { return accentStyle.Render(s) }
func muted(s string) string  { return mutedStyle.Render(s) }
func warn(s string) string   { return warnStyle.Render(s) }
func failed(s string) string { return errStyle.Render(s) }

// isTerminal reports whether stdin and stdout are both attached to a TTY.
func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// renderTable lays out rows under headers in borderless columns.
func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(false).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render() + "\n"
}
