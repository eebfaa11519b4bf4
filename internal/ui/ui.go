// Package ui renders terminal output for the vitals commands. Styled
// output is used on a real terminal; piped output degrades to plain
// text so scripts can parse it.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// styled reports whether stdout wants colored output.
func styled() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.ColorProfile() != termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if !styled() {
		return s
	}
	return style.Render(s)
}

// Title renders a section heading.
func Title(s string) string { return render(titleStyle, s) }

// OK renders a success marker.
func OK(s string) string { return render(okStyle, s) }

// Warn renders a warning.
func Warn(s string) string { return render(warnStyle, s) }

// Fail renders a failure.
func Fail(s string) string { return render(failStyle, s) }

// Dim renders secondary detail.
func Dim(s string) string { return render(dimStyle, s) }

const (
	barFilled = "▰"
	barEmpty  = "▱"
)

// ProgressBar renders a fixed-width goal bar. ratio is clamped to
// [0, 1]; width is the number of cells.
func ProgressBar(ratio float64, width int) string {
	if width <= 0 {
		width = 10
	}
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}

	filled := int(ratio*float64(width) + 0.5)
	bar := strings.Repeat(barFilled, filled) + strings.Repeat(barEmpty, width-filled)
	if !styled() {
		return bar
	}
	if ratio >= 1 {
		return okStyle.Render(bar)
	}
	return bar
}

// BarChart renders labeled horizontal bars scaled to the largest value.
// Used by the trend and patterns commands.
func BarChart(labels []string, values []float64, width int, format func(float64) string) string {
	if width <= 0 {
		width = 30
	}

	var max float64
	for _, v := range values {
		if v > max {
			max = v
		}
	}

	labelWidth := 0
	for _, l := range labels {
		if len(l) > labelWidth {
			labelWidth = len(l)
		}
	}

	var b strings.Builder
	for i, v := range values {
		cells := 0
		if max > 0 && v > 0 {
			cells = int(v/max*float64(width) + 0.5)
		}
		fmt.Fprintf(&b, "%-*s %s%s %s\n",
			labelWidth, labels[i],
			strings.Repeat("█", cells),
			strings.Repeat(" ", width-cells),
			Dim(format(v)))
	}
	return b.String()
}

// Percent formats a goal ratio as a percentage string.
func Percent(ratio float64) string {
	return fmt.Sprintf("%.0f%%", ratio*100)
}
