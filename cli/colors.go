package main

import (
	"os"

	"golang.org/x/term"

	"github.com/aledsdavies/pdftl/core/planfmt/formatter"
)

// Colors used on stderr: errors red, warnings and hints yellow, context gray.
// The plan tree uses the formatter's own palette.
const (
	ColorReset  = formatter.ColorReset
	ColorRed    = formatter.ColorRed
	ColorYellow = formatter.ColorYellow
	ColorBlue   = formatter.ColorBlue
	ColorCyan   = formatter.ColorCyan
	ColorGray   = formatter.ColorGray
)

func Colorize(text, color string, useColor bool) string {
	return formatter.Colorize(text, color, useColor)
}

// ShouldUseColor reports whether diagnostics on stderr get ANSI colors.
// --no-color and a non-empty NO_COLOR both turn them off.
func ShouldUseColor(noColorFlag bool) bool {
	if noColorFlag || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}
