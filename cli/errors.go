package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/aledsdavies/pdftl/core/errors"
)

// FormatError formats an error for CLI output with colors
func FormatError(w io.Writer, err error, useColor bool) {
	if err == nil {
		return
	}

	e, ok := errors.As(err)
	if !ok {
		// Unclassified failures are internal errors.
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), err.Error())
		return
	}
	formatClassified(w, e, useColor)
}

// formatClassified prints the diagnostic line, then the hint and any
// context the failing stage attached.
func formatClassified(w io.Writer, e *errors.Error, useColor bool) {
	_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Error: ", ColorRed, useColor), e.Error())

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_, _ = fmt.Fprintf(w, "%s\n", Colorize(fmt.Sprintf("  %s: %v", k, e.Context[k]), ColorGray, useColor))
		}
	}

	if e.Hint != "" {
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize("Hint: ", ColorYellow, useColor), e.Hint)
	}
}
