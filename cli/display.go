package main

import (
	"fmt"
	"io"

	"github.com/aledsdavies/pdftl/core/plan"
	"github.com/aledsdavies/pdftl/core/planfmt"
	"github.com/aledsdavies/pdftl/core/planfmt/formatter"
)

// DisplayPlan renders a plan as a tree structure
func DisplayPlan(w io.Writer, p *plan.Plan, useColor bool) {
	formatter.FormatTree(w, p, useColor)
}

// DisplayDryRun writes what --dry-run shows. The text format is the
// canonical command line, the tree and the digest; the cbor format is the
// canonical encoding itself.
func DisplayDryRun(w io.Writer, p *plan.Plan, format string, useColor bool) error {
	cp := planfmt.Canonicalize(p)
	if format == "cbor" {
		data, err := cp.MarshalBinary()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	}

	digest, err := planfmt.DigestString(p)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "%s %s\n", Colorize("pdftl", ColorCyan, useColor), formatter.Format(p))
	DisplayPlan(w, p, useColor)
	_, _ = fmt.Fprintf(w, "%s %s\n", Colorize("digest:", ColorGray, useColor), digest)
	return nil
}
