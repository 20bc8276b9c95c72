// Package formatter provides human-readable formatting for plans.
// This includes the canonical command line and tree displays.
package formatter

import (
	"fmt"
	"strings"

	"github.com/aledsdavies/pdftl/core/plan"
)

// Format returns the plan as one canonical command line: explicit handles
// for every input, the operator, its operands, the output and the options.
// Passwords are shown as "***".
//
//	A=one.pdf B=two.pdf input_pw B=*** cat A1-3 B output out.pdf compress
func Format(p *plan.Plan) string {
	var parts []string
	var passwords []string
	for _, b := range p.Inputs {
		if b.Implicit {
			parts = append(parts, quote(b.Path))
		} else {
			parts = append(parts, string(b.Handle)+"="+quote(b.Path))
		}
		if b.Password != "" {
			if b.Implicit {
				passwords = append(passwords, "***")
			} else {
				passwords = append(passwords, string(b.Handle)+"=***")
			}
		}
	}
	if len(passwords) > 0 {
		parts = append(parts, "input_pw")
		parts = append(parts, passwords...)
	}

	if !p.Implicit {
		parts = append(parts, string(p.Operator))
	}
	for _, r := range p.Ranges {
		parts = append(parts, r.String())
	}
	if p.Move != nil {
		where := "after"
		if p.Move.Where == plan.PlaceBefore {
			where = "before"
		}
		parts = append(parts, p.Move.Source.String(), where, p.Move.Target.String())
	}
	for _, s := range p.Spins {
		parts = append(parts, s.String())
	}
	if p.JSON {
		parts = append(parts, "json")
	}
	if p.DataFile != "" {
		parts = append(parts, quote(p.DataFile))
	}
	if p.Attach != nil {
		for _, f := range p.Attach.Files {
			parts = append(parts, quote(f))
		}
		if p.Attach.Page > 0 {
			parts = append(parts, "to_page", fmt.Sprint(p.Attach.Page))
		}
		if p.Attach.Relation != "" {
			parts = append(parts, "relation", p.Attach.Relation)
		}
	}

	if p.Output.Set {
		parts = append(parts, "output", quote(p.Output.Path))
	}
	if opts := FormatOptions(p.Options); opts != "" {
		parts = append(parts, opts)
	}
	return strings.Join(parts, " ")
}

// quote wraps an argument in single quotes when a shell would split it.
func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`*?[]{}()<>|&;#~") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
