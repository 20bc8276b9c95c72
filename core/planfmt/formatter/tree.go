package formatter

import (
	"fmt"
	"io"
	"strings"

	"github.com/aledsdavies/pdftl/core/plan"
)

// ANSI color codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorCyan   = "\033[36m"
	ColorGray   = "\033[90m"
)

// Colorize wraps text in ANSI color codes if color is enabled
func Colorize(text, color string, useColor bool) string {
	if !useColor {
		return text
	}
	return color + text + ColorReset
}

// FormatTree renders a plan as a tree for --dry-run.
//
//	cat -> out.pdf
//	├─ A = one.pdf
//	├─ B = two.pdf
//	├─ pages: A1-3 B1-2
//	└─ options: encrypt_aes128 allow Printing
func FormatTree(w io.Writer, p *plan.Plan, useColor bool) {
	op := string(p.Operator)
	if p.Implicit {
		op += " (implicit)"
	}
	head := Colorize(op, ColorBlue, useColor)
	if p.Output.Set {
		head += " -> " + Colorize(p.Output.Path, ColorGreen, useColor)
	}
	_, _ = fmt.Fprintln(w, head)

	var lines []string
	for _, b := range p.Inputs {
		label := string(b.Handle)
		if b.Implicit {
			label = Colorize(label, ColorGray, useColor)
		}
		line := fmt.Sprintf("%s = %s", label, b.Path)
		if b.Password != "" {
			line += Colorize(" (password)", ColorGray, useColor)
		}
		lines = append(lines, line)
	}
	if len(p.Ranges) > 0 {
		parts := make([]string, len(p.Ranges))
		for i, r := range p.Ranges {
			parts[i] = r.String()
		}
		lines = append(lines, "pages: "+strings.Join(parts, " "))
	}
	if p.DataFile != "" {
		lines = append(lines, "data: "+p.DataFile)
	}
	if p.Attach != nil {
		line := "attach: " + strings.Join(p.Attach.Files, " ")
		if p.Attach.Page > 0 {
			line += fmt.Sprintf(" to_page %d", p.Attach.Page)
		}
		if p.Attach.Relation != "" {
			line += " relation " + p.Attach.Relation
		}
		lines = append(lines, line)
	}
	if p.Move != nil {
		where := "after"
		if p.Move.Where == plan.PlaceBefore {
			where = "before"
		}
		lines = append(lines, fmt.Sprintf("move: %s %s %s", p.Move.Source, where, p.Move.Target))
	}
	if len(p.Spins) > 0 {
		parts := make([]string, len(p.Spins))
		for i, s := range p.Spins {
			parts[i] = s.String()
		}
		lines = append(lines, "spin: "+strings.Join(parts, " "))
	}
	if p.JSON {
		lines = append(lines, "format: json")
	}
	if opts := FormatOptions(p.Options); opts != "" {
		lines = append(lines, "options: "+opts)
	}

	for i, line := range lines {
		branch := "├─ "
		if i == len(lines)-1 {
			branch = "└─ "
		}
		_, _ = fmt.Fprintf(w, "%s%s\n", Colorize(branch, ColorGray, useColor), line)
	}
}

// FormatOptions renders output options in command-line order. Passwords are
// shown as "***".
func FormatOptions(o plan.OutputOptions) string {
	var parts []string
	if o.OwnerPassword != "" {
		parts = append(parts, "owner_pw ***")
	}
	if o.UserPassword != "" {
		parts = append(parts, "user_pw ***")
	}
	if o.Encryption != plan.EncryptNone {
		parts = append(parts, o.Encryption.String())
	}
	if len(o.Permissions) > 0 {
		perms := make([]string, len(o.Permissions))
		for i, p := range o.Permissions {
			perms[i] = string(p)
		}
		parts = append(parts, "allow "+strings.Join(perms, " "))
	}
	flags := []struct {
		on   bool
		name string
	}{
		{o.Flatten, "flatten"},
		{o.NeedAppearances, "need_appearances"},
		{o.DropXFA, "drop_xfa"},
		{o.DropInfo, "drop_info"},
		{o.KeepID == plan.IDKeepFirst, "keep_first_id"},
		{o.KeepID == plan.IDKeepFinal, "keep_final_id"},
		{o.Compression == plan.CompressOn, "compress"},
		{o.Compression == plan.CompressOff, "uncompress"},
		{o.Linearize, "linearize"},
		{o.Verbose, "verbose"},
		{o.Ask == plan.AskNever, "dont_ask"},
		{o.Ask == plan.AskAlways, "do_ask"},
	}
	for _, f := range flags {
		if f.on {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, " ")
}
