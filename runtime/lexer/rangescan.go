package lexer

import (
	"fmt"
	"strings"
)

// RangeText is the lexical breakdown of one range atom. Fields hold the raw
// text of each part; empty means omitted.
type RangeText struct {
	Handle    string
	Start     string // digits, "end" or "r<digits>"
	End       string
	Qualifier string // "odd" or "even"
	Rotation  string // compass word
	Excludes  []RangeText
}

var qualifierWords = []string{"even", "odd"}

var rotationWords = []string{"north", "south", "east", "west", "left", "right", "down"}

// ScanRange splits a range argument into atoms. An argument holds one or
// more atoms separated by commas; each atom may carry ~exclusions:
//
//	arg   := atom ("," atom)*
//	atom  := [HANDLE] [pages] [odd|even] [compass] ("~" excl)*
//	excl  := [pages] [odd|even]
//	pages := page ["-" page]
//	page  := digits | "end" | "r" digits
func ScanRange(raw string) ([]RangeText, error) {
	if raw == "" {
		return nil, fmt.Errorf("empty page range")
	}
	var atoms []RangeText
	for _, part := range strings.Split(raw, ",") {
		if part == "" {
			return nil, fmt.Errorf("empty range between commas in %q", raw)
		}
		atom, err := scanAtom(part)
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, atom)
	}
	return atoms, nil
}

type rangeScanner struct {
	s   string
	pos int
}

func (r *rangeScanner) rest() string { return r.s[r.pos:] }

func (r *rangeScanner) eat(prefix string) bool {
	if strings.HasPrefix(r.rest(), prefix) {
		r.pos += len(prefix)
		return true
	}
	return false
}

func (r *rangeScanner) eatAny(words []string) string {
	for _, w := range words {
		if r.eat(w) {
			return w
		}
	}
	return ""
}

func (r *rangeScanner) digits() string {
	start := r.pos
	for r.pos < len(r.s) && r.s[r.pos] >= '0' && r.s[r.pos] <= '9' {
		r.pos++
	}
	return r.s[start:r.pos]
}

// page scans digits, "end" or "r<digits>".
func (r *rangeScanner) page() (string, error) {
	if d := r.digits(); d != "" {
		return d, nil
	}
	if r.eat("end") {
		return "end", nil
	}
	if strings.HasPrefix(r.rest(), "r") && len(r.rest()) > 1 && isDigit(r.rest()[1]) {
		r.pos++
		return "r" + r.digits(), nil
	}
	return "", nil
}

func (r *rangeScanner) pages() (start, end string, err error) {
	start, err = r.page()
	if err != nil || start == "" {
		return start, "", err
	}
	if r.eat("-") {
		end, err = r.page()
		if err != nil {
			return "", "", err
		}
		if end == "" {
			return "", "", fmt.Errorf("missing page after '-' in %q", r.s)
		}
	}
	return start, end, nil
}

func scanAtom(s string) (RangeText, error) {
	r := &rangeScanner{s: s}
	var atom RangeText

	for r.pos < len(s) && s[r.pos] >= 'A' && s[r.pos] <= 'Z' {
		r.pos++
	}
	atom.Handle = s[:r.pos]

	var err error
	atom.Start, atom.End, err = r.pages()
	if err != nil {
		return RangeText{}, err
	}
	atom.Qualifier = r.eatAny(qualifierWords)
	atom.Rotation = r.eatAny(rotationWords)

	for r.eat("~") {
		var ex RangeText
		ex.Start, ex.End, err = r.pages()
		if err != nil {
			return RangeText{}, err
		}
		ex.Qualifier = r.eatAny(qualifierWords)
		if ex.Start == "" && ex.Qualifier == "" {
			return RangeText{}, fmt.Errorf("empty exclusion after '~' in %q", s)
		}
		atom.Excludes = append(atom.Excludes, ex)
	}

	if r.pos != len(s) {
		return RangeText{}, fmt.Errorf("unexpected %q in page range %q", r.rest(), s)
	}
	if atom.Handle == "" && atom.Start == "" && atom.Qualifier == "" && atom.Rotation == "" && len(atom.Excludes) == 0 {
		return RangeText{}, fmt.Errorf("empty page range %q", s)
	}
	return atom, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// looksLikeRange reports whether an argument that failed ScanRange was
// probably meant as one, so the lexer reports a SyntaxError instead of
// treating it as a file name.
func looksLikeRange(raw string) bool {
	if raw == "" {
		return false
	}
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if !(isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '~' || c == ',') {
			return false
		}
	}
	i := 0
	for i < len(raw) && raw[i] >= 'A' && raw[i] <= 'Z' {
		i++
	}
	if i == len(raw) {
		return false
	}
	c := raw[i]
	return isDigit(c) || c == '~' || c == '-' || c == ','
}
