// Package pdftext converts between Go strings and PDF text strings and
// names (ISO 32000-1, 7.3.4, 7.3.5 and 7.9.2).
package pdftext

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Decode decodes the bytes of a text string: UTF-16BE with a byte order
// mark, UTF-8 with one, or PDFDocEncoding, which agrees with Latin-1 for
// every character a form value or info entry normally holds.
func Decode(b []byte) string {
	switch {
	case bytes.HasPrefix(b, []byte{0xfe, 0xff}):
		s, err := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder().Bytes(b)
		if err == nil {
			return string(s)
		}
	case bytes.HasPrefix(b, []byte{0xef, 0xbb, 0xbf}):
		return string(b[3:])
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(s)
}

// IsPlain reports whether s is printable ASCII and can be written as a
// literal string without re-encoding.
func IsPlain(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

var escaper = strings.NewReplacer(`\`, `\\`, `(`, `\(`, `)`, `\)`)

// Escape escapes the delimiters of a literal string body.
func Escape(s string) string {
	return escaper.Replace(s)
}

// UTF16 encodes s as UTF-16BE with a byte order mark. Invalid UTF-8 is
// returned unchanged.
func UTF16(s string) []byte {
	b, err := unicode.UTF16(unicode.BigEndian, unicode.UseBOM).NewEncoder().Bytes([]byte(s))
	if err != nil {
		return []byte(s)
	}
	return b
}

// Encode writes s as PDF syntax: a literal string when it is printable
// ASCII, otherwise an uppercase UTF-16BE hex string with a byte order mark.
func Encode(s string) string {
	if IsPlain(s) {
		return "(" + Escape(s) + ")"
	}
	return "<" + strings.ToUpper(hex.EncodeToString(UTF16(s))) + ">"
}

// EncodeName writes s as a name object, escaping delimiters and bytes
// outside the printable range.
func EncodeName(s string) string {
	var b strings.Builder
	b.WriteByte('/')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x21 || c > 0x7e || strings.IndexByte("#()<>[]{}/%", c) >= 0 {
			fmt.Fprintf(&b, "#%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// DecodeName expands #xx escapes left in a name.
func DecodeName(b []byte) string {
	if bytes.IndexByte(b, '#') < 0 {
		return string(b)
	}
	var out []byte
	for i := 0; i < len(b); i++ {
		if b[i] == '#' && i+2 < len(b) {
			if v, err := hex.DecodeString(string(b[i+1 : i+3])); err == nil {
				out = append(out, v[0])
				i += 2
				continue
			}
		}
		out = append(out, b[i])
	}
	return string(out)
}

// Unescape decodes the body of a literal string as it appears between the
// parentheses.
func Unescape(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			out = append(out, c)
			continue
		}
		i++
		switch c = s[i]; c {
		case 'n':
			out = append(out, '\n')
		case 'r':
			out = append(out, '\r')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case 'f':
			out = append(out, '\f')
		case '\r':
			// Line continuation, optionally CR LF.
			if i+1 < len(s) && s[i+1] == '\n' {
				i++
			}
		case '\n':
		case '0', '1', '2', '3', '4', '5', '6', '7':
			v := int(c - '0')
			for n := 1; n < 3 && i+1 < len(s) && s[i+1] >= '0' && s[i+1] <= '7'; n++ {
				i++
				v = v*8 + int(s[i]-'0')
			}
			out = append(out, byte(v))
		default:
			// \( \) \\ and unknown escapes keep the character.
			out = append(out, c)
		}
	}
	return out
}
