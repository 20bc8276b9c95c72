// Package dumpfmt reads and writes pdftk's line-oriented report format.
//
// A report is a sequence of "Key: Value" lines. Records open with a
// *Begin line (InfoBegin, BookmarkBegin, PageMediaBegin, PageLabelBegin)
// and run until the next *Begin line or a key that belongs to no record.
// Field and annotation reports separate stanzas with "---".
package dumpfmt

import (
	"bufio"
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/aledsdavies/pdftl/core/engine"
)

// Encoding selects how text values are written and read.
type Encoding int

const (
	// Escaped writes non-ASCII and XML specials as character references.
	// dump_data and update_info use it.
	Escaped Encoding = iota
	// UTF8 writes text unchanged. The _utf8 operator variants use it.
	UTF8
)

func (e Encoding) encode(s string) string {
	if e == UTF8 {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '&':
			b.WriteString("&amp;")
		case r == '<':
			b.WriteString("&lt;")
		case r == '>':
			b.WriteString("&gt;")
		case r == '"':
			b.WriteString("&quot;")
		case r > 0x7e || (r < 0x20 && r != '\t'):
			fmt.Fprintf(&b, "&#%d;", r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (e Encoding) decode(s string) string {
	if e == UTF8 {
		return s
	}
	return html.UnescapeString(s)
}

// FormatNumber renders a PDF number the way pdftk does: integers without a
// fraction, everything else with the shortest exact representation.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatRect renders a rectangle as four space separated numbers.
func FormatRect(r engine.Rect) string {
	parts := make([]string, 4)
	for i, v := range r {
		parts[i] = FormatNumber(v)
	}
	return strings.Join(parts, " ")
}

// writer collects the first write error so callers check once.
type writer struct {
	w   *bufio.Writer
	err error
}

func newWriter(w io.Writer) *writer {
	return &writer{w: bufio.NewWriter(w)}
}

func (w *writer) line(format string, args ...any) {
	if w.err != nil {
		return
	}
	_, w.err = fmt.Fprintf(w.w, format+"\n", args...)
}

func (w *writer) flush() error {
	if w.err != nil {
		return w.err
	}
	return w.w.Flush()
}

// WriteData writes the dump_data report for md.
func WriteData(out io.Writer, md *engine.Metadata, enc Encoding) error {
	w := newWriter(out)

	for _, e := range md.Info {
		w.line("InfoBegin")
		w.line("InfoKey: %s", enc.encode(e.Key))
		w.line("InfoValue: %s", enc.encode(e.Value))
	}
	for i, id := range md.ID {
		if id != "" {
			w.line("PdfID%d: %s", i, id)
		}
	}
	w.line("NumberOfPages: %d", md.PageCount)

	for _, bm := range md.Bookmarks {
		w.line("BookmarkBegin")
		w.line("BookmarkTitle: %s", enc.encode(bm.Title))
		w.line("BookmarkLevel: %d", bm.Level)
		w.line("BookmarkPageNumber: %d", bm.Page)
	}

	for _, pm := range md.PageMedia {
		w.line("PageMediaBegin")
		w.line("PageMediaNumber: %d", pm.Number)
		w.line("PageMediaRotation: %d", pm.Rotation)
		w.line("PageMediaRect: %s", FormatRect(pm.Rect))
		w.line("PageMediaDimensions: %s %s", FormatNumber(pm.Rect.Width()), FormatNumber(pm.Rect.Height()))
		if pm.CropRect != nil {
			w.line("PageMediaCropRect: %s", FormatRect(*pm.CropRect))
		}
	}

	for _, pl := range md.PageLabels {
		w.line("PageLabelBegin")
		w.line("PageLabelNewIndex: %d", pl.NewIndex)
		w.line("PageLabelStart: %d", pl.Start)
		if pl.Prefix != "" {
			w.line("PageLabelPrefix: %s", enc.encode(pl.Prefix))
		}
		w.line("PageLabelNumStyle: %s", pl.Style)
	}

	return w.flush()
}

var justifications = []string{"Left", "Center", "Right"}

func justification(q int) string {
	if q < 0 || q >= len(justifications) {
		return "Left"
	}
	return justifications[q]
}

// WriteFields writes the dump_data_fields report, one stanza per field.
func WriteFields(out io.Writer, fields []engine.Field, enc Encoding) error {
	w := newWriter(out)
	for i, f := range fields {
		if i > 0 {
			w.line("---")
		}
		w.line("FieldType: %s", f.Type)
		w.line("FieldName: %s", enc.encode(f.Name))
		if f.AltName != "" {
			w.line("FieldNameAlt: %s", enc.encode(f.AltName))
		}
		w.line("FieldFlags: %d", f.Flags)

		switch {
		case len(f.Values) > 0:
			for _, v := range f.Values {
				w.line("FieldValue: %s", enc.encode(v))
			}
		case f.Value != "":
			w.line("FieldValue: %s", enc.encode(f.Value))
		}

		for j, opt := range f.StateOptions {
			w.line("FieldStateOption: %s", enc.encode(opt))
			if j < len(f.StateDisplays) && f.StateDisplays[j] != "" && f.StateDisplays[j] != opt {
				w.line("FieldStateOptionDisplay: %s", enc.encode(f.StateDisplays[j]))
			}
		}

		if f.Type == engine.FieldText || f.Type == engine.FieldButton || f.Justification != 0 {
			w.line("FieldJustification: %s", justification(f.Justification))
		}
		if f.MaxLength > 0 {
			w.line("FieldMaxLength: %d", f.MaxLength)
		}
	}
	return w.flush()
}

// WriteAnnots writes the dump_data_annots report. Only link annotations
// with URI actions are reported.
func WriteAnnots(out io.Writer, a *engine.Annotations) error {
	w := newWriter(out)
	if a.URIBase != "" {
		w.line("PdfUriBase: %s", Escaped.encode(a.URIBase))
	}
	w.line("NumberOfPages: %d", a.PageCount)
	for _, l := range a.Links {
		w.line("---")
		w.line("AnnotSubtype: Link")
		w.line("AnnotRect: %s", FormatRect(l.Rect))
		w.line("AnnotPageNumber: %d", l.Page)
		w.line("AnnotActionSubtype: %s", l.ActionSubtype)
		w.line("AnnotActionURI: %s", Escaped.encode(l.URI))
	}
	return w.flush()
}
