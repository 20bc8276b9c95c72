package fdf

import (
	"bytes"
	"encoding/xml"
	"io"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
)

type xfdfField struct {
	Name   string      `xml:"name,attr"`
	Values []xfdfValue `xml:"value"`
	Fields []xfdfField `xml:"field"`
}

type xfdfValue struct {
	Text string `xml:",chardata"`
}

type xfdfDoc struct {
	XMLName xml.Name    `xml:"xfdf"`
	Fields  []xfdfField `xml:"fields>field"`
}

// ParseXFDF reads an XFDF document. Nested <field> elements join their
// names with dots.
func ParseXFDF(data []byte) ([]engine.FieldValue, error) {
	var doc xfdfDoc
	dec := xml.NewDecoder(bytes.NewReader(data))
	// XFDF is UTF-8 in practice; accept other declared charsets as-is.
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(errors.KindSyntax, err, "malformed XFDF")
	}
	var out []engine.FieldValue
	flattenXFDF(doc.Fields, "", &out)
	return out, nil
}

func flattenXFDF(fields []xfdfField, parent string, out *[]engine.FieldValue) {
	for _, f := range fields {
		full := f.Name
		if parent != "" {
			full = parent + "." + f.Name
		}
		if len(f.Values) > 0 {
			fv := engine.FieldValue{Name: full, Value: f.Values[0].Text}
			if len(f.Values) > 1 {
				for _, v := range f.Values {
					fv.Values = append(fv.Values, v.Text)
				}
			}
			*out = append(*out, fv)
		}
		flattenXFDF(f.Fields, full, out)
	}
}
