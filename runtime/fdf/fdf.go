// Package fdf reads the field data fill_form accepts and writes the FDF
// generate_fdf produces.
//
// Two input formats are recognised by their first bytes: FDF (a small PDF
// object file starting with %FDF) and XFDF (its XML sibling). Both yield
// the same flat list of fully qualified field names and values.
package fdf

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/pdftext"
)

// Parse detects the format of data and returns the field values it holds,
// in file order.
func Parse(data []byte) ([]engine.FieldValue, error) {
	head := bytes.TrimLeft(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), " \t\r\n")
	switch {
	case bytes.HasPrefix(head, []byte("%FDF")):
		return ParseFDF(data)
	case bytes.HasPrefix(head, []byte("<?xml")), bytes.HasPrefix(head, []byte("<xfdf")):
		return ParseXFDF(data)
	}
	return nil, errors.Syntax("form data is neither FDF nor XFDF").
		WithHint("FDF files start with %%FDF, XFDF files with <?xml or <xfdf")
}

// Write emits an FDF file holding every field's current value. Names are
// written fully qualified, one flat entry per field.
func Write(out io.Writer, fields []engine.Field) error {
	w := bufio.NewWriter(out)
	// The binary comment marks the file as 8-bit.
	_, _ = w.WriteString("%FDF-1.2\n%\xe2\xe3\xcf\xd3\n")
	_, _ = w.WriteString("1 0 obj\n<<\n/FDF\n<<\n/Fields [\n")
	for _, f := range fields {
		fmt.Fprintf(w, "<<\n/T %s\n/V %s\n>>\n", pdftext.Encode(f.Name), encodeValue(f))
	}
	_, _ = w.WriteString("]\n>>\n>>\nendobj\ntrailer\n\n<<\n/Root 1 0 R\n>>\n%%EOF\n")
	return w.Flush()
}

func encodeValue(f engine.Field) string {
	switch {
	case len(f.Values) > 1:
		parts := make([]string, len(f.Values))
		for i, v := range f.Values {
			parts[i] = pdftext.Encode(v)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case f.Type == engine.FieldButton:
		if f.Value == "" {
			return "/Off"
		}
		return pdftext.EncodeName(f.Value)
	default:
		return pdftext.Encode(f.Value)
	}
}
