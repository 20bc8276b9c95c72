package dumpfmt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
)

func sampleCatalog() *engine.Catalog {
	return &engine.Catalog{
		PDFVersion: "1.7",
		Entries: []engine.CatalogEntry{
			{Key: "Lang", Value: "en-US", Kind: engine.CatalogText},
			{Key: "PageMode", Value: "UseOutlines", Kind: engine.CatalogName},
		},
		ViewerPreferences: []engine.CatalogEntry{
			{Key: "CenterWindow", Value: "true", Kind: engine.CatalogBool},
			{Key: "Direction", Value: "L2R", Kind: engine.CatalogName},
		},
		MarkInfo:   []engine.CatalogEntry{{Key: "Marked", Value: "false", Kind: engine.CatalogBool}},
		OpenAction: &engine.OpenAction{Page: 2, DestType: "XYZ", Args: []string{"0", "792", "null"}},
	}
}

func TestWriteCatalog(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCatalog(&buf, sampleCatalog(), false))

	want := lines(
		"CatalogBegin",
		"CatalogPdfVersion: 1.7",
		"CatalogEncrypted: No",
		"CatalogLang: en-US",
		"CatalogPageMode: UseOutlines",
		"CatalogViewerPreferencesCenterWindow: True",
		"CatalogViewerPreferencesDirection: L2R",
		"CatalogMarkInfoMarked: False",
		"CatalogOpenActionPage: 2",
		"CatalogOpenActionDestType: XYZ",
		"CatalogOpenActionArgs: 0 792 null",
	)
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCatalogJSON(t *testing.T) {
	c := sampleCatalog()
	c.Encrypted = true
	var buf bytes.Buffer
	require.NoError(t, WriteCatalog(&buf, c, true))

	want := `{
  "Lang": "en-US",
  "PageMode": "UseOutlines",
  "ViewerPreferences": {
    "CenterWindow": true,
    "Direction": "L2R"
  },
  "MarkInfo": {
    "Marked": false
  },
  "OpenAction": {
    "Page": 2,
    "DestType": "XYZ",
    "Args": "0 792 null"
  },
  "PdfVersion": "1.7",
  "Encrypted": "Yes"
}
`
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("json mismatch (-want +got):\n%s", diff)
	}
}

func TestCatalogRoundTrip(t *testing.T) {
	for _, asJSON := range []bool{false, true} {
		var buf bytes.Buffer
		require.NoError(t, WriteCatalog(&buf, sampleCatalog(), asJSON))

		u, err := ParseCatalog(&buf)
		require.NoError(t, err)
		assert.Empty(t, u.Ignored)

		want := sampleCatalog()
		want.PDFVersion = ""
		if diff := cmp.Diff(*want, u.Catalog); diff != "" {
			t.Errorf("json=%v: catalog mismatch (-want +got):\n%s", asJSON, diff)
		}
	}
}

func TestParseCatalog(t *testing.T) {
	u, err := ParseCatalog(strings.NewReader(lines(
		"\ufeffCatalogPageLayout: TwoPageLeft",
		"CatalogViewerPreferencesHideToolbar: yes",
		"CatalogViewerPreferencesFitWindow: FALSE",
		"CatalogPageLayout: SinglePage",
		"CatalogAcroForm: x",
		"InfoKey: Title",
		"",
		"CatalogOpenActionPage: 3",
	)))
	require.NoError(t, err)

	want := engine.Catalog{
		Entries: []engine.CatalogEntry{{Key: "PageLayout", Value: "SinglePage", Kind: engine.CatalogName}},
		ViewerPreferences: []engine.CatalogEntry{
			{Key: "HideToolbar", Value: "true", Kind: engine.CatalogBool},
			{Key: "FitWindow", Value: "false", Kind: engine.CatalogBool},
		},
		OpenAction: &engine.OpenAction{Page: 3, DestType: "XYZ"},
	}
	if diff := cmp.Diff(want, u.Catalog); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"CatalogAcroForm", "InfoKey"}, u.Ignored)
}

func TestParseCatalogErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{"not a key value line", "CatalogPageMode\n", "expected 'Key: Value'"},
		{"bad boolean", "CatalogNeedsRendering: maybe\n", "expected True or False"},
		{"empty name", "CatalogPageMode:\n", "empty value"},
		{"open action without page", "CatalogOpenActionDestType: Fit\n", "CatalogOpenActionPage is required"},
		{"open action bad arg", "CatalogOpenActionPage: 1\nCatalogOpenActionArgs: 0 top\n", `"top" is not a number`},
		{"broken json", "{\"PageMode\": \n", "not a JSON object"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindSyntax), "kind of %v", err)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestCheckCatalogPages(t *testing.T) {
	c := &engine.Catalog{OpenAction: &engine.OpenAction{Page: 4, DestType: "Fit"}}
	err := CheckCatalogPages(c, 3)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindRange))
	assert.NoError(t, CheckCatalogPages(c, 4))
	assert.NoError(t, CheckCatalogPages(&engine.Catalog{}, 1))
}
