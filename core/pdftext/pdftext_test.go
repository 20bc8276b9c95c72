package pdftext

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"utf-16 with bom", []byte{0xfe, 0xff, 0x00, 0xe9}, "é"},
		{"pdfdocencoding", []byte{0xe9}, "é"},
		{"utf-8 with bom", []byte{0xef, 0xbb, 0xbf, 0xc3, 0xa9}, "é"},
		{"ascii", []byte("plain"), "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Decode(tt.in))
		})
	}
}

func TestEncode(t *testing.T) {
	assert.Equal(t, `(a \(b\) \\c)`, Encode(`a (b) \c`))
	assert.Equal(t, "<FEFF00E9>", Encode("é"))
	assert.Equal(t, "<FEFF0061000A>", Encode("a\n"))
}

func TestNames(t *testing.T) {
	assert.Equal(t, "/a#20b#2F", EncodeName("a b/"))
	assert.Equal(t, "a b/", DecodeName([]byte("a#20b#2F")))
	assert.Equal(t, "a#zz", DecodeName([]byte("a#zz")))
}

func TestUnescape(t *testing.T) {
	tests := map[string]string{
		`a\(b\)`:   "a(b)",
		`\\`:       `\`,
		`x\ny`:     "x\ny",
		`\101\60B`: "A0B",
		"wrap\\\nped": "wrapped",
		`\q`:       "q",
	}
	for in, want := range tests {
		assert.Equal(t, want, string(Unescape(in)), in)
	}
}
