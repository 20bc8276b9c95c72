package argfile

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/pdftl/core/errors"
)

func files(m map[string]string) Reader {
	return func(path string) ([]byte, error) {
		data, ok := m[path]
		if !ok {
			return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
		}
		return []byte(data), nil
	}
}

func TestIsArgFile(t *testing.T) {
	for arg, want := range map[string]bool{
		"@job.yaml":  true,
		"@job.YML":   true,
		"@job.json":  true,
		"@":          false,
		"@notes.txt": false,
		"job.yaml":   false,
		"A=@x.pdf":   false,
	} {
		assert.Equal(t, want, IsArgFile(arg), arg)
	}
}

func TestExpand(t *testing.T) {
	read := files(map[string]string{
		"list.json": `["A=a.pdf", "cat", "A1-2"]`,
		"job.yaml": `
inputs:
  B: b.pdf
  A: a.pdf
passwords:
  A: secret
operation: cat
args: [B1, A2-end]
output: out.pdf
options: [compress, owner_pw, x]
`,
		"plain.yml": `
inputs: [one.pdf, two.pdf]
operation: shuffle
output: "-"
`,
	})

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "list form spliced in place",
			args: []string{"@list.json", "output", "o.pdf"},
			want: []string{"A=a.pdf", "cat", "A1-2", "output", "o.pdf"},
		},
		{
			name: "object form keeps input order",
			args: []string{"@job.yaml"},
			want: []string{
				"B=b.pdf", "A=a.pdf", "input_pw", "A=secret", "cat", "B1", "A2-end",
				"output", "out.pdf", "compress", "owner_pw", "x",
			},
		},
		{
			name: "unlabelled inputs",
			args: []string{"--", "@plain.yml"},
			want: []string{"--", "one.pdf", "two.pdf", "shuffle", "output", "-"},
		},
		{
			name: "other arguments untouched",
			args: []string{"a.pdf", "@notes.txt", "cat"},
			want: []string{"a.pdf", "@notes.txt", "cat"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Expand(tt.args, read, Options{})
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExpandErrors(t *testing.T) {
	read := files(map[string]string{
		"bad.yaml":      "inputs: [",
		"shape.yaml":    "operation: cat\n",
		"label.yaml":    "inputs: {a: x.pdf}\n",
		"extra.yaml":    "inputs: [x.pdf]\nextra: 1\n",
		"pw.yaml":       "inputs: {A: a.pdf}\npasswords: {B: x}\n",
		"newer.yaml":    "requires: v9.0.0\ninputs: [x.pdf]\n",
		"badsemver.yml": "requires: banana\ninputs: [x.pdf]\n",
		"numbers.json":  "[1, 2]",
		"numreq.yaml":   "requires: 1.2\ninputs: [x.pdf]\n",
	})

	tests := []struct {
		name string
		arg  string
		kind errors.Kind
		msg  string
	}{
		{"missing file", "@nope.yaml", errors.KindIO, "reading argument file nope.yaml"},
		{"invalid yaml", "@bad.yaml", errors.KindGrammar, "not valid YAML"},
		{"missing inputs", "@shape.yaml", errors.KindGrammar, "does not match"},
		{"lowercase label", "@label.yaml", errors.KindGrammar, "does not match"},
		{"unknown key", "@extra.yaml", errors.KindGrammar, "does not match"},
		{"password for unknown input", "@pw.yaml", errors.KindGrammar, "password for B"},
		{"newer version required", "@newer.yaml", errors.KindGrammar, "requires pdftl v9.0.0"},
		{"requires is not semver", "@badsemver.yml", errors.KindGrammar, "does not match"},
		{"list of numbers", "@numbers.json", errors.KindGrammar, "does not match"},
		{"numeric requires", "@numreq.yaml", errors.KindGrammar, "does not match"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Expand([]string{"x.pdf", tt.arg}, read, Options{Version: "v1.0.0"})
			require.Error(t, err)
			e, ok := errors.As(err)
			require.True(t, ok, "unclassified error %v", err)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Equal(t, 2, e.Position, "position names the @file argument")
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestRequiresSatisfied(t *testing.T) {
	read := files(map[string]string{"job.yaml": "requires: \"1.2\"\ninputs: [x.pdf]\n"})
	for _, version := range []string{"v1.2.0", "1.3.1", "dev"} {
		t.Run(fmt.Sprintf("version %s", version), func(t *testing.T) {
			got, err := Expand([]string{"@job.yaml"}, read, Options{Version: version})
			require.NoError(t, err)
			assert.Equal(t, []string{"x.pdf"}, got)
		})
	}
}
