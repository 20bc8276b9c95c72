package parser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/plan"
)

var ignorePositions = cmp.Options{
	cmpopts.IgnoreFields(plan.RangeAtom{}, "Raw", "Position"),
	cmpopts.IgnoreFields(plan.Binding{}, "Position"),
	cmpopts.IgnoreFields(plan.Output{}, "Position"),
}

func abs(n int) plan.PageRef { return plan.PageRef{Kind: plan.PageAbsolute, N: n} }

func parse(t *testing.T, args ...string) *plan.Plan {
	t.Helper()
	p, err := ParseArgs(args)
	require.NoError(t, err)
	return p
}

func TestParseCatWithHandles(t *testing.T) {
	got := parse(t, "A=doc1.pdf", "B=doc2.pdf", "cat", "A1-3", "B1-2", "output", "out.pdf")

	want := &plan.Plan{
		Inputs: []plan.Binding{
			{Handle: "A", Path: "doc1.pdf"},
			{Handle: "B", Path: "doc2.pdf"},
		},
		Operator: plan.OpCat,
		Ranges: []plan.RangeExpr{
			{Atoms: []plan.RangeAtom{{Handle: "A", Start: abs(1), End: abs(3)}}},
			{Atoms: []plan.RangeAtom{{Handle: "B", Start: abs(1), End: abs(2)}}},
		},
		Output: plan.Output{Path: "out.pdf", Set: true},
	}
	if diff := cmp.Diff(want, got, ignorePositions); diff != "" {
		t.Errorf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRangeForms(t *testing.T) {
	got := parse(t, "in.pdf", "cat", "r2-endoddeast~3", "5-1", "output", "o.pdf")

	want := []plan.RangeExpr{
		{Atoms: []plan.RangeAtom{{
			Start:     plan.PageRef{Kind: plan.PageFromEnd, N: 2},
			End:       plan.PageRef{Kind: plan.PageEnd},
			Qualifier: plan.QualOdd,
			Rotation:  plan.RotEast,
			Excludes:  []plan.RangeAtom{{Start: abs(3)}},
		}}},
		{Atoms: []plan.RangeAtom{{Start: abs(5), End: abs(1)}}},
	}
	if diff := cmp.Diff(want, got.Ranges, ignorePositions); diff != "" {
		t.Errorf("ranges mismatch (-want +got):\n%s", diff)
	}
}

func TestParseImplicitCat(t *testing.T) {
	got := parse(t, "a.pdf", "b.pdf", "output", "-")

	if got.Operator != plan.OpCat || !got.Implicit {
		t.Errorf("expected implicit cat, got %s (implicit=%v)", got.Operator, got.Implicit)
	}
	if diff := cmp.Diff([]plan.Handle{"_1", "_2"}, handles(got)); diff != "" {
		t.Errorf("synthetic handles mismatch (-want +got):\n%s", diff)
	}
	if !got.Output.IsStdout() {
		t.Error("expected stdout output")
	}
}

func handles(p *plan.Plan) []plan.Handle {
	var out []plan.Handle
	for _, b := range p.Inputs {
		out = append(out, b.Handle)
	}
	return out
}

func TestParseInputPasswords(t *testing.T) {
	t.Run("positional", func(t *testing.T) {
		got := parse(t, "a.pdf", "b.pdf", "input_pw", "pa", "pb", "cat", "output", "o.pdf")
		if got.Inputs[0].Password != "pa" || got.Inputs[1].Password != "pb" {
			t.Errorf("passwords not assigned in order: %+v", got.Inputs)
		}
	})
	t.Run("labelled", func(t *testing.T) {
		got := parse(t, "A=a.pdf", "B=b.pdf", "input_pw", "B=secret", "cat", "output", "o.pdf")
		if got.Inputs[0].Password != "" || got.Inputs[1].Password != "secret" {
			t.Errorf("labelled password went to the wrong input: %+v", got.Inputs)
		}
	})
}

func TestParseOutputOptions(t *testing.T) {
	got := parse(t, "in.pdf", "cat", "output", "o.pdf",
		"owner_pw", "own", "user_pw", "PROMPT", "encrypt_aes256",
		"allow", "Printing", "CopyContents", "flatten", "keep_final_id", "compress", "dont_ask")

	want := plan.OutputOptions{
		OwnerPassword: "own",
		UserPassword:  plan.PromptPassword,
		Encryption:    plan.EncryptAES256,
		Permissions:   []plan.Permission{plan.PermPrinting, plan.PermCopyContents},
		Flatten:       true,
		KeepID:        plan.IDKeepFinal,
		Compression:   plan.CompressOn,
		Ask:           plan.AskNever,
	}
	if diff := cmp.Diff(want, got.Options); diff != "" {
		t.Errorf("options mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOperandShapes(t *testing.T) {
	t.Run("data file", func(t *testing.T) {
		got := parse(t, "form.pdf", "fill_form", "-", "output", "o.pdf", "flatten")
		if got.DataFile != "-" {
			t.Errorf("expected stdin data file, got %q", got.DataFile)
		}
	})
	t.Run("attachments", func(t *testing.T) {
		got := parse(t, "in.pdf", "attach_files", "a.txt", "b.csv", "to_page", "3", "relation", "Data", "output", "o.pdf")
		want := &plan.AttachSpec{Files: []string{"a.txt", "b.csv"}, Page: 3, Relation: "Data"}
		if diff := cmp.Diff(want, got.Attach); diff != "" {
			t.Errorf("attach mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("move", func(t *testing.T) {
		got := parse(t, "in.pdf", "move", "2-3", "before", "1", "output", "o.pdf")
		require.NotNil(t, got.Move)
		want := &plan.MoveSpec{
			Source: plan.RangeExpr{Atoms: []plan.RangeAtom{{Start: abs(2), End: abs(3)}}},
			Where:  plan.PlaceBefore,
			Target: plan.RangeAtom{Start: abs(1)},
		}
		if diff := cmp.Diff(want, got.Move, ignorePositions); diff != "" {
			t.Errorf("move mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("spin", func(t *testing.T) {
		got := parse(t, "in.pdf", "spin", "1-3:45", "[2,5]:-90", ":7.5", "output", "o.pdf")
		want := []plan.SpinSpec{
			{Range: plan.RangeExpr{Atoms: []plan.RangeAtom{{Start: abs(1), End: abs(3)}}}, Angle: 45},
			{Range: plan.RangeExpr{Atoms: []plan.RangeAtom{{Start: abs(2)}, {Start: abs(5)}}}, Angle: -90},
			{Range: plan.RangeExpr{Atoms: []plan.RangeAtom{{}}}, Angle: 7.5},
		}
		if diff := cmp.Diff(want, got.Spins, ignorePositions); diff != "" {
			t.Errorf("spin mismatch (-want +got):\n%s", diff)
		}
	})
	t.Run("dump_catalog json", func(t *testing.T) {
		require.True(t, parse(t, "in.pdf", "dump_catalog", "json").JSON)
		require.True(t, parse(t, "in.pdf", "dump_catalog", "JSON", "output", "-").JSON)
		require.False(t, parse(t, "in.pdf", "dump_catalog").JSON)
	})
	t.Run("update_catalog", func(t *testing.T) {
		got := parse(t, "in.pdf", "update_catalog", "cat.txt", "output", "o.pdf")
		require.Equal(t, "cat.txt", got.DataFile)
	})
	t.Run("data operators may omit output", func(t *testing.T) {
		got := parse(t, "in.pdf", "dump_data")
		if got.Output.Set {
			t.Error("dump_data without output should write to stdout")
		}
	})
	t.Run("burst without output uses the default pattern", func(t *testing.T) {
		got := parse(t, "in.pdf", "burst")
		if got.Output.Set {
			t.Error("burst output should be unset")
		}
	})
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		kind     errors.Kind
		position int
		message  string
		hint     string
	}{
		{
			name: "no inputs",
			args: []string{"cat", "output", "o.pdf"},
			kind: errors.KindGrammar, position: 1,
			message: "expected an input document",
		},
		{
			name: "missing output for cat",
			args: []string{"in.pdf", "cat", "1-2"},
			kind: errors.KindGrammar,
			message: "cat requires an output target",
		},
		{
			name: "output without path",
			args: []string{"in.pdf", "cat", "output"},
			kind: errors.KindGrammar, position: 3,
			message: "output requires a file name",
		},
		{
			name: "rebinding a handle",
			args: []string{"A=a.pdf", "A=b.pdf", "cat", "output", "o.pdf"},
			kind: errors.KindGrammar, position: 2,
			message: "handle A is already bound",
		},
		{
			name: "binding after operator",
			args: []string{"A=a.pdf", "cat", "B=b.pdf", "output", "o.pdf"},
			kind: errors.KindGrammar, position: 3,
			message: "handle binding B after the operator",
		},
		{
			name: "operator after output",
			args: []string{"in.pdf", "output", "o.pdf", "cat"},
			kind: errors.KindGrammar, position: 4,
			message: "operator cat after output",
		},
		{
			name: "operand for dump_data",
			args: []string{"in.pdf", "dump_data", "extra"},
			kind: errors.KindGrammar, position: 3,
			message: "dump_data takes no operands",
		},
		{
			name: "spin without angle",
			args: []string{"in.pdf", "spin", "2-3", "output", "o.pdf"},
			kind: errors.KindSyntax, position: 3,
			message: `spin operand "2-3" has no angle`,
		},
		{
			name: "spin with bad angle",
			args: []string{"in.pdf", "spin", "2-3:left", "output", "o.pdf"},
			kind: errors.KindSyntax, position: 3,
			message: `invalid spin angle "left"`,
		},
		{
			name: "spin with compass rotation",
			args: []string{"in.pdf", "spin", "1east:10", "output", "o.pdf"},
			kind: errors.KindGrammar, position: 3,
			message: "spin pages cannot carry a rotation",
		},
		{
			name: "spin without operands",
			args: []string{"in.pdf", "spin", "output", "o.pdf"},
			kind: errors.KindGrammar, position: 3,
			message: "expected a range:angle operand for spin",
		},
		{
			name: "dump_catalog extra operand",
			args: []string{"in.pdf", "dump_catalog", "yaml"},
			kind: errors.KindGrammar, position: 3,
			message: "dump_catalog takes no operands other than json",
		},
		{
			name: "word where a range belongs",
			args: []string{"in.pdf", "cat", "notes.txt", "output", "o.pdf"},
			kind: errors.KindGrammar, position: 3,
			message: "expected a page range or output",
		},
		{
			name: "operator typo",
			args: []string{"in.pdf", "cta", "output", "o.pdf"},
			kind: errors.KindGrammar, position: 2,
			message: `unknown operator "cta"`,
			hint:    "Did you mean 'cat'?",
		},
		{
			name: "permission typo",
			args: []string{"in.pdf", "cat", "output", "o.pdf", "owner_pw", "x", "allow", "Printng"},
			kind: errors.KindGrammar, position: 8,
			message: `unknown permission "Printng"`,
			hint:    "Did you mean 'Printing'?",
		},
		{
			name: "allow without encryption",
			args: []string{"in.pdf", "cat", "output", "o.pdf", "allow", "Printing"},
			kind: errors.KindGrammar,
			message: "allow requires encryption",
		},
		{
			name: "conflicting encryption",
			args: []string{"in.pdf", "cat", "output", "o.pdf", "encrypt_40bit", "encrypt_aes128"},
			kind: errors.KindGrammar, position: 6,
			message: "encrypt_aes128 conflicts with encrypt_40bit",
		},
		{
			name: "encrypt without passwords",
			args: []string{"in.pdf", "encrypt", "output", "o.pdf"},
			kind: errors.KindGrammar,
			message: "encrypt requires owner_pw",
		},
		{
			name: "decrypt with encryption",
			args: []string{"in.pdf", "decrypt", "output", "o.pdf", "owner_pw", "x"},
			kind: errors.KindGrammar,
			message: "decrypt cannot take encryption options",
		},
		{
			name: "single-input operator with two inputs",
			args: []string{"a.pdf", "b.pdf", "burst"},
			kind: errors.KindGrammar, position: 2,
			message: "burst takes exactly one input document",
		},
		{
			name: "burst to stdout",
			args: []string{"in.pdf", "burst", "output", "-"},
			kind: errors.KindGrammar, position: 3,
			message: "cannot write to standard output",
		},
		{
			name: "stdin used twice",
			args: []string{"-", "fill_form", "-", "output", "o.pdf"},
			kind: errors.KindGrammar, position: 1,
			message: "standard input cannot supply both",
		},
		{
			name: "move target is a range",
			args: []string{"in.pdf", "move", "1", "after", "2-3", "output", "o.pdf"},
			kind: errors.KindGrammar, position: 5,
			message: "move target must be a single page",
		},
		{
			name: "move without placement",
			args: []string{"in.pdf", "move", "1", "output", "o.pdf"},
			kind: errors.KindGrammar, position: 4,
			message: "expected 'after' or 'before'",
		},
		{
			name: "input_pw for unbound handle",
			args: []string{"A=a.pdf", "input_pw", "B=x", "cat", "output", "o.pdf"},
			kind: errors.KindRange, position: 3,
			message: "input_pw names unbound handle B",
		},
		{
			name: "malformed range",
			args: []string{"in.pdf", "cat", "1-", "output", "o.pdf"},
			kind: errors.KindSyntax, position: 3,
			message: "malformed page range",
		},
		{
			name: "to_page is not a number",
			args: []string{"in.pdf", "attach_files", "a.txt", "to_page", "x", "output", "o.pdf"},
			kind: errors.KindSyntax, position: 5,
			message: "to_page expects a page number",
		},
		{
			name: "output option typo",
			args: []string{"in.pdf", "cat", "output", "o.pdf", "flaten"},
			kind: errors.KindGrammar, position: 5,
			message: `unknown output option "flaten"`,
			hint:    "Did you mean 'flatten'?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseArgs(tt.args)
			require.Error(t, err)
			e, ok := errors.As(err)
			require.True(t, ok, "expected *errors.Error, got %T: %v", err, err)
			if e.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s (%v)", tt.kind, e.Kind, err)
			}
			if e.Position != tt.position {
				t.Errorf("expected position %d, got %d (%v)", tt.position, e.Position, err)
			}
			if !strings.Contains(e.Message, tt.message) {
				t.Errorf("expected message containing %q, got %q", tt.message, e.Message)
			}
			if tt.hint != "" && e.Hint != tt.hint {
				t.Errorf("expected hint %q, got %q", tt.hint, e.Hint)
			}
		})
	}
}

func TestParseTelemetry(t *testing.T) {
	res, err := Parse([]string{"A=a.pdf", "cat", "A1-2,A4", "output", "o.pdf", "compress"}, WithTelemetryBasic(), WithDebugPaths())
	require.NoError(t, err)
	require.NotNil(t, res.Telemetry)

	if res.Telemetry.InputCount != 1 || res.Telemetry.RangeCount != 2 || res.Telemetry.OptionsCount != 1 {
		t.Errorf("unexpected telemetry: %+v", res.Telemetry)
	}
	var events []string
	for _, ev := range res.DebugEvents {
		events = append(events, ev.Event)
	}
	want := []string{"enter_inputs", "exit_inputs", "enter_operands", "exit_operands", "enter_output", "exit_output"}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("debug events mismatch (-want +got):\n%s", diff)
	}
}
