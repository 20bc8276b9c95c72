package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "plain",
			err:  Grammar("no input files"),
			want: "no input files",
		},
		{
			name: "with argument",
			err:  Grammar("operation after output").At(4, "cat"),
			want: `operation after output (argument 5: "cat")`,
		},
		{
			name: "with cause",
			err:  IO(fs.ErrNotExist, "cannot open %s", "in.pdf"),
			want: "cannot open in.pdf: file does not exist",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.err.Error()); diff != "" {
				t.Errorf("message mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{Grammar("x"), ExitGrammar},
		{Syntax("x"), ExitSyntax},
		{Range("x"), ExitRange},
		{IO(nil, "x"), ExitIO},
		{Authorization(nil, "x"), ExitAuthorization},
		{Compatibility("x"), ExitCompatibility},
		{Internal(nil, "x"), ExitInternal},
		{stderrors.New("plain"), ExitInternal},
		{fmt.Errorf("wrapped: %w", Range("x")), ExitRange},
	}

	seen := map[int]bool{}
	for _, tt := range tests {
		got := ExitCode(tt.err)
		if got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
		seen[got] = true
	}
	if len(seen) != 8 {
		t.Errorf("expected 8 distinct exit codes, got %d", len(seen))
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	err := IO(fs.ErrPermission, "cannot write out.pdf")
	if !stderrors.Is(err, fs.ErrPermission) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
	if !IsKind(err, KindIO) {
		t.Errorf("expected KindIO, got %s", KindOf(err))
	}
}

func TestWithContext(t *testing.T) {
	err := Range("page out of range").WithContext("page", 7).WithHint("the document has %d pages", 5)
	v, ok := err.GetContext("page")
	if !ok || v != 7 {
		t.Errorf("expected page context 7, got %v (%v)", v, ok)
	}
	if err.Hint != "the document has 5 pages" {
		t.Errorf("unexpected hint %q", err.Hint)
	}
}
