package compat

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
)

func fieldNames(fields []engine.Field) []string {
	var out []string
	for _, f := range fields {
		out = append(out, f.Name)
	}
	return out
}

func TestFieldsDuplicateLenient(t *testing.T) {
	s := New(Lenient, nil)
	fields := []engine.Field{{Name: "a", Value: "1"}, {Name: "b"}, {Name: "a", Value: "2"}}

	got, err := s.Fields(fields, &engine.DuplicateNameError{Names: []string{"a"}})
	require.NoError(t, err)

	if diff := cmp.Diff([]string{"a", "b"}, fieldNames(got)); diff != "" {
		t.Errorf("fields mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "1", got[0].Value, "first occurrence wins")
	require.Len(t, s.Report().Warnings, 1)
	assert.Contains(t, s.Report().Lines()[0], "Warning: form fields: duplicate field names a")
}

func TestFieldsDuplicateStrict(t *testing.T) {
	s := New(Strict, nil)
	fields := []engine.Field{{Name: "a"}, {Name: "a"}}

	_, err := s.Fields(fields, fmt.Errorf("reading form: %w", &engine.DuplicateNameError{Names: []string{"a"}}))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindCompatibility), "got %v", err)
	assert.Equal(t, errors.ExitCompatibility, errors.ExitCode(err))
	assert.Equal(t, "form fields: duplicate field names a", err.Error(), "strict aborts, so no fallback is named")
	assert.Empty(t, s.Report().Warnings)
}

func TestFieldsNormalisationDuplicates(t *testing.T) {
	s := New(Lenient, nil)
	// "é" precomposed and decomposed.
	fields := []engine.Field{{Name: "caf\u00e9"}, {Name: "cafe\u0301"}}

	got, err := s.Fields(fields, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Len(t, s.Report().Warnings, 1)
}

func TestFieldsSkipUndecodable(t *testing.T) {
	fields := []engine.Field{
		{Name: "ok"},
		{Name: "bad", Issue: fmt.Errorf("key is not valid UTF-8")},
		{Name: "also_ok"},
	}

	t.Run("lenient", func(t *testing.T) {
		s := New(Lenient, nil)
		got, err := s.Fields(fields, nil)
		require.NoError(t, err)
		if diff := cmp.Diff([]string{"ok", "also_ok"}, fieldNames(got)); diff != "" {
			t.Errorf("fields mismatch (-want +got):\n%s", diff)
		}
		require.Len(t, s.Report().Warnings, 1)
		assert.Equal(t, `field "bad" cannot be read: key is not valid UTF-8, skipping it`, s.Report().Warnings[0].Message)
	})

	t.Run("strict", func(t *testing.T) {
		s := New(Strict, nil)
		_, err := s.Fields(fields, nil)
		assert.True(t, errors.IsKind(err, errors.KindCompatibility), "got %v", err)
		assert.NotContains(t, err.Error(), "skipping")
	})
}

func TestFieldsPassesOtherErrors(t *testing.T) {
	s := New(Lenient, nil)
	cause := fmt.Errorf("broken AcroForm")
	_, err := s.Fields(nil, cause)
	assert.Equal(t, cause, err)
}

func TestUnsupported(t *testing.T) {
	unsupported := &engine.UnsupportedError{Feature: engine.FeatureFlatten}

	lenient := New(Lenient, nil)
	assert.NoError(t, lenient.Unsupported(unsupported, "locking fields instead"))
	assert.Equal(t, []string{"Warning: form flattening: not supported by the PDF engine, locking fields instead"}, lenient.Report().Lines())

	strict := New(Strict, nil)
	err := strict.Unsupported(unsupported, "locking fields instead")
	assert.True(t, errors.IsKind(err, errors.KindCompatibility))
	e, _ := errors.As(err)
	assert.Equal(t, strictHint, e.Hint)
	assert.Equal(t, "form flattening: not supported by the PDF engine", err.Error())

	other := fmt.Errorf("disk full")
	assert.Equal(t, other, lenient.Unsupported(other, "x"))
}
