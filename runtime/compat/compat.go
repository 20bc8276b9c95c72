// Package compat routes known divergences from pdftk through one policy.
//
// Under Lenient the shim degrades the affected feature and records a
// warning. Under Strict it fails with a CompatibilityError instead. Nothing
// else in the executor decides how to recover from a divergence.
//
// Enumeration order of fields, bookmarks and attachments is the engine's
// natural order. It is an accepted divergence and is never reordered here.
package compat

import (
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
)

// Policy is the configured strictness.
type Policy int

const (
	Lenient Policy = iota // degrade and warn (default)
	Strict                // fail with a CompatibilityError
)

func (p Policy) String() string {
	if p == Strict {
		return "strict"
	}
	return "lenient"
}

// Warning is one recorded degradation.
type Warning struct {
	Feature string // what degraded, e.g. "form fields"
	Message string
}

func (w Warning) String() string {
	return fmt.Sprintf("Warning: %s: %s", w.Feature, w.Message)
}

// Report collects warnings for one invocation.
type Report struct {
	Warnings []Warning
}

// Lines renders every warning, one per line.
func (r *Report) Lines() []string {
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.String()
	}
	return out
}

// Shim applies the policy and fills a report.
type Shim struct {
	policy Policy
	report *Report
	logger *slog.Logger
}

// New returns a shim. A nil logger discards log output.
func New(policy Policy, logger *slog.Logger) *Shim {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Shim{policy: policy, report: &Report{}, logger: logger}
}

// Policy returns the configured strictness.
func (s *Shim) Policy() Policy { return s.policy }

// Report returns the warnings recorded so far.
func (s *Shim) Report() *Report { return s.report }

// diverge reports msg. Under Lenient it records a warning that also names
// the fallback taken; under Strict it returns a CompatibilityError, since no
// fallback happens.
func (s *Shim) diverge(feature, hint, fallback, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if s.policy == Strict {
		e := errors.Compatibility("%s: %s", feature, msg).WithContext("feature", feature)
		if hint != "" {
			e.WithHint("%s", hint)
		}
		return e
	}
	if fallback != "" {
		msg += ", " + fallback
	}
	s.report.Warnings = append(s.report.Warnings, Warning{Feature: feature, Message: msg})
	s.logger.Warn("compatibility", "feature", feature, "detail", msg)
	return nil
}

const strictHint = "Run without --strict to continue in a degraded form"

// Fields reconciles the engine's field enumeration with pdftk behaviour.
//
// Fields whose dictionary could not be decoded are skipped individually.
// Duplicate fully qualified names, including names that differ only in
// Unicode normalisation, keep their first occurrence.
func (s *Shim) Fields(fields []engine.Field, err error) ([]engine.Field, error) {
	var dup *engine.DuplicateNameError
	if err != nil && !stderrors.As(err, &dup) {
		return nil, err
	}

	out := make([]engine.Field, 0, len(fields))
	seen := map[string]bool{}
	var dups []string
	for _, f := range fields {
		if f.Issue != nil {
			if err := s.diverge("form fields", strictHint, "skipping it", "field %q cannot be read: %v", f.Name, f.Issue); err != nil {
				return nil, err
			}
			continue
		}
		key := norm.NFC.String(f.Name)
		if seen[key] {
			dups = append(dups, f.Name)
			continue
		}
		seen[key] = true
		out = append(out, f)
	}

	if len(dups) > 0 {
		if err := s.diverge("form fields", strictHint, "keeping the first occurrence",
			"duplicate field names %s", strings.Join(dups, ", ")); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Unsupported decides what to do when the engine cannot express a feature.
// It returns nil when the caller should retry without the feature, and err
// unchanged when err is not an *engine.UnsupportedError.
func (s *Shim) Unsupported(err error, fallback string) error {
	var u *engine.UnsupportedError
	if !stderrors.As(err, &u) {
		return err
	}
	return s.diverge(u.Feature, strictHint, fallback, "not supported by the PDF engine")
}

// Warn records a degradation that has no strict counterpart, such as a
// field value that could not be matched.
func (s *Shim) Warn(feature, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.report.Warnings = append(s.report.Warnings, Warning{Feature: feature, Message: msg})
	s.logger.Warn("compatibility", "feature", feature, "detail", msg)
}
