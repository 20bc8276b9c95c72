package executor

import (
	"context"
	stderrors "errors"
	"io/fs"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
)

// classify gives every error leaving Execute a kind. Errors that already
// carry one pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	var pathErr *fs.PathError
	var outErr *OutputError
	switch {
	case stderrors.Is(err, engine.ErrWrongPassword):
		return errors.Authorization(err, "cannot open document")
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return errors.Internal(err, "interrupted")
	case stderrors.As(err, &outErr):
		return errors.IO(outErr.Cause, "cannot %s %s", outErr.Operation, outErr.Path)
	case stderrors.As(err, &pathErr):
		return errors.IO(err, "file access failed")
	}
	return errors.Internal(err, "PDF engine failure")
}

// openError classifies a failure to open the input bound at position.
func openError(err error, name string, position int, hint string) error {
	var pathErr *fs.PathError
	switch {
	case stderrors.Is(err, engine.ErrWrongPassword):
		e := errors.Authorization(err, "cannot open %s", name).At(position, name)
		if hint != "" {
			e.WithHint("%s", hint)
		}
		return e
	case stderrors.As(err, &pathErr), stderrors.Is(err, fs.ErrNotExist), stderrors.Is(err, fs.ErrPermission):
		return errors.IO(err, "cannot open %s", name).At(position, name)
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return err
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.Internal(err, "cannot read %s as a PDF document", name).At(position, name)
}
