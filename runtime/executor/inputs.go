package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/plan"
)

// path resolves p against the configured working directory.
func (e *executor) path(p string) string {
	if p == plan.Stdin || filepath.IsAbs(p) || e.config.WorkDir == "" {
		return p
	}
	return filepath.Join(e.config.WorkDir, p)
}

// stdin reads standard input once. Several handles may bind "-" and all
// of them see the same bytes.
func (e *executor) stdin() ([]byte, error) {
	if e.stdinRead {
		return e.stdinData, nil
	}
	if e.config.Stdin == nil {
		return nil, errors.IO(os.ErrInvalid, "standard input is not available")
	}
	data, err := io.ReadAll(e.config.Stdin)
	if err != nil {
		return nil, errors.IO(err, "reading standard input")
	}
	e.stdinData, e.stdinRead = data, true
	return data, nil
}

// password returns pw, asking the prompt when pw is PROMPT.
func (e *executor) password(label, pw string) (string, error) {
	if pw != plan.PromptPassword {
		return pw, nil
	}
	if e.config.Prompt == nil {
		return "", errors.Authorization(os.ErrInvalid, "cannot prompt for the %s", label).
			WithHint("Run in a terminal, or give the password on the command line")
	}
	got, err := e.config.Prompt(label)
	if err != nil {
		return "", errors.Authorization(err, "reading the %s", label)
	}
	return got, nil
}

// source builds the engine input for a path that may be "-".
func (e *executor) source(name string) (engine.Input, error) {
	if name == plan.Stdin {
		data, err := e.stdin()
		if err != nil {
			return engine.Input{}, err
		}
		return engine.Input{Name: name, Data: data}, nil
	}
	return engine.Input{Name: name, Path: e.path(name)}, nil
}

// openInputs opens every binding in order. A failure stops at the first
// document that cannot be opened.
func (e *executor) openInputs(ctx context.Context) error {
	for _, b := range e.plan.Inputs {
		in, err := e.source(b.Path)
		if err != nil {
			return err
		}
		in.Password, err = e.password(fmt.Sprintf("password for %s", b.Path), b.Password)
		if err != nil {
			return err
		}

		e.recordDebugEvent(DebugDetailed, "open_input", fmt.Sprintf("%s=%s", b.Handle, b.Path))
		doc, err := e.config.Engine.Open(ctx, in)
		if err != nil {
			return openError(err, b.Path, b.Position, passwordHint(b))
		}
		e.docs[b.Handle] = doc
		if e.telemetry != nil {
			e.telemetry.DocumentsOpened++
		}
		e.logger.Debug("opened input", "handle", string(b.Handle), "path", b.Path, "pages", doc.PageCount())
	}
	return nil
}

func passwordHint(b plan.Binding) string {
	if b.Implicit {
		return "Give the password after the inputs with input_pw <password>"
	}
	return fmt.Sprintf("Give the password after the inputs with input_pw %s=<password>", b.Handle)
}

// closeAll closes every open document and reports the first failure.
func (e *executor) closeAll() error {
	var first error
	for _, b := range e.plan.Inputs {
		doc, ok := e.docs[b.Handle]
		if !ok {
			continue
		}
		if err := doc.Close(); err != nil && first == nil {
			first = err
		}
		delete(e.docs, b.Handle)
	}
	return first
}

// primary is the document single-input operators work on.
func (e *executor) primary() engine.Document {
	doc, ok := e.docs[e.plan.DefaultHandle()]
	if !ok {
		panic("primary document is not open")
	}
	return doc
}

// handles lists the bound handles in binding order.
func (e *executor) handles() []plan.Handle {
	out := make([]plan.Handle, len(e.plan.Inputs))
	for i, b := range e.plan.Inputs {
		out[i] = b.Handle
	}
	return out
}

// readDataFile reads the data file operand, from standard input for "-".
func (e *executor) readDataFile() ([]byte, error) {
	name := e.plan.DataFile
	if name == plan.Stdin {
		return e.stdin()
	}
	data, err := os.ReadFile(e.path(name))
	if err != nil {
		return nil, errors.IO(err, "cannot read data file %s", name)
	}
	return data, nil
}
