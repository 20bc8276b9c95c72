package executor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/plan"
)

// OutputError reports a failure to produce one output file.
type OutputError struct {
	Path      string
	Operation string // "create", "write", "rename"
	Cause     error
}

func (e *OutputError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("output %s %s failed", e.Path, e.Operation)
	}
	return fmt.Sprintf("output %s %s failed: %v", e.Path, e.Operation, e.Cause)
}

func (e *OutputError) Unwrap() error { return e.Cause }

// renameFile is replaced in tests to simulate transient rename failures.
var renameFile = os.Rename

// renameBackoff is the pause between rename attempts.
var renameBackoff = 50 * time.Millisecond

// sink receives one output. Reset discards everything written so far so a
// save can be retried with different options.
type sink interface {
	io.Writer
	Reset() error
}

// bufferSink holds standard-output data until the run succeeds.
type bufferSink struct{ bytes.Buffer }

func (b *bufferSink) Reset() error {
	b.Buffer.Reset()
	return nil
}

// atomicFile writes to a temporary file in the target directory and renames
// it into place on Commit. Readers never see a partial file.
type atomicFile struct {
	f     *os.File
	final string
	done  bool
}

func createAtomic(final string) (*atomicFile, error) {
	dir, base := filepath.Split(final)
	if dir == "" {
		dir = "."
	}
	f, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return nil, &OutputError{Path: final, Operation: "create", Cause: err}
	}
	return &atomicFile{f: f, final: final}, nil
}

func (a *atomicFile) Write(p []byte) (int, error) {
	n, err := a.f.Write(p)
	if err != nil {
		return n, &OutputError{Path: a.final, Operation: "write", Cause: err}
	}
	return n, nil
}

func (a *atomicFile) Reset() error {
	if err := a.f.Truncate(0); err != nil {
		return &OutputError{Path: a.final, Operation: "write", Cause: err}
	}
	if _, err := a.f.Seek(0, io.SeekStart); err != nil {
		return &OutputError{Path: a.final, Operation: "write", Cause: err}
	}
	return nil
}

// Commit renames the temporary file over the target, retrying a failed
// rename up to retries times.
func (a *atomicFile) Commit(ctx context.Context, retries int) error {
	if err := a.f.Chmod(0o644); err != nil {
		return &OutputError{Path: a.final, Operation: "write", Cause: err}
	}
	if err := a.f.Close(); err != nil {
		return &OutputError{Path: a.final, Operation: "write", Cause: err}
	}
	var err error
	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if err = renameFile(a.f.Name(), a.final); err == nil {
			a.done = true
			return nil
		}
		if attempt >= retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(renameBackoff):
		}
	}
	return &OutputError{Path: a.final, Operation: "rename", Cause: err}
}

// Abort removes the temporary file. It is a no-op after a successful Commit.
func (a *atomicFile) Abort() {
	if a.done {
		return
	}
	_ = a.f.Close()
	_ = os.Remove(a.f.Name())
}

// checkOutputTarget rejects writing over one of the inputs.
func (e *executor) checkOutputTarget() error {
	out := e.plan.Output
	if !out.Set || out.Path == plan.Stdin {
		return nil
	}
	target, err := filepath.Abs(e.path(out.Path))
	if err != nil {
		return nil
	}
	for _, b := range e.plan.Inputs {
		if b.Path == plan.Stdin {
			continue
		}
		in, err := filepath.Abs(e.path(b.Path))
		if err == nil && in == target {
			return errors.Grammar("output %s would overwrite input %s", out.Path, b.Handle).
				At(out.Position, out.Path).
				WithHint("Write to a different file and rename it afterwards")
		}
	}
	return nil
}

// confirmOverwrite asks before replacing an existing file under do_ask.
func (e *executor) confirmOverwrite(name string) error {
	if e.plan.Options.Ask != plan.AskAlways {
		return nil
	}
	if _, err := os.Stat(e.path(name)); err != nil {
		return nil
	}
	if e.config.Prompt == nil {
		return errors.IO(fs.ErrExist, "output %s exists", name).WithHint("Remove do_ask to overwrite it")
	}
	answer, err := e.config.Prompt(fmt.Sprintf("overwrite %s? (y/n)", name))
	if err != nil {
		return errors.IO(err, "reading answer for %s", name)
	}
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(answer)), "y") {
		return errors.IO(fs.ErrExist, "output %s exists and was not overwritten", name)
	}
	return nil
}

// writeFile produces one output file atomically through fill. A "-" name
// buffers the data and copies it to standard output once fill succeeds.
func (e *executor) writeFile(ctx context.Context, name string, fill func(sink) error) error {
	if name == plan.Stdin {
		var buf bufferSink
		if err := fill(&buf); err != nil {
			return err
		}
		if _, err := e.config.Stdout.Write(buf.Bytes()); err != nil {
			return errors.IO(err, "writing standard output")
		}
		e.wrote(name)
		return nil
	}

	if err := e.confirmOverwrite(name); err != nil {
		return err
	}
	f, err := createAtomic(e.path(name))
	if err != nil {
		return err
	}
	defer f.Abort()
	if err := fill(f); err != nil {
		return err
	}
	retries := e.config.RenameRetries
	if retries < 0 {
		retries = 0
	}
	if err := f.Commit(ctx, retries); err != nil {
		return err
	}
	e.wrote(name)
	return nil
}

func (e *executor) wrote(name string) {
	e.outputs = append(e.outputs, name)
	e.recordDebugEvent(DebugDetailed, "write_output", name)
	e.logger.Info("wrote output", "path", name)
	if e.plan.Options.Verbose && e.config.Stderr != nil {
		fmt.Fprintf(e.config.Stderr, "wrote %s\n", name)
	}
}

// dataTarget is where a data-producing operator writes: standard output
// unless an output file was named.
func (e *executor) dataTarget() string {
	if !e.plan.Output.Set {
		return plan.Stdin
	}
	return e.plan.Output.Path
}

// writeData writes a text or FDF report.
func (e *executor) writeData(ctx context.Context, fill func(io.Writer) error) error {
	return e.writeFile(ctx, e.dataTarget(), func(s sink) error { return fill(s) })
}

// writeDocument saves doc to name. Save options the engine cannot express
// are dropped through the compatibility shim and the save is retried.
func (e *executor) writeDocument(ctx context.Context, doc engine.Document, name string) error {
	opts, err := e.saveOptions()
	if err != nil {
		return err
	}
	return e.writeFile(ctx, name, func(s sink) error {
		for {
			err := doc.Save(ctx, s, opts)
			if err == nil {
				return nil
			}
			switch {
			case opts.Linearize && engine.IsUnsupported(err, engine.FeatureLinearize):
				if err := e.shim.Unsupported(err, "writing without linearization"); err != nil {
					return err
				}
				opts.Linearize = false
			case opts.Uncompress && engine.IsUnsupported(err, engine.FeatureUncompress):
				if err := e.shim.Unsupported(err, "writing compressed streams"); err != nil {
					return err
				}
				opts.Uncompress = false
			default:
				return err
			}
			if err := s.Reset(); err != nil {
				return err
			}
		}
	})
}

var encryptionMethods = map[plan.EncryptionMethod]engine.EncryptionMethod{
	plan.EncryptRC4_40:  engine.RC4_40,
	plan.EncryptRC4_128: engine.RC4_128,
	plan.EncryptAES128:  engine.AES128,
	plan.EncryptAES256:  engine.AES256,
}

// rc4PasswordLimit is the number of password bytes RC4 handlers use.
const rc4PasswordLimit = 32

// saveOptions maps the plan's output options onto the engine.
func (e *executor) saveOptions() (engine.SaveOptions, error) {
	o := e.plan.Options
	opts := engine.SaveOptions{
		DropInfo:        o.DropInfo,
		DropXFA:         o.DropXFA,
		NeedAppearances: o.NeedAppearances,
		Compress:        o.Compression == plan.CompressOn,
		Uncompress:      o.Compression == plan.CompressOff,
		Linearize:       o.Linearize,
	}

	if o.Encrypted() {
		method := encryptionMethods[o.EffectiveEncryption()]
		owner, err := e.password("owner password", o.OwnerPassword)
		if err != nil {
			return opts, err
		}
		user, err := e.password("user password", o.UserPassword)
		if err != nil {
			return opts, err
		}
		if !method.IsAES() {
			owner, user = truncate(owner, rc4PasswordLimit), truncate(user, rc4PasswordLimit)
		}
		opts.Encryption = &engine.Encryption{
			Method:        method,
			OwnerPassword: owner,
			UserPassword:  user,
			Permissions:   plan.PermissionBits(o.Permissions),
		}
	}

	var keep plan.Handle
	switch o.KeepID {
	case plan.IDKeepFirst:
		keep = e.plan.Inputs[0].Handle
	case plan.IDKeepFinal:
		keep = e.plan.Inputs[len(e.plan.Inputs)-1].Handle
	}
	if keep != "" {
		md, err := e.docs[keep].Metadata()
		if err != nil {
			return opts, err
		}
		if md.ID[0] != "" {
			id := md.ID
			opts.ID = &id
		}
	}
	return opts, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

const defaultPattern = "pg_%04d.pdf"

var verbPattern = regexp.MustCompile(`%[-+ #0]*[0-9]*[a-zA-Z%]`)

// pattern returns the printf pattern naming split and burst outputs.
func (e *executor) pattern() (string, error) {
	out := e.plan.Output
	if !out.Set {
		return defaultPattern, nil
	}
	var ints int
	for _, verb := range verbPattern.FindAllString(out.Path, -1) {
		switch {
		case verb == "%%":
		case strings.HasSuffix(verb, "d"):
			ints++
		default:
			return "", errors.Grammar("output pattern %s has unsupported verb %s", out.Path, verb).
				At(out.Position, out.Path).WithHint("Use a single integer verb such as %%04d")
		}
	}
	if ints != 1 {
		return "", errors.Grammar("output pattern %s must contain exactly one integer verb", out.Path).
			At(out.Position, out.Path).WithHint("Use a single integer verb such as pg_%%04d.pdf")
	}
	return out.Path, nil
}
