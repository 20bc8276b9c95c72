// Package pdfengine implements the engine interfaces on pdfcpu.
//
// A document keeps its current state as serialized PDF bytes together with
// a parsed pdfcpu context of those bytes. Every mutation edits the context,
// writes it and parses the result again, so the bytes and the context never
// disagree and copies of a document are cheap to make.
package pdfengine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/invariant"
)

// Options configure the engine.
type Options struct {
	Logger *slog.Logger
}

// Engine opens and assembles documents with pdfcpu.
type Engine struct {
	logger *slog.Logger
}

var configOnce sync.Once

// New returns an engine. pdfcpu's per-user configuration directory is
// disabled so nothing is written outside the requested outputs.
func New(opts Options) *Engine {
	configOnce.Do(api.DisableConfigDir)
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger}
}

func (e *Engine) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// read parses data into a context.
func (e *Engine) read(data []byte, password string) (*model.Context, error) {
	conf := e.config()
	conf.UserPW = password
	conf.OwnerPW = password
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		if isPasswordError(err) {
			return nil, fmt.Errorf("%w: %v", engine.ErrWrongPassword, err)
		}
		return nil, err
	}
	return ctx, nil
}

// write serializes ctx.
func write(ctx *model.Context) ([]byte, error) {
	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Open implements engine.Engine. Encrypted inputs are decrypted once on
// open; the document holds plain bytes from then on.
func (e *Engine) Open(ctx context.Context, in engine.Input) (engine.Document, error) {
	invariant.NotNil(ctx, "ctx")
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := in.Data
	if data == nil {
		var err error
		if data, err = os.ReadFile(in.Path); err != nil {
			return nil, err
		}
	}

	pctx, err := e.read(data, in.Password)
	if err != nil {
		return nil, err
	}
	encrypted := pctx.Encrypt != nil
	if encrypted {
		conf := e.config()
		conf.UserPW = in.Password
		conf.OwnerPW = in.Password
		var plain bytes.Buffer
		if err := api.Decrypt(bytes.NewReader(data), &plain, conf); err != nil {
			if isPasswordError(err) {
				return nil, fmt.Errorf("%w: %v", engine.ErrWrongPassword, err)
			}
			return nil, err
		}
		data = plain.Bytes()
		if pctx, err = e.read(data, ""); err != nil {
			return nil, err
		}
	}

	e.logger.Debug("pdf opened", "name", in.Name, "pages", pctx.PageCount, "bytes", len(data))
	return &document{eng: e, name: in.Name, data: data, ctx: pctx, encrypted: encrypted}, nil
}

type run struct {
	doc   *document
	pages []string
}

// Assemble implements engine.Engine. Consecutive pages from one document
// are collected together; the runs are then merged in order.
func (e *Engine) Assemble(ctx context.Context, pages []engine.PageSource) (engine.Document, error) {
	invariant.Precondition(len(pages) > 0, "assemble needs at least one page")

	var runs []run
	for _, ps := range pages {
		d, ok := ps.Doc.(*document)
		if !ok {
			return nil, fmt.Errorf("pdfengine: cannot assemble pages of %T", ps.Doc)
		}
		if n := len(runs); n > 0 && runs[n-1].doc == d {
			runs[n-1].pages = append(runs[n-1].pages, strconv.Itoa(ps.Page))
			continue
		}
		runs = append(runs, run{doc: d, pages: []string{strconv.Itoa(ps.Page)}})
	}

	parts := make([]io.ReadSeeker, len(runs))
	for i, r := range runs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if err := api.Collect(bytes.NewReader(r.doc.data), &buf, r.pages, e.config()); err != nil {
			return nil, fmt.Errorf("collecting pages of %s: %w", r.doc.name, err)
		}
		parts[i] = bytes.NewReader(buf.Bytes())
	}

	var merged bytes.Buffer
	if len(parts) == 1 {
		if _, err := io.Copy(&merged, parts[0]); err != nil {
			return nil, err
		}
	} else if err := api.MergeRaw(parts, &merged, false, e.config()); err != nil {
		return nil, fmt.Errorf("merging pages: %w", err)
	}

	d, err := e.newDocument("assembled", merged.Bytes())
	if err != nil {
		return nil, err
	}
	err = d.modify(func(pctx *model.Context) error {
		for i, ps := range pages {
			page, _, _, err := pctx.PageDict(i+1, false)
			if err != nil {
				return err
			}
			page.Update("Rotate", types.Integer(ps.Rotation))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Debug("pdf assembled", "pages", len(pages), "runs", len(runs))
	return d, nil
}

func (e *Engine) newDocument(name string, data []byte) (*document, error) {
	pctx, err := e.read(data, "")
	if err != nil {
		return nil, err
	}
	return &document{eng: e, name: name, data: data, ctx: pctx}, nil
}
