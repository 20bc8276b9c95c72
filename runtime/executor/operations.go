package executor

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/text/unicode/norm"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/plan"
	"github.com/aledsdavies/pdftl/runtime/dumpfmt"
	"github.com/aledsdavies/pdftl/runtime/fdf"
)

type handler func(e *executor, ctx context.Context) error

var handlers map[plan.Operator]handler

func init() {
	handlers = map[plan.Operator]handler{
		plan.OpCat:                (*executor).cat,
		plan.OpShuffle:            (*executor).shuffle,
		plan.OpRotate:             (*executor).rotate,
		plan.OpBurst:              (*executor).burst,
		plan.OpSplit:              (*executor).split,
		plan.OpMove:               (*executor).move,
		plan.OpFillForm:           (*executor).fillForm,
		plan.OpGenerateFDF:        (*executor).generateFDF,
		plan.OpDumpData:           dumpData(dumpfmt.Escaped),
		plan.OpDumpDataUTF8:       dumpData(dumpfmt.UTF8),
		plan.OpDumpDataFields:     dumpFields(dumpfmt.Escaped),
		plan.OpDumpDataFieldsUTF8: dumpFields(dumpfmt.UTF8),
		plan.OpDumpDataAnnots:     (*executor).dumpAnnots,
		plan.OpUpdateInfo:         updateInfo(dumpfmt.Escaped),
		plan.OpUpdateInfoUTF8:     updateInfo(dumpfmt.UTF8),
		plan.OpAttachFiles:        (*executor).attachFiles,
		plan.OpUnpackFiles:        (*executor).unpackFiles,
		plan.OpBackground:         overlay(engine.OverlayOptions{}),
		plan.OpMultiBackground:    overlay(engine.OverlayOptions{Multi: true}),
		plan.OpStamp:              overlay(engine.OverlayOptions{OnTop: true}),
		plan.OpMultiStamp:         overlay(engine.OverlayOptions{Multi: true, OnTop: true}),
		plan.OpEncrypt:            (*executor).resave,
		plan.OpDecrypt:            (*executor).resave,
		plan.OpSpin:               (*executor).spin,
		plan.OpDumpCatalog:        (*executor).dumpCatalog,
		plan.OpUpdateCatalog:      (*executor).updateCatalog,
	}
}

// assemble builds a new document from refs and writes it to name.
func (e *executor) assemble(ctx context.Context, refs []plan.ResolvedPageRef, name string) error {
	pages := make([]engine.PageSource, len(refs))
	for i, ref := range refs {
		pages[i] = engine.PageSource{Doc: e.docs[ref.Handle], Page: ref.Page, Rotation: ref.Rotation}
	}
	e.countPages(len(refs))
	e.recordDebugEvent(DebugDetailed, "assemble", fmt.Sprintf("%s pages=%d", name, len(refs)))

	doc, err := e.config.Engine.Assemble(ctx, pages)
	if err != nil {
		return err
	}
	defer doc.Close()
	if err := e.flattenOutput(doc); err != nil {
		return err
	}
	return e.writeDocument(ctx, doc, name)
}

func (e *executor) cat(ctx context.Context) error {
	refs, err := e.resolver().Cat(e.plan.Ranges, e.handles())
	if err != nil {
		return err
	}
	return e.assemble(ctx, refs, e.plan.Output.Path)
}

func (e *executor) shuffle(ctx context.Context) error {
	refs, err := e.resolver().Shuffle(e.plan.Ranges, e.handles())
	if err != nil {
		return err
	}
	return e.assemble(ctx, refs, e.plan.Output.Path)
}

func (e *executor) rotate(ctx context.Context) error {
	refs, err := e.resolver().Rotate(e.plan.Ranges, e.plan.DefaultHandle())
	if err != nil {
		return err
	}
	return e.assemble(ctx, refs, e.plan.Output.Path)
}

func (e *executor) move(ctx context.Context) error {
	refs, err := e.resolver().Move(e.plan.Move, e.plan.DefaultHandle())
	if err != nil {
		return err
	}
	return e.assemble(ctx, refs, e.plan.Output.Path)
}

// spin turns page content in place; pages keep their order and boxes.
func (e *executor) spin(ctx context.Context) error {
	turns, err := e.resolver().Spin(e.plan.Spins, e.plan.DefaultHandle())
	if err != nil {
		return err
	}
	doc := e.primary()
	for _, t := range turns {
		if err := doc.SpinPage(t.Page, t.Angle); err != nil {
			return err
		}
	}
	e.countPages(len(turns))
	e.logger.Debug("spun pages", "pages", len(turns))
	if err := e.flattenOutput(doc); err != nil {
		return err
	}
	return e.writeDocument(ctx, doc, e.plan.Output.Path)
}

func (e *executor) burst(ctx context.Context) error {
	groups, err := e.resolver().Burst(e.plan.DefaultHandle())
	if err != nil {
		return err
	}
	pattern, err := e.writeGroups(ctx, groups)
	if err != nil {
		return err
	}

	md, err := e.primary().Metadata()
	if err != nil {
		return err
	}
	report := filepath.Join(filepath.Dir(pattern), "doc_data.txt")
	return e.writeFile(ctx, report, func(s sink) error {
		return dumpfmt.WriteData(s, md, dumpfmt.Escaped)
	})
}

func (e *executor) split(ctx context.Context) error {
	groups, err := e.resolver().Split(e.plan.Ranges, e.plan.DefaultHandle())
	if err != nil {
		return err
	}
	_, err = e.writeGroups(ctx, groups)
	return err
}

// writeGroups writes one document per group, named by the output pattern.
// Every group is resolved before the first file is written.
func (e *executor) writeGroups(ctx context.Context, groups [][]plan.ResolvedPageRef) (string, error) {
	pattern, err := e.pattern()
	if err != nil {
		return "", err
	}
	for i, g := range groups {
		pages := make([]engine.PageSource, len(g))
		for j, ref := range g {
			pages[j] = engine.PageSource{Doc: e.docs[ref.Handle], Page: ref.Page, Rotation: ref.Rotation}
		}
		e.countPages(len(g))

		doc, err := e.config.Engine.Assemble(ctx, pages)
		if err != nil {
			return "", err
		}
		err = e.flattenOutput(doc)
		if err == nil {
			err = e.writeDocument(ctx, doc, fmt.Sprintf(pattern, i+1))
		}
		doc.Close()
		if err != nil {
			return "", err
		}
	}
	return pattern, nil
}

// fill sets field values, locking the fields instead when the engine
// cannot flatten.
func (e *executor) fill(doc engine.Document, values []engine.FieldValue, opts engine.FillOptions) error {
	err := doc.FillFields(values, opts)
	if opts.Flatten && engine.IsUnsupported(err, engine.FeatureFlatten) {
		if err := e.shim.Unsupported(err, "marking the fields read-only instead"); err != nil {
			return err
		}
		opts.Flatten, opts.LockFields = false, true
		return doc.FillFields(values, opts)
	}
	return err
}

// flattenOutput applies the flatten output option to operators other than
// fill_form, which flattens as part of filling.
func (e *executor) flattenOutput(doc engine.Document) error {
	if !e.plan.Options.Flatten || e.plan.Operator == plan.OpFillForm {
		return nil
	}
	return e.fill(doc, nil, engine.FillOptions{Flatten: true})
}

// fields enumerates form fields through the compatibility shim.
func (e *executor) fields(doc engine.Document) ([]engine.Field, bool, error) {
	raw, err := doc.Fields()
	var dup *engine.DuplicateNameError
	hasDups := stderrors.As(err, &dup)
	fields, err := e.shim.Fields(raw, err)
	return fields, hasDups, err
}

func (e *executor) fillForm(ctx context.Context) error {
	data, err := e.readDataFile()
	if err != nil {
		return err
	}
	values, err := fdf.Parse(data)
	if err != nil {
		return err
	}

	doc := e.primary()
	fields, hasDups, err := e.fields(doc)
	if err != nil {
		return err
	}
	known := make(map[string]string, len(fields))
	for _, f := range fields {
		known[norm.NFC.String(f.Name)] = f.Name
	}

	matched := make([]engine.FieldValue, 0, len(values))
	for _, v := range values {
		name, ok := known[norm.NFC.String(v.Name)]
		if !ok {
			e.shim.Warn("fill_form", "no form field named %q", v.Name)
			continue
		}
		v.Name = name
		matched = append(matched, v)
	}
	e.logger.Debug("filling form", "values", len(values), "matched", len(matched))

	opts := engine.FillOptions{
		Flatten:         e.plan.Options.Flatten,
		NeedAppearances: e.plan.Options.NeedAppearances,
		FirstOnly:       hasDups,
	}
	if err := e.fill(doc, matched, opts); err != nil {
		return err
	}
	return e.writeDocument(ctx, doc, e.plan.Output.Path)
}

func (e *executor) generateFDF(ctx context.Context) error {
	fields, _, err := e.fields(e.primary())
	if err != nil {
		return err
	}
	return e.writeData(ctx, func(w io.Writer) error { return fdf.Write(w, fields) })
}

func dumpData(enc dumpfmt.Encoding) handler {
	return func(e *executor, ctx context.Context) error {
		md, err := e.primary().Metadata()
		if err != nil {
			return err
		}
		return e.writeData(ctx, func(w io.Writer) error { return dumpfmt.WriteData(w, md, enc) })
	}
}

func dumpFields(enc dumpfmt.Encoding) handler {
	return func(e *executor, ctx context.Context) error {
		fields, _, err := e.fields(e.primary())
		if err != nil {
			return err
		}
		return e.writeData(ctx, func(w io.Writer) error { return dumpfmt.WriteFields(w, fields, enc) })
	}
}

func (e *executor) dumpAnnots(ctx context.Context) error {
	a, err := e.primary().Annotations()
	if err != nil {
		return err
	}
	return e.writeData(ctx, func(w io.Writer) error { return dumpfmt.WriteAnnots(w, a) })
}

func (e *executor) dumpCatalog(ctx context.Context) error {
	c, err := e.primary().Catalog()
	if err != nil {
		return err
	}
	return e.writeData(ctx, func(w io.Writer) error { return dumpfmt.WriteCatalog(w, c, e.plan.JSON) })
}

func (e *executor) updateCatalog(ctx context.Context) error {
	data, err := e.readDataFile()
	if err != nil {
		return err
	}
	u, err := dumpfmt.ParseCatalog(bytes.NewReader(data))
	if err != nil {
		return err
	}
	doc := e.primary()
	if err := dumpfmt.CheckCatalogPages(&u.Catalog, doc.PageCount()); err != nil {
		return err
	}
	for _, key := range u.Ignored {
		e.shim.Warn(string(e.plan.Operator), "ignoring unknown key %s", key)
	}
	if !u.Empty() {
		if err := doc.UpdateCatalog(u.Catalog); err != nil {
			return err
		}
	}
	if err := e.flattenOutput(doc); err != nil {
		return err
	}
	return e.writeDocument(ctx, doc, e.plan.Output.Path)
}

func updateInfo(enc dumpfmt.Encoding) handler {
	return func(e *executor, ctx context.Context) error {
		data, err := e.readDataFile()
		if err != nil {
			return err
		}
		u, err := dumpfmt.ParseUpdate(bytes.NewReader(data), enc)
		if err != nil {
			return err
		}
		doc := e.primary()
		if err := dumpfmt.CheckPages(&u.MetadataUpdate, doc.PageCount()); err != nil {
			return err
		}
		for _, key := range u.Ignored {
			e.shim.Warn(string(e.plan.Operator), "ignoring unknown key %s", key)
		}
		if err := doc.UpdateMetadata(u.MetadataUpdate); err != nil {
			return err
		}
		if err := e.flattenOutput(doc); err != nil {
			return err
		}
		return e.writeDocument(ctx, doc, e.plan.Output.Path)
	}
}

func (e *executor) attachFiles(ctx context.Context) error {
	spec := e.plan.Attach
	doc := e.primary()
	if spec.Page > doc.PageCount() {
		return errors.Range("to_page %d not found", spec.Page).
			WithHint("The document has %d pages", doc.PageCount())
	}

	files := make([]engine.AttachmentSpec, len(spec.Files))
	for i, name := range spec.Files {
		path := e.path(name)
		info, err := os.Stat(path)
		if err != nil {
			return errors.IO(err, "cannot read attachment %s", name)
		}
		if info.IsDir() {
			return errors.IO(os.ErrInvalid, "attachment %s is a directory", name)
		}
		files[i] = engine.AttachmentSpec{
			Path:     path,
			Name:     filepath.Base(name),
			Page:     spec.Page,
			Relation: spec.Relation,
		}
	}

	err := doc.Attach(ctx, files)
	if engine.IsUnsupported(err, engine.FeaturePageAttachments) {
		if err := e.shim.Unsupported(err, "attaching at document level"); err != nil {
			return err
		}
		for i := range files {
			files[i].Page = 0
		}
		err = doc.Attach(ctx, files)
	}
	if err != nil {
		return err
	}
	if err := e.flattenOutput(doc); err != nil {
		return err
	}
	return e.writeDocument(ctx, doc, e.plan.Output.Path)
}

func (e *executor) unpackFiles(ctx context.Context) error {
	dir := ""
	if e.plan.Output.Set {
		dir = e.plan.Output.Path
	}
	if dir != "" {
		info, err := os.Stat(e.path(dir))
		if err != nil {
			return errors.IO(err, "cannot use output directory %s", dir)
		}
		if !info.IsDir() {
			return errors.IO(os.ErrInvalid, "output %s is not a directory", dir).At(e.plan.Output.Position, dir)
		}
	}

	atts, err := e.primary().Attachments(ctx)
	if err != nil {
		return err
	}
	for _, a := range atts {
		name := filepath.Base(filepath.Clean("/" + a.Name))
		if name == "/" || name == "." {
			e.shim.Warn("unpack_files", "skipping attachment with unusable name %q", a.Name)
			continue
		}
		data := a.Data
		if err := e.writeFile(ctx, filepath.Join(dir, name), func(s sink) error {
			_, err := s.Write(data)
			return err
		}); err != nil {
			return err
		}
	}
	return nil
}

func overlay(opts engine.OverlayOptions) handler {
	return func(e *executor, ctx context.Context) error {
		name := e.plan.DataFile
		src, err := e.source(name)
		if err != nil {
			return err
		}
		doc := e.primary()
		if err := doc.Overlay(ctx, src, opts); err != nil {
			// The data file has no binding position of its own.
			return openError(err, name, -1, "Overlay documents must open without a password")
		}
		if err := e.flattenOutput(doc); err != nil {
			return err
		}
		return e.writeDocument(ctx, doc, e.plan.Output.Path)
	}
}

// resave writes the input again. encrypt and decrypt differ only in the
// output options the parser accepted for them.
func (e *executor) resave(ctx context.Context) error {
	doc := e.primary()
	if err := e.flattenOutput(doc); err != nil {
		return err
	}
	return e.writeDocument(ctx, doc, e.plan.Output.Path)
}
