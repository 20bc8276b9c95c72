package pdfengine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/aledsdavies/pdftl/core/engine"
)

// maxNameTreeDepth bounds recursion through name tree /Kids.
const maxNameTreeDepth = 32

// Annotations implements engine.Document.
func (d *document) Annotations() (*engine.Annotations, error) {
	o := d.objects()
	a := &engine.Annotations{PageCount: d.ctx.PageCount}
	root, err := d.ctx.Catalog()
	if err != nil {
		return nil, err
	}
	if uri, ok := o.dict(root["URI"]); ok {
		a.URIBase, _ = o.text(uri["Base"])
	}
	err = d.eachAnnot(func(page int, annot types.Dict) {
		if s, _ := o.entry(annot, "Subtype").(types.Name); s != "Link" {
			return
		}
		action, ok := o.dict(annot["A"])
		if !ok {
			return
		}
		s, _ := o.entry(action, "S").(types.Name)
		if s != "URI" {
			return
		}
		link := engine.LinkAnnotation{Page: page, ActionSubtype: string(s)}
		link.URI, _ = o.text(action["URI"])
		link.Rect, _ = o.rect(annot["Rect"])
		a.Links = append(a.Links, link)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (d *document) eachAnnot(fn func(page int, annot types.Dict)) error {
	o := d.objects()
	for n := 1; n <= d.ctx.PageCount; n++ {
		page, _, _, err := d.ctx.PageDict(n, false)
		if err != nil {
			return err
		}
		annots, ok := o.array(page["Annots"])
		if !ok {
			continue
		}
		for _, item := range annots {
			if annot, ok := o.dict(item); ok {
				fn(n, annot)
			}
		}
	}
	return nil
}

// nameTree collects the leaf values of a name tree in key order.
func (o objects) nameTree(node types.Dict, depth int, fn func(key string, value types.Object)) {
	if depth > maxNameTreeDepth {
		return
	}
	if kids, ok := o.array(node["Kids"]); ok {
		for _, k := range kids {
			if kid, ok := o.dict(k); ok {
				o.nameTree(kid, depth+1, fn)
			}
		}
	}
	names, ok := o.array(node["Names"])
	if !ok {
		return
	}
	for i := 0; i+1 < len(names); i += 2 {
		key, _ := o.text(names[i])
		fn(key, names[i+1])
	}
}

func (d *document) embeddedFiles() (types.Dict, bool) {
	o := d.objects()
	root, err := d.ctx.Catalog()
	if err != nil {
		return nil, false
	}
	names, ok := o.dict(root["Names"])
	if !ok {
		return nil, false
	}
	return o.dict(names["EmbeddedFiles"])
}

// fileSpec reads one file specification and its embedded stream.
func (d *document) fileSpec(key string, obj types.Object) (engine.Attachment, error) {
	o := d.objects()
	spec, ok := o.dict(obj)
	if !ok {
		return engine.Attachment{}, fmt.Errorf("attachment %q has no file specification", key)
	}
	a := engine.Attachment{Name: key}
	for _, k := range []string{"UF", "F"} {
		if name, ok := o.text(spec[k]); ok && name != "" {
			a.Name = name
			break
		}
	}
	a.Description, _ = o.text(spec["Desc"])
	if rel, ok := o.entry(spec, "AFRelationship").(types.Name); ok {
		a.Relation = string(rel)
	}
	ef, ok := o.dict(spec["EF"])
	if !ok {
		return a, nil
	}
	for _, k := range []string{"UF", "F"} {
		sd, ok := o.entry(ef, k).(types.StreamDict)
		if !ok {
			continue
		}
		if err := sd.Decode(); err != nil {
			return a, fmt.Errorf("decoding attachment %s: %w", a.Name, err)
		}
		a.Data = sd.Content
		break
	}
	return a, nil
}

// Attachments implements engine.Document.
func (d *document) Attachments(ctx context.Context) ([]engine.Attachment, error) {
	var out []engine.Attachment
	var firstErr error
	if tree, ok := d.embeddedFiles(); ok {
		d.objects().nameTree(tree, 0, func(key string, value types.Object) {
			if firstErr != nil {
				return
			}
			a, err := d.fileSpec(key, value)
			if err != nil {
				firstErr = err
				return
			}
			out = append(out, a)
		})
	}
	if firstErr != nil {
		return nil, firstErr
	}

	o := d.objects()
	err := d.eachAnnot(func(page int, annot types.Dict) {
		if firstErr != nil || ctx.Err() != nil {
			return
		}
		if s, _ := o.entry(annot, "Subtype").(types.Name); s != "FileAttachment" {
			return
		}
		a, err := d.fileSpec("", annot["FS"])
		if err != nil {
			firstErr = err
			return
		}
		a.Page = page
		out = append(out, a)
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, firstErr
}

// Attach implements engine.Document. Files are embedded at document level
// through pdfcpu under their attachment names; descriptions and
// relationships are then written onto the new file specifications.
func (d *document) Attach(ctx context.Context, files []engine.AttachmentSpec) error {
	for _, f := range files {
		if f.Page != 0 {
			return &engine.UnsupportedError{Feature: engine.FeaturePageAttachments}
		}
	}
	if len(files) == 0 {
		return nil
	}

	dir, err := os.MkdirTemp("", "pdftl-attach-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	paths := make([]string, len(files))
	extra := make(map[string]engine.AttachmentSpec, len(files))
	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := f.Name
		if name == "" {
			name = filepath.Base(f.Path)
		}
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return err
		}
		sub := filepath.Join(dir, fmt.Sprintf("%d", i))
		if err := os.Mkdir(sub, 0o700); err != nil {
			return err
		}
		paths[i] = filepath.Join(sub, filepath.Base(name))
		if err := os.WriteFile(paths[i], data, 0o600); err != nil {
			return err
		}
		extra[filepath.Base(name)] = f
	}

	var out bytes.Buffer
	if err := api.AddAttachments(bytes.NewReader(d.data), &out, paths, false, d.eng.config()); err != nil {
		return fmt.Errorf("embedding files: %w", err)
	}
	next, err := d.eng.newDocument(d.name, out.Bytes())
	if err != nil {
		return err
	}
	d.data, d.ctx = next.data, next.ctx

	return d.modify(func(pctx *model.Context) error {
		tree, ok := d.embeddedFiles()
		if !ok {
			return nil
		}
		o := objects{ctx: pctx}
		o.nameTree(tree, 0, func(key string, value types.Object) {
			f, ok := extra[key]
			if !ok {
				return
			}
			spec, ok := o.dict(value)
			if !ok {
				return
			}
			if f.Description != "" {
				spec.Update("Desc", textObject(f.Description))
			}
			if f.Relation != "" {
				spec.Update("AFRelationship", types.Name(f.Relation))
			}
		})
		return nil
	})
}

// Overlay implements engine.Document. The source is opened through the
// engine, so encrypted sources are decrypted first, and handed to pdfcpu's
// PDF watermarking as a plain temporary file.
func (d *document) Overlay(ctx context.Context, src engine.Input, opts engine.OverlayOptions) error {
	opened, err := d.eng.Open(ctx, src)
	if err != nil {
		return err
	}
	defer opened.Close()
	srcDoc := opened.(*document)

	tmp, err := os.CreateTemp("", "pdftl-overlay-*.pdf")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(srcDoc.data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	file := tmp.Name()
	if !opts.Multi {
		file += ":1"
	}
	wm, err := pdfcpu.ParsePDFWatermarkDetails(file, "scalefactor:1 abs, rotation:0", opts.OnTop, types.POINTS)
	if err != nil {
		return fmt.Errorf("preparing overlay: %w", err)
	}

	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(d.data), &out, nil, wm, d.eng.config()); err != nil {
		return fmt.Errorf("applying overlay: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	next, err := d.eng.newDocument(d.name, out.Bytes())
	if err != nil {
		return err
	}
	d.data, d.ctx = next.data, next.ctx
	d.eng.logger.Debug("pdf overlay applied", "source", src.Name, "multi", opts.Multi, "on_top", opts.OnTop)
	return nil
}
