package pdfengine

import (
	"fmt"
	"math"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/aledsdavies/pdftl/core/engine"
)

// Catalog implements engine.Document.
func (d *document) Catalog() (*engine.Catalog, error) {
	root, err := d.ctx.Catalog()
	if err != nil {
		return nil, err
	}
	o := d.objects()
	c := &engine.Catalog{PDFVersion: d.ctx.VersionString(), Encrypted: d.encrypted}
	c.Entries = catalogEntries(o, root, engine.CatalogKeys)
	if vp, ok := o.dict(root["ViewerPreferences"]); ok {
		c.ViewerPreferences = catalogEntries(o, vp, engine.ViewerPreferenceKeys)
	}
	if mi, ok := o.dict(root["MarkInfo"]); ok {
		c.MarkInfo = catalogEntries(o, mi, engine.MarkInfoKeys)
	}

	dest := o.entry(root, "OpenAction")
	if action, ok := dest.(types.Dict); ok {
		dest = o.entry(action, "D")
	}
	if arr, ok := dest.(types.Array); ok && len(arr) >= 2 {
		pages, err := d.pageNumbers()
		if err != nil {
			return nil, err
		}
		c.OpenAction = openAction(o, arr, pages)
	}
	return c, nil
}

// catalogEntries reads the scalar values of keys from dict. Containers are
// skipped.
func catalogEntries(o objects, dict types.Dict, keys []engine.CatalogKey) []engine.CatalogEntry {
	var out []engine.CatalogEntry
	for _, k := range keys {
		var value string
		switch v := o.entry(dict, k.Name).(type) {
		case nil, types.Dict, types.Array:
			continue
		case types.Boolean:
			value = strconv.FormatBool(bool(v))
		case types.Name:
			value = string(v)
		case types.Integer, types.Float:
			n, _ := o.number(v)
			value = formatNumber(n)
		default:
			s, ok := o.text(v)
			if !ok {
				continue
			}
			value = s
		}
		out = append(out, engine.CatalogEntry{Key: k.Name, Value: value, Kind: k.Kind})
	}
	return out
}

func openAction(o objects, dest types.Array, pages map[int]int) *engine.OpenAction {
	oa := &engine.OpenAction{}
	switch v := dest[0].(type) {
	case types.IndirectRef:
		oa.Page = pages[v.ObjectNumber.Value()]
	case types.Integer:
		oa.Page = int(v) + 1
	}
	name, ok := o.deref(dest[1]).(types.Name)
	if oa.Page == 0 || !ok {
		return nil
	}
	oa.DestType = string(name)
	for _, arg := range dest[2:] {
		if n, ok := o.number(arg); ok {
			oa.Args = append(oa.Args, formatNumber(n))
		} else {
			oa.Args = append(oa.Args, "null")
		}
	}
	return oa
}

// UpdateCatalog implements engine.Document.
func (d *document) UpdateCatalog(u engine.Catalog) error {
	if u.OpenAction != nil {
		if err := d.checkPage(u.OpenAction.Page); err != nil {
			return err
		}
	}
	return d.modify(func(ctx *model.Context) error {
		root, err := ctx.Catalog()
		if err != nil {
			return err
		}
		for _, e := range u.Entries {
			root.Update(e.Key, catalogObject(e))
		}
		if err := mergeSubDict(ctx, root, "ViewerPreferences", u.ViewerPreferences); err != nil {
			return err
		}
		if err := mergeSubDict(ctx, root, "MarkInfo", u.MarkInfo); err != nil {
			return err
		}
		if oa := u.OpenAction; oa != nil {
			_, ref, _, err := ctx.PageDict(oa.Page, false)
			if err != nil {
				return err
			}
			if ref == nil {
				return fmt.Errorf("pdfengine: page %d has no object reference", oa.Page)
			}
			dest := types.Array{*ref, types.Name(oa.DestType)}
			for _, a := range oa.Args {
				dest = append(dest, argObject(a))
			}
			root.Update("OpenAction", dest)
		}
		return nil
	})
}

// mergeSubDict merges entries into the dictionary at root[key], creating
// it when absent.
func mergeSubDict(ctx *model.Context, root types.Dict, key string, entries []engine.CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	sub, ok := objects{ctx: ctx}.dict(root[key])
	if !ok {
		sub = types.NewDict()
		root.Update(key, sub)
	}
	for _, e := range entries {
		sub.Update(e.Key, catalogObject(e))
	}
	return nil
}

func catalogObject(e engine.CatalogEntry) types.Object {
	switch e.Kind {
	case engine.CatalogBool:
		return types.Boolean(e.Value == "true")
	case engine.CatalogName:
		return types.Name(e.Value)
	default:
		return textObject(e.Value)
	}
}

func argObject(s string) types.Object {
	if s == "null" {
		return nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return types.Integer(n)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return types.Float(f)
	}
	return nil
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SpinPage implements engine.Document. A content stream holding the
// rotation matrix is prepended to the page's contents.
func (d *document) SpinPage(page int, degrees float64) error {
	if err := d.checkPage(page); err != nil {
		return err
	}
	return d.modify(func(ctx *model.Context) error {
		pd, _, inh, err := ctx.PageDict(page, false)
		if err != nil {
			return err
		}
		box := types.NewRectangle(0, 0, 612, 792)
		if inh != nil {
			switch {
			case inh.CropBox != nil:
				box = inh.CropBox
			case inh.MediaBox != nil:
				box = inh.MediaBox
			}
		}
		sd, err := ctx.NewStreamDictForBuf([]byte(spinMatrix(box, degrees)))
		if err != nil {
			return err
		}
		if err := sd.Encode(); err != nil {
			return err
		}
		ref, err := ctx.IndRefForNewObject(*sd)
		if err != nil {
			return err
		}

		contents := types.Array{*ref}
		if cur, ok := pd.Find("Contents"); ok && cur != nil {
			if arr, ok := (objects{ctx: ctx}).array(cur); ok {
				contents = append(contents, arr...)
			} else {
				contents = append(contents, cur)
			}
		}
		pd.Update("Contents", contents)
		return nil
	})
}

// spinMatrix returns the cm operator rotating by degrees about the centre
// of box.
func spinMatrix(box *types.Rectangle, degrees float64) string {
	rad := degrees * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	x := (box.LL.X + box.UR.X) / 2
	y := (box.LL.Y + box.UR.Y) / 2
	tx := x - c*x + s*y
	ty := y - s*x - c*y
	return fmt.Sprintf("%s %s %s %s %s %s cm\n",
		matrixNumber(c), matrixNumber(s), matrixNumber(-s), matrixNumber(c), matrixNumber(tx), matrixNumber(ty))
}

func matrixNumber(v float64) string {
	v = math.Round(v*1e6) / 1e6
	if v == 0 {
		v = 0
	}
	return formatNumber(v)
}
