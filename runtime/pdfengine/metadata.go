package pdfengine

import (
	"fmt"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/aledsdavies/pdftl/core/engine"
)

// maxOutlineItems bounds the outline walk on malformed documents.
const maxOutlineItems = 100000

var labelStyles = map[string]engine.NumStyle{
	"D": engine.StyleDecimal,
	"R": engine.StyleUpperRoman,
	"r": engine.StyleLowerRoman,
	"A": engine.StyleUpperAlpha,
	"a": engine.StyleLowerAlpha,
}

func styleName(s engine.NumStyle) (string, bool) {
	for k, v := range labelStyles {
		if v == s {
			return k, true
		}
	}
	return "", false
}

// Metadata implements engine.Document.
func (d *document) Metadata() (*engine.Metadata, error) {
	o := d.objects()
	m := &engine.Metadata{PageCount: d.ctx.PageCount}

	if d.ctx.Info != nil {
		if info, ok := o.dict(*d.ctx.Info); ok {
			keys := make([]string, 0, len(info))
			for k := range info {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				if v, ok := o.text(info[k]); ok {
					m.Info = append(m.Info, engine.InfoEntry{Key: k, Value: v})
				}
			}
		}
	}

	for i, v := range d.ctx.ID {
		if i > 1 {
			break
		}
		if b, ok := o.raw(v); ok {
			m.ID[i] = hexID(b)
		}
	}

	pages, err := d.pageNumbers()
	if err != nil {
		return nil, err
	}
	root, err := d.ctx.Catalog()
	if err != nil {
		return nil, err
	}
	if outlines, ok := o.dict(root["Outlines"]); ok {
		m.Bookmarks = d.bookmarks(outlines, pages)
	}

	for n := 1; n <= d.ctx.PageCount; n++ {
		_, _, inh, err := d.ctx.PageDict(n, false)
		if err != nil {
			return nil, err
		}
		pm := engine.PageMedia{Number: n}
		if inh != nil {
			pm.Rotation = normalizeRotation(inh.Rotate)
			if inh.MediaBox != nil {
				pm.Rect = fromRectangle(inh.MediaBox)
			}
			if inh.CropBox != nil {
				crop := fromRectangle(inh.CropBox)
				if crop != pm.Rect {
					pm.CropRect = &crop
				}
			}
		}
		m.PageMedia = append(m.PageMedia, pm)
	}

	if labels, ok := o.dict(root["PageLabels"]); ok {
		m.PageLabels = d.pageLabels(labels, 0)
	}
	return m, nil
}

// pageNumbers maps page object numbers to page numbers.
func (d *document) pageNumbers() (map[int]int, error) {
	pages := make(map[int]int, d.ctx.PageCount)
	for n := 1; n <= d.ctx.PageCount; n++ {
		_, ref, _, err := d.ctx.PageDict(n, false)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			pages[ref.ObjectNumber.Value()] = n
		}
	}
	return pages, nil
}

func (d *document) bookmarks(outlines types.Dict, pages map[int]int) []engine.Bookmark {
	o := d.objects()
	var out []engine.Bookmark
	seen := map[int]bool{}

	var walk func(first types.Object, level int)
	walk = func(first types.Object, level int) {
		for item := first; item != nil && len(out) < maxOutlineItems; {
			ref, isRef := item.(types.IndirectRef)
			if isRef {
				if seen[ref.ObjectNumber.Value()] {
					return
				}
				seen[ref.ObjectNumber.Value()] = true
			}
			dict, ok := o.dict(item)
			if !ok {
				return
			}
			title, _ := o.text(dict["Title"])
			out = append(out, engine.Bookmark{Title: title, Level: level, Page: d.destPage(dict, pages)})
			if kids, ok := dict.Find("First"); ok {
				walk(kids, level+1)
			}
			item, _ = dict.Find("Next")
		}
	}
	if first, ok := outlines.Find("First"); ok {
		walk(first, 1)
	}
	return out
}

// destPage resolves an outline item's explicit destination or GoTo action.
func (d *document) destPage(item types.Dict, pages map[int]int) int {
	o := d.objects()
	dest := o.entry(item, "Dest")
	if dest == nil {
		if action, ok := o.dict(item["A"]); ok {
			dest = o.entry(action, "D")
		}
	}
	arr, ok := dest.(types.Array)
	if !ok || len(arr) == 0 {
		return 0
	}
	switch v := arr[0].(type) {
	case types.IndirectRef:
		return pages[v.ObjectNumber.Value()]
	case types.Integer:
		// Remote-style destinations number pages from zero.
		return int(v) + 1
	}
	return 0
}

func (d *document) pageLabels(node types.Dict, depth int) []engine.PageLabel {
	o := d.objects()
	var out []engine.PageLabel
	if depth < 32 {
		if kids, ok := o.array(node["Kids"]); ok {
			for _, k := range kids {
				if kid, ok := o.dict(k); ok {
					out = append(out, d.pageLabels(kid, depth+1)...)
				}
			}
		}
	}
	nums, ok := o.array(node["Nums"])
	if !ok {
		return out
	}
	for i := 0; i+1 < len(nums); i += 2 {
		index, ok := o.integer(nums[i])
		if !ok {
			continue
		}
		dict, ok := o.dict(nums[i+1])
		if !ok {
			continue
		}
		label := engine.PageLabel{NewIndex: index + 1, Start: 1, Style: engine.StyleNone}
		if s, ok := o.entry(dict, "S").(types.Name); ok {
			if style, ok := labelStyles[string(s)]; ok {
				label.Style = style
			}
		}
		if st, ok := o.integer(dict["St"]); ok {
			label.Start = st
		}
		if p, ok := o.text(dict["P"]); ok {
			label.Prefix = p
		}
		out = append(out, label)
	}
	return out
}

// UpdateMetadata implements engine.Document.
func (d *document) UpdateMetadata(u engine.MetadataUpdate) error {
	for _, pm := range u.PageMedia {
		if err := d.checkPage(pm.Number); err != nil {
			return err
		}
	}
	for _, b := range u.Bookmarks {
		if b.Page != 0 {
			if err := d.checkPage(b.Page); err != nil {
				return err
			}
		}
	}
	return d.modify(func(ctx *model.Context) error {
		if err := updateInfo(ctx, u.Info); err != nil {
			return err
		}
		root, err := ctx.Catalog()
		if err != nil {
			return err
		}
		if u.Bookmarks != nil {
			if err := writeOutlines(ctx, root, u.Bookmarks); err != nil {
				return err
			}
		}
		if u.PageLabels != nil {
			writePageLabels(root, u.PageLabels)
		}
		for _, pm := range u.PageMedia {
			page, _, _, err := ctx.PageDict(pm.Number, false)
			if err != nil {
				return err
			}
			if pm.Rotation != nil {
				page.Update("Rotate", types.Integer(normalizeRotation(*pm.Rotation)))
			}
			if pm.Rect != nil {
				page.Update("MediaBox", rectObject(*pm.Rect))
			}
			if pm.CropRect != nil {
				page.Update("CropBox", rectObject(*pm.CropRect))
			}
		}
		return nil
	})
}

// updateInfo merges entries into the information dictionary. An empty
// value removes the key.
func updateInfo(ctx *model.Context, entries []engine.InfoEntry) error {
	if len(entries) == 0 {
		return nil
	}
	o := objects{ctx: ctx}
	var info types.Dict
	if ctx.Info != nil {
		info, _ = o.dict(*ctx.Info)
	}
	if info == nil {
		info = types.NewDict()
		ref, err := ctx.IndRefForNewObject(info)
		if err != nil {
			return fmt.Errorf("creating info dictionary: %w", err)
		}
		ctx.Info = ref
	}
	for _, e := range entries {
		if e.Value == "" {
			info.Delete(e.Key)
			continue
		}
		info.Update(e.Key, textObject(e.Value))
	}
	return nil
}

type outlineNode struct {
	mark engine.Bookmark
	kids []*outlineNode
}

// outlineTree nests a flat bookmark list by level. A level that jumps more
// than one deeper is attached to the nearest open parent.
func outlineTree(marks []engine.Bookmark) []*outlineNode {
	var roots []*outlineNode
	var stack []*outlineNode
	for _, m := range marks {
		n := &outlineNode{mark: m}
		level := max(m.Level, 1)
		if level-1 < len(stack) {
			stack = stack[:level-1]
		}
		if len(stack) == 0 {
			roots = append(roots, n)
		} else {
			parent := stack[len(stack)-1]
			parent.kids = append(parent.kids, n)
		}
		stack = append(stack, n)
	}
	return roots
}

func writeOutlines(ctx *model.Context, root types.Dict, marks []engine.Bookmark) error {
	root.Delete("Outlines")
	if len(marks) == 0 {
		return nil
	}
	pages := make(map[int]types.IndirectRef)
	for n := 1; n <= ctx.PageCount; n++ {
		_, ref, _, err := ctx.PageDict(n, false)
		if err != nil {
			return err
		}
		if ref != nil {
			pages[n] = *ref
		}
	}

	outlines := types.Dict{"Type": types.Name("Outlines")}
	outlinesRef, err := ctx.IndRefForNewObject(outlines)
	if err != nil {
		return err
	}

	var build func(nodes []*outlineNode, parent types.IndirectRef) (first, last *types.IndirectRef, count int, err error)
	build = func(nodes []*outlineNode, parent types.IndirectRef) (*types.IndirectRef, *types.IndirectRef, int, error) {
		refs := make([]*types.IndirectRef, len(nodes))
		dicts := make([]types.Dict, len(nodes))
		for i, n := range nodes {
			item := types.Dict{
				"Title":  textObject(n.mark.Title),
				"Parent": parent,
			}
			if ref, ok := pages[n.mark.Page]; ok {
				item["Dest"] = types.Array{ref, types.Name("Fit")}
			}
			ref, err := ctx.IndRefForNewObject(item)
			if err != nil {
				return nil, nil, 0, err
			}
			refs[i], dicts[i] = ref, item
		}
		count := len(nodes)
		for i, n := range nodes {
			if i > 0 {
				dicts[i]["Prev"] = *refs[i-1]
			}
			if i+1 < len(nodes) {
				dicts[i]["Next"] = *refs[i+1]
			}
			if len(n.kids) == 0 {
				continue
			}
			first, last, kids, err := build(n.kids, *refs[i])
			if err != nil {
				return nil, nil, 0, err
			}
			dicts[i]["First"] = *first
			dicts[i]["Last"] = *last
			dicts[i]["Count"] = types.Integer(kids)
			count += kids
		}
		return refs[0], refs[len(refs)-1], count, nil
	}

	first, last, count, err := build(outlineTree(marks), *outlinesRef)
	if err != nil {
		return err
	}
	outlines["First"] = *first
	outlines["Last"] = *last
	outlines["Count"] = types.Integer(count)
	root["Outlines"] = *outlinesRef
	return nil
}

func writePageLabels(root types.Dict, labels []engine.PageLabel) {
	root.Delete("PageLabels")
	if len(labels) == 0 {
		return
	}
	sorted := append([]engine.PageLabel(nil), labels...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].NewIndex < sorted[j].NewIndex })

	nums := make(types.Array, 0, 2*len(sorted))
	for _, l := range sorted {
		dict := types.Dict{"Type": types.Name("PageLabel")}
		if s, ok := styleName(l.Style); ok {
			dict["S"] = types.Name(s)
		}
		if l.Start > 1 {
			dict["St"] = types.Integer(l.Start)
		}
		if l.Prefix != "" {
			dict["P"] = textObject(l.Prefix)
		}
		nums = append(nums, types.Integer(l.NewIndex-1), dict)
	}
	root["PageLabels"] = types.Dict{"Nums": nums}
}
