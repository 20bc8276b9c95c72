package pdfengine

import (
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/aledsdavies/pdftl/core/engine"
)

// maxFieldDepth bounds recursion through /Kids.
const maxFieldDepth = 64

var fieldTypes = map[string]engine.FieldType{
	"Tx":  engine.FieldText,
	"Btn": engine.FieldButton,
	"Ch":  engine.FieldChoice,
	"Sig": engine.FieldSignature,
}

// inherited holds the attributes a field takes from its ancestors.
type inherited struct {
	name  string
	ftype string
	flags int
	value types.Object
	quad  int
}

// terminal is one terminal field with the dictionaries that carry its
// widgets.
type terminal struct {
	name    string
	dict    types.Dict
	widgets []types.Dict
	attrs   inherited
}

func isWidget(d types.Dict) bool {
	s, ok := d["Subtype"].(types.Name)
	return ok && s == "Widget"
}

// walkFields lists terminal fields in document order.
func walkFields(ctx *model.Context) []terminal {
	af := acroForm(ctx)
	if af == nil {
		return nil
	}
	o := objects{ctx: ctx}
	roots, ok := o.array(af["Fields"])
	if !ok {
		return nil
	}

	var out []terminal
	seen := map[int]bool{}
	var walk func(obj types.Object, parent inherited, depth int)
	walk = func(obj types.Object, parent inherited, depth int) {
		if ref, ok := obj.(types.IndirectRef); ok {
			if seen[ref.ObjectNumber.Value()] {
				return
			}
			seen[ref.ObjectNumber.Value()] = true
		}
		dict, ok := o.dict(obj)
		if !ok || depth > maxFieldDepth {
			return
		}
		attrs := parent
		if t, ok := o.text(dict["T"]); ok {
			if attrs.name == "" {
				attrs.name = t
			} else {
				attrs.name += "." + t
			}
		}
		if ft, ok := o.entry(dict, "FT").(types.Name); ok {
			attrs.ftype = string(ft)
		}
		if ff, ok := o.integer(dict["Ff"]); ok {
			attrs.flags = ff
		}
		if v := o.entry(dict, "V"); v != nil {
			attrs.value = v
		}
		if q, ok := o.integer(dict["Q"]); ok {
			attrs.quad = q
		}

		var fieldKids []types.Object
		var widgets []types.Dict
		if kids, ok := o.array(dict["Kids"]); ok {
			for _, k := range kids {
				kd, ok := o.dict(k)
				if !ok {
					continue
				}
				if _, named := kd.Find("T"); !named && isWidget(kd) {
					widgets = append(widgets, kd)
					continue
				}
				fieldKids = append(fieldKids, k)
			}
		}
		if len(fieldKids) > 0 {
			for _, k := range fieldKids {
				walk(k, attrs, depth+1)
			}
			return
		}
		if isWidget(dict) {
			widgets = append(widgets, dict)
		}
		out = append(out, terminal{name: attrs.name, dict: dict, widgets: widgets, attrs: attrs})
	}
	for _, r := range roots {
		walk(r, inherited{}, 0)
	}
	return out
}

// Fields implements engine.Document.
func (d *document) Fields() ([]engine.Field, error) {
	o := d.objects()
	terms := walkFields(d.ctx)
	fields := make([]engine.Field, 0, len(terms))
	count := map[string]int{}
	for _, t := range terms {
		f := engine.Field{
			Name:          t.name,
			Type:          fieldTypes[t.attrs.ftype],
			Flags:         t.attrs.flags,
			Justification: t.attrs.quad,
		}
		if alt, ok := o.text(t.dict["TU"]); ok {
			f.AltName = alt
		}
		if n, ok := o.integer(t.dict["MaxLen"]); ok {
			f.MaxLength = n
		}
		d.readValue(&f, t.attrs.value)
		switch f.Type {
		case engine.FieldButton:
			f.StateOptions = buttonStates(o, t.widgets)
		case engine.FieldChoice:
			f.StateOptions, f.StateDisplays = choiceOptions(o, t.dict)
		}
		if err := checkKeys(t.dict); err != nil {
			f.Issue = err
		}
		fields = append(fields, f)
		count[t.name]++
	}

	var dups []string
	for name, n := range count {
		if n > 1 {
			dups = append(dups, name)
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return fields, &engine.DuplicateNameError{Names: dups}
	}
	return fields, nil
}

func (d *document) readValue(f *engine.Field, v types.Object) {
	o := d.objects()
	if arr, ok := v.(types.Array); ok {
		for _, item := range arr {
			if s, ok := o.text(item); ok {
				f.Values = append(f.Values, s)
			}
		}
		if len(f.Values) > 0 {
			f.Value = f.Values[0]
		}
		return
	}
	if s, ok := o.text(v); ok {
		f.Value = s
	}
}

// buttonStates lists the normal appearance states of every widget.
func buttonStates(o objects, widgets []types.Dict) []string {
	set := map[string]bool{}
	for _, w := range widgets {
		ap, ok := o.dict(w["AP"])
		if !ok {
			continue
		}
		n, ok := o.dict(ap["N"])
		if !ok {
			continue
		}
		for k := range n {
			set[k] = true
		}
	}
	states := make([]string, 0, len(set))
	for k := range set {
		states = append(states, k)
	}
	sort.Strings(states)
	return states
}

// choiceOptions reads /Opt entries, which are either a string or an
// [export display] pair.
func choiceOptions(o objects, dict types.Dict) (exports, displays []string) {
	opts, ok := o.array(dict["Opt"])
	if !ok {
		return nil, nil
	}
	for _, item := range opts {
		if pair, ok := o.array(item); ok && len(pair) == 2 {
			export, _ := o.text(pair[0])
			display, _ := o.text(pair[1])
			exports = append(exports, export)
			displays = append(displays, display)
			continue
		}
		if s, ok := o.text(item); ok {
			exports = append(exports, s)
			displays = append(displays, s)
		}
	}
	return exports, displays
}

// FillFields implements engine.Document. Appearance streams are not
// regenerated; NeedAppearances asks viewers to rebuild them.
func (d *document) FillFields(values []engine.FieldValue, opts engine.FillOptions) error {
	if opts.Flatten {
		return &engine.UnsupportedError{Feature: engine.FeatureFlatten}
	}
	return d.modify(func(ctx *model.Context) error {
		byName := make(map[string]engine.FieldValue, len(values))
		for _, v := range values {
			byName[v.Name] = v
		}
		filled := map[string]bool{}
		for _, t := range walkFields(ctx) {
			v, ok := byName[t.name]
			if !ok || (opts.FirstOnly && filled[t.name]) {
				continue
			}
			filled[t.name] = true
			setValue(objects{ctx: ctx}, t, v)
			if opts.LockFields {
				t.dict.Update("Ff", types.Integer(t.attrs.flags|engine.FlagReadOnly))
			}
		}
		if af := acroForm(ctx); af != nil && opts.NeedAppearances {
			af.Update("NeedAppearances", types.Boolean(true))
		}
		return nil
	})
}

func setValue(o objects, t terminal, v engine.FieldValue) {
	if v.Null {
		t.dict.Delete("V")
		if t.attrs.ftype == "Btn" {
			setAppearanceState(o, t.widgets, "Off")
		}
		return
	}
	switch {
	case t.attrs.ftype == "Btn":
		state := v.Value
		if state == "" {
			state = "Off"
		}
		t.dict.Update("V", types.Name(state))
		setAppearanceState(o, t.widgets, state)
	case len(v.Values) > 1:
		arr := make(types.Array, len(v.Values))
		for i, s := range v.Values {
			arr[i] = textObject(s)
		}
		t.dict.Update("V", arr)
	case len(v.Values) == 1:
		t.dict.Update("V", textObject(v.Values[0]))
	default:
		t.dict.Update("V", textObject(v.Value))
	}
}

// setAppearanceState selects state on widgets that have it and turns the
// others off, which is how radio groups keep one button on.
func setAppearanceState(o objects, widgets []types.Dict, state string) {
	for _, w := range widgets {
		as := "Off"
		if ap, ok := o.dict(w["AP"]); ok {
			if n, ok := o.dict(ap["N"]); ok {
				if _, has := n[state]; has {
					as = state
				}
			}
		} else {
			as = state
		}
		w.Update("AS", types.Name(as))
	}
}

// lockAll sets ReadOnly on every terminal field.
func lockAll(ctx *model.Context) error {
	for _, t := range walkFields(ctx) {
		t.dict.Update("Ff", types.Integer(t.attrs.flags|engine.FlagReadOnly))
	}
	return nil
}
