package fdf

import (
	"strconv"

	tokenizer "github.com/benoitkugler/pstokenizer"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/pdftext"
)

// The object model is just enough PDF to walk an FDF /Fields tree.
type (
	object any
	name   string
	text   []byte
	array  []object
	dict   map[name]object
	ref    struct{ num, gen int }
	null   struct{}
)

type reader struct {
	tk      tokenizer.Tokenizer
	objects map[ref]object
}

func malformed(format string, args ...any) *errors.Error {
	return errors.Syntax("malformed FDF: "+format, args...)
}

// ParseFDF reads an FDF file.
func ParseFDF(data []byte) ([]engine.FieldValue, error) {
	r := &reader{tk: *tokenizer.NewTokenizer(data), objects: map[ref]object{}}
	var top []object
	for {
		o, done, err := r.next()
		if err != nil {
			return nil, err
		}
		if done {
			break
		}
		top = append(top, o)
	}

	fields, ok := r.findFields(top)
	if !ok {
		return nil, malformed("no /FDF dictionary with /Fields")
	}
	var out []engine.FieldValue
	if err := r.walk(fields, "", &out, 0); err != nil {
		return nil, err
	}
	return out, nil
}

// next reads one top-level object. Indirect object definitions are stored
// by reference and also returned so the caller can search them.
func (r *reader) next() (object, bool, error) {
	tok, err := r.tk.PeekToken()
	if err != nil {
		return nil, false, malformed("%v", err)
	}
	if tok.Kind == tokenizer.EOF {
		return nil, true, nil
	}
	if tok.Kind == tokenizer.Other {
		_, _ = r.tk.NextToken()
		switch string(tok.Value) {
		case "trailer", "endobj", "xref":
			return nil, false, nil
		case "stream":
			return nil, false, malformed("streams are not supported")
		}
		return nil, false, nil
	}
	o, err := r.value()
	if err != nil {
		return nil, false, err
	}
	return o, false, nil
}

func (r *reader) value() (object, error) {
	tok, err := r.tk.NextToken()
	if err != nil {
		return nil, malformed("%v", err)
	}
	switch tok.Kind {
	case tokenizer.EOF:
		return nil, malformed("unexpected end of data")
	case tokenizer.Name:
		return name(pdftext.DecodeName(tok.Value)), nil
	case tokenizer.String, tokenizer.StringHex:
		return text(tok.Value), nil
	case tokenizer.Float:
		f, err := strconv.ParseFloat(string(tok.Value), 64)
		if err != nil {
			return nil, malformed("bad number %q", tok.Value)
		}
		return f, nil
	case tokenizer.Integer:
		return r.integer(tok)
	case tokenizer.StartArray:
		var a array
		for {
			peek, err := r.tk.PeekToken()
			if err != nil {
				return nil, malformed("%v", err)
			}
			if peek.Kind == tokenizer.EndArray {
				_, _ = r.tk.NextToken()
				return a, nil
			}
			v, err := r.value()
			if err != nil {
				return nil, err
			}
			a = append(a, v)
		}
	case tokenizer.StartDic:
		d := dict{}
		for {
			peek, err := r.tk.NextToken()
			if err != nil {
				return nil, malformed("%v", err)
			}
			if peek.Kind == tokenizer.EndDic {
				return d, nil
			}
			if peek.Kind != tokenizer.Name {
				return nil, malformed("dictionary key %q is not a name", peek.Value)
			}
			v, err := r.value()
			if err != nil {
				return nil, err
			}
			d[name(pdftext.DecodeName(peek.Value))] = v
		}
	case tokenizer.Other:
		switch string(tok.Value) {
		case "null":
			return null{}, nil
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return nil, malformed("unexpected token %q", tok.Value)
}

// integer reads a number, a reference (n g R) or an object definition
// (n g obj ... endobj).
func (r *reader) integer(tok tokenizer.Token) (object, error) {
	n, err := tok.Int()
	if err != nil {
		return nil, malformed("bad integer %q", tok.Value)
	}
	second, err := r.tk.PeekToken()
	if err != nil || second.Kind != tokenizer.Integer {
		return n, nil
	}
	third, err := r.tk.PeekPeekToken()
	if err != nil || third.Kind != tokenizer.Other {
		return n, nil
	}
	gen, _ := second.Int()
	switch string(third.Value) {
	case "R":
		_, _ = r.tk.NextToken()
		_, _ = r.tk.NextToken()
		return ref{n, gen}, nil
	case "obj":
		_, _ = r.tk.NextToken()
		_, _ = r.tk.NextToken()
		v, err := r.value()
		if err != nil {
			return nil, err
		}
		r.objects[ref{n, gen}] = v
		if end, err := r.tk.PeekToken(); err == nil && end.IsOther("endobj") {
			_, _ = r.tk.NextToken()
		}
		return v, nil
	}
	return n, nil
}

func (r *reader) resolve(o object) object {
	for i := 0; i < 32; i++ {
		rf, ok := o.(ref)
		if !ok {
			return o
		}
		o = r.objects[rf]
	}
	return nil
}

// findFields looks for the /FDF dictionary anywhere among the top-level
// objects and returns its /Fields array.
func (r *reader) findFields(objs []object) (array, bool) {
	for _, o := range objs {
		d, ok := r.resolve(o).(dict)
		if !ok {
			continue
		}
		if fdf, ok := r.resolve(d["FDF"]).(dict); ok {
			fields, ok := r.resolve(fdf["Fields"]).(array)
			return fields, ok
		}
		if root, ok := r.resolve(d["Root"]).(dict); ok {
			if fields, ok := r.findFields([]object{root}); ok {
				return fields, true
			}
		}
	}
	return nil, false
}

func (r *reader) walk(fields array, parent string, out *[]engine.FieldValue, depth int) error {
	if depth > 64 {
		return malformed("field tree nested too deeply")
	}
	for _, o := range fields {
		d, ok := r.resolve(o).(dict)
		if !ok {
			return malformed("field entry is not a dictionary")
		}
		full := parent
		if t, ok := r.resolve(d["T"]).(text); ok {
			partial := pdftext.Decode(t)
			if full == "" {
				full = partial
			} else {
				full += "." + partial
			}
		}
		if v, present := d["V"]; present {
			fv := engine.FieldValue{Name: full}
			switch v := r.resolve(v).(type) {
			case text:
				fv.Value = pdftext.Decode(v)
			case name:
				fv.Value = string(v)
			case array:
				for _, item := range v {
					switch s := r.resolve(item).(type) {
					case text:
						fv.Values = append(fv.Values, pdftext.Decode(s))
					case name:
						fv.Values = append(fv.Values, string(s))
					}
				}
				if len(fv.Values) > 0 {
					fv.Value = fv.Values[0]
				}
			case null, nil:
				fv.Null = true
			default:
				return malformed("field %q has an unsupported value", full)
			}
			if full == "" {
				return malformed("field value without a name")
			}
			*out = append(*out, fv)
		}
		if kids, ok := r.resolve(d["Kids"]).(array); ok {
			if err := r.walk(kids, full, out, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
