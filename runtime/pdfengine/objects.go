package pdfengine

import (
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/aledsdavies/pdftl/core/engine"
	"github.com/aledsdavies/pdftl/core/pdftext"
)

// objects reads values out of one context, following indirect references.
type objects struct {
	ctx *model.Context
}

func (o objects) deref(obj types.Object) types.Object {
	if obj == nil {
		return nil
	}
	v, err := o.ctx.Dereference(obj)
	if err != nil {
		return nil
	}
	return v
}

func (o objects) dict(obj types.Object) (types.Dict, bool) {
	d, ok := o.deref(obj).(types.Dict)
	return d, ok
}

func (o objects) array(obj types.Object) (types.Array, bool) {
	a, ok := o.deref(obj).(types.Array)
	return a, ok
}

func (o objects) entry(d types.Dict, key string) types.Object {
	v, ok := d.Find(key)
	if !ok {
		return nil
	}
	return o.deref(v)
}

func (o objects) number(obj types.Object) (float64, bool) {
	switch v := o.deref(obj).(type) {
	case types.Integer:
		return float64(v), true
	case types.Float:
		return float64(v), true
	}
	return 0, false
}

func (o objects) integer(obj types.Object) (int, bool) {
	n, ok := o.number(obj)
	return int(n), ok
}

// raw returns the bytes of a string object.
func (o objects) raw(obj types.Object) ([]byte, bool) {
	switch v := o.deref(obj).(type) {
	case types.StringLiteral:
		return pdftext.Unescape(string(v)), true
	case types.HexLiteral:
		b, err := hex.DecodeString(string(v))
		if err != nil {
			return nil, false
		}
		return b, true
	}
	return nil, false
}

// text decodes a text string or name into UTF-8.
func (o objects) text(obj types.Object) (string, bool) {
	if n, ok := o.deref(obj).(types.Name); ok {
		return string(n), true
	}
	b, ok := o.raw(obj)
	if !ok {
		return "", false
	}
	return pdftext.Decode(b), true
}

func (o objects) rect(obj types.Object) (engine.Rect, bool) {
	a, ok := o.array(obj)
	if !ok || len(a) != 4 {
		return engine.Rect{}, false
	}
	var r engine.Rect
	for i, v := range a {
		n, ok := o.number(v)
		if !ok {
			return engine.Rect{}, false
		}
		r[i] = n
	}
	return r, true
}

// textObject encodes s for writing: a literal string when it is printable
// ASCII, otherwise UTF-16BE.
func textObject(s string) types.Object {
	if pdftext.IsPlain(s) {
		return types.StringLiteral(pdftext.Escape(s))
	}
	return types.HexLiteral(hex.EncodeToString(pdftext.UTF16(s)))
}

func rectObject(r engine.Rect) types.Array {
	return types.NewRectangle(r[0], r[1], r[2], r[3]).Array()
}

func fromRectangle(r *types.Rectangle) engine.Rect {
	return engine.Rect{r.LL.X, r.LL.Y, r.UR.X, r.UR.Y}
}

// checkKeys reports a dictionary key that is not valid UTF-8.
func checkKeys(d types.Dict) error {
	for k := range d {
		if !utf8.ValidString(k) {
			return fmt.Errorf("dictionary key %q is not valid UTF-8", k)
		}
	}
	return nil
}

func normalizeRotation(deg int) int {
	return ((deg % 360) + 360) % 360
}

func isPasswordError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "password")
}
