// Package resolver expands page range expressions into concrete page
// references against the live page counts of open documents.
package resolver

import (
	"fmt"

	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/invariant"
	"github.com/aledsdavies/pdftl/core/plan"
)

// CompassMode decides how north, east, south and west combine with a
// page's existing rotation.
type CompassMode int

const (
	// CompassRelative adds every compass word to the current rotation.
	CompassRelative CompassMode = iota
	// CompassAbsolute makes north/east/south/west replace the rotation, as
	// pdftk does. left, right and down stay relative.
	CompassAbsolute
)

// ParseCompassMode maps the --compass flag value.
func ParseCompassMode(s string) (CompassMode, error) {
	switch s {
	case "", "relative":
		return CompassRelative, nil
	case "pdftk", "absolute":
		return CompassAbsolute, nil
	}
	return CompassRelative, fmt.Errorf("unknown compass mode %q (want relative or pdftk)", s)
}

// Config holds resolver configuration.
type Config struct {
	Compass CompassMode
}

// Source is the part of an open document the resolver reads.
type Source interface {
	PageCount() int
	PageRotation(page int) (int, error)
}

// Resolver resolves atoms for one plan.
type Resolver struct {
	config  Config
	sources map[plan.Handle]Source
	def     plan.Handle
}

// New returns a resolver over sources. Atoms without a handle refer to def.
func New(config Config, sources map[plan.Handle]Source, def plan.Handle) *Resolver {
	invariant.NotNil(sources, "sources")
	return &Resolver{config: config, sources: sources, def: def}
}

var compassDegrees = map[plan.Rotation]int{
	plan.RotNorth: 0,
	plan.RotEast:  90,
	plan.RotSouth: 180,
	plan.RotWest:  270,
	plan.RotLeft:  -90,
	plan.RotRight: 90,
	plan.RotDown:  180,
}

// ApplyRotation returns the rotation a page ends up with when rot is
// applied to a page currently rotated by current degrees.
func ApplyRotation(current int, rot plan.Rotation, mode CompassMode) int {
	if rot == plan.RotNone {
		return normalize(current)
	}
	deg := compassDegrees[rot]
	if mode == CompassAbsolute {
		switch rot {
		case plan.RotNorth, plan.RotEast, plan.RotSouth, plan.RotWest:
			return deg
		}
	}
	return normalize(current + deg)
}

func normalize(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

func (r *Resolver) source(a plan.RangeAtom) (plan.Handle, Source, error) {
	h := a.Handle
	if h == "" {
		h = r.def
	}
	src, ok := r.sources[h]
	if !ok {
		return h, nil, errors.Range("handle %s is not bound to an input", h).At(a.Position, a.Raw)
	}
	return h, src, nil
}

// index converts a page reference to a 1-based page number and checks it.
func index(ref plan.PageRef, count int, a plan.RangeAtom) (int, error) {
	var n int
	switch ref.Kind {
	case plan.PageAbsolute:
		n = ref.N
	case plan.PageEnd:
		n = count
	case plan.PageFromEnd:
		n = count - ref.N + 1
	default:
		invariant.Invariant(false, "index called with omitted page")
	}
	if n < 1 || n > count {
		return 0, errors.Range("page %s is out of range (document has %d pages)", ref, count).At(a.Position, a.Raw)
	}
	return n, nil
}

// pages expands the start/end of a to page numbers, in order.
func pages(a plan.RangeAtom, count int) ([]int, error) {
	if a.Start.Kind == plan.PageOmitted && a.End.Kind == plan.PageOmitted {
		seq := make([]int, count)
		for i := range seq {
			seq[i] = i + 1
		}
		return seq, nil
	}

	startRef, endRef := a.Start, a.End
	if startRef.Kind == plan.PageOmitted {
		startRef = plan.PageRef{Kind: plan.PageAbsolute, N: 1}
	}
	if endRef.Kind == plan.PageOmitted {
		endRef = startRef
	}
	start, err := index(startRef, count, a)
	if err != nil {
		return nil, err
	}
	end, err := index(endRef, count, a)
	if err != nil {
		return nil, err
	}

	var seq []int
	if start <= end {
		for p := start; p <= end; p++ {
			seq = append(seq, p)
		}
	} else {
		for p := start; p >= end; p-- {
			seq = append(seq, p)
		}
	}
	return seq, nil
}

func keep(q plan.Qualifier, page int) bool {
	switch q {
	case plan.QualOdd:
		return page%2 == 1
	case plan.QualEven:
		return page%2 == 0
	default:
		return true
	}
}

func filter(seq []int, q plan.Qualifier) []int {
	if q == plan.QualNone {
		return seq
	}
	out := seq[:0:0]
	for _, p := range seq {
		if keep(q, p) {
			out = append(out, p)
		}
	}
	return out
}

// Atom resolves one range atom. Parity is evaluated on the absolute page
// number, so a reversed range keeps the same pages as its forward twin.
func (r *Resolver) Atom(a plan.RangeAtom) ([]plan.ResolvedPageRef, error) {
	h, src, err := r.source(a)
	if err != nil {
		return nil, err
	}
	count := src.PageCount()

	seq, err := pages(a, count)
	if err != nil {
		return nil, err
	}
	seq = filter(seq, a.Qualifier)

	if len(a.Excludes) > 0 {
		excluded := map[int]bool{}
		for _, ex := range a.Excludes {
			ex.Position, ex.Raw = a.Position, a.Raw
			exSeq, err := pages(ex, count)
			if err != nil {
				return nil, err
			}
			for _, p := range filter(exSeq, ex.Qualifier) {
				excluded[p] = true
			}
		}
		kept := seq[:0:0]
		for _, p := range seq {
			if !excluded[p] {
				kept = append(kept, p)
			}
		}
		seq = kept
	}

	refs := make([]plan.ResolvedPageRef, 0, len(seq))
	for _, p := range seq {
		cur, err := src.PageRotation(p)
		if err != nil {
			return nil, errors.Internal(err, "reading rotation of page %d of %s", p, h)
		}
		refs = append(refs, plan.ResolvedPageRef{
			Handle:   h,
			Page:     p,
			Rotation: ApplyRotation(cur, a.Rotation, r.config.Compass),
		})
	}
	return refs, nil
}

// Expr resolves every atom of e in order.
func (r *Resolver) Expr(e plan.RangeExpr) ([]plan.ResolvedPageRef, error) {
	var out []plan.ResolvedPageRef
	for _, a := range e.Atoms {
		refs, err := r.Atom(a)
		if err != nil {
			return nil, err
		}
		out = append(out, refs...)
	}
	return out, nil
}

// All returns every page of h with its current rotation.
func (r *Resolver) All(h plan.Handle) ([]plan.ResolvedPageRef, error) {
	return r.Atom(plan.RangeAtom{Handle: h})
}
