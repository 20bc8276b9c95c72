package resolver

import (
	"math"

	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/plan"
)

// CheckHandles reports the first atom naming a handle that no input binds.
// It needs no open documents, so it runs before anything is opened.
func CheckHandles(p *plan.Plan) error {
	check := func(a plan.RangeAtom) error {
		if a.Handle == "" {
			return nil
		}
		if _, ok := p.Binding(a.Handle); !ok {
			return errors.Range("handle %s is not bound to an input", a.Handle).At(a.Position, a.Raw).
				WithHint("Bind it before the operator, e.g. %s=file.pdf", a.Handle)
		}
		return nil
	}
	for _, e := range p.Ranges {
		for _, a := range e.Atoms {
			if err := check(a); err != nil {
				return err
			}
		}
	}
	if p.Move != nil {
		for _, a := range p.Move.Source.Atoms {
			if err := check(a); err != nil {
				return err
			}
		}
		if err := check(p.Move.Target); err != nil {
			return err
		}
	}
	for _, s := range p.Spins {
		for _, a := range s.Range.Atoms {
			if err := check(a); err != nil {
				return err
			}
		}
	}
	return nil
}

func nonEmpty(refs []plan.ResolvedPageRef) ([]plan.ResolvedPageRef, error) {
	if len(refs) == 0 {
		return nil, errors.Range("no pages selected")
	}
	return refs, nil
}

// groups resolves each range expression separately. With no expressions
// every input forms one group, in binding order.
func (r *Resolver) groups(ranges []plan.RangeExpr, inputs []plan.Handle) ([][]plan.ResolvedPageRef, error) {
	var out [][]plan.ResolvedPageRef
	if len(ranges) == 0 {
		for _, h := range inputs {
			refs, err := r.All(h)
			if err != nil {
				return nil, err
			}
			out = append(out, refs)
		}
		return out, nil
	}
	for _, e := range ranges {
		refs, err := r.Expr(e)
		if err != nil {
			return nil, err
		}
		out = append(out, refs)
	}
	return out, nil
}

// Cat concatenates the pages of ranges, or of all inputs when ranges is
// empty.
func (r *Resolver) Cat(ranges []plan.RangeExpr, inputs []plan.Handle) ([]plan.ResolvedPageRef, error) {
	gs, err := r.groups(ranges, inputs)
	if err != nil {
		return nil, err
	}
	var out []plan.ResolvedPageRef
	for _, g := range gs {
		out = append(out, g...)
	}
	return nonEmpty(out)
}

// Shuffle interleaves the groups round-robin. A group that runs out is
// skipped while the longer ones continue.
func (r *Resolver) Shuffle(ranges []plan.RangeExpr, inputs []plan.Handle) ([]plan.ResolvedPageRef, error) {
	gs, err := r.groups(ranges, inputs)
	if err != nil {
		return nil, err
	}
	var out []plan.ResolvedPageRef
	for i := 0; ; i++ {
		took := false
		for _, g := range gs {
			if i < len(g) {
				out = append(out, g[i])
				took = true
			}
		}
		if !took {
			break
		}
	}
	return nonEmpty(out)
}

// Rotate returns every page of h in order. Pages selected by ranges carry
// their new rotation; the rest keep theirs.
func (r *Resolver) Rotate(ranges []plan.RangeExpr, h plan.Handle) ([]plan.ResolvedPageRef, error) {
	all, err := r.All(h)
	if err != nil {
		return nil, err
	}
	for _, e := range ranges {
		for _, a := range e.Atoms {
			refs, err := r.Atom(a)
			if err != nil {
				return nil, err
			}
			for _, ref := range refs {
				if ref.Handle != h {
					return nil, errors.Range("rotate only changes pages of %s, not %s", h, ref.Handle).At(a.Position, a.Raw)
				}
				all[ref.Page-1].Rotation = ref.Rotation
			}
		}
	}
	return nonEmpty(all)
}

// Burst returns one single-page group per page of h.
func (r *Resolver) Burst(h plan.Handle) ([][]plan.ResolvedPageRef, error) {
	all, err := r.All(h)
	if err != nil {
		return nil, err
	}
	if _, err := nonEmpty(all); err != nil {
		return nil, err
	}
	out := make([][]plan.ResolvedPageRef, len(all))
	for i, ref := range all {
		out[i] = []plan.ResolvedPageRef{ref}
	}
	return out, nil
}

// Split returns one group per range expression, dropping groups that
// resolve to no pages. Without ranges it behaves like Burst on h.
func (r *Resolver) Split(ranges []plan.RangeExpr, h plan.Handle) ([][]plan.ResolvedPageRef, error) {
	if len(ranges) == 0 {
		return r.Burst(h)
	}
	gs, err := r.groups(ranges, nil)
	if err != nil {
		return nil, err
	}
	var out [][]plan.ResolvedPageRef
	for _, g := range gs {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	if len(out) == 0 {
		return nil, errors.Range("no pages selected")
	}
	return out, nil
}

// Move returns the pages of h with the source pages taken out and
// reinserted next to the target page.
func (r *Resolver) Move(spec *plan.MoveSpec, h plan.Handle) ([]plan.ResolvedPageRef, error) {
	moved, err := r.Expr(spec.Source)
	if err != nil {
		return nil, err
	}
	if len(moved) == 0 {
		return nil, errors.Range("no pages selected to move")
	}
	targetRefs, err := r.Atom(spec.Target)
	if err != nil {
		return nil, err
	}
	target := targetRefs[0]

	isMoved := map[int]bool{}
	for _, ref := range moved {
		if ref.Handle != h {
			return nil, errors.Range("move only reorders pages of %s, not %s", h, ref.Handle).
				At(spec.Source.Atoms[0].Position, spec.Source.Atoms[0].Raw)
		}
		isMoved[ref.Page] = true
	}
	if target.Handle != h {
		return nil, errors.Range("move target must be a page of %s", h).At(spec.Target.Position, spec.Target.Raw)
	}
	if isMoved[target.Page] {
		return nil, errors.Range("move target page %d is one of the pages being moved", target.Page).
			At(spec.Target.Position, spec.Target.Raw)
	}

	all, err := r.All(h)
	if err != nil {
		return nil, err
	}
	var out []plan.ResolvedPageRef
	for _, ref := range all {
		if isMoved[ref.Page] {
			continue
		}
		if ref.Page == target.Page && spec.Where == plan.PlaceBefore {
			out = append(out, moved...)
		}
		out = append(out, ref)
		if ref.Page == target.Page && spec.Where == plan.PlaceAfter {
			out = append(out, moved...)
		}
	}
	return out, nil
}

// PageSpin is the total angle, in degrees counter-clockwise, that one page
// is spun by.
type PageSpin struct {
	Page  int
	Angle float64
}

// Spin adds up the angles each page of h receives from specs and returns
// the pages in document order. A page named by several specs, or several
// times in one, turns by the sum. Pages whose sum is a whole number of
// turns are left out.
func (r *Resolver) Spin(specs []plan.SpinSpec, h plan.Handle) ([]PageSpin, error) {
	angles := map[int]float64{}
	for _, s := range specs {
		refs, err := r.Expr(s.Range)
		if err != nil {
			return nil, err
		}
		for _, ref := range refs {
			if ref.Handle != h {
				a := s.Range.Atoms[0]
				return nil, errors.Range("spin only turns pages of %s, not %s", h, ref.Handle).At(a.Position, a.Raw)
			}
			angles[ref.Page] += s.Angle
		}
	}
	if len(angles) == 0 {
		return nil, errors.Range("no pages selected")
	}

	all, err := r.All(h)
	if err != nil {
		return nil, err
	}
	var out []PageSpin
	for _, ref := range all {
		angle, ok := angles[ref.Page]
		if !ok || math.Mod(angle, 360) == 0 {
			continue
		}
		out = append(out, PageSpin{Page: ref.Page, Angle: angle})
	}
	return out, nil
}
