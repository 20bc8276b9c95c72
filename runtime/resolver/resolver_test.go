package resolver

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/pdftl/core/errors"
	"github.com/aledsdavies/pdftl/core/plan"
	"github.com/aledsdavies/pdftl/runtime/parser"
)

type fakeDoc struct {
	rotations []int
}

func doc(n int) *fakeDoc { return &fakeDoc{rotations: make([]int, n)} }

func (d *fakeDoc) PageCount() int { return len(d.rotations) }

func (d *fakeDoc) PageRotation(page int) (int, error) {
	if page < 1 || page > len(d.rotations) {
		return 0, fmt.Errorf("page %d out of range", page)
	}
	return d.rotations[page-1], nil
}

// resolveArgs parses "cat <ranges>" against the given documents and returns
// the pages as strings like "A3" or "B1@90".
func resolveArgs(t *testing.T, docs map[plan.Handle]Source, ranges ...string) ([]string, error) {
	t.Helper()
	args := []string{}
	for _, h := range []plan.Handle{"A", "B", "C"} {
		if _, ok := docs[h]; ok {
			args = append(args, fmt.Sprintf("%s=%s.pdf", h, h))
		}
	}
	args = append(args, "cat")
	args = append(args, ranges...)
	args = append(args, "output", "out.pdf")

	p, err := parser.ParseArgs(args)
	require.NoError(t, err)
	if err := CheckHandles(p); err != nil {
		return nil, err
	}

	var inputs []plan.Handle
	for _, b := range p.Inputs {
		inputs = append(inputs, b.Handle)
	}
	refs, err := New(Config{}, docs, p.DefaultHandle()).Cat(p.Ranges, inputs)
	if err != nil {
		return nil, err
	}
	return names(refs), nil
}

func names(refs []plan.ResolvedPageRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.String()
	}
	return out
}

func TestScenarios(t *testing.T) {
	tests := []struct {
		name   string
		docs   map[plan.Handle]Source
		ranges []string
		want   []string
	}{
		{
			name:   "concatenate two documents",
			docs:   map[plan.Handle]Source{"A": doc(3), "B": doc(2)},
			ranges: []string{"A1-3", "B1-2"},
			want:   []string{"A1", "A2", "A3", "B1", "B2"},
		},
		{
			name:   "reversed range",
			docs:   map[plan.Handle]Source{"A": doc(5)},
			ranges: []string{"A5-1"},
			want:   []string{"A5", "A4", "A3", "A2", "A1"},
		},
		{
			name:   "odd pages",
			docs:   map[plan.Handle]Source{"A": doc(6)},
			ranges: []string{"Aodd"},
			want:   []string{"A1", "A3", "A5"},
		},
		{
			name:   "even pages",
			docs:   map[plan.Handle]Source{"A": doc(6)},
			ranges: []string{"Aeven"},
			want:   []string{"A2", "A4", "A6"},
		},
		{
			name:   "no ranges means every page of every input",
			docs:   map[plan.Handle]Source{"A": doc(2), "B": doc(1)},
			ranges: nil,
			want:   []string{"A1", "A2", "B1"},
		},
		{
			name:   "end-relative pages",
			docs:   map[plan.Handle]Source{"A": doc(5)},
			ranges: []string{"r2-end"},
			want:   []string{"A4", "A5"},
		},
		{
			name:   "reversed even keeps absolute parity",
			docs:   map[plan.Handle]Source{"A": doc(6)},
			ranges: []string{"6-1even"},
			want:   []string{"A6", "A4", "A2"},
		},
		{
			name:   "exclusions",
			docs:   map[plan.Handle]Source{"A": doc(8)},
			ranges: []string{"1-end~3-5~even"},
			want:   []string{"A1", "A7"},
		},
		{
			name:   "single page with rotation",
			docs:   map[plan.Handle]Source{"A": doc(3)},
			ranges: []string{"2east", "3left"},
			want:   []string{"A2@90", "A3@270"},
		},
		{
			name:   "comma separated atoms",
			docs:   map[plan.Handle]Source{"A": doc(3), "B": doc(3)},
			ranges: []string{"A3,B1-2"},
			want:   []string{"A3", "B1", "B2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveArgs(t, tt.docs, tt.ranges...)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("pages mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRangeErrors(t *testing.T) {
	tests := []struct {
		name   string
		docs   map[plan.Handle]Source
		ranges []string
		msg    string
	}{
		{"page zero", map[plan.Handle]Source{"A": doc(3)}, []string{"0"}, "page 0 is out of range"},
		{"past the end", map[plan.Handle]Source{"A": doc(3)}, []string{"2-4"}, "page 4 is out of range"},
		{"end-relative before the start", map[plan.Handle]Source{"A": doc(3)}, []string{"r4"}, "page r4 is out of range"},
		{"unbound handle", map[plan.Handle]Source{"A": doc(3)}, []string{"B1"}, "handle B is not bound"},
		{"empty after filtering", map[plan.Handle]Source{"A": doc(1)}, []string{"even"}, "no pages selected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveArgs(t, tt.docs, tt.ranges...)
			require.Error(t, err)
			if !errors.IsKind(err, errors.KindRange) {
				t.Fatalf("expected RangeError, got %v", err)
			}
			require.Contains(t, err.Error(), tt.msg)
		})
	}
}

func atom(start, end int, q plan.Qualifier) plan.RangeAtom {
	a := plan.RangeAtom{Qualifier: q}
	if start > 0 {
		a.Start = plan.PageRef{Kind: plan.PageAbsolute, N: start}
	}
	if end > 0 {
		a.End = plan.PageRef{Kind: plan.PageAbsolute, N: end}
	}
	return a
}

func pagesOf(t *testing.T, r *Resolver, a plan.RangeAtom) []int {
	t.Helper()
	refs, err := r.Atom(a)
	require.NoError(t, err)
	out := make([]int, len(refs))
	for i, ref := range refs {
		out[i] = ref.Page
	}
	return out
}

func TestOmittedBoundsCoverDocument(t *testing.T) {
	for n := 1; n <= 9; n++ {
		r := New(Config{}, map[plan.Handle]Source{"A": doc(n)}, "A")
		got := pagesOf(t, r, plan.RangeAtom{})
		want := make([]int, n)
		for i := range want {
			want[i] = i + 1
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("n=%d (-want +got):\n%s", n, diff)
		}
	}
}

func TestReversalIsExactReverse(t *testing.T) {
	const n = 9
	r := New(Config{}, map[plan.Handle]Source{"A": doc(n)}, "A")
	for _, q := range []plan.Qualifier{plan.QualNone, plan.QualOdd, plan.QualEven} {
		for lo := 1; lo <= n; lo++ {
			for hi := lo + 1; hi <= n; hi++ {
				fwd := pagesOf(t, r, atom(lo, hi, q))
				rev := pagesOf(t, r, atom(hi, lo, q))
				for i := range fwd {
					if fwd[i] != rev[len(rev)-1-i] {
						t.Fatalf("%d-%d%s: %v is not the reverse of %v", hi, lo, q, rev, fwd)
					}
				}
				if len(fwd) != len(rev) {
					t.Fatalf("%d-%d%s: length %d vs %d", hi, lo, q, len(rev), len(fwd))
				}
			}
		}
	}
}

func TestOddEvenPartition(t *testing.T) {
	for n := 1; n <= 10; n++ {
		r := New(Config{}, map[plan.Handle]Source{"A": doc(n)}, "A")
		for _, base := range []plan.RangeAtom{atom(0, 0, 0), atom(n, 1, 0)} {
			full := pagesOf(t, r, base)
			oddAtom, evenAtom := base, base
			oddAtom.Qualifier, evenAtom.Qualifier = plan.QualOdd, plan.QualEven
			odd, even := pagesOf(t, r, oddAtom), pagesOf(t, r, evenAtom)

			inOdd := map[int]bool{}
			for _, p := range odd {
				inOdd[p] = true
			}
			for _, p := range even {
				if inOdd[p] {
					t.Fatalf("n=%d: page %d is both odd and even", n, p)
				}
			}

			// Merge back in original relative order.
			var merged []int
			oi, ei := 0, 0
			for _, p := range full {
				switch {
				case oi < len(odd) && odd[oi] == p:
					merged = append(merged, p)
					oi++
				case ei < len(even) && even[ei] == p:
					merged = append(merged, p)
					ei++
				}
			}
			if diff := cmp.Diff(full, merged); diff != "" {
				t.Errorf("n=%d union does not reconstruct the sequence (-want +got):\n%s", n, diff)
			}
		}
	}
}

func TestRotationIdempotence(t *testing.T) {
	for _, mode := range []CompassMode{CompassRelative, CompassAbsolute} {
		for _, start := range []int{0, 90, 180, 270} {
			if got := ApplyRotation(start, plan.RotNone, mode); got != start {
				t.Errorf("mode %d: no-op rotation changed %d to %d", mode, start, got)
			}
		}
	}
	for _, start := range []int{0, 90, 180, 270} {
		deg := start
		for _, rot := range []plan.Rotation{plan.RotEast, plan.RotEast, plan.RotWest, plan.RotWest} {
			deg = ApplyRotation(deg, rot, CompassRelative)
		}
		if deg != start {
			t.Errorf("east, east, west, west from %d ended at %d", start, deg)
		}
		if got := ApplyRotation(start, plan.RotNorth, CompassRelative); got != start {
			t.Errorf("relative north changed %d to %d", start, got)
		}
	}
}

func TestCompassModes(t *testing.T) {
	tests := []struct {
		current int
		rot     plan.Rotation
		mode    CompassMode
		want    int
	}{
		{90, plan.RotEast, CompassRelative, 180},
		{90, plan.RotEast, CompassAbsolute, 90},
		{270, plan.RotNorth, CompassAbsolute, 0},
		{90, plan.RotLeft, CompassAbsolute, 0},
		{0, plan.RotLeft, CompassRelative, 270},
		{180, plan.RotDown, CompassRelative, 0},
		{90, plan.RotSouth, CompassRelative, 270},
	}
	for _, tt := range tests {
		if got := ApplyRotation(tt.current, tt.rot, tt.mode); got != tt.want {
			t.Errorf("ApplyRotation(%d, %s, %d) = %d, want %d", tt.current, tt.rot, tt.mode, got, tt.want)
		}
	}
}

func TestRelativeRotationUsesPageRotation(t *testing.T) {
	d := doc(2)
	d.rotations[1] = 90
	r := New(Config{}, map[plan.Handle]Source{"A": d}, "A")

	refs, err := r.Atom(plan.RangeAtom{Rotation: plan.RotEast})
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"A1@90", "A2@180"}, names(refs)); diff != "" {
		t.Errorf("rotation mismatch (-want +got):\n%s", diff)
	}
}

func spinPlan(t *testing.T, args ...string) *plan.Plan {
	t.Helper()
	p, err := parser.ParseArgs(append(append([]string{"A=a.pdf", "spin"}, args...), "output", "out.pdf"))
	require.NoError(t, err)
	return p
}

func TestSpin(t *testing.T) {
	docs := map[plan.Handle]Source{"A": doc(4)}
	tests := []struct {
		name string
		args []string
		want []PageSpin
	}{
		{"single range", []string{"2-3:45"}, []PageSpin{{2, 45}, {3, 45}}},
		{"angles add up", []string{"1-2:30", "2:15"}, []PageSpin{{1, 30}, {2, 45}}},
		{"whole turns drop out", []string{"1:90", "1:270", "4:-10"}, []PageSpin{{4, -10}}},
		{"every page", []string{":5"}, []PageSpin{{1, 5}, {2, 5}, {3, 5}, {4, 5}}},
		{"bracketed list in page order", []string{"[4,even]:12.5"}, []PageSpin{{2, 12.5}, {4, 25}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := spinPlan(t, tt.args...)
			require.NoError(t, CheckHandles(p))
			got, err := New(Config{}, docs, p.DefaultHandle()).Spin(p.Spins, "A")
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("spin mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSpinErrors(t *testing.T) {
	p := spinPlan(t, "B1:90")
	err := CheckHandles(p)
	require.Error(t, err)
	require.Equal(t, errors.KindRange, errors.KindOf(err))

	r := New(Config{}, map[plan.Handle]Source{"A": doc(1)}, "A")
	_, err = r.Spin(spinPlan(t, "5:90").Spins, "A")
	require.Equal(t, errors.KindRange, errors.KindOf(err))

	_, err = r.Spin(spinPlan(t, "even:90").Spins, "A")
	require.Equal(t, errors.KindRange, errors.KindOf(err))
	require.Contains(t, err.Error(), "no pages selected")
}
