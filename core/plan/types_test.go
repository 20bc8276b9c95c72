package plan

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRangeAtomString(t *testing.T) {
	tests := []struct {
		atom RangeAtom
		want string
	}{
		{RangeAtom{Handle: "A", Start: PageRef{PageAbsolute, 1}, End: PageRef{PageEnd, 0}}, "A1-end"},
		{RangeAtom{Handle: "B", Qualifier: QualEven}, "Beven"},
		{RangeAtom{Start: PageRef{PageFromEnd, 2}, Rotation: RotEast}, "r2east"},
		{
			RangeAtom{
				Start: PageRef{PageAbsolute, 2}, End: PageRef{PageEnd, 0},
				Excludes: []RangeAtom{{Start: PageRef{PageAbsolute, 4}, End: PageRef{PageAbsolute, 5}}},
			},
			"2-end~4-5",
		},
	}
	for _, tt := range tests {
		if got := tt.atom.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSpinSpecString(t *testing.T) {
	s := SpinSpec{
		Range: RangeExpr{Atoms: []RangeAtom{
			{Start: PageRef{PageAbsolute, 1}, End: PageRef{PageAbsolute, 5}},
			{Start: PageRef{PageAbsolute, 7}},
		}},
		Angle: -12.5,
	}
	if got := s.String(); got != "1-5,7:-12.5" {
		t.Errorf("String() = %q", got)
	}
}

func TestPermissionBits(t *testing.T) {
	tests := []struct {
		perms []Permission
		want  uint32
	}{
		{nil, 0},
		{[]Permission{PermDegradedPrinting}, BitPrint},
		{[]Permission{PermPrinting}, BitPrint | BitPrintHighRes},
		{[]Permission{PermFillIn, PermScreenReaders}, BitFillIn | BitExtract},
		{[]Permission{PermAllFeatures}, 0xF3C},
	}
	for _, tt := range tests {
		if got := PermissionBits(tt.perms); got != tt.want {
			t.Errorf("PermissionBits(%v) = %#x, want %#x", tt.perms, got, tt.want)
		}
	}
}

func TestOperatorSpecs(t *testing.T) {
	for _, name := range OperatorNames() {
		spec, ok := LookupOperator(name)
		if !ok {
			t.Fatalf("LookupOperator(%q) failed", name)
		}
		if string(spec.Name) != name {
			t.Errorf("spec name %q registered under %q", spec.Name, name)
		}
	}
	if _, ok := LookupOperator("CAT"); ok {
		t.Error("operator lookup must be case-sensitive")
	}
	if got := OpDumpData.Spec().Output; got != WritesData {
		t.Errorf("dump_data output kind = %v, want WritesData", got)
	}
}

func TestEncryptionDefaults(t *testing.T) {
	opts := OutputOptions{OwnerPassword: "secret"}
	if !opts.Encrypted() {
		t.Fatal("owner password must enable encryption")
	}
	if got := opts.EffectiveEncryption(); got != EncryptRC4_128 {
		t.Errorf("EffectiveEncryption() = %v, want encrypt_128bit", got)
	}

	bad := OutputOptions{Permissions: []Permission{PermPrinting}}
	if err := bad.Validate(); err == nil {
		t.Error("allow without encryption must be rejected")
	}
}

func TestParseRotation(t *testing.T) {
	var got []Rotation
	for _, w := range []string{"north", "east", "south", "west", "left", "right", "down"} {
		r, ok := ParseRotation(w)
		if !ok {
			t.Fatalf("ParseRotation(%q) failed", w)
		}
		got = append(got, r)
	}
	want := []Rotation{RotNorth, RotEast, RotSouth, RotWest, RotLeft, RotRight, RotDown}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rotations mismatch (-want +got):\n%s", diff)
	}
	if _, ok := ParseRotation(""); ok {
		t.Error("empty word must not parse")
	}
}
