package planfmt

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/pdftl/core/plan"
)

func samplePlan() *plan.Plan {
	return &plan.Plan{
		Inputs: []plan.Binding{
			{Handle: "A", Path: "one.pdf"},
			{Handle: "B", Path: "two.pdf", Password: "hunter2"},
		},
		Operator: plan.OpCat,
		Ranges: []plan.RangeExpr{
			{Atoms: []plan.RangeAtom{{Handle: "A", Start: plan.PageRef{Kind: plan.PageAbsolute, N: 1}, End: plan.PageRef{Kind: plan.PageEnd}}}},
			{Atoms: []plan.RangeAtom{{Handle: "B", Qualifier: plan.QualEven, Rotation: plan.RotEast}}},
		},
		Output: plan.Output{Path: "out.pdf", Set: true},
		Options: plan.OutputOptions{
			OwnerPassword: "owner",
			Encryption:    plan.EncryptAES128,
			Permissions:   []plan.Permission{plan.PermPrinting, plan.PermFillIn, plan.PermPrinting},
		},
	}
}

func TestCanonicalDeterminism(t *testing.T) {
	first, err := Canonicalize(samplePlan()).MarshalBinary()
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		again, err := Canonicalize(samplePlan()).MarshalBinary()
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("encoding changed on run %d (-first +again):\n%s", i, diff)
		}
	}
}

func TestPermissionOrderDoesNotChangeDigest(t *testing.T) {
	a := samplePlan()
	b := samplePlan()
	b.Options.Permissions = []plan.Permission{plan.PermFillIn, plan.PermPrinting}

	da, err := DigestString(a)
	require.NoError(t, err)
	db, err := DigestString(b)
	require.NoError(t, err)
	if da != db {
		t.Errorf("digests differ for equivalent permission sets:\n%s\n%s", da, db)
	}
	if !strings.HasPrefix(da, "blake2b-256:") || len(da) != len("blake2b-256:")+64 {
		t.Errorf("unexpected digest format %q", da)
	}
}

func TestPasswordsExcluded(t *testing.T) {
	a := samplePlan()
	b := samplePlan()
	b.Options.OwnerPassword = "different"
	b.Inputs[1].Password = "other"

	da, err := DigestString(a)
	require.NoError(t, err)
	db, err := DigestString(b)
	require.NoError(t, err)
	if da != db {
		t.Error("passwords must not influence the digest")
	}

	data, err := Canonicalize(a).MarshalBinary()
	require.NoError(t, err)
	if strings.Contains(string(data), "hunter2") || strings.Contains(string(data), "owner") {
		t.Error("canonical bytes leak a password")
	}
}

func TestDifferentOperatorsDiffer(t *testing.T) {
	a := samplePlan()
	b := samplePlan()
	b.Operator = plan.OpShuffle

	da, _ := DigestString(a)
	db, _ := DigestString(b)
	if da == db {
		t.Error("cat and shuffle plans must not share a digest")
	}
}

func TestRoundTrip(t *testing.T) {
	cp := Canonicalize(samplePlan())
	data, err := cp.MarshalBinary()
	require.NoError(t, err)

	var decoded CanonicalPlan
	require.NoError(t, decoded.UnmarshalBinary(data))

	if diff := cmp.Diff(cp.Plan.Ranges[1].String(), decoded.Plan.Ranges[1].String()); diff != "" {
		t.Errorf("range mismatch (-want +got):\n%s", diff)
	}
	if decoded.Plan.Options.Encryption != plan.EncryptAES128 {
		t.Errorf("encryption lost: %v", decoded.Plan.Options.Encryption)
	}
	if decoded.Plan.Options.OwnerPassword != "" {
		t.Error("password must not survive the round trip")
	}
}
