// Package planfmt serializes Operation Plans.
//
// The canonical form is CBOR in RFC 8949 core deterministic encoding, so the
// same command line always yields the same bytes and the same digest.
// Passwords never enter the canonical form.
package planfmt

import (
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"

	"github.com/aledsdavies/pdftl/core/plan"
)

// Version is the canonical format version.
const Version uint8 = 1

// CanonicalPlan is the deterministic form of a plan.
type CanonicalPlan struct {
	Version uint8     `cbor:"1,keyasint"`
	Plan    plan.Plan `cbor:"2,keyasint"`
}

// Canonicalize copies p into canonical form. Permission keywords are an
// unordered set, so they are sorted and deduplicated.
func Canonicalize(p *plan.Plan) *CanonicalPlan {
	cp := &CanonicalPlan{Version: Version, Plan: *p}

	perms := append([]plan.Permission(nil), p.Options.Permissions...)
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	deduped := perms[:0]
	for i, perm := range perms {
		if i == 0 || perm != perms[i-1] {
			deduped = append(deduped, perm)
		}
	}
	if len(deduped) == 0 {
		deduped = nil
	}
	cp.Plan.Options.Permissions = deduped

	return cp
}

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder: %v", err))
	}
	return em
}

// MarshalBinary produces the deterministic CBOR encoding.
func (cp *CanonicalPlan) MarshalBinary() ([]byte, error) {
	// Alias type so cbor does not call MarshalBinary recursively.
	type canonicalPlanAlias CanonicalPlan
	data, err := encMode.Marshal((*canonicalPlanAlias)(cp))
	if err != nil {
		return nil, fmt.Errorf("CBOR encoding failed: %w", err)
	}
	return data, nil
}

// UnmarshalBinary decodes a canonical plan.
func (cp *CanonicalPlan) UnmarshalBinary(data []byte) error {
	type canonicalPlanAlias CanonicalPlan
	if err := cbor.Unmarshal(data, (*canonicalPlanAlias)(cp)); err != nil {
		return fmt.Errorf("CBOR decoding failed: %w", err)
	}
	if cp.Version != Version {
		return fmt.Errorf("unsupported plan version %d", cp.Version)
	}
	return nil
}

// Digest is the BLAKE2b-256 hash of the canonical encoding.
func (cp *CanonicalPlan) Digest() ([32]byte, error) {
	data, err := cp.MarshalBinary()
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(data), nil
}

// DigestString renders the digest as "blake2b-256:<hex>".
func DigestString(p *plan.Plan) (string, error) {
	sum, err := Canonicalize(p).Digest()
	if err != nil {
		return "", err
	}
	return "blake2b-256:" + hex.EncodeToString(sum[:]), nil
}
