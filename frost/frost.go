package frost

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/f3rmion/frostwallet/group"
)

// FROST holds the cryptographic group and threshold parameters for the
// FROST signature scheme. Create instances using [New] or [NewWithHasher].
type FROST struct {
	group     group.Group
	hasher    Hasher
	threshold int // t - minimum signers needed
	total     int // n - total participants
}

// KeyShare represents a participant's share of the distributed secret key.
// KeyShares are produced by the DKG protocol via [FROST.Finalize] and are
// used for signing operations.
type KeyShare struct {
	// ID is the unique identifier for this participant (1 to n).
	ID group.Scalar

	// SecretKey is this participant's share of the group secret key.
	// This value must be kept private.
	SecretKey group.Scalar

	// PublicKey is the public key corresponding to this participant's secret share.
	PublicKey group.Point

	// GroupKey is the combined group public key. This is the same for all
	// participants and is used to verify signatures.
	GroupKey group.Point
}

// PublicKeyPackage is the group's public verification material: the shared
// group key and every participant's individual verification share. Every
// honest device ends a DKG run holding the same PublicKeyPackage.
type PublicKeyPackage struct {
	GroupKey       group.Point
	VerifyingShare map[int]group.Point
}

// Signature represents a Schnorr signature produced by the FROST protocol.
// It can be verified against the group public key using [FROST.Verify].
type Signature struct {
	// R is the commitment point (nonce point).
	R group.Point

	// Z is the response scalar.
	Z group.Scalar
}

// New creates a FROST instance with the given group and threshold parameters.
// It uses SHA-256 as the default hash function. Use [NewWithHasher] for
// alternative hash configurations such as Blake2b for Ledger compatibility.
//
// The threshold parameter specifies the minimum number of signers required (t)
// to produce a valid signature. It must be at least 2.
//
// The total parameter specifies the total number of participants (n) in the
// scheme. It must be greater than or equal to threshold.
func New(g group.Group, threshold, total int) (*FROST, error) {
	return NewWithHasher(g, threshold, total, &SHA256Hasher{})
}

// NewWithHasher creates a FROST instance with a custom hash function.
// Use this constructor for Ledger/iden3 compatibility with [Blake2bHasher]
// or other custom hash implementations.
//
// Example for Ledger compatibility:
//
//	f, err := frost.NewWithHasher(g, 2, 3, frost.NewBlake2bHasher())
func NewWithHasher(g group.Group, threshold, total int, hasher Hasher) (*FROST, error) {
	if threshold < 2 {
		return nil, errors.New("threshold must be at least 2")
	}
	if total < threshold {
		return nil, errors.New("total must be >= threshold")
	}
	if total > 1<<16-1 {
		return nil, errors.New("total must fit in a uint16 participant identifier")
	}

	return &FROST{
		group:     g,
		hasher:    hasher,
		threshold: threshold,
		total:     total,
	}, nil
}

// Threshold returns t, the minimum number of signers required.
func (f *FROST) Threshold() int { return f.threshold }

// Total returns n, the total number of participants.
func (f *FROST) Total() int { return f.total }

// idByteWidth is the length of the zero-padded buffer a participant
// identifier is embedded in before being reduced into the scalar field.
// Both adapters this wallet ships (secp256k1, ed25519) use 32-byte wide
// fields, so this is fixed rather than queried per curve; an adapter with
// a narrower field would need its own IDFromInt.
const idByteWidth = 32

// IDFromInt maps a participant identifier in [1, n] into the curve's
// scalar field. Per spec, this mapping is deterministic, injective, and
// reversible via [IDToInt]: the big-endian uint16 encoding of n is placed
// at a fixed, known offset (the last two bytes) of an otherwise-zero
// buffer, which is then reduced by the group's SetBytes. This is the one
// canonical byte ordering used anywhere identifiers cross a wire or a
// routing table.
func (f *FROST) IDFromInt(n int) (group.Scalar, error) {
	return IDFromInt(f.group, n)
}

// IDFromInt is the package-level form of [FROST.IDFromInt], usable before
// a FROST instance exists (e.g. while decoding a wire message).
func IDFromInt(g group.Group, n int) (group.Scalar, error) {
	if n < 1 || n > 0xFFFF {
		return nil, fmt.Errorf("participant id %d out of range [1,65535]", n)
	}
	buf := make([]byte, idByteWidth)
	binary.BigEndian.PutUint16(buf[idByteWidth-2:], uint16(n))
	s, err := g.NewScalar().SetBytes(buf)
	if err != nil {
		return nil, fmt.Errorf("encode participant id: %w", err)
	}
	return s, nil
}

// IDToInt recovers the integer identifier embedded by [IDFromInt]. It reads
// the canonical last-two-bytes position of the scalar's byte encoding;
// implementations must not rely on any other field position.
func IDToInt(id group.Scalar) int {
	b := id.Bytes()
	if len(b) < 2 {
		return 0
	}
	return int(binary.BigEndian.Uint16(b[len(b)-2:]))
}

// evalPolynomial evaluates a polynomial at point x using Horner's method.
// The polynomial is represented by its coefficients [a0, a1, ..., an]
// where p(x) = a0 + a1*x + a2*x^2 + ... + an*x^n.
func (f *FROST) evalPolynomial(coeffs []group.Scalar, x group.Scalar) group.Scalar {
	result := f.group.NewScalar().Set(coeffs[len(coeffs)-1])
	for i := len(coeffs) - 2; i >= 0; i-- {
		result = f.group.NewScalar().Mul(result, x)
		result = f.group.NewScalar().Add(result, coeffs[i])
	}
	return result
}
