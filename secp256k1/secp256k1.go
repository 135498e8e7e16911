// Package secp256k1 implements [group.Group] over the secp256k1 curve used
// by Ethereum, via github.com/decred/dcrd/dcrec/secp256k1/v4 (the same
// low-level field/scalar package btcec/v2 re-exports). Addresses are
// derived the Ethereum way: Keccak256 of the uncompressed public key,
// lower 20 bytes, via go-ethereum/crypto.
package secp256k1

import (
	"errors"
	"io"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/f3rmion/frostwallet/frosterr"
	"github.com/f3rmion/frostwallet/group"
)

// Scalar wraps secp256k1.ModNScalar to implement group.Scalar.
type Scalar struct {
	inner secp256k1.ModNScalar
}

// Add implements group.Scalar.Add.
func (s *Scalar) Add(a, b group.Scalar) group.Scalar {
	aScalar := a.(*Scalar)
	bScalar := b.(*Scalar)
	s.inner.Add2(&aScalar.inner, &bScalar.inner)
	return s
}

// Sub implements group.Scalar.Sub.
func (s *Scalar) Sub(a, b group.Scalar) group.Scalar {
	aScalar := a.(*Scalar)
	bScalar := b.(*Scalar)
	var negB secp256k1.ModNScalar
	negB.Set(&bScalar.inner)
	negB.Negate()
	s.inner.Add2(&aScalar.inner, &negB)
	return s
}

// Mul implements group.Scalar.Mul.
func (s *Scalar) Mul(a, b group.Scalar) group.Scalar {
	aScalar := a.(*Scalar)
	bScalar := b.(*Scalar)
	s.inner.Mul2(&aScalar.inner, &bScalar.inner)
	return s
}

// Negate implements group.Scalar.Negate.
func (s *Scalar) Negate(a group.Scalar) group.Scalar {
	aScalar := a.(*Scalar)
	s.inner.Set(&aScalar.inner)
	s.inner.Negate()
	return s
}

// Invert implements group.Scalar.Invert.
func (s *Scalar) Invert(a group.Scalar) (group.Scalar, error) {
	aScalar := a.(*Scalar)
	if aScalar.IsZero() {
		return nil, errors.New("cannot invert zero scalar")
	}
	s.inner.Set(&aScalar.inner)
	s.inner.InverseValNonConst()
	return s, nil
}

// Set implements group.Scalar.Set.
func (s *Scalar) Set(a group.Scalar) group.Scalar {
	aScalar := a.(*Scalar)
	s.inner.Set(&aScalar.inner)
	return s
}

// Bytes implements group.Scalar.Bytes.
func (s *Scalar) Bytes() []byte {
	b := s.inner.Bytes()
	return b[:]
}

// SetBytes implements group.Scalar.SetBytes.
func (s *Scalar) SetBytes(data []byte) (group.Scalar, error) {
	if len(data) > 32 {
		return nil, errors.New("secp256k1 scalar: data longer than 32 bytes")
	}
	var buf [32]byte
	copy(buf[32-len(data):], data)
	s.inner.SetBytes(&buf)
	return s, nil
}

// Equal implements group.Scalar.Equal.
func (s *Scalar) Equal(b group.Scalar) bool {
	bScalar := b.(*Scalar)
	return s.inner.Equals(&bScalar.inner)
}

// IsZero implements group.Scalar.IsZero.
func (s *Scalar) IsZero() bool {
	return s.inner.IsZero()
}

// Point wraps secp256k1.JacobianPoint to implement group.Point.
type Point struct {
	inner secp256k1.JacobianPoint
}

func (p *Point) affine() secp256k1.JacobianPoint {
	var a secp256k1.JacobianPoint
	a.Set(&p.inner)
	a.ToAffine()
	return a
}

// Add implements group.Point.Add.
func (p *Point) Add(a, b group.Point) group.Point {
	aPoint := a.(*Point)
	bPoint := b.(*Point)
	secp256k1.AddNonConst(&aPoint.inner, &bPoint.inner, &p.inner)
	return p
}

// Sub implements group.Point.Sub.
func (p *Point) Sub(a, b group.Point) group.Point {
	aPoint := a.(*Point)
	bPoint := b.(*Point)
	var negB secp256k1.JacobianPoint
	negB.Set(&bPoint.inner)
	negB.ToAffine()
	negB.Y.Negate(1)
	negB.Y.Normalize()
	secp256k1.AddNonConst(&aPoint.inner, &negB, &p.inner)
	return p
}

// Negate implements group.Point.Negate.
func (p *Point) Negate(a group.Point) group.Point {
	aPoint := a.(*Point)
	var neg secp256k1.JacobianPoint
	neg.Set(&aPoint.inner)
	neg.ToAffine()
	neg.Y.Negate(1)
	neg.Y.Normalize()
	p.inner.Set(&neg)
	return p
}

// ScalarMult implements group.Point.ScalarMult.
func (p *Point) ScalarMult(s group.Scalar, q group.Point) group.Point {
	scalar := s.(*Scalar)
	qPoint := q.(*Point)
	secp256k1.ScalarMultNonConst(&scalar.inner, &qPoint.inner, &p.inner)
	return p
}

// Set implements group.Point.Set.
func (p *Point) Set(a group.Point) group.Point {
	aPoint := a.(*Point)
	p.inner.Set(&aPoint.inner)
	return p
}

// Bytes implements group.Point.Bytes. Uses SEC1 compressed encoding.
func (p *Point) Bytes() []byte {
	a := p.affine()
	if a.X.IsZero() && a.Y.IsZero() {
		return []byte{0x00}
	}
	pk := secp256k1.NewPublicKey(&a.X, &a.Y)
	return pk.SerializeCompressed()
}

// SetBytes implements group.Point.SetBytes.
func (p *Point) SetBytes(data []byte) (group.Point, error) {
	if len(data) == 1 && data[0] == 0x00 {
		p.inner = secp256k1.JacobianPoint{}
		return p, nil
	}
	pk, err := secp256k1.ParsePubKey(data)
	if err != nil {
		return nil, err
	}
	pk.AsJacobian(&p.inner)
	return p, nil
}

// Equal implements group.Point.Equal.
func (p *Point) Equal(b group.Point) bool {
	bPoint := b.(*Point)
	a1 := p.affine()
	a2 := bPoint.affine()
	return a1.X.Equals(&a2.X) && a1.Y.Equals(&a2.Y)
}

// IsIdentity implements group.Point.IsIdentity.
func (p *Point) IsIdentity() bool {
	a := p.affine()
	return a.X.IsZero() && a.Y.IsZero()
}

// Uncompressed returns the 65-byte uncompressed SEC1 encoding (0x04 || X || Y),
// the form go-ethereum's Keccak256 address derivation expects.
func (p *Point) Uncompressed() []byte {
	a := p.affine()
	pk := secp256k1.NewPublicKey(&a.X, &a.Y)
	return pk.SerializeUncompressed()
}

// X returns the raw 32-byte big-endian X coordinate of the affine point:
// the "r" component of an ECDSA-style secp256k1 signature.
func (p *Point) X() []byte {
	a := p.affine()
	b := a.X.Bytes()
	return b[:]
}

// Secp256k1 implements group.Group for the secp256k1 curve.
type Secp256k1 struct{}

// NewScalar implements group.Group.NewScalar.
func (g *Secp256k1) NewScalar() group.Scalar {
	return &Scalar{}
}

// NewPoint implements group.Group.NewPoint.
func (g *Secp256k1) NewPoint() group.Point {
	return &Point{}
}

// Generator implements group.Group.Generator.
func (g *Secp256k1) Generator() group.Point {
	one := new(secp256k1.ModNScalar).SetInt(1)
	var p Point
	secp256k1.ScalarBaseMultNonConst(one, &p.inner)
	return &p
}

// RandomScalar implements group.Group.RandomScalar.
func (g *Secp256k1) RandomScalar(r io.Reader) (group.Scalar, error) {
	var buf [32]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	var s Scalar
	s.inner.SetBytes(&buf)
	return &s, nil
}

// HashToScalar implements group.Group.HashToScalar.
func (g *Secp256k1) HashToScalar(data ...[]byte) (group.Scalar, error) {
	h := ethcrypto.Keccak256(data...)
	var s Scalar
	var buf [32]byte
	copy(buf[:], h)
	s.inner.SetBytes(&buf)
	return &s, nil
}

// Order implements group.Group.Order.
func (g *Secp256k1) Order() []byte {
	n := secp256k1.S256().N
	return n.Bytes()
}

// Address derives the Ethereum address for a group public key: Keccak256
// of the uncompressed public key (minus the 0x04 prefix byte), low 20 bytes,
// rendered as a 0x-prefixed checksum-cased hex string.
func Address(pub group.Point) (string, error) {
	p := pub.(*Point)
	pk, err := ethcrypto.UnmarshalPubkey(p.Uncompressed())
	if err != nil {
		return "", err
	}
	return ethcrypto.PubkeyToAddress(*pk).Hex(), nil
}

// FindRecoveryID searches recid in {0,1} for the value that makes
// ecrecover(digest, r, s, v) equal expectedAddr. If chainID is non-nil,
// v is encoded in EIP-155 form (v = recid + 27 + 2*chain_id + 35);
// otherwise the legacy form (v = recid + 27) is used. Returns
// frosterr.ErrRecoveryIdNotFound if neither recid works.
func FindRecoveryID(digest, r, s []byte, expectedAddr string, chainID *uint64) (uint64, error) {
	sig := make([]byte, 65)
	copy(sig[32-len(r):32], r)
	copy(sig[64-len(s):64], s)

	for recid := byte(0); recid < 2; recid++ {
		sig[64] = recid
		pub, err := ethcrypto.SigToPub(digest, sig)
		if err != nil {
			continue
		}
		addr := ethcrypto.PubkeyToAddress(*pub).Hex()
		if strings.EqualFold(addr, expectedAddr) {
			if chainID != nil {
				return uint64(recid) + 27 + 2*(*chainID) + 35, nil
			}
			return uint64(recid) + 27, nil
		}
	}
	return 0, frosterr.ErrRecoveryIdNotFound
}
