// Package ed25519 implements [group.Group] over the twisted Edwards curve
// backing Ed25519, via github.com/decred/dcrd/dcrec/edwards/v2. Addresses
// are derived the Solana way: base58 of the compressed 32-byte point, via
// github.com/btcsuite/btcutil/base58.
package ed25519

import (
	"crypto/sha512"
	"errors"
	"io"
	"math/big"

	"github.com/btcsuite/btcutil/base58"
	"github.com/decred/dcrd/dcrec/edwards/v2"

	"github.com/f3rmion/frostwallet/group"
)

var curve = edwards.Edwards()

// Scalar wraps a big.Int reduced modulo the curve's group order to
// implement group.Scalar.
type Scalar struct {
	inner big.Int
}

func order() *big.Int { return curve.Params().N }

func (s *Scalar) reduce() {
	s.inner.Mod(&s.inner, order())
}

// Add implements group.Scalar.Add.
func (s *Scalar) Add(a, b group.Scalar) group.Scalar {
	aScalar := a.(*Scalar)
	bScalar := b.(*Scalar)
	s.inner.Add(&aScalar.inner, &bScalar.inner)
	s.reduce()
	return s
}

// Sub implements group.Scalar.Sub.
func (s *Scalar) Sub(a, b group.Scalar) group.Scalar {
	aScalar := a.(*Scalar)
	bScalar := b.(*Scalar)
	s.inner.Sub(&aScalar.inner, &bScalar.inner)
	s.reduce()
	return s
}

// Mul implements group.Scalar.Mul.
func (s *Scalar) Mul(a, b group.Scalar) group.Scalar {
	aScalar := a.(*Scalar)
	bScalar := b.(*Scalar)
	s.inner.Mul(&aScalar.inner, &bScalar.inner)
	s.reduce()
	return s
}

// Negate implements group.Scalar.Negate.
func (s *Scalar) Negate(a group.Scalar) group.Scalar {
	aScalar := a.(*Scalar)
	s.inner.Neg(&aScalar.inner)
	s.reduce()
	return s
}

// Invert implements group.Scalar.Invert.
func (s *Scalar) Invert(a group.Scalar) (group.Scalar, error) {
	aScalar := a.(*Scalar)
	if aScalar.IsZero() {
		return nil, errors.New("cannot invert zero scalar")
	}
	s.inner.ModInverse(&aScalar.inner, order())
	return s, nil
}

// Set implements group.Scalar.Set.
func (s *Scalar) Set(a group.Scalar) group.Scalar {
	aScalar := a.(*Scalar)
	s.inner.Set(&aScalar.inner)
	return s
}

// Bytes implements group.Scalar.Bytes. Returns a fixed 32-byte big-endian
// encoding, matching the width of the curve's field elements.
func (s *Scalar) Bytes() []byte {
	b := s.inner.Bytes()
	buf := make([]byte, 32)
	copy(buf[32-len(b):], b)
	return buf
}

// SetBytes implements group.Scalar.SetBytes.
func (s *Scalar) SetBytes(data []byte) (group.Scalar, error) {
	s.inner.SetBytes(data)
	s.reduce()
	return s, nil
}

// Equal implements group.Scalar.Equal.
func (s *Scalar) Equal(b group.Scalar) bool {
	bScalar := b.(*Scalar)
	return s.inner.Cmp(&bScalar.inner) == 0
}

// IsZero implements group.Scalar.IsZero.
func (s *Scalar) IsZero() bool {
	return s.inner.Sign() == 0
}

// Point wraps an affine (X, Y) pair on the twisted Edwards curve to
// implement group.Point.
type Point struct {
	x, y big.Int
}

// Add implements group.Point.Add.
func (p *Point) Add(a, b group.Point) group.Point {
	aPoint := a.(*Point)
	bPoint := b.(*Point)
	x, y := curve.Add(&aPoint.x, &aPoint.y, &bPoint.x, &bPoint.y)
	p.x.Set(x)
	p.y.Set(y)
	return p
}

// Sub implements group.Point.Sub.
func (p *Point) Sub(a, b group.Point) group.Point {
	bPoint := b.(*Point)
	var neg Point
	neg.Negate(bPoint)
	return p.Add(a, &neg)
}

// Negate implements group.Point.Negate. On a twisted Edwards curve,
// -(x, y) = (-x mod p, y).
func (p *Point) Negate(a group.Point) group.Point {
	aPoint := a.(*Point)
	prime := curve.Params().P
	p.x.Sub(prime, &aPoint.x)
	p.x.Mod(&p.x, prime)
	p.y.Set(&aPoint.y)
	return p
}

// ScalarMult implements group.Point.ScalarMult.
func (p *Point) ScalarMult(s group.Scalar, q group.Point) group.Point {
	scalar := s.(*Scalar)
	qPoint := q.(*Point)
	x, y := curve.ScalarMult(&qPoint.x, &qPoint.y, scalar.Bytes())
	p.x.Set(x)
	p.y.Set(y)
	return p
}

// Set implements group.Point.Set.
func (p *Point) Set(a group.Point) group.Point {
	aPoint := a.(*Point)
	p.x.Set(&aPoint.x)
	p.y.Set(&aPoint.y)
	return p
}

// Bytes implements group.Point.Bytes. Uses the standard Ed25519 compressed
// encoding: Y with the sign of X folded into the top bit.
func (p *Point) Bytes() []byte {
	pk := edwards.NewPublicKey(curve, &p.x, &p.y)
	return pk.Serialize()
}

// SetBytes implements group.Point.SetBytes.
func (p *Point) SetBytes(data []byte) (group.Point, error) {
	pk, err := edwards.ParsePubKey(data, curve)
	if err != nil {
		return nil, err
	}
	p.x.Set(pk.X)
	p.y.Set(pk.Y)
	return p, nil
}

// Equal implements group.Point.Equal.
func (p *Point) Equal(b group.Point) bool {
	bPoint := b.(*Point)
	return p.x.Cmp(&bPoint.x) == 0 && p.y.Cmp(&bPoint.y) == 0
}

// IsIdentity implements group.Point.IsIdentity. The Edwards identity is (0, 1).
func (p *Point) IsIdentity() bool {
	return p.x.Sign() == 0 && p.y.Cmp(big.NewInt(1)) == 0
}

// Ed25519 implements group.Group for the Ed25519 twisted Edwards curve.
type Ed25519 struct{}

// NewScalar implements group.Group.NewScalar.
func (g *Ed25519) NewScalar() group.Scalar {
	return &Scalar{}
}

// NewPoint implements group.Group.NewPoint. Returns the curve identity (0, 1).
func (g *Ed25519) NewPoint() group.Point {
	var p Point
	p.x.SetInt64(0)
	p.y.SetInt64(1)
	return &p
}

// Generator implements group.Group.Generator.
func (g *Ed25519) Generator() group.Point {
	params := curve.Params()
	var p Point
	p.x.Set(params.Gx)
	p.y.Set(params.Gy)
	return &p
}

// RandomScalar implements group.Group.RandomScalar.
func (g *Ed25519) RandomScalar(r io.Reader) (group.Scalar, error) {
	buf := make([]byte, 32)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	var s Scalar
	s.inner.SetBytes(buf)
	s.reduce()
	return &s, nil
}

// HashToScalar implements group.Group.HashToScalar. Uses SHA-512 to match
// Ed25519's native hash width, reduced modulo the curve order.
func (g *Ed25519) HashToScalar(data ...[]byte) (group.Scalar, error) {
	h := sha512.New()
	for _, d := range data {
		h.Write(d)
	}
	sum := h.Sum(nil)
	var s Scalar
	s.inner.SetBytes(sum)
	s.reduce()
	return &s, nil
}

// Order implements group.Group.Order.
func (g *Ed25519) Order() []byte {
	return order().Bytes()
}

// Address derives the Solana address for a group public key: base58 of the
// 32-byte compressed point encoding.
func Address(pub group.Point) string {
	p := pub.(*Point)
	return base58.Encode(p.Bytes())
}
