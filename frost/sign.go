package frost

import (
	"errors"
	"io"

	"github.com/f3rmion/frostwallet/group"
)

// SigningNonce holds a participant's nonce pair for signing. It is
// generated fresh per signing session (spec.md invariant 2: one-shot) and
// must be destroyed by the caller immediately after producing a
// SignatureShare, on both the success and failure path.
type SigningNonce struct {
	ID group.Scalar
	D  group.Scalar // hiding nonce
	E  group.Scalar // binding nonce
}

// SigningCommitment is broadcast in round 1 of signing.
type SigningCommitment struct {
	ID           group.Scalar
	HidingPoint  group.Point // D * G
	BindingPoint group.Point // E * G
}

// SignatureShare is a participant's share of the signature.
type SignatureShare struct {
	ID group.Scalar
	Z  group.Scalar
}

// SignRound1 generates nonces and commitment for signing.
func (f *FROST) SignRound1(r io.Reader, share *KeyShare) (*SigningNonce, *SigningCommitment, error) {
	d, err := f.group.RandomScalar(r)
	if err != nil {
		return nil, nil, err
	}
	e, err := f.group.RandomScalar(r)
	if err != nil {
		return nil, nil, err
	}

	nonce := &SigningNonce{
		ID: share.ID,
		D:  d,
		E:  e,
	}

	commitment := &SigningCommitment{
		ID:           share.ID,
		HidingPoint:  f.group.NewPoint().ScalarMult(d, f.group.Generator()),
		BindingPoint: f.group.NewPoint().ScalarMult(e, f.group.Generator()),
	}

	return nonce, commitment, nil
}

// SignRound2 generates a signature share. commitments must be the
// identical, canonically-ordered set that every other selected signer
// uses (spec.md §3 invariant 5, §4.5): commitments are keyed by ID so the
// *set* is canonical regardless of arrival order, but the slice itself
// must contain exactly the selected signers, no more, no fewer.
func (f *FROST) SignRound2(
	share *KeyShare,
	nonce *SigningNonce,
	message []byte,
	commitments []*SigningCommitment,
) (*SignatureShare, error) {
	// Compute binding factors for each signer
	bindingFactors := f.computeBindingFactors(message, commitments)

	// Compute group commitment R = sum(D_i + rho_i * E_i)
	R := f.group.NewPoint()
	for _, comm := range commitments {
		rho := bindingFactors[string(comm.ID.Bytes())]
		rhoE := f.group.NewPoint().ScalarMult(rho, comm.BindingPoint)
		term := f.group.NewPoint().Add(comm.HidingPoint, rhoE)
		R = f.group.NewPoint().Add(R, term)
	}

	// Compute challenge c = H2(R, GroupKey, message)
	c := f.hasher.H2(f.group, R.Bytes(), share.GroupKey.Bytes(), message)

	// Compute Lagrange coefficient for this signer
	lambda := f.lagrangeCoefficient(share.ID, commitments)

	// Compute signature share: z_i = d + rho * e + lambda * s * c
	myRho := bindingFactors[string(share.ID.Bytes())]

	z := f.group.NewScalar().Mul(myRho, nonce.E)               // rho * e
	z = f.group.NewScalar().Add(nonce.D, z)                     // d + rho * e
	lambdaS := f.group.NewScalar().Mul(lambda, share.SecretKey) // lambda * s
	lambdaSC := f.group.NewScalar().Mul(lambdaS, c)             // lambda * s * c
	z = f.group.NewScalar().Add(z, lambdaSC)                    // d + rho*e + lambda*s*c

	return &SignatureShare{
		ID: share.ID,
		Z:  z,
	}, nil
}

// Aggregate combines signature shares into a final signature.
//
// Per spec.md §3 invariant 4/5, shares and commitments must both be
// exactly the selected t-subset; a mismatched count or ID set indicates
// InconsistentInputs upstream.
func (f *FROST) Aggregate(
	message []byte,
	commitments []*SigningCommitment,
	shares []*SignatureShare,
) (*Signature, error) {
	if len(shares) == 0 {
		return nil, errors.New("no signature shares provided")
	}
	if len(commitments) == 0 {
		return nil, errors.New("no commitments provided")
	}
	if len(shares) != len(commitments) {
		return nil, errors.New("number of shares must match number of commitments")
	}

	// Recompute R
	bindingFactors := f.computeBindingFactors(message, commitments)
	R := f.group.NewPoint()
	for _, comm := range commitments {
		rho := bindingFactors[string(comm.ID.Bytes())]
		rhoE := f.group.NewPoint().ScalarMult(rho, comm.BindingPoint)
		term := f.group.NewPoint().Add(comm.HidingPoint, rhoE)
		R = f.group.NewPoint().Add(R, term)
	}

	// Sum all z shares
	z := f.group.NewScalar()
	for _, s := range shares {
		z = f.group.NewScalar().Add(z, s.Z)
	}

	return &Signature{R: R, Z: z}, nil
}

// Verify checks a FROST signature.
func (f *FROST) Verify(message []byte, sig *Signature, groupKey group.Point) bool {
	// c = H2(R, GroupKey, message)
	c := f.hasher.H2(f.group, sig.R.Bytes(), groupKey.Bytes(), message)

	// Check: z*G == R + c*Y
	lhs := f.group.NewPoint().ScalarMult(sig.Z, f.group.Generator())

	cY := f.group.NewPoint().ScalarMult(c, groupKey)
	rhs := f.group.NewPoint().Add(sig.R, cY)

	return lhs.Equal(rhs)
}

func (f *FROST) computeBindingFactors(message []byte, commitments []*SigningCommitment) map[string]group.Scalar {
	factors := make(map[string]group.Scalar)

	var commBytes []byte
	for _, c := range commitments {
		commBytes = append(commBytes, c.ID.Bytes()...)
		commBytes = append(commBytes, c.HidingPoint.Bytes()...)
		commBytes = append(commBytes, c.BindingPoint.Bytes()...)
	}

	for _, c := range commitments {
		rho := f.hasher.H1(f.group, message, commBytes, c.ID.Bytes())
		factors[string(c.ID.Bytes())] = rho
	}

	return factors
}

func (f *FROST) lagrangeCoefficient(id group.Scalar, commitments []*SigningCommitment) group.Scalar {
	num := one(f.group)
	den := one(f.group)

	for _, c := range commitments {
		if c.ID.Equal(id) {
			continue
		}
		// num *= c.ID
		num = f.group.NewScalar().Mul(num, c.ID)
		// den *= (c.ID - id)
		diff := f.group.NewScalar().Sub(c.ID, id)
		den = f.group.NewScalar().Mul(den, diff)
	}

	denInv, _ := f.group.NewScalar().Invert(den)
	return f.group.NewScalar().Mul(num, denInv)
}
