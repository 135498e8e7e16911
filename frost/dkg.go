package frost

import (
	"errors"
	"io"

	"github.com/f3rmion/frostwallet/group"
)

// Round1Data contains the public data broadcast by a participant during
// round 1 of the DKG protocol. This includes commitments to the participant's
// secret polynomial coefficients.
type Round1Data struct {
	// ID is the unique identifier of the broadcasting participant.
	ID group.Scalar

	// Commitments are Feldman commitments to the polynomial coefficients.
	// Commitments[i] = coefficients[i] * G, where G is the group generator.
	Commitments []group.Point
}

// Round1PrivateData contains the private share sent from one participant
// to another during round 1 of the DKG protocol. This data must be sent
// over a secure, authenticated channel.
type Round1PrivateData struct {
	// FromID is the sender's participant identifier.
	FromID group.Scalar

	// ToID is the intended recipient's participant identifier.
	ToID group.Scalar

	// Share is the sender's polynomial evaluated at the recipient's ID.
	// This value must be kept confidential during transmission.
	Share group.Scalar
}

// Participant holds the state for a single participant during the DKG protocol.
// Create instances using [FROST.NewParticipant].
//
// The fields below are owned exclusively by this state machine and are
// consumed (never copied out) by the next round: coefficients back
// Round1Secret, receivedShares backs Round2Secret.
type Participant struct {
	id             group.Scalar
	coefficients   []group.Scalar          // our secret polynomial (Round1Secret)
	commitments    []group.Point           // public commitments
	receivedShares map[string]group.Scalar // shares from others (Round2Secret)
}

// ID returns this participant's scalar identifier.
func (p *Participant) ID() group.Scalar { return p.id }

// NewParticipant creates a new participant for the DKG protocol.
//
// The id parameter must be a unique integer from 1 to n (total participants).
// The random reader r is used to generate the participant's secret polynomial.
func (f *FROST) NewParticipant(r io.Reader, id int) (*Participant, error) {
	scalarID, err := f.IDFromInt(id)
	if err != nil {
		return nil, err
	}

	// Generate random polynomial of degree t-1
	coeffs := make([]group.Scalar, f.threshold)
	for i := 0; i < f.threshold; i++ {
		c, err := f.group.RandomScalar(r)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}

	// Compute commitments: C_i = coeffs[i] * G
	commits := make([]group.Point, f.threshold)
	for i, c := range coeffs {
		commits[i] = f.group.NewPoint().ScalarMult(c, f.group.Generator())
	}

	return &Participant{
		id:             scalarID,
		coefficients:   coeffs,
		commitments:    commits,
		receivedShares: make(map[string]group.Scalar),
	}, nil
}

// Round1Broadcast returns the public data that this participant must
// broadcast to all other participants. This includes commitments to
// the participant's secret polynomial.
func (p *Participant) Round1Broadcast() *Round1Data {
	return &Round1Data{
		ID:          p.id,
		Commitments: p.commitments,
	}
}

// Round1PrivateSend computes and returns the private share that participant p
// must send to the specified recipient. This data must be transmitted over a
// secure, authenticated channel.
func (f *FROST) Round1PrivateSend(p *Participant, recipientID int) (*Round1PrivateData, error) {
	toID, err := f.IDFromInt(recipientID)
	if err != nil {
		return nil, err
	}
	share := f.evalPolynomial(p.coefficients, toID)

	return &Round1PrivateData{
		FromID: p.id,
		ToID:   toID,
		Share:  share,
	}, nil
}

// Round2ReceiveShare verifies a received share against the sender's public
// commitments and stores it if valid. Returns an error if the share fails
// verification, indicating a potentially malicious sender.
//
// The verification uses Feldman's VSS scheme: it checks that
// share * G == sum(Commitment[i] * recipientID^i).
//
// Unexpected senders (not part of this DKG run) are the caller's
// responsibility to filter before calling this; this method only checks
// the cryptographic validity of the share itself.
func (f *FROST) Round2ReceiveShare(p *Participant, data *Round1PrivateData, senderCommitments []group.Point) error {
	if !feldmanCheck(f.group, data.Share, data.ToID, senderCommitments) {
		return errors.New("invalid share from participant: Feldman verification failed")
	}

	// Store the share
	key := string(data.FromID.Bytes())
	p.receivedShares[key] = data.Share
	return nil
}

// one returns the multiplicative identity scalar of g.
func one(g group.Group) group.Scalar {
	buf := make([]byte, 32)
	buf[31] = 1
	s, _ := g.NewScalar().SetBytes(buf)
	return s
}

// feldmanCheck verifies share*G == sum(commitments[i] * x^i).
func feldmanCheck(g group.Group, share group.Scalar, x group.Scalar, commitments []group.Point) bool {
	lhs := g.NewPoint().ScalarMult(share, g.Generator())
	rhs := evalCommitments(g, commitments, x)
	return lhs.Equal(rhs)
}

// evalCommitments evaluates sum(commitments[i] * x^i) in the exponent,
// i.e. the public-side analogue of evalPolynomial.
func evalCommitments(g group.Group, commitments []group.Point, x group.Scalar) group.Point {
	result := g.NewPoint()
	xPower := one(g)

	for _, commit := range commitments {
		term := g.NewPoint().ScalarMult(xPower, commit)
		result = g.NewPoint().Add(result, term)
		xPower = g.NewScalar().Mul(xPower, x)
	}
	return result
}

// Finalize completes the DKG protocol for participant p, computing their
// final key share and the group-wide [PublicKeyPackage]. This should be
// called after all shares have been received and verified via
// [FROST.Round2ReceiveShare].
//
// allBroadcasts must contain every participant's Round1Data, including
// this participant's own — per spec this is |Round1Pkg| = n, the DKG's
// completeness condition.
func (f *FROST) Finalize(p *Participant, allBroadcasts []*Round1Data) (*KeyShare, *PublicKeyPackage, error) {
	if len(allBroadcasts) != f.total {
		return nil, nil, errors.New("finalize requires broadcasts from all n participants")
	}

	// Sum all received shares (including our own)
	secretKey := f.evalPolynomial(p.coefficients, p.id)
	for _, share := range p.receivedShares {
		secretKey = f.group.NewScalar().Add(secretKey, share)
	}

	// Compute public key share
	publicKey := f.group.NewPoint().ScalarMult(secretKey, f.group.Generator())

	// Compute group public key: sum of all constant term commitments
	groupKey := f.group.NewPoint()
	for _, broadcast := range allBroadcasts {
		groupKey = f.group.NewPoint().Add(groupKey, broadcast.Commitments[0])
	}

	// Compute every participant's verifying share: for participant j,
	// verifying_share_j = sum_i f_i(j)*G = sum_i sum_k commitments_i[k] * j^k
	verifyingShares := make(map[int]group.Point, len(allBroadcasts))
	for _, target := range allBroadcasts {
		targetInt := IDToInt(target.ID)
		share := f.group.NewPoint()
		for _, broadcast := range allBroadcasts {
			share = f.group.NewPoint().Add(share, evalCommitments(f.group, broadcast.Commitments, target.ID))
		}
		verifyingShares[targetInt] = share
	}

	keyShare := &KeyShare{
		ID:        p.id,
		SecretKey: secretKey,
		PublicKey: publicKey,
		GroupKey:  groupKey,
	}
	pub := &PublicKeyPackage{
		GroupKey:       groupKey,
		VerifyingShare: verifyingShares,
	}

	return keyShare, pub, nil
}
