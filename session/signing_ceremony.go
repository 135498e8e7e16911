package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/f3rmion/frostwallet/frost"
	"github.com/f3rmion/frostwallet/frosterr"
	"github.com/f3rmion/frostwallet/group"
	"github.com/f3rmion/frostwallet/peer"
	"github.com/f3rmion/frostwallet/secp256k1"
	"github.com/f3rmion/frostwallet/wire"
)

// SigningResult is the outcome of a completed SigningCeremony.
type SigningResult struct {
	Signature *frost.Signature

	// V is the Ethereum recovery id, set only when the ceremony's curve
	// is secp256k1 and a chain hint (or legacy form) search succeeded.
	V    uint64
	HasV bool
}

// SigningCeremony drives spec.md's uniform signing state machine:
// Idle -> AwaitingAcceptance -> SignerSelection -> CommitmentPhase ->
// SharePhase -> Aggregation/Verification. The initiator runs all stages;
// non-initiators respond to SignRequest/SignerSelection and otherwise
// mirror the same commitment/share exchange.
type SigningCeremony struct {
	participant   *Participant
	signingID     string
	initiator     bool
	initiatorAddr string // set for responders; the device to send SignAccept to
	threshold     int
	peerAddrs     map[int]string // every OTHER participant, id -> addr
	dialer        *peer.Dialer
	inbox         *peer.Inbox
	log           *zap.Logger
	curve         string // "secp256k1" or "ed25519"
	expectedAddr  string
	chainID       *uint64
}

// NewSigningCeremony builds a ceremony for one signing attempt, identified
// by signingID across every participating device. initiatorAddr is only
// consulted by RunResponder and may be empty when this device is itself
// the initiator.
func NewSigningCeremony(
	p *Participant,
	signingID string,
	initiator bool,
	initiatorAddr string,
	threshold int,
	peerAddrs map[int]string,
	dialer *peer.Dialer,
	inbox *peer.Inbox,
	log *zap.Logger,
	curve string,
	expectedAddr string,
	chainID *uint64,
) *SigningCeremony {
	return &SigningCeremony{
		participant:   p,
		signingID:     signingID,
		initiator:     initiator,
		initiatorAddr: initiatorAddr,
		threshold:     threshold,
		peerAddrs:     peerAddrs,
		dialer:        dialer,
		inbox:         inbox,
		log:           log,
		curve:         curve,
		expectedAddr:  expectedAddr,
		chainID:       chainID,
	}
}

// RunInitiator drives the full state machine as the device that proposed
// this signing operation: request acceptance, select exactly threshold
// signers (including itself), exchange commitments and shares, aggregate,
// verify, and (for secp256k1) search for the recovery id.
func (c *SigningCeremony) RunInitiator(ctx context.Context, rng io.Reader, payload []byte) (*SigningResult, error) {
	if err := c.broadcastSignRequest(ctx, payload); err != nil {
		c.log.Warn("sign request broadcast had failures", zap.Error(err))
	}

	accepted := []int{c.participant.ID()}
	acceptMsgs := c.inbox.Collect(ctx, c.threshold-1, func(m wire.Msg) bool {
		a, ok := m.(*wire.SignAccept)
		return ok && a.SigningID == c.signingID && a.Accepted
	})
	if len(acceptMsgs) < c.threshold-1 {
		return nil, fmt.Errorf("%w: got %d/%d acceptances", frosterr.ErrInsufficientParticipants, len(acceptMsgs), c.threshold-1)
	}
	for _, m := range acceptMsgs {
		a := m.(*wire.SignAccept)
		accepted = append(accepted, a.Sender)
	}
	sort.Ints(accepted)
	selected := accepted[:c.threshold]

	if err := c.broadcastSelection(ctx, selected); err != nil {
		c.log.Warn("signer selection broadcast had failures", zap.Error(err))
	}

	return c.runSelected(ctx, rng, payload, selected)
}

// RunResponder drives the non-initiator path: send acceptance, wait for
// the signer selection, and if selected, join the commitment/share
// exchange.
func (c *SigningCeremony) RunResponder(ctx context.Context, rng io.Reader, payload []byte) (*SigningResult, error) {
	if c.initiatorAddr == "" {
		return nil, errors.New("session: responder has no initiator address")
	}
	accept := &wire.SignAccept{SigningID: c.signingID, Sender: c.participant.ID(), Accepted: true}
	if err := c.dialer.Unicast(ctx, c.initiatorAddr, wire.EncodeFrame(accept)); err != nil {
		c.log.Warn("sign accept unicast failed", zap.Error(err))
	}

	selMsgs := c.inbox.Collect(ctx, 1, func(m wire.Msg) bool {
		s, ok := m.(*wire.SignerSelection)
		return ok && s.SigningID == c.signingID
	})
	if len(selMsgs) == 0 {
		return nil, fmt.Errorf("%w: no signer selection received", frosterr.ErrInsufficientParticipants)
	}
	selection := selMsgs[0].(*wire.SignerSelection)

	selfSelected := false
	for _, id := range selection.Selected {
		if id == c.participant.ID() {
			selfSelected = true
			break
		}
	}
	if !selfSelected {
		return nil, nil // not selected this round; nothing to do
	}

	return c.runSelected(ctx, rng, payload, selection.Selected)
}

// runSelected performs the commitment phase, share phase, and aggregation
// shared by every selected signer (initiator included).
func (c *SigningCeremony) runSelected(ctx context.Context, rng io.Reader, payload []byte, selected []int) (*SigningResult, error) {
	signingSession, err := c.participant.NewSigningSession(rng, payload)
	if err != nil {
		return nil, fmt.Errorf("signing round1: %w", err)
	}

	ownCommitment := signingSession.Commitment()
	if err := c.broadcastCommitment(ctx, selected, ownCommitment); err != nil {
		c.log.Warn("commitment broadcast had failures", zap.Error(err))
	}

	peerCount := len(selected) - 1
	commitMsgs := c.inbox.Collect(ctx, peerCount, func(m wire.Msg) bool {
		cm, ok := m.(*wire.Commitment)
		return ok && cm.SigningID == c.signingID && inSet(cm.Sender, selected)
	})
	if len(commitMsgs) < peerCount {
		return nil, fmt.Errorf("%w: got %d/%d commitments", frosterr.ErrInsufficientParticipants, len(commitMsgs), peerCount)
	}

	g := c.participant.group
	commitments := []*frost.SigningCommitment{ownCommitment}
	for _, m := range commitMsgs {
		cm := m.(*wire.Commitment)
		sc, err := decodeCommitment(g, cm)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", frosterr.ErrInconsistentInputs, err)
		}
		commitments = append(commitments, sc)
	}
	// The binding factors hash the commitment list in slice order, so every
	// signer orders it the same way: by participant id.
	sort.Slice(commitments, func(i, j int) bool {
		return frost.IDToInt(commitments[i].ID) < frost.IDToInt(commitments[j].ID)
	})

	share, err := signingSession.Sign(commitments)
	if err != nil {
		return nil, fmt.Errorf("signing round2: %w", err)
	}

	if err := c.broadcastShare(ctx, selected, share); err != nil {
		c.log.Warn("share broadcast had failures", zap.Error(err))
	}

	shareMsgs := c.inbox.Collect(ctx, peerCount, func(m wire.Msg) bool {
		sm, ok := m.(*wire.Share)
		return ok && sm.SigningID == c.signingID && inSet(sm.Sender, selected)
	})
	if len(shareMsgs) < peerCount {
		return nil, fmt.Errorf("%w: got %d/%d signature shares", frosterr.ErrInsufficientParticipants, len(shareMsgs), peerCount)
	}

	shares := []*frost.SignatureShare{share}
	for _, m := range shareMsgs {
		sm := m.(*wire.Share)
		ss, err := decodeSignatureShare(g, sm)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", frosterr.ErrInconsistentInputs, err)
		}
		shares = append(shares, ss)
	}

	sig, err := Aggregate(c.participant.frost, payload, commitments, shares)
	if err != nil {
		return nil, fmt.Errorf("aggregate: %w", err)
	}

	pub := c.participant.PublicKeyPackage()
	if pub == nil {
		return nil, errors.New("session: no public key package available for verification")
	}
	if err := Verify(c.participant.frost, payload, sig, pub.GroupKey); err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	result := &SigningResult{Signature: sig}
	if c.curve == "secp256k1" {
		v, err := c.searchRecoveryID(payload, sig)
		if err != nil {
			return nil, err
		}
		result.V = v
		result.HasV = true
	}

	if c.initiator {
		agg := &wire.Aggregated{SigningID: c.signingID, SigBytes: encodeSignature(sig)}
		if err := c.dialer.Broadcast(ctx, addrsOf(c.peerAddrs), wire.EncodeFrame(agg)); err != nil {
			c.log.Warn("aggregated signature broadcast had failures", zap.Error(err))
		}
	}

	return result, nil
}

func (c *SigningCeremony) searchRecoveryID(payload []byte, sig *frost.Signature) (uint64, error) {
	r := sig.R.(*secp256k1.Point).X()
	s := sig.Z.Bytes()
	return secp256k1.FindRecoveryID(payload, r, s, c.expectedAddr, c.chainID)
}

func (c *SigningCeremony) broadcastSignRequest(ctx context.Context, payload []byte) error {
	msg := &wire.SignRequest{
		SigningID: c.signingID,
		Sender:    c.participant.ID(),
		Payload:   payload,
		Threshold: c.threshold,
	}
	if c.chainID != nil {
		msg.ChainHint = *c.chainID
		msg.HasChainHint = true
	}
	return c.dialer.Broadcast(ctx, addrsOf(c.peerAddrs), wire.EncodeFrame(msg))
}

func (c *SigningCeremony) broadcastSelection(ctx context.Context, selected []int) error {
	msg := &wire.SignerSelection{SigningID: c.signingID, Selected: selected}
	return c.dialer.Broadcast(ctx, addrsOf(c.peerAddrs), wire.EncodeFrame(msg))
}

func (c *SigningCeremony) broadcastCommitment(ctx context.Context, selected []int, sc *frost.SigningCommitment) error {
	msg := &wire.Commitment{
		SigningID: c.signingID,
		Sender:    c.participant.ID(),
		Hiding:    sc.HidingPoint.Bytes(),
		Binding:   sc.BindingPoint.Bytes(),
	}
	return c.broadcastTo(ctx, selected, wire.EncodeFrame(msg))
}

func (c *SigningCeremony) broadcastShare(ctx context.Context, selected []int, share *frost.SignatureShare) error {
	msg := &wire.Share{
		SigningID: c.signingID,
		Sender:    c.participant.ID(),
		Share:     share.Z.Bytes(),
	}
	return c.broadcastTo(ctx, selected, wire.EncodeFrame(msg))
}

func (c *SigningCeremony) broadcastTo(ctx context.Context, ids []int, frame []byte) error {
	addrs := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == c.participant.ID() {
			continue
		}
		if addr, ok := c.peerAddrs[id]; ok {
			addrs = append(addrs, addr)
		}
	}
	return c.dialer.Broadcast(ctx, addrs, frame)
}

func inSet(id int, set []int) bool {
	for _, s := range set {
		if s == id {
			return true
		}
	}
	return false
}

func decodeCommitment(g group.Group, m *wire.Commitment) (*frost.SigningCommitment, error) {
	id, err := frost.IDFromInt(g, m.Sender)
	if err != nil {
		return nil, err
	}
	hiding, err := g.NewPoint().SetBytes(m.Hiding)
	if err != nil {
		return nil, fmt.Errorf("decode hiding point: %w", err)
	}
	binding, err := g.NewPoint().SetBytes(m.Binding)
	if err != nil {
		return nil, fmt.Errorf("decode binding point: %w", err)
	}
	return &frost.SigningCommitment{ID: id, HidingPoint: hiding, BindingPoint: binding}, nil
}

func decodeSignatureShare(g group.Group, m *wire.Share) (*frost.SignatureShare, error) {
	id, err := frost.IDFromInt(g, m.Sender)
	if err != nil {
		return nil, err
	}
	z, err := g.NewScalar().SetBytes(m.Share)
	if err != nil {
		return nil, fmt.Errorf("decode share: %w", err)
	}
	return &frost.SignatureShare{ID: id, Z: z}, nil
}

// encodeSignature concatenates R and Z with a 4-byte big-endian length
// prefix on R, so DecodeSignature can split the two back apart without
// needing to know either curve's point/scalar widths in advance.
func encodeSignature(sig *frost.Signature) []byte {
	r := sig.R.Bytes()
	z := sig.Z.Bytes()
	buf := make([]byte, 4, 4+len(r)+len(z))
	binary.BigEndian.PutUint32(buf, uint32(len(r)))
	buf = append(buf, r...)
	buf = append(buf, z...)
	return buf
}

// DecodeSignature reconstructs a *frost.Signature from the bytes carried
// by a wire.Aggregated message, for devices that were not among the
// selected signers but still need the final result.
func DecodeSignature(g group.Group, data []byte) (*frost.Signature, error) {
	if len(data) < 4 {
		return nil, errors.New("session: signature bytes too short")
	}
	rLen := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < rLen {
		return nil, errors.New("session: signature bytes truncated")
	}
	rBytes, zBytes := data[:rLen], data[rLen:]

	r, err := g.NewPoint().SetBytes(rBytes)
	if err != nil {
		return nil, fmt.Errorf("decode R: %w", err)
	}
	z, err := g.NewScalar().SetBytes(zBytes)
	if err != nil {
		return nil, fmt.Errorf("decode Z: %w", err)
	}
	return &frost.Signature{R: r, Z: z}, nil
}
