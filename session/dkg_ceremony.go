package session

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/f3rmion/frostwallet/frost"
	"github.com/f3rmion/frostwallet/frosterr"
	"github.com/f3rmion/frostwallet/group"
	"github.com/f3rmion/frostwallet/peer"
	"github.com/f3rmion/frostwallet/wire"
)

// DKGCeremony drives a single, network-distributed DKG run to completion,
// layering CeremonyID tagging and out-of-order-message buffering on top of
// Participant's local round functions. One ceremony runs once; construct a
// new DKGCeremony per attempt.
type DKGCeremony struct {
	participant *Participant
	ceremonyID  []byte
	peerAddrs   map[int]string // participant id -> dial address, excludes self
	allIDs      []int
	dialer      *peer.Dialer
	inbox       *peer.Inbox
	log         *zap.Logger
}

// NewDKGCeremony builds a ceremony for participant p. peerAddrs must map
// every OTHER participant's id to its dial address; allIDs must list every
// participant including p's own id.
func NewDKGCeremony(p *Participant, ceremonyID []byte, allIDs []int, peerAddrs map[int]string, dialer *peer.Dialer, inbox *peer.Inbox, log *zap.Logger) *DKGCeremony {
	return &DKGCeremony{
		participant: p,
		ceremonyID:  ceremonyID,
		peerAddrs:   peerAddrs,
		allIDs:      allIDs,
		dialer:      dialer,
		inbox:       inbox,
		log:         log,
	}
}

// Run executes round 1 (broadcast commitments, unicast private shares),
// collects every peer's round 1 broadcast and this participant's private
// shares, then finalizes. It fails loudly: any missing or inconsistent
// input is a terminal error for the ceremony, never a silent partial
// result.
func (c *DKGCeremony) Run(ctx context.Context, rng io.Reader) (*DKGResult, error) {
	out, err := c.participant.GenerateRound1(rng, c.allIDs)
	if err != nil {
		return nil, fmt.Errorf("dkg round1: %w", err)
	}

	if err := c.broadcastRound1(ctx, out.Broadcast); err != nil {
		c.log.Warn("dkg round1 broadcast had failures", zap.Error(err))
	}
	if err := c.sendPrivateShares(ctx, out.PrivateShares); err != nil {
		c.log.Warn("dkg round1 private shares had failures", zap.Error(err))
	}

	peerCount := len(c.allIDs) - 1

	r1Msgs := c.inbox.Collect(ctx, peerCount, func(m wire.Msg) bool {
		r1, ok := m.(*wire.DkgR1)
		return ok && bytes.Equal(r1.CeremonyID, c.ceremonyID)
	})
	if len(r1Msgs) < peerCount {
		return nil, fmt.Errorf("%w: got %d/%d round1 broadcasts", frosterr.ErrInsufficientParticipants, len(r1Msgs), peerCount)
	}

	r2Msgs := c.inbox.Collect(ctx, peerCount, func(m wire.Msg) bool {
		r2, ok := m.(*wire.DkgR2)
		return ok && bytes.Equal(r2.CeremonyID, c.ceremonyID) && r2.Recipient == c.participant.ID()
	})
	if len(r2Msgs) < peerCount {
		return nil, fmt.Errorf("%w: got %d/%d round1 private shares", frosterr.ErrInsufficientParticipants, len(r2Msgs), peerCount)
	}

	g := c.participant.group

	broadcasts := make([]*frost.Round1Data, 0, len(c.allIDs))
	broadcasts = append(broadcasts, out.Broadcast)
	for _, m := range r1Msgs {
		r1 := m.(*wire.DkgR1)
		rd, err := decodeRound1Data(g, r1)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", frosterr.ErrInconsistentInputs, err)
		}
		broadcasts = append(broadcasts, rd)
	}

	privateShares := make([]*frost.Round1PrivateData, 0, len(r2Msgs))
	for _, m := range r2Msgs {
		r2 := m.(*wire.DkgR2)
		pd, err := decodeRound1PrivateData(g, r2)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", frosterr.ErrInconsistentInputs, err)
		}
		privateShares = append(privateShares, pd)
	}

	result, err := c.participant.ProcessRound1(&Round1Input{
		Broadcasts:    broadcasts,
		PrivateShares: privateShares,
	})
	if err != nil {
		return nil, fmt.Errorf("dkg finalize: %w", err)
	}

	c.log.Info("dkg ceremony finalized",
		zap.Int("participant_id", c.participant.ID()),
		zap.Int("n", len(c.allIDs)),
		zap.String("group_key", fmt.Sprintf("%x", result.GroupKey.Bytes())),
	)

	return result, nil
}

func (c *DKGCeremony) broadcastRound1(ctx context.Context, bc *frost.Round1Data) error {
	commitments := make([][]byte, len(bc.Commitments))
	for i, pt := range bc.Commitments {
		commitments[i] = pt.Bytes()
	}
	msg := &wire.DkgR1{
		CeremonyID:  c.ceremonyID,
		Sender:      c.participant.ID(),
		Commitments: commitments,
	}
	return c.dialer.Broadcast(ctx, addrsOf(c.peerAddrs), wire.EncodeFrame(msg))
}

func (c *DKGCeremony) sendPrivateShares(ctx context.Context, shares map[int]*frost.Round1PrivateData) error {
	var firstErr error
	for recipientID, share := range shares {
		addr, ok := c.peerAddrs[recipientID]
		if !ok {
			continue
		}
		msg := &wire.DkgR2{
			CeremonyID: c.ceremonyID,
			Sender:     c.participant.ID(),
			Recipient:  recipientID,
			Share:      share.Share.Bytes(),
		}
		if err := c.dialer.Unicast(ctx, addr, wire.EncodeFrame(msg)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func decodeRound1Data(g group.Group, m *wire.DkgR1) (*frost.Round1Data, error) {
	id, err := frost.IDFromInt(g, m.Sender)
	if err != nil {
		return nil, err
	}
	commitments := make([]group.Point, len(m.Commitments))
	for i, b := range m.Commitments {
		pt, err := g.NewPoint().SetBytes(b)
		if err != nil {
			return nil, fmt.Errorf("decode commitment %d: %w", i, err)
		}
		commitments[i] = pt
	}
	return &frost.Round1Data{ID: id, Commitments: commitments}, nil
}

func decodeRound1PrivateData(g group.Group, m *wire.DkgR2) (*frost.Round1PrivateData, error) {
	fromID, err := frost.IDFromInt(g, m.Sender)
	if err != nil {
		return nil, err
	}
	toID, err := frost.IDFromInt(g, m.Recipient)
	if err != nil {
		return nil, err
	}
	share, err := g.NewScalar().SetBytes(m.Share)
	if err != nil {
		return nil, fmt.Errorf("decode share: %w", err)
	}
	return &frost.Round1PrivateData{FromID: fromID, ToID: toID, Share: share}, nil
}

func addrsOf(m map[int]string) []string {
	addrs := make([]string, 0, len(m))
	for _, a := range m {
		addrs = append(addrs, a)
	}
	return addrs
}
