// Package coordinator owns the per-device top-level state machine: load or
// generate key material, stand up the network listener, and drive DKG and
// signing ceremonies to completion. It is the thing cmd/frostwallet
// constructs and drives; ceremonies themselves stay stateless beyond one
// run, same as the teacher's session package keeps Participant/SigningSession
// single-purpose and lets the caller own the surrounding lifecycle.
package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/f3rmion/frostwallet/ed25519"
	"github.com/f3rmion/frostwallet/group"
	"github.com/f3rmion/frostwallet/peer"
	"github.com/f3rmion/frostwallet/secp256k1"
	"github.com/f3rmion/frostwallet/session"
	"github.com/f3rmion/frostwallet/store"
	"github.com/f3rmion/frostwallet/wire"
)

// State names the coordinator's position in spec.md §4.7's top-level
// machine: Initial -> (LoadKeys | RunDkg) -> Idle -> SigningActive -> Idle.
type State int

const (
	StateInitial State = iota
	StateIdle
	StateSigningActive
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "initial"
	case StateIdle:
		return "idle"
	case StateSigningActive:
		return "signing_active"
	default:
		return "unknown"
	}
}

// Config carries everything the coordinator needs that isn't learned at
// runtime: this device's identity within the group, the curve to use, the
// addresses of every other device, and where key material is persisted.
type Config struct {
	DeviceID   int
	Threshold  int
	Total      int
	Curve      string // "secp256k1" or "ed25519"
	ListenAddr string
	PeerAddrs  map[int]string // every OTHER participant id -> dial addr
	KeyDir     string
	ChainID    *uint64 // secp256k1 EIP-155 chain id; nil means legacy v

	// CeremonyTimeout bounds each DKG or signing ceremony this device
	// drives or answers: it is applied as a context.WithTimeout around the
	// ceremony's Run/RunInitiator/RunResponder call, so a missing or
	// unresponsive peer manifests as a partial collection and a returned
	// error rather than an indefinite block. Zero means no override: the
	// ceremony runs on the caller's ctx as passed in.
	CeremonyTimeout time.Duration
}

// Coordinator drives one device's participation in the wallet group: it
// owns the listener/inbox/dialer, resolves key material at startup, and
// exposes RunSigningAsInitiator / the background responder loop that
// answers other devices' signing proposals.
type Coordinator struct {
	cfg   Config
	group group.Group

	mu    sync.Mutex
	state State

	participant *session.Participant
	listener    *peer.Listener
	inbox       *peer.Inbox
	dialer      *peer.Dialer
	log         *zap.Logger

	handledMu sync.Mutex
	handled   map[string]bool
}

// New constructs a coordinator for the given group and config. It does not
// touch the network or the filesystem; call Bootstrap to do that.
func New(cfg Config, g group.Group, log *zap.Logger) (*Coordinator, error) {
	p, err := session.NewParticipant(g, cfg.Threshold, cfg.Total, cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("coordinator: new participant: %w", err)
	}
	return &Coordinator{
		cfg:         cfg,
		group:       g,
		state:       StateInitial,
		participant: p,
		log:         log,
		handled:     make(map[string]bool),
	}, nil
}

// ceremonyContext derives a bounded context for one DKG or signing run from
// cfg.CeremonyTimeout, falling back to ctx unmodified when no timeout is
// configured. The returned cancel must always be called.
func (c *Coordinator) ceremonyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.CeremonyTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.cfg.CeremonyTimeout)
}

// State returns the coordinator's current top-level state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bootstrap resolves this device's key material: load it from store if
// present, otherwise run DKG with every peer and persist the result. It
// also binds the listener and starts accepting inbound frames (until
// Close), so call it before Serve. On return the coordinator is in
// StateIdle.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	inbox := peer.NewInbox()
	ln, err := peer.Listen(c.cfg.ListenAddr, inbox)
	if err != nil {
		return fmt.Errorf("coordinator: listen: %w", err)
	}
	c.listener = ln
	c.inbox = inbox
	c.dialer = &peer.Dialer{}
	// The DKG below needs the peers' frames, so accept them from here on.
	go ln.Serve(context.Background())

	ks, err := store.LoadKeyShare(c.cfg.KeyDir, c.cfg.Curve, c.cfg.DeviceID, c.group)
	switch {
	case err == nil:
		pub, perr := store.LoadPublicKeyPackage(c.cfg.KeyDir, c.cfg.Curve, c.cfg.DeviceID, c.group)
		if perr != nil {
			return fmt.Errorf("coordinator: load public key package: %w", perr)
		}
		c.participant.SetKeyShare(ks, pub)
		c.log.Info("loaded existing key share", zap.Int("device_id", c.cfg.DeviceID))
	case errors.Is(err, store.ErrNotFound):
		if err := c.runDKG(ctx); err != nil {
			return fmt.Errorf("coordinator: dkg: %w", err)
		}
	default:
		return fmt.Errorf("coordinator: load key share: %w", err)
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	return nil
}

func (c *Coordinator) runDKG(ctx context.Context) error {
	allIDs := make([]int, 0, c.cfg.Total)
	allIDs = append(allIDs, c.cfg.DeviceID)
	for id := range c.cfg.PeerAddrs {
		allIDs = append(allIDs, id)
	}

	ceremonyID := make([]byte, 16)
	if _, err := rand.Read(ceremonyID); err != nil {
		return fmt.Errorf("generate ceremony id: %w", err)
	}

	dctx, cancel := c.ceremonyContext(ctx)
	defer cancel()

	ceremony := session.NewDKGCeremony(c.participant, ceremonyID, allIDs, c.cfg.PeerAddrs, c.dialer, c.inbox, c.log)
	result, err := ceremony.Run(dctx, rand.Reader)
	if err != nil {
		return err
	}

	if err := store.SaveKeyShare(c.cfg.KeyDir, c.cfg.Curve, c.cfg.DeviceID, result.KeyShare); err != nil {
		return err
	}
	if err := store.SavePublicKeyPackage(c.cfg.KeyDir, c.cfg.Curve, c.cfg.DeviceID, result.PublicKeyPackage); err != nil {
		return err
	}
	return nil
}

// Address renders this device's group public key as the curve-appropriate
// wallet address (Ethereum hex for secp256k1, Solana base58 for ed25519).
func (c *Coordinator) Address() (string, error) {
	pub := c.participant.PublicKeyPackage()
	if pub == nil {
		return "", errors.New("coordinator: no key material yet")
	}
	switch c.cfg.Curve {
	case "secp256k1":
		return secp256k1.Address(pub.GroupKey)
	case "ed25519":
		return ed25519.Address(pub.GroupKey), nil
	default:
		return "", fmt.Errorf("coordinator: unknown curve %q", c.cfg.Curve)
	}
}

// Serve accepts inbound connections and answers other devices' signing
// proposals until ctx is cancelled. Call after Bootstrap.
func (c *Coordinator) Serve(ctx context.Context) error {
	go c.listener.Serve(ctx)
	for {
		reqs := c.inbox.Collect(ctx, 1, c.isUnhandledSignRequest)
		if len(reqs) == 0 {
			return nil // ctx cancelled before a new request arrived
		}
		sr := reqs[0].(*wire.SignRequest)
		c.markHandled(sr.SigningID)
		go c.respond(ctx, sr)
	}
}

func (c *Coordinator) isUnhandledSignRequest(m wire.Msg) bool {
	sr, ok := m.(*wire.SignRequest)
	if !ok {
		return false
	}
	c.handledMu.Lock()
	defer c.handledMu.Unlock()
	return !c.handled[sr.SigningID]
}

func (c *Coordinator) markHandled(signingID string) {
	c.handledMu.Lock()
	defer c.handledMu.Unlock()
	c.handled[signingID] = true
}

func (c *Coordinator) respond(ctx context.Context, sr *wire.SignRequest) {
	initiatorAddr, ok := c.cfg.PeerAddrs[sr.Sender]
	if !ok {
		c.log.Warn("sign request from unknown sender", zap.Int("sender", sr.Sender))
		return
	}

	addr, err := c.Address()
	if err != nil {
		c.log.Error("cannot respond to sign request: no address", zap.Error(err))
		return
	}

	var chainID *uint64
	if sr.HasChainHint {
		h := sr.ChainHint
		chainID = &h
	}

	c.mu.Lock()
	c.state = StateSigningActive
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
	}()

	rctx, cancel := c.ceremonyContext(ctx)
	defer cancel()

	ceremony := session.NewSigningCeremony(
		c.participant, sr.SigningID, false, initiatorAddr, sr.Threshold,
		c.cfg.PeerAddrs, c.dialer, c.inbox, c.log, c.cfg.Curve, addr, chainID,
	)
	result, err := ceremony.RunResponder(rctx, rand.Reader, sr.Payload)
	if err != nil {
		c.log.Error("signing ceremony failed", zap.String("signing_id", sr.SigningID), zap.Error(err))
		return
	}
	if result == nil {
		c.log.Info("not selected for signing", zap.String("signing_id", sr.SigningID))
		return
	}
	c.log.Info("signing ceremony complete", zap.String("signing_id", sr.SigningID))
}

// RunSigningAsInitiator proposes and drives a new signing operation over
// payload (already hashed/prepared by the caller; transaction encoding is
// out of scope). It returns once the threshold of signers has produced and
// verified the aggregated signature.
func (c *Coordinator) RunSigningAsInitiator(ctx context.Context, payload []byte) (*session.SigningResult, error) {
	signingID, err := newSigningID()
	if err != nil {
		return nil, err
	}

	addr, err := c.Address()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.state = StateSigningActive
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
	}()

	ictx, cancel := c.ceremonyContext(ctx)
	defer cancel()

	ceremony := session.NewSigningCeremony(
		c.participant, signingID, true, "", c.cfg.Threshold,
		c.cfg.PeerAddrs, c.dialer, c.inbox, c.log, c.cfg.Curve, addr, c.cfg.ChainID,
	)
	result, err := ceremony.RunInitiator(ictx, rand.Reader, payload)
	if err != nil {
		return nil, fmt.Errorf("coordinator: signing as initiator: %w", err)
	}
	return result, nil
}

func newSigningID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("coordinator: generate signing id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Close releases the coordinator's listener.
func (c *Coordinator) Close() error {
	if c.listener == nil {
		return nil
	}
	return c.listener.Close()
}
