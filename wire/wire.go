// Package wire defines the closed tagged union of protocol messages
// exchanged between devices and their canonical, deterministic binary
// encoding. Messages are framed as [4-byte big-endian length][1-byte
// tag][field stream]; the field stream itself uses
// google.golang.org/protobuf/encoding/protowire's varint/length-delimited
// primitives directly — there is no .proto/codegen step, only hand-written
// canonical framing, which is the property FROST's SigningPackage
// byte-identity requirement actually needs.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Tag identifies a message's concrete type on the wire.
type Tag byte

const (
	TagDkgR1 Tag = iota + 1
	TagDkgR2
	TagSignRequest
	TagSignAccept
	TagSignerSelection
	TagCommitment
	TagShare
	TagAggregated
)

// Field numbers used inside each message's field stream. Numbers are
// scoped per-tag, not globally, since each Msg implementation owns its
// own decoder.
const (
	fCeremonyID = 1
	fSender     = 2
	fCommits    = 3 // repeated bytes, one per polynomial commitment
	fRecipient  = 4
	fShare      = 5

	fSigningID    = 1
	fPayload      = 2
	fThreshold    = 3
	fChainHint    = 4
	fHasChain     = 5
	fReqSender    = 6
	fAcceptSender = 2
	fAccepted     = 3
	fSelected     = 2
	fHiding       = 3
	fBinding      = 4
	fSigBytes     = 2
)

// Msg is implemented by every protocol message. Encode appends this
// message's field stream (not including the frame length or tag) to buf.
type Msg interface {
	Tag() Tag
	Encode(buf []byte) []byte
}

// DkgR1 is the round-1 DKG broadcast: a participant's polynomial
// commitments, tagged with the ceremony that scopes this DKG run.
type DkgR1 struct {
	CeremonyID  []byte
	Sender      int
	Commitments [][]byte // canonical group.Point encodings
}

func (m *DkgR1) Tag() Tag { return TagDkgR1 }

func (m *DkgR1) Encode(buf []byte) []byte {
	buf = protowire.AppendTag(buf, fCeremonyID, protowire.BytesType)
	buf = protowire.AppendBytes(buf, m.CeremonyID)
	buf = protowire.AppendTag(buf, fSender, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.Sender))
	for _, c := range m.Commitments {
		buf = protowire.AppendTag(buf, fCommits, protowire.BytesType)
		buf = protowire.AppendBytes(buf, c)
	}
	return buf
}

// DkgR2 is the round-2 DKG unicast: one Shamir share from Sender to
// Recipient, tagged with the ceremony that scopes this DKG run.
type DkgR2 struct {
	CeremonyID []byte
	Sender     int
	Recipient  int
	Share      []byte // canonical group.Scalar encoding
}

func (m *DkgR2) Tag() Tag { return TagDkgR2 }

func (m *DkgR2) Encode(buf []byte) []byte {
	buf = protowire.AppendTag(buf, fCeremonyID, protowire.BytesType)
	buf = protowire.AppendBytes(buf, m.CeremonyID)
	buf = protowire.AppendTag(buf, fSender, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.Sender))
	buf = protowire.AppendTag(buf, fRecipient, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.Recipient))
	buf = protowire.AppendTag(buf, fShare, protowire.BytesType)
	buf = protowire.AppendBytes(buf, m.Share)
	return buf
}

// SignRequest is broadcast by the initiator to propose a signing session.
// ChainHint is the EIP-155 chain id used for secp256k1 recovery-id search;
// HasChainHint distinguishes "absent" from chain id zero. Sender lets a
// responder look up the initiator's dial address to reply with SignAccept.
type SignRequest struct {
	SigningID    string
	Sender       int
	Payload      []byte
	Threshold    int
	ChainHint    uint64
	HasChainHint bool
}

func (m *SignRequest) Tag() Tag { return TagSignRequest }

func (m *SignRequest) Encode(buf []byte) []byte {
	buf = protowire.AppendTag(buf, fSigningID, protowire.BytesType)
	buf = protowire.AppendString(buf, m.SigningID)
	buf = protowire.AppendTag(buf, fReqSender, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.Sender))
	buf = protowire.AppendTag(buf, fPayload, protowire.BytesType)
	buf = protowire.AppendBytes(buf, m.Payload)
	buf = protowire.AppendTag(buf, fThreshold, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.Threshold))
	if m.HasChainHint {
		buf = protowire.AppendTag(buf, fChainHint, protowire.VarintType)
		buf = protowire.AppendVarint(buf, m.ChainHint)
		buf = protowire.AppendTag(buf, fHasChain, protowire.VarintType)
		buf = protowire.AppendVarint(buf, 1)
	}
	return buf
}

// SignAccept is sent by a device in response to a SignRequest.
type SignAccept struct {
	SigningID string
	Sender    int
	Accepted  bool
}

func (m *SignAccept) Tag() Tag { return TagSignAccept }

func (m *SignAccept) Encode(buf []byte) []byte {
	buf = protowire.AppendTag(buf, fSigningID, protowire.BytesType)
	buf = protowire.AppendString(buf, m.SigningID)
	buf = protowire.AppendTag(buf, fAcceptSender, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.Sender))
	v := uint64(0)
	if m.Accepted {
		v = 1
	}
	buf = protowire.AppendTag(buf, fAccepted, protowire.VarintType)
	buf = protowire.AppendVarint(buf, v)
	return buf
}

// SignerSelection is broadcast by the initiator once >= t devices have
// accepted; Selected is exactly t identifiers including the initiator.
type SignerSelection struct {
	SigningID string
	Selected  []int
}

func (m *SignerSelection) Tag() Tag { return TagSignerSelection }

func (m *SignerSelection) Encode(buf []byte) []byte {
	buf = protowire.AppendTag(buf, fSigningID, protowire.BytesType)
	buf = protowire.AppendString(buf, m.SigningID)
	for _, id := range m.Selected {
		buf = protowire.AppendTag(buf, fSelected, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(id))
	}
	return buf
}

// Commitment is a signer's one-shot nonce commitment for round 1 of
// signing.
type Commitment struct {
	SigningID string
	Sender    int
	Hiding    []byte
	Binding   []byte
}

func (m *Commitment) Tag() Tag { return TagCommitment }

func (m *Commitment) Encode(buf []byte) []byte {
	buf = protowire.AppendTag(buf, fSigningID, protowire.BytesType)
	buf = protowire.AppendString(buf, m.SigningID)
	buf = protowire.AppendTag(buf, fSender, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.Sender))
	buf = protowire.AppendTag(buf, fHiding, protowire.BytesType)
	buf = protowire.AppendBytes(buf, m.Hiding)
	buf = protowire.AppendTag(buf, fBinding, protowire.BytesType)
	buf = protowire.AppendBytes(buf, m.Binding)
	return buf
}

// Share is a signer's partial signature contribution for round 2 of
// signing.
type Share struct {
	SigningID string
	Sender    int
	Share     []byte
}

func (m *Share) Tag() Tag { return TagShare }

func (m *Share) Encode(buf []byte) []byte {
	buf = protowire.AppendTag(buf, fSigningID, protowire.BytesType)
	buf = protowire.AppendString(buf, m.SigningID)
	buf = protowire.AppendTag(buf, fSender, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(m.Sender))
	buf = protowire.AppendTag(buf, fShare, protowire.BytesType)
	buf = protowire.AppendBytes(buf, m.Share)
	return buf
}

// Aggregated carries the final signature from the initiator to every
// other device.
type Aggregated struct {
	SigningID string
	SigBytes  []byte
}

func (m *Aggregated) Tag() Tag { return TagAggregated }

func (m *Aggregated) Encode(buf []byte) []byte {
	buf = protowire.AppendTag(buf, fSigningID, protowire.BytesType)
	buf = protowire.AppendString(buf, m.SigningID)
	buf = protowire.AppendTag(buf, fSigBytes, protowire.BytesType)
	buf = protowire.AppendBytes(buf, m.SigBytes)
	return buf
}

// EncodeFrame produces the full wire frame for m: length prefix, tag byte,
// then m's field stream.
func EncodeFrame(m Msg) []byte {
	body := m.Encode(nil)
	frame := make([]byte, 4, 5+len(body))
	binary.BigEndian.PutUint32(frame, uint32(len(body)+1))
	frame = append(frame, byte(m.Tag()))
	frame = append(frame, body...)
	return frame
}

// DecodeFrame strips the length prefix and tag from a raw frame (as read
// off a connection) and decodes the field stream into the concrete Msg.
func DecodeFrame(frame []byte) (Msg, error) {
	if len(frame) < 5 {
		return nil, errors.New("wire: frame too short")
	}
	length := binary.BigEndian.Uint32(frame[:4])
	body := frame[4:]
	if uint32(len(body)) != length {
		return nil, fmt.Errorf("wire: frame length mismatch: header says %d, got %d", length, len(body))
	}
	tag := Tag(body[0])
	fields, err := parseFields(body[1:])
	if err != nil {
		return nil, fmt.Errorf("wire: parse fields for tag %d: %w", tag, err)
	}
	switch tag {
	case TagDkgR1:
		return decodeDkgR1(fields)
	case TagDkgR2:
		return decodeDkgR2(fields)
	case TagSignRequest:
		return decodeSignRequest(fields)
	case TagSignAccept:
		return decodeSignAccept(fields)
	case TagSignerSelection:
		return decodeSignerSelection(fields)
	case TagCommitment:
		return decodeCommitment(fields)
	case TagShare:
		return decodeShare(fields)
	case TagAggregated:
		return decodeAggregated(fields)
	default:
		return nil, fmt.Errorf("wire: unknown tag %d", tag)
	}
}

// field is one (number, bytes-or-varint) entry from a decoded field
// stream. Repeated fields (commitments, selected ids) appear as multiple
// entries with the same number, in wire order.
type field struct {
	num   protowire.Number
	bytes []byte
	vint  uint64
}

func parseFields(data []byte) ([]field, error) {
	var fields []field
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		data = data[n:]
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fields = append(fields, field{num: num, bytes: append([]byte(nil), v...)})
			data = data[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fields = append(fields, field{num: num, vint: v})
			data = data[n:]
		default:
			return nil, fmt.Errorf("wire: unsupported field type %v", typ)
		}
	}
	return fields, nil
}

func firstBytes(fields []field, num protowire.Number) ([]byte, bool) {
	for _, f := range fields {
		if f.num == num {
			return f.bytes, true
		}
	}
	return nil, false
}

func firstVarint(fields []field, num protowire.Number) (uint64, bool) {
	for _, f := range fields {
		if f.num == num {
			return f.vint, true
		}
	}
	return 0, false
}

func allBytes(fields []field, num protowire.Number) [][]byte {
	var out [][]byte
	for _, f := range fields {
		if f.num == num {
			out = append(out, f.bytes)
		}
	}
	return out
}

func allVarints(fields []field, num protowire.Number) []uint64 {
	var out []uint64
	for _, f := range fields {
		if f.num == num {
			out = append(out, f.vint)
		}
	}
	return out
}

func decodeDkgR1(fields []field) (*DkgR1, error) {
	ceremonyID, _ := firstBytes(fields, fCeremonyID)
	sender, ok := firstVarint(fields, fSender)
	if !ok {
		return nil, errors.New("wire: DkgR1 missing sender")
	}
	return &DkgR1{
		CeremonyID:  ceremonyID,
		Sender:      int(sender),
		Commitments: allBytes(fields, fCommits),
	}, nil
}

func decodeDkgR2(fields []field) (*DkgR2, error) {
	ceremonyID, _ := firstBytes(fields, fCeremonyID)
	sender, ok := firstVarint(fields, fSender)
	if !ok {
		return nil, errors.New("wire: DkgR2 missing sender")
	}
	recipient, ok := firstVarint(fields, fRecipient)
	if !ok {
		return nil, errors.New("wire: DkgR2 missing recipient")
	}
	share, ok := firstBytes(fields, fShare)
	if !ok {
		return nil, errors.New("wire: DkgR2 missing share")
	}
	return &DkgR2{
		CeremonyID: ceremonyID,
		Sender:     int(sender),
		Recipient:  int(recipient),
		Share:      share,
	}, nil
}

func decodeSignRequest(fields []field) (*SignRequest, error) {
	signingID, ok := firstBytes(fields, fSigningID)
	if !ok {
		return nil, errors.New("wire: SignRequest missing signing_id")
	}
	sender, ok := firstVarint(fields, fReqSender)
	if !ok {
		return nil, errors.New("wire: SignRequest missing sender")
	}
	payload, _ := firstBytes(fields, fPayload)
	threshold, ok := firstVarint(fields, fThreshold)
	if !ok {
		return nil, errors.New("wire: SignRequest missing threshold")
	}
	chainHint, hasChain := firstVarint(fields, fChainHint)
	_, hasChainFlag := firstVarint(fields, fHasChain)
	return &SignRequest{
		SigningID:    string(signingID),
		Sender:       int(sender),
		Payload:      payload,
		Threshold:    int(threshold),
		ChainHint:    chainHint,
		HasChainHint: hasChain && hasChainFlag,
	}, nil
}

func decodeSignAccept(fields []field) (*SignAccept, error) {
	signingID, ok := firstBytes(fields, fSigningID)
	if !ok {
		return nil, errors.New("wire: SignAccept missing signing_id")
	}
	sender, ok := firstVarint(fields, fAcceptSender)
	if !ok {
		return nil, errors.New("wire: SignAccept missing sender")
	}
	accepted, _ := firstVarint(fields, fAccepted)
	return &SignAccept{
		SigningID: string(signingID),
		Sender:    int(sender),
		Accepted:  accepted != 0,
	}, nil
}

func decodeSignerSelection(fields []field) (*SignerSelection, error) {
	signingID, ok := firstBytes(fields, fSigningID)
	if !ok {
		return nil, errors.New("wire: SignerSelection missing signing_id")
	}
	ids := allVarints(fields, fSelected)
	selected := make([]int, len(ids))
	for i, v := range ids {
		selected[i] = int(v)
	}
	return &SignerSelection{
		SigningID: string(signingID),
		Selected:  selected,
	}, nil
}

func decodeCommitment(fields []field) (*Commitment, error) {
	signingID, ok := firstBytes(fields, fSigningID)
	if !ok {
		return nil, errors.New("wire: Commitment missing signing_id")
	}
	sender, ok := firstVarint(fields, fSender)
	if !ok {
		return nil, errors.New("wire: Commitment missing sender")
	}
	hiding, ok := firstBytes(fields, fHiding)
	if !ok {
		return nil, errors.New("wire: Commitment missing hiding point")
	}
	binding, ok := firstBytes(fields, fBinding)
	if !ok {
		return nil, errors.New("wire: Commitment missing binding point")
	}
	return &Commitment{
		SigningID: string(signingID),
		Sender:    int(sender),
		Hiding:    hiding,
		Binding:   binding,
	}, nil
}

func decodeShare(fields []field) (*Share, error) {
	signingID, ok := firstBytes(fields, fSigningID)
	if !ok {
		return nil, errors.New("wire: Share missing signing_id")
	}
	sender, ok := firstVarint(fields, fSender)
	if !ok {
		return nil, errors.New("wire: Share missing sender")
	}
	share, ok := firstBytes(fields, fShare)
	if !ok {
		return nil, errors.New("wire: Share missing share")
	}
	return &Share{
		SigningID: string(signingID),
		Sender:    int(sender),
		Share:     share,
	}, nil
}

func decodeAggregated(fields []field) (*Aggregated, error) {
	signingID, ok := firstBytes(fields, fSigningID)
	if !ok {
		return nil, errors.New("wire: Aggregated missing signing_id")
	}
	sigBytes, ok := firstBytes(fields, fSigBytes)
	if !ok {
		return nil, errors.New("wire: Aggregated missing sig_bytes")
	}
	return &Aggregated{
		SigningID: string(signingID),
		SigBytes:  sigBytes,
	}, nil
}
