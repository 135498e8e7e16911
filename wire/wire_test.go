package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := []Msg{
		&DkgR1{CeremonyID: []byte("ceremony-1"), Sender: 1, Commitments: [][]byte{{1, 2, 3}, {4, 5, 6}}},
		&DkgR2{CeremonyID: []byte("ceremony-1"), Sender: 1, Recipient: 2, Share: []byte{7, 8, 9}},
		&SignRequest{SigningID: "sign-1", Sender: 1, Payload: []byte{0xDE, 0xAD}, Threshold: 2},
		&SignRequest{SigningID: "sign-1", Sender: 1, Payload: []byte{0xDE, 0xAD}, Threshold: 2, ChainHint: 1, HasChainHint: true},
		&SignAccept{SigningID: "sign-1", Sender: 2, Accepted: true},
		&SignAccept{SigningID: "sign-1", Sender: 3, Accepted: false},
		&SignerSelection{SigningID: "sign-1", Selected: []int{1, 2}},
		&Commitment{SigningID: "sign-1", Sender: 1, Hiding: []byte{1}, Binding: []byte{2}},
		&Share{SigningID: "sign-1", Sender: 1, Share: []byte{9, 9}},
		&Aggregated{SigningID: "sign-1", SigBytes: []byte{1, 2, 3, 4}},
	}

	for _, m := range cases {
		frame := EncodeFrame(m)
		decoded, err := DecodeFrame(frame)
		require.NoError(t, err)
		require.Equal(t, m, decoded)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	m := &Commitment{SigningID: "x", Sender: 3, Hiding: []byte{1, 2}, Binding: []byte{3, 4}}
	a := EncodeFrame(m)
	b := EncodeFrame(m)
	require.Equal(t, a, b)
}

func TestDecodeFrameRejectsShortFrame(t *testing.T) {
	_, err := DecodeFrame([]byte{0, 0})
	require.Error(t, err)
}

func TestDecodeFrameRejectsLengthMismatch(t *testing.T) {
	m := &SignAccept{SigningID: "x", Accepted: true}
	frame := EncodeFrame(m)
	frame = append(frame, 0xFF) // trailing garbage byte not covered by length
	_, err := DecodeFrame(frame)
	require.Error(t, err)
}
