package session

import (
	"context"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/f3rmion/frostwallet/peer"
	"github.com/f3rmion/frostwallet/secp256k1"
)

type ceremonyNode struct {
	id       int
	p        *Participant
	listener *peer.Listener
	inbox    *peer.Inbox
	dialer   *peer.Dialer
}

func startNodes(t *testing.T, n, threshold int) []*ceremonyNode {
	t.Helper()
	nodes := make([]*ceremonyNode, n)
	for i := 0; i < n; i++ {
		id := i + 1
		g := &secp256k1.Secp256k1{}
		p, err := NewParticipant(g, threshold, n, id)
		require.NoError(t, err)

		inbox := peer.NewInbox()
		ln, err := peer.Listen("127.0.0.1:0", inbox)
		require.NoError(t, err)
		nodes[i] = &ceremonyNode{id: id, p: p, listener: ln, inbox: inbox, dialer: &peer.Dialer{}}
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	for _, nd := range nodes {
		nd := nd
		go nd.listener.Serve(ctx)
	}
	t.Cleanup(func() {
		for _, nd := range nodes {
			nd.listener.Close()
		}
	})

	return nodes
}

func peerAddrsExcluding(nodes []*ceremonyNode, self int) map[int]string {
	addrs := make(map[int]string)
	for _, nd := range nodes {
		if nd.id == self {
			continue
		}
		addrs[nd.id] = nd.listener.Addr().String()
	}
	return addrs
}

func allIDs(nodes []*ceremonyNode) []int {
	ids := make([]int, len(nodes))
	for i, nd := range nodes {
		ids[i] = nd.id
	}
	return ids
}

func runDKG(t *testing.T, nodes []*ceremonyNode) []*DKGResult {
	t.Helper()
	log := zap.NewNop()
	ids := allIDs(nodes)

	results := make([]*DKGResult, len(nodes))
	errs := make([]error, len(nodes))
	var wg sync.WaitGroup
	for i, nd := range nodes {
		i, nd := i, nd
		wg.Add(1)
		go func() {
			defer wg.Done()
			ceremony := NewDKGCeremony(nd.p, []byte("ceremony-1"), ids, peerAddrsExcluding(nodes, nd.id), nd.dialer, nd.inbox, log)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			results[i], errs[i] = ceremony.Run(ctx, rand.Reader)
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "node %d dkg", nodes[i].id)
	}
	return results
}

func TestDKGCeremonyOverTCP(t *testing.T) {
	nodes := startNodes(t, 3, 2)
	results := runDKG(t, nodes)

	for i := range nodes {
		require.True(t, results[i].GroupKey.Equal(results[0].GroupKey))
	}
}

func TestSigningCeremonyOverTCP(t *testing.T) {
	nodes := startNodes(t, 3, 2)
	dkgResults := runDKG(t, nodes)

	addr, err := secp256k1.Address(dkgResults[0].GroupKey)
	require.NoError(t, err)

	payload := make([]byte, 32)
	_, err = rand.Read(payload)
	require.NoError(t, err)

	signingID := "sign-1"
	log := zap.NewNop()

	type outcome struct {
		res *SigningResult
		err error
	}
	outcomes := make([]outcome, len(nodes))

	var wg sync.WaitGroup
	for i, nd := range nodes {
		i, nd := i, nd
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if nd.id == 1 {
				ceremony := NewSigningCeremony(nd.p, signingID, true, "", 2,
					peerAddrsExcluding(nodes, nd.id), nd.dialer, nd.inbox, log,
					"secp256k1", addr, nil)
				outcomes[i].res, outcomes[i].err = ceremony.RunInitiator(ctx, rand.Reader, payload)
				return
			}

			initiatorAddr := nodes[0].listener.Addr().String()
			ceremony := NewSigningCeremony(nd.p, signingID, false, initiatorAddr, 2,
				peerAddrsExcluding(nodes, nd.id), nd.dialer, nd.inbox, log,
				"secp256k1", addr, nil)
			outcomes[i].res, outcomes[i].err = ceremony.RunResponder(ctx, rand.Reader, payload)
		}()
	}
	wg.Wait()

	require.NoError(t, outcomes[0].err)
	require.NotNil(t, outcomes[0].res)
	require.True(t, outcomes[0].res.HasV)

	selectedCount := 0
	for _, o := range outcomes {
		if o.res != nil {
			selectedCount++
			require.NoError(t, o.err)
		}
	}
	require.GreaterOrEqual(t, selectedCount, 2)
}
