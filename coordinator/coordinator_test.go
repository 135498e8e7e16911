package coordinator

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

type harnessNode struct {
	id   int
	addr string
	c    *Coordinator
}

func buildGroup(t *testing.T, n, threshold int) ([]*harnessNode, func()) {
	t.Helper()

	// Reserve addresses up front so every node's PeerAddrs can be built
	// before any coordinator binds its own listener.
	addrs := make([]string, n)
	lns := make([]*peer.Listener, n)
	for i := 0; i < n; i++ {
		ln, err := peer.Listen("127.0.0.1:0", peer.NewInbox())
		require.NoError(t, err)
		lns[i] = ln
		addrs[i] = ln.Addr().String()
	}
	for _, ln := range lns {
		require.NoError(t, ln.Close())
	}

	nodes := make([]*harnessNode, n)
	for i := 0; i < n; i++ {
		id := i + 1
		peerAddrs := make(map[int]string)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			peerAddrs[j+1] = addrs[j]
		}

		cfg := Config{
			DeviceID:   id,
			Threshold:  threshold,
			Total:      n,
			Curve:      "secp256k1",
			ListenAddr: addrs[i],
			PeerAddrs:  peerAddrs,
			KeyDir:     t.TempDir(),
		}
		log := zap.NewNop()
		c, err := New(cfg, &secp256k1.Secp256k1{}, log)
		require.NoError(t, err)
		nodes[i] = &harnessNode{id: id, addr: addrs[i], c: c}
	}

	cleanup := func() {
		for _, nd := range nodes {
			nd.c.Close()
		}
	}
	return nodes, cleanup
}

func bootstrapAll(t *testing.T, nodes []*harnessNode) {
	t.Helper()
	var wg sync.WaitGroup
	errs := make([]error, len(nodes))
	for i, nd := range nodes {
		i, nd := i, nd
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			errs[i] = nd.c.Bootstrap(ctx)
		}()
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "node %d bootstrap", nodes[i].id)
		require.Equal(t, StateIdle, nodes[i].c.State())
	}
}

func serveAll(t *testing.T, ctx context.Context, nodes []*harnessNode) {
	t.Helper()
	for _, nd := range nodes {
		nd := nd
		go nd.c.Serve(ctx)
	}
}

func TestBootstrapRunsDkgWhenNoKeysExist(t *testing.T) {
	nodes, cleanup := buildGroup(t, 3, 2)
	defer cleanup()

	bootstrapAll(t, nodes)

	addrsSeen := make(map[string]bool)
	for _, nd := range nodes {
		addr, err := nd.c.Address()
		require.NoError(t, err)
		addrsSeen[addr] = true
	}
	require.Len(t, addrsSeen, 1, "every device must derive the same group address")
}

func TestBootstrapLoadsPersistedKeysOnRestart(t *testing.T) {
	nodes, cleanup := buildGroup(t, 3, 2)
	defer cleanup()
	bootstrapAll(t, nodes)

	addrBefore, err := nodes[0].c.Address()
	require.NoError(t, err)

	// The restarted device reuses node 0's listen address, so node 0 goes
	// down first, as it would in a real restart.
	require.NoError(t, nodes[0].c.Close())

	restarted, err := New(nodes[0].c.cfg, nodes[0].c.group, zap.NewNop())
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, restarted.Bootstrap(ctx))
	defer restarted.Close()

	addrAfter, err := restarted.Address()
	require.NoError(t, err)
	require.Equal(t, addrBefore, addrAfter)
}

func TestSigningEndToEndViaServe(t *testing.T) {
	nodes, cleanup := buildGroup(t, 3, 2)
	defer cleanup()
	bootstrapAll(t, nodes)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	serveAll(t, ctx, nodes[1:]) // responders

	payload := make([]byte, 32)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	result, err := nodes[0].c.RunSigningAsInitiator(ctx, payload)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, result.HasV)
	require.Equal(t, StateIdle, nodes[0].c.State())
}
