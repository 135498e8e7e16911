package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/f3rmion/frostwallet/config"
	"github.com/f3rmion/frostwallet/coordinator"
	"github.com/f3rmion/frostwallet/ed25519"
	"github.com/f3rmion/frostwallet/group"
	"github.com/f3rmion/frostwallet/logger"
	"github.com/f3rmion/frostwallet/secp256k1"
	"github.com/f3rmion/frostwallet/store"

	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("FROSTWALLET_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/frostwallet.yaml"
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	lg, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	var g group.Group
	switch cfg.Curve {
	case "secp256k1":
		g = &secp256k1.Secp256k1{}
	case "ed25519":
		g = &ed25519.Ed25519{}
	default:
		lg.Sugar().Fatalf("unknown curve %q", cfg.Curve)
	}

	peerAddrs := make(map[int]string, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peerAddrs[p.ID] = p.Addr
	}

	var chainID *uint64
	if cfg.Chain.ID != 0 {
		id := cfg.Chain.ID
		chainID = &id
	}

	ccfg := coordinator.Config{
		DeviceID:        deviceIDFromPeers(cfg, peerAddrs),
		Threshold:       cfg.Threshold.T,
		Total:           cfg.Threshold.N,
		Curve:           cfg.Curve,
		ListenAddr:      cfg.Device.Listen,
		PeerAddrs:       peerAddrs,
		KeyDir:          cfg.KeyStore.Dir,
		ChainID:         chainID,
		CeremonyTimeout: cfg.CeremonyTimeout.Duration,
	}

	co, err := coordinator.New(ccfg, g, logger.With(lg, "coordinator"))
	if err != nil {
		lg.Sugar().Fatalf("coordinator: %v", err)
	}
	defer co.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	_, err = store.LoadDeviceName(cfg.KeyStore.Dir, cfg.Curve, ccfg.DeviceID)
	alreadyEnrolled := err == nil
	if !alreadyEnrolled {
		if !confirm(fmt.Sprintf("device %q has no key material yet; run DKG with %d peers now?", cfg.Device.Name, len(cfg.Peers))) {
			lg.Info("dkg declined by operator")
			return
		}
	}

	if err := co.Bootstrap(ctx); err != nil {
		lg.Sugar().Fatalf("bootstrap: %v", err)
	}
	if !alreadyEnrolled {
		if err := store.SaveDeviceName(cfg.KeyStore.Dir, cfg.Curve, ccfg.DeviceID, cfg.Device.Name); err != nil {
			lg.Sugar().Fatalf("save device name: %v", err)
		}
	}

	addr, err := co.Address()
	if err != nil {
		lg.Sugar().Fatalf("address: %v", err)
	}
	lg.Sugar().Infof("wallet address: %s", addr)

	go func() {
		if err := co.Serve(ctx); err != nil {
			lg.Error("serve exited", zap.Error(err))
		}
	}()

	payload, err := readPayload()
	if err != nil {
		lg.Sugar().Fatalf("read payload: %v", err)
	}
	if payload == nil {
		lg.Info("no payload on stdin; running as a responder only, waiting for signals")
		<-ctx.Done()
		return
	}

	if !confirm(fmt.Sprintf("sign %d bytes as initiator?", len(payload))) {
		lg.Info("signing declined by operator")
		return
	}

	result, err := co.RunSigningAsInitiator(ctx, payload)
	if err != nil {
		lg.Sugar().Fatalf("sign: %v", err)
	}
	if result.HasV {
		fmt.Printf("r=%x s=%x v=%d\n", result.Signature.R.Bytes(), result.Signature.Z.Bytes(), result.V)
	} else {
		fmt.Printf("r=%x s=%x\n", result.Signature.R.Bytes(), result.Signature.Z.Bytes())
	}
}

// deviceIDFromPeers infers this device's own id: the one id in [1,N] not
// present among the configured peers.
func deviceIDFromPeers(cfg *config.Config, peerAddrs map[int]string) int {
	for id := 1; id <= cfg.Threshold.N; id++ {
		if _, isPeer := peerAddrs[id]; !isPeer {
			return id
		}
	}
	return 1
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

// readPayload reads a pre-hashed transaction payload from stdin, if any is
// piped in. Returns nil with no error if stdin is a terminal with nothing
// to read.
func readPayload() ([]byte, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Mode()&os.ModeCharDevice != 0 {
		return nil, nil // interactive terminal, nothing piped in
	}
	b, err := io.ReadAll(os.Stdin)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}
	return b, nil
}
