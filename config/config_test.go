package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "wallet.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
device:
  name: alice
curve: secp256k1
threshold:
  t: 2
  n: 3
peers:
  - id: 2
    addr: "127.0.0.1:9001"
  - id: 3
    addr: "127.0.0.1:9002"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, ":9443", cfg.Device.Listen)
	require.Equal(t, "./keys", cfg.KeyStore.Dir)
	require.EqualValues(t, 30_000_000_000, cfg.CeremonyTimeout.Duration)
}

func TestLoadRejectsBadCurve(t *testing.T) {
	path := writeConfig(t, `
device:
  name: alice
curve: bn254
threshold: {t: 2, n: 3}
peers:
  - {id: 2, addr: "a"}
  - {id: 3, addr: "b"}
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsPeerCountMismatch(t *testing.T) {
	path := writeConfig(t, `
device:
  name: alice
curve: ed25519
threshold: {t: 2, n: 3}
peers:
  - {id: 2, addr: "a"}
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsDuplicatePeerID(t *testing.T) {
	path := writeConfig(t, `
device:
  name: alice
curve: ed25519
threshold: {t: 2, n: 3}
peers:
  - {id: 2, addr: "a"}
  - {id: 2, addr: "b"}
`)
	_, err := Load(path)
	require.Error(t, err)
}
