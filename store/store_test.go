package store

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/f3rmion/frostwallet/frost"
	"github.com/f3rmion/frostwallet/group"
	"github.com/f3rmion/frostwallet/secp256k1"
)

func TestSaveLoadKeyShareRoundTrip(t *testing.T) {
	g := &secp256k1.Secp256k1{}
	dir := t.TempDir()

	secret, err := g.RandomScalar(rand.Reader)
	require.NoError(t, err)
	pub := g.NewPoint().ScalarMult(secret, g.Generator())

	groupSecret, err := g.RandomScalar(rand.Reader)
	require.NoError(t, err)
	groupKey := g.NewPoint().ScalarMult(groupSecret, g.Generator())

	id, err := frost.IDFromInt(g, 7)
	require.NoError(t, err)

	ks := &frost.KeyShare{
		ID:        id,
		SecretKey: secret,
		PublicKey: pub,
		GroupKey:  groupKey,
	}

	require.NoError(t, SaveKeyShare(dir, "secp256k1", 7, ks))

	loaded, err := LoadKeyShare(dir, "secp256k1", 7, g)
	require.NoError(t, err)
	require.True(t, loaded.ID.Equal(ks.ID))
	require.True(t, loaded.SecretKey.Equal(ks.SecretKey))
	require.True(t, loaded.PublicKey.Equal(ks.PublicKey))
	require.True(t, loaded.GroupKey.Equal(ks.GroupKey))
}

func TestSaveLoadPublicKeyPackageRoundTrip(t *testing.T) {
	g := &secp256k1.Secp256k1{}
	dir := t.TempDir()

	groupSecret, err := g.RandomScalar(rand.Reader)
	require.NoError(t, err)
	groupKey := g.NewPoint().ScalarMult(groupSecret, g.Generator())

	verifying := map[int]group.Point{}
	for _, id := range []int{1, 2, 3} {
		s, err := g.RandomScalar(rand.Reader)
		require.NoError(t, err)
		verifying[id] = g.NewPoint().ScalarMult(s, g.Generator())
	}

	pub := &frost.PublicKeyPackage{GroupKey: groupKey, VerifyingShare: verifying}

	require.NoError(t, SavePublicKeyPackage(dir, "secp256k1", 1, pub))

	loaded, err := LoadPublicKeyPackage(dir, "secp256k1", 1, g)
	require.NoError(t, err)
	require.True(t, loaded.GroupKey.Equal(pub.GroupKey))
	require.Len(t, loaded.VerifyingShare, 3)
	for id, pt := range pub.VerifyingShare {
		got, ok := loaded.VerifyingShare[id]
		require.True(t, ok)
		require.True(t, got.Equal(pt))
	}
}

func TestLoadKeyShareMissingFile(t *testing.T) {
	g := &secp256k1.Secp256k1{}
	_, err := LoadKeyShare(t.TempDir(), "secp256k1", 1, g)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeviceNameRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, SaveDeviceName(dir, "secp256k1", 1, "alice-laptop"))

	name, err := LoadDeviceName(dir, "secp256k1", 1)
	require.NoError(t, err)
	require.Equal(t, "alice-laptop", name)
}

func TestLoadDeviceNameMissing(t *testing.T) {
	_, err := LoadDeviceName(t.TempDir(), "secp256k1", 1)
	require.ErrorIs(t, err, ErrNotFound)
}
