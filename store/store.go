// Package store persists and reloads a device's FROST key share and the
// group's public key package to disk, the way the teacher corpus's wallet
// keystore persists a single ECDSA key: explicit file paths under a
// configured directory, strict permissions, and wrapped I/O errors rather
// than a database.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/f3rmion/frostwallet/frost"
	"github.com/f3rmion/frostwallet/frosterr"
	"github.com/f3rmion/frostwallet/group"
)

const (
	keyPackageMode = 0o600
	dirMode        = 0o700
)

// ErrNotFound marks an absent key share or public key package, letting
// the coordinator choose LoadKeys vs RunDkg.
var ErrNotFound = errors.New("store: not found")

func keyPackagePath(dir, curve string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("key_package_%s_%d.bin", curve, id))
}

func pubKeyPackagePath(dir, curve string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("pubkey_package_%s_%d.bin", curve, id))
}

func devicePath(dir, curve string, id int) string {
	return filepath.Join(dir, fmt.Sprintf("device_%s_%d.yaml", curve, id))
}

type deviceFile struct {
	DeviceName string `yaml:"deviceName"`
}

// SaveDeviceName persists the operator-facing device name alongside the
// key material, in its own small YAML sidecar rather than the binary
// package files.
func SaveDeviceName(dir, curve string, id int, name string) error {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", frosterr.ErrPersistenceFailure, dir, err)
	}
	b, err := yaml.Marshal(deviceFile{DeviceName: name})
	if err != nil {
		return fmt.Errorf("%w: marshal device name: %v", frosterr.ErrPersistenceFailure, err)
	}
	path := devicePath(dir, curve, id)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", frosterr.ErrPersistenceFailure, path, err)
	}
	return nil
}

// LoadDeviceName reads back the name saved by SaveDeviceName.
func LoadDeviceName(dir, curve string, id int) (string, error) {
	path := devicePath(dir, curve, id)
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: read %s: %v", frosterr.ErrPersistenceFailure, path, err)
	}
	var df deviceFile
	if err := yaml.Unmarshal(b, &df); err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", frosterr.ErrPersistenceFailure, path, err)
	}
	return df.DeviceName, nil
}

// SaveKeyShare writes ks to dir, creating dir if needed, with 0600
// permissions since the file contains this device's secret share.
func SaveKeyShare(dir, curve string, id int, ks *frost.KeyShare) error {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", frosterr.ErrPersistenceFailure, dir, err)
	}

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.VarintType)
	buf = protowire.AppendVarint(buf, uint64(id))
	buf = protowire.AppendTag(buf, 2, protowire.BytesType)
	buf = protowire.AppendBytes(buf, ks.ID.Bytes())
	buf = protowire.AppendTag(buf, 3, protowire.BytesType)
	buf = protowire.AppendBytes(buf, ks.SecretKey.Bytes())
	buf = protowire.AppendTag(buf, 4, protowire.BytesType)
	buf = protowire.AppendBytes(buf, ks.PublicKey.Bytes())
	buf = protowire.AppendTag(buf, 5, protowire.BytesType)
	buf = protowire.AppendBytes(buf, ks.GroupKey.Bytes())

	path := keyPackagePath(dir, curve, id)
	if err := os.WriteFile(path, buf, keyPackageMode); err != nil {
		return fmt.Errorf("%w: write %s: %v", frosterr.ErrPersistenceFailure, path, err)
	}
	return nil
}

// LoadKeyShare reads back a key share saved by SaveKeyShare, reconstructing
// scalars and points against g.
func LoadKeyShare(dir, curve string, id int, g group.Group) (*frost.KeyShare, error) {
	path := keyPackagePath(dir, curve, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read %s: %v", frosterr.ErrPersistenceFailure, path, err)
	}

	fields, err := parseFields(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", frosterr.ErrPersistenceFailure, path, err)
	}

	idBytes, ok := firstBytes(fields, 2)
	if !ok {
		return nil, fmt.Errorf("%w: %s missing participant id", frosterr.ErrPersistenceFailure, path)
	}
	idScalar, err := g.NewScalar().SetBytes(idBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s bad participant id: %v", frosterr.ErrPersistenceFailure, path, err)
	}

	secretBytes, ok := firstBytes(fields, 3)
	if !ok {
		return nil, fmt.Errorf("%w: %s missing secret key", frosterr.ErrPersistenceFailure, path)
	}
	secret, err := g.NewScalar().SetBytes(secretBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s bad secret key: %v", frosterr.ErrPersistenceFailure, path, err)
	}

	pubBytes, ok := firstBytes(fields, 4)
	if !ok {
		return nil, fmt.Errorf("%w: %s missing public key", frosterr.ErrPersistenceFailure, path)
	}
	pub, err := g.NewPoint().SetBytes(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s bad public key: %v", frosterr.ErrPersistenceFailure, path, err)
	}

	groupKeyBytes, ok := firstBytes(fields, 5)
	if !ok {
		return nil, fmt.Errorf("%w: %s missing group key", frosterr.ErrPersistenceFailure, path)
	}
	groupKey, err := g.NewPoint().SetBytes(groupKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s bad group key: %v", frosterr.ErrPersistenceFailure, path, err)
	}

	return &frost.KeyShare{
		ID:        idScalar,
		SecretKey: secret,
		PublicKey: pub,
		GroupKey:  groupKey,
	}, nil
}

// SavePublicKeyPackage writes the group's public verification material.
// Unlike the key share, this file holds no secret and is safe at 0644.
// Every device keeps its own copy, named by its own participant id.
func SavePublicKeyPackage(dir, curve string, id int, pub *frost.PublicKeyPackage) error {
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", frosterr.ErrPersistenceFailure, dir, err)
	}

	var buf []byte
	buf = protowire.AppendTag(buf, 1, protowire.BytesType)
	buf = protowire.AppendBytes(buf, pub.GroupKey.Bytes())

	ids := make([]int, 0, len(pub.VerifyingShare))
	for id := range pub.VerifyingShare {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		buf = protowire.AppendTag(buf, 2, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(id))
		buf = protowire.AppendTag(buf, 3, protowire.BytesType)
		buf = protowire.AppendBytes(buf, pub.VerifyingShare[id].Bytes())
	}

	path := pubKeyPackagePath(dir, curve, id)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", frosterr.ErrPersistenceFailure, path, err)
	}
	return nil
}

// LoadPublicKeyPackage reads back a package saved by SavePublicKeyPackage.
func LoadPublicKeyPackage(dir, curve string, id int, g group.Group) (*frost.PublicKeyPackage, error) {
	path := pubKeyPackagePath(dir, curve, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: read %s: %v", frosterr.ErrPersistenceFailure, path, err)
	}

	fields, err := parseFields(data)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", frosterr.ErrPersistenceFailure, path, err)
	}

	groupKeyBytes, ok := firstBytes(fields, 1)
	if !ok {
		return nil, fmt.Errorf("%w: %s missing group key", frosterr.ErrPersistenceFailure, path)
	}
	groupKey, err := g.NewPoint().SetBytes(groupKeyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s bad group key: %v", frosterr.ErrPersistenceFailure, path, err)
	}

	shares := make(map[int]group.Point)
	var pendingID int
	var havePendingID bool
	for _, f := range fields {
		switch f.num {
		case 2:
			pendingID = int(f.vint)
			havePendingID = true
		case 3:
			if !havePendingID {
				return nil, fmt.Errorf("%w: %s share without id", frosterr.ErrPersistenceFailure, path)
			}
			pt, err := g.NewPoint().SetBytes(f.bytes)
			if err != nil {
				return nil, fmt.Errorf("%w: %s bad verifying share for %d: %v", frosterr.ErrPersistenceFailure, path, pendingID, err)
			}
			shares[pendingID] = pt
			havePendingID = false
		}
	}

	return &frost.PublicKeyPackage{GroupKey: groupKey, VerifyingShare: shares}, nil
}

type field struct {
	num   int
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
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fields = append(fields, field{num: int(num), bytes: append([]byte(nil), b...)})
			data = data[n:]
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			fields = append(fields, field{num: int(num), vint: v})
			data = data[n:]
		default:
			return nil, fmt.Errorf("store: unsupported wire type %d", typ)
		}
	}
	return fields, nil
}

func firstBytes(fields []field, num int) ([]byte, bool) {
	for _, f := range fields {
		if f.num == num {
			return f.bytes, true
		}
	}
	return nil, false
}
