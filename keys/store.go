package keys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/mediacid/cidcodec"
)

// KeyStore is a local-first store for root seeds and per-media keys.
//
// EXPERIMENTAL: layout may change in MINOR releases.
//
// Layout:
//
//	<Directory>/<identity>/root.seed            hex root seed
//	<Directory>/<identity>/media/<digest>.key   base64url media key
//
// where <digest> is hex(sha256(store key)), so identifiers never appear in
// file names.
type KeyStore struct {
	Directory string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".mediacid", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func CheckIdentity(identity string) error {
	if identity == "" {
		return errors.New("identity cannot be empty")
	}
	for _, char := range identity {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in identity", char)
	}
	return nil
}

func ParseSeedHex(seedHex string) ([]byte, error) {
	seedHex = strings.TrimSpace(seedHex)
	seedHex = strings.TrimPrefix(seedHex, "0x")
	data, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, err
	}
	if len(data) != SeedSize {
		return nil, fmt.Errorf("expected seed length of %d bytes, got %d", SeedSize, len(data))
	}
	return data, nil
}

func (ks *KeyStore) rootSeedPath(identity string) string {
	return filepath.Join(ks.Directory, identity, "root.seed")
}

func (ks *KeyStore) mediaKeyPath(identity, storeKey string) string {
	sum := sha256.Sum256([]byte(storeKey))
	return filepath.Join(ks.Directory, identity, "media", hex.EncodeToString(sum[:])+".key")
}

func writeSecret(path, contents string, overwrite bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(contents + "\n"); err != nil {
		return err
	}
	return file.Close()
}

// InitializeRootSeed writes the root seed for identity.
func (ks *KeyStore) InitializeRootSeed(identity string, seed []byte, overwrite bool) (string, error) {
	if err := CheckIdentity(identity); err != nil {
		return "", err
	}
	if len(seed) != SeedSize {
		return "", fmt.Errorf("expected seed length of %d bytes", SeedSize)
	}
	path := ks.rootSeedPath(identity)
	return path, writeSecret(path, hex.EncodeToString(seed), overwrite)
}

// RootSeed loads the root seed for identity.
func (ks *KeyStore) RootSeed(identity string) ([]byte, error) {
	if err := CheckIdentity(identity); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(ks.rootSeedPath(identity))
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(string(data))
}

// NewMediaKey derives the key for storeKey from identity's root seed and saves it.
// Calling it again for the same storeKey returns the same key.
func (ks *KeyStore) NewMediaKey(identity, storeKey string) (cidcodec.Key, error) {
	seed, err := ks.RootSeed(identity)
	if err != nil {
		return cidcodec.Key{}, err
	}
	k, err := DeriveMediaKey(seed, storeKey)
	if err != nil {
		return cidcodec.Key{}, err
	}
	if err := ks.SaveMediaKey(identity, storeKey, k); err != nil {
		return cidcodec.Key{}, err
	}
	return k, nil
}

// SaveMediaKey records key as the decryption key for storeKey.
func (ks *KeyStore) SaveMediaKey(identity, storeKey string, key cidcodec.Key) error {
	if err := CheckIdentity(identity); err != nil {
		return err
	}
	if storeKey == "" {
		return errors.New("store key cannot be empty")
	}
	return writeSecret(ks.mediaKeyPath(identity, storeKey), key.String(), true)
}

// MediaKey returns the saved key for storeKey. ok is false when none is saved.
func (ks *KeyStore) MediaKey(identity, storeKey string) (key cidcodec.Key, ok bool, err error) {
	if err := CheckIdentity(identity); err != nil {
		return key, false, err
	}
	data, err := os.ReadFile(ks.mediaKeyPath(identity, storeKey))
	if err != nil {
		if os.IsNotExist(err) {
			return key, false, nil
		}
		return key, false, err
	}
	key, err = cidcodec.ParseKey(strings.TrimSpace(string(data)))
	if err != nil {
		return key, false, err
	}
	return key, true, nil
}

// ListIdentities returns identities that have a directory in the store, sorted.
func (ks *KeyStore) ListIdentities() ([]string, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() {
			out = append(out, entry.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}

// Resolver adapts a KeyStore to per-identity key lookups.
type Resolver struct {
	Store    *KeyStore
	Identity string
}

// ResolveKey looks up the saved key for storeKey.
func (r Resolver) ResolveKey(ctx context.Context, storeKey string) (cidcodec.Key, bool, error) {
	if err := ctx.Err(); err != nil {
		return cidcodec.Key{}, false, err
	}
	if r.Store == nil {
		return cidcodec.Key{}, false, errors.New("keys: resolver has no store")
	}
	return r.Store.MediaKey(r.Identity, storeKey)
}
