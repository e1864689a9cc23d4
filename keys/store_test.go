package keys

import (
	"context"
	"os"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *KeyStore {
	t.Helper()
	ks, err := CreateKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("CreateKeyStore: %v", err)
	}
	seed := make([]byte, SeedSize)
	for i := range seed {
		seed[i] = 0x42
	}
	if _, err := ks.InitializeRootSeed("alice", seed, false); err != nil {
		t.Fatalf("InitializeRootSeed: %v", err)
	}
	return ks
}

func TestNewMediaKeyIsStableAndResolvable(t *testing.T) {
	ks := newTestStore(t)

	k1, err := ks.NewMediaKey("alice", "uSTORE")
	if err != nil {
		t.Fatalf("NewMediaKey: %v", err)
	}
	k2, err := ks.NewMediaKey("alice", "uSTORE")
	if err != nil {
		t.Fatalf("NewMediaKey: %v", err)
	}
	if !k1.Equal(k2) {
		t.Fatalf("expected stable derived key")
	}

	got, ok, err := Resolver{Store: ks, Identity: "alice"}.ResolveKey(context.Background(), "uSTORE")
	if err != nil || !ok {
		t.Fatalf("ResolveKey: ok=%v err=%v", ok, err)
	}
	if !got.Equal(k1) {
		t.Fatalf("resolved key mismatch")
	}

	_, ok, err = Resolver{Store: ks, Identity: "alice"}.ResolveKey(context.Background(), "uOTHER")
	if err != nil || ok {
		t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
	}
}

func TestInitializeRootSeedRefusesOverwrite(t *testing.T) {
	ks := newTestStore(t)
	if _, err := ks.InitializeRootSeed("alice", make([]byte, SeedSize), false); !os.IsExist(err) {
		t.Fatalf("expected exists error, got %v", err)
	}
	if _, err := ks.InitializeRootSeed("bad/name", make([]byte, SeedSize), false); err == nil {
		t.Fatalf("expected identity validation error")
	}
}

func TestMediaKeyFileNameHidesIdentifier(t *testing.T) {
	ks := newTestStore(t)
	path := ks.mediaKeyPath("alice", "uSECRETCID")
	if strings.Contains(path, "SECRETCID") {
		t.Fatalf("identifier leaked into path %q", path)
	}
	ids, err := ks.ListIdentities()
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(ids) != 1 || ids[0] != "alice" {
		t.Fatalf("unexpected identities %v", ids)
	}
}
