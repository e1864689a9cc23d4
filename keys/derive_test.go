package keys

import "testing"

func TestDeriveMediaKeyDeterministic(t *testing.T) {
	root := make([]byte, SeedSize)
	for i := range root {
		root[i] = byte(i)
	}

	a, err := DeriveMediaKey(root, "movie-1")
	if err != nil {
		t.Fatalf("DeriveMediaKey: %v", err)
	}
	b, err := DeriveMediaKey(root, "movie-1")
	if err != nil {
		t.Fatalf("DeriveMediaKey: %v", err)
	}
	if !a.Equal(b) {
		t.Fatalf("expected deterministic derivation")
	}

	c, err := DeriveMediaKey(root, "movie-2")
	if err != nil {
		t.Fatalf("DeriveMediaKey: %v", err)
	}
	if a.Equal(c) {
		t.Fatalf("expected different labels to derive different keys")
	}
}

func TestDeriveMediaKeyRejectsBadInput(t *testing.T) {
	if _, err := DeriveMediaKey(make([]byte, 16), "x"); err == nil {
		t.Fatalf("expected error for short seed")
	}
	if _, err := DeriveMediaKey(make([]byte, SeedSize), ""); err == nil {
		t.Fatalf("expected error for empty label")
	}
}
