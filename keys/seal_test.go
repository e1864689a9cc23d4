package keys

import (
	"strings"
	"testing"

	"xdao.co/mediacid/cidcodec"
)

func TestSealOpenRoundTrip(t *testing.T) {
	k, err := cidcodec.GenerateKey(nil)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	msg := []byte(`[{"cid":"r1","type":"video/mp4"}]`)

	sealed, err := Seal(k, msg)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if !IsSealed(sealed) {
		t.Fatalf("expected sealed prefix, got %q", sealed)
	}
	if strings.Contains(sealed, "video/mp4") {
		t.Fatalf("sealed value leaks plaintext")
	}

	got, err := Open(k, sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if string(got) != string(msg) {
		t.Fatalf("plaintext mismatch: %q", got)
	}
}

func TestOpenWrongKeyIsKeyMismatch(t *testing.T) {
	k1, _ := cidcodec.GenerateKey(nil)
	k2, _ := cidcodec.GenerateKey(nil)

	sealed, err := Seal(k1, []byte("secret"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(k2, sealed); !cidcodec.IsKeyMismatch(err) {
		t.Fatalf("expected KeyMismatch, got %v", err)
	}
	if _, err := Open(k1, "[]"); !cidcodec.IsKeyMismatch(err) {
		t.Fatalf("expected KeyMismatch for plaintext, got %v", err)
	}
}
