package ipfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"xdao.co/mediacid/cidutil"
	"xdao.co/mediacid/storage"
	"xdao.co/mediacid/storage/testkit"
)

// fakeIPFS re-executes the test binary as a minimal "ipfs block" CLI backed by dir.
func fakeIPFS(dir string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--"}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "FAKE_IPFS_DIR="+dir)
		return cmd
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	args = args[1:]
	dir := os.Getenv("FAKE_IPFS_DIR")
	notFound := func() {
		fmt.Fprintln(os.Stderr, "Error: block was not found locally (offline): ipld: could not find node")
		os.Exit(1)
	}

	switch args[1] {
	case "put":
		data, _ := io.ReadAll(os.Stdin)
		id := cidutil.CIDv1RawSHA256(data)
		_ = os.WriteFile(filepath.Join(dir, id), data, 0o644)
		fmt.Println(id)
	case "get":
		data, err := os.ReadFile(filepath.Join(dir, args[len(args)-1]))
		if err != nil {
			notFound()
		}
		_, _ = os.Stdout.Write(data)
	case "stat":
		if _, err := os.Stat(filepath.Join(dir, args[len(args)-1])); err != nil {
			notFound()
		}
		fmt.Println("Size: 1")
	default:
		fmt.Fprintln(os.Stderr, "unknown command")
		os.Exit(2)
	}
	os.Exit(0)
}

func newFake(t *testing.T) *CAS {
	c := New(Options{Pin: true})
	c.exec = fakeIPFS(t.TempDir())
	return c
}

func TestIPFS_Conformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS { return newFake(t) })
}

func TestIPFS_DetectsCorruptBlock(t *testing.T) {
	dir := t.TempDir()
	c := New(Options{})
	c.exec = fakeIPFS(dir)
	ctx := context.Background()

	id, err := c.Put(ctx, []byte("block"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, id.String()), []byte("other"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ctx, id); err != storage.ErrCIDMismatch {
		t.Fatalf("expected ErrCIDMismatch, got %v", err)
	}
}

func TestNewSetsRepoPath(t *testing.T) {
	c := New(Options{RepoPath: "/tmp/repo"})
	found := false
	for _, kv := range c.env {
		if kv == "IPFS_PATH=/tmp/repo" {
			found = true
		}
	}
	if !found || c.bin != "ipfs" {
		t.Fatalf("unexpected command setup: bin=%q", c.bin)
	}
}
