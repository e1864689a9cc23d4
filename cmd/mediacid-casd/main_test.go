package main

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/mediacid/storage"
	"xdao.co/mediacid/storage/grpccas"
)

func TestListBackends(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"--list-backends"}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "localfs")
	assert.Contains(t, out.String(), "ipfs")
	assert.NotContains(t, out.String(), "grpc")
}

func TestBackendConfigFromFlags(t *testing.T) {
	cfg, err := backendConfig(daemonFlags{backend: "localfs", settings: []string{"dir=/tmp/blocks"}})
	require.NoError(t, err)
	require.Len(t, cfg.Backends, 1)
	assert.Equal(t, "/tmp/blocks", cfg.Backends[0].Settings["dir"])

	_, err = backendConfig(daemonFlags{backend: "localfs", settings: []string{"novalue"}})
	assert.Error(t, err)
	_, err = backendConfig(daemonFlags{settings: []string{"dir=/x"}})
	assert.Error(t, err)
}

func TestServeListenerRoundTrip(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serveListener(ctx, lis, storage.NewMemory(), 1<<20, hclog.NewNullLogger()) }()

	client, err := grpccas.Dial(lis.Addr().String(), grpccas.DialOptions{Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer client.Close()

	id, err := client.Put(context.Background(), []byte("block"))
	require.NoError(t, err)
	got, err := client.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "block", string(got))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
