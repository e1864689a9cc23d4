package contentnet

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"strings"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/cidutil"
	"xdao.co/mediacid/storage"
)

func newClient(t *testing.T, exp byte) (*Client, *storage.Memory) {
	t.Helper()
	cas := storage.NewMemory()
	c, err := New(cas, Options{ChunkSizeExp: exp})
	require.NoError(t, err)
	return c, cas
}

func TestPlainRoundTrip(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t, 0)
	data := []byte("plain media bytes")

	id, err := c.Upload(ctx, data, false)
	require.NoError(t, err)
	assert.Equal(t, cidutil.CIDv1RawSHA256(data), id)

	got, err := c.Download(ctx, "s5://"+id+".mp4")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestEncryptedRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, size := range []int{0, 1, 1023, 1024, 1025, 5000, 70000} {
		c, cas := newClient(t, 10)
		data := bytes.Repeat([]byte{0x5a}, size)
		for i := range data {
			data[i] ^= byte(i)
		}

		id, err := c.Upload(ctx, data, true)
		require.NoError(t, err, size)
		assert.True(t, strings.HasPrefix(id, "u"))

		l, err := cidcodec.Decode(id)
		require.NoError(t, err)
		require.NotNil(t, l.Key)
		assert.Equal(t, byte(10), l.ChunkSizeExp)
		assert.Equal(t, PaddedSize(size)-size, int(l.Padding))
		assert.True(t, l.Original.Equals(mustCID(t, data)))

		// The blob hash addresses the stored ciphertext.
		blobID, err := cidutil.FromSHA256Digest(l.Digest())
		require.NoError(t, err)
		ciphertext, err := cas.Get(ctx, blobID)
		require.NoError(t, err)
		sum := sha256.Sum256(ciphertext)
		assert.Equal(t, sum[:], l.Digest())
		if size > 16 {
			assert.False(t, bytes.Contains(ciphertext, data[:16]))
		}

		got, err := c.Download(ctx, id+".webm")
		require.NoError(t, err, size)
		assert.Equal(t, len(data), len(got))
		assert.True(t, bytes.Equal(data, got))
	}
}

func TestEncryptedWrongKey(t *testing.T) {
	ctx := context.Background()
	c, _ := newClient(t, 0)
	id, err := c.Upload(ctx, []byte("secret video"), true)
	require.NoError(t, err)

	stripped, err := cidcodec.StripKey(id)
	require.NoError(t, err)
	var other cidcodec.Key
	other[0] = 1
	wrong, err := cidcodec.EmbedRawKey(other, stripped)
	require.NoError(t, err)

	_, err = c.Download(ctx, wrong)
	assert.True(t, cidcodec.IsKeyMismatch(err))

	_, err = c.Download(ctx, stripped)
	assert.True(t, cidcodec.IsMalformed(err))
}

func TestDownloadMissing(t *testing.T) {
	c, _ := newClient(t, 0)
	_, err := c.Download(context.Background(), cidutil.CIDv1RawSHA256([]byte("never stored")))
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestNewRejectsChunkExponent(t *testing.T) {
	_, err := New(storage.NewMemory(), Options{ChunkSizeExp: 40})
	assert.Error(t, err)
	_, err = New(nil, Options{})
	assert.Error(t, err)
}

func TestPaddedSize(t *testing.T) {
	assert.Equal(t, 0, PaddedSize(0))
	assert.Equal(t, 4096, PaddedSize(1))
	assert.Equal(t, 4096, PaddedSize(4096))
	assert.Equal(t, 8192, PaddedSize(4097))
	for _, n := range []int{1 << 20, 3<<20 + 17, 100<<20 + 1} {
		p := PaddedSize(n)
		assert.GreaterOrEqual(t, p, n)
		assert.LessOrEqual(t, p-n, n/16+4096)
	}
}

func mustCID(t *testing.T, data []byte) cid.Cid {
	t.Helper()
	id, err := cidutil.CIDv1RawSHA256CID(data)
	require.NoError(t, err)
	return id
}

func TestBlockCIDMatchesStoredBlock(t *testing.T) {
	cas := storage.NewMemory()
	c, err := New(cas, Options{})
	require.NoError(t, err)

	keyed, err := c.Upload(context.Background(), []byte("payload"), true)
	require.NoError(t, err)
	stripped, err := cidcodec.StripKey(keyed)
	require.NoError(t, err)

	fromKeyed, err := BlockCID("s5://" + keyed)
	require.NoError(t, err)
	fromStripped, err := BlockCID(stripped + ".mp4")
	require.NoError(t, err)
	assert.True(t, fromKeyed.Equals(fromStripped))
	ok, err := cas.Has(context.Background(), fromKeyed)
	require.NoError(t, err)
	assert.True(t, ok)

	plain, err := c.Upload(context.Background(), []byte("payload"), false)
	require.NoError(t, err)
	id, err := BlockCID(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, id.String())
}
