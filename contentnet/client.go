// Package contentnet uploads and downloads media blobs on the content
// network, encrypting them when asked.
//
// A plain upload stores the bytes as one block and returns its CIDv1. An
// encrypted upload pads the plaintext, seals it in fixed-size chunks with
// XChaCha20-Poly1305 under a fresh key and returns an encrypted identifier
// carrying that key, the ciphertext hash and the CID of the original bytes.
package contentnet

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/hashicorp/go-hclog"
	"github.com/ipfs/go-cid"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/cidutil"
	"xdao.co/mediacid/ciduri"
	"xdao.co/mediacid/storage"
)

type Options struct {
	// ChunkSizeExp sets the encryption chunk size to 2^ChunkSizeExp bytes.
	ChunkSizeExp byte
	// Rand supplies key material. Defaults to crypto/rand.
	Rand   io.Reader
	Logger hclog.Logger
}

type Client struct {
	cas      storage.CAS
	chunkExp byte
	rand     io.Reader
	logger   hclog.Logger
}

func New(cas storage.CAS, opts Options) (*Client, error) {
	if cas == nil {
		return nil, errors.New("contentnet: CAS is required")
	}
	exp := opts.ChunkSizeExp
	if exp == 0 {
		exp = DefaultChunkSizeExp
	}
	if exp < minChunkSizeExp || exp > maxChunkSizeExp {
		return nil, fmt.Errorf("contentnet: chunk size exponent %d out of range [%d, %d]", exp, minChunkSizeExp, maxChunkSizeExp)
	}
	r := opts.Rand
	if r == nil {
		r = rand.Reader
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{cas: cas, chunkExp: exp, rand: r, logger: logger.Named("contentnet")}, nil
}

// CAS returns the block store behind the client.
func (c *Client) CAS() storage.CAS { return c.cas }

// Upload stores data and returns its identifier. With encrypt set, the
// identifier is an encrypted CID with the key embedded.
func (c *Client) Upload(ctx context.Context, data []byte, encrypt bool) (string, error) {
	if !encrypt {
		id, err := c.cas.Put(ctx, data)
		if err != nil {
			return "", err
		}
		return id.String(), nil
	}

	key, err := cidcodec.GenerateKey(c.rand)
	if err != nil {
		return "", err
	}
	original, err := cidutil.CIDv1RawSHA256CID(data)
	if err != nil {
		return "", err
	}
	padded := PaddedSize(len(data))
	plaintext := make([]byte, padded)
	copy(plaintext, data)

	ciphertext, err := sealBlob(key, plaintext, 1<<c.chunkExp)
	if err != nil {
		return "", err
	}
	blobID, err := c.cas.Put(ctx, ciphertext)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(ciphertext)

	l := cidcodec.Layout{
		Marker:       cidcodec.MarkerEncryptedStatic,
		Algorithm:    cidcodec.AlgorithmXChaCha20Poly1305,
		ChunkSizeExp: c.chunkExp,
		Key:          &key,
		Padding:      uint32(padded - len(data)),
		Original:     original,
	}
	l.BlobHash[0] = cidcodec.HashTypeSHA256
	copy(l.BlobHash[1:], sum[:])

	c.logger.Debug("uploaded encrypted blob", "blob", blobID.String(), "size", len(data), "padding", l.Padding)
	return l.Encode(), nil
}

// Download fetches and, for encrypted identifiers, decrypts the blob. Scheme
// prefixes and extensions are ignored.
func (c *Client) Download(ctx context.Context, id string) ([]byte, error) {
	ref, err := cidcodec.Parse(ciduri.RemoveSchemePrefix(id))
	if err != nil {
		return nil, err
	}
	switch r := ref.(type) {
	case cidcodec.Plain:
		pid, err := r.Cid()
		if err != nil {
			return nil, fmt.Errorf("contentnet: %w", err)
		}
		return c.cas.Get(ctx, pid)
	case cidcodec.Encrypted:
		return c.downloadEncrypted(ctx, r)
	default:
		return nil, fmt.Errorf("contentnet: unsupported ref %T", ref)
	}
}

// BlockCID returns the CID of the block that stores id's content. Encrypted
// identifiers may be given with or without their key.
func BlockCID(id string) (cid.Cid, error) {
	bare := ciduri.RemoveSchemePrefix(id)
	if l, err := cidcodec.Decode(bare); err == nil {
		if l.BlobHash[0] != cidcodec.HashTypeSHA256 {
			return cid.Undef, fmt.Errorf("contentnet: unsupported blob hash type 0x%02x", l.BlobHash[0])
		}
		return cidutil.FromSHA256Digest(l.Digest())
	}
	ref, err := cidcodec.Parse(bare)
	if err != nil {
		return cid.Undef, err
	}
	p, ok := ref.(cidcodec.Plain)
	if !ok {
		return cid.Undef, fmt.Errorf("contentnet: cannot address %T", ref)
	}
	return p.Cid()
}

func (c *Client) downloadEncrypted(ctx context.Context, r cidcodec.Encrypted) ([]byte, error) {
	l, err := cidcodec.Decode(r.String())
	if err != nil {
		return nil, err
	}
	if l.Algorithm != cidcodec.AlgorithmXChaCha20Poly1305 {
		return nil, fmt.Errorf("contentnet: unsupported encryption algorithm 0x%02x", l.Algorithm)
	}
	if l.BlobHash[0] != cidcodec.HashTypeSHA256 {
		return nil, fmt.Errorf("contentnet: unsupported blob hash type 0x%02x", l.BlobHash[0])
	}
	if l.ChunkSizeExp < minChunkSizeExp || l.ChunkSizeExp > maxChunkSizeExp {
		return nil, fmt.Errorf("contentnet: chunk size exponent %d out of range", l.ChunkSizeExp)
	}
	blobID, err := cidutil.FromSHA256Digest(l.Digest())
	if err != nil {
		return nil, err
	}
	ciphertext, err := c.cas.Get(ctx, blobID)
	if err != nil {
		return nil, err
	}
	plaintext, err := openBlob(r.Key, ciphertext, l.ChunkSize())
	if err != nil {
		return nil, err
	}
	if int(l.Padding) > len(plaintext) {
		return nil, fmt.Errorf("contentnet: padding %d exceeds plaintext length %d", l.Padding, len(plaintext))
	}
	plaintext = plaintext[:len(plaintext)-int(l.Padding)]
	if l.Original.Defined() {
		got, err := l.Original.Prefix().Sum(plaintext)
		if err != nil {
			return nil, err
		}
		if !got.Equals(l.Original) {
			return nil, fmt.Errorf("contentnet: decrypted bytes do not match original CID: %w", storage.ErrCIDMismatch)
		}
	}
	return plaintext, nil
}
