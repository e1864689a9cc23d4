// Package batch reads and writes the metadata records of many identifiers
// at once.
package batch

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/ciduri"
	"xdao.co/mediacid/media"
)

// DefaultConcurrency bounds in-flight lookups when Options.Concurrency is unset.
const DefaultConcurrency = 8

// KeyResolver finds the decryption key of a key-stripped identifier.
type KeyResolver interface {
	ResolveKey(ctx context.Context, storeKey string) (key cidcodec.Key, ok bool, err error)
}

// Collected is the record of one identifier together with its key, if any.
type Collected struct {
	Ref cidcodec.Ref
	// Key is the base64url media key; empty for plain identifiers.
	Key     string
	Entries []media.Entry
}

// Item is one record to publish. Key, when set, is embedded into CID to
// address an encrypted record.
type Item struct {
	CID     string
	Key     string
	Entries []media.Entry
}

type Options struct {
	Keys        KeyResolver
	Concurrency int
	Logger      hclog.Logger
}

type Collector struct {
	merger      *media.Merger
	keys        KeyResolver
	concurrency int
	logger      hclog.Logger
}

func NewCollector(merger *media.Merger, opts Options) *Collector {
	n := opts.Concurrency
	if n <= 0 {
		n = DefaultConcurrency
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Collector{merger: merger, keys: opts.Keys, concurrency: n, logger: logger.Named("batch")}
}

// Collect loads the records of cids, keyed by the input strings. The first
// failure cancels the remaining lookups and is returned.
func (c *Collector) Collect(ctx context.Context, cids []string) (map[string]Collected, error) {
	out := make(map[string]Collected, len(cids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, id := range cids {
		mu.Lock()
		_, seen := out[id]
		out[id] = Collected{}
		mu.Unlock()
		if seen {
			continue
		}
		g.Go(func() error {
			ref, err := c.resolve(gctx, id)
			if err != nil {
				return err
			}
			entries, err := c.merger.Load(gctx, ref)
			if err != nil {
				return err
			}
			col := Collected{Ref: ref, Entries: entries}
			if enc, ok := ref.(cidcodec.Encrypted); ok {
				col.Key = enc.Key.String()
			}
			mu.Lock()
			out[id] = col
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	c.logger.Debug("collected records", "count", len(out))
	return out, nil
}

// Publish writes each item's entries as its record. Entry keys are cleared
// on a copy before anything is written; items are not modified.
func (c *Collector) Publish(ctx context.Context, items []Item) error {
	type write struct {
		ref     cidcodec.Ref
		entries []media.Entry
	}
	writes := make([]write, 0, len(items))
	for _, it := range items {
		ref, err := itemRef(it)
		if err != nil {
			return err
		}
		writes = append(writes, write{ref: ref, entries: media.StripKeys(it.Entries)})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, w := range writes {
		g.Go(func() error {
			return c.merger.Save(gctx, w.ref, w.entries)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	c.logger.Debug("published records", "count", len(writes))
	return nil
}

func itemRef(it Item) (cidcodec.Ref, error) {
	id := ciduri.RemoveSchemePrefix(it.CID)
	if it.Key == "" {
		return cidcodec.Parse(id)
	}
	withKey, err := cidcodec.EmbedKey(it.Key, id)
	if err != nil {
		return nil, err
	}
	return cidcodec.Parse(withKey)
}

// resolve parses id and, for a key-stripped encrypted identifier, looks its
// key up through the resolver.
func (c *Collector) resolve(ctx context.Context, id string) (cidcodec.Ref, error) {
	id = ciduri.RemoveSchemePrefix(id)
	ref, err := cidcodec.Parse(id)
	if err == nil {
		return ref, nil
	}
	l, derr := cidcodec.Decode(id)
	if derr != nil || l.Key != nil {
		return nil, err
	}
	if c.keys == nil {
		return nil, cidcodec.KeyMismatch("no key resolver for key-stripped identifier", nil)
	}
	k, ok, rerr := c.keys.ResolveKey(ctx, ciduri.Normalize(id))
	if rerr != nil {
		return nil, rerr
	}
	if !ok {
		return nil, cidcodec.KeyMismatch("no key known for "+ciduri.Normalize(id), nil)
	}
	return cidcodec.NewEncrypted(id, k)
}
