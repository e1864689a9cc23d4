package media

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"xdao.co/mediacid/cidcodec"
	"xdao.co/mediacid/keys"
	"xdao.co/mediacid/metastore"
)

// RecordPrefix namespaces metadata records inside the store.
const RecordPrefix = "media/"

// RecordKey returns the store key of the record for a key-stripped identifier.
func RecordKey(storeKey string) string { return RecordPrefix + storeKey }

// Merger loads, merges and writes metadata records.
//
// Records of encrypted identifiers are sealed with the identifier's key before
// they reach the store and opened after they leave it; Merge itself only sees
// plaintext entries.
type Merger struct {
	store  metastore.Store
	logger hclog.Logger
}

func NewMerger(store metastore.Store, logger hclog.Logger) *Merger {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Merger{store: store, logger: logger.Named("merger")}
}

// Load returns the record for ref, or nil when none is stored.
func (m *Merger) Load(ctx context.Context, ref cidcodec.Ref) ([]Entry, error) {
	raw, err := m.store.Get(ctx, RecordKey(ref.StoreKey()))
	if metastore.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load record: %w", err)
	}
	return decodeRecord(ref, raw)
}

// Save replaces the record for ref. Entry keys are always cleared first.
func (m *Merger) Save(ctx context.Context, ref cidcodec.Ref, entries []Entry) error {
	raw, err := encodeRecord(ref, StripKeys(entries))
	if err != nil {
		return err
	}
	if err := m.store.Put(ctx, RecordKey(ref.StoreKey()), raw); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

// HasMedia reports whether the stored record for ref has a primary rendition.
func (m *Merger) HasMedia(ctx context.Context, ref cidcodec.Ref) (bool, error) {
	entries, err := m.Load(ctx, ref)
	if err != nil {
		return false, err
	}
	return HasPrimaryMedia(entries), nil
}

// MergeAndStore prepends transcoded to the stored record and writes it back
// as one metastore.Update, so a concurrent writer of the same record is not
// overwritten. The returned slice keeps in-memory entry keys; the stored copy
// does not. Nothing is written when loading fails; the returned error then
// means the caller must not consider the job merged.
func (m *Merger) MergeAndStore(ctx context.Context, ref cidcodec.Ref, transcoded []Entry) ([]Entry, error) {
	var merged []Entry
	err := metastore.Update(ctx, m.store, RecordKey(ref.StoreKey()), func(raw []byte, exists bool) ([]byte, error) {
		var existing []Entry
		if exists {
			var err error
			if existing, err = decodeRecord(ref, raw); err != nil {
				return nil, err
			}
		}
		merged = Merge(existing, transcoded)
		return encodeRecord(ref, StripKeys(merged))
	})
	if err != nil {
		return nil, fmt.Errorf("merge record: %w", err)
	}
	m.logger.Debug("merged transcode result", "store_key", ref.StoreKey(), "new", len(transcoded), "total", len(merged))
	return merged, nil
}

func encodeRecord(ref cidcodec.Ref, entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	plain, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	switch r := ref.(type) {
	case cidcodec.Plain:
		return plain, nil
	case cidcodec.Encrypted:
		sealed, err := keys.Seal(r.Key, plain)
		if err != nil {
			return nil, err
		}
		return []byte(sealed), nil
	default:
		return nil, fmt.Errorf("media: unsupported ref %T", ref)
	}
}

func decodeRecord(ref cidcodec.Ref, raw []byte) ([]Entry, error) {
	plain := raw
	sealed := keys.IsSealed(string(raw))
	switch r := ref.(type) {
	case cidcodec.Plain:
		if sealed {
			return nil, cidcodec.KeyMismatch("record is sealed but identifier carries no key", nil)
		}
	case cidcodec.Encrypted:
		if sealed {
			var err error
			plain, err = keys.Open(r.Key, string(raw))
			if err != nil {
				return nil, err
			}
		}
	default:
		return nil, fmt.Errorf("media: unsupported ref %T", ref)
	}
	var entries []Entry
	if err := json.Unmarshal(plain, &entries); err != nil {
		if sealed {
			return nil, cidcodec.KeyMismatch("opened record does not parse", err)
		}
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return entries, nil
}
