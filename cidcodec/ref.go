package cidcodec

import (
	"github.com/ipfs/go-cid"

	"xdao.co/mediacid/ciduri"
)

// Ref is a parsed identifier: either Plain or Encrypted.
//
// Callers switch on the concrete type instead of checking for a key at every
// call site.
type Ref interface {
	// String returns the shareable identifier; for Encrypted it carries the key.
	String() string
	// StoreKey is the key-stripped identifier without scheme or extension,
	// used to address persisted records.
	StoreKey() string
	isRef()
}

// Plain addresses unencrypted content.
type Plain struct {
	CID string
}

func (p Plain) String() string   { return p.CID }
func (p Plain) StoreKey() string { return ciduri.Normalize(p.CID) }
func (Plain) isRef()             {}

// Cid decodes the identifier with go-cid. Opaque identifiers that are not
// multiformat CIDs return an error.
func (p Plain) Cid() (cid.Cid, error) {
	return cid.Decode(ciduri.Normalize(p.CID))
}

// Encrypted addresses encrypted content. CID is the key-stripped form with its
// original decoration; Key is held only in memory.
type Encrypted struct {
	CID string
	Key Key
}

// String re-embeds the key. The stripped form was validated when the value
// was built, so a failure here means the struct was assembled by hand.
func (e Encrypted) String() string {
	s, err := EmbedRawKey(e.Key, e.CID)
	if err != nil {
		return e.CID
	}
	return s
}

func (e Encrypted) StoreKey() string { return ciduri.Normalize(e.CID) }
func (Encrypted) isRef()             {}

// NewEncrypted pairs a key-stripped identifier with a separately held key.
func NewEncrypted(cidWithoutKey string, key Key) (Encrypted, error) {
	if _, err := EmbedRawKey(key, cidWithoutKey); err != nil {
		return Encrypted{}, err
	}
	return Encrypted{CID: cidWithoutKey, Key: key}, nil
}

// Parse classifies s. Identifiers whose payload starts with the encrypted
// marker must decode fully and carry a key; everything else is Plain.
func Parse(s string) (Ref, error) {
	if !looksEncrypted(s) {
		return Plain{CID: s}, nil
	}
	l, err := Decode(s)
	if err != nil {
		return nil, err
	}
	if l.Key == nil {
		return nil, malformed(s, "encrypted identifier carries no key")
	}
	stripped, err := StripKey(s)
	if err != nil {
		return nil, err
	}
	return Encrypted{CID: stripped, Key: *l.Key}, nil
}

// StoreKeyFor returns the persistence key for s. When encrypted is set the
// embedded key is stripped first.
func StoreKeyFor(s string, encrypted bool) (string, error) {
	if !encrypted {
		return ciduri.Normalize(s), nil
	}
	stripped, err := StripKey(s)
	if err != nil {
		return "", err
	}
	return ciduri.Normalize(stripped), nil
}

func looksEncrypted(s string) bool {
	_, payload, err := decodeIdentifier(s)
	return err == nil && len(payload) > 0 && payload[offsetMarker] == MarkerEncryptedStatic
}
