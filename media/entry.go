// Package media classifies and merges the rendition entries of a media
// metadata record, and reads and writes those records through a metastore.
package media

import "strings"

// Kind discriminates auxiliary tracks. The zero value marks a primary rendition.
type Kind string

const (
	KindPrimary   Kind = ""
	KindAudio     Kind = "audio"
	KindSubtitles Kind = "subtitles"
)

// Entry is one rendition or track of a source media item.
type Entry struct {
	CID      string `json:"cid"`
	Type     string `json:"type"`
	Label    string `json:"label,omitempty"`
	Kind     Kind   `json:"kind,omitempty"`
	Language string `json:"language,omitempty"`
	// Key is the decryption key of an encrypted rendition. It lives in memory
	// only and is cleared before any write.
	Key string `json:"key,omitempty"`
}

// IsPrimary reports whether e is a stand-alone playable rendition.
func (e Entry) IsPrimary() bool { return e.Kind == KindPrimary }

// HasPrimaryMedia reports whether at least one entry is a primary rendition.
func HasPrimaryMedia(entries []Entry) bool {
	for _, e := range entries {
		if e.IsPrimary() {
			return true
		}
	}
	return false
}

// Merge returns transcoded followed by existing. It does not de-duplicate:
// merging the same job result twice is a caller error caught by the tracker.
func Merge(existing, transcoded []Entry) []Entry {
	out := make([]Entry, 0, len(transcoded)+len(existing))
	out = append(out, transcoded...)
	return append(out, existing...)
}

// ContainsAll reports whether every entry of subset appears in record,
// matching on CID, type and kind. Keys are ignored.
func ContainsAll(record, subset []Entry) bool {
	type id struct {
		cid, typ string
		kind     Kind
	}
	seen := make(map[id]bool, len(record))
	for _, e := range record {
		seen[id{e.CID, e.Type, e.Kind}] = true
	}
	for _, e := range subset {
		if !seen[id{e.CID, e.Type, e.Kind}] {
			return false
		}
	}
	return true
}

// StripKeys returns a copy of entries with every Key cleared.
func StripKeys(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	out := make([]Entry, len(entries))
	for i, e := range entries {
		e.Key = ""
		out[i] = e
	}
	return out
}

func hasMIMEPrefix(mime, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), prefix)
}
