// Package ciduri handles the string decoration around a codec-level identifier:
// the network scheme prefix and the cosmetic file-extension suffix.
//
// Neither decoration is part of the binary payload. All helpers are pure and
// idempotent, so callers may apply them speculatively.
package ciduri

import "strings"

// Scheme is the literal network scheme prefix.
const Scheme = "s5://"

// AddSchemePrefix prepends Scheme unless id already carries it.
func AddSchemePrefix(id string) string {
	if strings.HasPrefix(id, Scheme) {
		return id
	}
	return Scheme + id
}

// RemoveSchemePrefix drops Scheme if present; otherwise id is returned unchanged.
// A doubled prefix is removed entirely so the result never carries Scheme.
func RemoveSchemePrefix(id string) string {
	for strings.HasPrefix(id, Scheme) {
		id = id[len(Scheme):]
	}
	return id
}

// Parts is an identifier split at its decoration boundaries.
type Parts struct {
	Scheme string
	Body   string
	// Ext is the cosmetic extension without the leading dot.
	Ext string
}

// Split separates scheme, body and extension.
//
// The extension is whatever follows the last '.' of the body, provided it is a
// short alphanumeric suffix. base64url never produces '.', so the payload is
// never cut.
func Split(id string) Parts {
	var p Parts
	if strings.HasPrefix(id, Scheme) {
		p.Scheme = Scheme
		id = id[len(Scheme):]
	}
	if i := strings.LastIndexByte(id, '.'); i > 0 && isExtension(id[i+1:]) {
		p.Body = id[:i]
		p.Ext = id[i+1:]
		return p
	}
	p.Body = id
	return p
}

// Join reassembles the parts into an identifier string.
func (p Parts) Join() string {
	s := p.Scheme + p.Body
	if p.Ext != "" {
		s += "." + p.Ext
	}
	return s
}

// StripExtension removes a cosmetic extension suffix, keeping any scheme.
func StripExtension(id string) string {
	p := Split(id)
	p.Ext = ""
	return p.Join()
}

// WithExtension replaces (or adds) the cosmetic extension. An empty ext strips it.
func WithExtension(id, ext string) string {
	p := Split(id)
	p.Ext = strings.TrimPrefix(ext, ".")
	return p.Join()
}

// Normalize returns the bare body: no scheme, no extension.
func Normalize(id string) string {
	return Split(id).Body
}

func isExtension(s string) bool {
	if s == "" || len(s) > 8 {
		return false
	}
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			continue
		}
		return false
	}
	return true
}
