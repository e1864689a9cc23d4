// Package bundle moves content-network blocks between CAS backends as a
// deterministic TAR archive.
//
// Layout:
//
//	blocks/<cid>   raw block bytes
//	index.json     optional block list and labels
//
// Labels map key-stripped identifiers to the blocks holding their content, so
// a bundle never carries media keys.
package bundle

import (
	"archive/tar"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/mediacid/storage"
)

// FormatVersion is the current index.json schema version.
const FormatVersion = 1

const (
	blocksDir = "blocks/"
	indexName = "index.json"
)

var epoch0 = time.Unix(0, 0).UTC()

type ExportOptions struct {
	// Labels names blocks, usually by key-stripped identifier. Every labelled
	// block is exported even when missing from ids.
	Labels map[string]cid.Cid
	// IncludeIndex writes index.json.
	IncludeIndex bool
}

// Export writes the blocks ids to w. Output bytes depend only on the set of
// blocks and labels: entries are sorted and TAR headers are normalized.
// Every block is verified against its CID before it is written.
func Export(ctx context.Context, w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return errors.New("bundle: nil CAS")
	}
	uniq := make(map[string]cid.Cid, len(ids)+len(opts.Labels))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	for name, id := range opts.Labels {
		if strings.TrimSpace(name) == "" {
			return errors.New("bundle: empty label")
		}
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	fail := func(err error) error {
		_ = tw.Close()
		return err
	}

	blocks := make([]indexBlock, 0, len(names))
	for _, s := range names {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		id := uniq[s]
		b, err := cas.Get(ctx, id)
		if err != nil {
			return fail(fmt.Errorf("bundle: get %s: %w", s, err))
		}
		if err := storage.Verify(id, b); err != nil {
			return fail(err)
		}
		if err := writeFile(tw, blocksDir+s, b); err != nil {
			return fail(err)
		}
		blocks = append(blocks, indexBlock{CID: s, Size: len(b)})
	}

	if opts.IncludeIndex {
		b, err := marshalIndex(blocks, opts.Labels)
		if err != nil {
			return fail(err)
		}
		if err := writeFile(tw, indexName, b); err != nil {
			return fail(err)
		}
	}
	return tw.Close()
}

type ImportOptions struct {
	// IgnoreUnknown skips unexpected entries instead of failing.
	IgnoreUnknown bool
}

// Result lists what an import stored, plus labels from index.json if present.
type Result struct {
	Blocks []cid.Cid
	Labels map[string]cid.Cid
}

// Import reads a bundle from r into cas. Each block must match both the CID in
// its entry name and the CID the CAS assigns. Unknown entries fail the import
// unless opts.IgnoreUnknown is set.
func Import(ctx context.Context, r io.Reader, cas storage.CAS, opts ImportOptions) (Result, error) {
	var res Result
	if cas == nil {
		return res, errors.New("bundle: nil CAS")
	}
	tr := tar.NewReader(r)
	seen := map[string]struct{}{}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		h, err := tr.Next()
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return res, fmt.Errorf("bundle: invalid entry path %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return res, fmt.Errorf("bundle: unexpected entry type %v (%s)", h.Typeflag, name)
		}

		switch {
		case name == indexName:
			labels, err := readLabels(tr)
			if err != nil {
				return res, err
			}
			res.Labels = labels
			continue
		case !strings.HasPrefix(name, blocksDir):
			if opts.IgnoreUnknown {
				_, _ = io.Copy(io.Discard, tr)
				continue
			}
			return res, fmt.Errorf("bundle: unknown entry %s", name)
		}

		id, err := cid.Decode(strings.TrimPrefix(name, blocksDir))
		if err != nil || !id.Defined() {
			return res, storage.ErrInvalidCID
		}
		if _, dup := seen[id.String()]; dup {
			return res, fmt.Errorf("bundle: duplicate block %s", id)
		}
		seen[id.String()] = struct{}{}

		payload, err := io.ReadAll(tr)
		if err != nil {
			return res, err
		}
		if err := storage.Verify(id, payload); err != nil {
			return res, err
		}
		putID, err := cas.Put(ctx, payload)
		if err != nil {
			return res, err
		}
		if !putID.Equals(id) {
			return res, storage.ErrCIDMismatch
		}
		res.Blocks = append(res.Blocks, id)
	}
}

type indexJSON struct {
	Version   int          `json:"version"`
	CIDCodec  string       `json:"cidCodec"`
	Multihash string       `json:"multihash"`
	Blocks    []indexBlock `json:"blocks"`
	Labels    []indexLabel `json:"labels,omitempty"`
}

type indexBlock struct {
	CID  string `json:"cid"`
	Size int    `json:"size"`
}

type indexLabel struct {
	Name string `json:"name"`
	CID  string `json:"cid"`
}

func marshalIndex(blocks []indexBlock, labels map[string]cid.Cid) ([]byte, error) {
	idx := indexJSON{Version: FormatVersion, CIDCodec: "raw", Multihash: "sha2-256", Blocks: blocks}
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		idx.Labels = append(idx.Labels, indexLabel{Name: k, CID: labels[k].String()})
	}
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func readLabels(r io.Reader) (map[string]cid.Cid, error) {
	var idx indexJSON
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return nil, fmt.Errorf("bundle: parse index: %w", err)
	}
	if idx.Version != FormatVersion {
		return nil, fmt.Errorf("bundle: unsupported index version %d", idx.Version)
	}
	if len(idx.Labels) == 0 {
		return nil, nil
	}
	out := make(map[string]cid.Cid, len(idx.Labels))
	for _, l := range idx.Labels {
		id, err := cid.Decode(l.CID)
		if err != nil {
			return nil, fmt.Errorf("bundle: label %q: %w", l.Name, storage.ErrInvalidCID)
		}
		out[l.Name] = id
	}
	return out, nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

// cleanTarPath returns a relative slash path, or "" for anything that could
// escape the archive root.
func cleanTarPath(name string) string {
	name = strings.ReplaceAll(strings.TrimSpace(name), "\\", "/")
	name = strings.TrimPrefix(strings.TrimPrefix(name, "./"), "/")
	if name == "" {
		return ""
	}
	for _, part := range strings.Split(name, "/") {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
