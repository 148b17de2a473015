// Package merkle builds UnixFS/DAG-PB directory nodes and computes their
// root CIDs. The encoding reproduces, bit for bit, how the external pinning
// service materializes a folder upload: per-file UnixFS nodes, link lists
// sorted by byte-wise name order, cumulative size accounting on every link,
// and an optional named outer wrapper. An incorrect size field anywhere
// silently yields a different, non-interoperable root hash, so every size
// here is taken from the encoded nodes themselves.
package merkle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-merkledag"

	ipld "github.com/ipfs/go-ipld-format"
	unixfs "github.com/ipfs/go-unixfs"
	mh "github.com/multiformats/go-multihash"

	propertydag "github.com/elephant-xyz/property-dag"
	"github.com/elephant-xyz/property-dag/cids"
)

// NamedFile is one directory member: a name and its full content.
type NamedFile struct {
	Name    string
	Content []byte
}

// Directory is the result of a directory build: the root CID and the
// cumulative size (encoded directory node plus all descendants), which is
// exactly the Tsize an enclosing link must carry.
type Directory struct {
	CID       cid.Cid
	TotalSize uint64
}

type config struct {
	version int
	wrapper string
}

// Option adjusts a directory build.
type Option func(*config)

// WithWrapper nests the directory under an outer root containing a single
// link carrying name. This mirrors a named-folder upload to the pinning
// service, which wraps the uploaded directory so the folder name survives.
func WithWrapper(name string) Option {
	return func(c *config) { c.wrapper = name }
}

// WithVersion selects the CID version for every node in the build. The
// default is 1, matching the pinning service's folder uploads.
func WithVersion(version int) Option {
	return func(c *config) { c.version = version }
}

// CompareNames is the one deterministic name comparator shared by every
// directory-building path. Link order is byte-wise ascending; diverging
// orderings between call sites would produce diverging roots.
func CompareNames(a, b string) int {
	return strings.Compare(a, b)
}

// SortLinks orders links with CompareNames.
func SortLinks(links []*ipld.Link) {
	sort.Slice(links, func(i, j int) bool {
		return CompareNames(links[i].Name, links[j].Name) < 0
	})
}

// BuildDirectory wraps every file as a UnixFS node, assembles the directory
// node with sorted links and exact size accounting, and returns the root.
// A file with nil content aborts the whole computation: partial directories
// are never emitted.
func BuildDirectory(files []NamedFile, opts ...Option) (Directory, error) {
	cfg := config{version: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	links := make([]*ipld.Link, 0, len(files))
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if f.Content == nil {
			return Directory{}, propertydag.MissingFileError{Name: f.Name}
		}
		if _, dup := seen[f.Name]; dup {
			return Directory{}, fmt.Errorf("merkle: duplicate directory member %q", f.Name)
		}
		seen[f.Name] = struct{}{}

		nd, err := cids.FileNode(f.Content, cfg.version)
		if err != nil {
			return Directory{}, err
		}
		size, err := nd.Size()
		if err != nil {
			return Directory{}, err
		}
		links = append(links, &ipld.Link{Name: f.Name, Cid: nd.Cid(), Size: size})
	}
	SortLinks(links)

	inner, err := assemble(links, cfg.version)
	if err != nil {
		return Directory{}, err
	}
	if cfg.wrapper == "" {
		return inner, nil
	}
	return Wrap(cfg.wrapper, inner, cfg.version)
}

// Wrap builds the outer root directory holding a single named link to
// inner. The link's Tsize must be inner's cumulative size or the root hash
// will not match the pinning service's.
func Wrap(name string, inner Directory, version int) (Directory, error) {
	return assemble([]*ipld.Link{{Name: name, Cid: inner.CID, Size: inner.TotalSize}}, version)
}

func assemble(links []*ipld.Link, version int) (Directory, error) {
	dir := unixfs.EmptyDirNode()
	if version != 0 {
		prefix, err := merkledag.PrefixForCidVersion(version)
		if err != nil {
			return Directory{}, err
		}
		prefix.MhType = uint64(mh.SHA2_256)
		dir.SetCidBuilder(prefix)
	}
	for _, l := range links {
		if err := dir.AddRawLink(l.Name, l); err != nil {
			return Directory{}, err
		}
	}
	total, err := dir.Size()
	if err != nil {
		return Directory{}, err
	}
	return Directory{CID: dir.Cid(), TotalSize: total}, nil
}
