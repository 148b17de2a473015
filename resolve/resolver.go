// Package resolve walks property record documents, rewriting file-path
// references into content identifiers, and computes the property's canonical
// identifier via the two-pass fixed-point protocol on the seed document.
//
// All link-walking lives in one recursive-descent Resolver carrying its
// context explicitly (current document path, media directory CID, per-batch
// cache, visited set, accumulator) so the traversal is auditable as a single
// unit rather than a web of mutually recursive helpers.
package resolve

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	json "github.com/goccy/go-json"

	propertydag "github.com/elephant-xyz/property-dag"
	"github.com/elephant-xyz/property-dag/canonicaljson"
	"github.com/elephant-xyz/property-dag/cids"
)

// linkKey is the single key of an IPLD pointer object {"/": target}.
const linkKey = "/"

// mediaExtensions mark scalar values that reference page-level media. All
// media for one property collapses into one shared directory CID.
var mediaExtensions = map[string]bool{
	".html": true,
	".htm":  true,
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".svg":  true,
	".webp": true,
}

// Cache holds resolved CIDs keyed by canonical absolute path. It is scoped
// to one batch run and passed in explicitly; there is no hidden process-wide
// state.
type Cache struct {
	mu     sync.Mutex
	byPath map[string]cid.Cid
}

// NewCache returns an empty per-batch cache.
func NewCache() *Cache {
	return &Cache{byPath: make(map[string]cid.Cid)}
}

func (c *Cache) get(path string) (cid.Cid, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.byPath[path]
	return v, ok
}

func (c *Cache) put(path string, v cid.Cid) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byPath[path] = v
}

// Resolver rewrites path references inside documents into CIDs. One
// Resolver serves one batch; per-document traversal state lives in the walk,
// so independent documents may be resolved concurrently.
type Resolver struct {
	// Root is the property directory all relative references resolve
	// against.
	Root string

	// Cache deduplicates CID computation for files referenced from
	// multiple documents.
	Cache *Cache

	// MediaDirectoryCID, once set, is what media-reference scalars resolve
	// to (prefixed with "ipfs://"). Empty until the property root is known.
	MediaDirectoryCID string

	mu        sync.Mutex
	collected []*propertydag.FileRecord
	seen      map[string]bool
}

// NewResolver returns a resolver for one property rooted at root.
func NewResolver(root string, cache *Cache) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	return &Resolver{
		Root:  root,
		Cache: cache,
		seen:  make(map[string]bool),
	}
}

// walkState is the per-top-level-call traversal context.
type walkState struct {
	// docPath is the absolute path of the document being walked; relative
	// references resolve against its directory.
	docPath string

	// seed marks the distinguished seed document: media references inside
	// it are fatal.
	seed bool

	// visited guards against reference cycles, keyed by canonical absolute
	// path. Scoped to one top-level Resolve call.
	visited map[string]bool

	collected *[]cid.Cid
}

// Resolve walks doc depth-first, rewrites every resolvable reference and
// returns the resolved document plus all CIDs it now points at. docPath is
// the document's path relative to the resolver root.
func (r *Resolver) Resolve(doc interface{}, docPath string) (interface{}, []cid.Cid, error) {
	return r.resolve(doc, docPath, false)
}

// ResolveSeed is Resolve for the seed document: any media reference aborts
// with InvalidSeedReferenceError.
func (r *Resolver) ResolveSeed(doc interface{}, docPath string) (interface{}, []cid.Cid, error) {
	return r.resolve(doc, docPath, true)
}

func (r *Resolver) resolve(doc interface{}, docPath string, seed bool) (interface{}, []cid.Cid, error) {
	abs, err := r.abs(docPath)
	if err != nil {
		return nil, nil, err
	}
	var out []cid.Cid
	st := &walkState{
		docPath:   abs,
		seed:      seed,
		visited:   map[string]bool{abs: true},
		collected: &out,
	}
	resolved, err := r.walk(doc, st)
	if err != nil {
		return nil, nil, err
	}
	return resolved, out, nil
}

// ResolveFile loads, parses and resolves a JSON document on disk, returning
// the resolved document. Used for top-level per-file tasks.
func (r *Resolver) ResolveFile(relPath string) (interface{}, []cid.Cid, error) {
	abs, err := r.abs(relPath)
	if err != nil {
		return nil, nil, err
	}
	doc, err := loadJSON(abs)
	if err != nil {
		return nil, nil, propertydag.InputError{Path: relPath, Err: err}
	}
	return r.Resolve(doc, relPath)
}

// Collected returns every auxiliary file registered during resolution, in
// first-reference order. Each entry was reached through a pointer and must
// appear in the final output alongside the explicitly discovered files.
func (r *Resolver) Collected() []*propertydag.FileRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*propertydag.FileRecord, len(r.collected))
	copy(out, r.collected)
	return out
}

// walk dispatches on the node shape: pointer object, plain object, array,
// media-reference scalar, other scalar.
func (r *Resolver) walk(node interface{}, st *walkState) (interface{}, error) {
	switch v := node.(type) {
	case map[string]interface{}:
		if target, ok := pointerTarget(v); ok {
			return r.resolvePointer(target, st)
		}
		out := make(map[string]interface{}, len(v))
		for k, child := range v {
			resolved, err := r.walk(child, st)
			if err != nil {
				return nil, err
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, child := range v {
			resolved, err := r.walk(child, st)
			if err != nil {
				return nil, err
			}
			out[i] = resolved
		}
		return out, nil
	case string:
		if isMediaReference(v) {
			return r.resolveMedia(v, st)
		}
		return v, nil
	default:
		return v, nil
	}
}

// pointerTarget reports whether node is a pointer object {"/": target}.
func pointerTarget(node map[string]interface{}) (string, bool) {
	if len(node) != 1 {
		return "", false
	}
	raw, ok := node[linkKey]
	if !ok {
		return "", false
	}
	target, ok := raw.(string)
	return target, ok
}

// resolvePointer handles {"/": target}. A target that already parses as a
// CID is recorded and left unchanged, so re-resolving a resolved document
// is a no-op. A path target is resolved depth-first: the referenced file's
// own links first, then its CID.
func (r *Resolver) resolvePointer(target string, st *walkState) (interface{}, error) {
	if c, err := cids.Parse(target); err == nil {
		*st.collected = append(*st.collected, c)
		return map[string]interface{}{linkKey: target}, nil
	}

	c, err := r.resolveReference(target, st)
	if err != nil {
		return nil, err
	}
	*st.collected = append(*st.collected, c)
	return map[string]interface{}{linkKey: c.String()}, nil
}

// resolveReference turns a filesystem path reference into a CID, loading
// and recursively resolving the referenced file and registering it for
// output.
func (r *Resolver) resolveReference(ref string, st *walkState) (cid.Cid, error) {
	abs, rel, err := r.target(ref, st)
	if err != nil {
		return cid.Undef, err
	}

	// A cached file has already resolved acyclically, so a repeated
	// reference to it (diamond graphs, shared schema files) is never a
	// cycle. Only a file still on the current descent path is.
	if c, ok := r.Cache.get(abs); ok {
		return c, nil
	}

	if st.visited[abs] {
		return cid.Undef, propertydag.LinkResolutionError{
			Path:      st.docPath,
			Reference: ref,
			Err:       fmt.Errorf("reference cycle through %s", rel),
		}
	}

	kind := KindOf(abs)
	raw, err := os.ReadFile(abs)
	if err != nil {
		return cid.Undef, propertydag.LinkResolutionError{Path: st.docPath, Reference: ref, Err: err}
	}

	var canonical []byte
	var c cid.Cid
	switch kind {
	case propertydag.KindJSON:
		doc, err := decodeJSON(raw)
		if err != nil {
			return cid.Undef, propertydag.LinkResolutionError{Path: st.docPath, Reference: ref, Err: err}
		}

		// Depth-first: the referenced file's own links resolve before its
		// CID is computed. The file stays marked only while it is on the
		// descent path, so siblings may reference it again afterwards.
		st.visited[abs] = true
		inner := &walkState{docPath: abs, visited: st.visited, collected: st.collected}
		resolved, err := r.walk(doc, inner)
		delete(st.visited, abs)
		if err != nil {
			return cid.Undef, err
		}

		canonical, err = canonicaljson.Marshal(resolved)
		if err != nil {
			return cid.Undef, propertydag.LinkResolutionError{Path: st.docPath, Reference: ref, Err: err}
		}
		c, err = cids.ForCanonicalJSON(canonical)
		if err != nil {
			return cid.Undef, err
		}
	default:
		canonical = raw
		c, err = cids.RawV1(raw)
		if err != nil {
			return cid.Undef, err
		}
	}

	r.Cache.put(abs, c)
	r.register(&propertydag.FileRecord{
		OriginalPath:   rel,
		Kind:           kind,
		CanonicalBytes: canonical,
		CID:            c,
	})
	logrus.WithField("path", rel).WithField("cid", c).Debug("resolve: registered referenced file")
	return c, nil
}

// resolveMedia maps a media-reference scalar onto the shared media
// directory. Inside the seed this is fatal: the media directory is named
// after the seed's own CID, so the seed can never reference it.
func (r *Resolver) resolveMedia(ref string, st *walkState) (interface{}, error) {
	rel, err := filepath.Rel(r.Root, st.docPath)
	if err != nil {
		rel = st.docPath
	}
	if st.seed {
		return nil, propertydag.InvalidSeedReferenceError{Path: rel, Reference: ref}
	}
	if r.MediaDirectoryCID == "" {
		return nil, propertydag.LinkResolutionError{
			Path:      rel,
			Reference: ref,
			Err:       fmt.Errorf("media reference before media directory CID is known"),
		}
	}
	return "ipfs://" + r.MediaDirectoryCID, nil
}

// register appends an auxiliary record exactly once per path. Writes are
// keyed by unique path, so the map is append-only under concurrency.
func (r *Resolver) register(rec *propertydag.FileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen[rec.OriginalPath] {
		return
	}
	r.seen[rec.OriginalPath] = true
	r.collected = append(r.collected, rec)
}

// target resolves a reference against the current document's directory and
// confines it to the property root.
func (r *Resolver) target(ref string, st *walkState) (abs, rel string, err error) {
	if filepath.IsAbs(ref) {
		abs = filepath.Clean(ref)
	} else {
		abs = filepath.Clean(filepath.Join(filepath.Dir(st.docPath), ref))
	}
	root, err := filepath.Abs(r.Root)
	if err != nil {
		return "", "", err
	}
	rel, err = filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", propertydag.LinkResolutionError{
			Path:      st.docPath,
			Reference: ref,
			Err:       fmt.Errorf("reference escapes property root"),
		}
	}
	return abs, rel, nil
}

func (r *Resolver) abs(relPath string) (string, error) {
	root, err := filepath.Abs(r.Root)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(relPath) {
		return filepath.Clean(relPath), nil
	}
	return filepath.Join(root, relPath), nil
}

// KindOf classifies a file by extension. Unknown extensions are treated as
// binary media content.
func KindOf(path string) propertydag.Kind {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return propertydag.KindJSON
	case ".html", ".htm":
		return propertydag.KindHTML
	default:
		return propertydag.KindImage
	}
}

// IsMediaPath reports whether path names a media file by extension.
func IsMediaPath(path string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(path))]
}

// isMediaReference reports whether s looks like a path to a page-level
// media file. Free text containing spaces is never treated as a reference.
func isMediaReference(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}
	if strings.HasPrefix(s, "ipfs://") {
		return false
	}
	return mediaExtensions[strings.ToLower(filepath.Ext(s))]
}

// decodeJSON parses raw preserving number literals, so canonicalization
// sees the original textual form.
func decodeJSON(raw []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func loadJSON(path string) (interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeJSON(raw)
}
