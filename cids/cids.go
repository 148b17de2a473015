// Package cids computes content identifiers for raw byte payloads. Every
// function is a pure function of its input: identical bytes always produce
// the identical encoded CID string, independent of call order or any
// external state.
//
// UnixFS file identifiers are produced by running the payload through the
// same in-memory UnixFS import pipeline the pinning service applies to
// uploads, so the resulting hashes are verifiable by independent parties.
package cids

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/ipfs/go-blockservice"
	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-merkledag"
	"github.com/opencontainers/go-digest"

	chunker "github.com/ipfs/go-ipfs-chunker"
	ipld "github.com/ipfs/go-ipld-format"
	importer "github.com/ipfs/go-unixfs/importer"

	"github.com/ipfs/go-unixfs/importer/balanced"
	helper "github.com/ipfs/go-unixfs/importer/helpers"
	mh "github.com/multiformats/go-multihash"

	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	bstore "github.com/ipfs/go-ipfs-blockstore"
)

// maxLinksPerBlock matches the importer fan-out used by the pinning
// service's upload path.
const maxLinksPerBlock = 1024

// InvalidInputError reports input that cannot be mapped to a content
// identifier, such as a malformed CID string or a digest with the wrong
// algorithm or length.
type InvalidInputError struct {
	Reason string
}

func (err InvalidInputError) Error() string {
	return fmt.Sprintf("cids: invalid input: %s", err.Reason)
}

// memoryDagService returns a throwaway DAG service over an in-memory
// datastore. Each call gets a fresh store so concurrent hashing never
// shares state.
func memoryDagService() ipld.DAGService {
	bs := bstore.NewBlockstore(dssync.MutexWrap(ds.NewMapDatastore()))
	return merkledag.NewDAGService(blockservice.New(bs, nil))
}

// FileNode imports data as a UnixFS file and returns the root node of the
// resulting DAG. Version selects the CID version of every node; the codec
// is always dag-pb.
func FileNode(data []byte, version int) (ipld.Node, error) {
	dserv := memoryDagService()
	spl := chunker.DefaultSplitter(bytes.NewReader(data))

	if version == 0 {
		return importer.BuildDagFromReader(dserv, spl)
	}

	prefix, err := merkledag.PrefixForCidVersion(version)
	if err != nil {
		return nil, err
	}
	prefix.MhType = uint64(mh.SHA2_256)
	dbp := helper.DagBuilderParams{
		Maxlinks:   maxLinksPerBlock,
		RawLeaves:  false,
		CidBuilder: prefix,
		Dagserv:    dserv,
	}
	db, err := dbp.New(spl)
	if err != nil {
		return nil, err
	}
	return balanced.Layout(db)
}

// RawV1 hashes data with sha2-256 and returns a CIDv1 with the raw codec.
// The encoded form is base32 ("bafkrei..."). Zero-length input is valid and
// yields a fixed identifier.
func RawV1(data []byte) (cid.Cid, error) {
	h, err := mh.Sum(data, mh.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, h), nil
}

// UnixFSV0 wraps data as a UnixFS file and returns its CIDv0 ("Qm...",
// base58btc, 46 characters).
func UnixFSV0(data []byte) (cid.Cid, error) {
	nd, err := FileNode(data, 0)
	if err != nil {
		return cid.Undef, err
	}
	return nd.Cid(), nil
}

// UnixFSV1 wraps data as a UnixFS file and returns its CIDv1 with the
// dag-pb codec ("bafy...", base32).
func UnixFSV1(data []byte) (cid.Cid, error) {
	nd, err := FileNode(data, 1)
	if err != nil {
		return cid.Undef, err
	}
	return nd.Cid(), nil
}

// ForCanonicalJSON identifies a canonical JSON document. It always routes
// through RawV1 over the UTF-8 bytes: one uniform scheme for every file
// kind, regardless of whether the content happens to be JSON.
func ForCanonicalJSON(canonical []byte) (cid.Cid, error) {
	return RawV1(canonical)
}

// Parse decodes and validates a CID string in any of the supported
// encodings (v0 base58btc, v1 base32).
func Parse(s string) (cid.Cid, error) {
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, InvalidInputError{Reason: fmt.Sprintf("%q is not a CID: %v", s, err)}
	}
	return c, nil
}

// IsCID reports whether s parses as a valid CID string.
func IsCID(s string) bool {
	_, err := cid.Decode(s)
	return err == nil
}

// FromDigest converts an on-chain sha2-256 hex digest into its CID wrapper
// (CIDv0 over the identical 32-byte digest). Together with ToDigest this is
// the exact bijection the blockchain boundary relies on.
func FromDigest(d digest.Digest) (cid.Cid, error) {
	if d.Algorithm() != digest.SHA256 {
		return cid.Undef, InvalidInputError{Reason: fmt.Sprintf("unsupported digest algorithm %q", d.Algorithm())}
	}
	raw, err := hex.DecodeString(d.Encoded())
	if err != nil {
		return cid.Undef, InvalidInputError{Reason: fmt.Sprintf("digest %q is not hex: %v", d, err)}
	}
	if len(raw) != 32 {
		return cid.Undef, InvalidInputError{Reason: fmt.Sprintf("digest %q is %d bytes, want 32", d, len(raw))}
	}
	wrapped, err := mh.Encode(raw, mh.SHA2_256)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV0(wrapped), nil
}

// ToDigest extracts the 32-byte sha2-256 digest from a CID as a hex digest.
func ToDigest(c cid.Cid) (digest.Digest, error) {
	dec, err := mh.Decode(c.Hash())
	if err != nil {
		return "", err
	}
	if dec.Code != mh.SHA2_256 || dec.Length != 32 {
		return "", InvalidInputError{Reason: fmt.Sprintf("CID %s does not carry a sha2-256 digest", c)}
	}
	return digest.NewDigestFromEncoded(digest.SHA256, hex.EncodeToString(dec.Digest)), nil
}
