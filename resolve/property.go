package resolve

import (
	"github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"

	propertydag "github.com/elephant-xyz/property-dag"
	"github.com/elephant-xyz/property-dag/canonicaljson"
	"github.com/elephant-xyz/property-dag/cids"
	"github.com/elephant-xyz/property-dag/merkle"
)

// DefaultMediaSuffix names the shared media directory after the property
// CID.
const DefaultMediaSuffix = "_media"

// PropertyOptions tune the fixed-point computation.
type PropertyOptions struct {
	// OverrideCID, when set, takes precedence over the seed-derived CID as
	// the property identifier (an already-known on-chain identifier).
	OverrideCID string

	// MediaSuffix is appended to the property CID to name the media
	// directory. Defaults to DefaultMediaSuffix.
	MediaSuffix string

	// VerifyConvergence recomputes what a third resolution pass would
	// yield and fails loudly if it differs from pass two. Off by default:
	// the compatible behavior accepts pass two unconditionally.
	VerifyConvergence bool
}

// PropertyResult is the settled fixed point for one property.
type PropertyResult struct {
	// PropertyCID is the final canonical property identifier:
	// override > pass-2 seed CID.
	PropertyCID string

	// ProvisionalCID is the pass-1 CID of the raw, unresolved seed. When
	// the seed carries no property-scoped links it equals the final CID.
	ProvisionalCID string

	// SeedCanonical is the canonical serialization of the resolved seed
	// document; SeedCID identifies it.
	SeedCanonical []byte
	SeedCID       cid.Cid

	// SeedCollected lists the CIDs the resolved seed points at.
	SeedCollected []cid.Cid

	// MediaDirectoryCID is set when the property has media files. The
	// directory is named "<propertyCid><suffix>" and wrapped so the name
	// survives a pinning upload.
	MediaDirectoryCID  string
	MediaDirectoryName string
}

// ResolveProperty runs the two-pass fixed point for one property.
//
// Pass 1 canonicalizes and hashes the seed's raw, unresolved content to a
// provisional CID. Pass 2 resolves the seed's own links and re-hashes the
// resolved document; the result (or the explicit override) is the final
// property CID. Exactly two passes: convergence is not iterated, and is
// only checked when VerifyConvergence is set.
//
// seedRaw may be nil when the property directory carries no seed document;
// then an override is required and MissingSeedError is returned without
// one. media lists every discovered media file; the shared directory is
// built only after the seed resolved cleanly, so a seed that references
// media fails before any directory computation.
func ResolveProperty(r *Resolver, seedPath string, seedRaw []byte, media []merkle.NamedFile, opts PropertyOptions) (*PropertyResult, error) {
	if opts.MediaSuffix == "" {
		opts.MediaSuffix = DefaultMediaSuffix
	}

	res := &PropertyResult{}

	if seedRaw == nil {
		if opts.OverrideCID == "" {
			return nil, propertydag.MissingSeedError{Dir: r.Root}
		}
		res.PropertyCID = opts.OverrideCID
		res.ProvisionalCID = opts.OverrideCID
	} else {
		// Pass 1: provisional CID of the raw seed.
		rawCanonical, err := canonicaljson.Transform(seedRaw)
		if err != nil {
			return nil, propertydag.InputError{Path: seedPath, Err: err}
		}
		provisional, err := cids.ForCanonicalJSON(rawCanonical)
		if err != nil {
			return nil, err
		}
		res.ProvisionalCID = provisional.String()

		// Pass 2: resolve the seed's own links, then re-hash.
		doc, err := decodeJSON(seedRaw)
		if err != nil {
			return nil, propertydag.InputError{Path: seedPath, Err: err}
		}
		resolved, collected, err := r.ResolveSeed(doc, seedPath)
		if err != nil {
			return nil, err
		}
		canonical, err := canonicaljson.Marshal(resolved)
		if err != nil {
			return nil, propertydag.InputError{Path: seedPath, Err: err}
		}
		seedCid, err := cids.ForCanonicalJSON(canonical)
		if err != nil {
			return nil, err
		}

		res.SeedCanonical = canonical
		res.SeedCID = seedCid
		res.SeedCollected = collected
		res.PropertyCID = seedCid.String()

		if opts.VerifyConvergence {
			if err := r.verifyConvergence(resolved, seedPath, seedCid); err != nil {
				return nil, err
			}
		}
	}

	if opts.OverrideCID != "" {
		res.PropertyCID = opts.OverrideCID
	}

	// The media directory is named with the working identifier of pass 2:
	// the override when given, the provisional seed CID otherwise.
	if len(media) > 0 {
		namingCID := opts.OverrideCID
		if namingCID == "" {
			namingCID = res.ProvisionalCID
		}
		res.MediaDirectoryName = namingCID + opts.MediaSuffix

		dir, err := merkle.BuildDirectory(media, merkle.WithWrapper(res.MediaDirectoryName))
		if err != nil {
			return nil, err
		}
		res.MediaDirectoryCID = dir.CID.String()
		r.MediaDirectoryCID = res.MediaDirectoryCID
	}

	logrus.WithField("property", res.PropertyCID).
		WithField("provisional", res.ProvisionalCID).
		Info("resolve: property fixed point settled")
	return res, nil
}

// verifyConvergence re-resolves the already-resolved seed and compares
// CIDs. Resolved pointers are CID pointers, which re-resolution leaves
// untouched, so a divergence means the fixed point would not hold.
func (r *Resolver) verifyConvergence(resolved interface{}, seedPath string, pass2 cid.Cid) error {
	again, _, err := r.ResolveSeed(resolved, seedPath)
	if err != nil {
		return err
	}
	canonical, err := canonicaljson.Marshal(again)
	if err != nil {
		return propertydag.InputError{Path: seedPath, Err: err}
	}
	pass3, err := cids.ForCanonicalJSON(canonical)
	if err != nil {
		return err
	}
	if !pass3.Equals(pass2) {
		return propertydag.LinkResolutionError{
			Path:      seedPath,
			Reference: pass2.String(),
			Err:       errNotConverged{pass2: pass2, pass3: pass3},
		}
	}
	return nil
}

type errNotConverged struct {
	pass2, pass3 cid.Cid
}

func (e errNotConverged) Error() string {
	return "seed CID did not converge after two passes: " + e.pass2.String() + " != " + e.pass3.String()
}
