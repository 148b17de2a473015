package resolve

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	propertydag "github.com/elephant-xyz/property-dag"
	"github.com/elephant-xyz/property-dag/canonicaljson"
	"github.com/elephant-xyz/property-dag/cids"
	"github.com/elephant-xyz/property-dag/merkle"
)

func TestPropertyNoLinksTwoPassesAgree(t *testing.T) {
	dir := t.TempDir()
	seed := []byte(`{"parcel": "123-45-678", "county": "Duval"}`)

	r := NewResolver(dir, nil)
	res, err := ResolveProperty(r, "seed.json", seed, nil, PropertyOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.ProvisionalCID != res.PropertyCID {
		t.Fatalf("link-free seed: pass-1 CID %s != final CID %s", res.ProvisionalCID, res.PropertyCID)
	}
	if res.SeedCID.String() != res.PropertyCID {
		t.Fatalf("seed CID %s != property CID %s", res.SeedCID, res.PropertyCID)
	}

	canonical, _ := canonicaljson.Transform(seed)
	want, _ := cids.ForCanonicalJSON(canonical)
	if res.PropertyCID != want.String() {
		t.Fatalf("property CID %s, want %s", res.PropertyCID, want)
	}
}

func TestPropertyWithLinksDiverges(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "parcel.json", `{"apn": "123"}`)
	seed := []byte(`{"parcel": {"/": "parcel.json"}}`)

	r := NewResolver(dir, nil)
	res, err := ResolveProperty(r, "seed.json", seed, nil, PropertyOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.ProvisionalCID == res.PropertyCID {
		t.Fatal("seed with links should change CID between passes")
	}

	parcelCID, _ := cids.ForCanonicalJSON([]byte(`{"apn":"123"}`))
	wantSeed := `{"parcel":{"/":"` + parcelCID.String() + `"}}`
	if string(res.SeedCanonical) != wantSeed {
		t.Fatalf("resolved seed canonical %q, want %q", res.SeedCanonical, wantSeed)
	}
	want, _ := cids.ForCanonicalJSON([]byte(wantSeed))
	if res.PropertyCID != want.String() {
		t.Fatalf("property CID %s, want %s", res.PropertyCID, want)
	}
}

func TestPropertyOverridePrecedence(t *testing.T) {
	dir := t.TempDir()
	seed := []byte(`{"a": 1}`)
	override, _ := cids.RawV1([]byte("on-chain identifier"))

	r := NewResolver(dir, nil)
	res, err := ResolveProperty(r, "seed.json", seed, nil, PropertyOptions{OverrideCID: override.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PropertyCID != override.String() {
		t.Fatalf("override not honored: %s", res.PropertyCID)
	}
	// The seed is still resolved and hashed; only the property identity is
	// overridden.
	if !res.SeedCID.Defined() {
		t.Fatal("seed CID should still be computed")
	}
}

func TestPropertyMissingSeed(t *testing.T) {
	dir := t.TempDir()
	r := NewResolver(dir, nil)

	_, err := ResolveProperty(r, "", nil, nil, PropertyOptions{})
	var mse propertydag.MissingSeedError
	if !errors.As(err, &mse) {
		t.Fatalf("expected MissingSeedError, got %v", err)
	}

	// An override alone is sufficient.
	override, _ := cids.RawV1([]byte("x"))
	res, err := ResolveProperty(r, "", nil, nil, PropertyOptions{OverrideCID: override.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.PropertyCID != override.String() {
		t.Fatalf("property CID %s, want override %s", res.PropertyCID, override)
	}
}

func TestPropertyMediaDirectory(t *testing.T) {
	dir := t.TempDir()
	seed := []byte(`{"a": 1}`)
	media := []merkle.NamedFile{
		{Name: "photo.jpg", Content: []byte{0xff, 0xd8}},
		{Name: "index.html", Content: []byte("<html></html>")},
	}

	r := NewResolver(dir, nil)
	res, err := ResolveProperty(r, "seed.json", seed, media, PropertyOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantName := res.ProvisionalCID + DefaultMediaSuffix
	if res.MediaDirectoryName != wantName {
		t.Fatalf("media directory named %q, want %q", res.MediaDirectoryName, wantName)
	}

	want, err := merkle.BuildDirectory(media, merkle.WithWrapper(wantName))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.MediaDirectoryCID != want.CID.String() {
		t.Fatalf("media directory CID %s, want %s", res.MediaDirectoryCID, want.CID)
	}
	if r.MediaDirectoryCID != res.MediaDirectoryCID {
		t.Fatal("resolver should carry the media directory CID for subsequent files")
	}
}

func TestPropertySeedMediaReferenceFailsBeforeDirectoryBuild(t *testing.T) {
	dir := t.TempDir()
	seed := []byte(`{"factSheet": "index.html"}`)
	media := []merkle.NamedFile{{Name: "index.html", Content: []byte("<html></html>")}}

	r := NewResolver(dir, nil)
	_, err := ResolveProperty(r, "seed.json", seed, media, PropertyOptions{})
	var isre propertydag.InvalidSeedReferenceError
	if !errors.As(err, &isre) {
		t.Fatalf("expected InvalidSeedReferenceError, got %v", err)
	}
	if r.MediaDirectoryCID != "" {
		t.Fatal("media directory must not be built when the seed fails")
	}
}

func TestPropertyConvergenceVerification(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "parcel.json", `{"apn": "123"}`)
	seed := []byte(`{"parcel": {"/": "parcel.json"}, "plain": 7}`)

	r := NewResolver(dir, nil)
	res, err := ResolveProperty(r, "seed.json", seed, nil, PropertyOptions{VerifyConvergence: true})
	if err != nil {
		t.Fatalf("convergent seed should verify cleanly: %v", err)
	}
	if res.PropertyCID == "" {
		t.Fatal("missing property CID")
	}
}

func TestPropertySeedRecordPaths(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "data")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFile(t, sub, "lot.json", `{"lot": 9}`)
	seed := []byte(`{"lot": {"/": "data/lot.json"}}`)

	r := NewResolver(dir, nil)
	if _, err := ResolveProperty(r, "seed.json", seed, nil, PropertyOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	aux := r.Collected()
	if len(aux) != 1 {
		t.Fatalf("expected one registered file, got %d", len(aux))
	}
	if aux[0].OriginalPath != filepath.Join("data", "lot.json") {
		t.Fatalf("registered path should stay root-relative: %s", aux[0].OriginalPath)
	}
}
