package merkle

import (
	"errors"
	"testing"

	ipld "github.com/ipfs/go-ipld-format"

	propertydag "github.com/elephant-xyz/property-dag"
)

func TestBuildDirectoryDeterministic(t *testing.T) {
	files := []NamedFile{
		{Name: "b.json", Content: []byte(`{"b":2}`)},
		{Name: "a.json", Content: []byte(`{"a":1}`)},
	}

	first, err := BuildDirectory(files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Same members in reversed input order must hash identically.
	second, err := BuildDirectory([]NamedFile{files[1], files[0]})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.CID.Equals(second.CID) {
		t.Fatalf("member order changed the root: %s != %s", first.CID, second.CID)
	}
	if first.TotalSize != second.TotalSize {
		t.Fatalf("member order changed the size: %d != %d", first.TotalSize, second.TotalSize)
	}
}

func TestWrapperChangesRoot(t *testing.T) {
	files := []NamedFile{{Name: "a.json", Content: []byte(`{"a":1}`)}}

	bare, err := BuildDirectory(files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wrapped, err := BuildDirectory(files, WithWrapper("wrap"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bare.CID.Equals(wrapped.CID) {
		t.Fatal("wrapper should change the root CID")
	}
	if wrapped.TotalSize <= bare.TotalSize {
		t.Fatalf("wrapped size should exceed inner size: %d <= %d", wrapped.TotalSize, bare.TotalSize)
	}
}

func TestWrapEqualsWrapperOption(t *testing.T) {
	files := []NamedFile{{Name: "a.json", Content: []byte(`{"a":1}`)}}

	inner, err := BuildDirectory(files)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	manual, err := Wrap("wrap", inner, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	viaOption, err := BuildDirectory(files, WithWrapper("wrap"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !manual.CID.Equals(viaOption.CID) {
		t.Fatalf("Wrap and WithWrapper diverged: %s != %s", manual.CID, viaOption.CID)
	}
}

func TestContentChangesRoot(t *testing.T) {
	a, err := BuildDirectory([]NamedFile{{Name: "a.json", Content: []byte(`{"a":1}`)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := BuildDirectory([]NamedFile{{Name: "a.json", Content: []byte(`{"a":2}`)}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.CID.Equals(b.CID) {
		t.Fatal("content change should change the root CID")
	}
}

func TestMissingContentAborts(t *testing.T) {
	_, err := BuildDirectory([]NamedFile{
		{Name: "ok.json", Content: []byte(`{}`)},
		{Name: "broken.json", Content: nil},
	})
	var mfe propertydag.MissingFileError
	if !errors.As(err, &mfe) {
		t.Fatalf("expected MissingFileError, got %v", err)
	}
	if mfe.Name != "broken.json" {
		t.Fatalf("error should name the missing member, got %q", mfe.Name)
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	_, err := BuildDirectory([]NamedFile{
		{Name: "a.json", Content: []byte(`{}`)},
		{Name: "a.json", Content: []byte(`{}`)},
	})
	if err == nil {
		t.Fatal("expected error for duplicate member name")
	}
}

func TestSortLinksByteOrder(t *testing.T) {
	links := []*ipld.Link{
		{Name: "b"},
		{Name: "Z"},
		{Name: "a"},
		{Name: "10"},
	}
	SortLinks(links)

	want := []string{"10", "Z", "a", "b"}
	for i, l := range links {
		if l.Name != want[i] {
			t.Fatalf("unexpected order at %d: got %q, want %q", i, l.Name, want[i])
		}
	}
}

func TestEmptyDirectory(t *testing.T) {
	a, err := BuildDirectory(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := BuildDirectory([]NamedFile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.CID.Equals(b.CID) {
		t.Fatalf("empty directory not deterministic: %s != %s", a.CID, b.CID)
	}
}
