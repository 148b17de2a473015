package propertydag

import (
	"encoding/csv"
	"io"

	"github.com/ipfs/go-cid"
)

// Kind classifies a discovered file. It decides how the file's CID is
// computed and whether the file participates in the shared media directory.
type Kind string

const (
	KindJSON  Kind = "json"
	KindImage Kind = "image"
	KindHTML  Kind = "html"
)

// Media reports whether files of this kind collapse into the shared
// per-property media directory instead of being addressed individually.
func (k Kind) Media() bool {
	return k == KindImage || k == KindHTML
}

// FileRecord describes one discovered file and the identifiers computed for
// it. A record is created at discovery time and never removed from the
// batch; PropertyCID stays mutable until the property root is fixed and is
// frozen afterwards.
type FileRecord struct {
	// OriginalPath is the path of the file relative to the property root.
	OriginalPath string

	Kind Kind

	// CanonicalBytes holds the canonical JSON serialization for JSON files
	// and the raw bytes for binary files.
	CanonicalBytes []byte

	// CID is the content identifier calculated from CanonicalBytes.
	CID cid.Cid

	// DataGroupCID is set when the file name addresses a data-group schema
	// (the basename minus extension parses as a CID).
	DataGroupCID string

	// PropertyCID is the canonical identifier of the property this record
	// belongs to, back-propagated once the seed's two-pass resolution is
	// complete.
	PropertyCID string

	// UploadedAt and HTMLLink are filled by the external upload collaborator;
	// they are carried here so the CSV boundary can emit them in place.
	UploadedAt string
	HTMLLink   string

	// Skipped marks a record whose content could not be processed. The
	// record is still emitted; Err explains the failure.
	Skipped bool
	Err     error
}

// Manifest is the ordered output of one batch run. Record order follows
// discovery order, independent of task completion order.
type Manifest struct {
	PropertyCID       string
	MediaDirectoryCID string

	Records []*FileRecord

	// Counts reported to the operator after a best-effort batch.
	Processed int
	Skipped   int
	Errored   int
}

// csvHeader is the fixed column layout consumed by the external reporting
// collaborator. The order must never change.
var csvHeader = []string{"propertyCid", "dataGroupCid", "dataCid", "filePath", "uploadedAt", "htmlLink"}

// WriteCSV emits the manifest in the fixed reporting layout. Skipped records
// are emitted with an empty dataCid so that every input file is accounted
// for.
func (m *Manifest) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range m.Records {
		dataCID := ""
		if rec.CID.Defined() {
			dataCID = rec.CID.String()
		}
		row := []string{
			rec.PropertyCID,
			rec.DataGroupCID,
			dataCID,
			rec.OriginalPath,
			rec.UploadedAt,
			rec.HTMLLink,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
