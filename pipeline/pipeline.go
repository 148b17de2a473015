// Package pipeline orchestrates one batch run: discover the property
// directory, settle the property CID through the two-pass fixed point,
// then hash and resolve the remaining files concurrently.
//
// The two passes form a global barrier: no per-file parallel work starts
// until the property CID and the shared media directory are fixed, because
// both feed into every file's resolution. Manifest order always follows
// discovery order; task completion order is a race and never observable in
// the output.
package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	events "github.com/docker/go-events"
	"github.com/docker/go-metrics"
	"github.com/sirupsen/logrus"

	propertydag "github.com/elephant-xyz/property-dag"
	"github.com/elephant-xyz/property-dag/canonicaljson"
	"github.com/elephant-xyz/property-dag/cids"
	"github.com/elephant-xyz/property-dag/merkle"
	prom "github.com/elephant-xyz/property-dag/metrics"
	"github.com/elephant-xyz/property-dag/queue"
	"github.com/elephant-xyz/property-dag/resolve"
)

// gatewayBase prefixes the htmlLink column handed to the reporting
// collaborator.
const gatewayBase = "https://ipfs.io/ipfs/"

// seedNames are the file names recognized as the distinguished seed
// document.
var seedNames = map[string]bool{
	"seed.json":          true,
	"property_seed.json": true,
}

var (
	processedCounter metrics.Counter = prom.PipelineNamespace.NewCounter("processed_files", "The number of files processed successfully")
	skippedCounter   metrics.Counter = prom.PipelineNamespace.NewCounter("skipped_files", "The number of files skipped due to input errors")
	erroredCounter   metrics.Counter = prom.PipelineNamespace.NewCounter("errored_files", "The number of files that failed resolution")
)

// Options configure one batch run.
type Options struct {
	// Dir is the property directory to ingest.
	Dir string

	// PropertyCID overrides the seed-derived property identifier, for
	// properties whose identifier is already fixed on chain.
	PropertyCID string

	// Concurrency bounds parallel per-file work; zero selects the
	// platform default.
	Concurrency int

	// MediaSuffix names the shared media directory; empty selects the
	// default.
	MediaSuffix string

	// VerifyConvergence asserts the two-pass fixed point instead of
	// silently accepting pass two.
	VerifyConvergence bool

	// TaskRetries and TaskTimeout govern per-file task scheduling.
	TaskRetries int
	TaskTimeout time.Duration

	// Sink observes queue lifecycle events; nil discards them.
	Sink events.Sink
}

// Run executes a batch over one property directory and returns its
// manifest. Per-file input errors are recorded and skipped; seed
// resolution failures and configuration errors abort the run.
func Run(ctx context.Context, opts Options) (*propertydag.Manifest, error) {
	root, err := filepath.Abs(opts.Dir)
	if err != nil {
		return nil, err
	}

	records, seedIdx, err := discover(root)
	if err != nil {
		return nil, err
	}
	logrus.WithField("dir", root).WithField("files", len(records)).Info("pipeline: discovery complete")

	media, err := readMedia(root, records)
	if err != nil {
		return nil, err
	}

	resolver := resolve.NewResolver(root, resolve.NewCache())

	var seedRaw []byte
	var seedPath string
	if seedIdx >= 0 {
		seedPath = records[seedIdx].OriginalPath
		seedRaw, err = os.ReadFile(filepath.Join(root, seedPath))
		if err != nil {
			return nil, propertydag.InputError{Path: seedPath, Err: err}
		}
	}

	// Global barrier: both passes and the media directory settle before
	// any parallel per-file resolution starts.
	res, err := resolve.ResolveProperty(resolver, seedPath, seedRaw, media, resolve.PropertyOptions{
		OverrideCID:       opts.PropertyCID,
		MediaSuffix:       opts.MediaSuffix,
		VerifyConvergence: opts.VerifyConvergence,
	})
	if err != nil {
		return nil, err
	}
	if seedIdx >= 0 {
		records[seedIdx].CanonicalBytes = res.SeedCanonical
		records[seedIdx].CID = res.SeedCID
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := queue.New(queue.Config{Concurrency: opts.Concurrency, DefaultTimeout: opts.TaskTimeout}, opts.Sink)
	taskIDs := make(map[queue.TaskID]*propertydag.FileRecord)
	for i, rec := range records {
		if i == seedIdx || rec.Kind.Media() || rec.Skipped {
			continue
		}
		rec := rec
		id := q.Push(func(ctx context.Context) error {
			return resolveRecord(resolver, rec)
		}, queue.PushOptions{MaxRetries: opts.TaskRetries})
		taskIDs[id] = rec
	}
	q.Wait()
	q.Close()

	for id, rec := range taskIDs {
		if err := q.Err(id); err != nil {
			rec.Err = err
		}
	}

	// Referenced files that were not themselves discovered (they may live
	// in subdirectories outside the walk's supported set) still belong in
	// the output.
	known := make(map[string]bool, len(records))
	for _, rec := range records {
		known[rec.OriginalPath] = true
	}
	for _, aux := range resolver.Collected() {
		if !known[aux.OriginalPath] {
			known[aux.OriginalPath] = true
			records = append(records, aux)
		}
	}

	manifest := &propertydag.Manifest{
		PropertyCID:       res.PropertyCID,
		MediaDirectoryCID: res.MediaDirectoryCID,
		Records:           records,
	}
	seal(manifest)

	logrus.WithField("property", manifest.PropertyCID).
		WithField("processed", manifest.Processed).
		WithField("skipped", manifest.Skipped).
		WithField("errored", manifest.Errored).
		Info("pipeline: batch complete")
	return manifest, nil
}

// discover walks the property directory in lexical order and creates one
// record per file. The seed index is returned when a seed document is
// present.
func discover(root string) ([]*propertydag.FileRecord, int, error) {
	var records []*propertydag.FileRecord
	seedIdx := -1

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		rec := &propertydag.FileRecord{OriginalPath: rel}
		switch {
		case strings.EqualFold(filepath.Ext(path), ".json"):
			rec.Kind = propertydag.KindJSON
			if seedNames[d.Name()] && seedIdx < 0 {
				seedIdx = len(records)
			} else if name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())); cids.IsCID(name) {
				rec.DataGroupCID = name
			}
		case resolve.IsMediaPath(path):
			rec.Kind = resolve.KindOf(path)
		default:
			rec.Skipped = true
			rec.Err = propertydag.InputError{Path: rel, Err: fmt.Errorf("unsupported file type")}
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, -1, err
	}
	return records, seedIdx, nil
}

// readMedia loads every media file and computes its individual CID. A
// read failure poisons the entry; the directory build then aborts the
// property, since partial media directories must never be hashed.
func readMedia(root string, records []*propertydag.FileRecord) ([]merkle.NamedFile, error) {
	var media []merkle.NamedFile
	for _, rec := range records {
		if !rec.Kind.Media() || rec.Skipped {
			continue
		}
		content, err := os.ReadFile(filepath.Join(root, rec.OriginalPath))
		if err != nil {
			return nil, propertydag.InputError{Path: rec.OriginalPath, Err: err}
		}
		rec.CanonicalBytes = content
		c, err := cids.RawV1(content)
		if err != nil {
			return nil, err
		}
		rec.CID = c
		media = append(media, merkle.NamedFile{Name: filepath.Base(rec.OriginalPath), Content: content})
	}
	return media, nil
}

// resolveRecord is the per-file task body: load, resolve links,
// canonicalize, hash. Input errors mark the record skipped without
// failing the task; resolution errors fail the task and consume a retry.
func resolveRecord(resolver *resolve.Resolver, rec *propertydag.FileRecord) error {
	doc, _, err := resolver.ResolveFile(rec.OriginalPath)
	if err != nil {
		if propertydag.IsInput(err) {
			rec.Skipped = true
			rec.Err = err
			return nil
		}
		return err
	}
	canonical, err := canonicaljson.Marshal(doc)
	if err != nil {
		return propertydag.InputError{Path: rec.OriginalPath, Err: err}
	}
	c, err := cids.ForCanonicalJSON(canonical)
	if err != nil {
		return err
	}
	rec.CanonicalBytes = canonical
	rec.CID = c
	return nil
}

// seal freezes property CIDs onto every record, fills the reporting
// columns and settles the batch counts.
func seal(m *propertydag.Manifest) {
	for _, rec := range m.Records {
		rec.PropertyCID = m.PropertyCID
		switch {
		case rec.Skipped:
			m.Skipped++
			skippedCounter.Inc(1)
		case rec.Err != nil:
			m.Errored++
			erroredCounter.Inc(1)
		default:
			m.Processed++
			processedCounter.Inc(1)
			if rec.CID.Defined() {
				rec.HTMLLink = gatewayBase + rec.CID.String()
			}
		}
	}
}

// Errs collects the per-record failures for an external error report.
func Errs(m *propertydag.Manifest) []error {
	var errs []error
	for _, rec := range m.Records {
		if rec.Err != nil {
			errs = append(errs, rec.Err)
		}
	}
	return errs
}
