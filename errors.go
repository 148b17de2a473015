package propertydag

import (
	"errors"
	"fmt"
)

// InputError reports a malformed or unreadable input file. During batch
// processing an InputError marks the offending record skipped without
// aborting the batch.
type InputError struct {
	Path string
	Err  error
}

func (err InputError) Error() string {
	return fmt.Sprintf("input %s: %v", err.Path, err.Err)
}

func (err InputError) Unwrap() error { return err.Err }

// LinkResolutionError reports a failure while resolving a pointer or media
// reference inside a document. Fatal when the document is the seed.
type LinkResolutionError struct {
	Path      string
	Reference string
	Err       error
}

func (err LinkResolutionError) Error() string {
	return fmt.Sprintf("resolving %q in %s: %v", err.Reference, err.Path, err.Err)
}

func (err LinkResolutionError) Unwrap() error { return err.Err }

// InvalidSeedReferenceError is raised when a seed document directly
// references a media file. Seed documents must never reference media; the
// shared media directory is named after the seed's own CID, so allowing the
// reference would make the fixed point unsolvable.
type InvalidSeedReferenceError struct {
	Path      string
	Reference string
}

func (err InvalidSeedReferenceError) Error() string {
	return fmt.Sprintf("seed document %s references media file %q", err.Path, err.Reference)
}

// MissingFileError aborts a directory CID computation when a member file has
// no readable content. Directory hashes are all-or-nothing; a partial
// directory would silently produce a non-interoperable root.
type MissingFileError struct {
	Name string
}

func (err MissingFileError) Error() string {
	return fmt.Sprintf("directory member %q has no content", err.Name)
}

// MissingSeedError is a configuration error: the batch has neither a seed
// document nor an explicit property CID override, so no property identifier
// can be established.
type MissingSeedError struct {
	Dir string
}

func (err MissingSeedError) Error() string {
	return fmt.Sprintf("no seed document in %s and no property CID override supplied", err.Dir)
}

// ConcurrencyError reports a queued task that failed after exhausting its
// retry budget, or overran its deadline. Recorded per task; sibling tasks
// continue.
type ConcurrencyError struct {
	TaskID   uint64
	Attempts int
	Err      error
}

func (err ConcurrencyError) Error() string {
	return fmt.Sprintf("task %d failed after %d attempts: %v", err.TaskID, err.Attempts, err.Err)
}

func (err ConcurrencyError) Unwrap() error { return err.Err }

// ErrTaskTimeout marks an attempt that overran its deadline. The attempt
// counts as a retryable failure; the running goroutine is not cancelled.
var ErrTaskTimeout = errors.New("task deadline exceeded")

// IsInput reports whether err is classified as an input error.
func IsInput(err error) bool {
	var ie InputError
	return errors.As(err, &ie)
}

// IsLinkResolution reports whether err arose from link resolution, including
// disallowed seed media references.
func IsLinkResolution(err error) bool {
	var lre LinkResolutionError
	var isre InvalidSeedReferenceError
	return errors.As(err, &lre) || errors.As(err, &isre)
}

// IsConfiguration reports whether err is a configuration error that should
// abort immediately with non-zero status.
func IsConfiguration(err error) bool {
	var mse MissingSeedError
	return errors.As(err, &mse)
}
