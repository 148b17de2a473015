// Package propertydag defines the types shared by the components that turn a
// directory of property record files into a deterministic, content-addressed
// representation.
//
// FileRecord
//
// The central abstraction is a FileRecord. Every file discovered in a
// property directory becomes a record carrying its canonical bytes and the
// content identifier (CID) computed from them. Records are created at
// discovery and never deleted; a record that cannot be processed is marked
// skipped but still emitted so that reports account for every input.
//
// Manifest
//
// A manifest is the ordered collection of records for one property. Order
// follows discovery, never task completion, so that two runs over the same
// tree emit identical manifests. The manifest is the boundary handed to the
// external packaging and reporting collaborators; WriteCSV emits the fixed
// column layout those collaborators consume.
//
// Property CID
//
// The distinguished seed document's fully resolved CID is the canonical
// identifier for the whole property. It is computed by a two-pass fixed
// point (see the resolve package) and back-propagated onto every record
// before the manifest is sealed.
package propertydag
