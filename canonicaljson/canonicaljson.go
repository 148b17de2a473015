// Package canonicaljson produces the byte-stable JSON serialization every
// content identifier in this system is computed from. Canonical form follows
// RFC 8785: object keys sorted lexicographically, array order preserved,
// shortest round-trip number formatting, fixed escape table, no incidental
// whitespace. Semantically identical documents always canonicalize to
// identical bytes regardless of original key order.
package canonicaljson

import (
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// UnsupportedValueError reports a value that has no JSON representation:
// cyclic data, channels, functions, NaN or infinities.
type UnsupportedValueError struct {
	Err error
}

func (err UnsupportedValueError) Error() string {
	return fmt.Sprintf("canonicaljson: unsupported value: %v", err.Err)
}

func (err UnsupportedValueError) Unwrap() error { return err.Err }

// SyntaxError reports raw input that is not valid JSON text.
type SyntaxError struct {
	Err error
}

func (err SyntaxError) Error() string {
	return fmt.Sprintf("canonicaljson: invalid JSON: %v", err.Err)
}

func (err SyntaxError) Unwrap() error { return err.Err }

// Transform canonicalizes raw JSON text. It is idempotent:
// Transform(Transform(x)) equals Transform(x).
func Transform(raw []byte) ([]byte, error) {
	if !json.Valid(raw) {
		return nil, SyntaxError{Err: fmt.Errorf("document does not parse")}
	}
	out, err := jcs.Transform(raw)
	if err != nil {
		return nil, SyntaxError{Err: err}
	}
	return out, nil
}

// Marshal serializes an in-memory value to canonical form. Cyclic values and
// non-JSON types yield an UnsupportedValueError.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		switch err.(type) {
		case *json.UnsupportedValueError, *json.UnsupportedTypeError:
			return nil, UnsupportedValueError{Err: err}
		}
		return nil, err
	}
	return Transform(raw)
}
