package canonicaljson

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestTransformKeyOrderIndependent(t *testing.T) {
	a, err := Transform([]byte(`{"b": 2, "a": 1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Transform([]byte(`{"a":1,"b":2}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("canonical forms differ: %q != %q", a, b)
	}
	if string(a) != `{"a":1,"b":2}` {
		t.Fatalf("unexpected canonical form: %q", a)
	}
}

func TestTransformIdempotent(t *testing.T) {
	docs := []string{
		`{"z":{"y":[3,2,1],"x":null},"a":"text"}`,
		`[1.5, 2.25, 1e2]`,
		`"plain string"`,
		`{}`,
		`[]`,
	}
	for _, doc := range docs {
		once, err := Transform([]byte(doc))
		if err != nil {
			t.Fatalf("transform %q: %v", doc, err)
		}
		twice, err := Transform(once)
		if err != nil {
			t.Fatalf("re-transform %q: %v", once, err)
		}
		if !bytes.Equal(once, twice) {
			t.Fatalf("not idempotent for %q: %q != %q", doc, once, twice)
		}
	}
}

func TestTransformRejectsInvalidJSON(t *testing.T) {
	_, err := Transform([]byte(`{"a":`))
	var se SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
}

func TestMarshalSortsKeys(t *testing.T) {
	out, err := Marshal(map[string]interface{}{"b": 2, "a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"a":1,"b":2}` {
		t.Fatalf("unexpected canonical form: %q", out)
	}
}

func TestMarshalRejectsCycles(t *testing.T) {
	cyclic := map[string]interface{}{}
	cyclic["self"] = cyclic

	_, err := Marshal(cyclic)
	var uve UnsupportedValueError
	if !errors.As(err, &uve) {
		t.Fatalf("expected UnsupportedValueError, got %v", err)
	}
}

func TestMarshalRejectsNonJSONTypes(t *testing.T) {
	for _, v := range []interface{}{make(chan int), math.NaN(), math.Inf(1)} {
		_, err := Marshal(v)
		var uve UnsupportedValueError
		if !errors.As(err, &uve) {
			t.Fatalf("expected UnsupportedValueError for %T, got %v", v, err)
		}
	}
}
