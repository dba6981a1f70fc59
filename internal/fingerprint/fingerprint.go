// Package fingerprint derives content-addressed record identifiers.
//
// The identifier of a record is a hash of its category and the canonical
// JSON form of its pattern. Canonical means: object keys sorted, no HTML
// escaping, strings NFC-normalized and numbers kept exactly as written.
// The same logical content therefore always maps to the same identifier,
// whatever key order or Unicode composition the caller used.
//
// Collisions are not detected. Two contents with the same identifier are
// the same record as far as the store is concerned.
package fingerprint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// Length is the number of hex characters in an identifier.
const Length = 12

// ErrMalformed is returned for values that cannot be serialized as JSON.
var ErrMalformed = errors.New("fingerprint: malformed value")

// Of canonicalizes v and returns its identifier under category together with
// the canonical bytes.
func Of(category string, v any) (string, []byte, error) {
	canonical, err := Canonical(v)
	if err != nil {
		return "", nil, err
	}
	return ID(category, canonical), canonical, nil
}

// ID hashes an already canonical payload.
func ID(category string, canonical []byte) string {
	h := xxhash.New()
	h.WriteString(category)
	h.WriteString(":")
	h.Write(canonical)
	return fmt.Sprintf("%016x", h.Sum64())[:Length]
}

// Canonical returns the canonical JSON encoding of v.
//
// v may be any JSON-serializable Go value, or a json.RawMessage / []byte
// holding JSON text. nil, empty input and a top-level JSON null (such as a
// typed nil map) all encode as an empty object.
func Canonical(v any) ([]byte, error) {
	var raw []byte
	switch val := v.(type) {
	case nil:
		return []byte("{}"), nil
	case json.RawMessage:
		raw = val
	case []byte:
		raw = val
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		raw = b
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("{}"), nil
	}

	tree, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return []byte("{}"), nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalize(tree)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func decode(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrMalformed)
	}
	return tree, nil
}

// normalize NFC-normalizes every string and object key. encoding/json sorts
// map keys on output, which gives the canonical key order.
func normalize(v any) any {
	switch val := v.(type) {
	case string:
		return norm.NFC.String(val)
	case []any:
		for i, elem := range val {
			val[i] = normalize(elem)
		}
		return val
	case map[string]any:
		// Visit keys in order so that keys colliding after normalization
		// resolve the same way on every run.
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		out := make(map[string]any, len(val))
		for _, k := range keys {
			out[norm.NFC.String(k)] = normalize(val[k])
		}
		return out
	default:
		return v
	}
}
