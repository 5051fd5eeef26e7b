// Package canonical produces the deterministic JSON form of documents
// that is fed to signing and verification.
//
// Object keys are sorted recursively, array order is preserved, numbers keep
// their original textual form and HTML characters are not escaped.
package canonical

import (
	"bytes"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// ErrSerialization is returned when a document cannot be serialized,
// for example because it contains a reference cycle.
var ErrSerialization = errors.New("serialization error")

// Canonicalize returns the canonical form of v.
func Canonicalize(v any) (string, error) {
	tree, err := toTree(v)
	if err != nil {
		return "", err
	}
	return encode(tree)
}

// CanonicalizeWithout returns the canonical form of v with the given
// top-level fields removed. Used to drop the signature before signing.
func CanonicalizeWithout(v any, fields ...string) (string, error) {
	tree, err := toTree(v)
	if err != nil {
		return "", err
	}
	if obj, ok := tree.(map[string]any); ok {
		for _, f := range fields {
			delete(obj, f)
		}
	}
	return encode(tree)
}

// toTree converts v into generic JSON values (maps, slices, json.Number, ...).
func toTree(v any) (any, error) {
	var raw []byte
	switch t := v.(type) {
	case json.RawMessage:
		raw = t
	case []byte:
		raw = t
	default:
		b, err := marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to decode document"), ErrSerialization)
	}
	return tree, nil
}

// encode writes a generic tree; encoding/json sorts map keys.
func encode(tree any) (string, error) {
	b, err := marshal(tree)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to encode document"), ErrSerialization)
	}
	return unescapeLineSeparators(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// unescapeLineSeparators writes U+2028 and U+2029 raw, as JSON.stringify does.
// encoding/json always escapes them, even with HTML escaping disabled.
func unescapeLineSeparators(b []byte) []byte {
	if !bytes.Contains(b, []byte(`\u202`)) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		if b[i] != '\\' {
			out = append(out, b[i])
			continue
		}
		if i+5 < len(b) && b[i+1] == 'u' && string(b[i+2:i+5]) == "202" && (b[i+5] == '8' || b[i+5] == '9') {
			if b[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		// keep any other escape pair intact so an escaped backslash is never
		// read as the start of a new escape
		out = append(out, b[i])
		if i+1 < len(b) {
			out = append(out, b[i+1])
			i++
		}
	}
	return out
}
