package canonical

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize_KeyOrderIndependent(t *testing.T) {
	a := `{"title":"A","items":[{"b":1,"a":2}],"meta":{"z":true,"y":null}}`
	b := `{"meta":{"y":null,"z":true},"items":[{"a":2,"b":1}],"title":"A"}`

	ca, err := Canonicalize(json.RawMessage(a))
	require.NoError(t, err)
	cb, err := Canonicalize(json.RawMessage(b))
	require.NoError(t, err)

	assert.Equal(t, ca, cb)
	assert.Equal(t, `{"items":[{"a":2,"b":1}],"meta":{"y":null,"z":true},"title":"A"}`, ca)
}

func TestCanonicalize_PreservesArrayOrder(t *testing.T) {
	c1, err := Canonicalize([]any{3, 1, 2})
	require.NoError(t, err)
	c2, err := Canonicalize([]any{1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, "[3,1,2]", c1)
	assert.NotEqual(t, c1, c2)
}

func TestCanonicalize_StructAndMapAgree(t *testing.T) {
	type doc struct {
		Title  string `json:"title"`
		Source string `json:"source"`
	}
	fromStruct, err := Canonicalize(doc{Title: "<b>", Source: "https://x.example/?a=1&b=2"})
	require.NoError(t, err)
	fromMap, err := Canonicalize(map[string]any{"source": "https://x.example/?a=1&b=2", "title": "<b>"})
	require.NoError(t, err)

	assert.Equal(t, fromStruct, fromMap)
	assert.Equal(t, `{"source":"https://x.example/?a=1&b=2","title":"<b>"}`, fromStruct)
}

func TestCanonicalize_DiffersOnContent(t *testing.T) {
	c1, err := Canonicalize(map[string]any{"title": "A"})
	require.NoError(t, err)
	c2, err := Canonicalize(map[string]any{"title": "B"})
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)
}

func TestCanonicalize_KeepsNumberText(t *testing.T) {
	c, err := Canonicalize(json.RawMessage(`{"n":12345678901234567890,"f":1.50}`))
	require.NoError(t, err)
	assert.Equal(t, `{"f":1.50,"n":12345678901234567890}`, c)
}

func TestCanonicalize_Cycle(t *testing.T) {
	m := map[string]any{"title": "loop"}
	m["self"] = m

	_, err := Canonicalize(m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSerialization))
}

func TestCanonicalize_InvalidJSON(t *testing.T) {
	_, err := Canonicalize(json.RawMessage(`{"title":`))
	assert.True(t, errors.Is(err, ErrSerialization))
}

func TestCanonicalizeWithout(t *testing.T) {
	withSig := map[string]any{"title": "A", "signature": "ed25519:0xabc"}
	withoutSig := map[string]any{"title": "A"}

	c1, err := CanonicalizeWithout(withSig, "signature")
	require.NoError(t, err)
	c2, err := Canonicalize(withoutSig)
	require.NoError(t, err)
	assert.Equal(t, c2, c1)

	// nested fields with the same name are kept
	nested, err := CanonicalizeWithout(map[string]any{"x": map[string]any{"signature": 1}}, "signature")
	require.NoError(t, err)
	assert.Equal(t, `{"x":{"signature":1}}`, nested)
}

func TestCanonicalize_LineSeparatorsRaw(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{name: "line separator", in: map[string]any{"t": "a\u2028b"}, want: "{\"t\":\"a\u2028b\"}"},
		{name: "paragraph separator", in: map[string]any{"t": "a\u2029b"}, want: "{\"t\":\"a\u2029b\"}"},
		{name: "escaped in raw input", in: json.RawMessage(`{"t":"a\u2028b"}`), want: "{\"t\":\"a\u2028b\"}"},
		{name: "escaped backslash kept", in: map[string]any{"t": `\u2028`}, want: `{"t":"\\u2028"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
