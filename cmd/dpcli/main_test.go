package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/dp1feed/internal/infra/signing"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestPrintCanonical(t *testing.T) {
	path := writeFile(t, `{ "b": 1.50, "a": [3, 1], "c": {"y": "<", "x": null} }`)

	var out bytes.Buffer
	require.NoError(t, printCanonical(&out, path))
	assert.Equal(t, `{"a":[3,1],"b":1.50,"c":{"x":null,"y":"<"}}`+"\n", out.String())
}

func TestSignThenVerify(t *testing.T) {
	pub, priv, err := signing.GenerateKey()
	require.NoError(t, err)

	var signed bytes.Buffer
	require.NoError(t, sign(&signed, writeFile(t, `{"title":"Loop","items":[{"duration":10}]}`), signing.EncodeSeed(priv)))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(signed.Bytes(), &doc))
	assert.True(t, signing.WellFormed(doc["signature"].(string)))

	signedPath := writeFile(t, signed.String())
	var out bytes.Buffer
	require.NoError(t, verify(&out, signedPath, hex.EncodeToString(pub)))
	assert.Equal(t, "signature OK\n", out.String())

	tampered := writeFile(t, strings.Replace(signed.String(), "Loop", "Forged", 1))
	assert.Error(t, verify(&out, tampered, hex.EncodeToString(pub)))
}

func TestVerify_Errors(t *testing.T) {
	pub, _, err := signing.GenerateKey()
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  string
		key  string
	}{
		{name: "unsigned", doc: `{"title":"x"}`, key: hex.EncodeToString(pub)},
		{name: "not an object", doc: `[1,2]`, key: hex.EncodeToString(pub)},
		{name: "bad key", doc: `{"signature":"x"}`, key: "zz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Error(t, verify(&out, writeFile(t, tt.doc), tt.key))
		})
	}
}

func TestKeygen(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, keygen(&out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	seed := strings.TrimPrefix(lines[0], signing.PrivateKeyEnv+"=")
	key, err := signing.LoadPrivateKey(signing.PrivateKeyEnv, seed)
	require.NoError(t, err)
	assert.Equal(t, "ED25519_PUBLIC_KEY="+hex.EncodeToString(key.Public().(ed25519.PublicKey)), lines[1])
}
