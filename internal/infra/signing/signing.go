// Package signing signs and verifies documents with Ed25519 over their canonical form.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/dp1feed/internal/infra/canonical"
)

const (
	// Prefix starts every signature string.
	Prefix = "ed25519:0x"
	// SignatureField is the document field excluded from the signed content.
	SignatureField = "signature"

	// Environment variable holding the server key.
	PrivateKeyEnv = "ED25519_PRIVATE_KEY"
)

// ErrKeyLoad is returned for malformed or mis-sized key material.
var ErrKeyLoad = errors.New("key load error")

// Sign returns the signature of doc's canonical form, signature field excluded.
func Sign(doc any, key ed25519.PrivateKey) (string, error) {
	if len(key) != ed25519.PrivateKeySize {
		return "", errors.Newf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(key))
	}
	msg, err := canonical.CanonicalizeWithout(doc, SignatureField)
	if err != nil {
		return "", errors.Wrap(err, "failed to canonicalize document")
	}
	sig := ed25519.Sign(key, []byte(msg))
	return Prefix + hex.EncodeToString(sig), nil
}

// Verify reports whether signature is valid for doc under pub.
// It never fails: malformed input yields false.
func Verify(doc any, signature string, pub ed25519.PublicKey) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, ok := decodeSignature(signature)
	if !ok {
		return false
	}
	msg, err := canonical.CanonicalizeWithout(doc, SignatureField)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, []byte(msg), sig)
}

// WellFormed reports whether s has the signature string format.
func WellFormed(s string) bool {
	_, ok := decodeSignature(s)
	return ok
}

func decodeSignature(s string) ([]byte, bool) {
	if !strings.HasPrefix(s, Prefix) {
		return nil, false
	}
	body := s[len(Prefix):]
	if len(body) != hex.EncodedLen(ed25519.SignatureSize) {
		return nil, false
	}
	sig, err := hex.DecodeString(body)
	if err != nil {
		return nil, false
	}
	return sig, true
}

// GenerateKey creates a fresh key pair.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to generate key")
	}
	return pub, priv, nil
}

// LoadPrivateKey parses key material taken from the environment variable envName.
// Accepted forms: 32-byte seed as 64 hex chars, hex-encoded PKCS#8 DER, or a PEM
// PKCS#8 block. A leading 0x is allowed on hex forms.
func LoadPrivateKey(envName, material string) (ed25519.PrivateKey, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, keyErrorf(envName, "is empty")
	}

	der, err := keyBytes(material)
	if err != nil {
		return nil, keyErrorf(envName, "%v", err)
	}
	if len(der) == ed25519.SeedSize {
		return ed25519.NewKeyFromSeed(der), nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, keyErrorf(envName, "must be a %d-byte hex seed or a PKCS#8 key (got %d bytes)", ed25519.SeedSize, len(der))
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, keyErrorf(envName, "PKCS#8 key is %T, not Ed25519", parsed)
	}
	return key, nil
}

// LoadPublicKey parses a public key: 32 raw bytes as hex, hex-encoded SPKI DER
// or a PEM block, with an optional 0x prefix.
func LoadPublicKey(envName, material string) (ed25519.PublicKey, error) {
	material = strings.TrimSpace(material)
	if material == "" {
		return nil, keyErrorf(envName, "is empty")
	}

	der, err := keyBytes(material)
	if err != nil {
		return nil, keyErrorf(envName, "%v", err)
	}
	if len(der) == ed25519.PublicKeySize {
		return ed25519.PublicKey(der), nil
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, keyErrorf(envName, "must be a %d-byte hex key or an SPKI key (got %d bytes)", ed25519.PublicKeySize, len(der))
	}
	key, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, keyErrorf(envName, "public key is %T, not Ed25519", parsed)
	}
	return key, nil
}

// EncodeSeed returns the hex seed of key, the form LoadPrivateKey accepts.
func EncodeSeed(key ed25519.PrivateKey) string {
	return hex.EncodeToString(key.Seed())
}

func keyBytes(material string) ([]byte, error) {
	if strings.HasPrefix(material, "-----BEGIN") {
		block, _ := pem.Decode([]byte(material))
		if block == nil {
			return nil, errors.New("invalid PEM block")
		}
		return block.Bytes, nil
	}
	material = strings.TrimPrefix(strings.TrimPrefix(material, "0x"), "0X")
	b, err := hex.DecodeString(material)
	if err != nil {
		return nil, errors.New("is not valid hex")
	}
	return b, nil
}

func keyErrorf(envName, format string, args ...any) error {
	return errors.Wrapf(ErrKeyLoad, "%s "+format, append([]any{envName}, args...)...)
}
