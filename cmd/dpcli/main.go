// Package main provides the DP-1 document CLI entry point.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"

	"github.com/osa030/dp1feed/internal/infra/canonical"
	"github.com/osa030/dp1feed/internal/infra/signing"
)

var (
	app = kingpin.New("dp1feed-dpcli", "DP-1 document signing tool")

	// keygen command
	keygenCmd = app.Command("keygen", "Generate an Ed25519 key pair")

	// canonical command
	canonicalCmd  = app.Command("canonical", "Print the canonical form of a JSON document")
	canonicalFile = canonicalCmd.Arg("file", "JSON file ('-' for stdin)").Default("-").String()

	// sign command
	signCmd  = app.Command("sign", "Sign a JSON document and print it with its signature")
	signFile = signCmd.Arg("file", "JSON file ('-' for stdin)").Default("-").String()
	signKey  = signCmd.Flag("key", "Private key (or set "+signing.PrivateKeyEnv+" env)").Envar(signing.PrivateKeyEnv).String()

	// verify command
	verifyCmd    = app.Command("verify", "Verify the signature of a JSON document")
	verifyFile   = verifyCmd.Arg("file", "JSON file ('-' for stdin)").Default("-").String()
	verifyPubKey = verifyCmd.Flag("public-key", "Public key as hex or PEM").Required().String()
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	var err error
	switch command {
	case keygenCmd.FullCommand():
		err = keygen(os.Stdout)
	case canonicalCmd.FullCommand():
		err = printCanonical(os.Stdout, *canonicalFile)
	case signCmd.FullCommand():
		err = sign(os.Stdout, *signFile, *signKey)
	case verifyCmd.FullCommand():
		err = verify(os.Stdout, *verifyFile, *verifyPubKey)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func keygen(w io.Writer) error {
	pub, priv, err := signing.GenerateKey()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s=%s\n", signing.PrivateKeyEnv, signing.EncodeSeed(priv))
	fmt.Fprintf(w, "ED25519_PUBLIC_KEY=%s\n", hex.EncodeToString(pub))
	return nil
}

func printCanonical(w io.Writer, path string) error {
	raw, err := readInput(path)
	if err != nil {
		return err
	}
	out, err := canonical.Canonicalize(json.RawMessage(raw))
	if err != nil {
		return err
	}
	fmt.Fprintln(w, out)
	return nil
}

func sign(w io.Writer, path, keyMaterial string) error {
	key, err := signing.LoadPrivateKey(signing.PrivateKeyEnv, keyMaterial)
	if err != nil {
		return err
	}
	doc, err := readDocument(path)
	if err != nil {
		return err
	}

	sig, err := signing.Sign(doc, key)
	if err != nil {
		return err
	}
	doc[signing.SignatureField] = sig

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

func verify(w io.Writer, path, pubMaterial string) error {
	pub, err := signing.LoadPublicKey("--public-key", pubMaterial)
	if err != nil {
		return err
	}
	doc, err := readDocument(path)
	if err != nil {
		return err
	}

	sig, _ := doc[signing.SignatureField].(string)
	if sig == "" {
		return errors.New("document has no signature")
	}
	if !signing.Verify(doc, sig, pub) {
		return errors.New("signature is invalid")
	}
	fmt.Fprintln(w, "signature OK")
	return nil
}

// readDocument decodes a JSON object keeping numbers as written.
func readDocument(path string) (map[string]any, error) {
	raw, err := readInput(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "input is not a JSON object")
	}
	return doc, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		b, err := io.ReadAll(os.Stdin)
		return b, errors.Wrap(err, "failed to read stdin")
	}
	b, err := os.ReadFile(path)
	return b, errors.Wrapf(err, "failed to read %s", path)
}
