// Command sealcreds encrypts feed and execution logins into the file named by
// credentials.sealed_path. The plaintext is a JSON document:
//
//	{"vip":{"username":"u","password":"p"},"betfair":{...},"execution":{...}}
//
// The passphrase comes from ARBD_CREDENTIALS_PASSPHRASE.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/alanyoungcy/arbdiscovery/internal/crypto"
)

func main() {
	in := flag.String("in", "-", "plaintext credentials JSON, - for stdin")
	out := flag.String("out", "credentials.sealed", "sealed output file")
	flag.Parse()

	if err := run(*in, *out, os.Getenv("ARBD_CREDENTIALS_PASSPHRASE")); err != nil {
		fmt.Fprintf(os.Stderr, "sealcreds: %v\n", err)
		os.Exit(1)
	}
}

func run(in, out, passphrase string) error {
	var r io.Reader = os.Stdin
	if in != "-" {
		f, err := os.Open(in)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var creds crypto.Credentials
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&creds); err != nil {
		return fmt.Errorf("decode %s: %w", in, err)
	}

	sealer, err := crypto.NewSealer(passphrase)
	if err != nil {
		return err
	}
	blob, err := sealer.SealCredentials(creds)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, blob, 0o600); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "sealed credentials written to %s\n", out)
	return nil
}
