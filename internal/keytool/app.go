// Package keytool implements the client-side CLI for the zero-knowledge
// workflow: form owners generate their key pair, encrypt and decrypt
// envelopes, move private keys between machines as password-wrapped
// bundles, and check payloads for PII before submission. Private keys are
// handled only on the owner's machine; the server never sees them.
package keytool

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/cryptox"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = func() ([]byte, error) {
	return term.ReadPassword(int(os.Stdin.Fd()))
}

// App dispatches keytool subcommands.
type App struct {
	out io.Writer
}

// NewApp constructs the CLI writing human output to out.
func NewApp(out io.Writer) *App {
	return &App{out: out}
}

// Run executes one subcommand. args is os.Args[1:].
func (a *App) Run(args []string) error {
	if len(args) == 0 {
		a.usage()
		return fmt.Errorf("no command given")
	}

	switch args[0] {
	case "keygen":
		return a.keygen(args[1:])
	case "encrypt":
		return a.encrypt(args[1:])
	case "decrypt":
		return a.decrypt(args[1:])
	case "export":
		return a.export(args[1:])
	case "import":
		return a.importBundle(args[1:])
	case "scan":
		return a.scan(args[1:])
	case "newkey":
		return a.newkey(args[1:])
	default:
		a.usage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func (a *App) usage() {
	fmt.Fprintln(a.out, `Usage: keytool <command> [flags]

Commands:
  keygen   generate an RSA key pair for a form
  encrypt  encrypt a JSON payload into an envelope
  decrypt  decrypt an envelope back to plaintext
  export   wrap the private key in a password-protected bundle
  import   unwrap a bundle back into a private key
  scan     check a payload for PII before encrypting
  newkey   mint a random idempotency key for a submission`)
}

func (a *App) promptPassword() ([]byte, error) {
	fmt.Fprint(a.out, "Enter password: ")
	pw, err := readPassword()
	fmt.Fprintln(a.out)
	if err != nil {
		return nil, fmt.Errorf("error reading password: %v", err)
	}
	return pw, nil
}

// loadPrivateKey reads and decodes a PEM private key file.
func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading private key: %v", err)
	}
	priv, err := cryptox.DecodePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: not a valid private key file", common.ErrorValidation)
	}
	return priv, nil
}

// readPayload parses a flat string map payload, the shape forms submit.
func readPayload(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading payload: %v", err)
	}
	var data map[string]string
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: payload must be a flat JSON object of strings", common.ErrorValidation)
	}
	return data, nil
}
