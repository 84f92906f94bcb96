package keytool

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/formvault/formvault/internal/common"
	"github.com/formvault/formvault/internal/cryptox"
	"github.com/formvault/formvault/internal/pii"
)

// keygen writes a fresh RSA key pair as two PEM files. The public key is
// what gets distributed for form submissions; the private key never
// leaves this machine unencrypted.
func (a *App) keygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	privPath := fs.String("priv", "form.key.pem", "private key output file")
	pubPath := fs.String("pub", "form.pub.pem", "public key output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	priv, err := cryptox.GenerateKeyPair()
	if err != nil {
		return fmt.Errorf("error generating key pair: %v", err)
	}

	privPEM, err := cryptox.EncodePrivateKey(priv)
	if err != nil {
		return fmt.Errorf("error encoding private key: %v", err)
	}
	pubPEM, err := cryptox.EncodePublicKey(&priv.PublicKey)
	if err != nil {
		return fmt.Errorf("error encoding public key: %v", err)
	}

	if err := os.WriteFile(*privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("error writing private key: %v", err)
	}
	if err := os.WriteFile(*pubPath, pubPEM, 0o644); err != nil {
		return fmt.Errorf("error writing public key: %v", err)
	}

	fmt.Fprintf(a.out, "wrote %s and %s\n", *privPath, *pubPath)
	return nil
}

// encrypt seals a flat JSON payload into an envelope under the form's
// public key.
func (a *App) encrypt(args []string) error {
	fs := flag.NewFlagSet("encrypt", flag.ContinueOnError)
	pubPath := fs.String("pub", "form.pub.pem", "public key file")
	inPath := fs.String("in", "", "payload JSON file")
	outPath := fs.String("out", "envelope.json", "envelope output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return fmt.Errorf("%w: -in is required", common.ErrorValidation)
	}

	pubPEM, err := os.ReadFile(*pubPath)
	if err != nil {
		return fmt.Errorf("error reading public key: %v", err)
	}
	pub, err := cryptox.DecodePublicKey(pubPEM)
	if err != nil {
		return fmt.Errorf("%w: not a valid public key file", common.ErrorValidation)
	}

	plaintext, err := os.ReadFile(*inPath)
	if err != nil {
		return fmt.Errorf("error reading payload: %v", err)
	}

	env, err := cryptox.Encrypt(plaintext, pub)
	if err != nil {
		return fmt.Errorf("error encrypting payload: %v", err)
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("error encoding envelope: %v", err)
	}

	if err := os.WriteFile(*outPath, raw, 0o644); err != nil {
		return fmt.Errorf("error writing envelope: %v", err)
	}
	fmt.Fprintf(a.out, "wrote %s\n", *outPath)
	return nil
}

// decrypt opens an envelope with the form's private key.
func (a *App) decrypt(args []string) error {
	fs := flag.NewFlagSet("decrypt", flag.ContinueOnError)
	privPath := fs.String("priv", "form.key.pem", "private key file")
	inPath := fs.String("in", "", "envelope JSON file")
	outPath := fs.String("out", "", "plaintext output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return fmt.Errorf("%w: -in is required", common.ErrorValidation)
	}

	priv, err := loadPrivateKey(*privPath)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(*inPath)
	if err != nil {
		return fmt.Errorf("error reading envelope: %v", err)
	}
	var env cryptox.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return cryptox.ErrDecryption
	}

	plaintext, err := cryptox.Decrypt(&env, priv)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(plaintext)

	if *outPath == "" {
		_, err = a.out.Write(append(plaintext, '\n'))
		return err
	}
	if err := os.WriteFile(*outPath, plaintext, 0o600); err != nil {
		return fmt.Errorf("error writing plaintext: %v", err)
	}
	fmt.Fprintf(a.out, "wrote %s\n", *outPath)
	return nil
}

// export wraps the private key in a password-protected bundle for moving
// it to another machine.
func (a *App) export(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	privPath := fs.String("priv", "form.key.pem", "private key file")
	outPath := fs.String("out", "form.bundle.json", "bundle output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	priv, err := loadPrivateKey(*privPath)
	if err != nil {
		return err
	}

	password, err := a.promptPassword()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	bundle, err := cryptox.ExportPrivateKeyBundle(priv, password)
	if err != nil {
		return fmt.Errorf("error exporting key: %v", err)
	}
	if err := os.WriteFile(*outPath, bundle, 0o600); err != nil {
		return fmt.Errorf("error writing bundle: %v", err)
	}
	fmt.Fprintf(a.out, "wrote %s\n", *outPath)
	return nil
}

// importBundle unwraps a bundle back into a PEM private key file.
func (a *App) importBundle(args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	inPath := fs.String("in", "form.bundle.json", "bundle file")
	privPath := fs.String("priv", "form.key.pem", "private key output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	raw, err := os.ReadFile(*inPath)
	if err != nil {
		return fmt.Errorf("error reading bundle: %v", err)
	}

	password, err := a.promptPassword()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	priv, err := cryptox.ImportPrivateKeyBundle(raw, password)
	if err != nil {
		return err
	}

	privPEM, err := cryptox.EncodePrivateKey(priv)
	if err != nil {
		return fmt.Errorf("error encoding private key: %v", err)
	}
	if err := os.WriteFile(*privPath, privPEM, 0o600); err != nil {
		return fmt.Errorf("error writing private key: %v", err)
	}
	fmt.Fprintf(a.out, "wrote %s\n", *privPath)
	return nil
}

// newkey prints a fresh idempotency key for the X-Idempotency-Key header.
// 16 random bytes hex-encode to 32 characters, comfortably inside the
// accepted 16-128 range.
func (a *App) newkey(args []string) error {
	fs := flag.NewFlagSet("newkey", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	key, err := common.MakeRandHexString(16)
	if err != nil {
		return fmt.Errorf("error generating key: %v", err)
	}
	fmt.Fprintln(a.out, key)
	return nil
}

// scan reports PII findings in a payload before it gets encrypted. In
// strip mode the redacted payload is written back out.
func (a *App) scan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ContinueOnError)
	inPath := fs.String("in", "", "payload JSON file")
	mode := fs.String("mode", string(pii.ModeFlag), "flag, strip, or block")
	outPath := fs.String("out", "", "redacted output file (strip mode)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" {
		return fmt.Errorf("%w: -in is required", common.ErrorValidation)
	}

	data, err := readPayload(*inPath)
	if err != nil {
		return err
	}

	result, err := pii.Scan(data, pii.Mode(*mode))
	if err != nil {
		return err
	}

	for _, d := range result.Detections {
		fmt.Fprintf(a.out, "%s: %s\n", d.Field, d.Category)
	}
	if len(result.Detections) == 0 {
		fmt.Fprintln(a.out, "no PII detected")
	}
	if result.Blocked {
		return fmt.Errorf("%w: payload blocked, contains PII", common.ErrorValidation)
	}

	if result.Cleaned != nil && *outPath != "" {
		cleaned, err := json.MarshalIndent(result.Cleaned, "", "  ")
		if err != nil {
			return fmt.Errorf("error encoding redacted payload: %v", err)
		}
		if err := os.WriteFile(*outPath, cleaned, 0o644); err != nil {
			return fmt.Errorf("error writing redacted payload: %v", err)
		}
		fmt.Fprintf(a.out, "wrote %s\n", *outPath)
	}
	return nil
}
