// Package cryptox implements the hybrid envelope codec used for form
// submissions. A submission is encrypted client-side with a fresh
// AES-256-GCM key, and that key is wrapped with the form's RSA-2048 public
// key (OAEP/SHA-256). The server only ever stores the resulting envelope;
// plaintext never leaves the client.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"

	"github.com/formvault/formvault/internal/common"
)

// EnvelopeVersion is the current wire format version.
const EnvelopeVersion = "v1"

const (
	keySize   = 32 // AES-256
	nonceSize = 12 // 96-bit GCM nonce
	rsaBits   = 2048
)

// ErrDecryption is the single error returned for every decryption failure:
// wrong key, tampered ciphertext, bad padding, malformed envelope. Callers
// must never learn which part failed.
var ErrDecryption = errors.New("decryption failed")

// Envelope is the wire shape produced by Encrypt and consumed by Decrypt.
// The byte fields marshal to base64 in JSON.
type Envelope struct {
	Encrypted  bool   `json:"encrypted"`
	Version    string `json:"version"`
	Ciphertext []byte `json:"ciphertext"`
	WrappedKey []byte `json:"wrappedKey"`
	Nonce      []byte `json:"nonce"`
}

// Validate checks the envelope's structural invariants without touching any
// key material. It is the shape check run at the submission boundary before
// storage access.
func (e *Envelope) Validate() error {
	if e == nil || !e.Encrypted || e.Version != EnvelopeVersion {
		return common.ErrorValidation
	}
	if len(e.Ciphertext) == 0 || len(e.WrappedKey) == 0 || len(e.Nonce) != nonceSize {
		return common.ErrorValidation
	}
	return nil
}

// GenerateKeyPair creates a new RSA-2048 key pair for a form. The public
// key is distributed to the server for embedding; the private key stays
// with the caller and must never be transmitted or logged.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, rsaBits)
}

// Encrypt seals plaintext into an Envelope for the given recipient.
//
// A fresh random 256-bit symmetric key and 96-bit nonce are generated per
// call, so compromising one submission's key exposes nothing else. The
// symmetric key is wrapped with RSA-OAEP/SHA-256.
func Encrypt(plaintext []byte, pub *rsa.PublicKey) (*Envelope, error) {
	if pub == nil {
		return nil, common.ErrorValidation
	}

	key := common.GenerateRandByteArray(keySize)
	defer common.WipeByteArray(key)
	nonce := common.GenerateRandByteArray(nonceSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	ciphertext := aesgcm.Seal(nil, nonce, plaintext, nil)

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		Encrypted:  true,
		Version:    EnvelopeVersion,
		Ciphertext: ciphertext,
		WrappedKey: wrapped,
		Nonce:      nonce,
	}, nil
}

// Decrypt unwraps the symmetric key with priv and opens the ciphertext.
// Every failure mode collapses into ErrDecryption so the codec cannot be
// used as a padding or tag oracle.
func Decrypt(env *Envelope, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil || env.Validate() != nil {
		return nil, ErrDecryption
	}

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, env.WrappedKey, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrDecryption
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrDecryption
	}
	plaintext, err := aesgcm.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return plaintext, nil
}
