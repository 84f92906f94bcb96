package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/json"
	"errors"

	"github.com/formvault/formvault/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

// BundleVersion is the current private-key bundle format version.
const BundleVersion = "v1"

const (
	// pbkdf2Iterations follows the current OWASP floor for
	// PBKDF2-HMAC-SHA256.
	pbkdf2Iterations = 100_000
	saltSize         = 16
)

// ErrImport is the single error returned for every bundle import failure:
// wrong password, tampered bundle, malformed JSON. Callers must never be
// able to distinguish a MAC failure from a parse failure.
var ErrImport = errors.New("bundle import failed")

// KeyBundle is a password-wrapped private key suitable for backup. The
// byte fields marshal to base64 in JSON.
type KeyBundle struct {
	Version    string `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func deriveBundleKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, pbkdf2Iterations, keySize, sha256.New)
}

// ExportPrivateKeyBundle wraps priv with a key derived from password via
// PBKDF2 (unique random salt, 100k iterations) and AES-256-GCM (unique
// random nonce), and returns the serialized bundle.
func ExportPrivateKeyBundle(priv *rsa.PrivateKey, password []byte) ([]byte, error) {
	if priv == nil || len(password) == 0 {
		return nil, common.ErrorValidation
	}

	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(der)

	salt := common.GenerateRandByteArray(saltSize)
	nonce := common.GenerateRandByteArray(nonceSize)

	key := deriveBundleKey(password, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	bundle := &KeyBundle{
		Version:    BundleVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aesgcm.Seal(nil, nonce, der, nil),
	}
	return json.Marshal(bundle)
}

// ImportPrivateKeyBundle reverses ExportPrivateKeyBundle. Any failure,
// including a wrong password, yields the generic ErrImport.
func ImportPrivateKeyBundle(data, password []byte) (*rsa.PrivateKey, error) {
	bundle := &KeyBundle{}
	if err := json.Unmarshal(data, bundle); err != nil {
		return nil, ErrImport
	}
	if bundle.Version != BundleVersion || len(bundle.Salt) != saltSize || len(bundle.Nonce) != nonceSize {
		return nil, ErrImport
	}

	key := deriveBundleKey(password, bundle.Salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrImport
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, ErrImport
	}
	der, err := aesgcm.Open(nil, bundle.Nonce, bundle.Ciphertext, nil)
	if err != nil {
		return nil, ErrImport
	}
	defer common.WipeByteArray(der)

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, ErrImport
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrImport
	}
	return priv, nil
}
