package cryptox

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/formvault/formvault/internal/common"
)

const (
	publicKeyPEMType  = "PUBLIC KEY"
	privateKeyPEMType = "PRIVATE KEY"
)

// EncodePublicKey renders pub as a PKIX PEM block, the form the server
// embeds into published forms.
func EncodePublicKey(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: der}), nil
}

// DecodePublicKey parses a PKIX PEM public key.
func DecodePublicKey(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != publicKeyPEMType {
		return nil, common.ErrorValidation
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, common.ErrorValidation
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, common.ErrorValidation
	}
	return pub, nil
}

// EncodePrivateKey renders priv as a PKCS#8 PEM block. Only ever written
// to client-side storage or a password-wrapped bundle.
func EncodePrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: der}), nil
}

// DecodePrivateKey parses a PKCS#8 PEM private key.
func DecodePrivateKey(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != privateKeyPEMType {
		return nil, common.ErrorValidation
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, common.ErrorValidation
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, common.ErrorValidation
	}
	return priv, nil
}
