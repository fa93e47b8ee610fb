// Package cryptox implements the asymmetric-cryptography capability of the
// vault: RSA-OAEP (SHA-256) encryption of secret payloads, PEM key material
// handling, and key-pair generation.
//
// Ciphertext travels and is stored as base64 text. Public keys are PEM
// SPKI, private keys PEM PKCS#8, matching what every client implementation
// exchanges with the server.
//
// All primitive failures are reported as common.ErrCrypto with no further
// detail: distinguishing a padding failure from a wrong-key failure in the
// error would hand an oracle to an attacker.
package cryptox

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"github.com/dmitrijs2005/secretvault/internal/common"
)

// KeyBits is the modulus size for generated key pairs.
const KeyBits = 4096

// KeyPair holds a freshly generated RSA key pair in PEM encoding.
type KeyPair struct {
	PublicKeyPEM  string
	PrivateKeyPEM string
}

// GenerateKeyPair creates a new RSA key pair (SPKI public, PKCS#8 private).
func GenerateKeyPair() (*KeyPair, error) {
	return generateKeyPair(KeyBits)
}

func generateKeyPair(bits int) (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, common.ErrCrypto
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, common.ErrCrypto
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, common.ErrCrypto
	}

	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})

	return &KeyPair{PublicKeyPEM: string(pubPEM), PrivateKeyPEM: string(privPEM)}, nil
}

// ParsePublicKey decodes a PEM SPKI RSA public key. Unlike the encryption
// primitives this returns a descriptive validation error: public keys are
// not secret, and the server validates them at the registration boundary.
func ParsePublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, fmt.Errorf("%w: not PEM encoded", common.ErrValidation)
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: not an SPKI public key", common.ErrValidation)
	}
	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: not an RSA key", common.ErrValidation)
	}
	return pub, nil
}

// ParsePrivateKey decodes a PEM PKCS#8 RSA private key.
func ParsePrivateKey(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, common.ErrCrypto
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, common.ErrCrypto
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, common.ErrCrypto
	}
	return priv, nil
}

// EncryptWithPublicKey encrypts plaintext under the given PEM public key
// using RSA-OAEP with SHA-256 and returns base64 ciphertext.
func EncryptWithPublicKey(plaintext []byte, publicKeyPEM string) (string, error) {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return "", err
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		return "", common.ErrCrypto
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptWithPrivateKey decodes base64 ciphertext and decrypts it with the
// given PEM private key. Any failure, wrong key, corrupted ciphertext or
// bad encoding alike, surfaces as common.ErrCrypto.
func DecryptWithPrivateKey(encrypted string, privateKeyPEM string) ([]byte, error) {
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return nil, common.ErrCrypto
	}
	raw, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, common.ErrCrypto
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, raw, nil)
	if err != nil {
		return nil, common.ErrCrypto
	}
	return plaintext, nil
}

// ReEncryptForKey decrypts encrypted with ownPrivateKeyPEM and re-encrypts
// the recovered plaintext under targetPublicKeyPEM. The plaintext exists
// only transiently in this process and is wiped before returning.
func ReEncryptForKey(encrypted, ownPrivateKeyPEM, targetPublicKeyPEM string) (string, error) {
	plaintext, err := DecryptWithPrivateKey(encrypted, ownPrivateKeyPEM)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(plaintext)
	return EncryptWithPublicKey(plaintext, targetPublicKeyPEM)
}
