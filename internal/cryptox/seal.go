package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"

	"github.com/dmitrijs2005/secretvault/internal/common"
	"golang.org/x/crypto/argon2"
)

// SealedKey is the on-disk form of a passphrase-protected private key.
// The key used for AES-GCM is derived from the passphrase with argon2id.
type SealedKey struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

func deriveSealKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

// SealPrivateKey encrypts privateKeyPEM under a passphrase-derived key and
// returns the serialized sealed form.
func SealPrivateKey(privateKeyPEM string, passphrase []byte) ([]byte, error) {
	salt := common.GenerateRandByteArray(16)
	key := deriveSealKey(passphrase, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, common.ErrCrypto
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, common.ErrCrypto
	}

	nonce := common.GenerateRandByteArray(aesgcm.NonceSize())
	ciphertext := aesgcm.Seal(nil, nonce, []byte(privateKeyPEM), nil)

	return json.Marshal(&SealedKey{Salt: salt, Nonce: nonce, Ciphertext: ciphertext})
}

// OpenPrivateKey reverses SealPrivateKey. A wrong passphrase and a corrupted
// file are indistinguishable in the returned error.
func OpenPrivateKey(sealed []byte, passphrase []byte) (string, error) {
	var sk SealedKey
	if err := json.Unmarshal(sealed, &sk); err != nil {
		return "", common.ErrCrypto
	}

	key := deriveSealKey(passphrase, sk.Salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", common.ErrCrypto
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", common.ErrCrypto
	}

	plaintext, err := aesgcm.Open(nil, sk.Nonce, sk.Ciphertext, nil)
	if err != nil {
		return "", common.ErrCrypto
	}
	return string(plaintext), nil
}
