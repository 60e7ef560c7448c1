// Package crypto provides at-rest encryption for exchange API credentials.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// scrypt parameters: interactive-grade work factor.
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
	// encPrefix marks an encrypted credential value in storage.
	encPrefix = "enc:v1:"
)

// encryptedJSON is the serialized form of an encrypted credential.
type encryptedJSON struct {
	Salt       string `json:"salt"`       // base64 standard encoding
	Nonce      string `json:"nonce"`      // base64 standard encoding
	Ciphertext string `json:"ciphertext"` // base64 standard encoding
}

// Cipher encrypts and decrypts credential strings with a passphrase-derived
// AES-256-GCM key. A Cipher with an empty passphrase passes values through
// unchanged, for deployments that keep secrets in an external vault instead.
type Cipher struct {
	passphrase string
}

// NewCipher creates a Cipher from the given passphrase.
func NewCipher(passphrase string) *Cipher {
	return &Cipher{passphrase: passphrase}
}

// Enabled reports whether encryption is active.
func (c *Cipher) Enabled() bool {
	return c.passphrase != ""
}

// Encrypt encrypts plain and returns a storable string carrying the version
// prefix. With no passphrase configured, plain is returned unchanged.
func (c *Cipher) Encrypt(plain string) (string, error) {
	if !c.Enabled() {
		return plain, nil
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("crypto: generating salt: %w", err)
	}

	gcm, err := c.newGCM(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plain), nil)

	blob, err := json.Marshal(encryptedJSON{
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	})
	if err != nil {
		return "", fmt.Errorf("crypto: marshal encrypted credential: %w", err)
	}

	return encPrefix + base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt. Values without the version prefix are returned
// as-is, so plaintext rows written before encryption was enabled keep working.
func (c *Cipher) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, encPrefix) {
		return stored, nil
	}
	if !c.Enabled() {
		return "", errors.New("crypto: encrypted credential but no credential key configured")
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return "", fmt.Errorf("crypto: decoding credential blob: %w", err)
	}

	var stored2 encryptedJSON
	if err := json.Unmarshal(raw, &stored2); err != nil {
		return "", fmt.Errorf("crypto: parsing credential blob: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(stored2.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding salt: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(stored2.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding nonce: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(stored2.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding ciphertext: %w", err)
	}

	gcm, err := c.newGCM(salt)
	if err != nil {
		return "", err
	}

	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong credential key?): %w", err)
	}

	return string(plain), nil
}

// newGCM derives the AES key from the passphrase and salt and returns the
// AEAD instance.
func (c *Cipher) newGCM(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(c.passphrase), salt, scryptN, scryptR, scryptP, aesKeyLen)
	if err != nil {
		return nil, fmt.Errorf("crypto: deriving key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
