package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	// DefaultScryptCost is the recommended cost for key-stretching (2^20).
	// Check the doc for other recommended values:
	// https://godoc.org/golang.org/x/crypto/scrypt
	DefaultScryptCost = 1 << 20

	saltSize = 32
)

// EncryptOpts is the struct given to Encrypt method
type EncryptOpts struct {
	PlainText  []byte
	Passphrase []byte
	// Salt, if defined, makes the encryption key deterministic. It must be 32
	// bytes long. A random one is used otherwise.
	Salt []byte
	// Cost of the scrypt key derivation, DefaultScryptCost if zero.
	Cost int
}

func (o EncryptOpts) validate() error {
	if len(o.PlainText) <= 0 {
		return ErrNullPlainText
	}
	if len(o.Passphrase) <= 0 {
		return ErrNullPassphrase
	}
	if o.Salt != nil && len(o.Salt) != saltSize {
		return fmt.Errorf("salt must be %d bytes long", saltSize)
	}
	return validateCost(o.Cost)
}

// Encrypt encrypts (with AES-256-GCM) a plaintext with a key derived from the
// provided passphrase. The salt is appended to the returned base64 cypher.
func Encrypt(opts EncryptOpts) (string, error) {
	if err := opts.validate(); err != nil {
		return "", err
	}

	key, salt, err := DeriveKey(opts.Passphrase, opts.Salt, opts.Cost)
	if err != nil {
		return "", err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, opts.PlainText, nil)
	ciphertext = append(ciphertext, salt...)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptOpts is the struct given to Decrypt method
type DecryptOpts struct {
	CypherText string
	Passphrase []byte
	Cost       int
}

func (o DecryptOpts) validate() error {
	if len(o.CypherText) <= 0 {
		return ErrNullCypherText
	}
	buf, err := base64.StdEncoding.DecodeString(o.CypherText)
	if err != nil || len(buf) <= saltSize {
		return ErrInvalidCypherText
	}
	if len(o.Passphrase) <= 0 {
		return ErrNullPassphrase
	}
	return validateCost(o.Cost)
}

// Decrypt decrypts a cyphertext produced by Encrypt with the provided
// passphrase
func Decrypt(opts DecryptOpts) ([]byte, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	data, _ := base64.StdEncoding.DecodeString(opts.CypherText)
	salt, data := data[len(data)-saltSize:], data[:len(data)-saltSize]

	key, _, err := DeriveKey(opts.Passphrase, salt, opts.Cost)
	if err != nil {
		return nil, err
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, ErrInvalidCypherText
	}
	nonce, text := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	return gcm.Open(nil, nonce, text, nil)
}

// DeriveKey derives a 32 byte array key from a custom passhprase. A random
// salt is generated if none is given.
func DeriveKey(passphrase, salt []byte, cost int) ([]byte, []byte, error) {
	if salt == nil {
		salt = make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, err
		}
	}
	if cost == 0 {
		cost = DefaultScryptCost
	}
	key, err := scrypt.Key(passphrase, salt, cost, 8, 1, 32)
	if err != nil {
		return nil, nil, err
	}
	return key, salt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	blockCipher, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(blockCipher)
}

func validateCost(cost int) error {
	if cost == 0 {
		return nil
	}
	if cost <= 1 || cost&(cost-1) != 0 {
		return ErrInvalidScryptCost
	}
	return nil
}
