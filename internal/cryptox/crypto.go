// Package cryptox implements the wallet key capability: key-pair generation,
// password-based key derivation and private-key sealing.
//
// Encoded forms match what the web app stores: public keys are base64 SEC1
// uncompressed P-256 points, salts are unpadded standard base64, derived
// keys and sealed blobs are padded standard base64 (sealed = nonce||ciphertext).
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/matakeeper/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize  = 16
	keySize   = 32
	nonceSize = 12

	argonTime    = 2
	argonMemory  = 19 * 1024
	argonThreads = 1
)

var (
	ErrKeyTooShort    = errors.New("derived key too short")
	ErrSealedTooShort = errors.New("encrypted data too short")
)

// KeyPair is a P-256 key pair. PrivateKey is the raw 32-byte scalar.
type KeyPair struct {
	PublicKey  string
	PrivateKey []byte
}

// DerivedKey is the output of DeriveKey.
type DerivedKey struct {
	Key  string `json:"key"`
	Salt string `json:"salt"`
}

func GenerateKeyPair() (*KeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return &KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(priv.PublicKey().Bytes()),
		PrivateKey: priv.Bytes(),
	}, nil
}

// DeriveKey stretches password with argon2id. A fresh salt is generated when
// salt is empty.
func DeriveKey(password, salt string) (*DerivedKey, error) {
	var saltBytes []byte
	if salt == "" {
		saltBytes = common.GenerateRandByteArray(saltSize)
		salt = base64.RawStdEncoding.EncodeToString(saltBytes)
	} else {
		var err error
		saltBytes, err = base64.RawStdEncoding.DecodeString(salt)
		if err != nil {
			return nil, fmt.Errorf("invalid salt format: %w", err)
		}
	}

	key := argon2.IDKey([]byte(password), saltBytes, argonTime, argonMemory, argonThreads, keySize)
	defer common.WipeByteArray(key)

	return &DerivedKey{
		Key:  base64.StdEncoding.EncodeToString(key),
		Salt: salt,
	}, nil
}

func EncryptPrivateKey(kp *KeyPair, derivedKey string) (string, error) {
	return seal(kp.PrivateKey, derivedKey)
}

func DecryptPrivateKey(encrypted, derivedKey string) ([]byte, error) {
	return open(encrypted, derivedKey)
}

// EncryptData seals an arbitrary string with a base64 key.
func EncryptData(data, key string) (string, error) {
	return seal([]byte(data), key)
}

func DecryptData(encrypted, key string) (string, error) {
	plain, err := open(encrypted, key)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

// GenerateRandomKey returns a random base64 AES-256 key.
func GenerateRandomKey() string {
	return base64.StdEncoding.EncodeToString(common.GenerateRandByteArray(keySize))
}

func newGCM(derivedKey string) (cipher.AEAD, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("invalid key format: %w", err)
	}
	if len(keyBytes) < keySize {
		return nil, fmt.Errorf("%w: %d bytes", ErrKeyTooShort, len(keyBytes))
	}
	block, err := aes.NewCipher(keyBytes[:keySize])
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func seal(plaintext []byte, derivedKey string) (string, error) {
	aead, err := newGCM(derivedKey)
	if err != nil {
		return "", err
	}
	nonce := common.GenerateRandByteArray(nonceSize)
	out := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func open(encrypted, derivedKey string) ([]byte, error) {
	aead, err := newGCM(derivedKey)
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("invalid encrypted data: %w", err)
	}
	if len(data) < nonceSize {
		return nil, ErrSealedTooShort
	}
	plain, err := aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plain, nil
}
