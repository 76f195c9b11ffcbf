// Package cryptox implements the message envelope used to store chat lines
// on the relay: a password-derived AES-256-GCM ciphertext wrapped in a small,
// versioned JSON object that carries its own nonce and salt.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/cipherroom/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// Version is the only envelope version this package can open.
	Version = "v1"
	// Algorithm names the authenticated-encryption scheme of Version.
	Algorithm = "AES-GCM"

	// Iterations is the PBKDF2-HMAC-SHA256 work factor.
	Iterations = 100_000
	// KeySize selects AES-256.
	KeySize = 32
	// NonceSize is the standard 96-bit GCM nonce.
	NonceSize = 12
	// SaltSize is the per-message key-derivation salt length.
	SaltSize = 16
)

// Envelope is the wire form of an encrypted chat line. All binary fields are
// standard base64.
type Envelope struct {
	V    string `json:"v"`
	Alg  string `json:"alg"`
	IV   string `json:"iv"`
	Salt string `json:"salt"`
	CT   string `json:"ct"`
}

// DeriveKey stretches password with salt into a 256-bit AES key.
// It is deterministic and safe for concurrent use.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, Iterations, KeySize, sha256.New)
}

// Encrypt seals plaintext under a key derived from password.
//
// Every call draws a fresh nonce and a fresh salt, so two envelopes of the
// same plaintext never share either value. The returned error only reports a
// broken cipher setup and should be treated as fatal by callers.
func Encrypt(plaintext, password string) (Envelope, error) {
	salt := common.GenerateRandByteArray(SaltSize)
	nonce := common.GenerateRandByteArray(NonceSize)

	key := DeriveKey([]byte(password), salt)
	defer common.WipeByteArray(key)

	aead, err := newAEAD(key)
	if err != nil {
		return Envelope{}, err
	}

	ct := aead.Seal(nil, nonce, []byte(plaintext), nil)

	return Envelope{
		V:    Version,
		Alg:  Algorithm,
		IV:   base64.StdEncoding.EncodeToString(nonce),
		Salt: base64.StdEncoding.EncodeToString(salt),
		CT:   base64.StdEncoding.EncodeToString(ct),
	}, nil
}

// Seal encrypts plaintext and serializes the envelope to the text stored in a
// message's content field.
func Seal(plaintext, password string) (string, error) {
	env, err := Encrypt(plaintext, password)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("envelope encoding error: %w", err)
	}
	return string(b), nil
}

// Decrypt returns the plaintext of wire, or wire itself when it cannot be
// opened. It never fails: legacy plaintext, malformed or unsupported
// envelopes, and wrong passwords all resolve to the original field value.
func Decrypt(wire, password string) string {
	plaintext, _ := Open(wire, password)
	return plaintext
}

// Open is Decrypt that also reports whether the content was actually
// decrypted. The flag is diagnostic only; callers must not turn it into a
// user-facing error.
func Open(wire, password string) (string, bool) {
	env, ok := parse(wire)
	if !ok {
		return wire, false
	}

	nonce, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil || len(nonce) != NonceSize {
		return wire, false
	}
	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil || len(salt) == 0 {
		return wire, false
	}
	ct, err := base64.StdEncoding.DecodeString(env.CT)
	if err != nil {
		return wire, false
	}

	key := DeriveKey([]byte(password), salt)
	defer common.WipeByteArray(key)

	aead, err := newAEAD(key)
	if err != nil {
		return wire, false
	}
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return wire, false
	}
	return string(plaintext), true
}

// IsEnvelope reports whether wire is structurally a supported envelope. It
// does not attempt decryption.
func IsEnvelope(wire string) bool {
	_, ok := parse(wire)
	return ok
}

// parse accepts only the exact lower-case field names of Envelope. Other
// keys are ignored.
func parse(wire string) (Envelope, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(wire), &fields); err != nil {
		return Envelope{}, false
	}
	var env Envelope
	for name, dst := range map[string]*string{
		"v":    &env.V,
		"alg":  &env.Alg,
		"iv":   &env.IV,
		"salt": &env.Salt,
		"ct":   &env.CT,
	} {
		raw, ok := fields[name]
		if !ok {
			return Envelope{}, false
		}
		if err := json.Unmarshal(raw, dst); err != nil {
			return Envelope{}, false
		}
	}
	if env.V != Version || env.Alg != Algorithm {
		return Envelope{}, false
	}
	if env.IV == "" || env.Salt == "" || env.CT == "" {
		return Envelope{}, false
	}
	return env, true
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
