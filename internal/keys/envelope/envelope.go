// Package envelope encrypts issuer private keys at rest under a single
// process-wide master key.
//
// Every encryption draws a fresh salt and nonce. The salt feeds HKDF-SHA256 to
// derive a per-record AES-256-GCM key from the master key, so no two records
// share a data key. Wire format:
//
//	version(1) || salt(16) || nonce(12) || ciphertext || tag(16)
//
// The version byte and salt are bound as additional authenticated data.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Envelope is the swappable authenticated-encryption boundary used by the key
// manager. Callers never see which cipher is in use.
type Envelope interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

const (
	formatVersion = 0x01
	saltSize      = 16
	nonceSize     = 12
	keySize       = 32
	headerSize    = 1 + saltSize
	hkdfInfo      = "openbadges/issuer-key-envelope/v1"
)

// ErrInvalidMasterKey is returned when the master key is not 32 bytes.
var ErrInvalidMasterKey = errors.New("master key must be 32 bytes")

// DecryptionError reports ciphertext that failed authentication: tampered,
// truncated, or sealed under a different master key. Decrypt never returns
// plaintext alongside it.
type DecryptionError struct {
	Reason string
	Err    error
}

func (e *DecryptionError) Error() string {
	if e.Err != nil {
		return "decrypt private key: " + e.Reason + ": " + e.Err.Error()
	}
	return "decrypt private key: " + e.Reason
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// AESGCM is the default Envelope.
type AESGCM struct {
	masterKey []byte
	random    io.Reader
}

// Option configures AESGCM.
type Option func(*AESGCM)

// WithRandom overrides the entropy source. Tests use it to simulate failure.
func WithRandom(r io.Reader) Option {
	return func(a *AESGCM) {
		a.random = r
	}
}

// NewAESGCM builds an envelope around masterKey. The key is copied.
func NewAESGCM(masterKey []byte, opts ...Option) (*AESGCM, error) {
	if len(masterKey) != keySize {
		return nil, ErrInvalidMasterKey
	}
	a := &AESGCM{
		masterKey: append([]byte(nil), masterKey...),
		random:    rand.Reader,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Encrypt seals plaintext under a freshly derived data key.
func (a *AESGCM) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, headerSize+nonceSize, headerSize+nonceSize+len(plaintext)+16)
	out[0] = formatVersion
	salt := out[1:headerSize]
	nonce := out[headerSize : headerSize+nonceSize]

	if _, err := io.ReadFull(a.random, salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	if _, err := io.ReadFull(a.random, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}

	aead, err := a.aead(salt)
	if err != nil {
		return nil, err
	}
	return aead.Seal(out, nonce, plaintext, out[:headerSize]), nil
}

// Decrypt opens ciphertext produced by Encrypt. Any authentication failure is
// reported as *DecryptionError.
func (a *AESGCM) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < headerSize+nonceSize+16 {
		return nil, &DecryptionError{Reason: "ciphertext truncated"}
	}
	if ciphertext[0] != formatVersion {
		return nil, &DecryptionError{Reason: fmt.Sprintf("unknown envelope version %d", ciphertext[0])}
	}

	salt := ciphertext[1:headerSize]
	nonce := ciphertext[headerSize : headerSize+nonceSize]

	aead, err := a.aead(salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext[headerSize+nonceSize:], ciphertext[:headerSize])
	if err != nil {
		return nil, &DecryptionError{Reason: "authentication failed", Err: err}
	}
	return plaintext, nil
}

func (a *AESGCM) aead(salt []byte) (cipher.AEAD, error) {
	dataKey := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, a.masterKey, salt, []byte(hkdfInfo)), dataKey); err != nil {
		return nil, fmt.Errorf("derive data key: %w", err)
	}
	block, err := aes.NewCipher(dataKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
