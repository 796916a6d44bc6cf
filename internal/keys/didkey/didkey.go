// Package didkey derives self-describing did:key identifiers from Ed25519
// public keys and parses them back.
//
// Format: "did:key:" + multibase(base58btc, uvarint(0xed) || publicKey).
package didkey

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
)

// ED25519PubKeyMultiCodec is the multicodec table entry for Ed25519 public keys.
const ED25519PubKeyMultiCodec = 0xed

const methodPrefix = "did:key:"

var (
	ErrNotDIDKey       = errors.New("not a did:key identifier")
	ErrUnsupportedCode = errors.New("unsupported multicodec key type")
)

// Fingerprint returns the multibase method-specific identifier for pub.
func Fingerprint(pub ed25519.PublicKey) string {
	buf := append(varint.ToUvarint(ED25519PubKeyMultiCodec), pub...)
	encoded, err := multibase.Encode(multibase.Base58BTC, buf)
	if err != nil {
		// base58btc is always registered in go-multibase
		panic(fmt.Sprintf("didkey: multibase encode: %v", err))
	}
	return encoded
}

// DeriveControllerID builds the did:key identifier for pub. It is pure: the
// same key always yields the same identifier.
func DeriveControllerID(pub ed25519.PublicKey) string {
	return methodPrefix + Fingerprint(pub)
}

// VerificationMethod returns "<did>#<fingerprint>" for pub.
func VerificationMethod(pub ed25519.PublicKey) string {
	fp := Fingerprint(pub)
	return methodPrefix + fp + "#" + fp
}

// ControllerOf strips the fragment from a verification method reference.
func ControllerOf(verificationMethod string) string {
	if i := strings.IndexByte(verificationMethod, '#'); i >= 0 {
		return verificationMethod[:i]
	}
	return verificationMethod
}

// ParseControllerID extracts the Ed25519 public key from a did:key identifier
// or verification method reference.
func ParseControllerID(did string) (ed25519.PublicKey, error) {
	did = ControllerOf(did)
	if !strings.HasPrefix(did, methodPrefix) {
		return nil, ErrNotDIDKey
	}

	encoding, data, err := multibase.Decode(strings.TrimPrefix(did, methodPrefix))
	if err != nil {
		return nil, fmt.Errorf("decode multibase: %w", err)
	}
	if encoding != multibase.Base58BTC {
		return nil, fmt.Errorf("%w: expected base58btc encoding", ErrNotDIDKey)
	}

	code, n, err := varint.FromUvarint(data)
	if err != nil {
		return nil, fmt.Errorf("read multicodec prefix: %w", err)
	}
	if code != ED25519PubKeyMultiCodec {
		return nil, fmt.Errorf("%w: 0x%x", ErrUnsupportedCode, code)
	}

	pub := data[n:]
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid Ed25519 public key size: %d", len(pub))
	}
	return ed25519.PublicKey(append([]byte(nil), pub...)), nil
}
