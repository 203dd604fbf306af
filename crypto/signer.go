// Package crypto wraps secp256k1 ECDSA signing and verification for
// transaction, batch, and block headers (spec.md §3, §6: "a compact 64-byte
// secp256k1 ECDSA signature over SHA-256 of header_bytes"). Grounded on the
// teacher's bundled secp256k1 dependency (github.com/decred/dcrd/dcrec/
// secp256k1/v4), used the same way certenIO-certen-validator and
// clydemeng-bsc use the ethereum/decred secp256k1 stack for header signing.
package crypto

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PrivateKey is a validator or transactor signing key.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GeneratePrivateKey creates a fresh random key (used for genesis/keygen
// tooling; see cmd/validator).
func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// ParsePrivateKeyHex parses a 32-byte hex-encoded private key.
func ParsePrivateKeyHex(s string) (*PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: decode private key: %w", err)
	}
	key := secp256k1.PrivKeyFromBytes(raw)
	return &PrivateKey{key: key}, nil
}

// PublicKeyHex returns the lowercase-hex compressed public key, matching
// the signer_public_key/batcher_public_key wire format (spec.md §3).
func (p *PrivateKey) PublicKeyHex() string {
	return hex.EncodeToString(p.key.PubKey().SerializeCompressed())
}

// Hex returns the lowercase-hex encoding of the raw 32-byte private key,
// the form ParsePrivateKeyHex reads back; used by cmd/validator's keygen
// to persist a generated key to the data directory.
func (p *PrivateKey) Hex() string {
	return hex.EncodeToString(p.key.Serialize())
}

// Sign signs bytes (already hashed by the caller is NOT required; Sign
// hashes with SHA-256 itself, matching spec.md §6's
// "signature over SHA-256 of header_bytes") and returns the lowercase-hex
// compact 64-byte r||s signature.
func (p *PrivateKey) Sign(headerBytes []byte) string {
	digest := sha256.Sum256(headerBytes)
	compact := ecdsa.SignCompact(p.key, digest[:], false)
	// SignCompact prepends a 1-byte recovery/format id; Sawtooth's wire
	// signature is the bare 64-byte r||s pair.
	rs := compact[1:]
	return hex.EncodeToString(rs)
}

// Verify checks a lowercase-hex compact signature over headerBytes against
// a lowercase-hex compressed public key.
func Verify(headerBytes []byte, signatureHex, publicKeyHex string) error {
	sigBytes, err := hex.DecodeString(signatureHex)
	if err != nil {
		return fmt.Errorf("crypto: decode signature: %w", err)
	}
	if len(sigBytes) != 64 {
		return fmt.Errorf("crypto: signature has length %d, want 64", len(sigBytes))
	}
	pubBytes, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return fmt.Errorf("crypto: decode public key: %w", err)
	}
	pubKey, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return fmt.Errorf("crypto: parse public key: %w", err)
	}

	var r, s secp256k1.ModNScalar
	r.SetByteSlice(sigBytes[:32])
	s.SetByteSlice(sigBytes[32:])
	sig := ecdsa.NewSignature(&r, &s)

	digest := sha256.Sum256(headerBytes)
	if !sig.Verify(digest[:], pubKey) {
		return fmt.Errorf("crypto: signature verification failed")
	}
	return nil
}

// Sha512Hex returns the lowercase-hex SHA-512 digest of payload, matching
// the payload_sha512 field (spec.md §3).
func Sha512Hex(payload []byte) string {
	sum := sha512.Sum512(payload)
	return hex.EncodeToString(sum[:])
}
