// Package wallet holds the sponsor's signing key and produces intent-bound
// signatures, grounded on original_source/src/services/wallet.rs
// (public()/address()/sign() over a keypair). The wallet is immutable after
// construction and safe to share by reference; signing does not mutate
// state (spec §4.D).
package wallet

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// IntentTransactionData is the chain-specific domain-separator byte prefix mandatory in
// signed payloads (spec Glossary: Intent). The default transaction-data
// intent is {scope: TransactionData=0, version: V0=0, app: Sui=0}.
var IntentTransactionData = [3]byte{0, 0, 0}

// Signature is a base64-encodable Ed25519 signature over an intent-prefixed
// message, flagged with the scheme byte the chain's signature scheme
// registry uses for Ed25519 (0x00).
type Signature struct {
	Scheme    byte
	Signature []byte
	PublicKey ed25519.PublicKey
}

// Bytes returns the flag||sig||pubkey serialized form the chain expects.
func (s Signature) Bytes() []byte {
	out := make([]byte, 0, 1+len(s.Signature)+len(s.PublicKey))
	out = append(out, s.Scheme)
	out = append(out, s.Signature...)
	out = append(out, s.PublicKey...)
	return out
}

// Base64 renders Bytes() as base64, the wire form used in HTTP JSON bodies.
func (s Signature) Base64() string {
	return base64.StdEncoding.EncodeToString(s.Bytes())
}

// Wallet holds one Ed25519 signing key.
type Wallet struct {
	priv ed25519.PrivateKey
}

// FromPrivateKeyHex constructs a Wallet from a hex-encoded 32-byte seed or
// 64-byte expanded key, matching SPONSOR_PRIV_KEY (spec §6).
func FromPrivateKeyHex(s string) (*Wallet, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: decode SPONSOR_PRIV_KEY: %w", err)
	}

	var priv ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		priv = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("wallet: SPONSOR_PRIV_KEY has %d bytes, want %d or %d", len(raw), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
	return &Wallet{priv: priv}, nil
}

// PublicKey returns the wallet's public key.
func (w *Wallet) PublicKey() ed25519.PublicKey {
	return w.priv.Public().(ed25519.PublicKey)
}

// Address derives the chain address from the public key: blake2b-style chain
// addresses are scheme-flag || pubkey hashed; this service only needs a
// stable hex identifier for GasData.owner, so it hex-encodes flag||pubkey
// directly rather than reimplementing the chain's address-hash function,
// which callers never need to invert.
func (w *Wallet) Address() string {
	pub := w.PublicKey()
	buf := make([]byte, 1+len(pub))
	buf[0] = 0x00 // Ed25519 scheme flag
	copy(buf[1:], pub)
	return "0x" + hex.EncodeToString(buf)
}

// Sign signs message intent-prefixed, per spec §4.D: signature is computed
// over intent || message, never over message alone.
func (w *Wallet) Sign(message []byte) Signature {
	payload := make([]byte, 0, len(IntentTransactionData)+len(message))
	payload = append(payload, IntentTransactionData[:]...)
	payload = append(payload, message...)

	sig := ed25519.Sign(w.priv, payload)
	return Signature{Scheme: 0x00, Signature: sig, PublicKey: w.PublicKey()}
}
