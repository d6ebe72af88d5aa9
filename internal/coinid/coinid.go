// Package coinid defines the identifiers the gas pool tracks: the opaque
// on-chain object id of a sponsor-owned coin, and the (id, version, digest)
// reference required to spend it as gas payment.
package coinid

import (
	"encoding/hex"
	"errors"
	"strings"
)

// ID is the hex-stringable, comparable identifier of a coin object on-chain.
// It is intentionally a plain string under the hood so it can be used as a
// map key and a Redis/queue payload without extra marshaling.
type ID string

// ErrInvalidHex is returned when a coin id string isn't valid hex.
var ErrInvalidHex = errors.New("coinid: invalid hex literal")

// ParseID normalizes a hex literal (with or without the "0x" prefix) into an
// ID. It does not allocate a canonical byte form; normalization is limited to
// trimming whitespace, lower-casing and re-prefixing with "0x" so equal coins
// always compare equal.
func ParseID(s string) (ID, error) {
	trimmed := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if trimmed == "" {
		return "", ErrInvalidHex
	}
	if _, err := hex.DecodeString(trimmed); err != nil {
		return "", ErrInvalidHex
	}
	return ID("0x" + trimmed), nil
}

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// Hex returns the canonical "0x"-prefixed hex form, same as String.
func (id ID) Hex() string { return string(id) }

// Ref is the (CoinId, version, digest) triple required to include a coin as
// gas payment. Version changes after every transaction that touches the
// coin, so a Ref must be refreshed from chain immediately before use.
type Ref struct {
	ID      ID     `json:"objectId"`
	Version uint64 `json:"version"`
	Digest  string `json:"digest"`
}
