package geyser

import (
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// pubkeyLen is the byte length of a Solana public key and of a blockhash.
const pubkeyLen = 32

// ValidatePubkey checks that s is a base58-encoded 32-byte identifier.
func ValidatePubkey(s string) error {
	raw, err := base58.Decode(s)
	if err != nil {
		return fmt.Errorf("not base58: %w", err)
	}
	if len(raw) != pubkeyLen {
		return fmt.Errorf("decoded to %d bytes, want %d", len(raw), pubkeyLen)
	}
	return nil
}

// ValidateBlockhash checks that s is a base58-encoded 32-byte hash.
// Blockhashes share the pubkey encoding.
func ValidateBlockhash(s string) error {
	return ValidatePubkey(s)
}

// IsOnCurve reports whether the pubkey decodes to a point on the ed25519
// curve. Wallet addresses are on-curve; program-derived addresses are not.
func IsOnCurve(pubkey string) bool {
	raw, err := base58.Decode(pubkey)
	if err != nil || len(raw) != pubkeyLen {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}
