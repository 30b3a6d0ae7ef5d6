// Package identity derives deterministic wallet identifiers and mints the
// bearer tokens virtual users present to the wallet service.
package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// MaxWalletIndex is the exclusive upper bound of indices WalletID accepts.
// The index is rendered into the 12-digit node field of the UUID, so every
// index below this bound maps to a distinct identifier.
const MaxWalletIndex int64 = 1_000_000_000_000

// walletIDPrefix is the fixed part shared by every synthesized wallet id.
const walletIDPrefix = "00000000-0000-0000-0000-"

// WalletID returns the wallet identifier for index i.
//
// The result is the UUID 00000000-0000-0000-0000-NNNNNNNNNNNN where N is
// the zero-padded decimal index, matching the ids seeded into test
// environments.
func WalletID(i int64) (uuid.UUID, error) {
	if i < 0 || i >= MaxWalletIndex {
		return uuid.Nil, fmt.Errorf("wallet index %d out of range [0, %d)", i, MaxWalletIndex)
	}
	return uuid.Parse(fmt.Sprintf("%s%012d", walletIDPrefix, i))
}

// MustWalletID is like WalletID but panics on an out-of-range index.
// Callers are expected to have validated their index ranges up front.
func MustWalletID(i int64) uuid.UUID {
	id, err := WalletID(i)
	if err != nil {
		panic(err)
	}
	return id
}
