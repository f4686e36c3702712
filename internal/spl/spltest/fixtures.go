// Package spltest builds raw token-program account bytes for tests.
package spltest

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
)

// TokenAccount returns a 165-byte initialized token account with no
// delegate, not native, and no close authority.
func TokenAccount(mint, owner solana.PublicKey, amount uint64) []byte {
	out := make([]byte, 0, 165)
	out = append(out, mint[:]...)
	out = append(out, owner[:]...)
	out = binary.LittleEndian.AppendUint64(out, amount)
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = append(out, make([]byte, 32)...)
	out = append(out, 1) // initialized
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = binary.LittleEndian.AppendUint64(out, 0)
	out = binary.LittleEndian.AppendUint64(out, 0)
	out = binary.LittleEndian.AppendUint32(out, 0)
	return append(out, make([]byte, 32)...)
}

// Mint returns an 82-byte initialized mint without authorities.
func Mint(supply uint64, decimals uint8) []byte {
	out := make([]byte, 0, 82)
	out = binary.LittleEndian.AppendUint32(out, 0)
	out = append(out, make([]byte, 32)...)
	out = binary.LittleEndian.AppendUint64(out, supply)
	out = append(out, decimals, 1)
	out = binary.LittleEndian.AppendUint32(out, 0)
	return append(out, make([]byte, 32)...)
}
