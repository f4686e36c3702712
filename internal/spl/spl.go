// Package spl decodes the token-program accounts a pool holds: the LP mint and
// the pool's coin and pc token accounts.
package spl

import (
	"errors"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go/programs/token"
)

const (
	TokenAccountSize = 165
	MintSize         = 82
)

var ErrInvalidTokenAccount = errors.New("invalid token program account")

func DecodeTokenAccount(data []byte) (*token.Account, error) {
	if len(data) != TokenAccountSize {
		return nil, fmt.Errorf("%w: token account expects %d bytes, got %d", ErrInvalidTokenAccount, TokenAccountSize, len(data))
	}
	var acc token.Account
	if err := bin.NewBinDecoder(data).Decode(&acc); err != nil {
		return nil, fmt.Errorf("%w: token account: %v", ErrInvalidTokenAccount, err)
	}
	return &acc, nil
}

func DecodeMint(data []byte) (*token.Mint, error) {
	if len(data) != MintSize {
		return nil, fmt.Errorf("%w: mint expects %d bytes, got %d", ErrInvalidTokenAccount, MintSize, len(data))
	}
	var mint token.Mint
	if err := bin.NewBinDecoder(data).Decode(&mint); err != nil {
		return nil, fmt.Errorf("%w: mint: %v", ErrInvalidTokenAccount, err)
	}
	if !mint.IsInitialized {
		return nil, fmt.Errorf("%w: mint is not initialized", ErrInvalidTokenAccount)
	}
	return &mint, nil
}

// UIAmount scales a raw token amount down by 10^decimals.
func UIAmount(raw uint64, decimals uint8) float64 {
	return float64(raw) / math.Pow10(int(decimals))
}
