package spl

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/lp-pricer/internal/spl/spltest"
)

func TestDecodeTokenAccount(t *testing.T) {
	mint := solana.MustPublicKeyFromBase58("4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R")
	owner := solana.NewWallet().PublicKey()

	acc, err := DecodeTokenAccount(spltest.TokenAccount(mint, owner, 123_456))
	require.NoError(t, err)
	assert.Equal(t, mint, acc.Mint)
	assert.Equal(t, owner, acc.Owner)
	assert.Equal(t, uint64(123_456), acc.Amount)
	assert.Nil(t, acc.Delegate)

	_, err = DecodeTokenAccount(make([]byte, TokenAccountSize-1))
	require.ErrorIs(t, err, ErrInvalidTokenAccount)
}

func TestDecodeMint(t *testing.T) {
	mint, err := DecodeMint(spltest.Mint(2_000_000, 6))
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), mint.Supply)
	assert.Equal(t, uint8(6), mint.Decimals)

	_, err = DecodeMint(make([]byte, MintSize))
	require.ErrorIs(t, err, ErrInvalidTokenAccount)

	_, err = DecodeMint(make([]byte, TokenAccountSize))
	require.ErrorIs(t, err, ErrInvalidTokenAccount)
}

func TestUIAmount(t *testing.T) {
	assert.InDelta(t, 1.5, UIAmount(1_500_000, 6), 1e-12)
	assert.InDelta(t, 42.0, UIAmount(42, 0), 1e-12)
	assert.InDelta(t, 0.000000001, UIAmount(1, 9), 1e-18)
}
