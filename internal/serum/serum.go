// Package serum decodes the order-book venue accounts a pool trades against:
// market state, open orders, ask/bid slabs, and the rent sysvar.
package serum

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	headPadding = "serum"
	tailPadding = "padding"
)

type AccountFlag uint64

const (
	FlagInitialized  AccountFlag = 1 << 0
	FlagMarket       AccountFlag = 1 << 1
	FlagOpenOrders   AccountFlag = 1 << 2
	FlagRequestQueue AccountFlag = 1 << 3
	FlagEventQueue   AccountFlag = 1 << 4
	FlagBids         AccountFlag = 1 << 5
	FlagAsks         AccountFlag = 1 << 6
)

func (f AccountFlag) Has(want AccountFlag) bool {
	return f&want == want
}

var (
	ErrInvalidAccount = errors.New("invalid serum account")
	ErrInvalidFlags   = errors.New("unexpected serum account flags")
	ErrWrongOwner     = errors.New("serum account owned by unexpected program")
	ErrMarketMismatch = errors.New("open orders belong to another market")
	ErrNotRentExempt  = errors.New("account is not rent exempt")
)

// CheckOwner verifies an account is owned by the configured venue program.
func CheckOwner(address, owner, programID solana.PublicKey) error {
	if !owner.Equals(programID) {
		return fmt.Errorf("%w: %s owner=%s want=%s", ErrWrongOwner, address, owner, programID)
	}
	return nil
}

// stripPadding returns the body between the "serum" head and "padding" tail.
func stripPadding(kind string, data []byte) ([]byte, error) {
	if len(data) < len(headPadding)+len(tailPadding) {
		return nil, fmt.Errorf("%w: %s too short (%d bytes)", ErrInvalidAccount, kind, len(data))
	}
	if !bytes.Equal(data[:len(headPadding)], []byte(headPadding)) {
		return nil, fmt.Errorf("%w: %s missing head padding", ErrInvalidAccount, kind)
	}
	if !bytes.Equal(data[len(data)-len(tailPadding):], []byte(tailPadding)) {
		return nil, fmt.Errorf("%w: %s missing tail padding", ErrInvalidAccount, kind)
	}
	return data[len(headPadding) : len(data)-len(tailPadding)], nil
}

func wrapPadding(body []byte) []byte {
	out := make([]byte, 0, len(headPadding)+len(body)+len(tailPadding))
	out = append(out, headPadding...)
	out = append(out, body...)
	return append(out, tailPadding...)
}

type fieldReader struct {
	dec *bin.Decoder
	err error
}

func newFieldReader(data []byte) *fieldReader {
	return &fieldReader{dec: bin.NewBinDecoder(data)}
}

func (r *fieldReader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint8()
	if err != nil {
		r.err = err
	}
	return v
}

func (r *fieldReader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		r.err = err
	}
	return v
}

func (r *fieldReader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		r.err = err
	}
	return v
}

func (r *fieldReader) u128() bin.Uint128 {
	lo := r.u64()
	hi := r.u64()
	return bin.Uint128{Lo: lo, Hi: hi, Endianness: binary.LittleEndian}
}

func (r *fieldReader) skip(n int) {
	if r.err != nil {
		return
	}
	if _, err := r.dec.ReadNBytes(n); err != nil {
		r.err = err
	}
}

func (r *fieldReader) pubkey() solana.PublicKey {
	if r.err != nil {
		return solana.PublicKey{}
	}
	v, err := r.dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		r.err = err
		return solana.PublicKey{}
	}
	return solana.PublicKeyFromBytes(v)
}

func (r *fieldReader) done(kind string) error {
	if r.err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidAccount, kind, r.err)
	}
	return nil
}
