package amm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

type Version uint8

const (
	V3 Version = 3
	V4 Version = 4
)

const (
	LayoutV3Size = 680
	LayoutV4Size = 752
)

var (
	ErrMalformedLayout = errors.New("malformed amm layout")
	ErrUnknownVersion  = errors.New("unknown amm layout version")
)

func (v Version) String() string {
	switch v {
	case V3:
		return "v3"
	case V4:
		return "v4"
	default:
		return fmt.Sprintf("v%d", uint8(v))
	}
}

// Size returns the exact on-chain account length for the layout version, or 0
// for unknown versions.
func (v Version) Size() int {
	switch v {
	case V3:
		return LayoutV3Size
	case V4:
		return LayoutV4Size
	default:
		return 0
	}
}

func ParseVersion(raw string) (Version, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "v3", "3":
		return V3, nil
	case "v4", "4":
		return V4, nil
	default:
		return 0, fmt.Errorf("%w: %q (expected v3|v4)", ErrUnknownVersion, raw)
	}
}

func (v Version) MarshalText() ([]byte, error) {
	if v.Size() == 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownVersion, uint8(v))
	}
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// PoolInfo is the subset of an AMM record that valuation needs. Both layout
// versions project onto it.
type PoolInfo struct {
	Version              Version          `json:"version"`
	Status               uint64           `json:"status"`
	CoinDecimals         uint64           `json:"coin_decimals"`
	PcDecimals           uint64           `json:"pc_decimals"`
	CoinLotSize          uint64           `json:"coin_lot_size"`
	PcLotSize            uint64           `json:"pc_lot_size"`
	NeedTakePnlCoin      uint64           `json:"need_take_pnl_coin"`
	NeedTakePnlPc        uint64           `json:"need_take_pnl_pc"`
	PoolCoinTokenAccount solana.PublicKey `json:"pool_coin_token_account"`
	PoolPcTokenAccount   solana.PublicKey `json:"pool_pc_token_account"`
	CoinMint             solana.PublicKey `json:"coin_mint"`
	PcMint               solana.PublicKey `json:"pc_mint"`
	LpMint               solana.PublicKey `json:"lp_mint"`
	OpenOrders           solana.PublicKey `json:"open_orders"`
	SerumMarket          solana.PublicKey `json:"serum_market"`
	SerumProgramID       solana.PublicKey `json:"serum_program_id"`
}

// Decode parses data with the layout named by version. The version is chosen
// by the caller; it is never sniffed from the buffer.
func Decode(data []byte, version Version) (PoolInfo, error) {
	switch version {
	case V3:
		layout, err := DecodeV3(data)
		if err != nil {
			return PoolInfo{}, err
		}
		return layout.Info(), nil
	case V4:
		layout, err := DecodeV4(data)
		if err != nil {
			return PoolInfo{}, err
		}
		return layout.Info(), nil
	default:
		return PoolInfo{}, fmt.Errorf("%w: %d", ErrUnknownVersion, uint8(version))
	}
}

func checkLength(data []byte, version Version) error {
	if len(data) != version.Size() {
		return fmt.Errorf("%w: %s expects %d bytes, got %d", ErrMalformedLayout, version, version.Size(), len(data))
	}
	return nil
}

type fieldReader struct {
	dec *bin.Decoder
	err error
}

func newFieldReader(data []byte) *fieldReader {
	return &fieldReader{dec: bin.NewBinDecoder(data)}
}

func (r *fieldReader) u64() uint64 {
	if r.err != nil {
		return 0
	}
	v, err := r.dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		r.err = err
		return 0
	}
	return v
}

func (r *fieldReader) u128() bin.Uint128 {
	lo := r.u64()
	hi := r.u64()
	return bin.Uint128{Lo: lo, Hi: hi, Endianness: binary.LittleEndian}
}

func (r *fieldReader) bytes(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	v, err := r.dec.ReadNBytes(n)
	if err != nil {
		r.err = err
		return make([]byte, n)
	}
	return v
}

func (r *fieldReader) pubkey() solana.PublicKey {
	return solana.PublicKeyFromBytes(r.bytes(solana.PublicKeyLength))
}

func (r *fieldReader) finish(version Version) error {
	if r.err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedLayout, version, r.err)
	}
	if remaining := r.dec.Remaining(); remaining != 0 {
		return fmt.Errorf("%w: %s: %d trailing bytes", ErrMalformedLayout, version, remaining)
	}
	return nil
}

type fieldWriter struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func newFieldWriter(size int) *fieldWriter {
	w := &fieldWriter{}
	w.buf.Grow(size)
	w.enc = bin.NewBinEncoder(&w.buf)
	return w
}

func (w *fieldWriter) u64(v uint64) {
	if w.err != nil {
		return
	}
	w.err = w.enc.WriteUint64(v, binary.LittleEndian)
}

func (w *fieldWriter) u128(v bin.Uint128) {
	w.u64(v.Lo)
	w.u64(v.Hi)
}

func (w *fieldWriter) bytes(b []byte) {
	if w.err != nil {
		return
	}
	w.err = w.enc.WriteBytes(b, false)
}

func (w *fieldWriter) pubkey(pk solana.PublicKey) {
	w.bytes(pk[:])
}

func (w *fieldWriter) finish(version Version) ([]byte, error) {
	if w.err != nil {
		return nil, fmt.Errorf("encode %s layout: %w", version, w.err)
	}
	out := w.buf.Bytes()
	if len(out) != version.Size() {
		return nil, fmt.Errorf("encode %s layout: wrote %d bytes, want %d", version, len(out), version.Size())
	}
	return out, nil
}
