package serum

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const (
	OpenOrdersSize = 3228
	maxOrderSlots  = 128
)

type OpenOrders struct {
	Flags           AccountFlag                `json:"flags"`
	Market          solana.PublicKey           `json:"market"`
	Owner           solana.PublicKey           `json:"owner"`
	NativeCoinFree  uint64                     `json:"native_coin_free"`
	NativeCoinTotal uint64                     `json:"native_coin_total"`
	NativePcFree    uint64                     `json:"native_pc_free"`
	NativePcTotal   uint64                     `json:"native_pc_total"`
	FreeSlotBits    bin.Uint128                `json:"free_slot_bits"`
	IsBidBits       bin.Uint128                `json:"is_bid_bits"`
	Orders          [maxOrderSlots]bin.Uint128 `json:"-"`
	ClientOrderIDs  [maxOrderSlots]uint64      `json:"-"`
	ReferrerRebates uint64                     `json:"referrer_rebates_accrued"`
}

func DecodeOpenOrders(data []byte) (*OpenOrders, error) {
	if len(data) != OpenOrdersSize {
		return nil, fmt.Errorf("%w: open orders expects %d bytes, got %d", ErrInvalidAccount, OpenOrdersSize, len(data))
	}
	body, err := stripPadding("open orders", data)
	if err != nil {
		return nil, err
	}

	r := newFieldReader(body)
	oo := &OpenOrders{}
	oo.Flags = AccountFlag(r.u64())
	oo.Market = r.pubkey()
	oo.Owner = r.pubkey()
	oo.NativeCoinFree = r.u64()
	oo.NativeCoinTotal = r.u64()
	oo.NativePcFree = r.u64()
	oo.NativePcTotal = r.u64()
	oo.FreeSlotBits = r.u128()
	oo.IsBidBits = r.u128()
	for i := range oo.Orders {
		oo.Orders[i] = r.u128()
	}
	for i := range oo.ClientOrderIDs {
		oo.ClientOrderIDs[i] = r.u64()
	}
	oo.ReferrerRebates = r.u64()
	if err := r.done("open orders"); err != nil {
		return nil, err
	}
	if !oo.Flags.Has(FlagInitialized|FlagOpenOrders) || oo.Flags.Has(FlagMarket) {
		return nil, fmt.Errorf("%w: open orders flags=%#x", ErrInvalidFlags, uint64(oo.Flags))
	}
	return oo, nil
}

// LoadOpenOrders decodes an open-orders account and checks ownership, the
// market it belongs to, and rent exemption of its balance.
func LoadOpenOrders(address, owner solana.PublicKey, lamports uint64, data []byte, programID, market solana.PublicKey, rent Rent) (*OpenOrders, error) {
	if err := CheckOwner(address, owner, programID); err != nil {
		return nil, err
	}
	if !rent.IsExempt(lamports, len(data)) {
		return nil, fmt.Errorf("%w: open orders %s holds %d lamports, needs %d", ErrNotRentExempt, address, lamports, rent.MinimumBalance(len(data)))
	}
	oo, err := DecodeOpenOrders(data)
	if err != nil {
		return nil, fmt.Errorf("open orders %s: %w", address, err)
	}
	if !oo.Market.Equals(market) {
		return nil, fmt.Errorf("%w: %s belongs to %s, want %s", ErrMarketMismatch, address, oo.Market, market)
	}
	return oo, nil
}

func (oo *OpenOrders) Encode() []byte {
	body := make([]byte, 0, OpenOrdersSize-len(headPadding)-len(tailPadding))
	u64 := func(v uint64) { body = binary.LittleEndian.AppendUint64(body, v) }
	u128 := func(v bin.Uint128) {
		u64(v.Lo)
		u64(v.Hi)
	}

	u64(uint64(oo.Flags))
	body = append(body, oo.Market[:]...)
	body = append(body, oo.Owner[:]...)
	u64(oo.NativeCoinFree)
	u64(oo.NativeCoinTotal)
	u64(oo.NativePcFree)
	u64(oo.NativePcTotal)
	u128(oo.FreeSlotBits)
	u128(oo.IsBidBits)
	for _, order := range oo.Orders {
		u128(order)
	}
	for _, id := range oo.ClientOrderIDs {
		u64(id)
	}
	u64(oo.ReferrerRebates)
	return wrapPadding(body)
}
