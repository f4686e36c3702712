package amm

import (
	"github.com/gagliardetto/solana-go"
)

// LayoutV3 is the 680-byte pool record used by the first generation of
// pools (fee and pnl expressed as single ratios).
type LayoutV3 struct {
	Status              uint64 `json:"status"`
	Nonce               uint64 `json:"nonce"`
	OrderNum            uint64 `json:"order_num"`
	Depth               uint64 `json:"depth"`
	CoinDecimals        uint64 `json:"coin_decimals"`
	PcDecimals          uint64 `json:"pc_decimals"`
	State               uint64 `json:"state"`
	ResetFlag           uint64 `json:"reset_flag"`
	Fee                 uint64 `json:"fee"`
	MinSeparate         uint64 `json:"min_separate"`
	MinSize             uint64 `json:"min_size"`
	VolMaxCutRatio      uint64 `json:"vol_max_cut_ratio"`
	PnlRatio            uint64 `json:"pnl_ratio"`
	AmountWaveRatio     uint64 `json:"amount_wave_ratio"`
	CoinLotSize         uint64 `json:"coin_lot_size"`
	PcLotSize           uint64 `json:"pc_lot_size"`
	MinPriceMultiplier  uint64 `json:"min_price_multiplier"`
	MaxPriceMultiplier  uint64 `json:"max_price_multiplier"`
	NeedTakePnlCoin     uint64 `json:"need_take_pnl_coin"`
	NeedTakePnlPc       uint64 `json:"need_take_pnl_pc"`
	TotalPnlX           uint64 `json:"total_pnl_x"`
	TotalPnlY           uint64 `json:"total_pnl_y"`
	SystemDecimalsValue uint64 `json:"system_decimals_value"`

	Reserved [16]byte `json:"-"`

	PoolCoinTokenAccount   solana.PublicKey `json:"pool_coin_token_account"`
	PoolPcTokenAccount     solana.PublicKey `json:"pool_pc_token_account"`
	CoinMint               solana.PublicKey `json:"coin_mint"`
	PcMint                 solana.PublicKey `json:"pc_mint"`
	LpMint                 solana.PublicKey `json:"lp_mint"`
	AmmOpenOrders          solana.PublicKey `json:"amm_open_orders"`
	SerumMarket            solana.PublicKey `json:"serum_market"`
	SerumProgramID         solana.PublicKey `json:"serum_program_id"`
	AmmTargetOrders        solana.PublicKey `json:"amm_target_orders"`
	AmmQuantities          solana.PublicKey `json:"amm_quantities"`
	PoolWithdrawQueue      solana.PublicKey `json:"pool_withdraw_queue"`
	PoolTempLpTokenAccount solana.PublicKey `json:"pool_temp_lp_token_account"`
	AmmOwner               solana.PublicKey `json:"amm_owner"`
	PnlOwner               solana.PublicKey `json:"pnl_owner"`
	SrmTokenAccount        solana.PublicKey `json:"srm_token_account"`
}

func DecodeV3(data []byte) (*LayoutV3, error) {
	if err := checkLength(data, V3); err != nil {
		return nil, err
	}
	r := newFieldReader(data)
	l := &LayoutV3{}
	for _, field := range l.u64Fields() {
		*field = r.u64()
	}
	copy(l.Reserved[:], r.bytes(len(l.Reserved)))
	for _, field := range l.keyFields() {
		*field = r.pubkey()
	}
	if err := r.finish(V3); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LayoutV3) Encode() ([]byte, error) {
	w := newFieldWriter(LayoutV3Size)
	for _, field := range l.u64Fields() {
		w.u64(*field)
	}
	w.bytes(l.Reserved[:])
	for _, field := range l.keyFields() {
		w.pubkey(*field)
	}
	return w.finish(V3)
}

func (l *LayoutV3) Info() PoolInfo {
	return PoolInfo{
		Version:              V3,
		Status:               l.Status,
		CoinDecimals:         l.CoinDecimals,
		PcDecimals:           l.PcDecimals,
		CoinLotSize:          l.CoinLotSize,
		PcLotSize:            l.PcLotSize,
		NeedTakePnlCoin:      l.NeedTakePnlCoin,
		NeedTakePnlPc:        l.NeedTakePnlPc,
		PoolCoinTokenAccount: l.PoolCoinTokenAccount,
		PoolPcTokenAccount:   l.PoolPcTokenAccount,
		CoinMint:             l.CoinMint,
		PcMint:               l.PcMint,
		LpMint:               l.LpMint,
		OpenOrders:           l.AmmOpenOrders,
		SerumMarket:          l.SerumMarket,
		SerumProgramID:       l.SerumProgramID,
	}
}

// u64Fields lists the leading integer fields in wire order.
func (l *LayoutV3) u64Fields() []*uint64 {
	return []*uint64{
		&l.Status, &l.Nonce, &l.OrderNum, &l.Depth,
		&l.CoinDecimals, &l.PcDecimals, &l.State, &l.ResetFlag,
		&l.Fee, &l.MinSeparate, &l.MinSize, &l.VolMaxCutRatio,
		&l.PnlRatio, &l.AmountWaveRatio, &l.CoinLotSize, &l.PcLotSize,
		&l.MinPriceMultiplier, &l.MaxPriceMultiplier,
		&l.NeedTakePnlCoin, &l.NeedTakePnlPc,
		&l.TotalPnlX, &l.TotalPnlY, &l.SystemDecimalsValue,
	}
}

func (l *LayoutV3) keyFields() []*solana.PublicKey {
	return []*solana.PublicKey{
		&l.PoolCoinTokenAccount, &l.PoolPcTokenAccount,
		&l.CoinMint, &l.PcMint, &l.LpMint,
		&l.AmmOpenOrders, &l.SerumMarket, &l.SerumProgramID,
		&l.AmmTargetOrders, &l.AmmQuantities, &l.PoolWithdrawQueue,
		&l.PoolTempLpTokenAccount, &l.AmmOwner, &l.PnlOwner,
		&l.SrmTokenAccount,
	}
}
