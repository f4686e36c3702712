package amm

import (
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// LayoutV4 is the 752-byte pool record with fractional fees and swap
// accounting counters.
type LayoutV4 struct {
	Status              uint64 `json:"status"`
	Nonce               uint64 `json:"nonce"`
	OrderNum            uint64 `json:"order_num"`
	Depth               uint64 `json:"depth"`
	CoinDecimals        uint64 `json:"coin_decimals"`
	PcDecimals          uint64 `json:"pc_decimals"`
	State               uint64 `json:"state"`
	ResetFlag           uint64 `json:"reset_flag"`
	MinSize             uint64 `json:"min_size"`
	VolMaxCutRatio      uint64 `json:"vol_max_cut_ratio"`
	AmountWaveRatio     uint64 `json:"amount_wave_ratio"`
	CoinLotSize         uint64 `json:"coin_lot_size"`
	PcLotSize           uint64 `json:"pc_lot_size"`
	MinPriceMultiplier  uint64 `json:"min_price_multiplier"`
	MaxPriceMultiplier  uint64 `json:"max_price_multiplier"`
	SystemDecimalsValue uint64 `json:"system_decimals_value"`
	MinSeparateNumer    uint64 `json:"min_separate_numerator"`
	MinSeparateDenom    uint64 `json:"min_separate_denominator"`
	TradeFeeNumer       uint64 `json:"trade_fee_numerator"`
	TradeFeeDenom       uint64 `json:"trade_fee_denominator"`
	PnlNumer            uint64 `json:"pnl_numerator"`
	PnlDenom            uint64 `json:"pnl_denominator"`
	SwapFeeNumer        uint64 `json:"swap_fee_numerator"`
	SwapFeeDenom        uint64 `json:"swap_fee_denominator"`
	NeedTakePnlCoin     uint64 `json:"need_take_pnl_coin"`
	NeedTakePnlPc       uint64 `json:"need_take_pnl_pc"`
	TotalPnlPc          uint64 `json:"total_pnl_pc"`
	TotalPnlCoin        uint64 `json:"total_pnl_coin"`

	PoolTotalDepositPc   bin.Uint128 `json:"pool_total_deposit_pc"`
	PoolTotalDepositCoin bin.Uint128 `json:"pool_total_deposit_coin"`
	SwapCoinInAmount     bin.Uint128 `json:"swap_coin_in_amount"`
	SwapPcOutAmount      bin.Uint128 `json:"swap_pc_out_amount"`
	SwapCoin2PcFee       uint64      `json:"swap_coin_2_pc_fee"`
	SwapPcInAmount       bin.Uint128 `json:"swap_pc_in_amount"`
	SwapCoinOutAmount    bin.Uint128 `json:"swap_coin_out_amount"`
	SwapPc2CoinFee       uint64      `json:"swap_pc_2_coin_fee"`

	PoolCoinTokenAccount   solana.PublicKey `json:"pool_coin_token_account"`
	PoolPcTokenAccount     solana.PublicKey `json:"pool_pc_token_account"`
	CoinMint               solana.PublicKey `json:"coin_mint"`
	PcMint                 solana.PublicKey `json:"pc_mint"`
	LpMint                 solana.PublicKey `json:"lp_mint"`
	AmmOpenOrders          solana.PublicKey `json:"amm_open_orders"`
	SerumMarket            solana.PublicKey `json:"serum_market"`
	SerumProgramID         solana.PublicKey `json:"serum_program_id"`
	AmmTargetOrders        solana.PublicKey `json:"amm_target_orders"`
	PoolWithdrawQueue      solana.PublicKey `json:"pool_withdraw_queue"`
	PoolTempLpTokenAccount solana.PublicKey `json:"pool_temp_lp_token_account"`
	AmmOwner               solana.PublicKey `json:"amm_owner"`
	PnlOwner               solana.PublicKey `json:"pnl_owner"`
}

func DecodeV4(data []byte) (*LayoutV4, error) {
	if err := checkLength(data, V4); err != nil {
		return nil, err
	}
	r := newFieldReader(data)
	l := &LayoutV4{}
	for _, field := range l.u64Fields() {
		*field = r.u64()
	}
	l.PoolTotalDepositPc = r.u128()
	l.PoolTotalDepositCoin = r.u128()
	l.SwapCoinInAmount = r.u128()
	l.SwapPcOutAmount = r.u128()
	l.SwapCoin2PcFee = r.u64()
	l.SwapPcInAmount = r.u128()
	l.SwapCoinOutAmount = r.u128()
	l.SwapPc2CoinFee = r.u64()
	for _, field := range l.keyFields() {
		*field = r.pubkey()
	}
	if err := r.finish(V4); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *LayoutV4) Encode() ([]byte, error) {
	w := newFieldWriter(LayoutV4Size)
	for _, field := range l.u64Fields() {
		w.u64(*field)
	}
	w.u128(l.PoolTotalDepositPc)
	w.u128(l.PoolTotalDepositCoin)
	w.u128(l.SwapCoinInAmount)
	w.u128(l.SwapPcOutAmount)
	w.u64(l.SwapCoin2PcFee)
	w.u128(l.SwapPcInAmount)
	w.u128(l.SwapCoinOutAmount)
	w.u64(l.SwapPc2CoinFee)
	for _, field := range l.keyFields() {
		w.pubkey(*field)
	}
	return w.finish(V4)
}

func (l *LayoutV4) Info() PoolInfo {
	return PoolInfo{
		Version:              V4,
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

func (l *LayoutV4) u64Fields() []*uint64 {
	return []*uint64{
		&l.Status, &l.Nonce, &l.OrderNum, &l.Depth,
		&l.CoinDecimals, &l.PcDecimals, &l.State, &l.ResetFlag,
		&l.MinSize, &l.VolMaxCutRatio, &l.AmountWaveRatio,
		&l.CoinLotSize, &l.PcLotSize,
		&l.MinPriceMultiplier, &l.MaxPriceMultiplier, &l.SystemDecimalsValue,
		&l.MinSeparateNumer, &l.MinSeparateDenom,
		&l.TradeFeeNumer, &l.TradeFeeDenom,
		&l.PnlNumer, &l.PnlDenom,
		&l.SwapFeeNumer, &l.SwapFeeDenom,
		&l.NeedTakePnlCoin, &l.NeedTakePnlPc,
		&l.TotalPnlPc, &l.TotalPnlCoin,
	}
}

func (l *LayoutV4) keyFields() []*solana.PublicKey {
	return []*solana.PublicKey{
		&l.PoolCoinTokenAccount, &l.PoolPcTokenAccount,
		&l.CoinMint, &l.PcMint, &l.LpMint,
		&l.AmmOpenOrders, &l.SerumMarket, &l.SerumProgramID,
		&l.AmmTargetOrders, &l.PoolWithdrawQueue,
		&l.PoolTempLpTokenAccount, &l.AmmOwner, &l.PnlOwner,
	}
}
