package serum

import (
	"encoding/binary"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

const MarketStateSize = 388

type Market struct {
	Flags                  AccountFlag      `json:"flags"`
	OwnAddress             solana.PublicKey `json:"own_address"`
	VaultSignerNonce       uint64           `json:"vault_signer_nonce"`
	CoinMint               solana.PublicKey `json:"coin_mint"`
	PcMint                 solana.PublicKey `json:"pc_mint"`
	CoinVault              solana.PublicKey `json:"coin_vault"`
	CoinDepositsTotal      uint64           `json:"coin_deposits_total"`
	CoinFeesAccrued        uint64           `json:"coin_fees_accrued"`
	PcVault                solana.PublicKey `json:"pc_vault"`
	PcDepositsTotal        uint64           `json:"pc_deposits_total"`
	PcFeesAccrued          uint64           `json:"pc_fees_accrued"`
	PcDustThreshold        uint64           `json:"pc_dust_threshold"`
	RequestQueue           solana.PublicKey `json:"request_queue"`
	EventQueue             solana.PublicKey `json:"event_queue"`
	Bids                   solana.PublicKey `json:"bids"`
	Asks                   solana.PublicKey `json:"asks"`
	CoinLotSize            uint64           `json:"coin_lot_size"`
	PcLotSize              uint64           `json:"pc_lot_size"`
	FeeRateBps             uint64           `json:"fee_rate_bps"`
	ReferrerRebatesAccrued uint64           `json:"referrer_rebates_accrued"`
}

func DecodeMarket(data []byte) (*Market, error) {
	if len(data) != MarketStateSize {
		return nil, fmt.Errorf("%w: market expects %d bytes, got %d", ErrInvalidAccount, MarketStateSize, len(data))
	}
	body, err := stripPadding("market", data)
	if err != nil {
		return nil, err
	}

	r := newFieldReader(body)
	m := &Market{}
	m.Flags = AccountFlag(r.u64())
	m.OwnAddress = r.pubkey()
	m.VaultSignerNonce = r.u64()
	m.CoinMint = r.pubkey()
	m.PcMint = r.pubkey()
	m.CoinVault = r.pubkey()
	m.CoinDepositsTotal = r.u64()
	m.CoinFeesAccrued = r.u64()
	m.PcVault = r.pubkey()
	m.PcDepositsTotal = r.u64()
	m.PcFeesAccrued = r.u64()
	m.PcDustThreshold = r.u64()
	m.RequestQueue = r.pubkey()
	m.EventQueue = r.pubkey()
	m.Bids = r.pubkey()
	m.Asks = r.pubkey()
	m.CoinLotSize = r.u64()
	m.PcLotSize = r.u64()
	m.FeeRateBps = r.u64()
	m.ReferrerRebatesAccrued = r.u64()
	if err := r.done("market"); err != nil {
		return nil, err
	}
	if !m.Flags.Has(FlagInitialized|FlagMarket) || m.Flags.Has(FlagOpenOrders) {
		return nil, fmt.Errorf("%w: market flags=%#x", ErrInvalidFlags, uint64(m.Flags))
	}
	return m, nil
}

// LoadMarket decodes a market account and checks it is owned by programID and
// records its own address.
func LoadMarket(address, owner solana.PublicKey, data []byte, programID solana.PublicKey) (*Market, error) {
	if err := CheckOwner(address, owner, programID); err != nil {
		return nil, err
	}
	m, err := DecodeMarket(data)
	if err != nil {
		return nil, fmt.Errorf("market %s: %w", address, err)
	}
	if !m.OwnAddress.Equals(address) {
		return nil, fmt.Errorf("%w: market %s records own address %s", ErrInvalidAccount, address, m.OwnAddress)
	}
	return m, nil
}

// Encode renders the market back into its padded account form.
func (m *Market) Encode() []byte {
	body := make([]byte, 0, MarketStateSize-len(headPadding)-len(tailPadding))
	u64 := func(v uint64) { body = binary.LittleEndian.AppendUint64(body, v) }
	key := func(pk solana.PublicKey) { body = append(body, pk[:]...) }

	u64(uint64(m.Flags))
	key(m.OwnAddress)
	u64(m.VaultSignerNonce)
	key(m.CoinMint)
	key(m.PcMint)
	key(m.CoinVault)
	u64(m.CoinDepositsTotal)
	u64(m.CoinFeesAccrued)
	key(m.PcVault)
	u64(m.PcDepositsTotal)
	u64(m.PcFeesAccrued)
	u64(m.PcDustThreshold)
	key(m.RequestQueue)
	key(m.EventQueue)
	key(m.Bids)
	key(m.Asks)
	u64(m.CoinLotSize)
	u64(m.PcLotSize)
	u64(m.FeeRateBps)
	u64(m.ReferrerRebatesAccrued)
	return wrapPadding(body)
}
