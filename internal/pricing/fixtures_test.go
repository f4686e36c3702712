package pricing

import (
	"context"
	"sort"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/lp-pricer/internal/amm"
	"github.com/coldbell/lp-pricer/internal/chain"
	"github.com/coldbell/lp-pricer/internal/config"
	"github.com/coldbell/lp-pricer/internal/serum"
	"github.com/coldbell/lp-pricer/internal/spl/spltest"
)

var fixtureRent = serum.Rent{LamportsPerByteYear: 3480, ExemptionThreshold: 2, BurnPercent: 50}

// world is an in-memory chain holding markets, books and pools for a small
// synthetic registry.
type world struct {
	t        *testing.T
	src      *chain.StaticSource
	registry *config.Registry
	markets  map[string]*serum.Market
}

func newKey() solana.PublicKey {
	return solana.NewWallet().PublicKey()
}

func newWorld(t *testing.T) *world {
	t.Helper()
	registry := &config.Registry{
		Network:        "test",
		SerumProgramID: newKey(),
		ReferenceAsset: "USDC",
		Assets: map[string]config.Asset{
			"USDC": {Symbol: "USDC", Mint: newKey(), Decimals: 6},
			"XYZ":  {Symbol: "XYZ", Mint: newKey(), Decimals: 6, PivotMarket: "XYZ-USDC"},
			"QQQ":  {Symbol: "QQQ", Mint: newKey(), Decimals: 9},
		},
		Markets: map[string]config.Market{},
		Pools:   map[string]config.Pool{},
	}
	w := &world{
		t:        t,
		src:      chain.NewStaticSource(),
		registry: registry,
		markets:  map[string]*serum.Market{},
	}
	w.src.Put(chain.Account{
		Address:  solana.SysVarRentPubkey,
		Owner:    solana.SysVarRentPubkey,
		Lamports: 1,
		Data:     fixtureRent.Encode(),
	})
	return w
}

// addMarket stores a market and both book sides built from raw tick prices.
func (w *world) addMarket(name, base, quote string, coinLot, pcLot uint64, asks, bids []uint64) {
	address := newKey()
	m := &serum.Market{
		Flags:       serum.FlagInitialized | serum.FlagMarket,
		OwnAddress:  address,
		CoinMint:    w.registry.Assets[base].Mint,
		PcMint:      w.registry.Assets[quote].Mint,
		Asks:        newKey(),
		Bids:        newKey(),
		CoinLotSize: coinLot,
		PcLotSize:   pcLot,
	}
	program := w.registry.SerumProgramID
	w.src.Put(chain.Account{Address: address, Owner: program, Lamports: 1, Data: m.Encode()})
	w.src.Put(chain.Account{Address: m.Asks, Owner: program, Lamports: 1, Data: bookSide(serum.FlagAsks, asks).Encode()})
	w.src.Put(chain.Account{Address: m.Bids, Owner: program, Lamports: 1, Data: bookSide(serum.FlagBids, bids).Encode()})

	w.registry.Markets[name] = config.Market{Name: name, Address: address, Base: base, Quote: quote}
	w.markets[name] = m
}

// bookSide lays the prices out as a right-leaning chain of inner nodes so
// the lowest price sits leftmost and the highest rightmost.
func bookSide(side serum.AccountFlag, prices []uint64) serum.SlabBuilder {
	sorted := append([]uint64(nil), prices...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	b := serum.SlabBuilder{
		Flags:  serum.FlagInitialized | side,
		Header: serum.SlabHeader{LeafCount: uint64(len(sorted))},
	}
	switch len(sorted) {
	case 0:
		return b
	case 1:
		b.Nodes = []serum.SlabNode{{Tag: serum.TagLeaf, Key: serum.OrderKey(sorted[0], 1), Quantity: 1}}
		return b
	}

	inner := len(sorted) - 1
	leafAt := func(i int) uint32 { return uint32(inner + i) }
	for i := 0; i < inner; i++ {
		right := uint32(i + 1)
		if i == inner-1 {
			right = leafAt(i + 1)
		}
		b.Nodes = append(b.Nodes, serum.SlabNode{Tag: serum.TagInner, Children: [2]uint32{leafAt(i), right}})
	}
	for i, price := range sorted {
		b.Nodes = append(b.Nodes, serum.SlabNode{Tag: serum.TagLeaf, Key: serum.OrderKey(price, uint64(i+1)), Quantity: 10})
	}
	b.Header.BumpIndex = uint64(len(b.Nodes))
	return b
}

type poolFixture struct {
	name        string
	market      string
	layout      amm.Version
	stable      bool
	coinBalance uint64
	pcBalance   uint64
	ooCoinTotal uint64
	ooPcTotal   uint64
	pnlCoin     uint64
	pnlPc       uint64
	lpSupply    uint64
	lpDecimals  uint8
}

type poolAccounts struct {
	ammID      solana.PublicKey
	openOrders solana.PublicKey
	lpMint     solana.PublicKey
	coin       solana.PublicKey
	pc         solana.PublicKey
}

func (w *world) addPool(f poolFixture) poolAccounts {
	w.t.Helper()
	market, ok := w.registry.Markets[f.market]
	require.True(w.t, ok, "market %s must be added first", f.market)

	accs := poolAccounts{
		ammID:      newKey(),
		openOrders: newKey(),
		lpMint:     newKey(),
		coin:       newKey(),
		pc:         newKey(),
	}
	program := w.registry.SerumProgramID

	oo := &serum.OpenOrders{
		Flags:           serum.FlagInitialized | serum.FlagOpenOrders,
		Market:          market.Address,
		Owner:           accs.ammID,
		NativeCoinTotal: f.ooCoinTotal,
		NativePcTotal:   f.ooPcTotal,
	}
	w.src.Put(chain.Account{
		Address:  accs.openOrders,
		Owner:    program,
		Lamports: fixtureRent.MinimumBalance(serum.OpenOrdersSize),
		Data:     oo.Encode(),
	})

	var raw []byte
	var err error
	switch f.layout {
	case amm.V3:
		raw, err = (&amm.LayoutV3{
			Status: 1, CoinDecimals: 6, PcDecimals: 9,
			NeedTakePnlCoin: f.pnlCoin, NeedTakePnlPc: f.pnlPc,
			PoolCoinTokenAccount: accs.coin, PoolPcTokenAccount: accs.pc,
			LpMint: accs.lpMint, AmmOpenOrders: accs.openOrders,
			SerumMarket: market.Address, SerumProgramID: program,
		}).Encode()
	default:
		raw, err = (&amm.LayoutV4{
			Status: 1, CoinDecimals: 6, PcDecimals: 9,
			NeedTakePnlCoin: f.pnlCoin, NeedTakePnlPc: f.pnlPc,
			PoolCoinTokenAccount: accs.coin, PoolPcTokenAccount: accs.pc,
			LpMint: accs.lpMint, AmmOpenOrders: accs.openOrders,
			SerumMarket: market.Address, SerumProgramID: program,
		}).Encode()
	}
	require.NoError(w.t, err)
	w.src.Put(chain.Account{Address: accs.ammID, Owner: newKey(), Lamports: 1, Data: raw})

	w.src.Put(chain.Account{Address: accs.lpMint, Owner: solana.TokenProgramID, Lamports: 1, Data: spltest.Mint(f.lpSupply, f.lpDecimals)})
	w.src.Put(chain.Account{Address: accs.coin, Owner: solana.TokenProgramID, Lamports: 1, Data: spltest.TokenAccount(w.registry.Assets[market.Base].Mint, accs.ammID, f.coinBalance)})
	w.src.Put(chain.Account{Address: accs.pc, Owner: solana.TokenProgramID, Lamports: 1, Data: spltest.TokenAccount(w.registry.Assets[market.Quote].Mint, accs.ammID, f.pcBalance)})

	w.registry.Pools[f.name] = config.Pool{
		Name:       f.name,
		AmmID:      accs.ammID,
		OpenOrders: accs.openOrders,
		LPMint:     accs.lpMint,
		Market:     f.market,
		Base:       market.Base,
		Quote:      market.Quote,
		Layout:     f.layout,
		StablePair: f.stable,
	}
	return accs
}

// standardWorld holds pool XYZ-QQQ whose reserves are 1_000_000 XYZ (6
// decimals, $0.50) and 500_000_000 QQQ (9 decimals, $100) against an LP
// supply of 100 (6 decimals).
func standardWorld(t *testing.T, layout amm.Version) (*world, poolAccounts) {
	w := newWorld(t)
	// tick 0.5, best ask 1 tick
	w.addMarket("XYZ-USDC", "XYZ", "USDC", 2, 1, []uint64{3, 1, 2}, []uint64{1})
	// tick 1e-3, best ask 5 ticks
	w.addMarket("XYZ-QQQ", "XYZ", "QQQ", 1, 1, []uint64{9, 5, 7}, []uint64{4, 2})
	accs := w.addPool(poolFixture{
		name:        "XYZ-QQQ",
		market:      "XYZ-QQQ",
		layout:      layout,
		coinBalance: 900_000,
		ooCoinTotal: 150_000,
		pnlCoin:     50_000,
		pcBalance:   450_000_000,
		ooPcTotal:   60_000_000,
		pnlPc:       10_000_000,
		lpSupply:    100,
		lpDecimals:  6,
	})
	require.NoError(t, w.registry.Validate())
	return w, accs
}

// truncatingSource drops the last account of batches of a given size.
type truncatingSource struct {
	chain.AccountSource
	batchSize int
}

func (s truncatingSource) GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*chain.Account, error) {
	out, err := s.AccountSource.GetMultipleAccounts(ctx, keys)
	if err != nil || len(keys) != s.batchSize {
		return out, err
	}
	return out[:len(out)-1], nil
}
