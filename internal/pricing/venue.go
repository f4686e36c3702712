package pricing

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/lp-pricer/internal/chain"
	"github.com/coldbell/lp-pricer/internal/serum"
)

// venueLoader reads serum market state, open orders and book sides through
// batched account reads.
type venueLoader struct {
	source    chain.AccountSource
	programID solana.PublicKey
}

type venueState struct {
	market     *serum.Market
	openOrders *serum.OpenOrders
	rent       serum.Rent
}

// loadVenueState fetches [market, open orders, rent sysvar] in one round trip.
func (l venueLoader) loadVenueState(ctx context.Context, market, openOrders solana.PublicKey) (venueState, error) {
	keys := []solana.PublicKey{market, openOrders, solana.SysVarRentPubkey}
	accounts, err := l.source.GetMultipleAccounts(ctx, keys)
	if err != nil {
		return venueState{}, fmt.Errorf("fetch market state: %w", err)
	}
	if len(accounts) != len(keys) {
		return venueState{}, fmt.Errorf("%w: market state batch returned %d of %d", ErrInsufficientAccounts, len(accounts), len(keys))
	}
	if accounts[0] == nil {
		return venueState{}, fmt.Errorf("%w: %s", ErrMarketAccountMissing, market)
	}
	if accounts[1] == nil {
		return venueState{}, fmt.Errorf("%w: %s", ErrOpenOrdersAccountMissing, openOrders)
	}
	if accounts[2] == nil {
		return venueState{}, fmt.Errorf("%w: %s", ErrRentAccountMissing, solana.SysVarRentPubkey)
	}

	rent, err := serum.DecodeRent(accounts[2].Data)
	if err != nil {
		return venueState{}, fmt.Errorf("decode rent sysvar: %w", err)
	}
	m, err := serum.LoadMarket(market, accounts[0].Owner, accounts[0].Data, l.programID)
	if err != nil {
		return venueState{}, err
	}
	oo, err := serum.LoadOpenOrders(openOrders, accounts[1].Owner, accounts[1].Lamports, accounts[1].Data, l.programID, market, rent)
	if err != nil {
		return venueState{}, err
	}
	return venueState{market: m, openOrders: oo, rent: rent}, nil
}

// loadMarket fetches a market on its own, for pivot markets where the open
// orders are irrelevant.
func (l venueLoader) loadMarket(ctx context.Context, market solana.PublicKey) (*serum.Market, error) {
	acc, err := l.source.GetAccount(ctx, market)
	if err != nil {
		return nil, fmt.Errorf("fetch market %s: %w", market, err)
	}
	if acc == nil {
		return nil, fmt.Errorf("%w: %s", ErrMarketAccountMissing, market)
	}
	return serum.LoadMarket(market, acc.Owner, acc.Data, l.programID)
}

// loadBook fetches [asks, bids] in one round trip.
func (l venueLoader) loadBook(ctx context.Context, m *serum.Market) (OrderBook, error) {
	keys := []solana.PublicKey{m.Asks, m.Bids}
	accounts, err := l.source.GetMultipleAccounts(ctx, keys)
	if err != nil {
		return OrderBook{}, fmt.Errorf("fetch order book: %w", err)
	}
	if len(accounts) != len(keys) {
		return OrderBook{}, fmt.Errorf("%w: order book batch returned %d of %d", ErrInsufficientAccounts, len(accounts), len(keys))
	}
	if accounts[0] == nil {
		return OrderBook{}, fmt.Errorf("%w: %s", ErrAsksAccountMissing, m.Asks)
	}
	if accounts[1] == nil {
		return OrderBook{}, fmt.Errorf("%w: %s", ErrBidsAccountMissing, m.Bids)
	}

	asks, err := serum.LoadSlab(m.Asks, accounts[0].Owner, accounts[0].Data, l.programID, serum.FlagAsks)
	if err != nil {
		return OrderBook{}, fmt.Errorf("load asks: %w", err)
	}
	bids, err := serum.LoadSlab(m.Bids, accounts[1].Owner, accounts[1].Data, l.programID, serum.FlagBids)
	if err != nil {
		return OrderBook{}, fmt.Errorf("load bids: %w", err)
	}
	return OrderBook{
		Asks:        asks,
		Bids:        bids,
		CoinLotSize: m.CoinLotSize,
		PcLotSize:   m.PcLotSize,
	}, nil
}

// scaledBest returns the best ask and bid converted to display prices.
func scaledBest(book OrderBook, baseDecimals, quoteDecimals uint8) (ask, bid, tick float64, err error) {
	rawAsk, rawBid, err := BestAskBid(book)
	if err != nil {
		return 0, 0, 0, err
	}
	tick = TickSize(book.CoinLotSize, book.PcLotSize, baseDecimals, quoteDecimals)
	return float64(rawAsk) * tick, float64(rawBid) * tick, tick, nil
}
