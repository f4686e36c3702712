package pricing

import "errors"

// Account presence and batch shape.
var (
	ErrInsufficientAccounts     = errors.New("batched read returned an unexpected account count")
	ErrMarketAccountMissing     = errors.New("market account missing")
	ErrOpenOrdersAccountMissing = errors.New("open orders account missing")
	ErrRentAccountMissing       = errors.New("rent sysvar account missing")
	ErrAsksAccountMissing       = errors.New("asks account missing")
	ErrBidsAccountMissing       = errors.New("bids account missing")
	ErrAmmAccountMissing        = errors.New("amm account missing")
	ErrTokenAccountMissing      = errors.New("token account missing")
)

// Order-book shape.
var (
	ErrNoAsks             = errors.New("no asks")
	ErrNoBids             = errors.New("no bids")
	ErrAskNodeUnavailable = errors.New("best ask node unavailable")
	ErrBidNodeUnavailable = errors.New("best bid node unavailable")
	ErrAskNodeNotLeaf     = errors.New("best ask node is not a leaf")
	ErrBidNodeNotLeaf     = errors.New("best bid node is not a leaf")
)

var (
	ErrUnsupportedPricePair = errors.New("unsupported price pair")
	ErrUnknownPool          = errors.New("unknown pool")
	ErrReserveUnderflow     = errors.New("pnl reserve exceeds pool balance")
	ErrReserveOverflow      = errors.New("pool balance overflows u64")
)
