package pricing

import (
	"github.com/coldbell/lp-pricer/internal/orderbook"
)

type (
	NodeRef   = orderbook.Handle
	TreeNode  = orderbook.Node
	PriceTree = orderbook.Tree
)

// OrderBook is one venue market's two sides plus its lot sizes.
type OrderBook struct {
	Asks        PriceTree
	Bids        PriceTree
	CoinLotSize uint64
	PcLotSize   uint64
}

// BestAskBid returns the raw tick prices of the lowest ask and the highest
// bid. Both sides are located before either node is read, so an empty side
// is reported ahead of an unreadable node on the other.
func BestAskBid(book OrderBook) (ask, bid uint64, err error) {
	askRef, err := locate(book.Asks, PriceTree.Minimum, ErrNoAsks)
	if err != nil {
		return 0, 0, err
	}
	bidRef, err := locate(book.Bids, PriceTree.Maximum, ErrNoBids)
	if err != nil {
		return 0, 0, err
	}
	ask, err = leafPrice(book.Asks, askRef, ErrAskNodeUnavailable, ErrAskNodeNotLeaf)
	if err != nil {
		return 0, 0, err
	}
	bid, err = leafPrice(book.Bids, bidRef, ErrBidNodeUnavailable, ErrBidNodeNotLeaf)
	if err != nil {
		return 0, 0, err
	}
	return ask, bid, nil
}

func locate(tree PriceTree, find func(PriceTree) (NodeRef, bool), errEmpty error) (NodeRef, error) {
	if tree == nil {
		return 0, errEmpty
	}
	ref, ok := find(tree)
	if !ok {
		return 0, errEmpty
	}
	return ref, nil
}

func leafPrice(tree PriceTree, ref NodeRef, errUnavailable, errNotLeaf error) (uint64, error) {
	node, ok := tree.Resolve(ref)
	if !ok || node == nil {
		return 0, errUnavailable
	}
	if !node.IsLeaf() {
		return 0, errNotLeaf
	}
	return node.Price(), nil
}
