// Package orderbook holds the read-only view of an order-book side that
// price extraction consumes. Venue decoders implement it.
package orderbook

// Handle addresses a node inside a side's node storage.
type Handle uint32

type Node interface {
	IsLeaf() bool
	// Price is the raw price in venue ticks carried by a leaf key.
	Price() uint64
}

type Tree interface {
	// Minimum returns the handle of the lowest-keyed leaf, false when the side is empty.
	Minimum() (Handle, bool)
	// Maximum returns the handle of the highest-keyed leaf, false when the side is empty.
	Maximum() (Handle, bool)
	Resolve(h Handle) (Node, bool)
}
