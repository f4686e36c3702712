package serum

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/coldbell/lp-pricer/internal/orderbook"
)

const (
	slabHeaderSize = 32
	slabNodeSize   = 72
)

type NodeTag uint32

const (
	TagUninitialized NodeTag = 0
	TagInner         NodeTag = 1
	TagLeaf          NodeTag = 2
	TagFree          NodeTag = 3
	TagLastFree      NodeTag = 4
)

type SlabHeader struct {
	BumpIndex    uint64 `json:"bump_index"`
	FreeListLen  uint64 `json:"free_list_len"`
	FreeListHead uint32 `json:"free_list_head"`
	Root         uint32 `json:"root"`
	LeafCount    uint64 `json:"leaf_count"`
}

// SlabNode is one 72-byte critbit node. Inner nodes use PrefixLen and
// Children; leaves use the order fields.
type SlabNode struct {
	Tag           NodeTag          `json:"tag"`
	PrefixLen     uint32           `json:"prefix_len,omitempty"`
	Key           bin.Uint128      `json:"key"`
	Children      [2]uint32        `json:"children,omitempty"`
	OwnerSlot     uint8            `json:"owner_slot,omitempty"`
	FeeTier       uint8            `json:"fee_tier,omitempty"`
	Owner         solana.PublicKey `json:"owner,omitempty"`
	Quantity      uint64           `json:"quantity,omitempty"`
	ClientOrderID uint64           `json:"client_order_id,omitempty"`
}

func (n SlabNode) IsLeaf() bool { return n.Tag == TagLeaf }

// Price is the upper 64 bits of the order key.
func (n SlabNode) Price() uint64 { return n.Key.Hi }

// Slab is a decoded bids or asks account. Nodes are parsed on access.
type Slab struct {
	Flags  AccountFlag `json:"flags"`
	Header SlabHeader  `json:"header"`
	nodes  []byte
}

var _ orderbook.Tree = (*Slab)(nil)

func DecodeSlab(data []byte) (*Slab, error) {
	body, err := stripPadding("slab", data)
	if err != nil {
		return nil, err
	}
	if len(body) < 8+slabHeaderSize {
		return nil, fmt.Errorf("%w: slab too short (%d bytes)", ErrInvalidAccount, len(data))
	}

	r := newFieldReader(body[:8+slabHeaderSize])
	s := &Slab{}
	s.Flags = AccountFlag(r.u64())
	s.Header.BumpIndex = r.u64()
	s.Header.FreeListLen = r.u64()
	s.Header.FreeListHead = r.u32()
	s.Header.Root = r.u32()
	s.Header.LeafCount = r.u64()
	if err := r.done("slab"); err != nil {
		return nil, err
	}
	if !s.Flags.Has(FlagInitialized) || !(s.Flags.Has(FlagBids) || s.Flags.Has(FlagAsks)) {
		return nil, fmt.Errorf("%w: slab flags=%#x", ErrInvalidFlags, uint64(s.Flags))
	}
	s.nodes = body[8+slabHeaderSize:]
	return s, nil
}

// LoadSlab decodes a bids or asks account and checks its owner and side.
func LoadSlab(address, owner solana.PublicKey, data []byte, programID solana.PublicKey, side AccountFlag) (*Slab, error) {
	if err := CheckOwner(address, owner, programID); err != nil {
		return nil, err
	}
	s, err := DecodeSlab(data)
	if err != nil {
		return nil, fmt.Errorf("slab %s: %w", address, err)
	}
	if !s.Flags.Has(side) {
		return nil, fmt.Errorf("%w: slab %s flags=%#x want side %#x", ErrInvalidFlags, address, uint64(s.Flags), uint64(side))
	}
	return s, nil
}

func (s *Slab) Capacity() int { return len(s.nodes) / slabNodeSize }

func (s *Slab) Node(h orderbook.Handle) (SlabNode, bool) {
	idx := int(h)
	if idx >= s.Capacity() {
		return SlabNode{}, false
	}
	raw := s.nodes[idx*slabNodeSize : (idx+1)*slabNodeSize]
	r := newFieldReader(raw)
	n := SlabNode{Tag: NodeTag(r.u32())}
	switch n.Tag {
	case TagInner:
		n.PrefixLen = r.u32()
		n.Key = r.u128()
		n.Children[0] = r.u32()
		n.Children[1] = r.u32()
	case TagLeaf:
		n.OwnerSlot = r.u8()
		n.FeeTier = r.u8()
		r.skip(2)
		n.Key = r.u128()
		n.Owner = r.pubkey()
		n.Quantity = r.u64()
		n.ClientOrderID = r.u64()
	}
	if r.err != nil {
		return SlabNode{}, false
	}
	return n, true
}

func (s *Slab) Resolve(h orderbook.Handle) (orderbook.Node, bool) {
	n, ok := s.Node(h)
	if !ok {
		return nil, false
	}
	return n, true
}

func (s *Slab) Minimum() (orderbook.Handle, bool) { return s.walk(0) }

func (s *Slab) Maximum() (orderbook.Handle, bool) { return s.walk(1) }

// walk descends from the root always taking the same child. A handle that
// cannot be followed is returned as is so the caller's Resolve reports it.
func (s *Slab) walk(child int) (orderbook.Handle, bool) {
	if s.Header.LeafCount == 0 {
		return 0, false
	}
	h := orderbook.Handle(s.Header.Root)
	for steps := 0; steps <= s.Capacity(); steps++ {
		n, ok := s.Node(h)
		if !ok || n.Tag != TagInner {
			return h, true
		}
		h = orderbook.Handle(n.Children[child])
	}
	return h, true
}

// Leaves returns the live orders reachable from the root in key order. Each
// handle is visited at most once, so a cyclic slab still terminates.
func (s *Slab) Leaves() []SlabNode {
	if s.Header.LeafCount == 0 {
		return nil
	}
	out := make([]SlabNode, 0, min(int(s.Header.LeafCount), s.Capacity()))
	visited := make(map[orderbook.Handle]struct{})
	stack := []orderbook.Handle{orderbook.Handle(s.Header.Root)}
	for len(stack) > 0 && len(out) < int(s.Header.LeafCount) {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, seen := visited[h]; seen {
			continue
		}
		visited[h] = struct{}{}
		n, ok := s.Node(h)
		if !ok {
			continue
		}
		switch n.Tag {
		case TagLeaf:
			out = append(out, n)
		case TagInner:
			stack = append(stack, orderbook.Handle(n.Children[1]), orderbook.Handle(n.Children[0]))
		}
	}
	return out
}

// SlabBuilder assembles slab account bytes. It is used for fixtures and by
// tooling that replays captured books.
type SlabBuilder struct {
	Flags  AccountFlag
	Header SlabHeader
	Nodes  []SlabNode
}

func (b SlabBuilder) Encode() []byte {
	body := make([]byte, 0, 8+slabHeaderSize+len(b.Nodes)*slabNodeSize)
	body = binary.LittleEndian.AppendUint64(body, uint64(b.Flags))
	body = binary.LittleEndian.AppendUint64(body, b.Header.BumpIndex)
	body = binary.LittleEndian.AppendUint64(body, b.Header.FreeListLen)
	body = binary.LittleEndian.AppendUint32(body, b.Header.FreeListHead)
	body = binary.LittleEndian.AppendUint32(body, b.Header.Root)
	body = binary.LittleEndian.AppendUint64(body, b.Header.LeafCount)
	for _, n := range b.Nodes {
		node := make([]byte, 0, slabNodeSize)
		node = binary.LittleEndian.AppendUint32(node, uint32(n.Tag))
		switch n.Tag {
		case TagInner:
			node = binary.LittleEndian.AppendUint32(node, n.PrefixLen)
			node = binary.LittleEndian.AppendUint64(node, n.Key.Lo)
			node = binary.LittleEndian.AppendUint64(node, n.Key.Hi)
			node = binary.LittleEndian.AppendUint32(node, n.Children[0])
			node = binary.LittleEndian.AppendUint32(node, n.Children[1])
		case TagLeaf:
			node = append(node, n.OwnerSlot, n.FeeTier, 0, 0)
			node = binary.LittleEndian.AppendUint64(node, n.Key.Lo)
			node = binary.LittleEndian.AppendUint64(node, n.Key.Hi)
			node = append(node, n.Owner[:]...)
			node = binary.LittleEndian.AppendUint64(node, n.Quantity)
			node = binary.LittleEndian.AppendUint64(node, n.ClientOrderID)
		}
		node = append(node, make([]byte, slabNodeSize-len(node))...)
		body = append(body, node...)
	}
	return wrapPadding(body)
}

// OrderKey builds a leaf key from a tick price and a sequence number.
func OrderKey(price, seq uint64) bin.Uint128 {
	return bin.Uint128{Lo: seq, Hi: price, Endianness: binary.LittleEndian}
}
