package serum

import (
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbell/lp-pricer/internal/orderbook"
)

var (
	testProgram = solana.MustPublicKeyFromBase58("9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin")
	testMarket  = solana.MustPublicKeyFromBase58("2xiv8A5xrJ7RnGdxXB42uFEkYHJjszEhaJyKKt4WaLep")
	testOrders  = solana.MustPublicKeyFromBase58("3Xq4vBd5EWs45v9YwG1Mpfr8Xjng23pDovVUbnAaPce9")
	testRent    = Rent{LamportsPerByteYear: 3480, ExemptionThreshold: 2.0, BurnPercent: 50}
)

func sampleMarket() *Market {
	return &Market{
		Flags:       FlagInitialized | FlagMarket,
		OwnAddress:  testMarket,
		CoinMint:    solana.MustPublicKeyFromBase58("4k3Dyjzvzp8eMZWUXbBCjEvwSkkk59S5iCNLY3QrkX6R"),
		PcMint:      solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"),
		Bids:        solana.NewWallet().PublicKey(),
		Asks:        solana.NewWallet().PublicKey(),
		CoinLotSize: 100000,
		PcLotSize:   100,
		FeeRateBps:  22,
	}
}

func TestMarketRoundTrip(t *testing.T) {
	want := sampleMarket()
	raw := want.Encode()
	require.Len(t, raw, MarketStateSize)

	got, err := LoadMarket(testMarket, testProgram, raw, testProgram)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestMarketRejects(t *testing.T) {
	raw := sampleMarket().Encode()

	_, err := LoadMarket(testMarket, solana.SystemProgramID, raw, testProgram)
	require.ErrorIs(t, err, ErrWrongOwner)

	_, err = LoadMarket(testOrders, testProgram, raw, testProgram)
	require.ErrorIs(t, err, ErrInvalidAccount)

	_, err = DecodeMarket(raw[:MarketStateSize-1])
	require.ErrorIs(t, err, ErrInvalidAccount)

	bad := append([]byte(nil), raw...)
	copy(bad, "xxxxx")
	_, err = DecodeMarket(bad)
	require.ErrorIs(t, err, ErrInvalidAccount)

	m := sampleMarket()
	m.Flags = FlagInitialized | FlagOpenOrders
	_, err = DecodeMarket(m.Encode())
	require.ErrorIs(t, err, ErrInvalidFlags)
}

func sampleOpenOrders() *OpenOrders {
	oo := &OpenOrders{
		Flags:           FlagInitialized | FlagOpenOrders,
		Market:          testMarket,
		Owner:           solana.NewWallet().PublicKey(),
		NativeCoinFree:  5,
		NativeCoinTotal: 1_500,
		NativePcFree:    7,
		NativePcTotal:   2_500,
		FreeSlotBits:    OrderKey(^uint64(0), ^uint64(0)),
		IsBidBits:       OrderKey(0, 0),
	}
	for i := range oo.Orders {
		oo.Orders[i] = OrderKey(0, 0)
	}
	oo.Orders[3] = OrderKey(42, 9)
	oo.ClientOrderIDs[3] = 77
	return oo
}

func TestOpenOrdersRoundTrip(t *testing.T) {
	want := sampleOpenOrders()
	raw := want.Encode()
	require.Len(t, raw, OpenOrdersSize)

	lamports := testRent.MinimumBalance(OpenOrdersSize)
	got, err := LoadOpenOrders(testOrders, testProgram, lamports, raw, testProgram, testMarket, testRent)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestOpenOrdersRejects(t *testing.T) {
	raw := sampleOpenOrders().Encode()
	lamports := testRent.MinimumBalance(OpenOrdersSize)

	_, err := LoadOpenOrders(testOrders, testProgram, lamports-1, raw, testProgram, testMarket, testRent)
	require.ErrorIs(t, err, ErrNotRentExempt)

	_, err = LoadOpenOrders(testOrders, testProgram, lamports, raw, testProgram, testOrders, testRent)
	require.ErrorIs(t, err, ErrMarketMismatch)

	_, err = LoadOpenOrders(testOrders, solana.TokenProgramID, lamports, raw, testProgram, testMarket, testRent)
	require.ErrorIs(t, err, ErrWrongOwner)
}

func TestRent(t *testing.T) {
	raw := testRent.Encode()
	require.Len(t, raw, RentSysvarSize)

	got, err := DecodeRent(raw)
	require.NoError(t, err)
	assert.Equal(t, testRent, got)

	// (128 + 3228) * 3480 * 2
	assert.Equal(t, uint64(23_357_760), got.MinimumBalance(OpenOrdersSize))
	assert.True(t, got.IsExempt(23_357_760, OpenOrdersSize))
	assert.False(t, got.IsExempt(23_357_759, OpenOrdersSize))

	_, err = DecodeRent(raw[:16])
	require.ErrorIs(t, err, ErrInvalidAccount)
}

func leaf(price, seq uint64) SlabNode {
	return SlabNode{Tag: TagLeaf, Key: OrderKey(price, seq), Quantity: seq * 10}
}

func inner(left, right uint32) SlabNode {
	return SlabNode{Tag: TagInner, Children: [2]uint32{left, right}}
}

func threeLevelBook(side AccountFlag) SlabBuilder {
	// 0 -> (1, 2); 1 -> (3, 4); leaves 2, 3, 4
	return SlabBuilder{
		Flags:  FlagInitialized | side,
		Header: SlabHeader{BumpIndex: 5, Root: 0, LeafCount: 3},
		Nodes: []SlabNode{
			inner(1, 2),
			inner(3, 4),
			leaf(130, 1),
			leaf(100, 2),
			leaf(115, 3),
		},
	}
}

func TestSlabMinimumMaximum(t *testing.T) {
	raw := threeLevelBook(FlagAsks).Encode()
	s, err := LoadSlab(testMarket, testProgram, raw, testProgram, FlagAsks)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Capacity())

	minH, ok := s.Minimum()
	require.True(t, ok)
	assert.Equal(t, orderbook.Handle(3), minH)
	node, ok := s.Resolve(minH)
	require.True(t, ok)
	assert.True(t, node.IsLeaf())
	assert.Equal(t, uint64(100), node.Price())

	maxH, ok := s.Maximum()
	require.True(t, ok)
	assert.Equal(t, orderbook.Handle(2), maxH)
	node, ok = s.Resolve(maxH)
	require.True(t, ok)
	assert.Equal(t, uint64(130), node.Price())

	leaves := s.Leaves()
	require.Len(t, leaves, 3)
	assert.Equal(t, []uint64{100, 115, 130}, []uint64{leaves[0].Price(), leaves[1].Price(), leaves[2].Price()})
	assert.Equal(t, uint64(20), leaves[0].Quantity)
}

func TestSlabEmpty(t *testing.T) {
	b := threeLevelBook(FlagBids)
	b.Header.LeafCount = 0
	s, err := DecodeSlab(b.Encode())
	require.NoError(t, err)

	_, ok := s.Minimum()
	assert.False(t, ok)
	_, ok = s.Maximum()
	assert.False(t, ok)
	assert.Empty(t, s.Leaves())
}

func TestSlabBrokenHandles(t *testing.T) {
	b := threeLevelBook(FlagBids)
	b.Header.Root = 40
	s, err := DecodeSlab(b.Encode())
	require.NoError(t, err)

	h, ok := s.Maximum()
	require.True(t, ok)
	_, ok = s.Resolve(h)
	assert.False(t, ok)

	b = threeLevelBook(FlagBids)
	b.Nodes[2] = SlabNode{Tag: TagFree}
	s, err = DecodeSlab(b.Encode())
	require.NoError(t, err)

	h, ok = s.Maximum()
	require.True(t, ok)
	node, ok := s.Resolve(h)
	require.True(t, ok)
	assert.False(t, node.IsLeaf())
}

func TestSlabLeavesCyclic(t *testing.T) {
	b := SlabBuilder{
		Flags:  FlagInitialized | FlagBids,
		Header: SlabHeader{BumpIndex: 1, LeafCount: 1},
		Nodes:  []SlabNode{{Tag: TagInner, Children: [2]uint32{0, 0}}},
	}
	s, err := DecodeSlab(b.Encode())
	require.NoError(t, err)

	h, ok := s.Minimum()
	require.True(t, ok)
	assert.Equal(t, orderbook.Handle(0), h)

	done := make(chan []SlabNode, 1)
	go func() { done <- s.Leaves() }()
	select {
	case leaves := <-done:
		assert.Empty(t, leaves)
	case <-time.After(3 * time.Second):
		t.Fatal("Leaves did not terminate on a self-referencing inner node")
	}

	b = threeLevelBook(FlagBids)
	b.Nodes[1].Children[1] = 0
	s, err = DecodeSlab(b.Encode())
	require.NoError(t, err)
	go func() { done <- s.Leaves() }()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Leaves did not terminate on an inner cycle through the root")
	}
}

func TestSlabWrongSide(t *testing.T) {
	raw := threeLevelBook(FlagBids).Encode()
	_, err := LoadSlab(testMarket, testProgram, raw, testProgram, FlagAsks)
	require.ErrorIs(t, err, ErrInvalidFlags)

	_, err = DecodeSlab([]byte("serumpadding"))
	require.ErrorIs(t, err, ErrInvalidAccount)
}
