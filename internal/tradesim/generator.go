// Package tradesim generates a deterministic synthetic block stream: matched
// trades as symmetric fill pairs, plus occasional transfers, order placements
// and witness registrations. The same seed always yields the same stream,
// which makes it usable both as a development block source and as a fixture
// for end-to-end tests.
package tradesim

import (
	"fmt"
	"math/rand"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"market-history-lab/internal/domain"
)

// Pair names the two assets of a traded market.
type Pair struct {
	Base  domain.AssetID
	Quote domain.AssetID
}

// Defaults used when Options leaves the corresponding field zero.
const (
	DefaultBlockInterval  = 3 // seconds, the host chain's production rate
	DefaultTradesPerBlock = 4
	DefaultStartTime      = 1_600_000_000
)

// price walk bounds; amounts stay well inside int64 when multiplied
const (
	priceScale   = 1000 // price = quote units per priceScale base units
	minPrice     = 10
	maxPrice     = 1_000_000_000
	maxBaseUnits = 1_000_000
)

// Options for creating a Generator.
type Options struct {
	Seed int64
	// Pairs are the markets traded; defaults to three markets over assets 1..3.
	Pairs []Pair
	// StartHeight is the height the stream resumes after; the first generated
	// block is StartHeight+1.
	StartHeight uint64
	// StartTime is the timestamp of the first block, epoch seconds.
	StartTime int64
	// BlockInterval is the timestamp step between blocks, seconds.
	BlockInterval int64
	// TradesPerBlock caps the matched trades per block (at least one is
	// always generated).
	TradesPerBlock int
}

// Generator produces the synthetic stream. Not safe for concurrent use.
type Generator struct {
	rng       *rand.Rand
	pairs     []Pair
	prices    map[Pair]int64
	height    uint64
	now       int64
	interval  int64
	maxTrades int
	orderID   uint64
}

// NewGenerator creates a Generator. The stream is fully determined by the
// options, Seed included.
func NewGenerator(opts Options) *Generator {
	pairs := opts.Pairs
	if len(pairs) == 0 {
		pairs = []Pair{{Base: 1, Quote: 2}, {Base: 1, Quote: 3}, {Base: 2, Quote: 3}}
	}
	startTime := opts.StartTime
	if startTime == 0 {
		startTime = DefaultStartTime
	}
	interval := opts.BlockInterval
	if interval <= 0 {
		interval = DefaultBlockInterval
	}
	maxTrades := opts.TradesPerBlock
	if maxTrades <= 0 {
		maxTrades = DefaultTradesPerBlock
	}

	prices := make(map[Pair]int64, len(pairs))
	for _, p := range pairs {
		prices[p] = int64(uint64(p.Base)+uint64(p.Quote)) * priceScale
	}

	return &Generator{
		rng:       rand.New(rand.NewSource(opts.Seed)),
		pairs:     pairs,
		prices:    prices,
		height:    opts.StartHeight,
		now:       startTime - interval,
		interval:  interval,
		maxTrades: maxTrades,
	}
}

// Height returns the height of the last generated block.
func (g *Generator) Height() uint64 {
	return g.height
}

// Pairs returns the traded markets.
func (g *Generator) Pairs() []Pair {
	out := make([]Pair, len(g.pairs))
	copy(out, g.pairs)
	return out
}

// NextBlock produces the next block: one transaction per matched trade
// carrying both fill sides, then any extra operations drawn for this block.
func (g *Generator) NextBlock() *domain.Block {
	g.height++
	g.now += g.interval

	block := &domain.Block{Height: g.height, Timestamp: g.now}

	trades := 1 + g.rng.Intn(g.maxTrades)
	for i := 0; i < trades; i++ {
		block.Transactions = append(block.Transactions, g.matchedTrade())
	}

	if g.rng.Intn(4) == 0 {
		block.Transactions = append(block.Transactions, g.transfer())
	}
	if g.rng.Intn(6) == 0 {
		block.Transactions = append(block.Transactions, g.orderActivity())
	}
	if g.rng.Intn(16) == 0 {
		block.Transactions = append(block.Transactions, g.witnessRegistration())
	}

	return block
}

// matchedTrade walks the pair's price and emits both sides of one match:
// the buyer pays quote for base, the seller the mirror image.
func (g *Generator) matchedTrade() domain.Transaction {
	pair := g.pairs[g.rng.Intn(len(g.pairs))]
	price := g.walkPrice(pair)

	baseAmount := 1 + g.rng.Int63n(maxBaseUnits)
	quoteAmount := baseAmount * price / priceScale
	if quoteAmount < 1 {
		quoteAmount = 1
	}

	buyer := g.account()
	seller := g.account()
	buyOrder := g.nextOrderID()
	sellOrder := g.nextOrderID()

	baseLeg := domain.AssetAmount{AssetID: pair.Base, Amount: baseAmount}
	quoteLeg := domain.AssetAmount{AssetID: pair.Quote, Amount: quoteAmount}

	return domain.Transaction{Operations: []domain.Operation{
		&domain.FillOrderOperation{
			OrderID:   buyOrder,
			AccountID: buyer,
			Pays:      quoteLeg,
			Receives:  baseLeg,
			Fee:       domain.AssetAmount{AssetID: pair.Quote, Amount: 1},
		},
		&domain.FillOrderOperation{
			OrderID:   sellOrder,
			AccountID: seller,
			Pays:      baseLeg,
			Receives:  quoteLeg,
			Fee:       domain.AssetAmount{AssetID: pair.Base, Amount: 1},
		},
	}}
}

// walkPrice moves the pair's price one bounded random step and returns it.
func (g *Generator) walkPrice(pair Pair) int64 {
	price := g.prices[pair]
	maxStep := price/32 + 1
	price += g.rng.Int63n(2*maxStep+1) - maxStep
	if price < minPrice {
		price = minPrice
	}
	if price > maxPrice {
		price = maxPrice
	}
	g.prices[pair] = price
	return price
}

func (g *Generator) transfer() domain.Transaction {
	pair := g.pairs[g.rng.Intn(len(g.pairs))]
	return domain.Transaction{Operations: []domain.Operation{
		&domain.TransferOperation{
			From:   g.account(),
			To:     g.account(),
			Amount: domain.AssetAmount{AssetID: pair.Quote, Amount: 1 + g.rng.Int63n(10_000)},
			Fee:    domain.AssetAmount{AssetID: pair.Quote, Amount: 1},
		},
	}}
}

func (g *Generator) orderActivity() domain.Transaction {
	pair := g.pairs[g.rng.Intn(len(g.pairs))]
	if g.orderID > 0 && g.rng.Intn(2) == 0 {
		return domain.Transaction{Operations: []domain.Operation{
			&domain.LimitOrderCancelOperation{
				OrderID:          1 + uint64(g.rng.Int63n(int64(g.orderID))),
				FeePayingAccount: g.account(),
				Fee:              domain.AssetAmount{AssetID: pair.Quote, Amount: 1},
			},
		}}
	}
	return domain.Transaction{Operations: []domain.Operation{
		&domain.LimitOrderCreateOperation{
			SellerID:     g.account(),
			AmountToSell: domain.AssetAmount{AssetID: pair.Base, Amount: 1 + g.rng.Int63n(maxBaseUnits)},
			MinToReceive: domain.AssetAmount{AssetID: pair.Quote, Amount: 1 + g.rng.Int63n(maxBaseUnits)},
			Fee:          domain.AssetAmount{AssetID: pair.Base, Amount: 1},
		},
	}}
}

// witnessRegistration emits a witness create with a well-formed signing key
// derived from the stream, so decode-side validation always passes.
func (g *Generator) witnessRegistration() domain.Transaction {
	account := g.account()
	return domain.Transaction{Operations: []domain.Operation{
		&domain.WitnessCreateOperation{
			WitnessAccount:  account,
			URL:             fmt.Sprintf("https://witness-%d.example", account),
			BlockSigningKey: g.signingKey(),
		},
	}}
}

// signingKey derives a valid ed25519 public point from the stream's rng.
func (g *Generator) signingKey() string {
	var seed [32]byte
	g.rng.Read(seed[:])
	scalar, err := edwards25519.NewScalar().SetBytesWithClamping(seed[:])
	if err != nil {
		// SetBytesWithClamping only fails on wrong input length.
		panic(fmt.Sprintf("tradesim: derive signing key: %v", err))
	}
	point := new(edwards25519.Point).ScalarBaseMult(scalar)
	return base58.Encode(point.Bytes())
}

func (g *Generator) account() domain.AccountID {
	return domain.AccountID(10 + g.rng.Intn(90))
}

func (g *Generator) nextOrderID() uint64 {
	g.orderID++
	return g.orderID
}
