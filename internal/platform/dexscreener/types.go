package dexscreener

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

type searchResponse struct {
	SchemaVersion string `json:"schemaVersion"`
	Pairs         []Pair `json:"pairs"`
}

// Pair is one candidate returned by a search. Numeric fields are kept loose
// because DexScreener mixes strings and numbers.
type Pair struct {
	ChainID     string     `json:"chainId"`
	DexID       string     `json:"dexId"`
	URL         string     `json:"url"`
	PairAddress string     `json:"pairAddress"`
	BaseToken   Token      `json:"baseToken"`
	QuoteToken  Token      `json:"quoteToken"`
	PriceNative any        `json:"priceNative"`
	PriceUSD    any        `json:"priceUsd"`
	Liquidity   *Liquidity `json:"liquidity"`
}

// Token identifies one side of a pair.
type Token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// Liquidity holds the pool depth figures.
type Liquidity struct {
	USD   any `json:"usd"`
	Base  any `json:"base"`
	Quote any `json:"quote"`
}

// LiquidityUSD returns the pool's USD liquidity, absent when missing or
// non-numeric.
func (p Pair) LiquidityUSD() decimal.NullDecimal {
	if p.Liquidity == nil {
		return decimal.NullDecimal{}
	}
	return domain.ParsePrice(p.Liquidity.USD)
}

// Address returns the pair address, falling back to the pair URL. EVM
// addresses are returned in EIP-55 checksum form.
func (p Pair) Address() string {
	if p.PairAddress == "" {
		return p.URL
	}
	if common.IsHexAddress(p.PairAddress) {
		return common.HexToAddress(p.PairAddress).Hex()
	}
	return p.PairAddress
}

// MostLiquid returns the index of the pair with the highest USD liquidity,
// treating missing values as zero. The first of equal maxima wins. It
// returns -1 for an empty list.
func MostLiquid(pairs []Pair) int {
	best := -1
	var bestLiq decimal.Decimal
	for i, p := range pairs {
		liq := decimal.Zero
		if l := p.LiquidityUSD(); l.Valid {
			liq = l.Decimal
		}
		if best == -1 || liq.GreaterThan(bestLiq) {
			best = i
			bestLiq = liq
		}
	}
	return best
}
