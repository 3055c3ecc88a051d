package exchange

import (
	"fmt"
	"strings"
	"sync"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

// SymbolFormat renders a base/quote pair in a venue's native notation.
type SymbolFormat func(base, quote string) string

func concatSymbol(base, quote string) string { return base + quote }
func dashSymbol(base, quote string) string   { return base + "-" + quote }
func underscoreSymbol(base, quote string) string {
	return base + "_" + quote
}

// SplitSymbol splits a slash symbol such as "btc/usdt" into upper-cased base
// and quote.
func SplitSymbol(symbol string) (base, quote string, err error) {
	parts := strings.Split(strings.TrimSpace(symbol), "/")
	if len(parts) != 2 {
		return "", "", fmt.Errorf("%w: %q (want BASE/QUOTE)", domain.ErrInvalidSymbol, symbol)
	}
	base = strings.ToUpper(strings.TrimSpace(parts[0]))
	quote = strings.ToUpper(strings.TrimSpace(parts[1]))
	if base == "" || quote == "" {
		return "", "", fmt.Errorf("%w: %q (want BASE/QUOTE)", domain.ErrInvalidSymbol, symbol)
	}
	return base, quote, nil
}

// Symbols holds per-venue symbol overrides. It is safe for concurrent use and
// may be refreshed while clients are fetching.
type Symbols struct {
	mu      sync.RWMutex
	aliases map[string]map[string]string // venue -> BASE/QUOTE -> venue symbol
}

// NewSymbols returns an empty alias table.
func NewSymbols() *Symbols {
	return &Symbols{aliases: make(map[string]map[string]string)}
}

// Load replaces the alias table.
func (s *Symbols) Load(aliases []domain.SymbolAlias) {
	next := make(map[string]map[string]string)
	for _, a := range aliases {
		venue := strings.ToLower(strings.TrimSpace(a.Venue))
		base, quote, err := SplitSymbol(a.Symbol)
		if venue == "" || err != nil || strings.TrimSpace(a.VenueSymbol) == "" {
			continue
		}
		if next[venue] == nil {
			next[venue] = make(map[string]string)
		}
		next[venue][base+"/"+quote] = strings.TrimSpace(a.VenueSymbol)
	}

	s.mu.Lock()
	s.aliases = next
	s.mu.Unlock()
}

// Len returns the number of aliases loaded.
func (s *Symbols) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, m := range s.aliases {
		n += len(m)
	}
	return n
}

// Resolve returns the venue-native symbol, preferring an alias over format.
func (s *Symbols) Resolve(venue, symbol string, format SymbolFormat) (string, error) {
	base, quote, err := SplitSymbol(symbol)
	if err != nil {
		return "", err
	}

	s.mu.RLock()
	alias, ok := s.aliases[venue][base+"/"+quote]
	s.mu.RUnlock()
	if ok {
		return alias, nil
	}
	return format(base, quote), nil
}
