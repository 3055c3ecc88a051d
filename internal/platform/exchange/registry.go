package exchange

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

// Factory builds a TickerClient for one venue.
type Factory func(opts ...Option) TickerClient

type registration struct {
	interval time.Duration
	factory  Factory
}

// Registry maps lower-case venue identifiers to client factories. Venue names
// are resolved only through this table, never by reflection.
type Registry struct {
	venues  map[string]registration
	symbols *Symbols
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		venues:  make(map[string]registration),
		symbols: NewSymbols(),
	}
}

// DefaultRegistry returns a registry holding every built-in venue.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, api := range []venueAPI{
		binanceAPI(),
		bybitAPI(),
		okxAPI(),
		mexcAPI(),
		gateAPI(),
		bitgetAPI(),
		kucoinAPI(),
	} {
		r.Register(api.id, api.interval, func(opts ...Option) TickerClient {
			return newClient(api, opts...)
		})
	}
	return r
}

// Register adds a venue. It panics on an empty name, a nil factory or a
// duplicate registration.
func (r *Registry) Register(venue string, publicInterval time.Duration, f Factory) {
	key := normalizeVenue(venue)
	if key == "" {
		panic("exchange: empty venue name")
	}
	if f == nil {
		panic(fmt.Sprintf("exchange: nil factory for %s", venue))
	}
	if _, exists := r.venues[key]; exists {
		panic(fmt.Sprintf("exchange: duplicate registration for %s", key))
	}
	r.venues[key] = registration{interval: publicInterval, factory: f}
}

// Supports reports whether venue is registered.
func (r *Registry) Supports(venue string) bool {
	_, ok := r.venues[normalizeVenue(venue)]
	return ok
}

// PublicInterval returns the venue's published minimum request spacing.
func (r *Registry) PublicInterval(venue string) (time.Duration, bool) {
	reg, ok := r.venues[normalizeVenue(venue)]
	return reg.interval, ok
}

// Supported returns every registered venue, sorted.
func (r *Registry) Supported() []string {
	keys := make([]string, 0, len(r.venues))
	for k := range r.venues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Symbols returns the alias table shared by every client this registry builds.
func (r *Registry) Symbols() *Symbols {
	return r.symbols
}

// NewClient builds a client for venue. Unknown venues return
// domain.ErrUnsupportedVenue.
func (r *Registry) NewClient(venue string, opts ...Option) (TickerClient, error) {
	reg, ok := r.venues[normalizeVenue(venue)]
	if !ok {
		return nil, fmt.Errorf("exchange: %q: %w", venue, domain.ErrUnsupportedVenue)
	}
	all := make([]Option, 0, len(opts)+1)
	all = append(all, WithSymbols(r.symbols))
	all = append(all, opts...)
	return reg.factory(all...), nil
}

func normalizeVenue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
