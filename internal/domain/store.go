package domain

import "context"

// SymbolAlias overrides the native symbol a venue uses for a slash symbol.
type SymbolAlias struct {
	Venue       string
	Symbol      string
	VenueSymbol string
}

// SymbolAliasStore persists venue symbol overrides.
type SymbolAliasStore interface {
	List(ctx context.Context) ([]SymbolAlias, error)
	Upsert(ctx context.Context, alias SymbolAlias) error
	Delete(ctx context.Context, venue, symbol string) error
}
