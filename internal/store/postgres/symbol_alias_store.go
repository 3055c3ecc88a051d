package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/tradersentinel/internal/domain"
)

// SymbolAliasStore implements domain.SymbolAliasStore using PostgreSQL.
type SymbolAliasStore struct {
	pool *pgxpool.Pool
}

// NewSymbolAliasStore creates a new SymbolAliasStore backed by the given connection pool.
func NewSymbolAliasStore(pool *pgxpool.Pool) *SymbolAliasStore {
	return &SymbolAliasStore{pool: pool}
}

// normalizeAlias lower-cases the venue and upper-cases both symbols so that
// lookups match the exchange registry's keys.
func normalizeAlias(a domain.SymbolAlias) domain.SymbolAlias {
	return domain.SymbolAlias{
		Venue:       strings.ToLower(strings.TrimSpace(a.Venue)),
		Symbol:      strings.ToUpper(strings.TrimSpace(a.Symbol)),
		VenueSymbol: strings.TrimSpace(a.VenueSymbol),
	}
}

// List returns every alias ordered by venue then symbol.
func (s *SymbolAliasStore) List(ctx context.Context) ([]domain.SymbolAlias, error) {
	const query = `SELECT venue, symbol, venue_symbol FROM symbol_aliases ORDER BY venue, symbol`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list symbol aliases: %w", err)
	}
	defer rows.Close()

	var aliases []domain.SymbolAlias
	for rows.Next() {
		var a domain.SymbolAlias
		if err := rows.Scan(&a.Venue, &a.Symbol, &a.VenueSymbol); err != nil {
			return nil, fmt.Errorf("postgres: scan symbol alias: %w", err)
		}
		aliases = append(aliases, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list symbol aliases rows: %w", err)
	}
	return aliases, nil
}

// Upsert inserts or replaces the venue symbol for (venue, symbol).
func (s *SymbolAliasStore) Upsert(ctx context.Context, alias domain.SymbolAlias) error {
	a := normalizeAlias(alias)
	if a.Venue == "" || a.VenueSymbol == "" {
		return fmt.Errorf("postgres: upsert symbol alias: venue and venue_symbol are required: %w", domain.ErrInvalidSymbol)
	}
	if _, _, ok := strings.Cut(a.Symbol, "/"); !ok {
		return fmt.Errorf("postgres: upsert symbol alias %q: %w", alias.Symbol, domain.ErrInvalidSymbol)
	}

	const query = `
		INSERT INTO symbol_aliases (venue, symbol, venue_symbol, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (venue, symbol) DO UPDATE SET
			venue_symbol = EXCLUDED.venue_symbol,
			updated_at   = NOW()`

	if _, err := s.pool.Exec(ctx, query, a.Venue, a.Symbol, a.VenueSymbol); err != nil {
		return fmt.Errorf("postgres: upsert symbol alias %s %s: %w", a.Venue, a.Symbol, err)
	}
	return nil
}

// Delete removes the alias for (venue, symbol).
// It returns domain.ErrNotFound when no row matched.
func (s *SymbolAliasStore) Delete(ctx context.Context, venue, symbol string) error {
	a := normalizeAlias(domain.SymbolAlias{Venue: venue, Symbol: symbol})

	tag, err := s.pool.Exec(ctx, `DELETE FROM symbol_aliases WHERE venue = $1 AND symbol = $2`, a.Venue, a.Symbol)
	if err != nil {
		return fmt.Errorf("postgres: delete symbol alias %s %s: %w", a.Venue, a.Symbol, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.SymbolAliasStore = (*SymbolAliasStore)(nil)
