package pokedex

import (
	"context"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"

	"github.com/kapu/pokedex-go/internal/constants"
	"github.com/kapu/pokedex-go/internal/domain"
)

// Filter is the grid's search state.
type Filter struct {
	Query         string
	FavoritesOnly bool
}

// Search returns the ids of the catalog index matching f, in catalog order.
// A leading '#' is ignored; an all-digit query matches ids equal to it or
// containing it, anything else matches name substrings.
func (p *Pokedex) Search(ctx context.Context, f Filter) ([]int, error) {
	list, err := p.lists.Load(ctx, ListKey(constants.CatalogConfig.DefaultLimit, 0))
	if err != nil {
		return nil, err
	}

	var favorite func(int) bool
	if f.FavoritesOnly {
		if p.favorites == nil {
			return []int{}, nil
		}
		favorite = p.favorites.Contains
	}
	return filterItems(list.Results, f.Query, favorite), nil
}

func filterItems(items []domain.ListItem, query string, favorite func(int) bool) []int {
	query = strings.TrimPrefix(strings.TrimSpace(query), "#")
	query = strings.ToLower(strings.TrimSpace(query))
	numeric := query != "" && isDigits(query)

	ids := make([]int, 0, len(items))
	for _, item := range items {
		if favorite != nil && !favorite(item.ID) {
			continue
		}
		switch {
		case query == "":
		case numeric:
			id := strconv.Itoa(item.ID)
			if n, err := strconv.Atoi(query); (err != nil || n != item.ID) && !strings.Contains(id, query) {
				continue
			}
		default:
			if !strings.Contains(item.Name, query) {
				continue
			}
		}
		ids = append(ids, item.ID)
	}
	return ids
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Page returns the zero-based page of ids. perPage <= 0 uses the grid's page size.
func Page(ids []int, page, perPage int) []int {
	if perPage <= 0 {
		perPage = constants.CatalogConfig.ItemsPerPage
	}
	start := page * perPage
	if page < 0 || start >= len(ids) {
		return []int{}
	}
	end := min(start+perPage, len(ids))
	return slices.Clone(ids[start:end])
}

// RandomID picks a uniformly random id in 1..total, where total is the
// catalog count when the index is loaded.
func (p *Pokedex) RandomID(rng *rand.Rand) int {
	total := constants.CatalogConfig.TotalPokemon
	entry := p.lists.Peek(ListKey(constants.CatalogConfig.DefaultLimit, 0))
	if entry.Value != nil && len(entry.Value.Results) > 0 {
		total = min(entry.Value.Count, len(entry.Value.Results))
	}
	if total <= 0 {
		total = constants.CatalogConfig.TotalPokemon
	}
	if rng == nil {
		return rand.IntN(total) + 1
	}
	return rng.IntN(total) + 1
}
