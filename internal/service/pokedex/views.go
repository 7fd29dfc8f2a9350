package pokedex

import (
	"context"
	"sync"

	"github.com/kapu/pokedex-go/internal/constants"
	"github.com/kapu/pokedex-go/internal/domain"
	"github.com/kapu/pokedex-go/internal/effectiveness"
	"github.com/kapu/pokedex-go/internal/evolution"
	"github.com/kapu/pokedex-go/internal/service/cache"
	"github.com/kapu/pokedex-go/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Effectiveness loads the type tables of pk concurrently and derives its
// defensive matchups.
func (p *Pokedex) Effectiveness(ctx context.Context, pk *domain.Pokemon) (effectiveness.Result, error) {
	if pk == nil || len(pk.Types) == 0 {
		return effectiveness.Result{}, errors.NewValidationError("pokemon has no types", "types", nil)
	}
	types := pk.Types
	if len(types) > 2 {
		types = types[:2]
	}

	tables := make([]*domain.TypeRelations, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range types {
		g.Go(func() error {
			rel, err := p.types.Load(gctx, cache.NewKey(domain.KindType, name))
			if err != nil {
				return err
			}
			tables[i] = rel
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return effectiveness.Result{}, err
	}

	var secondary *domain.TypeRelations
	if len(tables) == 2 {
		secondary = tables[1]
	}
	return effectiveness.Derive(*tables[0], secondary), nil
}

// EvolutionStages follows species -> evolution chain and flattens the tree.
func (p *Pokedex) EvolutionStages(ctx context.Context, speciesID int) ([]evolution.Stage, error) {
	if speciesID <= 0 {
		return nil, errors.NewValidationError("species id must be positive", "id", speciesID)
	}
	species, err := p.species.Load(ctx, cache.IDKey(domain.KindSpecies, speciesID))
	if err != nil {
		return nil, err
	}
	if species.EvolutionChainURL == "" {
		return nil, errors.NewNotFoundError("species has no evolution chain", 0, map[string]any{
			"species": species.Name,
		})
	}
	chain, err := p.evolution.Load(ctx, cache.NewKey(domain.KindEvolution, species.EvolutionChainURL))
	if err != nil {
		return nil, err
	}
	return evolution.Flatten(chain.Chain)
}

// Detail is everything the detail view shows for one pokemon.
type Detail struct {
	Pokemon       *domain.Pokemon
	Description   string
	Genus         string
	Effectiveness effectiveness.Result
	Stages        []evolution.Stage
	Favorite      bool
}

// Detail loads pokemon, species text, matchups and evolution stages. The
// species-dependent parts are skipped when the species lookup fails, matching
// a detail view that renders without them.
func (p *Pokedex) Detail(ctx context.Context, ref string, lang string) (*Detail, error) {
	pk, err := p.LoadPokemon(ctx, ref)
	if err != nil {
		return nil, err
	}
	if lang == "" {
		lang = constants.DefaultLanguage
	}

	d := &Detail{Pokemon: pk}
	if p.favorites != nil {
		d.Favorite = p.favorites.Contains(pk.ID)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := p.Effectiveness(gctx, pk)
		if err != nil {
			return err
		}
		d.Effectiveness = res
		return nil
	})
	g.Go(func() error {
		species, err := p.species.Load(gctx, cache.IDKey(domain.KindSpecies, pk.SpeciesID()))
		if err != nil {
			p.logger.Debug("Species unavailable for detail view", zap.String("ref", ref), zap.Error(err))
			return nil
		}
		d.Description = species.Description(lang)
		d.Genus = species.GenusFor(lang)

		stages, err := p.EvolutionStages(gctx, species.ID)
		if err != nil {
			p.logger.Debug("Evolution chain unavailable for detail view", zap.String("ref", ref), zap.Error(err))
			return nil
		}
		d.Stages = stages
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return d, nil
}

// MoveDetails resolves the first limit moves of pk. Moves that fail to load
// are left out; the order of the remaining ones follows pk.Moves.
func (p *Pokedex) MoveDetails(ctx context.Context, pk *domain.Pokemon, limit int) []*domain.Move {
	if pk == nil || len(pk.Moves) == 0 {
		return nil
	}
	if limit <= 0 {
		limit = constants.CatalogConfig.MovesPreview
	}
	limit = min(limit, constants.CatalogConfig.MovesMax, len(pk.Moves))

	results := make([]*domain.Move, limit)
	var mu sync.Mutex
	wp := pool.New().WithMaxGoroutines(p.concurrency)
	for i, ref := range pk.Moves[:limit] {
		wp.Go(func() {
			move, err := p.moves.Load(ctx, cache.NewKey(domain.KindMove, ref.URL))
			if err != nil {
				return
			}
			mu.Lock()
			results[i] = move
			mu.Unlock()
		})
	}
	wp.Wait()

	out := make([]*domain.Move, 0, limit)
	for _, m := range results {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
