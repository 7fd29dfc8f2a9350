package pokedex

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kapu/pokedex-go/internal/catalog"
	"github.com/kapu/pokedex-go/internal/constants"
	"github.com/kapu/pokedex-go/internal/domain"
	"github.com/kapu/pokedex-go/internal/favorites"
	"github.com/kapu/pokedex-go/internal/observe"
	"github.com/kapu/pokedex-go/internal/service/cache"
	"github.com/kapu/pokedex-go/internal/util"
	"github.com/kapu/pokedex-go/pkg/errors"
	"go.uber.org/zap"
)

type Options struct {
	ListTTL             time.Duration
	RecordTTL           time.Duration
	FetchTimeout        time.Duration
	MaxEntries          int
	PrefetchConcurrency int
	Store               cache.Store
	Metrics             *observe.Metrics
	Now                 func() time.Time
}

// DefaultOptions mirrors the constants package.
func DefaultOptions() Options {
	return Options{
		ListTTL:             constants.CacheTTL.PokemonList,
		RecordTTL:           constants.CacheTTL.Record,
		FetchTimeout:        constants.CacheConfig.FetchTimeout,
		MaxEntries:          constants.CacheConfig.MaxEntries,
		PrefetchConcurrency: constants.PrefetchConfig.Concurrency,
	}
}

// Pokedex is the session object behind the UI shell: one keyed cache per
// record kind, the favorites store, and the views derived from both.
type Pokedex struct {
	catalog     catalog.Catalog
	favorites   *favorites.Store
	logger      *zap.Logger
	concurrency int

	pokemon   *cache.Cache[*domain.Pokemon]
	species   *cache.Cache[*domain.Species]
	evolution *cache.Cache[*domain.EvolutionChain]
	types     *cache.Cache[*domain.TypeRelations]
	moves     *cache.Cache[*domain.Move]
	lists     *cache.Cache[*domain.PokemonList]
}

func New(cat catalog.Catalog, favs *favorites.Store, opts Options, logger *zap.Logger) *Pokedex {
	logger = util.OrNop(logger)
	if opts.PrefetchConcurrency <= 0 {
		opts.PrefetchConcurrency = constants.PrefetchConfig.Concurrency
	}

	p := &Pokedex{
		catalog:     cat,
		favorites:   favs,
		logger:      logger,
		concurrency: opts.PrefetchConcurrency,
	}

	p.pokemon = cache.New(string(domain.KindPokemon), p.fetchPokemon,
		cacheOptions(opts, opts.RecordTTL, func(v *domain.Pokemon) []cache.Key {
			return []cache.Key{cache.IDKey(domain.KindPokemon, v.ID), cache.NewKey(domain.KindPokemon, v.Name)}
		}), logger)
	p.species = cache.New(string(domain.KindSpecies), p.fetchSpecies,
		cacheOptions(opts, opts.RecordTTL, func(v *domain.Species) []cache.Key {
			return []cache.Key{cache.IDKey(domain.KindSpecies, v.ID), cache.NewKey(domain.KindSpecies, v.Name)}
		}), logger)
	p.evolution = cache.New(string(domain.KindEvolution), p.fetchEvolution,
		cacheOptions[*domain.EvolutionChain](opts, opts.RecordTTL, nil), logger)
	p.types = cache.New(string(domain.KindType), p.fetchType,
		cacheOptions[*domain.TypeRelations](opts, opts.RecordTTL, nil), logger)
	p.moves = cache.New(string(domain.KindMove), p.fetchMove,
		cacheOptions[*domain.Move](opts, opts.RecordTTL, nil), logger)
	p.lists = cache.New(string(domain.KindPokemonList), p.fetchList,
		cacheOptions[*domain.PokemonList](opts, opts.ListTTL, nil), logger)

	return p
}

func cacheOptions[V any](opts Options, ttl time.Duration, aliases func(V) []cache.Key) cache.Options[V] {
	return cache.Options[V]{
		TTL:          ttl,
		FetchTimeout: opts.FetchTimeout,
		MaxEntries:   opts.MaxEntries,
		Store:        opts.Store,
		Aliases:      aliases,
		Metrics:      opts.Metrics,
		Now:          opts.Now,
	}
}

func (p *Pokedex) fetchPokemon(ctx context.Context, key cache.Key) (*domain.Pokemon, error) {
	return p.catalog.Pokemon(ctx, key.ID)
}

func (p *Pokedex) fetchSpecies(ctx context.Context, key cache.Key) (*domain.Species, error) {
	id, err := strconv.Atoi(key.ID)
	if err != nil {
		return nil, errors.NewValidationError("species is looked up by numeric id", "id", key.ID)
	}
	return p.catalog.Species(ctx, id)
}

func (p *Pokedex) fetchEvolution(ctx context.Context, key cache.Key) (*domain.EvolutionChain, error) {
	return p.catalog.EvolutionChain(ctx, key.ID)
}

func (p *Pokedex) fetchType(ctx context.Context, key cache.Key) (*domain.TypeRelations, error) {
	return p.catalog.TypeRelations(ctx, key.ID)
}

func (p *Pokedex) fetchMove(ctx context.Context, key cache.Key) (*domain.Move, error) {
	return p.catalog.Move(ctx, key.ID)
}

// fetchList also teaches the pokemon cache every name -> id pair on the page.
func (p *Pokedex) fetchList(ctx context.Context, key cache.Key) (*domain.PokemonList, error) {
	limit, offset, err := parseListRef(key.ID)
	if err != nil {
		return nil, err
	}
	list, err := p.catalog.PokemonList(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, item := range list.Results {
		if item.ID > 0 && item.Name != "" {
			p.pokemon.Alias(cache.NewKey(domain.KindPokemon, item.Name), cache.IDKey(domain.KindPokemon, item.ID))
		}
	}
	return list, nil
}

// ListKey identifies one page of the catalog index.
func ListKey(limit, offset int) cache.Key {
	return cache.Key{Kind: domain.KindPokemonList, ID: fmt.Sprintf("%d:%d", limit, offset)}
}

// parseListRef accepts "limit:offset", "limit" or "" (the whole catalog).
func parseListRef(ref string) (limit, offset int, err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return constants.CatalogConfig.DefaultLimit, 0, nil
	}
	limitPart, offsetPart, hasOffset := strings.Cut(ref, ":")
	if limit, err = strconv.Atoi(limitPart); err != nil || limit <= 0 {
		return 0, 0, errors.NewValidationError("list limit must be a positive integer", "limit", limitPart)
	}
	if hasOffset {
		if offset, err = strconv.Atoi(offsetPart); err != nil || offset < 0 {
			return 0, 0, errors.NewValidationError("list offset must be a non-negative integer", "offset", offsetPart)
		}
	}
	return limit, offset, nil
}

// KeyFor normalizes a UI reference (id, name or URL) into the cache key of kind.
func KeyFor(kind domain.Kind, ref string) (cache.Key, error) {
	switch kind {
	case domain.KindPokemonList:
		limit, offset, err := parseListRef(ref)
		if err != nil {
			return cache.Key{}, err
		}
		return ListKey(limit, offset), nil
	case domain.KindPokemon, domain.KindSpecies, domain.KindEvolution, domain.KindType, domain.KindMove:
		key := cache.NewKey(kind, ref)
		if key.IsZero() {
			return cache.Key{}, errors.NewValidationError("reference is required", "ref", ref)
		}
		return key, nil
	}
	return cache.Key{}, errors.NewValidationError("unknown record kind", "kind", string(kind))
}

// Get is the untyped read used by UI shells that route on kind. It never
// blocks and never fails; an invalid reference comes back as a Failed entry.
func (p *Pokedex) Get(kind domain.Kind, ref string) cache.Entry[any] {
	key, err := KeyFor(kind, ref)
	if err != nil {
		return cache.Entry[any]{Key: key, Status: cache.Failed, Err: err, ErrKind: errors.KindOf(err)}
	}
	switch kind {
	case domain.KindPokemon:
		return erase(p.pokemon.Get(key))
	case domain.KindSpecies:
		return erase(p.species.Get(key))
	case domain.KindEvolution:
		return erase(p.evolution.Get(key))
	case domain.KindType:
		return erase(p.types.Get(key))
	case domain.KindMove:
		return erase(p.moves.Get(key))
	default:
		return erase(p.lists.Get(key))
	}
}

// Subscribe registers onChange for kind/ref. The returned function tears the
// subscription down without cancelling any fetch.
func (p *Pokedex) Subscribe(kind domain.Kind, ref string, onChange func(cache.Entry[any])) (func(), error) {
	key, err := KeyFor(kind, ref)
	if err != nil {
		return func() {}, err
	}
	switch kind {
	case domain.KindPokemon:
		return subscribe(p.pokemon, key, onChange), nil
	case domain.KindSpecies:
		return subscribe(p.species, key, onChange), nil
	case domain.KindEvolution:
		return subscribe(p.evolution, key, onChange), nil
	case domain.KindType:
		return subscribe(p.types, key, onChange), nil
	case domain.KindMove:
		return subscribe(p.moves, key, onChange), nil
	default:
		return subscribe(p.lists, key, onChange), nil
	}
}

func (p *Pokedex) Invalidate(kind domain.Kind, ref string) error {
	key, err := KeyFor(kind, ref)
	if err != nil {
		return err
	}
	switch kind {
	case domain.KindPokemon:
		p.pokemon.Invalidate(key)
	case domain.KindSpecies:
		p.species.Invalidate(key)
	case domain.KindEvolution:
		p.evolution.Invalidate(key)
	case domain.KindType:
		p.types.Invalidate(key)
	case domain.KindMove:
		p.moves.Invalidate(key)
	default:
		p.lists.Invalidate(key)
	}
	return nil
}

func erase[V any](e cache.Entry[V]) cache.Entry[any] {
	out := cache.Entry[any]{
		Key:        e.Key,
		Status:     e.Status,
		Err:        e.Err,
		ErrKind:    e.ErrKind,
		FetchedAt:  e.FetchedAt,
		Stale:      e.Stale,
		Refreshing: e.Refreshing,
	}
	if e.Status == cache.Resolved {
		out.Value = e.Value
	}
	return out
}

func subscribe[V any](c *cache.Cache[V], key cache.Key, onChange func(cache.Entry[any])) func() {
	return c.Subscribe(key, func(e cache.Entry[V]) { onChange(erase(e)) })
}

func (p *Pokedex) Pokemon() *cache.Cache[*domain.Pokemon]          { return p.pokemon }
func (p *Pokedex) Species() *cache.Cache[*domain.Species]          { return p.species }
func (p *Pokedex) Evolution() *cache.Cache[*domain.EvolutionChain] { return p.evolution }
func (p *Pokedex) Types() *cache.Cache[*domain.TypeRelations]      { return p.types }
func (p *Pokedex) Moves() *cache.Cache[*domain.Move]               { return p.moves }
func (p *Pokedex) Lists() *cache.Cache[*domain.PokemonList]        { return p.lists }
func (p *Pokedex) Favorites() *favorites.Store                     { return p.favorites }

// LoadPokemon resolves an id or name, waiting for the fetch if needed.
func (p *Pokedex) LoadPokemon(ctx context.Context, ref string) (*domain.Pokemon, error) {
	key, err := KeyFor(domain.KindPokemon, ref)
	if err != nil {
		return nil, err
	}
	return p.pokemon.Load(ctx, key)
}

// Close stops every cache and waits for in-flight fetches.
func (p *Pokedex) Close() {
	p.pokemon.Close()
	p.species.Close()
	p.evolution.Close()
	p.types.Close()
	p.moves.Close()
	p.lists.Close()
}
