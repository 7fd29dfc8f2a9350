package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kapu/pokedex-go/internal/util"
	"github.com/kapu/pokedex-go/pkg/errors"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

const pikachuJSON = `{
  "id": 25,
  "name": "pikachu",
  "height": 4,
  "weight": 60,
  "types": [{"slot": 1, "type": {"name": "electric", "url": "https://pokeapi.co/api/v2/type/13/"}}],
  "stats": [
    {"base_stat": 35, "stat": {"name": "hp"}},
    {"base_stat": 55, "stat": {"name": "attack"}},
    {"base_stat": 40, "stat": {"name": "defense"}},
    {"base_stat": 50, "stat": {"name": "special-attack"}},
    {"base_stat": 50, "stat": {"name": "special-defense"}},
    {"base_stat": 90, "stat": {"name": "speed"}}
  ],
  "abilities": [
    {"ability": {"name": "static"}, "is_hidden": false},
    {"ability": {"name": "lightning-rod"}, "is_hidden": true}
  ],
  "moves": [{"move": {"name": "thunder-shock", "url": "https://pokeapi.co/api/v2/move/84/"}}],
  "sprites": {
    "front_default": "https://img/25.png",
    "front_shiny": "https://img/shiny/25.png",
    "other": {"official-artwork": {"front_default": "https://art/25.png", "front_shiny": null}}
  },
  "species": {"name": "pikachu", "url": "https://pokeapi.co/api/v2/pokemon-species/25/"},
  "cries": {"latest": "https://cries/25.ogg", "legacy": "https://cries/legacy/25.ogg"}
}`

const bulbasaurTypesJSON = `{
  "id": 1, "name": "bulbasaur",
  "types": [
    {"slot": 2, "type": {"name": "poison"}},
    {"slot": 1, "type": {"name": "grass"}}
  ]
}`

const speciesJSON = `{
  "id": 25,
  "name": "pikachu",
  "flavor_text_entries": [
    {"flavor_text": "ピカチュウ", "language": {"name": "ja"}, "version": {"name": "x"}},
    {"flavor_text": "When several of\nthese POKéMON\fgather", "language": {"name": "en"}, "version": {"name": "red"}},
    {"flavor_text": "later entry", "language": {"name": "en"}, "version": {"name": "blue"}}
  ],
  "genera": [{"genus": "Mouse Pokémon", "language": {"name": "en"}}],
  "evolution_chain": {"url": "%s/evolution-chain/10/"}
}`

const chainJSON = `{
  "id": 10,
  "chain": {
    "species": {"name": "pichu", "url": "https://pokeapi.co/api/v2/pokemon-species/172/"},
    "evolution_details": [],
    "evolves_to": [{
      "species": {"name": "pikachu", "url": "https://pokeapi.co/api/v2/pokemon-species/25/"},
      "evolution_details": [{"min_level": null, "trigger": {"name": "level-up"}, "item": null}],
      "evolves_to": [{
        "species": {"name": "raichu", "url": "https://pokeapi.co/api/v2/pokemon-species/26/"},
        "evolution_details": [{"trigger": {"name": "use-item"}, "item": {"name": "thunder-stone"}}],
        "evolves_to": []
      }]
    }]
  }
}`

const typeJSON = `{
  "id": 13,
  "name": "electric",
  "damage_relations": {
    "double_damage_from": [{"name": "ground"}],
    "half_damage_from": [{"name": "flying"}, {"name": "steel"}, {"name": "electric"}],
    "double_damage_to": [{"name": "water"}]
  }
}`

func newTestServer(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/pokemon/25", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		_, _ = w.Write([]byte(pikachuJSON))
	})
	mux.HandleFunc("/pokemon/bulbasaur", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		_, _ = w.Write([]byte(bulbasaurTypesJSON))
	})
	mux.HandleFunc("/pokemon/missingno", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		http.NotFound(w, r)
	})
	mux.HandleFunc("/pokemon/garbled", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		_, _ = w.Write([]byte(`{"id": "not-a-number"`))
	})
	mux.HandleFunc("/pokemon/empty", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		_, _ = w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/pokemon-species/25", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		_, _ = w.Write([]byte(strings.Replace(speciesJSON, "%s", srv.URL, 1)))
	})
	mux.HandleFunc("/evolution-chain/10/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		_, _ = w.Write([]byte(chainJSON))
	})
	mux.HandleFunc("/type/electric", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		_, _ = w.Write([]byte(typeJSON))
	})
	mux.HandleFunc("/move/84/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		_, _ = w.Write([]byte(`{"id": 84, "name": "thunder-shock", "power": 40, "accuracy": 100,
			"type": {"name": "electric"}, "damage_class": {"name": "special"}}`))
	})
	mux.HandleFunc("/pokemon", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		if r.URL.Query().Get("limit") != "2" || r.URL.Query().Get("offset") != "0" {
			t.Errorf("unexpected list query %q", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"count": 1025, "results": [
			{"name": "bulbasaur", "url": "https://pokeapi.co/api/v2/pokemon/1/"},
			{"name": "ivysaur", "url": "https://pokeapi.co/api/v2/pokemon/2/"}]}`))
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPokemonDecodesRecord(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	client := NewClient(srv.URL, srv.Client(), zap.NewNop())

	p, err := client.Pokemon(context.Background(), " 025 ")
	if err != nil {
		t.Fatalf("Pokemon: %v", err)
	}
	if p.ID != 25 || p.Name != "pikachu" || p.PrimaryType() != "electric" {
		t.Fatalf("unexpected record %+v", p)
	}
	if hp, ok := p.Stat("hp"); !ok || hp != 35 {
		t.Fatalf("unexpected hp %d", hp)
	}
	if len(p.Abilities) != 2 || !p.Abilities[1].Hidden {
		t.Fatalf("unexpected abilities %+v", p.Abilities)
	}
	if p.Sprites.Artwork(true) != "https://img/shiny/25.png" {
		t.Fatalf("shiny artwork should fall back to sprite, got %q", p.Sprites.Artwork(true))
	}
	if p.CryURL != "https://cries/25.ogg" || p.SpeciesID() != 25 {
		t.Fatalf("unexpected cry/species %q %d", p.CryURL, p.SpeciesID())
	}
	if hits != 1 {
		t.Fatalf("expected exactly one request, got %d", hits)
	}
}

func TestPokemonOrdersTypesBySlot(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	client := NewClient(srv.URL, srv.Client(), zap.NewNop())

	p, err := client.Pokemon(context.Background(), "Bulbasaur")
	if err != nil {
		t.Fatalf("Pokemon: %v", err)
	}
	if p.PrimaryType() != "grass" || p.SecondaryType() != "poison" {
		t.Fatalf("types not ordered by slot: %v", p.Types)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	client := NewClient(srv.URL, srv.Client(), zap.NewNop())
	ctx := context.Background()

	tests := []struct {
		name string
		ref  string
		want errors.ErrorKind
	}{
		{"non-2xx is not found", "missingno", errors.KindNotFound},
		{"malformed json", "garbled", errors.KindDecode},
		{"shape mismatch", "empty", errors.KindDecode},
		{"empty input", "  ", errors.KindValidation},
		{"path injection", "../type/fire", errors.KindValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Pokemon(ctx, tc.ref)
			if got := errors.KindOf(err); got != tc.want {
				t.Fatalf("expected %s, got %s (%v)", tc.want, got, err)
			}
		})
	}
}

func TestNetworkErrorOnTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	base := srv.URL
	srv.Close()

	client := NewClient(base, &http.Client{Timeout: time.Second}, zap.NewNop())
	_, err := client.TypeRelations(context.Background(), "fire")
	if !errors.Is(err, errors.KindNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestSpeciesAndEvolutionFollowURLs(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	client := NewClient(srv.URL, srv.Client(), zap.NewNop())
	ctx := context.Background()

	species, err := client.Species(ctx, 25)
	if err != nil {
		t.Fatalf("Species: %v", err)
	}
	if got := species.Description("en"); got != "When several of these POKéMON gather" {
		t.Fatalf("unexpected description %q", got)
	}
	if species.GenusFor("EN") != "Mouse Pokémon" {
		t.Fatalf("unexpected genus %q", species.GenusFor("en"))
	}

	chain, err := client.EvolutionChain(ctx, species.EvolutionChainURL)
	if err != nil {
		t.Fatalf("EvolutionChain: %v", err)
	}
	root := chain.Chain
	if root.Species.Name != "pichu" || len(root.Children) != 1 {
		t.Fatalf("unexpected root %+v", root)
	}
	raichu := root.Children[0].Children[0]
	if raichu.Species.ID() != 26 || raichu.Details[0].Item != "thunder-stone" {
		t.Fatalf("unexpected leaf %+v", raichu)
	}

	if _, err := client.EvolutionChain(ctx, "/evolution-chain/10/"); !errors.Is(err, errors.KindValidation) {
		t.Fatalf("relative chain url must be rejected, got %v", err)
	}
}

func TestTypeMoveAndList(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	client := NewClient(srv.URL, srv.Client(), zap.NewNop())
	ctx := context.Background()

	rel, err := client.TypeRelations(ctx, "Electric")
	if err != nil {
		t.Fatalf("TypeRelations: %v", err)
	}
	if len(rel.DoubleDamageFrom) != 1 || len(rel.HalfDamageFrom) != 3 || len(rel.NoDamageFrom) != 0 {
		t.Fatalf("unexpected relations %+v", rel)
	}

	move, err := client.Move(ctx, srv.URL+"/move/84/")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if move.Power == nil || *move.Power != 40 || move.DamageClass != "special" {
		t.Fatalf("unexpected move %+v", move)
	}

	list, err := client.PokemonList(ctx, 2, 0)
	if err != nil {
		t.Fatalf("PokemonList: %v", err)
	}
	if list.Count != 1025 || len(list.Results) != 2 || list.Results[1].ID != 2 {
		t.Fatalf("unexpected list %+v", list)
	}

	if _, err := client.PokemonList(ctx, 0, 0); !errors.Is(err, errors.KindValidation) {
		t.Fatalf("zero limit must be rejected, got %v", err)
	}
}

func TestBreakerShortCircuitsAfterServerErrors(t *testing.T) {
	var hits int64
	srv := newTestServer(t, &hits)
	breaker := util.NewCircuitBreaker("catalog", 2, time.Minute, zap.NewNop())
	client := NewClient(srv.URL, srv.Client(), zap.NewNop(), WithBreaker(breaker))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := client.Move(ctx, srv.URL+"/flaky"); !errors.Is(err, errors.KindNotFound) {
			t.Fatalf("attempt %d: expected not found for 500, got %v", i, err)
		}
	}
	if _, err := client.Move(ctx, srv.URL+"/flaky"); !errors.Is(err, errors.KindNetwork) {
		t.Fatalf("expected open circuit network error, got %v", err)
	}
	if hits != 2 {
		t.Fatalf("open circuit must not reach the server, got %d hits", hits)
	}
}

func TestRequestsAreTraced(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var hits int64
	srv := newTestServer(t, &hits)
	client := NewClient(srv.URL, srv.Client(), zap.NewNop())

	if _, err := client.TypeRelations(context.Background(), "electric"); err != nil {
		t.Fatalf("TypeRelations: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 || spans[0].Name() != "catalog.get type" {
		t.Fatalf("unexpected spans %v", spans)
	}
}
