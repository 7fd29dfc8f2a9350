package domain

import (
	"strings"

	"github.com/kapu/pokedex-go/internal/util"
)

// Kind names a catalog record kind. It doubles as the cache key namespace.
type Kind string

const (
	KindPokemon     Kind = "pokemon"
	KindSpecies     Kind = "pokemon-species"
	KindEvolution   Kind = "evolution-chain"
	KindType        Kind = "type"
	KindMove        Kind = "move"
	KindPokemonList Kind = "pokemon-list"
)

func (k Kind) String() string {
	return string(k)
}

// Kinds lists every record kind in dependency-free order.
var Kinds = []Kind{KindPokemonList, KindPokemon, KindSpecies, KindEvolution, KindType, KindMove}

// Stat names as reported by the catalog.
const (
	StatHP             = "hp"
	StatAttack         = "attack"
	StatDefense        = "defense"
	StatSpecialAttack  = "special-attack"
	StatSpecialDefense = "special-defense"
	StatSpeed          = "speed"
)

// Pokemon is one catalog entity record. Treat as immutable once fetched.
type Pokemon struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	Types      []string  `json:"types"`
	Stats      []Stat    `json:"stats"`
	Abilities  []Ability `json:"abilities"`
	Moves      []MoveRef `json:"moves"`
	Sprites    Sprites   `json:"sprites"`
	CryURL     string    `json:"cryUrl,omitempty"`
	Height     int       `json:"height"`
	Weight     int       `json:"weight"`
	SpeciesURL string    `json:"speciesUrl,omitempty"`
}

type Stat struct {
	Name string `json:"name"`
	Base int    `json:"base"`
}

type Ability struct {
	Name   string `json:"name"`
	Hidden bool   `json:"hidden"`
}

type MoveRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Sprites struct {
	Default        string `json:"default,omitempty"`
	Shiny          string `json:"shiny,omitempty"`
	ArtworkDefault string `json:"artworkDefault,omitempty"`
	ArtworkShiny   string `json:"artworkShiny,omitempty"`
}

// Artwork returns the high-res artwork, falling back to the small sprite.
func (s Sprites) Artwork(shiny bool) string {
	if shiny {
		return firstNonEmpty(s.ArtworkShiny, s.Shiny)
	}
	return firstNonEmpty(s.ArtworkDefault, s.Default)
}

// Sprite returns the small sprite variant.
func (s Sprites) Sprite(shiny bool) string {
	if shiny {
		return s.Shiny
	}
	return s.Default
}

// PrimaryType returns the slot-1 type.
func (p *Pokemon) PrimaryType() string {
	if p == nil || len(p.Types) == 0 {
		return ""
	}
	return p.Types[0]
}

// SecondaryType returns the slot-2 type, or "" for single-typed records.
func (p *Pokemon) SecondaryType() string {
	if p == nil || len(p.Types) < 2 {
		return ""
	}
	return p.Types[1]
}

// Stat returns the base value of the named stat and whether it exists.
func (p *Pokemon) Stat(name string) (int, bool) {
	for _, s := range p.Stats {
		if s.Name == name {
			return s.Base, true
		}
	}
	return 0, false
}

// TotalStats sums the base stats.
func (p *Pokemon) TotalStats() int {
	total := 0
	for _, s := range p.Stats {
		total += s.Base
	}
	return total
}

// DisplayName is the title-cased name shown by the UI.
func (p *Pokemon) DisplayName() string {
	return util.DisplayName(p.Name)
}

// SpeciesID is parsed from the species reference URL.
func (p *Pokemon) SpeciesID() int {
	if id := util.IDFromURL(p.SpeciesURL); id > 0 {
		return id
	}
	return p.ID
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
