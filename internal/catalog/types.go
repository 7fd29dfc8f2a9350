package catalog

import (
	"sort"

	"github.com/kapu/pokedex-go/internal/domain"
	"github.com/kapu/pokedex-go/internal/util"
)

type namedRaw struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// PokemonRaw represents the raw /pokemon/{id} response
type PokemonRaw struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Height int    `json:"height"`
	Weight int    `json:"weight"`
	Types  []struct {
		Slot int      `json:"slot"`
		Type namedRaw `json:"type"`
	} `json:"types"`
	Stats []struct {
		BaseStat int      `json:"base_stat"`
		Stat     namedRaw `json:"stat"`
	} `json:"stats"`
	Abilities []struct {
		Ability  namedRaw `json:"ability"`
		IsHidden bool     `json:"is_hidden"`
	} `json:"abilities"`
	Moves []struct {
		Move namedRaw `json:"move"`
	} `json:"moves"`
	Sprites struct {
		FrontDefault string `json:"front_default"`
		FrontShiny   string `json:"front_shiny"`
		Other        struct {
			OfficialArtwork struct {
				FrontDefault string `json:"front_default"`
				FrontShiny   string `json:"front_shiny"`
			} `json:"official-artwork"`
		} `json:"other"`
	} `json:"sprites"`
	Species namedRaw `json:"species"`
	Cries   *struct {
		Latest string `json:"latest"`
		Legacy string `json:"legacy"`
	} `json:"cries,omitempty"`
}

// SpeciesRaw represents the raw /pokemon-species/{id} response
type SpeciesRaw struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	FlavorTextEntries []struct {
		FlavorText string   `json:"flavor_text"`
		Language   namedRaw `json:"language"`
		Version    namedRaw `json:"version"`
	} `json:"flavor_text_entries"`
	Genera []struct {
		Genus    string   `json:"genus"`
		Language namedRaw `json:"language"`
	} `json:"genera"`
	EvolutionChain *namedRaw `json:"evolution_chain"`
}

type evolutionLinkRaw struct {
	Species          namedRaw `json:"species"`
	EvolutionDetails []struct {
		MinLevel *int      `json:"min_level"`
		Trigger  *namedRaw `json:"trigger"`
		Item     *namedRaw `json:"item"`
	} `json:"evolution_details"`
	EvolvesTo []*evolutionLinkRaw `json:"evolves_to"`
}

// EvolutionChainRaw represents the raw evolution-chain response
type EvolutionChainRaw struct {
	ID    int               `json:"id"`
	Chain *evolutionLinkRaw `json:"chain"`
}

// TypeRaw represents the raw /type/{name} response
type TypeRaw struct {
	ID              int    `json:"id"`
	Name            string `json:"name"`
	DamageRelations *struct {
		DoubleDamageFrom []namedRaw `json:"double_damage_from"`
		DoubleDamageTo   []namedRaw `json:"double_damage_to"`
		HalfDamageFrom   []namedRaw `json:"half_damage_from"`
		HalfDamageTo     []namedRaw `json:"half_damage_to"`
		NoDamageFrom     []namedRaw `json:"no_damage_from"`
		NoDamageTo       []namedRaw `json:"no_damage_to"`
	} `json:"damage_relations"`
}

// MoveRaw represents the raw move response
type MoveRaw struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Power       *int      `json:"power"`
	Accuracy    *int      `json:"accuracy"`
	Type        *namedRaw `json:"type"`
	DamageClass *namedRaw `json:"damage_class"`
}

// PokemonListRaw represents the raw /pokemon?limit=&offset= response
type PokemonListRaw struct {
	Count   int        `json:"count"`
	Results []namedRaw `json:"results"`
}

func (r *PokemonRaw) toDomain() *domain.Pokemon {
	p := &domain.Pokemon{
		ID:         r.ID,
		Name:       r.Name,
		Height:     r.Height,
		Weight:     r.Weight,
		SpeciesURL: r.Species.URL,
		Sprites: domain.Sprites{
			Default:        r.Sprites.FrontDefault,
			Shiny:          r.Sprites.FrontShiny,
			ArtworkDefault: r.Sprites.Other.OfficialArtwork.FrontDefault,
			ArtworkShiny:   r.Sprites.Other.OfficialArtwork.FrontShiny,
		},
	}

	types := append(r.Types[:0:0], r.Types...)
	sort.SliceStable(types, func(i, j int) bool { return types[i].Slot < types[j].Slot })
	p.Types = make([]string, 0, len(types))
	for _, t := range types {
		p.Types = append(p.Types, t.Type.Name)
	}

	p.Stats = make([]domain.Stat, 0, len(r.Stats))
	for _, s := range r.Stats {
		p.Stats = append(p.Stats, domain.Stat{Name: s.Stat.Name, Base: s.BaseStat})
	}
	p.Abilities = make([]domain.Ability, 0, len(r.Abilities))
	for _, a := range r.Abilities {
		p.Abilities = append(p.Abilities, domain.Ability{Name: a.Ability.Name, Hidden: a.IsHidden})
	}
	p.Moves = make([]domain.MoveRef, 0, len(r.Moves))
	for _, m := range r.Moves {
		p.Moves = append(p.Moves, domain.MoveRef{Name: m.Move.Name, URL: m.Move.URL})
	}
	if r.Cries != nil {
		p.CryURL = r.Cries.Latest
		if p.CryURL == "" {
			p.CryURL = r.Cries.Legacy
		}
	}
	return p
}

func (r *SpeciesRaw) toDomain() *domain.Species {
	s := &domain.Species{
		ID:         r.ID,
		Name:       r.Name,
		FlavorText: make(map[string]string),
		Genus:      make(map[string]string),
	}
	// first entry per language wins
	for _, e := range r.FlavorTextEntries {
		lang := util.LanguageKey(e.Language.Name)
		if _, ok := s.FlavorText[lang]; ok {
			continue
		}
		s.FlavorText[lang] = util.CleanFlavorText(e.FlavorText)
	}
	for _, g := range r.Genera {
		lang := util.LanguageKey(g.Language.Name)
		if _, ok := s.Genus[lang]; ok {
			continue
		}
		s.Genus[lang] = g.Genus
	}
	if r.EvolutionChain != nil {
		s.EvolutionChainURL = r.EvolutionChain.URL
	}
	return s
}

func (l *evolutionLinkRaw) toDomain() *domain.EvolutionNode {
	if l == nil {
		return nil
	}
	node := &domain.EvolutionNode{
		Species: domain.SpeciesRef{Name: l.Species.Name, URL: l.Species.URL},
	}
	for _, d := range l.EvolutionDetails {
		detail := domain.EvolutionDetail{MinLevel: d.MinLevel}
		if d.Trigger != nil {
			detail.Trigger = d.Trigger.Name
		}
		if d.Item != nil {
			detail.Item = d.Item.Name
		}
		node.Details = append(node.Details, detail)
	}
	for _, child := range l.EvolvesTo {
		if c := child.toDomain(); c != nil {
			node.Children = append(node.Children, c)
		}
	}
	return node
}

func names(items []namedRaw) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Name != "" {
			out = append(out, it.Name)
		}
	}
	return out
}

func (r *TypeRaw) toDomain() *domain.TypeRelations {
	rel := &domain.TypeRelations{Name: r.Name}
	if dr := r.DamageRelations; dr != nil {
		rel.DoubleDamageFrom = names(dr.DoubleDamageFrom)
		rel.HalfDamageFrom = names(dr.HalfDamageFrom)
		rel.NoDamageFrom = names(dr.NoDamageFrom)
		rel.DoubleDamageTo = names(dr.DoubleDamageTo)
		rel.HalfDamageTo = names(dr.HalfDamageTo)
		rel.NoDamageTo = names(dr.NoDamageTo)
	}
	return rel
}

func (r *MoveRaw) toDomain() *domain.Move {
	m := &domain.Move{
		ID:       r.ID,
		Name:     r.Name,
		Power:    r.Power,
		Accuracy: r.Accuracy,
	}
	if r.Type != nil {
		m.Type = r.Type.Name
	}
	if r.DamageClass != nil {
		m.DamageClass = r.DamageClass.Name
	}
	return m
}

func (r *PokemonListRaw) toDomain() *domain.PokemonList {
	list := &domain.PokemonList{
		Count:   r.Count,
		Results: make([]domain.ListItem, 0, len(r.Results)),
	}
	for _, it := range r.Results {
		list.Results = append(list.Results, domain.ListItem{
			ID:   util.IDFromURL(it.URL),
			Name: it.Name,
			URL:  it.URL,
		})
	}
	return list
}
