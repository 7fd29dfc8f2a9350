// Package effectiveness derives defensive type matchups from one or two
// type-relation tables. Everything here is pure: same input, same output.
package effectiveness

import (
	"sort"
	"strconv"

	"github.com/kapu/pokedex-go/internal/domain"
	"github.com/kapu/pokedex-go/internal/util"
)

// Matchup is one attacking type and the multiplier it deals.
type Matchup struct {
	Type       string  `json:"type"`
	Multiplier float64 `json:"multiplier"`
}

// Result holds every attacking type touched by the relation tables plus the
// three display buckets. Types left at 1x are in Multipliers but in no bucket.
type Result struct {
	Multipliers map[string]float64 `json:"multipliers"`
	Weaknesses  []Matchup          `json:"weaknesses"`
	Resistances []Matchup          `json:"resistances"`
	Immunities  []Matchup          `json:"immunities"`
}

// Derive combines primary and the optional secondary table. Multipliers are
// applied table by table: x2 per double_damage_from, x0.5 per
// half_damage_from, 0 per no_damage_from. Once a type is 0 it stays 0, so an
// immunity wins regardless of which table carries it.
func Derive(primary domain.TypeRelations, secondary *domain.TypeRelations) Result {
	multipliers := make(map[string]float64)
	apply(multipliers, primary)
	if secondary != nil {
		apply(multipliers, *secondary)
	}

	res := Result{
		Multipliers: multipliers,
		Weaknesses:  []Matchup{},
		Resistances: []Matchup{},
		Immunities:  []Matchup{},
	}
	for t, m := range multipliers {
		switch {
		case m == 0:
			res.Immunities = append(res.Immunities, Matchup{Type: t, Multiplier: m})
		case m > 1:
			res.Weaknesses = append(res.Weaknesses, Matchup{Type: t, Multiplier: m})
		case m < 1:
			res.Resistances = append(res.Resistances, Matchup{Type: t, Multiplier: m})
		}
	}

	sort.Slice(res.Weaknesses, func(i, j int) bool {
		a, b := res.Weaknesses[i], res.Weaknesses[j]
		if a.Multiplier != b.Multiplier {
			return a.Multiplier > b.Multiplier
		}
		return a.Type < b.Type
	})
	sort.Slice(res.Resistances, func(i, j int) bool {
		a, b := res.Resistances[i], res.Resistances[j]
		if a.Multiplier != b.Multiplier {
			return a.Multiplier < b.Multiplier
		}
		return a.Type < b.Type
	})
	sort.Slice(res.Immunities, func(i, j int) bool {
		return res.Immunities[i].Type < res.Immunities[j].Type
	})
	return res
}

func apply(multipliers map[string]float64, rel domain.TypeRelations) {
	scale := func(names []string, factor float64) {
		for _, name := range names {
			m, seen := multipliers[name]
			if !seen {
				m = 1
			}
			multipliers[name] = m * factor
		}
	}
	scale(rel.DoubleDamageFrom, 2)
	scale(rel.HalfDamageFrom, 0.5)
	for _, name := range rel.NoDamageFrom {
		multipliers[name] = 0
	}
}

// Multiplier returns the damage multiplier for an attacking type; 1 when untouched.
func (r Result) Multiplier(attacking string) float64 {
	if m, ok := r.Multipliers[util.Normalize(attacking)]; ok {
		return m
	}
	return 1
}

// IsNeutral reports whether no attacking type deviates from 1x.
func (r Result) IsNeutral() bool {
	return len(r.Weaknesses) == 0 && len(r.Resistances) == 0 && len(r.Immunities) == 0
}

// FormatMultiplier renders a multiplier the way the detail view shows it.
func FormatMultiplier(m float64) string {
	switch m {
	case 0.5:
		return "½×"
	case 0.25:
		return "¼×"
	}
	return strconv.FormatFloat(m, 'f', -1, 64) + "×"
}
