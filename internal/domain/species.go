package domain

import "github.com/kapu/pokedex-go/internal/util"

// Species holds per-species metadata. FlavorText and Genus are keyed by
// normalized language tag (see util.LanguageKey).
type Species struct {
	ID                int               `json:"id"`
	Name              string            `json:"name"`
	FlavorText        map[string]string `json:"flavorText"`
	Genus             map[string]string `json:"genus"`
	EvolutionChainURL string            `json:"evolutionChainUrl"`
}

// Description returns the flavor text for lang, or "" when missing.
func (s *Species) Description(lang string) string {
	if s == nil {
		return ""
	}
	return s.FlavorText[util.LanguageKey(lang)]
}

// GenusFor returns the genus ("Mouse Pokémon") for lang, or "".
func (s *Species) GenusFor(lang string) string {
	if s == nil {
		return ""
	}
	return s.Genus[util.LanguageKey(lang)]
}
