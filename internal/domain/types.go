package domain

// TypeRelations is the damage-relation table of a single type. Missing sets are empty.
type TypeRelations struct {
	Name             string   `json:"name"`
	DoubleDamageFrom []string `json:"doubleDamageFrom,omitempty"`
	HalfDamageFrom   []string `json:"halfDamageFrom,omitempty"`
	NoDamageFrom     []string `json:"noDamageFrom,omitempty"`
	DoubleDamageTo   []string `json:"doubleDamageTo,omitempty"`
	HalfDamageTo     []string `json:"halfDamageTo,omitempty"`
	NoDamageTo       []string `json:"noDamageTo,omitempty"`
}

// Move is the detail record behind a MoveRef.
type Move struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Power       *int   `json:"power,omitempty"`
	Accuracy    *int   `json:"accuracy,omitempty"`
	Type        string `json:"type"`
	DamageClass string `json:"damageClass"`
}

type ListItem struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// PokemonList is one page of the catalog index.
type PokemonList struct {
	Count   int        `json:"count"`
	Results []ListItem `json:"results"`
}

// KnownTypes is the fixed set of type tags, in catalog order.
var KnownTypes = []string{
	"normal", "fire", "water", "electric", "grass", "ice",
	"fighting", "poison", "ground", "flying", "psychic", "bug",
	"rock", "ghost", "dragon", "dark", "steel", "fairy",
}
