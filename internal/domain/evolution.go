package domain

import "github.com/kapu/pokedex-go/internal/util"

type SpeciesRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// ID is parsed from the species URL.
func (r SpeciesRef) ID() int {
	return util.IDFromURL(r.URL)
}

// EvolutionDetail is one condition under which the parent evolves into this node.
type EvolutionDetail struct {
	Trigger  string `json:"trigger,omitempty"`
	MinLevel *int   `json:"minLevel,omitempty"`
	Item     string `json:"item,omitempty"`
}

// EvolutionNode is a node of the evolution tree. Details describe the edge
// from the parent into this node; the root has none.
type EvolutionNode struct {
	Species  SpeciesRef        `json:"species"`
	Details  []EvolutionDetail `json:"details,omitempty"`
	Children []*EvolutionNode  `json:"children,omitempty"`
}

// EvolutionChain is the catalog record wrapping the tree root.
type EvolutionChain struct {
	ID    int            `json:"id"`
	Chain *EvolutionNode `json:"chain"`
}
