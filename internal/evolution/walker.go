// Package evolution flattens evolution trees into the ordered stage list the
// detail view renders.
package evolution

import (
	"strconv"

	"github.com/kapu/pokedex-go/internal/constants"
	"github.com/kapu/pokedex-go/internal/domain"
	"github.com/kapu/pokedex-go/internal/util"
	"github.com/kapu/pokedex-go/pkg/errors"
)

const triggerLevelUp = "level-up"

// Stage is one species in a flattened chain, with the condition of the edge
// that leads into it. The root stage has no condition.
type Stage struct {
	Name     string `json:"name"`
	ID       int    `json:"id"`
	MinLevel *int   `json:"minLevel,omitempty"`
	Trigger  string `json:"trigger,omitempty"`
	Item     string `json:"item,omitempty"`
	// Alternatives holds every detail of the incoming edge. Only FlattenAll fills it.
	Alternatives []domain.EvolutionDetail `json:"alternatives,omitempty"`
}

// Flatten walks the tree in pre-order. Each stage keeps only the first
// evolution detail of its incoming edge, and sibling branches follow each
// other in traversal order, so branch membership cannot be recovered from
// the result.
func Flatten(root *domain.EvolutionNode) ([]Stage, error) {
	return walk(root, false)
}

// FlattenAll is Flatten with every alternative trigger of each edge kept.
func FlattenAll(root *domain.EvolutionNode) ([]Stage, error) {
	return walk(root, true)
}

// Evolves reports whether a flattened chain has more than one stage.
func Evolves(stages []Stage) bool {
	return len(stages) > 1
}

// Label renders the arrival condition: level first, then item, then any
// trigger other than plain level-up.
func (s Stage) Label() string {
	switch {
	case s.MinLevel != nil:
		return "Lv. " + strconv.Itoa(*s.MinLevel)
	case s.Item != "":
		return util.DisplayName(s.Item)
	case s.Trigger != "" && s.Trigger != triggerLevelUp:
		return util.DisplayName(s.Trigger)
	}
	return ""
}

type walker struct {
	all     bool
	maxDeep int
	seen    map[string]struct{}
	stages  []Stage
}

func walk(root *domain.EvolutionNode, all bool) ([]Stage, error) {
	if root == nil {
		return nil, errors.NewMalformedGraphError("evolution graph has no root", nil)
	}
	w := &walker{
		all:     all,
		maxDeep: constants.CatalogConfig.MaxDepth,
		seen:    make(map[string]struct{}),
	}
	if err := w.visit(root, 0); err != nil {
		return nil, err
	}
	return w.stages, nil
}

func (w *walker) visit(node *domain.EvolutionNode, depth int) error {
	if depth > w.maxDeep {
		return errors.NewMalformedGraphError("evolution graph exceeds maximum depth", map[string]any{
			"species":   node.Species.Name,
			"max_depth": w.maxDeep,
		})
	}

	identity := node.Species.URL
	if identity == "" {
		identity = util.Normalize(node.Species.Name)
	}
	if _, dup := w.seen[identity]; dup {
		return errors.NewMalformedGraphError("evolution graph revisits a species", map[string]any{
			"species": node.Species.Name,
		})
	}
	w.seen[identity] = struct{}{}

	stage := Stage{
		Name: node.Species.Name,
		ID:   node.Species.ID(),
	}
	if len(node.Details) > 0 {
		first := node.Details[0]
		if first.MinLevel != nil {
			level := *first.MinLevel
			stage.MinLevel = &level
		}
		stage.Trigger = first.Trigger
		stage.Item = first.Item
		if w.all {
			stage.Alternatives = cloneDetails(node.Details)
		}
	}
	w.stages = append(w.stages, stage)

	for _, child := range node.Children {
		if child == nil {
			continue
		}
		if err := w.visit(child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// cloneDetails copies details so stages never alias the cached chain.
func cloneDetails(details []domain.EvolutionDetail) []domain.EvolutionDetail {
	out := make([]domain.EvolutionDetail, len(details))
	for i, d := range details {
		if d.MinLevel != nil {
			level := *d.MinLevel
			d.MinLevel = &level
		}
		out[i] = d
	}
	return out
}
