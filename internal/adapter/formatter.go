package adapter

import (
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/kapu/pokedex-go/internal/domain"
	"github.com/kapu/pokedex-go/internal/effectiveness"
	"github.com/kapu/pokedex-go/internal/service/pokedex"
	"github.com/kapu/pokedex-go/internal/util"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("formatter").Funcs(template.FuncMap{
	"add": func(a, b int) int { return a + b },
}).ParseFS(templateFS, "templates/*.tmpl"))

// ResponseFormatter renders pokedex views as plain text for terminal shells.
type ResponseFormatter struct{}

func NewResponseFormatter() *ResponseFormatter {
	return &ResponseFormatter{}
}

type detailView struct {
	ID          int
	Name        string
	Favorite    bool
	Types       string
	Genus       string
	Height      string
	Weight      string
	Description string
	Stats       []statRow
	Total       int
	Weaknesses  string
	Resistances string
	Immunities  string
	Stages      []string
}

type statRow struct {
	Name string
	Base int
}

// FormatDetail renders the detail view of one pokemon.
func (f *ResponseFormatter) FormatDetail(d *pokedex.Detail) (string, error) {
	if d == nil || d.Pokemon == nil {
		return "", fmt.Errorf("detail is empty")
	}
	pk := d.Pokemon

	view := detailView{
		ID:          pk.ID,
		Name:        pk.DisplayName(),
		Favorite:    d.Favorite,
		Types:       joinDisplay(pk.Types, " / "),
		Genus:       d.Genus,
		Height:      fmt.Sprintf("%.1f m", float64(pk.Height)/10),
		Weight:      fmt.Sprintf("%.1f kg", float64(pk.Weight)/10),
		Description: d.Description,
		Total:       pk.TotalStats(),
		Weaknesses:  FormatMatchups(d.Effectiveness.Weaknesses),
		Resistances: FormatMatchups(d.Effectiveness.Resistances),
		Immunities:  FormatMatchups(d.Effectiveness.Immunities),
	}
	for _, s := range pk.Stats {
		view.Stats = append(view.Stats, statRow{Name: statLabel(s.Name), Base: s.Base})
	}
	for _, s := range d.Stages {
		label := util.DisplayName(s.Name)
		if l := s.Label(); l != "" {
			label += " (" + l + ")"
		}
		view.Stages = append(view.Stages, label)
	}

	var sb strings.Builder
	if err := templates.ExecuteTemplate(&sb, "detail", view); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

// FormatMatchups renders "Fire 2×, Ice 4×" style lists.
func FormatMatchups(ms []effectiveness.Matchup) string {
	parts := make([]string, 0, len(ms))
	for _, m := range ms {
		parts = append(parts, util.DisplayName(m.Type)+" "+effectiveness.FormatMultiplier(m.Multiplier))
	}
	return strings.Join(parts, ", ")
}

// FormatMoves lists resolved moves, one per line.
func (f *ResponseFormatter) FormatMoves(moves []*domain.Move) string {
	if len(moves) == 0 {
		return "No moves available."
	}

	var sb strings.Builder
	for i, m := range moves {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("%s [%s/%s] power %s acc %s",
			util.DisplayName(m.Name),
			util.DisplayName(m.Type),
			m.DamageClass,
			optionalInt(m.Power),
			optionalInt(m.Accuracy),
		))
	}
	return sb.String()
}

// FormatPage renders one page of search results as "#025 Pikachu" rows.
// names maps ids to catalog names; unknown ids print the number only.
func (f *ResponseFormatter) FormatPage(ids []int, names map[int]string, page, total int) string {
	if len(ids) == 0 {
		return "No pokemon match."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Page %d (%d results)\n", page+1, total))
	for _, id := range ids {
		sb.WriteString(fmt.Sprintf("\n#%03d", id))
		if name := names[id]; name != "" {
			sb.WriteString(" " + util.DisplayName(name))
		}
	}
	return sb.String()
}

func joinDisplay(slugs []string, sep string) string {
	out := make([]string, len(slugs))
	for i, s := range slugs {
		out[i] = util.DisplayName(s)
	}
	return strings.Join(out, sep)
}

func statLabel(name string) string {
	switch name {
	case domain.StatHP:
		return "HP"
	case domain.StatSpecialAttack:
		return "Sp. Atk"
	case domain.StatSpecialDefense:
		return "Sp. Def"
	}
	return util.DisplayName(name)
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
