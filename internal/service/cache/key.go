package cache

import (
	"strconv"
	"strings"

	"github.com/kapu/pokedex-go/internal/domain"
	"github.com/kapu/pokedex-go/internal/util"
)

// Key is the semantic identity of a catalog request: record kind plus a
// normalized identifier, name or URL.
type Key struct {
	Kind domain.Kind
	ID   string
}

// NewKey normalizes raw so that "Pikachu", " pikachu " and "pikachu" share a
// slot, and so do "025" and "25". Absolute URLs are kept verbatim because the
// catalog hands them out as opaque references.
func NewKey(kind domain.Kind, raw string) Key {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "://") {
		return Key{Kind: kind, ID: raw}
	}
	if id, ok := util.CanonicalID(raw); ok {
		return Key{Kind: kind, ID: id}
	}
	return Key{Kind: kind, ID: util.Normalize(raw)}
}

// IDKey is NewKey for an already numeric id.
func IDKey(kind domain.Kind, id int) Key {
	return Key{Kind: kind, ID: strconv.Itoa(id)}
}

func (k Key) String() string {
	return k.Kind.String() + ":" + k.ID
}

// IsZero reports whether the key carries no identifier.
func (k Key) IsZero() bool {
	return k.ID == ""
}
