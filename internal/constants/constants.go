package constants

import "time"

// SessionLifetime marks a TTL that never goes stale within a session.
const SessionLifetime time.Duration = 0

var CacheTTL = struct {
	PokemonList time.Duration
	Record      time.Duration
}{
	PokemonList: 30 * time.Minute, // 목록은 카탈로그가 늘어날 수 있음
	Record:      SessionLifetime,
}

var CacheConfig = struct {
	MaxEntries   int
	FetchTimeout time.Duration
	StoreTimeout time.Duration
}{
	MaxEntries:   4096,
	FetchTimeout: 10 * time.Second,
	StoreTimeout: 2 * time.Second,
}

var APIConfig = struct {
	CatalogBaseURL string
	Timeout        time.Duration
	UserAgent      string
}{
	CatalogBaseURL: "https://pokeapi.co/api/v2",
	Timeout:        10 * time.Second,
	UserAgent:      "pokedex-go/1.0",
}

var CatalogConfig = struct {
	TotalPokemon int
	ItemsPerPage int
	DefaultLimit int
	MaxDepth     int
	MovesPreview int
	MovesMax     int
}{
	TotalPokemon: 1025,
	ItemsPerPage: 40,
	DefaultLimit: 1025,
	MaxDepth:     16,
	MovesPreview: 6,
	MovesMax:     30,
}

var PrefetchConfig = struct {
	Concurrency int
	Count       int
}{
	Concurrency: 16,
	Count:       40,
}

var FavoritesConfig = struct {
	StorageKey string
	Table      string
}{
	StorageKey: "pokedex-favorites",
	Table:      "pokedex_kv",
}

// DefaultLanguage is used when selecting flavor text and genus entries.
const DefaultLanguage = "en"
