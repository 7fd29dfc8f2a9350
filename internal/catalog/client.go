package catalog

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kapu/pokedex-go/internal/constants"
	"github.com/kapu/pokedex-go/internal/domain"
	"github.com/kapu/pokedex-go/internal/observe"
	"github.com/kapu/pokedex-go/internal/util"
	"github.com/kapu/pokedex-go/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxBodyBytes = 8 << 20

// Catalog is the read-only view of the remote catalog consumed by the cache layer.
type Catalog interface {
	Pokemon(ctx context.Context, idOrName string) (*domain.Pokemon, error)
	Species(ctx context.Context, id int) (*domain.Species, error)
	EvolutionChain(ctx context.Context, chainURL string) (*domain.EvolutionChain, error)
	TypeRelations(ctx context.Context, name string) (*domain.TypeRelations, error)
	Move(ctx context.Context, moveURL string) (*domain.Move, error)
	PokemonList(ctx context.Context, limit, offset int) (*domain.PokemonList, error)
}

// Client issues exactly one GET per call. Retrying is the caller's concern.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *util.CircuitBreaker
	metrics    *observe.Metrics
	logger     *zap.Logger
}

type Option func(*Client)

// WithBreaker short-circuits requests while the catalog keeps failing.
func WithBreaker(cb *util.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = constants.APIConfig.CatalogBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: constants.APIConfig.Timeout}
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     util.OrNop(logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Pokemon(ctx context.Context, idOrName string) (*domain.Pokemon, error) {
	segment, err := pathSegment("idOrName", idOrName)
	if err != nil {
		return nil, err
	}

	var raw PokemonRaw
	if err := c.doRequest(ctx, domain.KindPokemon, c.baseURL+"/pokemon/"+segment, &raw); err != nil {
		return nil, err
	}
	if raw.ID <= 0 || raw.Name == "" || len(raw.Types) == 0 {
		return nil, c.shapeError(ctx, domain.KindPokemon, idOrName, "pokemon record missing id, name or types")
	}
	return raw.toDomain(), nil
}

func (c *Client) Species(ctx context.Context, id int) (*domain.Species, error) {
	if id <= 0 {
		return nil, errors.NewValidationError("species id must be positive", "id", id)
	}

	var raw SpeciesRaw
	if err := c.doRequest(ctx, domain.KindSpecies, c.baseURL+"/pokemon-species/"+strconv.Itoa(id), &raw); err != nil {
		return nil, err
	}
	if raw.ID <= 0 || raw.Name == "" {
		return nil, c.shapeError(ctx, domain.KindSpecies, strconv.Itoa(id), "species record missing id or name")
	}
	return raw.toDomain(), nil
}

// EvolutionChain follows the chain URL embedded in a species record verbatim.
func (c *Client) EvolutionChain(ctx context.Context, chainURL string) (*domain.EvolutionChain, error) {
	if err := absoluteURL("chainURL", chainURL); err != nil {
		return nil, err
	}

	var raw EvolutionChainRaw
	if err := c.doRequest(ctx, domain.KindEvolution, chainURL, &raw); err != nil {
		return nil, err
	}
	if raw.Chain == nil || raw.Chain.Species.Name == "" {
		return nil, c.shapeError(ctx, domain.KindEvolution, chainURL, "evolution chain missing root")
	}
	return &domain.EvolutionChain{ID: raw.ID, Chain: raw.Chain.toDomain()}, nil
}

func (c *Client) TypeRelations(ctx context.Context, name string) (*domain.TypeRelations, error) {
	segment, err := pathSegment("name", name)
	if err != nil {
		return nil, err
	}

	var raw TypeRaw
	if err := c.doRequest(ctx, domain.KindType, c.baseURL+"/type/"+segment, &raw); err != nil {
		return nil, err
	}
	if raw.Name == "" {
		return nil, c.shapeError(ctx, domain.KindType, name, "type record missing name")
	}
	return raw.toDomain(), nil
}

// Move follows a move URL from a pokemon record verbatim.
func (c *Client) Move(ctx context.Context, moveURL string) (*domain.Move, error) {
	if err := absoluteURL("moveURL", moveURL); err != nil {
		return nil, err
	}

	var raw MoveRaw
	if err := c.doRequest(ctx, domain.KindMove, moveURL, &raw); err != nil {
		return nil, err
	}
	if raw.Name == "" {
		return nil, c.shapeError(ctx, domain.KindMove, moveURL, "move record missing name")
	}
	return raw.toDomain(), nil
}

func (c *Client) PokemonList(ctx context.Context, limit, offset int) (*domain.PokemonList, error) {
	if limit <= 0 {
		return nil, errors.NewValidationError("limit must be positive", "limit", limit)
	}
	if offset < 0 {
		return nil, errors.NewValidationError("offset must not be negative", "offset", offset)
	}

	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	var raw PokemonListRaw
	if err := c.doRequest(ctx, domain.KindPokemonList, c.baseURL+"/pokemon?"+params.Encode(), &raw); err != nil {
		return nil, err
	}
	if raw.Results == nil {
		return nil, c.shapeError(ctx, domain.KindPokemonList, params.Encode(), "list response missing results")
	}
	return raw.toDomain(), nil
}

func (c *Client) doRequest(ctx context.Context, kind domain.Kind, reqURL string, dest any) (err error) {
	ctx, span := observe.StartSpan(ctx, "catalog.get "+kind.String(),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("catalog.kind", kind.String()),
			attribute.String("url.full", reqURL),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errors.KindOf(err).String())
			c.metrics.RecordCatalogError(ctx, kind.String(), errors.KindOf(err).String())
		}
		span.End()
	}()

	if !c.breaker.Allow() {
		retryAfter := c.breaker.RetryAfter()
		c.logger.Warn("Catalog circuit open, skipping request",
			zap.String("kind", kind.String()),
			zap.Duration("retry_after", retryAfter),
		)
		return errors.NewNetworkError("catalog circuit open", map[string]any{
			"url":            reqURL,
			"retry_after_ms": retryAfter.Milliseconds(),
		}, nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.NewValidationError("invalid request url", "url", reqURL)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", constants.APIConfig.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		c.logger.Warn("Catalog request failed",
			zap.String("kind", kind.String()),
			zap.String("url", reqURL),
			zap.Error(err),
		)
		return errors.NewNetworkError("catalog request failed", map[string]any{"url": reqURL}, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		c.logger.Debug("Catalog resource not found",
			zap.String("kind", kind.String()),
			zap.String("url", reqURL),
			zap.Int("status", resp.StatusCode),
		)
		return errors.NewNotFoundError(fmt.Sprintf("%s not found: %s", kind, resp.Status), resp.StatusCode, map[string]any{
			"url": reqURL,
		})
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(dest); err != nil {
		var netErr interface{ Timeout() bool }
		if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) ||
			(stderrors.As(err, &netErr) && netErr.Timeout()) {
			c.breaker.RecordFailure()
			return errors.NewNetworkError("catalog response interrupted", map[string]any{"url": reqURL}, err)
		}
		c.breaker.RecordSuccess()
		c.logger.Error("Catalog response decode failed",
			zap.String("kind", kind.String()),
			zap.String("url", reqURL),
			zap.Error(err),
		)
		return errors.NewDecodeError(fmt.Sprintf("failed to decode %s response", kind), map[string]any{
			"url": reqURL,
		}, err)
	}

	c.breaker.RecordSuccess()
	return nil
}

func (c *Client) shapeError(ctx context.Context, kind domain.Kind, ref, message string) error {
	c.logger.Error("Catalog response has unexpected shape",
		zap.String("kind", kind.String()),
		zap.String("ref", ref),
		zap.String("reason", message),
	)
	c.metrics.RecordCatalogError(ctx, kind.String(), errors.KindDecode.String())
	return errors.NewDecodeError(message, map[string]any{"kind": kind.String(), "ref": ref}, nil)
}

func pathSegment(field, value string) (string, error) {
	value = util.Normalize(value)
	if value == "" {
		return "", errors.NewValidationError(field+" is required", field, value)
	}
	if strings.ContainsAny(value, "/?#") {
		return "", errors.NewValidationError(field+" must be a single path segment", field, value)
	}
	if id, ok := util.CanonicalID(value); ok {
		return id, nil
	}
	return url.PathEscape(value), nil
}

func absoluteURL(field, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.NewValidationError(field+" must be an absolute http(s) url", field, raw)
	}
	return nil
}
