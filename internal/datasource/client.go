// Package datasource implements the uniform data-source client contract:
// fetch(source, request) -> Result<Response, FetchError>, composed as
// rate_limit.acquire -> cache.lookup -> breaker.call(transport) ->
// cache.store -> sla.record.
package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sawpanic/autotrader/internal/freshness"
	"github.com/sawpanic/autotrader/internal/model"
	"github.com/sawpanic/autotrader/internal/reliability/breaker"
	"github.com/sawpanic/autotrader/internal/reliability/cache"
	"github.com/sawpanic/autotrader/internal/reliability/ratelimit"
	"github.com/sawpanic/autotrader/internal/reliability/sla"
	"github.com/sawpanic/autotrader/internal/telemetry"
)

// CachePolicy selects how a request interacts with the cache.
type CachePolicy string

const (
	ReadThrough       CachePolicy = "read_through"
	Bypass            CachePolicy = "bypass"
	RevalidateIfStale CachePolicy = "revalidate_if_stale"
)

// Request is one call into a data source.
type Request struct {
	Endpoint      string
	IdempotencyKey string
	Policy        CachePolicy
	Params        map[string]string
}

// Response is a successful fetch outcome, tagged with its provenance.
type Response struct {
	Body       interface{}
	Provenance model.Provenance
}

// Transport performs the actual network call. Wire formats (HTTP, WebSocket,
// gRPC) are deliberately out of scope here; Transport is the seam where a
// concrete client would be injected.
type Transport interface {
	Do(ctx context.Context, source string, req Request) (interface{}, error)
}

// Source bundles one data source's reliability envelope.
type Source struct {
	Name      string
	Transport Transport
	Limiter   *ratelimit.Limiter
	Breaker   *breaker.Breaker
	Cache     *cache.Cache
	SLA       *sla.Tracker
}

// Client dispatches fetches to registered sources.
type Client struct {
	sources   map[string]*Source
	freshness *freshness.Registry
	emitter   telemetry.Emitter
}

// NewClient constructs a client over a freshness registry and metrics
// emitter shared with the rest of the engine.
func NewClient(fr *freshness.Registry, emitter telemetry.Emitter) *Client {
	if emitter == nil {
		emitter = telemetry.NoopEmitter{}
	}
	return &Client{sources: make(map[string]*Source), freshness: fr, emitter: emitter}
}

// Register adds (or replaces) a source's reliability envelope.
func (c *Client) Register(src *Source) {
	c.sources[src.Name] = src
}

// acquireTimeout bounds how long Fetch waits for a rate-limit token before
// giving up; zero means "don't block", reused here as the request-level
// default.
const acquireTimeout = 2 * time.Second

// Fetch executes the full composition: acquire -> cache lookup -> breaker
// call -> cache store -> sla record. It never panics; every fallible step
// maps to a *FetchError rather than an exception.
func (c *Client) Fetch(ctx context.Context, source string, req Request) (*Response, error) {
	src, ok := c.sources[source]
	if !ok {
		return nil, &FetchError{Kind: ErrTransport, Source: source, Cause: fmt.Errorf("unknown source %q", source)}
	}

	requestID := req.IdempotencyKey
	if requestID == "" {
		requestID = uuid.NewString()
	}

	cacheKey := source + ":" + req.Endpoint + ":" + requestID

	if err := src.Limiter.Acquire(ctx, 1, acquireTimeout); err != nil {
		c.emitter.IncCounter("datasource_rate_limited_total", map[string]string{"source": source})
		return nil, &FetchError{Kind: ErrRateLimited, Source: source, RequestID: requestID, Cause: err}
	}

	if req.Policy != Bypass {
		if cached, result := src.Cache.Get(cacheKey); result == cache.Hit {
			return cached.(*Response), nil
		} else if result == cache.Stale && req.Policy != RevalidateIfStale {
			return cached.(*Response), nil
		}
	}

	start := time.Now()
	result, err := src.Breaker.Call(ctx, func(ctx context.Context) (interface{}, error) {
		return src.Transport.Do(ctx, source, req)
	})
	end := time.Now()

	if err != nil {
		fe := classifyTransportError(source, requestID, err)
		success := !fe.Transient() // 4xx/decode don't count against SLA success rate penalty as transport outage
		src.SLA.Record(start, end, success)
		c.freshness.RecordError(source, fe)
		c.emitter.IncCounter("datasource_fetch_errors_total", map[string]string{"source": source, "kind": string(fe.Kind)})
		return nil, fe
	}

	resp := &Response{
		Body: result,
		Provenance: model.Provenance{
			Source:    source,
			Endpoint:  req.Endpoint,
			RequestID: requestID,
			FetchedAt: end,
		},
	}

	if req.Policy != Bypass {
		src.Cache.Set(cacheKey, resp)
	}
	src.SLA.Record(start, end, true)
	c.freshness.RecordSuccess(source, end)
	c.emitter.ObserveLatency("datasource_fetch_duration_seconds", map[string]string{"source": source}, end.Sub(start))

	return resp, nil
}

// classifyTransportError maps a breaker/transport error into a tagged
// FetchError. breaker.ErrCircuitOpen is passed straight through; everything
// else is assumed Transport unless it already arrives as a *FetchError from
// the Transport implementation (which knows its own upstream status codes).
func classifyTransportError(source, requestID string, err error) *FetchError {
	if fe, ok := err.(*FetchError); ok {
		fe.Source = source
		fe.RequestID = requestID
		return fe
	}
	if err == breaker.ErrCircuitOpen {
		return &FetchError{Kind: ErrCircuitOpen, Source: source, RequestID: requestID, Cause: err}
	}
	return &FetchError{Kind: ErrTransport, Source: source, RequestID: requestID, Cause: err}
}

// Classify adapts a *FetchError into the breaker.FailureKind it should be
// counted as: only Timeout, RateLimited, Transport, and Http5xx trip the
// breaker; business-level 4xx responses never do.
func Classify(err error) breaker.FailureKind {
	fe, ok := err.(*FetchError)
	if !ok {
		return breaker.FailureTransport
	}
	switch fe.Kind {
	case ErrTimeout:
		return breaker.FailureTimeout
	case ErrRateLimited:
		return breaker.FailureRateLimited
	case ErrUpstream5xx:
		return breaker.FailureHTTP5xx
	case ErrTransport:
		return breaker.FailureTransport
	default:
		return breaker.FailureNone
	}
}
