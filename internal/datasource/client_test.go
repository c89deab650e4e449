package datasource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/autotrader/internal/freshness"
	"github.com/sawpanic/autotrader/internal/model"
	"github.com/sawpanic/autotrader/internal/reliability/breaker"
	"github.com/sawpanic/autotrader/internal/reliability/cache"
	"github.com/sawpanic/autotrader/internal/reliability/ratelimit"
	"github.com/sawpanic/autotrader/internal/reliability/sla"
	"github.com/sawpanic/autotrader/internal/telemetry"
)

type fakeTransport struct {
	calls int
	err   error
	value interface{}
}

func (f *fakeTransport) Do(ctx context.Context, source string, req Request) (interface{}, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.value, nil
}

func newTestSource(name string, transport Transport) *Source {
	return &Source{
		Name:      name,
		Transport: transport,
		Limiter:   ratelimit.New(10, 10),
		Breaker:   breaker.New(name, breaker.Config{FailureThreshold: 5, OpenDuration: time.Minute}, Classify),
		Cache:     cache.New(cache.Config{Mode: cache.ModeTTL, TTL: time.Minute}),
		SLA:       sla.New(time.Minute),
	}
}

func TestClient_FetchSuccessTagsProvenance(t *testing.T) {
	fr := freshness.New()
	fr.Configure("dex", time.Minute, 0)
	c := NewClient(fr, telemetry.NoopEmitter{})
	ft := &fakeTransport{value: map[string]float64{"price": 1.23}}
	c.Register(newTestSource("dex", ft))

	resp, err := c.Fetch(context.Background(), "dex", Request{Endpoint: "/price", Policy: ReadThrough})
	require.NoError(t, err)
	assert.Equal(t, "dex", resp.Provenance.Source)
	assert.NotEmpty(t, resp.Provenance.RequestID)
	assert.Equal(t, model.FreshnessFresh, fr.Level("dex"))
}

func TestClient_FetchCachesReadThrough(t *testing.T) {
	fr := freshness.New()
	fr.Configure("dex", time.Minute, 0)
	c := NewClient(fr, telemetry.NoopEmitter{})
	ft := &fakeTransport{value: 42}
	c.Register(newTestSource("dex", ft))

	req := Request{Endpoint: "/x", IdempotencyKey: "same-key", Policy: ReadThrough}
	_, err := c.Fetch(context.Background(), "dex", req)
	require.NoError(t, err)
	_, err = c.Fetch(context.Background(), "dex", req)
	require.NoError(t, err)

	assert.Equal(t, 1, ft.calls, "second fetch should be served from cache")
}

func TestClient_UnknownSourceIsTransportError(t *testing.T) {
	c := NewClient(freshness.New(), telemetry.NoopEmitter{})
	_, err := c.Fetch(context.Background(), "ghost", Request{})
	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, ErrTransport, fe.Kind)
}
