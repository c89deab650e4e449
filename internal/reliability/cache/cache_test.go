package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_TTLHitThenExpiry(t *testing.T) {
	c := New(Config{Mode: ModeTTL, TTL: 20 * time.Millisecond})
	c.Set("k", "v")

	v, r := c.Get("k")
	assert.Equal(t, Hit, r)
	assert.Equal(t, "v", v)

	time.Sleep(30 * time.Millisecond)
	v, r = c.Get("k")
	assert.Equal(t, Stale, r)
	assert.Equal(t, "v", v) // stale-while-revalidate: value still returned
}

func TestCache_Miss(t *testing.T) {
	c := New(Config{Mode: ModeTTL, TTL: time.Second})
	_, r := c.Get("nope")
	assert.Equal(t, Miss, r)
}

func TestCache_LRUEviction(t *testing.T) {
	c := New(Config{Mode: ModeTTL, TTL: time.Minute, MaxEntries: 2})
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // touch a, making b the LRU victim
	c.Set("c", 3)

	_, rb := c.Get("b")
	assert.Equal(t, Miss, rb, "b should have been evicted as least-recently-used")

	_, ra := c.Get("a")
	assert.Equal(t, Hit, ra)
	_, rc := c.Get("c")
	assert.Equal(t, Hit, rc)
}

func TestCache_AdaptiveShrinksOnLowHitRate(t *testing.T) {
	c := New(Config{
		Mode:         ModeAdaptive,
		TTLMin:       10 * time.Millisecond,
		TTLMax:       time.Minute,
		HotWindow:    time.Minute,
		HotThreshold: 0.9,
	})
	initial := c.EffectiveTTL()

	for i := 0; i < 10; i++ {
		c.Get("miss-me")
	}

	assert.Less(t, c.EffectiveTTL(), initial)
}
