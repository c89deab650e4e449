package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type probe struct {
	Score float64 `json:"score"`
}

func TestRedisL2_GetHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l2 := newRedisL2WithClient(client, "gem:")

	mock.ExpectGet("gem:BTC").SetVal(`{"score":71.5}`)

	var out probe
	found, err := l2.Get(context.Background(), "BTC", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 71.5, out.Score)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisL2_GetMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l2 := newRedisL2WithClient(client, "gem:")

	mock.ExpectGet("gem:MISSING").RedisNil()

	var out probe
	found, err := l2.Get(context.Background(), "MISSING", &out)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisL2_Set(t *testing.T) {
	client, mock := redismock.NewClientMock()
	l2 := newRedisL2WithClient(client, "gem:")

	mock.ExpectSet("gem:BTC", `{"score":80}`, 30*time.Second).SetVal("OK")

	err := l2.Set(context.Background(), "BTC", probe{Score: 80}, 30*time.Second)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
