package store

import (
	"context"
	"encoding/json"
	"testing"

	"tillsync/internal/config"
	"tillsync/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := NewRedisClient(config.RedisConfig{Address: mr.Addr()})
	st := NewRedisStore(client, "till-7")
	t.Cleanup(func() { st.Close() })
	return st, mr
}

func TestRedisRoundTrip(t *testing.T) {
	st, _ := newTestRedisStore(t)
	ctx := context.Background()

	orders := sampleOrders(2)
	orders[1].PaymentMethod = models.PaymentTwint
	require.NoError(t, st.Save(ctx, orders))

	loaded, err := st.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, models.PaymentTwint, loaded[1].PaymentMethod)
}

func TestRedisEmptyLoad(t *testing.T) {
	st, _ := newTestRedisStore(t)
	loaded, err := st.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestRedisKeysAreScopedPerDevice(t *testing.T) {
	mr := miniredis.RunT(t)
	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	stA := NewRedisStore(clientA, "till-1")
	stB := NewRedisStore(clientB, "till-2")
	defer stA.Close()
	defer stB.Close()
	ctx := context.Background()

	require.NoError(t, stA.Save(ctx, sampleOrders(2)))

	loaded, err := stB.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded, "one till must never see another till's queue")
}

func TestRedisEnvelopeIsVersioned(t *testing.T) {
	st, mr := newTestRedisStore(t)
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, sampleOrders(1)))

	raw, err := mr.Get("pos:order_queue:till-7")
	require.NoError(t, err)
	var envelope map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &envelope))
	assert.JSONEq(t, "1", string(envelope["version"]))
}

func TestRedisRefusesNewerEnvelope(t *testing.T) {
	st, mr := newTestRedisStore(t)
	mr.Set("pos:order_queue:till-7", `{"version": 99, "orders": []}`)

	_, err := st.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}
