package notifications

import (
	"context"
	"testing"
	"time"

	"classifieds/internal/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub := NewHub()

	a, err := hub.Register(10, nil)
	require.NoError(t, err)
	b, err := hub.Register(10, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, hub.ConnectionCount(10))

	hub.Unregister(a)
	hub.Unregister(a)
	assert.Equal(t, 1, hub.ConnectionCount(10))

	_, open := <-a.Send
	assert.False(t, open, "send queue is closed on unregister")

	hub.Unregister(b)
	assert.Equal(t, 0, hub.ConnectionCount(10))
}

func TestHub_PerUserLimit(t *testing.T) {
	hub := NewHub()
	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(3, nil)
		require.NoError(t, err)
	}

	_, err := hub.Register(3, nil)
	assert.ErrorIs(t, err, ErrUserConnLimit)

	_, err = hub.Register(4, nil)
	assert.NoError(t, err)
}

func TestHub_DeliverOnlyToTargetUser(t *testing.T) {
	hub := NewHub()
	seller, err := hub.Register(1, nil)
	require.NoError(t, err)
	other, err := hub.Register(2, nil)
	require.NoError(t, err)

	hub.Deliver(1, []byte(`{"type":"message_received"}`))

	assert.Equal(t, `{"type":"message_received"}`, string(<-seller.Send))
	assert.Empty(t, other.Send)
}

func TestClient_TrySendDropsWhenFull(t *testing.T) {
	hub := NewHub()
	client, err := hub.Register(5, nil)
	require.NoError(t, err)

	before := testutil.ToFloat64(observability.WebSocketBackpressureDrops.WithLabelValues("full"))
	for i := 0; i < sendBuffer+1; i++ {
		client.TrySend([]byte("x"))
	}

	assert.Len(t, client.Send, sendBuffer)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.WebSocketBackpressureDrops.WithLabelValues("full")))
}

func TestClient_TrySendAfterCloseDoesNotPanic(t *testing.T) {
	hub := NewHub()
	client, err := hub.Register(6, nil)
	require.NoError(t, err)
	hub.Unregister(client)

	assert.NotPanics(t, func() { client.TrySend([]byte("late")) })
}

func TestHub_ShutdownRejectsNewClients(t *testing.T) {
	hub := NewHub()
	client, err := hub.Register(8, nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))

	_, open := <-client.Send
	assert.False(t, open)
	assert.Equal(t, 0, hub.ConnectionCount(8))

	// Unregister after shutdown must not close the queue twice.
	assert.NotPanics(t, func() { hub.Unregister(client) })

	_, err = hub.Register(8, nil)
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestHub_StartWiringRoutesRedisMessages(t *testing.T) {
	rdb := newTestRedis(t)
	n := NewNotifier(rdb)
	hub := NewHub()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, n))

	seller, err := hub.Register(42, nil)
	require.NoError(t, err)

	require.NoError(t, n.PublishEvent(context.Background(), 42, Event{Type: EventMessageReceived}))

	select {
	case msg := <-seller.Send:
		assert.JSONEq(t, `{"type":"message_received"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("message was not routed to the hub")
	}
}
