package live

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, buffer int) (*Hub, context.CancelFunc) {
	t.Helper()
	h := NewHub(buffer)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h, cancel
}

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg, ok := <-c.Send:
		require.True(t, ok, "client channel closed")
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestHub_RoutesBySession(t *testing.T) {
	h, _ := startHub(t, 4)

	a := h.Subscribe(1)
	b := h.Subscribe(1)
	other := h.Subscribe(2)
	assert.Eventually(t, func() bool { return h.Subscribers(1) == 2 }, time.Second, 5*time.Millisecond)

	h.Publish(1, []byte(`{"grand_total":54}`))
	assert.Equal(t, `{"grand_total":54}`, string(receive(t, a)))
	assert.Equal(t, `{"grand_total":54}`, string(receive(t, b)))

	select {
	case msg := <-other.Send:
		t.Fatalf("session 2 received %s", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	h, _ := startHub(t, 4)

	c := h.Subscribe(3)
	h.Unsubscribe(c)
	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers(3))

	// A second unsubscribe is a no-op.
	h.Unsubscribe(c)
}

func TestHub_DropsSlowClient(t *testing.T) {
	h, _ := startHub(t, 1)

	slow := h.Subscribe(5)
	h.Publish(5, []byte("1"))
	h.Publish(5, []byte("2"))

	assert.Eventually(t, func() bool { return h.Subscribers(5) == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "1", string(<-slow.Send))
	_, ok := <-slow.Send
	assert.False(t, ok)
}

func TestHub_StopClosesClients(t *testing.T) {
	h, cancel := startHub(t, 1)
	c := h.Subscribe(8)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-c.Send:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	late := h.Subscribe(8)
	_, ok := <-late.Send
	assert.False(t, ok)
	h.Publish(8, []byte("ignored"))
}
