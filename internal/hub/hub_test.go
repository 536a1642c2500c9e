package hub

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wookja-0/messenger-service/internal/dto"
)

// stubHandler records Leave calls; Join always succeeds.
type stubHandler struct {
	mu     sync.Mutex
	leaves int
	leave  chan struct{}
}

func newStubHandler() *stubHandler {
	return &stubHandler{leave: make(chan struct{}, 16)}
}

func (s *stubHandler) Join(ctx context.Context, c *Client, frame dto.InboundFrame) error { return nil }

func (s *stubHandler) Message(ctx context.Context, c *Client, frame dto.InboundFrame) {}

func (s *stubHandler) Leave(ctx context.Context, c *Client) {
	s.mu.Lock()
	s.leaves++
	s.mu.Unlock()
	s.leave <- struct{}{}
}

func (s *stubHandler) leaveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaves
}

func newTestClient(h *Hub, handler SessionHandler, connID, roomID, userID string) *Client {
	c := NewClient(h, nil, handler, connID, roomID, userID)
	c.MarkJoined(userID, "user-"+userID)
	return c
}

func TestHubRegisterUnregister(t *testing.T) {
	h := NewHub()
	handler := newStubHandler()

	c1 := newTestClient(h, handler, "conn-1", "room-a", "user-1")
	c2 := newTestClient(h, handler, "conn-2", "room-a", "user-2")

	h.Register(c1)
	h.Register(c2)

	assert.True(t, h.Contains("room-a", "conn-1"))
	assert.True(t, h.Contains("room-a", "conn-2"))
	assert.Equal(t, 2, h.RoomSize("room-a"))
	assert.Len(t, h.ActiveSessions(), 2)

	h.Unregister("room-a", "conn-1")
	assert.False(t, h.Contains("room-a", "conn-1"))
	assert.Equal(t, 1, h.RoomSize("room-a"))

	// Removing the last connection deletes the room bucket entirely.
	h.Unregister("room-a", "conn-2")
	assert.Equal(t, 0, h.RoomSize("room-a"))
	h.mu.RLock()
	_, bucketExists := h.rooms["room-a"]
	h.mu.RUnlock()
	assert.False(t, bucketExists)
	assert.Empty(t, h.ActiveSessions())
}

func TestHubUnregisterIdempotent(t *testing.T) {
	h := NewHub()
	handler := newStubHandler()

	c := newTestClient(h, handler, "conn-1", "room-a", "user-1")
	h.Register(c)

	h.Unregister("room-a", "conn-1")
	h.Unregister("room-a", "conn-1")
	h.Unregister("room-missing", "conn-1")

	assert.False(t, h.Contains("room-a", "conn-1"))
	assert.Empty(t, h.ActiveSessions())
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	h := NewHub()
	handler := newStubHandler()

	sender := newTestClient(h, handler, "conn-1", "room-a", "user-1")
	peer := newTestClient(h, handler, "conn-2", "room-a", "user-2")
	outsider := newTestClient(h, handler, "conn-3", "room-b", "user-3")
	h.Register(sender)
	h.Register(peer)
	h.Register(outsider)

	payload := []byte(`{"type":"room_members"}`)
	h.Broadcast("room-a", payload, sender.ID())

	select {
	case got := <-peer.send:
		assert.Equal(t, payload, got)
	default:
		t.Fatal("peer did not receive broadcast")
	}
	assert.Empty(t, sender.send, "sender must be excluded")
	assert.Empty(t, outsider.send, "other rooms must not receive the broadcast")
}

func TestHubBroadcastIncludesEveryoneWithEmptyExclude(t *testing.T) {
	h := NewHub()
	handler := newStubHandler()

	c1 := newTestClient(h, handler, "conn-1", "room-a", "user-1")
	c2 := newTestClient(h, handler, "conn-2", "room-a", "user-2")
	h.Register(c1)
	h.Register(c2)

	payload := []byte(`{"type":"message"}`)
	h.Broadcast("room-a", payload, "")

	assert.Len(t, c1.send, 1)
	assert.Len(t, c2.send, 1)
}

func TestHubBroadcastFailureIsolation(t *testing.T) {
	h := NewHub()
	handler := newStubHandler()

	healthy := newTestClient(h, handler, "conn-1", "room-a", "user-1")
	stuck := newTestClient(h, handler, "conn-2", "room-a", "user-2")
	h.Register(healthy)
	h.Register(stuck)

	// Saturate the stuck client's send buffer so the next delivery fails.
	for i := 0; i < sendBufferSize; i++ {
		require.True(t, stuck.trySend([]byte(fmt.Sprintf("filler-%d", i))))
	}

	h.Broadcast("room-a", []byte(`{"type":"message"}`), "")

	// The healthy recipient got the frame despite the failed one.
	assert.Len(t, healthy.send, 1)

	// The failed recipient is torn down asynchronously.
	select {
	case <-handler.leave:
	case <-time.After(2 * time.Second):
		t.Fatal("failed recipient was not torn down")
	}
	assert.False(t, stuck.trySend([]byte("x")), "torn-down client must reject sends")
}

func TestClientTeardownIdempotent(t *testing.T) {
	h := NewHub()
	handler := newStubHandler()

	c := newTestClient(h, handler, "conn-1", "room-a", "user-1")
	h.Register(c)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Teardown()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, handler.leaveCount(), "Leave must run exactly once")
	assert.False(t, c.trySend([]byte("x")))
}

func TestClientSendAfterTeardown(t *testing.T) {
	h := NewHub()
	handler := newStubHandler()

	c := newTestClient(h, handler, "conn-1", "room-a", "user-1")
	c.Teardown()

	// trySend and SendJSON against a closed session must not panic.
	assert.False(t, c.trySend([]byte("x")))
	assert.False(t, c.SendJSON(dto.NewError("transport_failure")))
}

func TestHubConcurrentRegisterAndBroadcast(t *testing.T) {
	h := NewHub()
	handler := newStubHandler()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			c := newTestClient(h, handler, fmt.Sprintf("conn-%d", n), "room-a", fmt.Sprintf("user-%d", n))
			h.Register(c)
		}(i)
		go func() {
			defer wg.Done()
			h.Broadcast("room-a", []byte(`{"type":"message"}`), "")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, h.RoomSize("room-a"))
}

func TestIsTimeout(t *testing.T) {
	// An expired read deadline before the join frame is a protocol error,
	// not a plain disconnect.
	assert.True(t, isTimeout(os.ErrDeadlineExceeded))
	assert.True(t, isTimeout(&net.OpError{Op: "read", Err: os.ErrDeadlineExceeded}))
	assert.False(t, isTimeout(errors.New("broken pipe")))
	assert.False(t, isTimeout(nil))
}

func TestClientMarkJoined(t *testing.T) {
	h := NewHub()
	c := NewClient(h, nil, newStubHandler(), "conn-1", "room-a", "user-1")

	assert.False(t, c.Joined())
	assert.Empty(t, c.UserID())
	assert.Equal(t, "user-1", c.AuthUserID())

	c.MarkJoined("user-1", "alice")
	assert.True(t, c.Joined())
	assert.Equal(t, "user-1", c.UserID())
	assert.Equal(t, "alice", c.Username())
}
