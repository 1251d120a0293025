package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubJoinAndBroadcastDeliversToRoomMembers(t *testing.T) {
	h := NewHub()
	go h.Run()

	c1 := newConn(nil, "u1", "customer", "customer")
	c2 := newConn(nil, "u2", "customer", "customer")
	h.Join(c1, "booking:b1")
	h.Join(c2, "booking:b2")

	h.Broadcast("booking:b1", []byte("hello"))

	select {
	case msg := <-c1.send:
		assert.Equal(t, "hello", string(msg))
	case <-time.After(time.Second):
		t.Fatal("expected c1 to receive the broadcast")
	}

	select {
	case <-c2.send:
		t.Fatal("c2 is not in booking:b1 and must not receive it")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubLeaveRemovesFromRoom(t *testing.T) {
	h := NewHub()
	go h.Run()

	c1 := newConn(nil, "u1", "customer", "customer")
	h.Join(c1, "room1")
	h.Leave(c1, "room1")

	h.Broadcast("room1", []byte("x"))
	select {
	case <-c1.send:
		t.Fatal("connection left the room and must not receive further broadcasts")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubBroadcastToEmptyRoomIsNoop(t *testing.T) {
	h := NewHub()
	go h.Run()
	assert.NotPanics(t, func() {
		h.Broadcast("nobody-here", []byte("x"))
	})
}

func TestHubUnregisterLeavesAllRoomsAndClosesSend(t *testing.T) {
	h := NewHub()
	go h.Run()

	c1 := newConn(nil, "u1", "customer", "customer")
	h.Join(c1, "room1")
	h.Join(c1, "room2")

	h.Unregister(c1)

	require.Eventually(t, func() bool {
		_, ok := <-c1.send
		return !ok
	}, time.Second, 10*time.Millisecond, "send channel should be closed once unregistered")

	h.Broadcast("room1", []byte("x"))
	h.Broadcast("room2", []byte("x"))
}

func TestHubJoinSameRoomTwiceIsIdempotent(t *testing.T) {
	h := NewHub()
	c1 := newConn(nil, "u1", "customer", "customer")
	h.Join(c1, "room1")
	h.Join(c1, "room1")

	h.mu.RLock()
	size := len(h.rooms["room1"])
	h.mu.RUnlock()
	assert.Equal(t, 1, size)
}
