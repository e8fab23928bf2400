package ws

import (
	"sync"
	"testing"
)

func newTestClient(userID uint, buf int) *Client {
	return &Client{userID: userID, send: make(chan []byte, buf)}
}

func drain(c *Client) []string {
	var out []string
	for {
		select {
		case msg := <-c.send:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.rooms == nil || hub.clients == nil {
		t.Error("NewHub() maps are nil")
	}
}

func TestHub_Online_EmptyRoom(t *testing.T) {
	hub := NewHub()
	if online := hub.Online(UserRoom(1)); online != 0 {
		t.Errorf("Online() for empty room = %d, want 0", online)
	}
}

func TestHub_JoinAndLeave(t *testing.T) {
	hub := NewHub()
	c := newTestClient(1, 16)

	// Join before register is a no-op
	hub.Join(ChannelRoom(5), c)
	if hub.Online(ChannelRoom(5)) != 0 {
		t.Error("Join() before Register() should not add to room")
	}

	hub.Register(c)
	hub.Join(ChannelRoom(5), c)
	if hub.Online(ChannelRoom(5)) != 1 {
		t.Errorf("Online() after join = %d, want 1", hub.Online(ChannelRoom(5)))
	}

	hub.Leave(ChannelRoom(5), c)
	if hub.Online(ChannelRoom(5)) != 0 {
		t.Errorf("Online() after leave = %d, want 0", hub.Online(ChannelRoom(5)))
	}

	// Leave never fails, even for rooms the client is not in
	hub.Leave(ChannelRoom(99), c)
}

func TestHub_UnregisterRemovesFromAllRooms(t *testing.T) {
	hub := NewHub()
	c := newTestClient(1, 16)
	hub.Register(c)
	hub.Join(UserRoom(1), c)
	hub.Join(ChannelRoom(2), c)
	hub.Join(KitRoom(3), c)

	hub.Unregister(c)

	for _, room := range []string{UserRoom(1), ChannelRoom(2), KitRoom(3)} {
		if hub.Online(room) != 0 {
			t.Errorf("Online(%s) after unregister = %d, want 0", room, hub.Online(room))
		}
	}
	if got := len(hub.Rooms(c)); got != 0 {
		t.Errorf("Rooms() after unregister has %d entries, want 0", got)
	}

	// Unregister must be idempotent
	hub.Unregister(c)
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub()
	room := ChannelRoom(1)

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = newTestClient(uint(i+1), 16)
		hub.Register(clients[i])
		hub.Join(room, clients[i])
	}
	outsider := newTestClient(9, 16)
	hub.Register(outsider)

	hub.Broadcast(room, []byte(`{"type":"new_channel_message"}`))

	for i, c := range clients {
		if msgs := drain(c); len(msgs) != 1 {
			t.Errorf("client %d received %d messages, want 1", i, len(msgs))
		}
	}
	if msgs := drain(outsider); len(msgs) != 0 {
		t.Errorf("outsider received %d messages, want 0", len(msgs))
	}
}

func TestHub_BroadcastExcept(t *testing.T) {
	hub := NewHub()
	room := ChannelRoom(1)
	sender := newTestClient(1, 16)
	other := newTestClient(2, 16)
	for _, c := range []*Client{sender, other} {
		hub.Register(c)
		hub.Join(room, c)
	}

	hub.BroadcastExcept(room, sender, []byte(`{"type":"user_joined_channel"}`))

	if msgs := drain(sender); len(msgs) != 0 {
		t.Errorf("sender received %d messages, want 0", len(msgs))
	}
	if msgs := drain(other); len(msgs) != 1 {
		t.Errorf("other received %d messages, want 1", len(msgs))
	}
}

func TestHub_BroadcastAll(t *testing.T) {
	hub := NewHub()
	a := newTestClient(1, 16)
	b := newTestClient(2, 16)
	hub.Register(a)
	hub.Register(b)
	// b is in no room at all; global presence events must still reach it
	hub.Join(UserRoom(1), a)

	hub.BroadcastAll([]byte(`{"type":"user_online"}`))

	if msgs := drain(a); len(msgs) != 1 {
		t.Errorf("a received %d messages, want 1", len(msgs))
	}
	if msgs := drain(b); len(msgs) != 1 {
		t.Errorf("b received %d messages, want 1", len(msgs))
	}
}

func TestHub_SlowConsumerEvicted(t *testing.T) {
	hub := NewHub()
	room := ChannelRoom(1)
	slow := newTestClient(1, 1)
	hub.Register(slow)
	hub.Join(room, slow)

	// Fill the send buffer, then broadcast once more to trigger eviction
	hub.Broadcast(room, []byte(`one`))
	hub.Broadcast(room, []byte(`two`))

	if hub.Online(room) != 0 {
		t.Errorf("Online() after eviction = %d, want 0", hub.Online(room))
	}
	// The send channel must be closed exactly once
	select {
	case <-slow.send:
	default:
	}
	if _, ok := <-slow.send; ok {
		t.Error("send channel should be closed after eviction")
	}
}

// After eviction closes the send channel, the connection's own reader may
// still try to reply; that must fail quietly, not panic on a closed channel.
func TestHub_EnqueueAfterEviction(t *testing.T) {
	hub := NewHub()
	room := ChannelRoom(1)
	slow := newTestClient(1, 1)
	hub.Register(slow)
	hub.Join(room, slow)

	hub.Broadcast(room, []byte(`one`))
	hub.Broadcast(room, []byte(`two`))

	if slow.enqueue([]byte(`late`)) {
		t.Error("enqueue() after eviction = true, want false")
	}
	slow.replyError("stalled")
	if slow.enqueue([]byte(`later`)) {
		t.Error("enqueue() stays closed, want false")
	}
}

// Replies racing with eviction must never hit a closed channel.
func TestHub_ReplyEvictionRace(t *testing.T) {
	for i := 0; i < 100; i++ {
		hub := NewHub()
		room := ChannelRoom(1)
		c := newTestClient(1, 1)
		hub.Register(c)
		hub.Join(room, c)
		hub.Broadcast(room, []byte(`fill`))

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.replyError("busy")
		}()
		go func() {
			defer wg.Done()
			hub.Broadcast(room, []byte(`evict`))
		}()
		wg.Wait()
	}
}

func TestHub_Concurrent(t *testing.T) {
	hub := NewHub()
	room := ChannelRoom(1)

	var wg sync.WaitGroup
	numClients := 10
	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c := newTestClient(uint(id+1), 16)
			hub.Register(c)
			hub.Join(room, c)
		}(i)
	}
	wg.Wait()

	if hub.Online(room) != numClients {
		t.Errorf("Online() after concurrent joins = %d, want %d", hub.Online(room), numClients)
	}
}
