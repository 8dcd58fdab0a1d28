package pipeline

import (
	"sync"
)

// broadcaster fans annotated JPEG frames out to stream clients.  A client
// that falls behind misses frames rather than slowing the frame loop.
type broadcaster struct {
	mu      sync.Mutex
	clients map[int]chan []byte
	nextID  int
	closed  bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{
		clients: make(map[int]chan []byte),
	}
}

// subscribe adds a client.  The channel is closed on unsubscribe or when
// the broadcaster closes.
func (b *broadcaster) subscribe() (int, <-chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan []byte, 2)

	if b.closed {
		close(ch)
		return id, ch
	}

	b.clients[id] = ch

	return id, ch
}

func (b *broadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.clients[id]; ok {
		close(ch)
		delete(b.clients, id)
	}
}

// active reports whether any client is subscribed
func (b *broadcaster) active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.clients) > 0
}

// publish sends the frame to every client with room in its buffer
func (b *broadcaster) publish(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

// close disconnects all clients
func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.clients {
		close(ch)
		delete(b.clients, id)
	}

	b.closed = true
}
