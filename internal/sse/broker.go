// Package sse streams catalog changes to HTTP clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Event is one message on the stream.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ArticleChange is the payload of an article.* event.
type ArticleChange struct {
	Area string `json:"area"`
	Path string `json:"path"`
}

type articleReq struct {
	kind   string
	change ArticleChange
}

// Broker fans events out to subscribed clients.
//
// A single loop goroutine owns the client set and the per-area throttle
// timestamps; the public methods talk to it over channels.
type Broker struct {
	catalogMin time.Duration
	keepAlive  time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	articleCh     chan articleReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. catalog.changed is emitted at most once per
// area every catalogThrottle.
func NewBroker(catalogThrottle time.Duration) *Broker {
	if catalogThrottle <= 0 {
		catalogThrottle = 2 * time.Second
	}

	b := &Broker{
		catalogMin:    catalogThrottle,
		keepAlive:     30 * time.Second,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		articleCh:     make(chan articleReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// retryMillis is the reconnect delay suggested to clients.
const retryMillis = 3000

// encode renders ev in the text/event-stream wire format.
func encode(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", ev.Type, payload)), nil
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	lastCatalog := make(map[string]time.Time)

	broadcast := func(ev Event) {
		raw, err := encode(ev)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			broadcast(ev)

		case req := <-b.articleCh:
			broadcast(Event{Type: "article." + req.kind, Data: req.change})

			area := req.change.Area
			now := time.Now()
			if now.Sub(lastCatalog[area]) >= b.catalogMin {
				lastCatalog[area] = now
				broadcast(Event{Type: "catalog.changed", Data: map[string]string{"area": area}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client. The returned cancel func detaches it and
// is safe to call more than once. On a closed broker the channel is already
// closed.
func (b *Broker) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch, func() {}
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
		return ch, func() {}
	}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			select {
			case b.unsubscribeCh <- ch:
			case <-b.stopped:
			}
		})
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends ev to all clients.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}

// ArticleChanged publishes article.<kind> for an index mutation. Its
// signature matches index.EventCallback.
func (b *Broker) ArticleChanged(kind, area, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.articleCh <- articleReq{kind: kind, change: ArticleChange{Area: area, Path: path}}:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events). The stream
// opens with a reconnect hint and carries a comment line every keepAlive.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	msgs, cancel := b.Subscribe()
	defer cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ticker := time.NewTicker(b.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case msg, open := <-msgs:
			if !open {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
		}
		flusher.Flush()
	}
}
