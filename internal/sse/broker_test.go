package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// recv waits for the next message on ch.
func recv(t *testing.T, ch <-chan []byte) string {
	t.Helper()
	select {
	case msg := <-ch:
		return string(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return ""
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ch, cancel := b.Subscribe()
	if n := b.ClientCount(); n != 1 {
		t.Fatalf("clients = %d, want 1", n)
	}
	cancel()
	cancel()
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients after cancel = %d, want 0", n)
	}
	if _, open := <-ch; open {
		t.Error("channel should be closed after cancel")
	}
}

func TestPublishWireFormat(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.Publish(Event{Type: "version.created", Data: map[string]string{"tag": "v0.1"}})

	want := "event: version.created\ndata: {\"tag\":\"v0.1\"}\n\n"
	if got := recv(t, ch); got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestArticleChangedThrottlesCatalogPerArea(t *testing.T) {
	b := NewBroker(time.Minute)
	defer b.Close()
	ch, cancel := b.Subscribe()
	defer cancel()

	b.ArticleChanged("created", "staging", "Linux/a.md")
	b.ArticleChanged("updated", "staging", "Linux/a.md")
	b.ArticleChanged("deleted", "store", "a.md")

	// staging: article + catalog, article; store: article + catalog.
	var msgs []string
	for i := 0; i < 5; i++ {
		msgs = append(msgs, recv(t, ch))
	}
	all := strings.Join(msgs, "")

	if c := strings.Count(all, "event: catalog.changed"); c != 2 {
		t.Errorf("catalog.changed count = %d, want 2:\n%s", c, all)
	}
	for _, want := range []string{
		`event: article.created` + "\n" + `data: {"area":"staging","path":"Linux/a.md"}`,
		`event: article.updated`,
		`event: article.deleted` + "\n" + `data: {"area":"store","path":"a.md"}`,
	} {
		if !strings.Contains(all, want) {
			t.Errorf("stream missing %q:\n%s", want, all)
		}
	}
}

// flushRecorder guards the recorder body, which the handler writes from
// another goroutine.
type flushRecorder struct {
	mu sync.Mutex
	*httptest.ResponseRecorder
}

func (f *flushRecorder) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ResponseRecorder.Write(p)
}

func (f *flushRecorder) WriteString(str string) (int, error) {
	return f.Write([]byte(str))
}

func (f *flushRecorder) body() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Body.String()
}

func TestServeHTTPStreamsUntilDisconnect(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	b.keepAlive = 20 * time.Millisecond
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	b.ArticleChanged("updated", "store", "x.md")
	deadline = time.Now().Add(time.Second)
	for !strings.Contains(w.body(), "event: article.updated") || !strings.Contains(w.body(), ": keep-alive\n\n") {
		if time.Now().After(deadline) {
			t.Fatalf("handler output missing event: %q", w.body())
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(w.body(), "retry: 3000\n\n") {
		t.Errorf("stream should open with a retry hint: %q", w.body())
	}
	deadline = time.Now().Add(time.Second)
	for b.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("client not cleaned up after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPublishDoesNotBlockOnFullClient(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	_, cancel := b.Subscribe()
	defer cancel()

	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: i})
	}
	if n := b.ClientCount(); n != 1 {
		t.Errorf("clients = %d, want 1", n)
	}
}

func TestCloseStopsBroker(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch, cancel := b.Subscribe()

	b.Close()
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("subscriber channel should be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}
	if n := b.ClientCount(); n != 0 {
		t.Fatalf("clients after close = %d", n)
	}

	// No-ops after close.
	b.Publish(Event{Type: "test"})
	b.ArticleChanged("updated", "store", "x.md")
	late, cancelLate := b.Subscribe()
	cancelLate()
	if _, open := <-late; open {
		t.Error("subscribing to a closed broker should yield a closed channel")
	}
}
