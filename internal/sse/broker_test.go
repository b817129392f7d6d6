package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.Clients() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch, ok := b.subscribe()
	if !ok || b.Clients() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.unsubscribe(ch)
	if b.Clients() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
	// A second unsubscribe must not close the channel twice.
	b.unsubscribe(ch)
}

func TestNotifyDelivery(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch, _ := b.subscribe()
	defer b.unsubscribe(ch)

	b.Notify("document.processed", map[string]string{"path": "a.md"})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: document.processed\n") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `data: {"path":"a.md"}`) {
			t.Errorf("missing data in %q", s)
		}
	default:
		t.Fatal("event was not delivered")
	}
}

func TestProgressThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch, _ := b.subscribe()
	defer b.unsubscribe(ch)

	// Only the first of a quick burst of progress events goes out; other
	// events are never throttled.
	b.Notify(ProgressEvent, map[string]int{"index": 1})
	b.Notify(ProgressEvent, map[string]int{"index": 2})
	b.Notify("document.failed", map[string]string{"path": "a.md"})
	b.Notify("batch.finished", map[string]int{"total": 2})

	progress, other := 0, 0
loop:
	for {
		select {
		case msg := <-ch:
			if strings.Contains(string(msg), "event: "+ProgressEvent) {
				progress++
			} else {
				other++
			}
		default:
			break loop
		}
	}

	if progress != 1 {
		t.Errorf("progress events = %d, want 1 (throttled)", progress)
	}
	if other != 2 {
		t.Errorf("other events = %d, want 2", other)
	}
}

func TestNotifyDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch, _ := b.subscribe()
	defer b.unsubscribe(ch)

	for i := 0; i < clientBuffer+6; i++ {
		b.Notify("document.state", map[string]int{"i": i})
	}
	if len(ch) != clientBuffer {
		t.Errorf("buffered = %d, want %d", len(ch), clientBuffer)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	b.keepalive = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.Clients() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.Notify("document.state", map[string]string{"path": "x.md", "state": "fetching"})
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	body := w.Body.String()
	if !strings.Contains(body, "event: document.state") {
		t.Errorf("handler output missing event: %q", body)
	}
	if !strings.Contains(body, ": keepalive\n\n") {
		t.Errorf("idle stream got no keepalive: %q", body)
	}
	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content type = %q", w.Header().Get("Content-Type"))
	}
	if b.Clients() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestSSEHandler_AfterClose(t *testing.T) {
	b := NewBroker(time.Second)
	b.Close()

	w := httptest.NewRecorder()
	b.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/events", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestCloseDisconnectsClients(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch, _ := b.subscribe()

	b.Close()

	if _, ok := <-ch; ok {
		t.Fatal("expected subscriber channel to be closed")
	}
	if b.Clients() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	// Safe no-ops after close.
	b.Notify("batch.finished", nil)
	b.unsubscribe(ch)
	b.Close()
}
