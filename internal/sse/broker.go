// Package sse streams fetch progress to browsers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ProgressEvent is the event kind that is rate limited by the broker.
const ProgressEvent = "batch.progress"

const (
	clientBuffer      = 64
	keepaliveInterval = 15 * time.Second
)

// Broker fans service events out to connected SSE clients. A client whose
// buffer is full misses events rather than stalling the batch.
type Broker struct {
	progressMin time.Duration
	keepalive   time.Duration

	mu           sync.Mutex
	clients      map[chan []byte]struct{}
	lastProgress time.Time
	closed       bool
}

// NewBroker creates a broker. Progress events closer together than
// progressThrottle are dropped.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = 250 * time.Millisecond
	}
	return &Broker{
		progressMin: progressThrottle,
		keepalive:   keepaliveInterval,
		clients:     make(map[chan []byte]struct{}),
	}
}

// frame renders one event in the text/event-stream format.
func frame(kind string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", kind, payload)), nil
}

// Notify publishes data under kind. It matches the service event hook.
func (b *Broker) Notify(kind string, data any) {
	msg, err := frame(kind, data)
	if err != nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if kind == ProgressEvent {
		now := time.Now()
		if now.Sub(b.lastProgress) < b.progressMin {
			return
		}
		b.lastProgress = now
	}
	for ch := range b.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (b *Broker) subscribe() (chan []byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	ch := make(chan []byte, clientBuffer)
	b.clients[ch] = struct{}{}
	return ch, true
}

func (b *Broker) unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

// Clients returns the number of connected clients.
func (b *Broker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every client. Later events are discarded.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.clients {
		delete(b.clients, ch)
		close(ch)
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). Idle streams get a
// comment line now and then so proxies keep them open during long delays.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ch, ok := b.subscribe()
	if !ok {
		http.Error(w, "event stream closed", http.StatusServiceUnavailable)
		return
	}
	defer b.unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(b.keepalive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
