package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/custodian/internal/events"
)

const (
	// clientBuffer bounds queued events per client; a client that falls
	// further behind starts losing events instead of stalling the hub.
	clientBuffer = 32

	writeTimeout = 5 * time.Second
)

// wsClient is one connected websocket consumer with its own send queue.
type wsClient struct {
	send chan []byte
}

// eventHub fans system events out to websocket clients. A single bus
// subscription feeds all clients; per-client queues isolate slow readers.
type eventHub struct {
	bus *events.Bus
	log zerolog.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

func newEventHub(bus *events.Bus, log zerolog.Logger) *eventHub {
	return &eventHub{
		bus:     bus,
		log:     log.With().Str("component", "events_ws").Logger(),
		clients: make(map[*wsClient]struct{}),
	}
}

// Start launches the fan-out loop. Safe to call once.
func (h *eventHub) Start() {
	if h.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan struct{})

	ch, unsubscribe := h.bus.Subscribe(256)
	go func() {
		defer close(h.done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				h.broadcast(event)
			}
		}
	}()
}

// Stop terminates the fan-out loop and drops all clients.
func (h *eventHub) Stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	<-h.done
	h.cancel = nil

	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
}

// broadcast queues an event on every client. Full queues drop the event
// for that client only.
func (h *eventHub) broadcast(event events.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error().Err(err).Str("type", string(event.Type)).Msg("Failed to encode event")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Debug().Str("type", string(event.Type)).Msg("Dropping event for slow websocket client")
		}
	}
}

func (h *eventHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Int("clients", count).Msg("Websocket client connected")
}

func (h *eventHub) unregister(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.log.Debug().Int("clients", count).Msg("Websocket client disconnected")
}

// ServeHTTP handles GET /api/events/ws requests.
func (h *eventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origins are already screened by the CORS middleware.
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "connection closed")

	client := &wsClient{send: make(chan []byte, clientBuffer)}
	h.register(client)
	defer h.unregister(client)

	// The feed is write-only; CloseRead surfaces client disconnects and
	// discards anything the client sends.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case payload, ok := <-client.send:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Websocket write failed")
				return
			}
		}
	}
}
