// Package realtime implements the presence broadcast protocol on top of the
// presence registry.
//
// A single Hub goroutine applies every join, move and leave to the registry
// and enqueues the resulting events in the same step, so each peer receives
// its events in the order the registry operations completed.
package realtime

import (
	"context"
	"errors"

	applog "sourverse/internal/log"
	"sourverse/internal/metrics"
	"sourverse/internal/presence"
)

const DefaultSendBuffer = 64

// ErrHubClosed is returned by operations submitted after the hub stopped.
var ErrHubClosed = errors.New("realtime hub closed")

// Subscription is a joined peer's view of the hub.
type Subscription struct {
	Peer presence.Peer
	// C delivers encoded frames in order. It is closed when the peer leaves,
	// is dropped for falling behind, or the hub stops.
	C <-chan []byte
}

type client struct {
	id   string
	send chan []byte
}

type Hub struct {
	registry   *presence.Registry
	clients    map[string]*client // owned by the run goroutine
	ops        chan func()
	stopped    chan struct{}
	sendBuffer int
	logger     *applog.Logger
	metrics    *metrics.Metrics
}

type HubOption func(*Hub)

func WithSendBuffer(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithHubLogger(l *applog.Logger) HubOption {
	return func(h *Hub) { h.logger = applog.OrDefault(l, applog.ComponentRealtime) }
}

func WithHubMetrics(m *metrics.Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

func NewHub(registry *presence.Registry, opts ...HubOption) *Hub {
	h := &Hub{
		registry:   registry,
		clients:    make(map[string]*client),
		ops:        make(chan func()),
		stopped:    make(chan struct{}),
		sendBuffer: DefaultSendBuffer,
		logger:     applog.OrDefault(nil, applog.ComponentRealtime),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run owns the hub state until ctx is cancelled. Every remaining peer is
// then removed from the registry and its subscription closed.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			close(h.stopped)
			for id, c := range h.clients {
				h.registry.Leave(id)
				close(c.send)
				delete(h.clients, id)
			}
			h.metrics.SetPeers(0)
			h.logger.Info("Realtime hub stopped")
			return nil
		case op := <-h.ops:
			op()
		}
	}
}

func (h *Hub) closed() bool {
	select {
	case <-h.stopped:
		return true
	default:
		return false
	}
}

// do runs fn on the hub goroutine and waits for it to finish.
func (h *Hub) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case h.ops <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.stopped:
		return ErrHubClosed
	}
	<-done
	return nil
}

// Join registers a new peer. The peer first receives newPlayer about itself
// (like every other peer), then currentPlayers with the full snapshot.
func (h *Hub) Join(ctx context.Context) (*Subscription, error) {
	var sub *Subscription
	err := h.do(ctx, func() {
		peer := h.registry.Join()
		c := &client{id: peer.ID, send: make(chan []byte, h.sendBuffer)}
		h.clients[peer.ID] = c

		h.broadcast(EventNewPlayer, peer, "")
		h.unicast(c, EventCurrentPlayers, h.registry.Snapshot())

		h.metrics.SetPeers(len(h.clients))
		h.logger.Info("Peer joined",
			applog.FieldConnID, peer.ID,
			applog.FieldPeers, len(h.clients))
		sub = &Subscription{Peer: peer, C: c.send}
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// Move updates the sender's position and tells every other peer. A move for
// an id that is not registered is ignored.
func (h *Hub) Move(ctx context.Context, id string, x, y float64) error {
	return h.do(ctx, func() {
		if _, ok := h.clients[id]; !ok {
			return
		}
		peer, ok := h.registry.Move(id, x, y)
		if !ok {
			return
		}
		h.broadcast(EventPlayerMoved, peer, id)
	})
}

// Leave removes the peer and, if it was present, tells everyone else. It
// reports whether this call performed the removal.
func (h *Hub) Leave(ctx context.Context, id string) (bool, error) {
	var left bool
	err := h.do(ctx, func() {
		left = h.leave(id)
	})
	return left, err
}

// Peers returns a registry snapshot taken on the hub goroutine.
func (h *Hub) Peers(ctx context.Context) ([]presence.Peer, error) {
	var peers []presence.Peer
	err := h.do(ctx, func() { peers = h.registry.Snapshot() })
	return peers, err
}

func (h *Hub) leave(id string) bool {
	if !h.registry.Leave(id) {
		return false
	}
	if c, ok := h.clients[id]; ok {
		close(c.send)
		delete(h.clients, id)
	}
	h.broadcast(EventPlayerDisconnected, id, "")
	h.metrics.SetPeers(len(h.clients))
	h.logger.Info("Peer left",
		applog.FieldConnID, id,
		applog.FieldPeers, len(h.clients))
	return true
}

// broadcast enqueues event for every client except skip. Clients whose queue
// is full are dropped after the fan-out completes.
func (h *Hub) broadcast(event string, data any, skip string) {
	frame, err := encode(event, data)
	if err != nil {
		h.logger.Error("Encode event failed", applog.FieldEvent, event, applog.FieldError, err)
		return
	}
	var slow []string
	sent := 0
	for id, c := range h.clients {
		if id == skip {
			continue
		}
		if !offer(c, frame) {
			slow = append(slow, id)
			continue
		}
		sent++
	}
	h.metrics.EventSent(event, sent)
	for _, id := range slow {
		h.drop(id)
	}
}

func (h *Hub) unicast(c *client, event string, data any) {
	frame, err := encode(event, data)
	if err != nil {
		h.logger.Error("Encode event failed", applog.FieldEvent, event, applog.FieldError, err)
		return
	}
	if !offer(c, frame) {
		h.drop(c.id)
		return
	}
	h.metrics.EventSent(event, 1)
}

// drop disconnects a peer that cannot keep up. It goes through the regular
// leave path so the others see exactly one playerDisconnected.
func (h *Hub) drop(id string) {
	if _, ok := h.clients[id]; !ok {
		return
	}
	h.logger.Warn("Dropping slow peer", applog.FieldConnID, id)
	h.metrics.PeerDropped()
	h.leave(id)
}

func offer(c *client, frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}
