// Package presence keeps the authoritative directory of connected peers and
// their last known position in the shared space.
package presence

import (
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/google/uuid"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 600
)

// Peer is one live connection and its position.
type Peer struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Bounds is the size of the shared space; positions lie in [0,Width)x[0,Height).
type Bounds struct {
	Width  float64
	Height float64
}

// Registry holds at most one peer per connection id. All methods are safe
// for concurrent use; mutations take the write lock, Snapshot the read lock,
// so a snapshot never observes a half-applied mutation.
type Registry struct {
	mu     sync.RWMutex
	peers  map[string]Peer
	bounds Bounds
	newID  func() string
	rand   func() float64
}

type Option func(*Registry)

// WithIDGenerator replaces the connection id source.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithRand replaces the [0,1) source used for initial positions.
func WithRand(fn func() float64) Option {
	return func(r *Registry) { r.rand = fn }
}

func NewRegistry(bounds Bounds, opts ...Option) *Registry {
	if bounds.Width <= 0 {
		bounds.Width = DefaultWidth
	}
	if bounds.Height <= 0 {
		bounds.Height = DefaultHeight
	}
	r := &Registry{
		peers:  make(map[string]Peer),
		bounds: bounds,
		newID:  uuid.NewString,
		rand:   rand.Float64,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join allocates a peer with a fresh id and a random position.
func (r *Registry) Join() Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for _, taken := r.peers[id]; taken; _, taken = r.peers[id] {
		id = r.newID()
	}
	p := Peer{
		ID: id,
		X:  r.rand() * r.bounds.Width,
		Y:  r.rand() * r.bounds.Height,
	}
	r.peers[id] = p
	return p
}

// Move overwrites the position of a registered peer. It reports false, and
// changes nothing, when id is not registered.
func (r *Registry) Move(id string, x, y float64) (Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.peers[id]
	if !ok {
		return Peer{}, false
	}
	p.X, p.Y = x, y
	r.peers[id] = p
	return p, true
}

// Leave removes the peer and reports whether it was present.
func (r *Registry) Leave(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	return true
}

// Get returns the peer registered under id.
func (r *Registry) Get(id string) (Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// Snapshot returns a point-in-time copy of every peer, ordered by id.
func (r *Registry) Snapshot() []Peer {
	r.mu.RLock()
	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of registered peers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Bounds returns the space new peers are placed in.
func (r *Registry) Bounds() Bounds {
	return r.bounds
}
