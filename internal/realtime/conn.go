package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	applog "sourverse/internal/log"
	"sourverse/internal/metrics"
)

const (
	wsWriteTimeout = 10 * time.Second
	leaveTimeout   = 5 * time.Second
	maxFrameBytes  = 4 << 10
)

// State is the lifecycle position of a connection.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

var errDropped = errors.New("peer dropped by hub")

// Conn drives one websocket through Connecting, Connected and Disconnected.
// Movement is only applied while Connected; the leave runs exactly once.
type Conn struct {
	hub     *Hub
	ws      *websocket.Conn
	limiter *rate.Limiter
	logger  *applog.Logger
	metrics *metrics.Metrics

	state     atomic.Int32
	peerID    string
	leaveOnce sync.Once

	// latest movement not yet applied; newer frames overwrite it
	moveMu    sync.Mutex
	pending   [2]float64
	hasMove   bool
	moveReady chan struct{}
}

func newConn(hub *Hub, ws *websocket.Conn, limiter *rate.Limiter, logger *applog.Logger, m *metrics.Metrics) *Conn {
	return &Conn{
		hub:       hub,
		ws:        ws,
		limiter:   limiter,
		logger:    logger,
		metrics:   m,
		moveReady: make(chan struct{}, 1),
	}
}

func (c *Conn) State() State { return State(c.state.Load()) }

// Serve joins the hub and pumps frames until either side goes away.
func (c *Conn) Serve(ctx context.Context) error {
	c.ws.SetReadLimit(maxFrameBytes)

	sub, err := c.hub.Join(ctx)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		return err
	}
	c.peerID = sub.Peer.ID
	c.state.Store(int32(StateConnected))
	defer c.disconnect()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.writeLoop(gctx, sub.C) })
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.moveLoop(gctx) })
	return g.Wait()
}

func (c *Conn) writeLoop(ctx context.Context, frames <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frames:
			if !ok {
				if c.hub.closed() {
					return ErrHubClosed
				}
				return errDropped
			}
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := c.ws.Write(writeCtx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}

func (c *Conn) readLoop(ctx context.Context) error {
	for {
		typ, frame, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText || c.State() != StateConnected {
			continue
		}
		x, y, err := decodeMovement(frame)
		if err != nil {
			c.logger.Debug("Ignoring inbound frame",
				applog.FieldConnID, c.peerID,
				applog.FieldError, err)
			continue
		}
		c.metrics.EventReceived(EventPlayerMovement)
		c.stageMove(x, y)
	}
}

// stageMove records the newest position and wakes moveLoop. Positions
// staged while the limiter is waiting collapse into the last one.
func (c *Conn) stageMove(x, y float64) {
	c.moveMu.Lock()
	c.pending = [2]float64{x, y}
	c.hasMove = true
	c.moveMu.Unlock()

	select {
	case c.moveReady <- struct{}{}:
	default:
	}
}

func (c *Conn) takeMove() (x, y float64, ok bool) {
	c.moveMu.Lock()
	defer c.moveMu.Unlock()
	if !c.hasMove {
		return 0, 0, false
	}
	c.hasMove = false
	return c.pending[0], c.pending[1], true
}

// moveLoop applies staged movement at the limiter's pace. The last position
// a peer sends is always applied.
func (c *Conn) moveLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.moveReady:
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		x, y, ok := c.takeMove()
		if !ok || c.State() != StateConnected {
			continue
		}
		if err := c.hub.Move(ctx, c.peerID, x, y); err != nil {
			return err
		}
	}
}

// disconnect moves the connection to Disconnected and leaves the hub once.
func (c *Conn) disconnect() {
	c.leaveOnce.Do(func() {
		c.state.Store(int32(StateDisconnected))
		ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if _, err := c.hub.Leave(ctx, c.peerID); err != nil && !errors.Is(err, ErrHubClosed) {
			c.logger.Warn("Leave failed",
				applog.FieldConnID, c.peerID,
				applog.FieldError, err)
		}
	})
}
