package ws

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"livechat/internal/core/domain"
)

const pingPeriod = 30 * time.Second

// Client owns one connection's outbound path: a bounded queue drained by
// a single write goroutine. The queue is the outbound backpressure
// boundary; TrySend never blocks and reports a full queue to the caller.
type Client struct {
	ctx    context.Context
	cancel context.CancelFunc

	ws     *WebSocket
	id     string
	userID string

	out     chan []byte
	drainCh chan struct{}

	seqMu   sync.Mutex
	roomSeq map[string]int64 // room_id → highest enqueued seq

	state      atomic.Int32
	lastActive atomic.Int64 // unix nanos

	drainOnce sync.Once
	closeOnce sync.Once
}

func NewClient(
	parent context.Context,
	ws *WebSocket,
	connID, userID string,
	queueSize int,
) *Client {
	ctx, cancel := context.WithCancel(parent)
	if queueSize <= 0 {
		queueSize = 256
	}
	c := &Client{
		ctx:     ctx,
		cancel:  cancel,
		ws:      ws,
		id:      connID,
		userID:  userID,
		out:     make(chan []byte, queueSize),
		drainCh: make(chan struct{}),
		roomSeq: make(map[string]int64),
	}
	c.state.Store(int32(domain.StateAuthenticated))
	c.Touch()
	ws.Conn.SetPongHandler(func(string) error {
		c.Touch()
		return nil
	})
	go c.writeLoop()
	return c
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

func (c *Client) State() domain.ConnState {
	return domain.ConnState(c.state.Load())
}

func (c *Client) setState(s domain.ConnState) {
	c.state.Store(int32(s))
}

// MarkSubscribed records the first successful room join.
func (c *Client) MarkSubscribed() {
	if c.State() == domain.StateAuthenticated {
		c.setState(domain.StateSubscribed)
	}
}

func (c *Client) Touch() {
	c.lastActive.Store(time.Now().UnixNano())
}

func (c *Client) LastActive() time.Time {
	return time.Unix(0, c.lastActive.Load())
}

// TrySend enqueues without blocking. False means the queue is full or the
// connection is past accepting traffic; either way the caller treats the
// delivery as dropped and the client heals via backfill.
func (c *Client) TrySend(data []byte) bool {
	if c.State() >= domain.StateDraining {
		return false
	}
	select {
	case c.out <- data:
		return true
	default:
		return false
	}
}

// TrySendRoom enqueues a sequenced room frame, keeping each room's
// delivery strictly increasing for this connection. A frame at or below
// the room's watermark was already enqueued through another path (live
// dispatch racing a resume replay) and is suppressed; that is not a drop.
func (c *Client) TrySendRoom(roomID string, seq int64, data []byte) bool {
	if c.State() >= domain.StateDraining {
		return false
	}
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	if seq <= c.roomSeq[roomID] {
		return true
	}
	select {
	case c.out <- data:
		c.roomSeq[roomID] = seq
		return true
	default:
		return false
	}
}

// Drain flushes whatever is queued, then closes. New outbound traffic is
// refused as soon as the state flips.
func (c *Client) Drain() {
	c.drainOnce.Do(func() {
		c.setState(domain.StateDraining)
		close(c.drainCh)
	})
}

// Close cancels pending deliveries immediately; no partial-flush
// guarantee. Already-sequenced messages are unaffected.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.setState(domain.StateClosed)
		c.cancel()
		c.ws.Close()
	})
}

func (c *Client) writeLoop() {
	defer c.Close()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.drainCh:
			c.flush()
			return
		case <-ticker.C:
			if err := c.ws.WritePing(); err != nil {
				return
			}
		case data := <-c.out:
			if err := c.ws.WriteMessage(data); err != nil {
				// Transport failure tears the connection down; the peer
				// reconnects and resumes.
				return
			}
		}
	}
}

// flush writes out the backlog without waiting for new traffic.
func (c *Client) flush() {
	for {
		select {
		case data := <-c.out:
			if err := c.ws.WriteMessage(data); err != nil {
				return
			}
		default:
			return
		}
	}
}
