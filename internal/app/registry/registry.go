package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"livechat/internal/config"
	"livechat/internal/core/contracts"
	"livechat/internal/core/domain"
	"livechat/internal/platform/metrics"
)

// Registry is the single connection table for the process: every live
// connection, the per-user index behind the connection cap, and the
// per-room subscription sets. The first subscriber of a room starts that
// room's dispatch worker; the last one leaving stops it.
type Registry struct {
	mu          sync.RWMutex
	clients     map[string]contracts.Client            // conn_id → client
	byUser      map[string]map[string]contracts.Client // user_id → conn_id → client
	roomHub     map[string]map[string]contracts.Client // room_id → conn_id → client
	roomsByConn map[string]map[string]struct{}         // conn_id → room_ids
	workers     map[string]context.CancelFunc          // room_id → worker cancel

	runWorker   func(ctx context.Context, roomID string) error
	onRoomEmpty func(roomID string)

	maxPerUser  int
	idleTimeout time.Duration
	sweepEvery  time.Duration

	log      *slog.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewRegistry(log *slog.Logger, cfg config.ChatConfig) *Registry {
	r := &Registry{
		clients:     make(map[string]contracts.Client),
		byUser:      make(map[string]map[string]contracts.Client),
		roomHub:     make(map[string]map[string]contracts.Client),
		roomsByConn: make(map[string]map[string]struct{}),
		workers:     make(map[string]context.CancelFunc),
		maxPerUser:  cfg.MaxConnsPerUser,
		idleTimeout: cfg.IdleTimeout,
		sweepEvery:  cfg.SweepEvery,
		log:         log,
		stopCh:      make(chan struct{}),
	}
	if r.sweepEvery > 0 && r.idleTimeout > 0 {
		go r.sweeper()
	}
	return r
}

// RunWorker installs the per-room dispatch loop started on first join.
func (r *Registry) RunWorker(run func(ctx context.Context, roomID string) error) {
	r.runWorker = run
}

// OnRoomEmpty installs a hook fired after a room loses its last
// subscriber, once its worker has been cancelled.
func (r *Registry) OnRoomEmpty(fn func(roomID string)) {
	r.onRoomEmpty = fn
}

func (r *Registry) Register(c contracts.Client) error {
	connID, userID := c.ID(), c.UserID()

	var evict contracts.Client
	r.mu.Lock()
	if r.maxPerUser > 0 && len(r.byUser[userID]) >= r.maxPerUser {
		evict = r.oldestLocked(userID)
	}
	if r.byUser[userID] == nil {
		r.byUser[userID] = make(map[string]contracts.Client)
	}
	r.byUser[userID][connID] = c
	r.clients[connID] = c
	r.roomsByConn[connID] = make(map[string]struct{})
	r.mu.Unlock()

	metrics.Connections.Inc()
	if evict != nil {
		r.log.Info("registry - register - evicting oldest connection", "user_id", userID, "conn_id", evict.ID())
		r.Unregister(evict.ID())
		evict.Close()
	}
	return nil
}

// Unregister removes the connection and all of its subscriptions.
// Idempotent: a second unregister of the same id is a no-op.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	c, ok := r.clients[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.clients, connID)
	if mm := r.byUser[c.UserID()]; mm != nil {
		delete(mm, connID)
		if len(mm) == 0 {
			delete(r.byUser, c.UserID())
		}
	}
	var emptied []string
	for roomID := range r.roomsByConn[connID] {
		if emptyRoom := r.leaveLocked(connID, roomID); emptyRoom {
			emptied = append(emptied, roomID)
		}
	}
	delete(r.roomsByConn, connID)
	r.mu.Unlock()

	metrics.Connections.Dec()
	for _, roomID := range emptied {
		r.roomEmptied(roomID)
	}
}

func (r *Registry) Lookup(connID string) (contracts.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	if !ok {
		return nil, domain.ErrConnectionNotFound
	}
	return c, nil
}

func (r *Registry) ConnectionsFor(userID string) []contracts.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.Client, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Join(connID, roomID string) error {
	r.mu.Lock()
	c, ok := r.clients[connID]
	if !ok {
		r.mu.Unlock()
		return domain.ErrConnectionNotFound
	}
	first := r.roomHub[roomID] == nil
	if first {
		r.roomHub[roomID] = make(map[string]contracts.Client)
		if r.runWorker != nil {
			ctx, cancel := context.WithCancel(context.Background())
			r.workers[roomID] = cancel
			go func() {
				if err := r.runWorker(ctx, roomID); err != nil && ctx.Err() == nil {
					r.log.Error("registry - room worker exited", "room_id", roomID, "err", err)
				}
			}()
		}
	}
	r.roomHub[roomID][connID] = c
	r.roomsByConn[connID][roomID] = struct{}{}
	r.mu.Unlock()
	return nil
}

func (r *Registry) Leave(connID, roomID string) {
	r.mu.Lock()
	empty := r.leaveLocked(connID, roomID)
	if rooms := r.roomsByConn[connID]; rooms != nil {
		delete(rooms, roomID)
	}
	r.mu.Unlock()
	if empty {
		r.roomEmptied(roomID)
	}
}

// leaveLocked removes one subscription; reports whether the room emptied.
func (r *Registry) leaveLocked(connID, roomID string) bool {
	hub := r.roomHub[roomID]
	if hub == nil {
		return false
	}
	delete(hub, connID)
	if len(hub) > 0 {
		return false
	}
	delete(r.roomHub, roomID)
	if cancel := r.workers[roomID]; cancel != nil {
		cancel()
		delete(r.workers, roomID)
	}
	return true
}

func (r *Registry) roomEmptied(roomID string) {
	if r.onRoomEmpty != nil {
		r.onRoomEmpty(roomID)
	}
}

func (r *Registry) Subscribers(roomID string) []contracts.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contracts.Client, 0, len(r.roomHub[roomID]))
	for _, c := range r.roomHub[roomID] {
		out = append(out, c)
	}
	return out
}

// Broadcast fans one frame out to the room's live subscription set. A
// full outbound queue drops that connection's delivery only; the message
// stays in the durable log and the client recovers via backfill.
func (r *Registry) Broadcast(ctx context.Context, roomID string, msg domain.ChatMessage) {
	data, _ := json.Marshal(msg)
	for _, c := range r.Subscribers(roomID) {
		if !c.TrySendRoom(roomID, msg.Seq, data) {
			metrics.DeliveriesDropped.Inc()
			r.log.WarnContext(ctx, "registry - broadcast - outbound queue full",
				"room_id", roomID, "conn_id", c.ID(), "seq", msg.Seq)
		}
	}
}

func (r *Registry) BroadcastPresence(ctx context.Context, roomID string, ev domain.PresenceEvent) {
	data, _ := json.Marshal(ev)
	for _, c := range r.Subscribers(roomID) {
		if !c.TrySend(data) {
			metrics.DeliveriesDropped.Inc()
		}
	}
}

func (r *Registry) SendAck(ctx context.Context, connID string, ack domain.AckMessage) {
	c, err := r.Lookup(connID)
	if err != nil {
		// Sender vanished between append and ack; nothing to do.
		return
	}
	data, _ := json.Marshal(ack)
	if !c.TrySend(data) {
		metrics.DeliveriesDropped.Inc()
	}
}

// DrainAll is the graceful-shutdown path: every connection stops reading,
// flushes its outbound queue and closes.
func (r *Registry) DrainAll() {
	r.mu.RLock()
	cs := make([]contracts.Client, 0, len(r.clients))
	for _, c := range r.clients {
		cs = append(cs, c)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range cs {
		wg.Add(1)
		go func(c contracts.Client) {
			defer wg.Done()
			c.Drain()
		}(c)
	}
	wg.Wait()
}

func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.mu.Lock()
	for roomID, cancel := range r.workers {
		cancel()
		delete(r.workers, roomID)
	}
	cs := make([]contracts.Client, 0, len(r.clients))
	for _, c := range r.clients {
		cs = append(cs, c)
	}
	r.clients = make(map[string]contracts.Client)
	r.byUser = make(map[string]map[string]contracts.Client)
	r.roomHub = make(map[string]map[string]contracts.Client)
	r.roomsByConn = make(map[string]map[string]struct{})
	r.mu.Unlock()
	for _, c := range cs {
		c.Close()
	}
}

// oldestLocked picks the user's least recently active connection.
func (r *Registry) oldestLocked(userID string) contracts.Client {
	var oldest contracts.Client
	for _, c := range r.byUser[userID] {
		if oldest == nil || c.LastActive().Before(oldest.LastActive()) {
			oldest = c
		}
	}
	return oldest
}

// sweeper closes connections idle past the timeout; abrupt network loss
// without a close frame ends up here.
func (r *Registry) sweeper() {
	t := time.NewTicker(r.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case now := <-t.C:
			r.sweepOnce(now)
		}
	}
}

func (r *Registry) sweepOnce(now time.Time) {
	r.mu.RLock()
	var idle []contracts.Client
	for _, c := range r.clients {
		if now.Sub(c.LastActive()) > r.idleTimeout {
			idle = append(idle, c)
		}
	}
	r.mu.RUnlock()

	for _, c := range idle {
		r.log.Info("registry - sweep - closing idle connection", "conn_id", c.ID(), "user_id", c.UserID())
		r.Unregister(c.ID())
		c.Close()
	}
}
