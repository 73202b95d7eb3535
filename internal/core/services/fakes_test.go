package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"livechat/internal/core/contracts"
	"livechat/internal/core/domain"

	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// passTx runs the callback without a real transaction.
type passTx struct{}

func (passTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// memLog is an in-memory MessageRepository with the same contract as the
// SQL one: seq is derived from what is stored, a failed append consumes
// nothing.
type memLog struct {
	mu      sync.Mutex
	rooms   map[uuid.UUID]bool
	msgs    map[uuid.UUID][]domain.Message
	failErr error
}

func newMemLog(roomIDs ...uuid.UUID) *memLog {
	l := &memLog{
		rooms: make(map[uuid.UUID]bool),
		msgs:  make(map[uuid.UUID][]domain.Message),
	}
	for _, id := range roomIDs {
		l.rooms[id] = true
	}
	return l
}

func (l *memLog) AppendWithSeq(ctx context.Context, msg *domain.Message) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failErr != nil {
		return 0, l.failErr
	}
	if !l.rooms[msg.RoomID] {
		return 0, domain.ErrRoomNotFound
	}
	stored := *msg
	stored.Seq = int64(len(l.msgs[msg.RoomID])) + 1
	l.msgs[msg.RoomID] = append(l.msgs[msg.RoomID], stored)
	return stored.Seq, nil
}

func (l *memLog) RangeAfter(ctx context.Context, roomID uuid.UUID, sinceSeq int64, limit int) ([]domain.Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Message
	for _, m := range l.msgs[roomID] {
		if m.Seq > sinceSeq {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *memLog) count(roomID uuid.UUID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs[roomID])
}

// seed inserts limit-free test fixtures directly.
func (l *memLog) seed(roomID, senderID uuid.UUID, n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rooms[roomID] = true
	for i := 0; i < n; i++ {
		l.msgs[roomID] = append(l.msgs[roomID], domain.Message{
			ID:        uuid.New(),
			RoomID:    roomID,
			SenderID:  senderID,
			Seq:       int64(i + 1),
			Payload:   "m",
			CreatedAt: time.Now().UTC(),
		})
	}
}

// recQueue records published stream entries in publish order.
type recQueue struct {
	mu        sync.Mutex
	published []struct {
		RoomID string
		Data   []byte
	}
	failErr error
}

func (q *recQueue) PublishToStream(ctx context.Context, roomID string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failErr != nil {
		return q.failErr
	}
	q.published = append(q.published, struct {
		RoomID string
		Data   []byte
	}{roomID, payload})
	return nil
}

func (q *recQueue) SubscribeToStream(ctx context.Context, roomID, group string, handler func(ctx context.Context, messageID string, data []byte) error) error {
	<-ctx.Done()
	return ctx.Err()
}

func (q *recQueue) AcknowledgeMessage(ctx context.Context, roomID, group, msgID string) error {
	return nil
}

func (q *recQueue) DeleteMessage(ctx context.Context, roomID, msgID string) error { return nil }
func (q *recQueue) DeleteStream(ctx context.Context, roomID string) error         { return nil }

func (q *recQueue) entries() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, 0, len(q.published))
	for _, e := range q.published {
		out = append(out, e.Data)
	}
	return out
}

// stubConn is a contracts.Client backed by a slice instead of a socket.
type stubConn struct {
	id, user string

	mu       sync.Mutex
	sent     [][]byte
	roomSeq  map[string]int64
	capacity int // <=0: unbounded
	drained  bool
	closed   bool
	last     time.Time
	state    domain.ConnState
}

func newStubConn(id, user string) *stubConn {
	return &stubConn{
		id:      id,
		user:    user,
		roomSeq: make(map[string]int64),
		last:    time.Now(),
		state:   domain.StateAuthenticated,
	}
}

func (c *stubConn) ID() string     { return c.id }
func (c *stubConn) UserID() string { return c.user }

func (c *stubConn) TrySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drained || c.closed {
		return false
	}
	if c.capacity > 0 && len(c.sent) >= c.capacity {
		return false
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.sent = append(c.sent, cp)
	return true
}

func (c *stubConn) TrySendRoom(roomID string, seq int64, data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.drained || c.closed {
		return false
	}
	if seq <= c.roomSeq[roomID] {
		return true
	}
	if c.capacity > 0 && len(c.sent) >= c.capacity {
		return false
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.sent = append(c.sent, cp)
	c.roomSeq[roomID] = seq
	return true
}

func (c *stubConn) Drain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drained = true
	c.state = domain.StateDraining
}

func (c *stubConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.state = domain.StateClosed
}

func (c *stubConn) State() domain.ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *stubConn) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *stubConn) received() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// recRegistry records the registry calls services make and keeps a real
// per-room subscription table so Subscribers answers truthfully.
type recRegistry struct {
	mu       sync.Mutex
	joins    []string
	leaves   []string
	acks     []domain.AckMessage
	presence []domain.PresenceEvent
	conns    map[string][]contracts.Client
	byConn   map[string]contracts.Client
	subs     map[string]map[string]contracts.Client // room_id → conn_id → client
	joinErr  error
	onJoin   func(roomID string) // fired after a successful Join, outside the lock
}

func newRecRegistry() *recRegistry {
	return &recRegistry{
		conns:  make(map[string][]contracts.Client),
		byConn: make(map[string]contracts.Client),
		subs:   make(map[string]map[string]contracts.Client),
	}
}

func (r *recRegistry) Register(c contracts.Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.UserID()] = append(r.conns[c.UserID()], c)
	r.byConn[c.ID()] = c
	return nil
}

func (r *recRegistry) Unregister(connID string) {}

func (r *recRegistry) Lookup(connID string) (contracts.Client, error) {
	return nil, domain.ErrConnectionNotFound
}

func (r *recRegistry) ConnectionsFor(userID string) []contracts.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conns[userID]
}

func (r *recRegistry) Join(connID, roomID string) error {
	r.mu.Lock()
	if r.joinErr != nil {
		r.mu.Unlock()
		return r.joinErr
	}
	r.joins = append(r.joins, connID+"/"+roomID)
	if c, ok := r.byConn[connID]; ok {
		if r.subs[roomID] == nil {
			r.subs[roomID] = make(map[string]contracts.Client)
		}
		r.subs[roomID][connID] = c
	}
	hook := r.onJoin
	r.mu.Unlock()
	if hook != nil {
		hook(roomID)
	}
	return nil
}

func (r *recRegistry) Leave(connID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves = append(r.leaves, connID+"/"+roomID)
	delete(r.subs[roomID], connID)
}

func (r *recRegistry) Subscribers(roomID string) []contracts.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contracts.Client, 0, len(r.subs[roomID]))
	for _, c := range r.subs[roomID] {
		out = append(out, c)
	}
	return out
}

func (r *recRegistry) Broadcast(ctx context.Context, roomID string, msg domain.ChatMessage) {}

func (r *recRegistry) BroadcastPresence(ctx context.Context, roomID string, ev domain.PresenceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.presence = append(r.presence, ev)
}

func (r *recRegistry) SendAck(ctx context.Context, connID string, ack domain.AckMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.acks = append(r.acks, ack)
}

func (r *recRegistry) DrainAll() {}
func (r *recRegistry) Close()    {}

// memPresence is a map-backed PresenceStore.
type memPresence struct {
	mu     sync.Mutex
	online map[string]map[string]bool
}

func newMemPresence() *memPresence {
	return &memPresence{online: make(map[string]map[string]bool)}
}

func (p *memPresence) UpdateOnlineStatus(ctx context.Context, roomID, userID string, ttl time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.online[roomID] == nil {
		p.online[roomID] = make(map[string]bool)
	}
	p.online[roomID][userID] = true
	return nil
}

func (p *memPresence) GetOnlineUsers(ctx context.Context, roomID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.online[roomID]))
	for u := range p.online[roomID] {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

func (p *memPresence) RemoveUser(ctx context.Context, roomID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online[roomID], userID)
	return nil
}

func (p *memPresence) ClearRoom(ctx context.Context, roomID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, roomID)
	return nil
}

// memRoomRepo is a map-backed RoomRepository.
type memRoomRepo struct {
	mu      sync.Mutex
	rooms   map[uuid.UUID]*domain.Room
	members map[uuid.UUID]map[uuid.UUID]bool
}

func newMemRoomRepo() *memRoomRepo {
	return &memRoomRepo{
		rooms:   make(map[uuid.UUID]*domain.Room),
		members: make(map[uuid.UUID]map[uuid.UUID]bool),
	}
}

func (r *memRoomRepo) CreateRoom(ctx context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[room.ID]; ok {
		return domain.ErrRoomAlreadyExists
	}
	r.rooms[room.ID] = room
	return nil
}

func (r *memRoomRepo) GetRoomByID(ctx context.Context, roomID uuid.UUID) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return room, nil
}

func (r *memRoomRepo) AddMember(ctx context.Context, roomID, userID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[roomID] == nil {
		r.members[roomID] = make(map[uuid.UUID]bool)
	}
	r.members[roomID][userID] = true
	return nil
}

func (r *memRoomRepo) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[roomID][userID], nil
}

// memUserRepo is a map-backed UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*domain.User)}
}

func (r *memUserRepo) CreateUser(ctx context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.Username]; ok {
		return domain.ErrUserAlreadyExists
	}
	r.users[u.Username] = u
	return nil
}

func (r *memUserRepo) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *memUserRepo) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}
