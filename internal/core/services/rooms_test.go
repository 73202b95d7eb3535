package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"livechat/internal/core/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoomFixture(t *testing.T, pageSize int) (*RoomService, *memRoomRepo, *recRegistry, *memLog, uuid.UUID, uuid.UUID) {
	t.Helper()
	roomRepo := newMemRoomRepo()
	reg := newRecRegistry()
	log := newMemLog()
	svc := NewRoomService(testLogger(), roomRepo, reg, newMemPresence(), NewBackfill(testLogger(), log, pageSize))

	roomID := uuid.New()
	userID := uuid.New()
	require.NoError(t, roomRepo.CreateRoom(context.Background(), &domain.Room{
		ID: roomID, Name: "general", CreatedBy: userID, CreatedAt: time.Now().UTC(),
	}))
	return svc, roomRepo, reg, log, roomID, userID
}

func TestJoinRequiresMembership(t *testing.T) {
	svc, _, reg, _, roomID, _ := newRoomFixture(t, 200)
	c := newStubConn("conn-1", uuid.NewString())

	err := svc.Join(context.Background(), c, roomID.String(), nil)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	assert.Empty(t, reg.joins, "a denied join must not touch the subscription set")
}

func TestJoinUnknownRoom(t *testing.T) {
	svc, _, _, _, _, _ := newRoomFixture(t, 200)
	c := newStubConn("conn-1", uuid.NewString())

	err := svc.Join(context.Background(), c, uuid.NewString(), nil)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestJoinMalformedRoomID(t *testing.T) {
	svc, _, _, _, _, _ := newRoomFixture(t, 200)
	c := newStubConn("conn-1", uuid.NewString())

	err := svc.Join(context.Background(), c, "not-a-uuid", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRoomID)
}

func TestJoinSubscribesAndAnnouncesPresence(t *testing.T) {
	svc, roomRepo, reg, _, roomID, userID := newRoomFixture(t, 200)
	require.NoError(t, roomRepo.AddMember(context.Background(), roomID, userID))
	c := newStubConn("conn-1", userID.String())

	require.NoError(t, svc.Join(context.Background(), c, roomID.String(), nil))
	assert.Equal(t, []string{"conn-1/" + roomID.String()}, reg.joins)
	require.Len(t, reg.presence, 1)
	assert.Equal(t, []string{userID.String()}, reg.presence[0].Online)
}

func TestJoinReplaysDeclaredGap(t *testing.T) {
	svc, roomRepo, _, log, roomID, userID := newRoomFixture(t, 2)
	require.NoError(t, roomRepo.AddMember(context.Background(), roomID, userID))
	log.seed(roomID, userID, 5)
	c := newStubConn("conn-1", userID.String())

	resumeFrom := int64(2)
	require.NoError(t, svc.Join(context.Background(), c, roomID.String(), &resumeFrom))

	var replayed []int64
	for _, raw := range c.received() {
		var cm domain.ChatMessage
		require.NoError(t, json.Unmarshal(raw, &cm))
		if cm.Type == domain.TypeMessage {
			replayed = append(replayed, cm.Seq)
		}
	}
	assert.Equal(t, []int64{3, 4, 5}, replayed, "replay covers everything above the declared seq, across page boundaries")
}

func TestJoinWithoutResumeReplaysNothing(t *testing.T) {
	svc, roomRepo, _, log, roomID, userID := newRoomFixture(t, 200)
	require.NoError(t, roomRepo.AddMember(context.Background(), roomID, userID))
	log.seed(roomID, userID, 5)
	c := newStubConn("conn-1", userID.String())

	require.NoError(t, svc.Join(context.Background(), c, roomID.String(), nil))
	for _, raw := range c.received() {
		var cm domain.ChatMessage
		require.NoError(t, json.Unmarshal(raw, &cm))
		assert.NotEqual(t, domain.TypeMessage, cm.Type, "no resume point, no replay")
	}
}

func TestReplayStopsWhenQueueFills(t *testing.T) {
	svc, roomRepo, _, log, roomID, userID := newRoomFixture(t, 200)
	require.NoError(t, roomRepo.AddMember(context.Background(), roomID, userID))
	log.seed(roomID, userID, 50)
	c := newStubConn("conn-1", userID.String())
	c.capacity = 10

	resumeFrom := int64(0)
	require.NoError(t, svc.Join(context.Background(), c, roomID.String(), &resumeFrom),
		"a stalled replay is not a join failure")
	assert.Len(t, c.received(), 10, "replay stops at the queue boundary; the client re-resumes from its last seq")
}

func TestJoinResumeNotOvertakenByLiveDispatch(t *testing.T) {
	svc, roomRepo, reg, log, roomID, userID := newRoomFixture(t, 2)
	require.NoError(t, roomRepo.AddMember(context.Background(), roomID, userID))
	log.seed(roomID, userID, 5)
	c := newStubConn("conn-1", userID.String())
	require.NoError(t, reg.Register(c))

	// The instant the subscription lands, a sixth message is sequenced and
	// fanned out live, racing the resume replay.
	reg.onJoin = func(rid string) {
		seq, err := log.AppendWithSeq(context.Background(), &domain.Message{
			ID: uuid.New(), RoomID: roomID, SenderID: userID, Payload: "m", CreatedAt: time.Now().UTC(),
		})
		require.NoError(t, err)
		raw, err := json.Marshal(domain.ChatMessage{Type: domain.TypeMessage, RoomID: rid, Seq: seq})
		require.NoError(t, err)
		c.TrySendRoom(rid, seq, raw)
	}

	resumeFrom := int64(2)
	require.NoError(t, svc.Join(context.Background(), c, roomID.String(), &resumeFrom))

	var delivered []int64
	for _, raw := range c.received() {
		var cm domain.ChatMessage
		require.NoError(t, json.Unmarshal(raw, &cm))
		if cm.Type == domain.TypeMessage {
			delivered = append(delivered, cm.Seq)
		}
	}
	assert.Equal(t, []int64{3, 4, 5, 6}, delivered,
		"per-room delivery stays strictly increasing with no duplicates even when live fan-out races the replay")
}

func TestLeaveRemovesPresencePerRoom(t *testing.T) {
	svc, roomRepo, reg, _, roomA, userID := newRoomFixture(t, 200)
	require.NoError(t, roomRepo.AddMember(context.Background(), roomA, userID))
	roomB := uuid.New()
	require.NoError(t, roomRepo.CreateRoom(context.Background(), &domain.Room{
		ID: roomB, Name: "side", CreatedBy: userID, CreatedAt: time.Now().UTC(),
	}))
	require.NoError(t, roomRepo.AddMember(context.Background(), roomB, userID))

	c1 := newStubConn("conn-1", userID.String())
	c2 := newStubConn("conn-2", userID.String())
	require.NoError(t, reg.Register(c1))
	require.NoError(t, reg.Register(c2))
	require.NoError(t, svc.Join(context.Background(), c1, roomA.String(), nil))
	require.NoError(t, svc.Join(context.Background(), c2, roomB.String(), nil))

	svc.Leave(context.Background(), c1, roomA.String())

	last := reg.presence[len(reg.presence)-1]
	require.Equal(t, roomA.String(), last.RoomID)
	assert.Empty(t, last.Online,
		"a second connection in a different room must not keep the user online in the room it left")
}

func TestLeaveKeepsPresenceWhileAnotherConnectionRemains(t *testing.T) {
	svc, roomRepo, reg, _, roomID, userID := newRoomFixture(t, 200)
	require.NoError(t, roomRepo.AddMember(context.Background(), roomID, userID))
	c1 := newStubConn("conn-1", userID.String())
	c2 := newStubConn("conn-2", userID.String())
	require.NoError(t, reg.Register(c1))
	require.NoError(t, reg.Register(c2))
	require.NoError(t, svc.Join(context.Background(), c1, roomID.String(), nil))
	require.NoError(t, svc.Join(context.Background(), c2, roomID.String(), nil))

	svc.Leave(context.Background(), c1, roomID.String())
	last := reg.presence[len(reg.presence)-1]
	assert.Equal(t, []string{userID.String()}, last.Online,
		"the user stays online in the room while another of their connections is subscribed to it")

	svc.Leave(context.Background(), c2, roomID.String())
	last = reg.presence[len(reg.presence)-1]
	assert.Empty(t, last.Online)
}

func TestLeaveIsIdempotent(t *testing.T) {
	svc, roomRepo, reg, _, roomID, userID := newRoomFixture(t, 200)
	require.NoError(t, roomRepo.AddMember(context.Background(), roomID, userID))
	c := newStubConn("conn-1", userID.String())
	require.NoError(t, svc.Join(context.Background(), c, roomID.String(), nil))

	svc.Leave(context.Background(), c, roomID.String())
	svc.Leave(context.Background(), c, roomID.String())
	assert.Len(t, reg.leaves, 2, "both calls reach the registry, which treats the second as a no-op")
}
