package room

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/scribble/internal/auth"
	"github.com/jason-s-yu/scribble/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// staticNames resolves from a fixed map and optionally fails alongside a partial result.
type staticNames struct {
	mu    sync.Mutex
	names map[uuid.UUID]string
	err   error
}

func (s *staticNames) ResolveDisplayNames(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uuid.UUID]string, len(ids))
	for _, id := range ids {
		if n, ok := s.names[id]; ok {
			out[id] = n
		}
	}
	return out, s.err
}

func (s *staticNames) set(id uuid.UUID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[id] = name
}

// recordingSink collects published events.
type recordingSink struct {
	mu     sync.Mutex
	events []models.RoomEvent
}

func (s *recordingSink) Publish(_ context.Context, ev models.RoomEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *recordingSink) types(roomID uuid.UUID) []models.RoomEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.RoomEventType
	for _, ev := range s.events {
		if ev.RoomID == roomID {
			out = append(out, ev.Type)
		}
	}
	return out
}

type fixture struct {
	reg   *Registry
	names *staticNames
	sink  *recordingSink
}

func newFixture(t *testing.T, grace time.Duration) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	f := &fixture{
		names: &staticNames{names: make(map[uuid.UUID]string)},
		sink:  &recordingSink{},
	}
	f.reg = NewRegistry(Options{
		GracePeriod: grace,
		Hasher:      auth.NewHasher(auth.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}),
		Names:       f.names,
		Sink:        f.sink,
		Logger:      logger,
	})
	return f
}

func (f *fixture) createRoom(t *testing.T, capacity int) Record {
	t.Helper()
	rec, err := f.reg.CreateRoom(context.Background(), CreateParams{
		Name:     "heros",
		Capacity: capacity,
		Password: "snake123",
		Owner:    uuid.New(),
	})
	require.NoError(t, err)
	return rec
}

func (f *fixture) player(name string) uuid.UUID {
	id := uuid.New()
	f.names.set(id, name)
	return id
}

func nextMessage(t *testing.T, c *Connection) map[string]interface{} {
	t.Helper()
	select {
	case msg := <-c.OutChan:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no message for player %s", c.PlayerID)
	}
	return nil
}

func assertNoMessage(t *testing.T, c *Connection) {
	t.Helper()
	select {
	case msg := <-c.OutChan:
		t.Fatalf("unexpected message for player %s: %v", c.PlayerID, msg)
	default:
	}
}

func TestCreateRoomAppliesDefaultsAndIsVisible(t *testing.T) {
	f := newFixture(t, time.Minute)
	owner := uuid.New()

	rec, err := f.reg.CreateRoom(context.Background(), CreateParams{Name: "snake", Password: "snake123", Owner: owner})
	require.NoError(t, err)
	assert.Equal(t, DefaultCapacity, rec.Capacity)
	assert.Equal(t, DefaultRounds, rec.Rounds)
	assert.Equal(t, AwaitingFirstMember.String(), rec.State)

	got, err := f.reg.GetRoom(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, got.Owner)

	list := f.reg.ListRooms()
	require.Len(t, list, 1)
	assert.Equal(t, rec.ID, list[0].ID)

	raw, err := json.Marshal(list)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "argon2")

	assert.Equal(t, []models.RoomEventType{models.RoomCreated}, f.sink.types(rec.ID))
}

func TestCreateRoomRejectsInvalidParams(t *testing.T) {
	f := newFixture(t, time.Minute)
	_, err := f.reg.CreateRoom(context.Background(), CreateParams{Name: ""})
	assert.ErrorIs(t, err, ErrInvalidRoom)
	_, err = f.reg.CreateRoom(context.Background(), CreateParams{Name: "x", Capacity: -1})
	assert.ErrorIs(t, err, ErrInvalidRoom)
}

func TestGetRoomNotFound(t *testing.T) {
	f := newFixture(t, time.Minute)
	_, err := f.reg.GetRoom(uuid.New())
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestConcurrentJoinsNeverOvershootCapacity(t *testing.T) {
	f := newFixture(t, time.Minute)
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for trial := 0; trial < 20; trial++ {
		capacity := 1 + rng.Intn(6)
		extra := 1 + rng.Intn(8)
		rec := f.createRoom(t, capacity)

		var (
			wg    sync.WaitGroup
			start = make(chan struct{})
			mu    sync.Mutex
			ok    int
			full  int
		)
		for i := 0; i < capacity+extra; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pid := uuid.New()
				<-start
				err := f.reg.Join(context.Background(), rec.ID, pid, NewConnection(rec.ID, pid, 16))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					ok++
				case errors.Is(err, ErrRoomFull):
					full++
				default:
					t.Errorf("unexpected join error: %v", err)
				}
			}()
		}
		close(start)
		wg.Wait()

		assert.Equal(t, capacity, ok, "trial %d", trial)
		assert.Equal(t, extra, full, "trial %d", trial)
		members, err := f.reg.ListMembers(rec.ID)
		require.NoError(t, err)
		assert.Len(t, members, capacity)
	}
}

func TestLastSlotRaceHasExactlyOneWinner(t *testing.T) {
	f := newFixture(t, time.Minute)
	rec := f.createRoom(t, 2)
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, uuid.New(), nil))

	errs := make(chan error, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			errs <- f.reg.Join(context.Background(), rec.ID, uuid.New(), nil)
		}()
	}
	close(start)
	a, b := <-errs, <-errs

	assert.True(t, (a == nil) != (b == nil), "exactly one join should win: %v / %v", a, b)
	if a != nil {
		assert.ErrorIs(t, a, ErrRoomFull)
	} else {
		assert.ErrorIs(t, b, ErrRoomFull)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	f := newFixture(t, time.Minute)
	rec := f.createRoom(t, 3)
	pid := f.player("alice")
	conn := NewConnection(rec.ID, pid, 16)

	require.NoError(t, f.reg.Join(context.Background(), rec.ID, pid, conn))
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, pid, conn))

	members, err := f.reg.ListMembers(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{pid}, members)
	assert.Equal(t, []models.RoomEventType{models.RoomCreated, models.RoomJoined}, f.sink.types(rec.ID))
}

func TestRejoinReplacesConnection(t *testing.T) {
	f := newFixture(t, time.Minute)
	rec := f.createRoom(t, 3)
	pid := f.player("alice")
	first := NewConnection(rec.ID, pid, 16)
	second := NewConnection(rec.ID, pid, 16)

	require.NoError(t, f.reg.Join(context.Background(), rec.ID, pid, first))
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, pid, second))

	select {
	case <-first.Closing():
		assert.Equal(t, ReasonSuperseded, first.Reason())
	default:
		t.Fatal("superseded connection was not closed")
	}
	assert.Equal(t, []string{"alice"}, nextMessage(t, second)["players"])

	// the stale socket going away must not evict the live one
	f.reg.Disconnect(context.Background(), first)
	members, err := f.reg.ListMembers(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{pid}, members)

	f.reg.Disconnect(context.Background(), second)
	_, err = f.reg.GetRoom(rec.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinFullAndMissingRoom(t *testing.T) {
	f := newFixture(t, time.Minute)
	rec := f.createRoom(t, 1)

	require.NoError(t, f.reg.Join(context.Background(), rec.ID, uuid.New(), nil))
	assert.ErrorIs(t, f.reg.Join(context.Background(), rec.ID, uuid.New(), nil), ErrRoomFull)
	assert.ErrorIs(t, f.reg.Join(context.Background(), uuid.New(), uuid.New(), nil), ErrRoomNotFound)
}

func TestLastLeaveDeletesRoom(t *testing.T) {
	f := newFixture(t, time.Minute)
	rec := f.createRoom(t, 2)
	a, b := uuid.New(), uuid.New()
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, a, nil))
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, b, nil))

	require.NoError(t, f.reg.Leave(context.Background(), rec.ID, a))
	_, err := f.reg.GetRoom(rec.ID)
	require.NoError(t, err)

	// leaving twice is harmless
	require.NoError(t, f.reg.Leave(context.Background(), rec.ID, a))

	require.NoError(t, f.reg.Leave(context.Background(), rec.ID, b))
	_, err = f.reg.GetRoom(rec.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, f.reg.ListRooms())

	// a closed room is never reopened
	assert.ErrorIs(t, f.reg.Join(context.Background(), rec.ID, a, nil), ErrRoomNotFound)
	assert.ErrorIs(t, f.reg.Leave(context.Background(), rec.ID, a), ErrRoomNotFound)

	assert.Equal(t, []models.RoomEventType{
		models.RoomCreated, models.RoomJoined, models.RoomJoined,
		models.RoomLeft, models.RoomLeft, models.RoomClosed,
	}, f.sink.types(rec.ID))
}

func TestLeaveClosesMemberConnection(t *testing.T) {
	f := newFixture(t, time.Minute)
	rec := f.createRoom(t, 2)
	pid := f.player("alice")
	conn := NewConnection(rec.ID, pid, 16)
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, pid, conn))

	require.NoError(t, f.reg.Leave(context.Background(), rec.ID, pid))
	select {
	case <-conn.Closing():
		assert.Equal(t, ReasonLeft, conn.Reason())
	default:
		t.Fatal("connection of a player who left was not closed")
	}
}

func TestUnjoinedRoomExpires(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	rec := f.createRoom(t, 2)

	assert.Eventually(t, func() bool {
		_, err := f.reg.GetRoom(rec.ID)
		return errors.Is(err, ErrRoomNotFound)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []models.RoomEventType{models.RoomCreated, models.RoomExpired}, f.sink.types(rec.ID))
}

func TestImmediateExpiryLeavesNoRoomBehind(t *testing.T) {
	f := newFixture(t, time.Nanosecond)
	for i := 0; i < 500; i++ {
		f.createRoom(t, 2)
	}

	assert.Eventually(t, func() bool {
		f.reg.mu.RLock()
		defer f.reg.mu.RUnlock()
		return len(f.reg.rooms) == 0
	}, 2*time.Second, 5*time.Millisecond, "expired rooms must be removed from the directory")
	assert.Empty(t, f.reg.ListRooms())
}

func TestJoinedRoomSurvivesGracePeriod(t *testing.T) {
	f := newFixture(t, 30*time.Millisecond)
	rec := f.createRoom(t, 2)
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, uuid.New(), nil))

	time.Sleep(120 * time.Millisecond)
	got, err := f.reg.GetRoom(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, Active.String(), got.State)
	assert.NotContains(t, f.sink.types(rec.ID), models.RoomExpired)
}

func TestExpiryRacingFirstJoin(t *testing.T) {
	f := newFixture(t, time.Millisecond)

	for i := 0; i < 200; i++ {
		rec := f.createRoom(t, 2)
		if i%2 == 0 {
			time.Sleep(time.Millisecond)
		}
		err := f.reg.Join(context.Background(), rec.ID, uuid.New(), nil)
		_, getErr := f.reg.GetRoom(rec.ID)
		if err == nil {
			require.NoError(t, getErr, "room expired after a successful join")
		} else {
			require.ErrorIs(t, err, ErrRoomNotFound)
			require.ErrorIs(t, getErr, ErrRoomNotFound)
		}
	}
}

func TestPresenceBroadcastSequence(t *testing.T) {
	f := newFixture(t, time.Minute)
	rec := f.createRoom(t, 2)
	a, b := f.player("alice"), f.player("bob")
	connA := NewConnection(rec.ID, a, 16)
	connB := NewConnection(rec.ID, b, 16)

	require.NoError(t, f.reg.Join(context.Background(), rec.ID, a, connA))
	assert.Equal(t, []string{"alice"}, nextMessage(t, connA)["players"])

	require.NoError(t, f.reg.Join(context.Background(), rec.ID, b, connB))
	assert.Equal(t, []string{"alice", "bob"}, nextMessage(t, connA)["players"])
	assert.Equal(t, []string{"alice", "bob"}, nextMessage(t, connB)["players"])

	f.reg.Disconnect(context.Background(), connA)
	assert.Equal(t, []string{"bob"}, nextMessage(t, connB)["players"])
	assertNoMessage(t, connA)

	f.reg.Disconnect(context.Background(), connB)
	_, err := f.reg.GetRoom(rec.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assertNoMessage(t, connB)
}

// stallingSink blocks every Publish until released or the context expires.
type stallingSink struct {
	release chan struct{}
}

func (s *stallingSink) Publish(ctx context.Context, _ models.RoomEvent) error {
	select {
	case <-s.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestPresenceNotDelayedBySlowSink(t *testing.T) {
	f := newFixture(t, time.Minute)
	sink := &stallingSink{release: make(chan struct{})}
	rec := f.createRoom(t, 2)
	f.reg.opts.Sink = sink
	defer close(sink.release)

	a, b := f.player("alice"), f.player("bob")
	connA := NewConnection(rec.ID, a, 16)
	connB := NewConnection(rec.ID, b, 16)

	go f.reg.Join(context.Background(), rec.ID, a, connA)
	assert.Equal(t, []string{"alice"}, nextMessage(t, connA)["players"])

	go f.reg.Join(context.Background(), rec.ID, b, connB)
	assert.Equal(t, []string{"alice", "bob"}, nextMessage(t, connB)["players"])
	assert.Equal(t, []string{"alice", "bob"}, nextMessage(t, connA)["players"])

	go f.reg.Disconnect(context.Background(), connB)
	assert.Equal(t, []string{"alice"}, nextMessage(t, connA)["players"])
}

func TestPresenceDropsUnresolvedNames(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.names.err = errors.New("lookup backend down")
	rec := f.createRoom(t, 3)
	known := f.player("alice")
	unknown := uuid.New()
	connA := NewConnection(rec.ID, known, 16)

	require.NoError(t, f.reg.Join(context.Background(), rec.ID, known, connA))
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, unknown, nil))

	assert.Equal(t, []string{"alice"}, nextMessage(t, connA)["players"])
	assert.Equal(t, []string{"alice"}, nextMessage(t, connA)["players"])
}

func TestDuplicateNamesAreKept(t *testing.T) {
	f := newFixture(t, time.Minute)
	rec := f.createRoom(t, 2)
	a, b := f.player("sam"), f.player("sam")
	connA := NewConnection(rec.ID, a, 16)

	require.NoError(t, f.reg.Join(context.Background(), rec.ID, a, connA))
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, b, nil))
	nextMessage(t, connA)
	assert.Equal(t, []string{"sam", "sam"}, nextMessage(t, connA)["players"])
}

func TestAuthorizePrivacyGate(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	public, err := f.reg.CreateRoom(ctx, CreateParams{Name: "open", Password: "snake123"})
	require.NoError(t, err)
	private, err := f.reg.CreateRoom(ctx, CreateParams{Name: "closed", Password: "snake123", IsPrivate: true})
	require.NoError(t, err)

	// public rooms accept any password
	assert.NoError(t, f.reg.Authorize(public.ID, "whatever"))
	assert.NoError(t, f.reg.Authorize(public.ID, ""))

	assert.NoError(t, f.reg.Authorize(private.ID, "snake123"))
	assert.ErrorIs(t, f.reg.Authorize(private.ID, "wrong"), ErrInvalidCredential)
	assert.ErrorIs(t, f.reg.Authorize(uuid.New(), "snake123"), ErrRoomNotFound)
}

func TestRelayAttachesSenderName(t *testing.T) {
	f := newFixture(t, time.Minute)
	rec := f.createRoom(t, 3)
	a, b := f.player("alice"), f.player("bob")
	connA := NewConnection(rec.ID, a, 16)
	connB := NewConnection(rec.ID, b, 16)
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, a, connA))
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, b, connB))
	nextMessage(t, connA)
	nextMessage(t, connA)
	nextMessage(t, connB)

	payload := json.RawMessage(`{"stroke":[1,2,3]}`)
	require.NoError(t, f.reg.Relay(context.Background(), connA, payload))

	for _, c := range []*Connection{connA, connB} {
		msg := nextMessage(t, c)
		assert.Equal(t, "send", msg["type"])
		assert.Equal(t, "alice", msg["playerName"])
		assert.Equal(t, payload, msg["payload"])
	}

	outsider := NewConnection(rec.ID, uuid.New(), 16)
	assert.ErrorIs(t, f.reg.Relay(context.Background(), outsider, payload), ErrNotMember)
	assert.ErrorIs(t, f.reg.Relay(context.Background(), NewConnection(uuid.New(), a, 1), payload), ErrRoomNotFound)
}

func TestDeleteRoomIsIdempotent(t *testing.T) {
	f := newFixture(t, time.Minute)
	rec := f.createRoom(t, 2)
	pid := f.player("alice")
	conn := NewConnection(rec.ID, pid, 16)
	require.NoError(t, f.reg.Join(context.Background(), rec.ID, pid, conn))
	nextMessage(t, conn)

	f.reg.DeleteRoom(context.Background(), rec.ID)
	f.reg.DeleteRoom(context.Background(), rec.ID)

	msg := nextMessage(t, conn)
	assert.Equal(t, "room_closed", msg["type"])
	select {
	case <-conn.Closing():
		assert.Equal(t, ReasonRoomClosed, conn.Reason())
	default:
		t.Fatal("member connection not closed on delete")
	}

	_, err := f.reg.GetRoom(rec.ID)
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, []models.RoomEventType{models.RoomCreated, models.RoomJoined, models.RoomDeleted}, f.sink.types(rec.ID))

	// unknown ids are ignored
	f.reg.DeleteRoom(context.Background(), uuid.New())
}

func TestListRoomsUnderConcurrentChurn(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	stop := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			rec, err := f.reg.CreateRoom(ctx, CreateParams{Name: "churn", Password: "pw12"})
			if err != nil {
				t.Error(err)
				return
			}
			f.reg.DeleteRoom(ctx, rec.ID)
		}
	}()

	for i := 0; i < 200; i++ {
		seen := make(map[uuid.UUID]bool)
		for _, rec := range f.reg.ListRooms() {
			assert.False(t, seen[rec.ID], "duplicate room in listing")
			seen[rec.ID] = true
			assert.NotEmpty(t, rec.Name)
		}
	}
	close(stop)
	wg.Wait()
}

func TestConnectionWriteDoesNotBlock(t *testing.T) {
	conn := NewConnection(uuid.New(), uuid.New(), 1)
	assert.True(t, conn.Write(map[string]interface{}{"type": "a"}))
	assert.False(t, conn.Write(map[string]interface{}{"type": "b"}))

	conn.Close(ReasonLeft)
	conn.Close(ReasonRoomClosed)
	assert.Equal(t, ReasonLeft, conn.Reason())
}
