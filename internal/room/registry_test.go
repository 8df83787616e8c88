package room

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lalith-99/focusroom/internal/account"
	"github.com/lalith-99/focusroom/internal/models"
	"github.com/lalith-99/focusroom/internal/roomstore"
	"github.com/lalith-99/focusroom/internal/roomstore/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const waitFor = 2 * time.Second

var (
	alice = &account.Account{UID: "uid-alice", DisplayName: "Alice", Email: "alice@example.com"}
	bob   = &account.Account{UID: "uid-bob", DisplayName: "Bob", Email: "bob@example.com"}
)

func newTestRegistry(store roomstore.Store, acct *account.Account) *Registry {
	return NewRegistry(store, account.NewStaticProvider(acct), models.DefaultDurations(), clockwork.NewFakeClock(), zap.NewNop())
}

func TestNewRoomIDFormat(t *testing.T) {
	id := NewRoomID()
	assert.Len(t, id, 8)
	assert.Equal(t, strings.ToUpper(id), id)
}

func TestCreateRoomDefaults(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	reg := newTestRegistry(store, alice)

	sess, err := reg.CreateRoom(ctx, Config{Name: "deep work", Capacity: 4})
	require.NoError(t, err)
	defer sess.Leave(ctx)

	got := sess.Room()
	assert.Equal(t, "deep work", got.Name)
	assert.Equal(t, 4, got.Capacity)
	assert.False(t, got.HasPassword)
	assert.Equal(t, alice.UID, got.CreatedBy)
	require.Len(t, got.Participants, 1)
	assert.Equal(t, alice.UID, got.Participants[0].UID)
	assert.Equal(t, "Alice", got.Participants[0].DisplayName)

	assert.Equal(t, models.ModePomodoro, got.Timer.Mode)
	assert.Equal(t, models.DefaultPomodoroSeconds, got.Timer.TimeLeft)
	assert.False(t, got.Timer.IsActive)

	stored, err := store.GetRoom(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, got.ID, stored.ID)
}

func TestCreateRoomRequiresAuth(t *testing.T) {
	reg := newTestRegistry(memstore.New(), nil)
	_, err := reg.CreateRoom(context.Background(), Config{Name: "x", Capacity: 2})
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
}

func TestCreateRoomValidation(t *testing.T) {
	reg := newTestRegistry(memstore.New(), alice)

	_, err := reg.CreateRoom(context.Background(), Config{Name: "x", Capacity: 0})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = reg.CreateRoom(context.Background(), Config{Name: "x", Capacity: 2, HasPassword: true})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCreateRoomPasswordNeverSanitized(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	reg := newTestRegistry(store, alice)

	sess, err := reg.CreateRoom(ctx, Config{Name: "secret", Capacity: 2, HasPassword: true, Password: "hunter2"})
	require.NoError(t, err)
	defer sess.Leave(ctx)

	// The session's view is sanitized, the stored document keeps the
	// secret for join checks.
	assert.Empty(t, sess.Room().Password)
	assert.True(t, sess.Room().HasPassword)
	stored, err := store.GetRoom(ctx, sess.RoomID())
	require.NoError(t, err)
	assert.Equal(t, "hunter2", stored.Password)
}

func TestCheckRoomExists(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	reg := newTestRegistry(store, alice)

	_, err := reg.CheckRoomExists(ctx, "NOPE0000")
	assert.ErrorIs(t, err, ErrNotFound)

	sess, err := reg.CreateRoom(ctx, Config{Name: "x", Capacity: 2})
	require.NoError(t, err)
	defer sess.Leave(ctx)

	found, err := reg.CheckRoomExists(ctx, sess.RoomID())
	require.NoError(t, err)
	assert.Equal(t, sess.RoomID(), found.ID)
}

func TestJoinRoomWrongPassword(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	creator := newTestRegistry(store, alice)

	sess, err := creator.CreateRoom(ctx, Config{Name: "x", Capacity: 2, HasPassword: true, Password: "hunter2"})
	require.NoError(t, err)
	defer sess.Leave(ctx)

	joiner := newTestRegistry(store, bob)
	_, err = joiner.JoinRoom(ctx, sess.RoomID(), "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)

	bobSess, err := joiner.JoinRoom(ctx, sess.RoomID(), "hunter2")
	require.NoError(t, err)
	defer bobSess.Leave(ctx)
	assert.True(t, bobSess.Room().HasParticipant(bob.UID))
}

func TestJoinRoomIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	creator := newTestRegistry(store, alice)

	sess, err := creator.CreateRoom(ctx, Config{Name: "x", Capacity: 1})
	require.NoError(t, err)
	defer sess.Leave(ctx)

	// Re-joining a room you are in succeeds without a duplicate entry,
	// even though the room is at capacity.
	again, err := creator.JoinRoom(ctx, sess.RoomID(), "")
	require.NoError(t, err)
	assert.Len(t, again.Room().Participants, 1)
}

func TestJoinRoomFull(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	creator := newTestRegistry(store, alice)

	sess, err := creator.CreateRoom(ctx, Config{Name: "x", Capacity: 1})
	require.NoError(t, err)
	defer sess.Leave(ctx)

	joiner := newTestRegistry(store, bob)
	_, err = joiner.JoinRoom(ctx, sess.RoomID(), "")
	assert.ErrorIs(t, err, ErrRoomFull)
}

func TestLeaveLastParticipantDeletesRoom(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	reg := newTestRegistry(store, alice)

	sess, err := reg.CreateRoom(ctx, Config{Name: "x", Capacity: 2})
	require.NoError(t, err)
	id := sess.RoomID()

	require.NoError(t, sess.Leave(ctx))
	_, err = store.GetRoom(ctx, id)
	assert.ErrorIs(t, err, roomstore.ErrNotFound)
}

func TestLeaveKeepsRoomForOthers(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	aliceSess, err := newTestRegistry(store, alice).CreateRoom(ctx, Config{Name: "x", Capacity: 2})
	require.NoError(t, err)
	bobSess, err := newTestRegistry(store, bob).JoinRoom(ctx, aliceSess.RoomID(), "")
	require.NoError(t, err)
	defer aliceSess.Leave(ctx)

	require.NoError(t, bobSess.Leave(ctx))

	stored, err := store.GetRoom(ctx, aliceSess.RoomID())
	require.NoError(t, err)
	assert.False(t, stored.HasParticipant(bob.UID))
	assert.True(t, stored.HasParticipant(alice.UID))
}

func TestLeaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	reg := newTestRegistry(store, alice)

	sess, err := reg.CreateRoom(ctx, Config{Name: "x", Capacity: 2})
	require.NoError(t, err)

	require.NoError(t, sess.Leave(ctx))
	require.NoError(t, sess.Leave(ctx))
}

func TestMessagesRequiresMembership(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	sess, err := newTestRegistry(store, alice).CreateRoom(ctx, Config{Name: "x", Capacity: 2})
	require.NoError(t, err)
	defer sess.Leave(ctx)

	_, err = newTestRegistry(store, bob).Messages(ctx, sess.RoomID(), bob.UID)
	assert.ErrorIs(t, err, ErrAuthenticationRequired)
}

// TestSessionsConverge drives two live sessions the way two browsers
// share one room: presence, timer and chat all flow through the store
// subscriptions.
func TestSessionsConverge(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	aliceSess, err := newTestRegistry(store, alice).CreateRoom(ctx, Config{Name: "study", Capacity: 4})
	require.NoError(t, err)
	bobSess, err := newTestRegistry(store, bob).JoinRoom(ctx, aliceSess.RoomID(), "")
	require.NoError(t, err)
	defer bobSess.Leave(ctx)

	// Presence: alice sees bob arrive.
	require.Eventually(t, func() bool {
		return aliceSess.Room().HasParticipant(bob.UID)
	}, waitFor, time.Millisecond, "alice never saw bob join")

	// Timer: bob starts, alice follows.
	bobSess.Timer().Toggle(ctx)
	require.Eventually(t, func() bool {
		return aliceSess.Timer().State().IsActive
	}, waitFor, time.Millisecond, "alice never saw bob's toggle")

	// Chat: bob sends, alice's log catches up.
	_, err = bobSess.Chat().SendMessage(ctx, "hello")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		msgs := aliceSess.Chat().Messages()
		return len(msgs) == 1 && msgs[0].Text == "hello" && msgs[0].SenderUID == bob.UID
	}, waitFor, time.Millisecond, "alice never saw bob's message")

	// Leaving last tears the room down entirely.
	require.NoError(t, bobSess.Leave(ctx))
	require.NoError(t, aliceSess.Leave(ctx))
	_, err = store.GetRoom(ctx, aliceSess.RoomID())
	assert.ErrorIs(t, err, roomstore.ErrNotFound)
}

func TestSessionEmitsEvents(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()

	aliceSess, err := newTestRegistry(store, alice).CreateRoom(ctx, Config{Name: "study", Capacity: 4})
	require.NoError(t, err)
	defer aliceSess.Leave(ctx)

	bobSess, err := newTestRegistry(store, bob).JoinRoom(ctx, aliceSess.RoomID(), "")
	require.NoError(t, err)
	defer bobSess.Leave(ctx)

	bobSess.Timer().Toggle(ctx)

	deadline := time.After(waitFor)
	var sawRoom, sawTimer bool
	for !(sawRoom && sawTimer) {
		select {
		case ev := <-aliceSess.Events():
			switch ev.Type {
			case EventRoom:
				require.NotNil(t, ev.Room)
				assert.Empty(t, ev.Room.Password)
				sawRoom = true
			case EventTimer:
				require.NotNil(t, ev.Timer)
				sawTimer = true
			}
		case <-deadline:
			t.Fatalf("missing events: room=%v timer=%v", sawRoom, sawTimer)
		}
	}
}
