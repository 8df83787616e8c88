package memstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lalith-99/focusroom/internal/models"
	"github.com/lalith-99/focusroom/internal/roomstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func seedRoom(t *testing.T, s *Store, id string) models.Room {
	t.Helper()
	room := models.Room{
		ID:       id,
		Name:     "study",
		Capacity: 4,
		Participants: []models.Participant{
			{UID: "uid-alice", DisplayName: "Alice"},
		},
		Timer: models.TimerState{Mode: models.ModePomodoro, TimeLeft: 1500},
	}
	require.NoError(t, s.PutRoom(context.Background(), room))
	return room
}

func TestGetRoomNotFound(t *testing.T) {
	s := New()
	_, err := s.GetRoom(context.Background(), "NOPE0000")
	assert.ErrorIs(t, err, roomstore.ErrNotFound)
}

func TestPutGetRoundTrip(t *testing.T) {
	s := New()
	want := seedRoom(t, s, "ROOM0001")

	got, err := s.GetRoom(context.Background(), "ROOM0001")
	require.NoError(t, err)
	assert.Equal(t, want, *got)
}

func TestGetRoomReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRoom(t, s, "ROOM0001")

	got, err := s.GetRoom(ctx, "ROOM0001")
	require.NoError(t, err)
	got.Participants[0].UID = "tampered"

	fresh, err := s.GetRoom(ctx, "ROOM0001")
	require.NoError(t, err)
	assert.Equal(t, "uid-alice", fresh.Participants[0].UID)
}

func TestParticipantLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRoom(t, s, "ROOM0001")

	bob := models.Participant{UID: "uid-bob", DisplayName: "Bob"}
	require.NoError(t, s.AddParticipant(ctx, "ROOM0001", bob))
	// Adding the same participant twice keeps one entry.
	require.NoError(t, s.AddParticipant(ctx, "ROOM0001", bob))

	got, err := s.GetRoom(ctx, "ROOM0001")
	require.NoError(t, err)
	assert.Len(t, got.Participants, 2)

	require.NoError(t, s.RemoveParticipant(ctx, "ROOM0001", "uid-bob"))
	got, err = s.GetRoom(ctx, "ROOM0001")
	require.NoError(t, err)
	assert.Len(t, got.Participants, 1)
	assert.Equal(t, "uid-alice", got.Participants[0].UID)
}

func TestWatchRoomDeliversWrites(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRoom(t, s, "ROOM0001")

	var mu sync.Mutex
	var seen []models.TimerState
	unsub, err := s.WatchRoom(ctx, "ROOM0001", func(r models.Room) {
		mu.Lock()
		seen = append(seen, r.Timer)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	update := models.TimerState{Mode: models.ModeShortBreak, TimeLeft: 300, IsActive: true, LastUpdatedBy: "uid-alice"}
	require.NoError(t, s.UpdateTimer(ctx, "ROOM0001", update))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1 && seen[0] == update
	}, waitFor, time.Millisecond)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRoom(t, s, "ROOM0001")

	var mu sync.Mutex
	count := 0
	unsub, err := s.WatchRoom(ctx, "ROOM0001", func(models.Room) {
		mu.Lock()
		count++
		mu.Unlock()
	})
	require.NoError(t, err)

	unsub()
	unsub() // safe to call twice

	require.NoError(t, s.UpdateTimer(ctx, "ROOM0001", models.TimerState{Mode: models.ModePomodoro, TimeLeft: 1}))
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, count)
}

func TestMessagesSortedByTimestamp(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRoom(t, s, "ROOM0001")

	base := time.Now()
	later := models.ChatMessage{ID: "m2", Text: "second", Timestamp: base.Add(time.Second)}
	earlier := models.ChatMessage{ID: "m1", Text: "first", Timestamp: base}
	require.NoError(t, s.AppendMessage(ctx, "ROOM0001", later))
	require.NoError(t, s.AppendMessage(ctx, "ROOM0001", earlier))

	got, err := s.Messages(ctx, "ROOM0001")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
}

func TestWatchMessagesDeliversSnapshots(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRoom(t, s, "ROOM0001")

	var mu sync.Mutex
	var latest []models.ChatMessage
	unsub, err := s.WatchMessages(ctx, "ROOM0001", func(msgs []models.ChatMessage) {
		mu.Lock()
		latest = msgs
		mu.Unlock()
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, s.AppendMessage(ctx, "ROOM0001", models.ChatMessage{ID: "m1", Text: "hi", Timestamp: time.Now()}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(latest) == 1 && latest[0].Text == "hi"
	}, waitFor, time.Millisecond)
}

func TestDeleteRoom(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedRoom(t, s, "ROOM0001")

	require.NoError(t, s.DeleteRoom(ctx, "ROOM0001"))
	_, err := s.GetRoom(ctx, "ROOM0001")
	assert.ErrorIs(t, err, roomstore.ErrNotFound)

	// Deleting an absent room is not an error.
	require.NoError(t, s.DeleteRoom(ctx, "ROOM0001"))
}
