package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lalith-99/focusroom/internal/models"
	"github.com/lalith-99/focusroom/internal/roomstore/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// recordingPublisher captures every published snapshot.
type recordingPublisher struct {
	mu     sync.Mutex
	states []models.TimerState
	err    error
}

func (p *recordingPublisher) UpdateTimer(ctx context.Context, id string, timer models.TimerState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, timer)
	return p.err
}

func (p *recordingPublisher) last(t *testing.T) models.TimerState {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.states)
	return p.states[len(p.states)-1]
}

func newTestSynchronizer(pub Publisher, clock clockwork.Clock) *Synchronizer {
	initial := models.TimerState{
		Mode:     models.ModePomodoro,
		TimeLeft: 100,
	}
	return NewSynchronizer("ROOM1234", "me", initial, models.DefaultDurations(), pub, clock, zap.NewNop())
}

func TestTogglePublishesBeforeApply(t *testing.T) {
	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClock()
	s := newTestSynchronizer(pub, clock)

	state := s.Toggle(context.Background())

	published := pub.last(t)
	assert.True(t, published.IsActive)
	assert.Equal(t, 100, published.TimeLeft)
	assert.Equal(t, "me", published.LastUpdatedBy)
	require.NotNil(t, published.StartedAt)
	assert.Equal(t, published, state)
	assert.True(t, s.State().IsActive)
}

func TestTogglePauseKeepsRemaining(t *testing.T) {
	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClock()
	s := newTestSynchronizer(pub, clock)

	s.Toggle(context.Background())
	paused := s.Toggle(context.Background())

	assert.False(t, paused.IsActive)
	assert.Equal(t, 100, paused.TimeLeft)
	assert.Nil(t, paused.StartedAt)
	assert.False(t, s.State().IsActive)
}

func TestSwitchModeResetsStopped(t *testing.T) {
	pub := &recordingPublisher{}
	clock := clockwork.NewFakeClock()
	s := newTestSynchronizer(pub, clock)

	s.Toggle(context.Background())
	state := s.SwitchMode(context.Background(), models.ModeShortBreak)

	assert.Equal(t, models.ModeShortBreak, state.Mode)
	assert.Equal(t, models.DefaultShortBreakSeconds, state.TimeLeft)
	assert.False(t, state.IsActive)
	assert.False(t, s.State().IsActive)
	assert.Equal(t, state, pub.last(t))
}

func TestSwitchModeUnknownFallsBackToPomodoro(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestSynchronizer(pub, clockwork.NewFakeClock())

	state := s.SwitchMode(context.Background(), models.Mode("nap"))

	assert.Equal(t, models.ModePomodoro, state.Mode)
	assert.Equal(t, models.DefaultPomodoroSeconds, state.TimeLeft)
}

func TestApplyRemoteOverridesHard(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestSynchronizer(pub, clockwork.NewFakeClock())

	s.ApplyRemote(models.TimerState{
		Mode:          models.ModeLongBreak,
		TimeLeft:      42,
		IsActive:      true,
		LastUpdatedBy: "someone-else",
	})

	got := s.State()
	assert.Equal(t, models.ModeLongBreak, got.Mode)
	assert.Equal(t, 42, got.TimeLeft)
	assert.True(t, got.IsActive)
	// Nothing gets republished on a remote apply.
	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Empty(t, pub.states)
}

func TestApplyRemoteDiscardsOwnEcho(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestSynchronizer(pub, clockwork.NewFakeClock())

	s.ApplyRemote(models.TimerState{
		Mode:          models.ModeLongBreak,
		TimeLeft:      1,
		IsActive:      true,
		LastUpdatedBy: "me",
	})

	got := s.State()
	assert.Equal(t, models.ModePomodoro, got.Mode)
	assert.Equal(t, 100, got.TimeLeft)
	assert.False(t, got.IsActive)
}

func TestApplyRemoteIgnoresMissingTimer(t *testing.T) {
	pub := &recordingPublisher{}
	s := newTestSynchronizer(pub, clockwork.NewFakeClock())

	s.ApplyRemote(models.TimerState{})

	got := s.State()
	assert.Equal(t, models.ModePomodoro, got.Mode)
	assert.Equal(t, 100, got.TimeLeft)
}

func TestPublishFailureIsDropped(t *testing.T) {
	pub := &recordingPublisher{err: context.DeadlineExceeded}
	s := newTestSynchronizer(pub, clockwork.NewFakeClock())

	// A failed write must not block or undo the local transition.
	state := s.Toggle(context.Background())
	assert.True(t, state.IsActive)
	assert.True(t, s.State().IsActive)
}

// TestTwoClientsConverge runs two synchronizers against one store the
// way two browsers share one room: each watches the room document and
// force-applies what it sees, minus its own echoes.
func TestTwoClientsConverge(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	clock := clockwork.NewFakeClock()

	seed := models.Room{
		ID:       "ROOM1234",
		Name:     "deep work",
		Capacity: 4,
		Timer: models.TimerState{
			Mode:     models.ModePomodoro,
			TimeLeft: 100,
		},
	}
	require.NoError(t, store.PutRoom(ctx, seed))

	alice := NewSynchronizer(seed.ID, "alice", seed.Timer, models.DefaultDurations(), store, clock, zap.NewNop())
	bob := NewSynchronizer(seed.ID, "bob", seed.Timer, models.DefaultDurations(), store, clock, zap.NewNop())

	for _, s := range []*Synchronizer{alice, bob} {
		s := s
		unsub, err := store.WatchRoom(ctx, seed.ID, func(r models.Room) {
			s.ApplyRemote(r.Timer)
		})
		require.NoError(t, err)
		defer unsub()
	}

	alice.Toggle(ctx)
	require.Eventually(t, func() bool {
		got := bob.State()
		return got.IsActive && got.TimeLeft == 100
	}, waitFor, time.Millisecond, "bob never saw alice's start")

	// Alice's own echo came back through the watch too; it must not
	// have disturbed her.
	assert.True(t, alice.State().IsActive)
	assert.Equal(t, 100, alice.State().TimeLeft)

	bob.SwitchMode(ctx, models.ModeShortBreak)
	require.Eventually(t, func() bool {
		got := alice.State()
		return got.Mode == models.ModeShortBreak && !got.IsActive
	}, waitFor, time.Millisecond, "alice never saw bob's mode switch")

	assert.Equal(t, models.DefaultShortBreakSeconds, alice.State().TimeLeft)
	assert.Equal(t, models.DefaultShortBreakSeconds, bob.State().TimeLeft)
}
