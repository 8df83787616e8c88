package timer

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/lalith-99/focusroom/internal/models"
	"go.uber.org/zap"
)

// Publisher is the slice of the room store the synchronizer writes
// through. *roomstore.Fallback and every backend satisfy it.
type Publisher interface {
	UpdateTimer(ctx context.Context, id string, timer models.TimerState) error
}

// Synchronizer keeps one client's countdown converging with the room.
//
// Outbound: local toggles and mode switches publish a full TimerState
// snapshot tagged with this client's UID, then apply locally. Publish
// comes first on purpose — the write on the wire carries the intended
// state even if an inbound remote update races the local apply.
//
// Inbound: a remote TimerState overwrites local mode, time and
// running-state unconditionally, unless it is this client's own write
// echoed back (LastUpdatedBy == self). That single tag is the only
// feedback-loop guard; two different clients racing each other are
// resolved by last write wins alone.
type Synchronizer struct {
	roomID  string
	selfUID string

	countdown *Countdown
	durations models.Durations
	pub       Publisher
	clock     clockwork.Clock
	logger    *zap.Logger

	mu   sync.Mutex
	mode models.Mode

	// onChange, when set, runs after every local state transition so
	// the surrounding session can surface the new state immediately.
	onChange func(models.TimerState)
}

func NewSynchronizer(roomID, selfUID string, initial models.TimerState, durations models.Durations, pub Publisher, clock clockwork.Clock, logger *zap.Logger) *Synchronizer {
	mode := initial.Mode
	if !mode.Valid() {
		mode = models.ModePomodoro
	}
	timeLeft := initial.TimeLeft
	if timeLeft <= 0 {
		timeLeft = durations.Seconds(mode)
	}
	s := &Synchronizer{
		roomID:    roomID,
		selfUID:   selfUID,
		countdown: NewCountdown(timeLeft, clock),
		durations: durations,
		pub:       pub,
		clock:     clock,
		logger:    logger,
		mode:      mode,
	}
	if initial.IsActive {
		s.countdown.Start()
	}
	return s
}

// OnChange registers the local-transition hook. Call before the
// synchronizer is shared between goroutines.
func (s *Synchronizer) OnChange(fn func(models.TimerState)) {
	s.onChange = fn
}

// Toggle flips running/stopped. The snapshot is computed from the
// pre-toggle remaining time and the post-toggle active flag, published
// best-effort, and only then applied locally.
func (s *Synchronizer) Toggle(ctx context.Context) models.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	newActive := !s.countdown.Active()
	state := s.snapshotLocked(s.countdown.Remaining(), newActive)
	s.publish(ctx, state)

	if newActive {
		s.countdown.Start()
	} else {
		s.countdown.Stop()
	}
	s.changed(state)
	return state
}

// SwitchMode resets to the configured duration for the new mode and
// always lands stopped, locally and in the published snapshot.
func (s *Synchronizer) SwitchMode(ctx context.Context, mode models.Mode) models.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !mode.Valid() {
		mode = models.ModePomodoro
	}
	s.mode = mode
	seconds := s.durations.Seconds(mode)
	state := s.snapshotLocked(seconds, false)
	s.publish(ctx, state)

	s.countdown.Reset(seconds)
	s.changed(state)
	return state
}

// ApplyRemote applies an inbound TimerState from the room document.
// Self-originated echoes are discarded; everything else is a hard
// override, not a merge.
func (s *Synchronizer) ApplyRemote(state models.TimerState) {
	if state.IsZero() {
		// Room document without a timer field: no update.
		return
	}
	if state.LastUpdatedBy == s.selfUID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = state.Mode
	s.countdown.Reset(state.TimeLeft)
	if state.IsActive {
		s.countdown.Start()
	}
	s.changed(s.stateLocked())
}

// Publish re-sends the current local state, tagged as ours. The next
// user action would do the same; this lets a caller force it (for
// example right after joining, so late arrivals see a fresh write).
func (s *Synchronizer) Publish(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publish(ctx, s.stateLocked())
}

// State reports the current local timer state.
func (s *Synchronizer) State() models.TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Synchronizer) Mode() models.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Finished signals each time the local countdown reaches zero.
func (s *Synchronizer) Finished() <-chan struct{} {
	return s.countdown.Finished()
}

// Halt stops the local countdown without publishing anything. Session
// teardown calls it; the room's shared state is left untouched.
func (s *Synchronizer) Halt() {
	s.countdown.Stop()
}

func (s *Synchronizer) stateLocked() models.TimerState {
	return s.snapshotLocked(s.countdown.Remaining(), s.countdown.Active())
}

func (s *Synchronizer) snapshotLocked(timeLeft int, active bool) models.TimerState {
	state := models.TimerState{
		Mode:          s.mode,
		TimeLeft:      timeLeft,
		IsActive:      active,
		LastUpdatedBy: s.selfUID,
		SyncTimestamp: s.clock.Now().UnixMilli(),
	}
	if active {
		now := s.clock.Now()
		state.StartedAt = &now
	}
	return state
}

// publish is best-effort: a failed write is logged and dropped. There
// is no retry queue — the next successful write from any participant
// re-converges the room.
func (s *Synchronizer) publish(ctx context.Context, state models.TimerState) {
	if err := s.pub.UpdateTimer(ctx, s.roomID, state); err != nil {
		s.logger.Warn("timer publish failed",
			zap.String("room_id", s.roomID),
			zap.Error(err))
	}
}

func (s *Synchronizer) changed(state models.TimerState) {
	if s.onChange != nil {
		s.onChange(state)
	}
}
