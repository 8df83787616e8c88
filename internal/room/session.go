package room

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lalith-99/focusroom/internal/account"
	"github.com/lalith-99/focusroom/internal/chat"
	"github.com/lalith-99/focusroom/internal/models"
	"github.com/lalith-99/focusroom/internal/roomstore"
	"github.com/lalith-99/focusroom/internal/timer"
	"go.uber.org/zap"
)

// EventType tags what a session event carries.
type EventType string

const (
	EventRoom     EventType = "room"     // room document changed (presence included)
	EventTimer    EventType = "timer"    // local timer state transitioned
	EventChat     EventType = "chat"     // message log snapshot replaced
	EventFinished EventType = "finished" // local countdown hit zero
)

// Event is one delivery on Session.Events.
type Event struct {
	Type     EventType            `json:"type"`
	Room     *models.Room         `json:"room,omitempty"`
	Timer    *models.TimerState   `json:"timer,omitempty"`
	Messages []models.ChatMessage `json:"messages,omitempty"`
	Mode     models.Mode          `json:"mode,omitempty"`
}

// Session is one client's live attachment to a room: the two watch
// handles, the timer synchronizer and the chat channel. Subscription
// handles are owned here and released deterministically on Leave —
// never parked in package-level state.
type Session struct {
	store  roomstore.Store
	acct   *account.Account
	logger *zap.Logger

	roomID string
	timer  *timer.Synchronizer
	chat   *chat.Channel

	mu   sync.Mutex
	room models.Room

	events    chan Event
	unsubRoom roomstore.Unsubscribe
	unsubMsgs roomstore.Unsubscribe
	closed    chan struct{}
	leaveOnce sync.Once
}

const eventBuffer = 64

// openSession wires the synchronizer and chat channel and establishes
// both watches. Everything local is live before this returns.
func (r *Registry) openSession(ctx context.Context, acct *account.Account, current models.Room) (*Session, error) {
	s := &Session{
		store:  r.store,
		acct:   acct,
		logger: r.logger,
		roomID: current.ID,
		room:   current,
		events: make(chan Event, eventBuffer),
		closed: make(chan struct{}),
	}
	s.timer = timer.NewSynchronizer(current.ID, acct.UID, current.Timer, r.durations, r.store, r.clock, r.logger)
	s.timer.OnChange(func(state models.TimerState) {
		s.emit(Event{Type: EventTimer, Timer: &state})
	})
	s.chat = chat.NewChannel(current.ID, acct, r.store, r.clock, r.logger)
	s.chat.ApplyRoom(current)

	unsubRoom, err := r.store.WatchRoom(ctx, current.ID, s.onRoom)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.unsubRoom = unsubRoom

	unsubMsgs, err := r.store.WatchMessages(ctx, current.ID, s.onMessages)
	if err != nil {
		unsubRoom()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s.unsubMsgs = unsubMsgs

	go s.forwardFinished()
	return s, nil
}

func (s *Session) RoomID() string { return s.roomID }

// Room returns the latest room document this session has observed,
// with the password stripped.
func (s *Session) Room() models.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room.Sanitized()
}

func (s *Session) Timer() *timer.Synchronizer { return s.timer }

func (s *Session) Chat() *chat.Channel { return s.chat }

// Events streams room, timer, chat and finished deliveries for this
// session. Slow consumers miss intermediate deliveries, never the
// latest state: each event carries a full snapshot, and another always
// follows the next write.
func (s *Session) Events() <-chan Event { return s.events }

// Degraded reports whether the session runs on the same-device
// fallback store, in which case the room cannot be seen from other
// devices and the caller should say so.
func (s *Session) Degraded() bool {
	if d, ok := s.store.(interface{ Degraded() bool }); ok {
		return d.Degraded()
	}
	return false
}

// Leave removes this account from the room, deletes the room when it
// was the last participant, and releases all local resources. Local
// teardown happens unconditionally — a dead network must not wedge the
// client in a room — so the returned error only reports whether the
// remote side got cleaned up.
func (s *Session) Leave(ctx context.Context) error {
	var remoteErr error
	s.leaveOnce.Do(func() {
		remoteErr = s.removeRemote(ctx)

		s.unsubRoom()
		s.unsubMsgs()
		close(s.closed)
		s.timer.Halt()

		s.logger.Info("room left",
			zap.String("room_id", s.roomID),
			zap.String("uid", s.acct.UID),
			zap.Bool("remote_clean", remoteErr == nil))
	})
	return remoteErr
}

func (s *Session) removeRemote(ctx context.Context) error {
	if err := s.store.RemoveParticipant(ctx, s.roomID, s.acct.UID); err != nil {
		if errors.Is(err, roomstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	current, err := s.store.GetRoom(ctx, s.roomID)
	if err != nil {
		if errors.Is(err, roomstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(current.Participants) == 0 {
		if err := s.store.DeleteRoom(ctx, s.roomID); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		s.logger.Info("empty room deleted", zap.String("room_id", s.roomID))
	}
	return nil
}

// onRoom handles every room-document delivery: refresh the local
// snapshot and presence, then hand the embedded timer to the
// synchronizer (which discards self-echoes and force-applies the
// rest). A document with no timer field is presence-only.
func (s *Session) onRoom(current models.Room) {
	s.mu.Lock()
	s.room = current
	s.mu.Unlock()

	s.chat.ApplyRoom(current)
	s.timer.ApplyRemote(current.Timer)

	sanitized := current.Sanitized()
	s.emit(Event{Type: EventRoom, Room: &sanitized})
}

func (s *Session) onMessages(msgs []models.ChatMessage) {
	s.chat.ApplyMessages(msgs)
	s.emit(Event{Type: EventChat, Messages: msgs})
}

func (s *Session) forwardFinished() {
	for {
		select {
		case <-s.closed:
			return
		case <-s.timer.Finished():
			s.emit(Event{Type: EventFinished, Mode: s.timer.Mode()})
		}
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		s.logger.Debug("session event dropped",
			zap.String("room_id", s.roomID),
			zap.String("type", string(ev.Type)))
	}
}
