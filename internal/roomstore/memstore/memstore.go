// Package memstore is an in-process roomstore.Store. It backs the
// multi-client simulations in tests and works as an embedded backend
// when every client lives in one process.
package memstore

import (
	"context"
	"sync"

	"github.com/lalith-99/focusroom/internal/models"
	"github.com/lalith-99/focusroom/internal/roomstore"
)

type entry struct {
	room models.Room
	msgs []models.ChatMessage
}

// Store keeps all documents behind one mutex. Watchers get their own
// buffered queue and dispatcher goroutine, so delivery order per
// watcher matches the order writes were accepted while callbacks can
// freely call back into the store.
type Store struct {
	mu        sync.Mutex
	rooms     map[string]*entry
	roomWatch map[string]map[int]chan models.Room
	msgWatch  map[string]map[int]chan []models.ChatMessage
	nextWatch int
}

func New() *Store {
	return &Store{
		rooms:     make(map[string]*entry),
		roomWatch: make(map[string]map[int]chan models.Room),
		msgWatch:  make(map[string]map[int]chan []models.ChatMessage),
	}
}

const watchBuffer = 64

func (s *Store) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return nil, roomstore.ErrNotFound
	}
	r := cloneRoom(e.room)
	return &r, nil
}

func (s *Store) PutRoom(ctx context.Context, room models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[room.ID]
	if !ok {
		e = &entry{}
		s.rooms[room.ID] = e
	}
	e.room = cloneRoom(room)
	s.notifyRoomLocked(room.ID)
	return nil
}

func (s *Store) UpdateTimer(ctx context.Context, id string, timer models.TimerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return roomstore.ErrNotFound
	}
	e.room.Timer = timer
	s.notifyRoomLocked(id)
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, id string, p models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return roomstore.ErrNotFound
	}
	if !e.room.HasParticipant(p.UID) {
		e.room.Participants = append(e.room.Participants, p)
	}
	s.notifyRoomLocked(id)
	return nil
}

func (s *Store) RemoveParticipant(ctx context.Context, id string, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return roomstore.ErrNotFound
	}
	kept := e.room.Participants[:0]
	for _, p := range e.room.Participants {
		if p.UID != uid {
			kept = append(kept, p)
		}
	}
	e.room.Participants = kept
	s.notifyRoomLocked(id)
	return nil
}

func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
	return nil
}

func (s *Store) WatchRoom(ctx context.Context, id string, fn roomstore.RoomFunc) (roomstore.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	watchers, ok := s.roomWatch[id]
	if !ok {
		watchers = make(map[int]chan models.Room)
		s.roomWatch[id] = watchers
	}
	key := s.nextWatch
	s.nextWatch++
	ch := make(chan models.Room, watchBuffer)
	watchers[key] = ch
	go func() {
		for r := range ch {
			fn(r)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if w, ok := s.roomWatch[id]; ok {
				delete(w, key)
			}
			close(ch)
		})
	}, nil
}

func (s *Store) AppendMessage(ctx context.Context, id string, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return roomstore.ErrNotFound
	}
	e.msgs = append(e.msgs, msg)
	snapshot := cloneMessages(e.msgs)
	roomstore.SortMessages(snapshot)
	for _, ch := range s.msgWatch[id] {
		select {
		case ch <- snapshot:
		default:
		}
	}
	return nil
}

func (s *Store) Messages(ctx context.Context, id string) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rooms[id]
	if !ok {
		return nil, roomstore.ErrNotFound
	}
	snapshot := cloneMessages(e.msgs)
	roomstore.SortMessages(snapshot)
	return snapshot, nil
}

func (s *Store) WatchMessages(ctx context.Context, id string, fn roomstore.MessagesFunc) (roomstore.Unsubscribe, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	watchers, ok := s.msgWatch[id]
	if !ok {
		watchers = make(map[int]chan []models.ChatMessage)
		s.msgWatch[id] = watchers
	}
	key := s.nextWatch
	s.nextWatch++
	ch := make(chan []models.ChatMessage, watchBuffer)
	watchers[key] = ch
	go func() {
		for msgs := range ch {
			fn(msgs)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if w, ok := s.msgWatch[id]; ok {
				delete(w, key)
			}
			close(ch)
		})
	}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// notifyRoomLocked pushes the current document to every room watcher.
// Queue-full watchers miss this delivery; the next write re-delivers
// the full document, which is all the at-least-once contract promises.
func (s *Store) notifyRoomLocked(id string) {
	e, ok := s.rooms[id]
	if !ok {
		return
	}
	for _, ch := range s.roomWatch[id] {
		select {
		case ch <- cloneRoom(e.room):
		default:
		}
	}
}

func cloneRoom(r models.Room) models.Room {
	out := r
	out.Participants = append([]models.Participant(nil), r.Participants...)
	if r.Timer.StartedAt != nil {
		t := *r.Timer.StartedAt
		out.Timer.StartedAt = &t
	}
	return out
}

func cloneMessages(msgs []models.ChatMessage) []models.ChatMessage {
	return append([]models.ChatMessage(nil), msgs...)
}
