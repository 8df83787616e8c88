// Package localstore is the same-device fallback backend: room
// documents as JSON files under a state directory, change notification
// by polling. Two sessions on one device converge through the shared
// files; nothing here is visible from another device, and callers are
// expected to tell the user so.
package localstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lalith-99/focusroom/internal/models"
	"github.com/lalith-99/focusroom/internal/roomstore"
	"go.uber.org/zap"
)

// PollInterval is how often watchers re-read the backing file. One
// second matches the countdown tick, so a fallback room never lags a
// remote toggle by more than one tick.
const PollInterval = time.Second

type Store struct {
	dir    string
	clock  clockwork.Clock
	logger *zap.Logger

	// mu serializes read-modify-write cycles within this process.
	// Cross-process writers still race; last rename wins, same as the
	// replicated store's last-write-wins contract.
	mu sync.Mutex
}

func New(dir string, clock clockwork.Clock, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{dir: dir, clock: clock, logger: logger}, nil
}

func (s *Store) roomPath(id string) string {
	return filepath.Join(s.dir, id+".room.json")
}

func (s *Store) messagesPath(id string) string {
	return filepath.Join(s.dir, id+".messages.json")
}

func (s *Store) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readRoom(id)
}

func (s *Store) PutRoom(ctx context.Context, room models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeRoom(room)
}

func (s *Store) UpdateTimer(ctx context.Context, id string, timer models.TimerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.readRoom(id)
	if err != nil {
		return err
	}
	room.Timer = timer
	return s.writeRoom(*room)
}

func (s *Store) AddParticipant(ctx context.Context, id string, p models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.readRoom(id)
	if err != nil {
		return err
	}
	if !room.HasParticipant(p.UID) {
		room.Participants = append(room.Participants, p)
	}
	return s.writeRoom(*room)
}

func (s *Store) RemoveParticipant(ctx context.Context, id string, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, err := s.readRoom(id)
	if err != nil {
		return err
	}
	kept := room.Participants[:0]
	for _, p := range room.Participants {
		if p.UID != uid {
			kept = append(kept, p)
		}
	}
	room.Participants = kept
	return s.writeRoom(*room)
}

func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.roomPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete room file: %w", err)
	}
	if err := os.Remove(s.messagesPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete messages file: %w", err)
	}
	return nil
}

func (s *Store) WatchRoom(ctx context.Context, id string, fn roomstore.RoomFunc) (roomstore.Unsubscribe, error) {
	return s.poll(s.roomPath(id), func(raw []byte) {
		var room models.Room
		if err := json.Unmarshal(raw, &room); err != nil {
			s.logger.Warn("malformed room file ignored",
				zap.String("room_id", id), zap.Error(err))
			return
		}
		fn(room)
	}), nil
}

func (s *Store) AppendMessage(ctx context.Context, id string, msg models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, err := s.readMessages(id)
	if err != nil {
		return err
	}
	msgs = append(msgs, msg)
	return s.writeJSON(s.messagesPath(id), msgs)
}

func (s *Store) Messages(ctx context.Context, id string) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs, err := s.readMessages(id)
	if err != nil {
		return nil, err
	}
	roomstore.SortMessages(msgs)
	return msgs, nil
}

func (s *Store) WatchMessages(ctx context.Context, id string, fn roomstore.MessagesFunc) (roomstore.Unsubscribe, error) {
	return s.poll(s.messagesPath(id), func(raw []byte) {
		var msgs []models.ChatMessage
		if err := json.Unmarshal(raw, &msgs); err != nil {
			s.logger.Warn("malformed messages file ignored",
				zap.String("room_id", id), zap.Error(err))
			return
		}
		roomstore.SortMessages(msgs)
		fn(msgs)
	}), nil
}

// Ping verifies the state directory is writable.
func (s *Store) Ping(ctx context.Context) error {
	probe := filepath.Join(s.dir, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("state dir not writable: %w", err)
	}
	return os.Remove(probe)
}

// poll re-reads path every PollInterval and hands changed content to
// deliver. The content seen at watch start is the baseline, so only
// writes after the watch began fire.
func (s *Store) poll(path string, deliver func([]byte)) roomstore.Unsubscribe {
	stop := make(chan struct{})
	last, _ := os.ReadFile(path)
	go func() {
		ticker := s.clock.NewTicker(PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				raw, err := os.ReadFile(path)
				if err != nil {
					continue
				}
				if bytes.Equal(raw, last) {
					continue
				}
				last = raw
				deliver(raw)
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() { close(stop) })
	}
}

func (s *Store) readRoom(id string) (*models.Room, error) {
	raw, err := os.ReadFile(s.roomPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, roomstore.ErrNotFound
		}
		return nil, fmt.Errorf("read room file: %w", err)
	}
	var room models.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("decode room file: %w", err)
	}
	return &room, nil
}

func (s *Store) writeRoom(room models.Room) error {
	return s.writeJSON(s.roomPath(room.ID), room)
}

func (s *Store) readMessages(id string) ([]models.ChatMessage, error) {
	raw, err := os.ReadFile(s.messagesPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return []models.ChatMessage{}, nil
		}
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	var msgs []models.ChatMessage
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages file: %w", err)
	}
	return msgs, nil
}

// writeJSON writes via temp file + rename so a poller never observes a
// half-written document.
func (s *Store) writeJSON(path string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}
