// Package natsstore implements roomstore.Store on NATS JetStream
// key-value buckets. Rooms live in one bucket keyed by room ID;
// messages live in a second bucket keyed "{roomID}.{messageID}" so a
// wildcard watch covers one room's log. KV watches push every write to
// current watchers, which is exactly the change-notification contract
// the core needs.
package natsstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lalith-99/focusroom/internal/models"
	"github.com/lalith-99/focusroom/internal/roomstore"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	roomsBucket    = "focusroom_rooms"
	messagesBucket = "focusroom_messages"
)

type Store struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	rooms  jetstream.KeyValue
	msgs   jetstream.KeyValue
	logger *zap.Logger
}

func New(ctx context.Context, url string, logger *zap.Logger) (*Store, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	rooms, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: roomsBucket})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure rooms bucket: %w", err)
	}
	msgs, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: messagesBucket})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure messages bucket: %w", err)
	}
	return &Store{nc: nc, js: js, rooms: rooms, msgs: msgs, logger: logger}, nil
}

func (s *Store) Close() {
	s.nc.Close()
}

func (s *Store) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	entry, err := s.rooms.Get(ctx, id)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, roomstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	var room models.Room
	if err := json.Unmarshal(entry.Value(), &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

func (s *Store) PutRoom(ctx context.Context, room models.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	if _, err := s.rooms.Put(ctx, room.ID, raw); err != nil {
		return fmt.Errorf("put room: %w", err)
	}
	return nil
}

func (s *Store) UpdateTimer(ctx context.Context, id string, timer models.TimerState) error {
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	room.Timer = timer
	return s.PutRoom(ctx, *room)
}

func (s *Store) AddParticipant(ctx context.Context, id string, p models.Participant) error {
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	if !room.HasParticipant(p.UID) {
		room.Participants = append(room.Participants, p)
	}
	return s.PutRoom(ctx, *room)
}

func (s *Store) RemoveParticipant(ctx context.Context, id string, uid string) error {
	room, err := s.GetRoom(ctx, id)
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
	return s.PutRoom(ctx, *room)
}

func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	if err := s.rooms.Delete(ctx, id); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete room: %w", err)
	}
	keys, err := s.messageKeys(ctx, id)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.msgs.Delete(ctx, key); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
			return fmt.Errorf("delete message %s: %w", key, err)
		}
	}
	return nil
}

func (s *Store) WatchRoom(ctx context.Context, id string, fn roomstore.RoomFunc) (roomstore.Unsubscribe, error) {
	watcher, err := s.rooms.Watch(ctx, id, jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("watch room: %w", err)
	}
	go func() {
		for entry := range watcher.Updates() {
			if entry == nil || entry.Operation() != jetstream.KeyValuePut {
				continue
			}
			var room models.Room
			if err := json.Unmarshal(entry.Value(), &room); err != nil {
				s.logger.Warn("malformed room update ignored",
					zap.String("room_id", id), zap.Error(err))
				continue
			}
			fn(room)
		}
	}()
	return func() { _ = watcher.Stop() }, nil
}

func (s *Store) AppendMessage(ctx context.Context, id string, msg models.ChatMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if _, err := s.msgs.Put(ctx, id+"."+msg.ID, raw); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *Store) Messages(ctx context.Context, id string) ([]models.ChatMessage, error) {
	entries, err := s.messageEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	msgs := make([]models.ChatMessage, 0, len(entries))
	for _, raw := range entries {
		var m models.ChatMessage
		if err := json.Unmarshal(raw, &m); err != nil {
			s.logger.Warn("malformed message skipped",
				zap.String("room_id", id), zap.Error(err))
			continue
		}
		msgs = append(msgs, m)
	}
	roomstore.SortMessages(msgs)
	return msgs, nil
}

func (s *Store) WatchMessages(ctx context.Context, id string, fn roomstore.MessagesFunc) (roomstore.Unsubscribe, error) {
	watcher, err := s.msgs.Watch(ctx, id+".*", jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("watch messages: %w", err)
	}
	go func() {
		for entry := range watcher.Updates() {
			if entry == nil || entry.Operation() != jetstream.KeyValuePut {
				continue
			}
			msgs, err := s.Messages(context.Background(), id)
			if err != nil {
				s.logger.Warn("message snapshot read failed",
					zap.String("room_id", id), zap.Error(err))
				continue
			}
			fn(msgs)
		}
	}()
	return func() { _ = watcher.Stop() }, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.js.AccountInfo(ctx); err != nil {
		return fmt.Errorf("jetstream account info: %w", err)
	}
	return nil
}

// messageEntries replays the current values for one room's keys. A KV
// watch delivers all existing entries and then a nil marker; that
// replay is the listing primitive JetStream gives us.
func (s *Store) messageEntries(ctx context.Context, id string) ([][]byte, error) {
	watcher, err := s.msgs.Watch(ctx, id+".*", jetstream.IgnoreDeletes())
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = watcher.Stop() }()
	var out [][]byte
	for entry := range watcher.Updates() {
		if entry == nil {
			break
		}
		if entry.Operation() == jetstream.KeyValuePut {
			out = append(out, entry.Value())
		}
	}
	return out, nil
}

func (s *Store) messageKeys(ctx context.Context, id string) ([]string, error) {
	watcher, err := s.msgs.Watch(ctx, id+".*", jetstream.IgnoreDeletes())
	if err != nil {
		return nil, fmt.Errorf("list message keys: %w", err)
	}
	defer func() { _ = watcher.Stop() }()
	var keys []string
	for entry := range watcher.Updates() {
		if entry == nil {
			break
		}
		if entry.Operation() == jetstream.KeyValuePut {
			keys = append(keys, entry.Key())
		}
	}
	return keys, nil
}
