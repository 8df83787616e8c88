// Package redisstore implements roomstore.Store on Redis: the room
// document is one JSON value, change notification rides pub/sub, and
// the message log is a list. Pub/sub gives exactly the contract the
// core tolerates — at-least-once to current subscribers, no replay,
// no cross-client ordering.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lalith-99/focusroom/internal/models"
	"github.com/lalith-99/focusroom/internal/roomstore"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Store struct {
	client *redis.Client
	logger *zap.Logger
}

func New(redisURL string, logger *zap.Logger) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	return &Store{client: redis.NewClient(opts), logger: logger}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func roomKey(id string) string     { return "focusroom:room:" + id }
func eventsKey(id string) string   { return "focusroom:room:" + id + ":events" }
func messagesKey(id string) string { return "focusroom:room:" + id + ":messages" }
func msgEventsKey(id string) string {
	return "focusroom:room:" + id + ":messages:events"
}

func (s *Store) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	raw, err := s.client.Get(ctx, roomKey(id)).Bytes()
	if err == redis.Nil {
		return nil, roomstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room: %w", err)
	}
	var room models.Room
	if err := json.Unmarshal(raw, &room); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	return &room, nil
}

func (s *Store) PutRoom(ctx context.Context, room models.Room) error {
	return s.writeRoom(ctx, room)
}

// UpdateTimer and the participant updates are read-modify-write with
// no concurrency token, matching the last-write-wins contract: two
// racing writers both succeed and subscribers converge on whichever
// write Redis serialized last.
func (s *Store) UpdateTimer(ctx context.Context, id string, timer models.TimerState) error {
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	room.Timer = timer
	return s.writeRoom(ctx, *room)
}

func (s *Store) AddParticipant(ctx context.Context, id string, p models.Participant) error {
	room, err := s.GetRoom(ctx, id)
	if err != nil {
		return err
	}
	if !room.HasParticipant(p.UID) {
		room.Participants = append(room.Participants, p)
	}
	return s.writeRoom(ctx, *room)
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
	return s.writeRoom(ctx, *room)
}

func (s *Store) DeleteRoom(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, roomKey(id), messagesKey(id)).Err(); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}
	return nil
}

func (s *Store) WatchRoom(ctx context.Context, id string, fn roomstore.RoomFunc) (roomstore.Unsubscribe, error) {
	pubsub := s.client.Subscribe(ctx, eventsKey(id))
	// Force the subscription onto the wire before returning, so a
	// write issued right after WatchRoom is not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe room events: %w", err)
	}
	go func() {
		for msg := range pubsub.Channel() {
			var room models.Room
			if err := json.Unmarshal([]byte(msg.Payload), &room); err != nil {
				s.logger.Warn("malformed room event ignored",
					zap.String("room_id", id), zap.Error(err))
				continue
			}
			fn(room)
		}
	}()
	return func() { pubsub.Close() }, nil
}

func (s *Store) AppendMessage(ctx context.Context, id string, msg models.ChatMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.client.RPush(ctx, messagesKey(id), raw).Err(); err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if err := s.client.Publish(ctx, msgEventsKey(id), msg.ID).Err(); err != nil {
		return fmt.Errorf("publish message event: %w", err)
	}
	return nil
}

func (s *Store) Messages(ctx context.Context, id string) ([]models.ChatMessage, error) {
	raws, err := s.client.LRange(ctx, messagesKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]models.ChatMessage, 0, len(raws))
	for _, raw := range raws {
		var m models.ChatMessage
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			s.logger.Warn("malformed message skipped",
				zap.String("room_id", id), zap.Error(err))
			continue
		}
		msgs = append(msgs, m)
	}
	roomstore.SortMessages(msgs)
	return msgs, nil
}

// WatchMessages re-reads the whole log on every append notification.
// The event payload is just the new message ID; the snapshot read is
// what keeps subscribers convergent even when events arrive out of
// order or more than once.
func (s *Store) WatchMessages(ctx context.Context, id string, fn roomstore.MessagesFunc) (roomstore.Unsubscribe, error) {
	pubsub := s.client.Subscribe(ctx, msgEventsKey(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe message events: %w", err)
	}
	go func() {
		for range pubsub.Channel() {
			msgs, err := s.Messages(context.Background(), id)
			if err != nil {
				s.logger.Warn("message snapshot read failed",
					zap.String("room_id", id), zap.Error(err))
				continue
			}
			fn(msgs)
		}
	}()
	return func() { pubsub.Close() }, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// writeRoom sets the document and publishes it in one pipeline. The
// event payload is the full document, so watchers do not need a
// follow-up read.
func (s *Store) writeRoom(ctx context.Context, room models.Room) error {
	raw, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("encode room: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, roomKey(room.ID), raw, 0)
	pipe.Publish(ctx, eventsKey(room.ID), raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write room: %w", err)
	}
	return nil
}
