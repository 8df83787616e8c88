// Package chat maintains a room's live participant list and its
// ordered message log. Both ride the store's subscription primitive:
// presence arrives with every room-document write (participants live
// in the same document as the timer, so each timer write re-broadcasts
// presence and vice versa), messages arrive as full sorted snapshots.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lalith-99/focusroom/internal/account"
	"github.com/lalith-99/focusroom/internal/models"
	"go.uber.org/zap"
)

// MaxMessageRunes bounds a single chat message.
const MaxMessageRunes = 500

// ErrSendFailed wraps any failure to append a message.
var ErrSendFailed = errors.New("chat: send failed")

// ErrEmptyMessage rejects blank sends before they hit the store.
var ErrEmptyMessage = errors.New("chat: empty message")

// ErrMessageTooLong rejects messages over MaxMessageRunes.
var ErrMessageTooLong = errors.New("chat: message too long")

// Appender is the slice of the room store the channel writes through.
type Appender interface {
	AppendMessage(ctx context.Context, id string, msg models.ChatMessage) error
}

// degrader is implemented by the fallback store; on the local-only
// path there is no subscription echo worth waiting a poll cycle for,
// so sends update the local log immediately.
type degrader interface {
	Degraded() bool
}

// Channel is one session's view of a room's chat and presence.
type Channel struct {
	roomID string
	self   *account.Account
	store  Appender
	clock  clockwork.Clock
	logger *zap.Logger

	mu           sync.Mutex
	messages     []models.ChatMessage
	participants []models.Participant
}

func NewChannel(roomID string, self *account.Account, store Appender, clock clockwork.Clock, logger *zap.Logger) *Channel {
	return &Channel{
		roomID: roomID,
		self:   self,
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// SendMessage appends one message to the room's log as the current
// account.
func (c *Channel) SendMessage(ctx context.Context, text string) (*models.ChatMessage, error) {
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		return nil, ErrMessageTooLong
	}
	msg := models.ChatMessage{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    c.self.Name(),
		SenderUID: c.self.UID,
		Timestamp: c.clock.Now(),
	}
	if err := c.store.AppendMessage(ctx, c.roomID, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	if d, ok := c.store.(degrader); ok && d.Degraded() {
		c.mu.Lock()
		c.messages = append(c.messages, msg)
		c.mu.Unlock()
	}
	return &msg, nil
}

// ApplyMessages replaces the log with a delivered snapshot. The store
// hands these pre-sorted; replacement rather than merge is what keeps
// every subscriber identical regardless of delivery order.
func (c *Channel) ApplyMessages(msgs []models.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = msgs
}

// ApplyRoom refreshes presence from a room-document delivery.
func (c *Channel) ApplyRoom(room models.Room) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.participants = room.Participants
}

// Messages returns the current log, timestamp ascending.
func (c *Channel) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.messages...)
}

// Participants returns the current presence snapshot.
func (c *Channel) Participants() []models.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Participant(nil), c.participants...)
}
