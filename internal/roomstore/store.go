// Package roomstore defines the storage contract the room core runs
// on: a per-document get/set/update surface plus a subscribe primitive
// that pushes the full current document on every write.
//
// The contract is deliberately weak, because the weakest real backend
// defines it: at-least-once delivery of change notifications to
// currently-subscribed clients, no cross-client ordering, last write
// wins per document. Everything above this package is written to
// tolerate exactly that and no more.
package roomstore

import (
	"context"
	"errors"
	"sort"

	"github.com/lalith-99/focusroom/internal/models"
)

// ErrNotFound is returned by lookups when the room does not exist.
// It is not a failure of the store — callers check it with errors.Is.
var ErrNotFound = errors.New("roomstore: room not found")

// Unsubscribe releases a watch. Safe to call more than once.
type Unsubscribe func()

// RoomFunc receives the full current room document after a write.
type RoomFunc func(models.Room)

// MessagesFunc receives the full message log, sorted by timestamp
// ascending, after every append. Full-snapshot delivery (rather than
// incremental) is the convergence strategy: re-sorting on each change
// is cheap at chat volumes and leaves no room for drift.
type MessagesFunc func([]models.ChatMessage)

// SortMessages orders a log by timestamp ascending, the one order every
// backend presents. Ties keep their relative append order.
func SortMessages(msgs []models.ChatMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
}

// Store is the replicated room store.
//
// Writes are blind: no version token, no transaction. Two clients
// updating the same room race, and whichever write the backend
// serializes last is the state every subscriber converges on.
type Store interface {
	// GetRoom returns the current room document or ErrNotFound.
	GetRoom(ctx context.Context, id string) (*models.Room, error)

	// PutRoom writes the full room document, creating it if absent.
	PutRoom(ctx context.Context, room models.Room) error

	// UpdateTimer overwrites only the timer field of the room.
	UpdateTimer(ctx context.Context, id string, timer models.TimerState) error

	// AddParticipant appends p to the participant list unless an entry
	// with the same UID already exists (array-union semantics).
	AddParticipant(ctx context.Context, id string, p models.Participant) error

	// RemoveParticipant removes the entry with the given UID. No-op if
	// absent.
	RemoveParticipant(ctx context.Context, id string, uid string) error

	// DeleteRoom removes the room document and its message log.
	DeleteRoom(ctx context.Context, id string) error

	// WatchRoom subscribes fn to every subsequent write of the room
	// document. fn runs on a store-owned goroutine; per-watcher
	// delivery order follows the order this store accepted the writes.
	WatchRoom(ctx context.Context, id string, fn RoomFunc) (Unsubscribe, error)

	// AppendMessage adds one message to the room's log.
	AppendMessage(ctx context.Context, id string, msg models.ChatMessage) error

	// Messages returns the full log, timestamp ascending.
	Messages(ctx context.Context, id string) ([]models.ChatMessage, error)

	// WatchMessages subscribes fn to the full sorted log after every
	// append.
	WatchMessages(ctx context.Context, id string, fn MessagesFunc) (Unsubscribe, error)

	// Ping probes availability. Session setup calls it once to decide
	// between this store and the local fallback — the probe replaces
	// scattering try-and-fall-back through every call site.
	Ping(ctx context.Context) error
}
