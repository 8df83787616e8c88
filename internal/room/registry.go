// Package room implements the study-room lifecycle: creating and
// locating rooms, membership with capacity and password gates, and the
// per-client Session that holds the live subscriptions.
package room

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lalith-99/focusroom/internal/account"
	"github.com/lalith-99/focusroom/internal/models"
	"github.com/lalith-99/focusroom/internal/roomstore"
	"go.uber.org/zap"
)

// Config is the caller-supplied shape of a new room.
type Config struct {
	Name        string `json:"name"`
	Capacity    int    `json:"capacity"`
	HasPassword bool   `json:"hasPassword"`
	Password    string `json:"password"`
}

// Registry creates, locates and tears down rooms against one store.
// Which store that is — replicated, local fallback, or the probing
// pair — was decided by whoever constructed the Registry.
type Registry struct {
	store     roomstore.Store
	accounts  account.Provider
	durations models.Durations
	clock     clockwork.Clock
	logger    *zap.Logger
}

func NewRegistry(store roomstore.Store, accounts account.Provider, durations models.Durations, clock clockwork.Clock, logger *zap.Logger) *Registry {
	return &Registry{
		store:     store,
		accounts:  accounts,
		durations: durations,
		clock:     clock,
		logger:    logger,
	}
}

// NewRoomID returns a fresh 8-character uppercase identifier, short
// enough to read out loud or embed in a /room/{id} link.
func NewRoomID() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// CreateRoom builds a new room with the signed-in account as sole
// participant and a stopped default pomodoro timer, persists it, and
// returns a live session on it.
func (r *Registry) CreateRoom(ctx context.Context, cfg Config) (*Session, error) {
	acct := r.accounts.CurrentAccount()
	if acct == nil {
		return nil, ErrAuthenticationRequired
	}
	if cfg.Capacity < 1 {
		return nil, fmt.Errorf("%w: capacity must be at least 1", ErrInvalidConfig)
	}
	if cfg.HasPassword && cfg.Password == "" {
		return nil, fmt.Errorf("%w: password required when hasPassword is set", ErrInvalidConfig)
	}

	now := r.clock.Now()
	newRoom := models.Room{
		ID:          NewRoomID(),
		Name:        cfg.Name,
		Capacity:    cfg.Capacity,
		HasPassword: cfg.HasPassword,
		CreatedAt:   now,
		CreatedBy:   acct.UID,
		Participants: []models.Participant{{
			UID:         acct.UID,
			DisplayName: acct.Name(),
			JoinedAt:    now,
			IsOnline:    true,
		}},
		Timer: models.TimerState{
			Mode:          models.ModePomodoro,
			TimeLeft:      r.durations.Seconds(models.ModePomodoro),
			IsActive:      false,
			LastUpdatedBy: acct.UID,
		},
	}
	if cfg.HasPassword {
		newRoom.Password = cfg.Password
	}

	if err := r.store.PutRoom(ctx, newRoom); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	r.logger.Info("room created",
		zap.String("room_id", newRoom.ID),
		zap.String("created_by", acct.UID),
		zap.Int("capacity", newRoom.Capacity))

	return r.openSession(ctx, acct, newRoom)
}

// CheckRoomExists is a read-only lookup. A missing room is ErrNotFound,
// never a store failure.
func (r *Registry) CheckRoomExists(ctx context.Context, id string) (*models.Room, error) {
	found, err := r.store.GetRoom(ctx, id)
	if err != nil {
		if errors.Is(err, roomstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return found, nil
}

// JoinRoom adds the signed-in account to a room and returns a live
// session. Joining a room you are already in is idempotent: no
// duplicate entry, no error — and it bypasses the capacity check,
// since you are not a new occupant.
func (r *Registry) JoinRoom(ctx context.Context, id, password string) (*Session, error) {
	acct := r.accounts.CurrentAccount()
	if acct == nil {
		return nil, ErrAuthenticationRequired
	}

	found, err := r.CheckRoomExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if found.HasPassword && found.Password != password {
		return nil, ErrWrongPassword
	}

	if !found.HasParticipant(acct.UID) {
		if found.IsFull() {
			return nil, ErrRoomFull
		}
		p := models.Participant{
			UID:         acct.UID,
			DisplayName: acct.Name(),
			JoinedAt:    r.clock.Now(),
			IsOnline:    true,
		}
		if err := r.store.AddParticipant(ctx, id, p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		found.Participants = append(found.Participants, p)
	}
	r.logger.Info("room joined",
		zap.String("room_id", id),
		zap.String("uid", acct.UID))

	return r.openSession(ctx, acct, *found)
}

// Messages returns a room's chat backlog for a current participant.
func (r *Registry) Messages(ctx context.Context, id, uid string) ([]models.ChatMessage, error) {
	found, err := r.CheckRoomExists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !found.HasParticipant(uid) {
		return nil, ErrAuthenticationRequired
	}
	msgs, err := r.store.Messages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return msgs, nil
}
