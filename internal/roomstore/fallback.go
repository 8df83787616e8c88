package roomstore

import (
	"context"
	"errors"
	"time"

	"github.com/lalith-99/focusroom/internal/models"
	"go.uber.org/zap"
)

// probeTimeout bounds the availability check at construction. A store
// that cannot answer a ping in this window is treated as unreachable.
const probeTimeout = 3 * time.Second

// Fallback pairs the replicated store with the same-device local one.
//
// Selection happens once, up front, by probing the primary — not by
// wrapping every call in a try-and-recover. After selection:
//
//   - degraded: every operation, including watches, runs against the
//     local store. The room is effectively single-device and callers
//     must tell the user so (Degraded reports it).
//   - healthy: operations run against the primary; each individual
//     write that still fails gets exactly one local retry, so a blip
//     never loses the user's own action on their own device. There is
//     no queue and no backoff beyond that single retry.
//
// Reads consult the primary first and fall through to the local store
// on miss or error, so a room created during an earlier outage is
// still joinable from the device that created it.
type Fallback struct {
	primary  Store
	local    Store
	active   Store
	degraded bool
	logger   *zap.Logger
}

func NewFallback(ctx context.Context, primary, local Store, logger *zap.Logger) *Fallback {
	f := &Fallback{primary: primary, local: local, logger: logger}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := primary.Ping(probeCtx); err != nil {
		logger.Warn("replicated store unreachable, degrading to local store",
			zap.Error(err))
		f.active = local
		f.degraded = true
		return f
	}
	f.active = primary
	return f
}

// Degraded reports whether the session runs on the local store only.
func (f *Fallback) Degraded() bool {
	return f.degraded
}

func (f *Fallback) GetRoom(ctx context.Context, id string) (*models.Room, error) {
	room, err := f.active.GetRoom(ctx, id)
	if err == nil || f.degraded {
		return room, err
	}
	// Primary miss or failure: one look at the local store.
	localRoom, localErr := f.local.GetRoom(ctx, id)
	if localErr == nil {
		return localRoom, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	return nil, err
}

func (f *Fallback) PutRoom(ctx context.Context, room models.Room) error {
	return f.write(ctx, "put room", func(s Store) error {
		return s.PutRoom(ctx, room)
	})
}

func (f *Fallback) UpdateTimer(ctx context.Context, id string, timer models.TimerState) error {
	return f.write(ctx, "update timer", func(s Store) error {
		return s.UpdateTimer(ctx, id, timer)
	})
}

func (f *Fallback) AddParticipant(ctx context.Context, id string, p models.Participant) error {
	return f.write(ctx, "add participant", func(s Store) error {
		return s.AddParticipant(ctx, id, p)
	})
}

func (f *Fallback) RemoveParticipant(ctx context.Context, id string, uid string) error {
	return f.write(ctx, "remove participant", func(s Store) error {
		return s.RemoveParticipant(ctx, id, uid)
	})
}

func (f *Fallback) DeleteRoom(ctx context.Context, id string) error {
	return f.write(ctx, "delete room", func(s Store) error {
		return s.DeleteRoom(ctx, id)
	})
}

func (f *Fallback) AppendMessage(ctx context.Context, id string, msg models.ChatMessage) error {
	return f.write(ctx, "append message", func(s Store) error {
		return s.AppendMessage(ctx, id, msg)
	})
}

func (f *Fallback) Messages(ctx context.Context, id string) ([]models.ChatMessage, error) {
	msgs, err := f.active.Messages(ctx, id)
	if err == nil || f.degraded {
		return msgs, err
	}
	return f.local.Messages(ctx, id)
}

func (f *Fallback) WatchRoom(ctx context.Context, id string, fn RoomFunc) (Unsubscribe, error) {
	return f.active.WatchRoom(ctx, id, fn)
}

func (f *Fallback) WatchMessages(ctx context.Context, id string, fn MessagesFunc) (Unsubscribe, error) {
	return f.active.WatchMessages(ctx, id, fn)
}

func (f *Fallback) Ping(ctx context.Context) error {
	return f.active.Ping(ctx)
}

func (f *Fallback) write(ctx context.Context, op string, do func(Store) error) error {
	err := do(f.active)
	if err == nil || f.degraded || errors.Is(err, ErrNotFound) {
		return err
	}
	f.logger.Warn("replicated write failed, retrying on local store",
		zap.String("op", op), zap.Error(err))
	if localErr := do(f.local); localErr != nil {
		// Both sides failed; the primary error is the interesting one.
		return err
	}
	return nil
}

var _ Store = (*Fallback)(nil)
