package models

import (
	"time"
)

// Mode is a pomodoro phase. The wire names are short ("short", "long")
// because every stored room document and every client already speaks
// them — renaming would strand existing documents.
type Mode string

const (
	ModePomodoro   Mode = "pomodoro"
	ModeShortBreak Mode = "short"
	ModeLongBreak  Mode = "long"
)

// Valid reports whether m is one of the three known phases.
func (m Mode) Valid() bool {
	switch m {
	case ModePomodoro, ModeShortBreak, ModeLongBreak:
		return true
	}
	return false
}

// Default phase lengths in seconds (25/5/15 minutes).
const (
	DefaultPomodoroSeconds   = 25 * 60
	DefaultShortBreakSeconds = 5 * 60
	DefaultLongBreakSeconds  = 15 * 60
)

// Durations holds the configured length of each phase in seconds.
type Durations struct {
	Pomodoro   int `json:"pomodoro"`
	ShortBreak int `json:"short"`
	LongBreak  int `json:"long"`
}

func DefaultDurations() Durations {
	return Durations{
		Pomodoro:   DefaultPomodoroSeconds,
		ShortBreak: DefaultShortBreakSeconds,
		LongBreak:  DefaultLongBreakSeconds,
	}
}

// Seconds returns the configured length of the given phase.
// Unknown modes fall back to the pomodoro length.
func (d Durations) Seconds(m Mode) int {
	switch m {
	case ModeShortBreak:
		return d.ShortBreak
	case ModeLongBreak:
		return d.LongBreak
	default:
		return d.Pomodoro
	}
}

// Participant is one account currently listed in a room.
//
// There is no liveness field beyond IsOnline as written at join time:
// a client that disappears without leaving stays listed until someone
// removes it. That gap is a known product decision, not an oversight.
type Participant struct {
	UID         string    `json:"uid"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
	IsOnline    bool      `json:"isOnline"`
}

// TimerState is the one shared mutable object every client in a room
// races to update. Writes are blind last-writer-wins: there is no
// version field and no logical clock, only the LastUpdatedBy tag used
// to suppress a client's own echo.
type TimerState struct {
	Mode     Mode `json:"mode"`
	TimeLeft int  `json:"timeLeft"`
	IsActive bool `json:"isActive"`
	// StartedAt is the wall-clock instant the current run began, nil
	// while stopped. Invariant: IsActive implies StartedAt != nil.
	StartedAt     *time.Time `json:"startedAt"`
	LastUpdatedBy string     `json:"lastUpdatedBy"`
	// SyncTimestamp is the publisher's local unix-millisecond clock at
	// publish time. Diagnostic only — it does not arbitrate conflicts.
	SyncTimestamp int64 `json:"syncTimestamp,omitempty"`
}

// IsZero reports whether the state carries no phase at all, which is
// how a room document with a missing timer field decodes. Subscribers
// treat that as "no update" rather than an error.
func (t TimerState) IsZero() bool {
	return t.Mode == ""
}

// Room is the replicated document for one study room.
type Room struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Capacity     int           `json:"capacity"`
	HasPassword  bool          `json:"hasPassword"`
	Password     string        `json:"password,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	CreatedBy    string        `json:"createdBy"`
	Participants []Participant `json:"participants"`
	Timer        TimerState    `json:"timer"`
}

// HasParticipant reports whether uid is already listed.
func (r Room) HasParticipant(uid string) bool {
	for _, p := range r.Participants {
		if p.UID == uid {
			return true
		}
	}
	return false
}

// IsFull reports whether the participant list has reached capacity.
func (r *Room) IsFull() bool {
	return len(r.Participants) >= r.Capacity
}

// Sanitized returns a copy safe to hand to clients: the shared secret
// never leaves the backend, only the HasPassword flag does.
func (r Room) Sanitized() Room {
	r.Password = ""
	return r
}

// ChatMessage is one entry in a room's append-only message log.
// Messages are ordered by Timestamp ascending and never edited.
type ChatMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	SenderUID string    `json:"senderUid"`
	Timestamp time.Time `json:"timestamp"`
}
