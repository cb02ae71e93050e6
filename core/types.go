package core

import (
	"fmt"
	"strings"
	"time"
)

// ActorState represents the supervision state of an actor cell.
type ActorState int32

const (
	// ActorStateRunning means the actor accepts and handles messages
	ActorStateRunning ActorState = iota

	// ActorStateRestarting means the actor instance is being replaced
	ActorStateRestarting

	// ActorStateStopped means the actor has been stopped
	ActorStateStopped

	// ActorStateEscalated means a failure was handed to the escalation handler
	ActorStateEscalated
)

// String returns the string representation of ActorState.
func (s ActorState) String() string {
	switch s {
	case ActorStateRunning:
		return "running"
	case ActorStateRestarting:
		return "restarting"
	case ActorStateStopped:
		return "stopped"
	case ActorStateEscalated:
		return "escalated"
	default:
		return "unknown"
	}
}

// DispatchMode selects how messages for one actor are scheduled on the pool.
type DispatchMode string

const (
	// DispatchMailbox queues messages per actor and drains them with a
	// single consumer, so a handler never runs concurrently with itself.
	DispatchMailbox DispatchMode = "mailbox"

	// DispatchUnordered submits one independent pool task per message.
	// Handlers of the same actor may run concurrently.
	DispatchUnordered DispatchMode = "unordered"
)

// ParseDispatchMode parses a dispatch mode name. An empty name selects
// DispatchMailbox.
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch DispatchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DispatchMailbox:
		return DispatchMailbox, nil
	case DispatchUnordered:
		return DispatchUnordered, nil
	default:
		return "", fmt.Errorf("unknown dispatch mode %q", s)
	}
}

// RestartLimit bounds how many restarts an actor may go through within a
// sliding window before a restart decision is turned into a stop.
type RestartLimit struct {
	// Max restarts allowed inside Within. Zero or less disables the limit.
	Max int

	// Within is the sliding window length.
	Within time.Duration
}

// DefaultRestartLimit returns the limit used when none is configured.
func DefaultRestartLimit() RestartLimit {
	return RestartLimit{Max: 3, Within: time.Minute}
}

// ActorStats contains runtime statistics for an actor.
type ActorStats struct {
	Path              string     `json:"path"`
	Kind              string     `json:"kind"`
	State             ActorState `json:"-"`
	StateName         string     `json:"state"`
	Active            bool       `json:"active"`
	MessagesProcessed uint64     `json:"messagesProcessed"`
	Failures          uint64     `json:"failures"`
	Restarts          uint64     `json:"restarts"`
	MailboxSize       int        `json:"mailboxSize"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastMessageAt     time.Time  `json:"lastMessageAt,omitzero"`
}
