// Package dungeon runs room-by-room dungeon crawls: it owns the per-character
// session state machine and commits every room and turn atomically together
// with its rewards.
package dungeon

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/cory-johannsen/crawl/internal/game/character"
	"github.com/cory-johannsen/crawl/internal/game/combat"
	"github.com/cory-johannsen/crawl/internal/game/monster"
)

var (
	// ErrLevelRequirementNotMet is returned when a character is below a dungeon's minimum level.
	ErrLevelRequirementNotMet = errors.New("level requirement not met")
	// ErrNoActiveSession is returned when a character has no active dungeon session.
	ErrNoActiveSession = errors.New("no active session")
	// ErrSessionAlreadyActive is returned by a SessionStore asked to activate a
	// second session for the same character.
	ErrSessionAlreadyActive = errors.New("session already active")
	// ErrSessionConflict is returned by a SessionStore when a save carries a stale Version.
	ErrSessionConflict = errors.New("session version conflict")

	// ErrInvalidAction and ErrInsufficientResource are the combat errors, re-exported
	// so callers of Service need only this package.
	ErrInvalidAction        = combat.ErrInvalidAction
	ErrInsufficientResource = combat.ErrInsufficientResource
)

// State is the state of a dungeon session.
type State string

const (
	StateActive    State = "active"
	StateInCombat  State = "in_combat"
	StateCompleted State = "completed"
	StateFled      State = "fled"
	StateDefeated  State = "defeated"
	// StateAbandoned marks a run replaced by a new Start before it ended.
	StateAbandoned State = "abandoned"
)

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFled, StateDefeated, StateAbandoned:
		return true
	}
	return false
}

const (
	// StartingRooms is the room count of the first floor.
	StartingRooms = 5
	// MaxRoomsPerFloor caps the room count of later floors.
	MaxRoomsPerFloor = 7
	// FleePenalty is the health lost when fleeing.
	FleePenalty = 10
)

// RoomsForFloor returns the number of rooms on floor after the first:
// min(7, 3+floor).
func RoomsForFloor(floor int) int {
	return min(MaxRoomsPerFloor, 3+floor)
}

// CompletionBonus returns the gold and experience granted for finishing a
// dungeon on floor: 100+floor*50 gold and twice that in experience, plus the
// dungeon's per-floor rewards.
func CompletionBonus(floor, goldPerFloor, xpPerFloor int) (gold, xp int) {
	base := 100 + floor*50
	return base + floor*goldPerFloor, 2*base + floor*xpPerFloor
}

// Session is one character's run through a dungeon.
//
// Invariant: at most one Session per character has Active set.
type Session struct {
	ID          string
	CharacterID string
	DungeonID   string
	Active      bool
	State       State

	// Floor is 1-based.
	Floor        int
	RoomsCleared int
	TotalRooms   int
	// Treasures lists the tags of treasure found, in order.
	Treasures []string

	// Monster is set only while State is StateInCombat.
	Monster *monster.Instance
	// PendingEvent is the id of an event awaiting the player's choice.
	PendingEvent string

	// Health and Mana are the character's pools carried across rooms.
	Health int
	Mana   int

	// Version is bumped by every successful save; zero means never saved.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	out := *s
	out.Treasures = slices.Clone(s.Treasures)
	if s.Monster != nil {
		out.Monster = s.Monster.Clone()
	}
	return &out
}

// Abandon ends s without settling anything: it clears Active together with
// any monster or pending event and moves a non-terminal state to
// StateAbandoned.
//
// Postcondition: s.State.Terminal() and s.Monster == nil.
func (s *Session) Abandon() {
	s.Active = false
	s.Monster = nil
	s.PendingEvent = ""
	if !s.State.Terminal() {
		s.State = StateAbandoned
	}
}

// SessionStore persists dungeon sessions.
//
// Implementations MUST be safe for concurrent use.
type SessionStore interface {
	// LoadActive returns the active session of characterID, or an error
	// wrapping ErrNoActiveSession.
	LoadActive(ctx context.Context, characterID string) (*Session, error)
	// Save inserts s when s.Version is zero and otherwise updates it if the
	// stored version equals s.Version, returning ErrSessionConflict when it
	// does not and ErrSessionAlreadyActive when another session of the same
	// character is active. On success s.Version is incremented.
	Save(ctx context.Context, s *Session) error
	// Deactivate abandons session id as Session.Abandon does and bumps its
	// version, or returns an error wrapping ErrNoActiveSession.
	Deactivate(ctx context.Context, id string) error
}

// Stores is the pair of stores an operation works against, scoped to one
// transaction.
type Stores struct {
	Characters character.Store
	Sessions   SessionStore
}

// Transactor runs fn inside a single transaction: every write fn makes through
// the Stores it receives is committed when fn returns nil and discarded
// otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
