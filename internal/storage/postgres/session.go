package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/crawl/internal/game/dungeon"
	"github.com/cory-johannsen/crawl/internal/game/monster"
)

// activeIndex is the partial unique index allowing one active session per character.
const activeIndex = "dungeon_sessions_one_active"

const sessionColumns = `
	id, character_id, dungeon_id, active, state,
	floor, rooms_cleared, total_rooms, treasures, pending_event, health, mana,
	monster_id, monster_def_id, monster_name, monster_level, monster_health,
	monster_max_health, monster_attack, monster_defense, monster_weaknesses,
	monster_resistances, monster_xp, monster_gold,
	version, created_at, updated_at`

// SessionRepository persists dungeon sessions. The monster in combat is
// stored in typed columns that are NULL outside combat.
type SessionRepository struct {
	q querier
}

// NewSessionRepository creates a SessionRepository on q, a pool or a transaction.
//
// Precondition: q must be non-nil.
func NewSessionRepository(q querier) *SessionRepository {
	return &SessionRepository{q: q}
}

// monsterRow holds the nullable monster columns of a session row.
type monsterRow struct {
	ID, DefID, Name          *string
	Level, Health, MaxHealth *int
	Attack, Defense          *int
	Weaknesses, Resistances  []string
	XP, Gold                 *int
}

func (m monsterRow) instance() *monster.Instance {
	if m.ID == nil {
		return nil
	}
	deref := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	str := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}
	return &monster.Instance{
		ID:          *m.ID,
		DefID:       str(m.DefID),
		Name:        str(m.Name),
		Level:       deref(m.Level),
		Health:      deref(m.Health),
		MaxHealth:   deref(m.MaxHealth),
		Attack:      deref(m.Attack),
		Defense:     deref(m.Defense),
		Weaknesses:  m.Weaknesses,
		Resistances: m.Resistances,
		XPReward:    deref(m.XP),
		GoldReward:  deref(m.Gold),
	}
}

func monsterArgs(m *monster.Instance) []any {
	if m == nil {
		return make([]any, 12)
	}
	return []any{
		m.ID, m.DefID, m.Name, m.Level, m.Health,
		m.MaxHealth, m.Attack, m.Defense, nonNil(m.Weaknesses),
		nonNil(m.Resistances), m.XPReward, m.GoldReward,
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanSession(row pgx.Row) (*dungeon.Session, error) {
	var s dungeon.Session
	var state string
	var m monsterRow
	err := row.Scan(
		&s.ID, &s.CharacterID, &s.DungeonID, &s.Active, &state,
		&s.Floor, &s.RoomsCleared, &s.TotalRooms, &s.Treasures, &s.PendingEvent, &s.Health, &s.Mana,
		&m.ID, &m.DefID, &m.Name, &m.Level, &m.Health,
		&m.MaxHealth, &m.Attack, &m.Defense, &m.Weaknesses,
		&m.Resistances, &m.XP, &m.Gold,
		&s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.State = dungeon.State(state)
	s.Monster = m.instance()
	if len(s.Treasures) == 0 {
		s.Treasures = nil
	}
	return &s, nil
}

// LoadActive returns the character's active session, locking its row inside
// a transaction.
//
// Postcondition: Returns the session or an error wrapping dungeon.ErrNoActiveSession.
func (r *SessionRepository) LoadActive(ctx context.Context, characterID string) (*dungeon.Session, error) {
	s, err := scanSession(r.q.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM dungeon_sessions WHERE character_id = $1 AND active
		FOR UPDATE`,
		characterID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("character %q: %w", characterID, dungeon.ErrNoActiveSession)
		}
		return nil, fmt.Errorf("querying active session: %w", err)
	}
	return s, nil
}

// Get returns session id, active or not.
//
// Postcondition: Returns the session or an error wrapping pgx.ErrNoRows.
func (r *SessionRepository) Get(ctx context.Context, id string) (*dungeon.Session, error) {
	s, err := scanSession(r.q.QueryRow(ctx, `SELECT `+sessionColumns+` FROM dungeon_sessions WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("querying session %q: %w", id, err)
	}
	return s, nil
}

// ListForCharacter returns every session of characterID ordered by creation.
func (r *SessionRepository) ListForCharacter(ctx context.Context, characterID string) ([]*dungeon.Session, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM dungeon_sessions WHERE character_id = $1 ORDER BY created_at, id`,
		characterID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	out := make([]*dungeon.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Save inserts sess when its Version is zero, otherwise updates it if the
// stored version still matches.
//
// Postcondition: On success sess.Version is incremented. Returns an error
// wrapping dungeon.ErrSessionConflict on a version mismatch or duplicate id,
// or dungeon.ErrSessionAlreadyActive when another session of the character is
// active.
func (r *SessionRepository) Save(ctx context.Context, sess *dungeon.Session) error {
	args := []any{
		sess.ID, sess.CharacterID, sess.DungeonID, sess.Active, string(sess.State),
		sess.Floor, sess.RoomsCleared, sess.TotalRooms, nonNil(sess.Treasures), sess.PendingEvent,
		sess.Health, sess.Mana,
	}
	args = append(args, monsterArgs(sess.Monster)...)
	args = append(args, sess.Version, sess.CreatedAt, sess.UpdatedAt)

	if sess.Version == 0 {
		_, err := r.q.Exec(ctx, `
			INSERT INTO dungeon_sessions (`+sessionColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25+1,$26,$27)`,
			args...,
		)
		if err != nil {
			return r.saveError(sess, err)
		}
		sess.Version++
		return nil
	}

	update := append(slices.Clone(args[:25]), sess.UpdatedAt)
	tag, err := r.q.Exec(ctx, `
		UPDATE dungeon_sessions SET
			dungeon_id = $3, active = $4, state = $5,
			floor = $6, rooms_cleared = $7, total_rooms = $8, treasures = $9,
			pending_event = $10, health = $11, mana = $12,
			monster_id = $13, monster_def_id = $14, monster_name = $15, monster_level = $16,
			monster_health = $17, monster_max_health = $18, monster_attack = $19,
			monster_defense = $20, monster_weaknesses = $21, monster_resistances = $22,
			monster_xp = $23, monster_gold = $24,
			version = version + 1, updated_at = $26
		WHERE id = $1 AND character_id = $2 AND version = $25`,
		update...,
	)
	if err != nil {
		return r.saveError(sess, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %q at version %d: %w", sess.ID, sess.Version, dungeon.ErrSessionConflict)
	}
	sess.Version++
	return nil
}

func (r *SessionRepository) saveError(sess *dungeon.Session, err error) error {
	switch constraintViolation(err) {
	case "":
		return fmt.Errorf("saving session %q: %w", sess.ID, err)
	case activeIndex:
		return fmt.Errorf("character %q: %w", sess.CharacterID, dungeon.ErrSessionAlreadyActive)
	default:
		return fmt.Errorf("session %q already exists: %w", sess.ID, dungeon.ErrSessionConflict)
	}
}

// Deactivate abandons session id: it clears the active flag, the monster
// columns and any pending event, moves a running state to abandoned and
// bumps the version.
//
// Postcondition: Returns an error wrapping dungeon.ErrNoActiveSession when no
// such session exists.
func (r *SessionRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE dungeon_sessions SET
			active = FALSE,
			state = CASE WHEN state IN ($2, $3) THEN $4 ELSE state END,
			pending_event = '',
			monster_id = NULL, monster_def_id = NULL, monster_name = NULL,
			monster_level = NULL, monster_health = NULL, monster_max_health = NULL,
			monster_attack = NULL, monster_defense = NULL, monster_weaknesses = NULL,
			monster_resistances = NULL, monster_xp = NULL, monster_gold = NULL,
			version = version + 1, updated_at = NOW()
		WHERE id = $1`,
		id, string(dungeon.StateActive), string(dungeon.StateInCombat), string(dungeon.StateAbandoned),
		id,
	)
	if err != nil {
		return fmt.Errorf("deactivating session %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %q: %w", id, dungeon.ErrNoActiveSession)
	}
	return nil
}
