// Package memory provides a transactional in-memory implementation of the
// character and session stores, used by simulations and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cory-johannsen/crawl/internal/game/character"
	"github.com/cory-johannsen/crawl/internal/game/dungeon"
)

// Store holds characters and sessions in memory. Transactions are serialized;
// writes made inside WithinTx become visible only when fn returns nil.
type Store struct {
	mu         sync.Mutex
	characters map[string]*character.Character
	sessions   map[string]*dungeon.Session
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		characters: make(map[string]*character.Character),
		sessions:   make(map[string]*dungeon.Session),
	}
}

// Put stores a copy of c, replacing any character with the same ID.
//
// Precondition: c.ID must be non-empty.
func (s *Store) Put(c *character.Character) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.characters[c.ID] = c.Clone()
}

// Create stores a copy of c.
//
// Postcondition: Returns an error wrapping character.ErrExists when c.ID is taken.
func (s *Store) Create(_ context.Context, c *character.Character) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.characters[c.ID]; ok {
		return fmt.Errorf("character %q: %w", c.ID, character.ErrExists)
	}
	s.characters[c.ID] = c.Clone()
	return nil
}

// Load implements character.Store outside of any transaction.
func (s *Store) Load(ctx context.Context, id string) (*character.Character, error) {
	var out *character.Character
	err := s.WithinTx(ctx, func(ctx context.Context, st dungeon.Stores) error {
		c, err := st.Characters.Load(ctx, id)
		out = c
		return err
	})
	return out, err
}

// Save implements character.Store outside of any transaction.
func (s *Store) Save(ctx context.Context, id string, u character.Update) error {
	return s.WithinTx(ctx, func(ctx context.Context, st dungeon.Stores) error {
		return st.Characters.Save(ctx, id, u)
	})
}

// Session returns a copy of session id, active or not.
func (s *Store) Session(id string) (*dungeon.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// SessionsFor returns copies of every session of characterID ordered by creation.
func (s *Store) SessionsFor(characterID string) []*dungeon.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*dungeon.Session
	for _, sess := range s.sessions {
		if sess.CharacterID == characterID {
			out = append(out, sess.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// WithinTx implements dungeon.Transactor.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st dungeon.Stores) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &tx{
		base:       s,
		characters: make(map[string]*character.Character),
		sessions:   make(map[string]*dungeon.Session),
	}
	if err := fn(ctx, dungeon.Stores{Characters: characterTx{t}, Sessions: sessionTx{t}}); err != nil {
		return err
	}
	for id, c := range t.characters {
		s.characters[id] = c
	}
	for id, sess := range t.sessions {
		s.sessions[id] = sess
	}
	return nil
}

// tx buffers the writes of one transaction over the committed state.
type tx struct {
	base       *Store
	characters map[string]*character.Character
	sessions   map[string]*dungeon.Session
}

func (t *tx) character(id string) (*character.Character, bool) {
	if c, ok := t.characters[id]; ok {
		return c, true
	}
	c, ok := t.base.characters[id]
	return c, ok
}

func (t *tx) session(id string) (*dungeon.Session, bool) {
	if sess, ok := t.sessions[id]; ok {
		return sess, true
	}
	sess, ok := t.base.sessions[id]
	return sess, ok
}

// activeFor returns the active session of characterID as seen by t.
func (t *tx) activeFor(characterID string) (*dungeon.Session, bool) {
	for _, sess := range t.sessions {
		if sess.Active && sess.CharacterID == characterID {
			return sess, true
		}
	}
	for id, sess := range t.base.sessions {
		if _, shadowed := t.sessions[id]; shadowed {
			continue
		}
		if sess.Active && sess.CharacterID == characterID {
			return sess, true
		}
	}
	return nil, false
}

type characterTx struct{ t *tx }

func (c characterTx) Load(_ context.Context, id string) (*character.Character, error) {
	ch, ok := c.t.character(id)
	if !ok {
		return nil, fmt.Errorf("character %q: %w", id, character.ErrNotFound)
	}
	return ch.Clone(), nil
}

func (c characterTx) Save(_ context.Context, id string, u character.Update) error {
	ch, ok := c.t.character(id)
	if !ok {
		return fmt.Errorf("character %q: %w", id, character.ErrNotFound)
	}
	next := ch.Clone()
	u.Apply(next)
	c.t.characters[id] = next
	return nil
}

type sessionTx struct{ t *tx }

func (s sessionTx) LoadActive(_ context.Context, characterID string) (*dungeon.Session, error) {
	sess, ok := s.t.activeFor(characterID)
	if !ok {
		return nil, fmt.Errorf("character %q: %w", characterID, dungeon.ErrNoActiveSession)
	}
	return sess.Clone(), nil
}

func (s sessionTx) Save(_ context.Context, sess *dungeon.Session) error {
	existing, exists := s.t.session(sess.ID)
	switch {
	case sess.Version == 0 && exists:
		return fmt.Errorf("session %q already exists: %w", sess.ID, dungeon.ErrSessionConflict)
	case sess.Version > 0 && (!exists || existing.Version != sess.Version):
		return fmt.Errorf("session %q at version %d: %w", sess.ID, sess.Version, dungeon.ErrSessionConflict)
	}
	if sess.Active {
		if other, ok := s.t.activeFor(sess.CharacterID); ok && other.ID != sess.ID {
			return fmt.Errorf("character %q has active session %q: %w", sess.CharacterID, other.ID, dungeon.ErrSessionAlreadyActive)
		}
	}
	sess.Version++
	s.t.sessions[sess.ID] = sess.Clone()
	return nil
}

func (s sessionTx) Deactivate(_ context.Context, id string) error {
	existing, ok := s.t.session(id)
	if !ok {
		return fmt.Errorf("session %q: %w", id, dungeon.ErrNoActiveSession)
	}
	next := existing.Clone()
	next.Abandon()
	next.Version++
	s.t.sessions[id] = next
	return nil
}
