package dungeon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/character"
	"github.com/cory-johannsen/crawl/internal/game/combat"
	"github.com/cory-johannsen/crawl/internal/game/dice"
	"github.com/cory-johannsen/crawl/internal/game/encounter"
	"github.com/cory-johannsen/crawl/internal/game/monster"
	"github.com/cory-johannsen/crawl/internal/game/reward"
)

// Catalog is the content a Service reads. *catalog.Catalog satisfies it.
type Catalog interface {
	encounter.Catalog
	combat.Lookup
	Dungeon(id string) (*catalog.DungeonDef, error)
	Event(id string) (*catalog.EventDef, error)
}

// Service exposes the dungeon operations. Operations on the same character
// are serialized; different characters proceed in parallel.
type Service struct {
	cat      Catalog
	tx       Transactor
	roller   *dice.Roller
	gen      *encounter.Generator
	resolver *combat.Resolver
	settler  *reward.Settler
	locks    *keyedMutex
	now      func() time.Time
	logger   *zap.Logger
	genOpts  []encounter.Option
}

// Option configures a Service.
type Option func(*Service)

// WithScripts enables scripted event effects.
func WithScripts(runner encounter.ScriptRunner) Option {
	return func(s *Service) { s.genOpts = append(s.genOpts, encounter.WithScripts(runner)) }
}

// WithClock overrides the time source used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
//
// Precondition: cat, tx, roller and logger must be non-nil.
func NewService(cat Catalog, tx Transactor, roller *dice.Roller, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		cat:    cat,
		tx:     tx,
		roller: roller,
		locks:  newKeyedMutex(),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.gen = encounter.NewGenerator(cat, roller, logger, s.genOpts...)
	s.resolver = combat.NewResolver(cat, roller, logger)
	s.settler = reward.NewSettler(cat, logger)
	return s
}

// Start begins a run of dungeonID. A session the character already has active
// is abandoned first: its monster and pending event are discarded unsettled
// and it ends in StateAbandoned.
//
// Postcondition: Returns the new session on floor 1 with StartingRooms rooms
// and the character's current health and mana, or an error wrapping
// character.ErrNotFound, catalog.ErrDungeonNotFound or ErrLevelRequirementNotMet.
func (s *Service) Start(ctx context.Context, characterID, dungeonID string) (*Session, error) {
	unlock := s.locks.Lock(characterID)
	defer unlock()

	var out *Session
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		c, err := st.Characters.Load(ctx, characterID)
		if err != nil {
			return err
		}
		d, err := s.cat.Dungeon(dungeonID)
		if err != nil {
			return err
		}
		if c.Level < d.MinLevel {
			return fmt.Errorf("%w: %s requires level %d, %s is level %d",
				ErrLevelRequirementNotMet, d.Name, d.MinLevel, c.Name, c.Level)
		}

		prior, err := st.Sessions.LoadActive(ctx, characterID)
		switch {
		case err == nil:
			if err := st.Sessions.Deactivate(ctx, prior.ID); err != nil {
				return err
			}
			s.logger.Info("prior session abandoned",
				zap.String("character_id", characterID),
				zap.String("session_id", prior.ID),
				zap.String("dungeon_id", prior.DungeonID),
				zap.String("state", string(prior.State)),
			)
		case !errors.Is(err, ErrNoActiveSession):
			return err
		}

		now := s.now()
		sess := &Session{
			ID:          uuid.New().String(),
			CharacterID: characterID,
			DungeonID:   d.ID,
			Active:      true,
			State:       StateActive,
			Floor:       1,
			TotalRooms:  StartingRooms,
			Health:      c.Health,
			Mana:        c.Mana,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := st.Sessions.Save(ctx, sess); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("start dungeon %q for %q: %w", dungeonID, characterID, err)
	}
	s.logger.Info("dungeon started",
		zap.String("character_id", characterID),
		zap.String("session_id", out.ID),
		zap.String("dungeon_id", dungeonID),
	)
	return out, nil
}

// Active returns the character's active session.
//
// Postcondition: Returns an error wrapping ErrNoActiveSession when there is none.
func (s *Service) Active(ctx context.Context, characterID string) (*Session, error) {
	var out *Session
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		sess, err := st.Sessions.LoadActive(ctx, characterID)
		if err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("active session for %q: %w", characterID, err)
	}
	return out, nil
}

// RoomResult describes what a ProgressRoom call did.
type RoomResult struct {
	Session *Session
	Kind    encounter.Kind
	// Monster is set when combat began.
	Monster  *monster.Instance
	Treasure *encounter.Treasure
	// Event is set for event rooms. When Outcome is nil the event awaits a choice.
	Event   *catalog.EventDef
	Outcome *encounter.EventOutcome
	// Settlement holds every reward credited by this call, completion bonus included.
	Settlement    *reward.Settlement
	RoomCleared   bool
	FloorAdvanced bool
	Completed     bool
}

// AwaitingChoice reports whether the call stopped at an unresolved event.
func (r RoomResult) AwaitingChoice() bool {
	return r.Event != nil && r.Outcome == nil
}

// ProgressRoom advances the character's run by one room. A newly drawn event
// is always saved as pending and returned whatever choice is given; the next
// call resolves it with choice, and an empty choice returns it unchanged.
//
// Postcondition: On error nothing is committed. The error wraps
// ErrNoActiveSession, ErrInvalidAction (in combat, or unknown choice) or a
// store or catalog error.
func (s *Service) ProgressRoom(ctx context.Context, characterID, choice string) (RoomResult, error) {
	unlock := s.locks.Lock(characterID)
	defer unlock()

	var res RoomResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		res = RoomResult{}
		sess, err := st.Sessions.LoadActive(ctx, characterID)
		if err != nil {
			return err
		}
		if sess.State == StateInCombat {
			return fmt.Errorf("%w: cannot leave the room while in combat", ErrInvalidAction)
		}
		d, err := s.cat.Dungeon(sess.DungeonID)
		if err != nil {
			return err
		}
		run := &run{svc: s, st: st, sess: sess, dungeon: d, res: &res}

		if sess.PendingEvent != "" {
			ev, err := s.cat.Event(sess.PendingEvent)
			if err != nil {
				return err
			}
			res.Kind = encounter.KindEvent
			res.Event = ev
			if choice == "" {
				res.Session = sess
				return nil
			}
			return run.resolveEvent(ctx, ev, choice)
		}

		enc, err := s.gen.Generate(d, sess.Floor)
		if err != nil {
			return err
		}
		res.Kind = enc.Kind
		switch enc.Kind {
		case encounter.KindMonster:
			sess.State = StateInCombat
			sess.Monster = enc.Monster
			res.Monster = enc.Monster
			s.logger.Info("combat started",
				zap.String("character_id", characterID),
				zap.String("session_id", sess.ID),
				zap.String("monster", enc.Monster.DefID),
				zap.Int("floor", sess.Floor),
			)
			return run.save(ctx)
		case encounter.KindTreasure:
			res.Treasure = enc.Treasure
			sess.Treasures = append(sess.Treasures, enc.Treasure.Tag())
			if err := run.settle(ctx, treasureGrant(*enc.Treasure)); err != nil {
				return err
			}
			if err := run.clearRoom(ctx); err != nil {
				return err
			}
			return run.save(ctx)
		default:
			res.Event = enc.Event
			sess.PendingEvent = enc.Event.ID
			return run.save(ctx)
		}
	})
	if err != nil {
		return RoomResult{}, fmt.Errorf("progress room for %q: %w", characterID, err)
	}
	return res, nil
}

// TurnResult describes what a ResolveCombatTurn call did.
type TurnResult struct {
	Session *Session
	Turn    combat.Turn
	// Loot lists the items dropped by a defeated monster.
	Loot       []monster.Drop
	Settlement *reward.Settlement
	Victory    bool
	Defeated   bool

	FloorAdvanced bool
	Completed     bool
}

// ResolveCombatTurn resolves one combat turn against the session's monster.
// Victory settles the monster's gold, experience and loot and clears the room;
// dropping to zero health ends the run with the character left at 1 health.
//
// Postcondition: On error nothing is committed. The error wraps
// ErrNoActiveSession, ErrInvalidAction (not in combat, or a malformed action),
// ErrInsufficientResource or character.ErrNotFound.
func (s *Service) ResolveCombatTurn(ctx context.Context, characterID string, action combat.Action) (TurnResult, error) {
	unlock := s.locks.Lock(characterID)
	defer unlock()

	var out TurnResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		out = TurnResult{}
		sess, err := st.Sessions.LoadActive(ctx, characterID)
		if err != nil {
			return err
		}
		if sess.State != StateInCombat || sess.Monster == nil {
			return fmt.Errorf("%w: not in combat", ErrInvalidAction)
		}
		d, err := s.cat.Dungeon(sess.DungeonID)
		if err != nil {
			return err
		}
		c, err := st.Characters.Load(ctx, characterID)
		if err != nil {
			return err
		}
		stats, err := character.Derive(c, s.cat)
		if err != nil {
			return err
		}

		turn, err := s.resolver.ResolveTurn(combat.Combatant{
			Character: c,
			Stats:     stats,
			Health:    sess.Health,
			Mana:      sess.Mana,
		}, action, sess.Monster)
		if err != nil {
			return err
		}
		out.Turn = turn

		var rr RoomResult
		run := &run{svc: s, st: st, sess: sess, dungeon: d, res: &rr}
		sess.Health = turn.CharacterHealth
		sess.Mana = turn.CharacterMana
		sess.Monster.Health = turn.MonsterHealth

		u := character.Update{Health: character.Ptr(sess.Health), Mana: character.Ptr(sess.Mana)}
		if len(turn.Consumed) > 0 {
			u.InventoryDelta = make(map[string]int, len(turn.Consumed))
			for id, n := range turn.Consumed {
				u.InventoryDelta[id] = -n
			}
		}

		switch {
		case turn.MonsterDefeated():
			if err := st.Characters.Save(ctx, characterID, u); err != nil {
				return err
			}
			def, err := s.cat.Monster(sess.Monster.DefID)
			if err != nil {
				return err
			}
			out.Victory = true
			out.Loot = monster.RollLoot(def.Loot, s.roller)
			s.logger.Info("monster defeated",
				zap.String("character_id", characterID),
				zap.String("session_id", sess.ID),
				zap.String("monster", def.ID),
				zap.Int("floor", sess.Floor),
			)
			grant := reward.Grant{Gold: sess.Monster.GoldReward, XP: sess.Monster.XPReward, Items: monster.Items(out.Loot)}
			sess.Monster = nil
			sess.State = StateActive
			if err := run.settle(ctx, grant); err != nil {
				return err
			}
			if err := run.clearRoom(ctx); err != nil {
				return err
			}
		case turn.CharacterDefeated():
			sess.Health = 1
			u.Health = character.Ptr(1)
			if err := st.Characters.Save(ctx, characterID, u); err != nil {
				return err
			}
			sess.Monster = nil
			sess.Active = false
			sess.State = StateDefeated
			out.Defeated = true
			s.logger.Info("character defeated",
				zap.String("character_id", characterID),
				zap.String("session_id", sess.ID),
				zap.String("dungeon_id", sess.DungeonID),
				zap.Int("floor", sess.Floor),
			)
		default:
			if err := st.Characters.Save(ctx, characterID, u); err != nil {
				return err
			}
		}

		if err := run.save(ctx); err != nil {
			return err
		}
		out.Session = sess
		out.Settlement = rr.Settlement
		out.FloorAdvanced = rr.FloorAdvanced
		out.Completed = rr.Completed
		return nil
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("combat turn for %q: %w", characterID, err)
	}
	return out, nil
}

// Flee abandons the character's active session, in or out of combat, at the
// cost of FleePenalty health. Unsettled rewards are forfeited.
//
// Postcondition: The session is inactive in StateFled and the character's
// health is max(0, health-FleePenalty); or an error wrapping ErrNoActiveSession.
func (s *Service) Flee(ctx context.Context, characterID string) (*Session, error) {
	unlock := s.locks.Lock(characterID)
	defer unlock()

	var out *Session
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		sess, err := st.Sessions.LoadActive(ctx, characterID)
		if err != nil {
			return err
		}
		c, err := st.Characters.Load(ctx, characterID)
		if err != nil {
			return err
		}
		health := max(0, c.Health-FleePenalty)
		if err := st.Characters.Save(ctx, characterID, character.Update{Health: character.Ptr(health)}); err != nil {
			return err
		}
		sess.Health = health
		sess.Monster = nil
		sess.PendingEvent = ""
		sess.Active = false
		sess.State = StateFled
		run := &run{svc: s, st: st, sess: sess, res: &RoomResult{}}
		if err := run.save(ctx); err != nil {
			return err
		}
		out = sess
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("flee for %q: %w", characterID, err)
	}
	s.logger.Info("fled dungeon",
		zap.String("character_id", characterID),
		zap.String("session_id", out.ID),
		zap.String("dungeon_id", out.DungeonID),
		zap.Int("floor", out.Floor),
	)
	return out, nil
}

func treasureGrant(t encounter.Treasure) reward.Grant {
	switch t.Kind {
	case encounter.TreasureGold:
		return reward.Grant{Gold: t.Gold}
	case encounter.TreasureXP:
		return reward.Grant{XP: t.XP}
	default:
		return reward.Grant{Items: map[string]int{t.ItemID: t.Quantity}}
	}
}
