// Package sim runs bots through dungeon runs to exercise game balance.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/character"
	"github.com/cory-johannsen/crawl/internal/game/combat"
	"github.com/cory-johannsen/crawl/internal/game/dice"
	"github.com/cory-johannsen/crawl/internal/game/dungeon"
)

// ErrStopped is returned by Run when Stop was called before every bot finished.
var ErrStopped = errors.New("simulation stopped")

// Registrar creates characters. *memory.Store and *postgres.Store satisfy it.
type Registrar interface {
	Create(ctx context.Context, c *character.Character) error
}

// Store is the character persistence the simulator needs.
type Store interface {
	Registrar
	character.Store
}

// Params configures a simulation.
type Params struct {
	Bots    int
	Runs    int
	Dungeon string
	// Level is the starting level of every bot.
	Level int
	// MaxTurns bounds a single fight; a bot still fighting after it flees.
	MaxTurns int
	// Scripts reports whether scripted event effects are enabled. Without
	// them bots never pick a script choice.
	Scripts bool
	// Prefix is prepended to bot character ids so repeated simulations
	// against a shared database do not collide.
	Prefix string
}

// Summary aggregates the outcome of every run.
type Summary struct {
	Runs      int
	Completed int
	Fled      int
	Defeated  int
	Rooms     int
	Fights    int
	Turns     int
	Gold      int
	XP        int
	// MaxLevel is the highest level any bot reached.
	MaxLevel int
	Elapsed  time.Duration
}

func (s *Summary) add(o Summary) {
	s.Runs += o.Runs
	s.Completed += o.Completed
	s.Fled += o.Fled
	s.Defeated += o.Defeated
	s.Rooms += o.Rooms
	s.Fights += o.Fights
	s.Turns += o.Turns
	s.Gold += o.Gold
	s.XP += o.XP
	s.MaxLevel = max(s.MaxLevel, o.MaxLevel)
}

// Simulator drives bots through the dungeon service.
type Simulator struct {
	svc    *dungeon.Service
	cat    *catalog.Catalog
	store  Store
	roller *dice.Roller
	logger *zap.Logger
	params Params

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Simulator. roller drives bot decisions only and should not be
// the roller given to svc, so bot choices do not perturb game draws.
//
// Precondition: every argument must be non-nil; params.Bots and params.Runs
// must be >= 1.
func New(svc *dungeon.Service, cat *catalog.Catalog, store Store, roller *dice.Roller, logger *zap.Logger, params Params) *Simulator {
	if params.MaxTurns < 1 {
		params.MaxTurns = 50
	}
	if params.Level < 1 {
		params.Level = 1
	}
	return &Simulator{svc: svc, cat: cat, store: store, roller: roller, logger: logger, params: params}
}

// Run creates the bots and plays every run, bots in parallel.
//
// Postcondition: Returns the merged Summary, or the first bot error.
// Returns ErrStopped when Stop interrupted the simulation.
func (s *Simulator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	var (
		mu    sync.Mutex
		total Summary
	)
	g, ctx := errgroup.WithContext(ctx)
	for i := range s.params.Bots {
		b := &bot{sim: s, id: fmt.Sprintf("%sbot-%02d", s.params.Prefix, i+1)}
		g.Go(func() error {
			sum, err := b.play(ctx)
			mu.Lock()
			total.add(sum)
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	total.Elapsed = time.Since(start)
	if errors.Is(err, context.Canceled) {
		return total, ErrStopped
	}
	return total, err
}

// Stop interrupts a running simulation. Safe to call at any time.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// NewCharacter returns a fresh adventurer at level with the starter kit.
func NewCharacter(id string, level int) *character.Character {
	c := &character.Character{
		ID:         id,
		Name:       "Bot " + id,
		Level:      1,
		Attributes: character.Attributes{Strength: 10, Intelligence: 10},
		Health:     100, MaxHealth: 100, Mana: 20, MaxMana: 20,
		Equipment: map[catalog.Slot]string{
			catalog.SlotWeapon: "iron_sword",
			catalog.SlotHead:   "leather_cap",
		},
		Inventory: map[string]int{"potion": 3},
		Skills:    []string{"fireball", "mend"},
	}
	if level > 1 {
		xp := 100 * (level - 1) * (level - 1)
		character.GainExperience(c, xp)
		c.Health, c.Mana = c.MaxHealth, c.MaxMana
	}
	return c
}

type bot struct {
	sim *Simulator
	id  string
}

func (b *bot) play(ctx context.Context) (Summary, error) {
	s := b.sim
	var sum Summary
	if err := s.store.Create(ctx, NewCharacter(b.id, s.params.Level)); err != nil {
		return sum, fmt.Errorf("bot %s: %w", b.id, err)
	}
	for range s.params.Runs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if err := b.rest(ctx); err != nil {
			return sum, err
		}
		if err := b.run(ctx, &sum); err != nil {
			return sum, fmt.Errorf("bot %s: %w", b.id, err)
		}
	}
	c, err := s.store.Load(ctx, b.id)
	if err != nil {
		return sum, err
	}
	sum.MaxLevel = c.Level
	s.logger.Debug("bot finished",
		zap.String("character_id", b.id),
		zap.Int("level", c.Level),
		zap.Int("gold", c.Gold),
		zap.Int("completed", sum.Completed),
		zap.Int("defeated", sum.Defeated),
	)
	return sum, nil
}

// rest restores the bot to full health and mana between runs.
func (b *bot) rest(ctx context.Context) error {
	c, err := b.sim.store.Load(ctx, b.id)
	if err != nil {
		return err
	}
	stats, err := character.Derive(c, b.sim.cat)
	if err != nil {
		return err
	}
	return b.sim.store.Save(ctx, b.id, character.Update{
		Health: character.Ptr(stats.MaxHealth),
		Mana:   character.Ptr(stats.MaxMana),
	})
}

func (b *bot) run(ctx context.Context, sum *Summary) error {
	s := b.sim
	if _, err := s.svc.Start(ctx, b.id, s.params.Dungeon); err != nil {
		return err
	}
	sum.Runs++
	for {
		room, err := s.svc.ProgressRoom(ctx, b.id, "")
		if err != nil {
			return err
		}
		if room.AwaitingChoice() {
			room, err = s.svc.ProgressRoom(ctx, b.id, b.pick(room.Event))
			if err != nil {
				return err
			}
		}
		if room.Settlement != nil {
			sum.Gold += room.Settlement.Gold
			sum.XP += room.Settlement.XP
		}
		if room.RoomCleared {
			sum.Rooms++
		}
		if room.Completed {
			sum.Completed++
			return nil
		}
		if room.Monster == nil {
			continue
		}

		done, err := b.fight(ctx, sum)
		if err != nil || done {
			return err
		}
	}
}

// pick chooses an event choice at random among those the bot may take.
func (b *bot) pick(ev *catalog.EventDef) string {
	var ids []string
	for _, c := range ev.Choices {
		if c.Effect.Kind != catalog.EventScript || b.sim.params.Scripts {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return ev.Choices[0].ID
	}
	return ids[b.sim.roller.Intn("bot choice", len(ids))]
}

// fight plays one combat to its end. It reports done when the run is over.
func (b *bot) fight(ctx context.Context, sum *Summary) (bool, error) {
	s := b.sim
	sum.Fights++
	for range s.params.MaxTurns {
		action, flee, err := b.choose(ctx)
		if err != nil {
			return false, err
		}
		if flee {
			break
		}
		turn, err := s.svc.ResolveCombatTurn(ctx, b.id, action)
		if errors.Is(err, dungeon.ErrInsufficientResource) {
			turn, err = s.svc.ResolveCombatTurn(ctx, b.id, combat.Attack())
		}
		if err != nil {
			return false, err
		}
		sum.Turns++
		if turn.Settlement != nil {
			sum.Gold += turn.Settlement.Gold
			sum.XP += turn.Settlement.XP
		}
		switch {
		case turn.Defeated:
			sum.Defeated++
			return true, nil
		case turn.Completed:
			sum.Rooms++
			sum.Completed++
			return true, nil
		case turn.Victory:
			sum.Rooms++
			return false, nil
		}
	}

	if _, err := s.svc.Flee(ctx, b.id); err != nil {
		return false, err
	}
	sum.Fled++
	return true, nil
}

// choose picks the next combat action: heal when low, cast a damage skill
// when mana allows, otherwise attack. flee is set for a bot close to death
// with nothing left to heal with.
func (b *bot) choose(ctx context.Context) (action combat.Action, flee bool, err error) {
	s := b.sim
	sess, err := s.svc.Active(ctx, b.id)
	if err != nil {
		return combat.Action{}, false, err
	}
	c, err := s.store.Load(ctx, b.id)
	if err != nil {
		return combat.Action{}, false, err
	}
	stats, err := character.Derive(c, s.cat)
	if err != nil {
		return combat.Action{}, false, err
	}

	low := sess.Health*100 < stats.MaxHealth*35
	if low && c.Holds("potion", 1) {
		return combat.UseItem("potion"), false, nil
	}
	var heal, strike *catalog.SkillDef
	for _, id := range c.Skills {
		def, err := s.cat.Skill(id)
		if err != nil || def.ManaCost > sess.Mana {
			continue
		}
		switch def.Effect.Kind {
		case catalog.EffectHeal:
			heal = def
		case catalog.EffectDirectDamage:
			strike = def
		}
	}
	switch {
	case low && heal != nil:
		return combat.UseSkill(heal.ID), false, nil
	case sess.Health*100 < stats.MaxHealth*15:
		return combat.Action{}, true, nil
	case strike != nil && s.roller.Percent("bot skill") < 40:
		return combat.UseSkill(strike.ID), false, nil
	}
	return combat.Attack(), false, nil
}
