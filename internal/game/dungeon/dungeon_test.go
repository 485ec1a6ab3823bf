package dungeon_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/catalog/catalogtest"
	"github.com/cory-johannsen/crawl/internal/game/character"
	"github.com/cory-johannsen/crawl/internal/game/combat"
	"github.com/cory-johannsen/crawl/internal/game/dice"
	"github.com/cory-johannsen/crawl/internal/game/dungeon"
	"github.com/cory-johannsen/crawl/internal/storage/memory"
)

type harness struct {
	svc   *dungeon.Service
	store *memory.Store
	seq   *dice.Sequence
	logs  *observer.ObservedLogs
}

func newHarness(t *testing.T, src dice.Source) *harness {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	store := memory.New()
	svc := dungeon.NewService(catalogtest.Fixture(t), store, dice.NewLoggedRoller(src, logger), logger,
		dungeon.WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }))
	h := &harness{svc: svc, store: store, logs: logs}
	if seq, ok := src.(*dice.Sequence); ok {
		h.seq = seq
	}
	return h
}

func hero(id string, level int) *character.Character {
	return &character.Character{
		ID: id, Name: "Hero " + id, Level: level,
		Experience: 100 * (level - 1) * (level - 1),
		Attributes: character.Attributes{Strength: 20, Intelligence: 10},
		Health:     100, MaxHealth: 100, Mana: 20, MaxMana: 20,
		Equipment: map[catalog.Slot]string{catalog.SlotWeapon: "iron_sword"},
		Inventory: map[string]int{"potion": 1},
		Skills:    []string{"fireball"},
	}
}

func (h *harness) character(t *testing.T, id string) *character.Character {
	t.Helper()
	c, err := h.store.Load(context.Background(), id)
	require.NoError(t, err)
	return c
}

func repeat(n int, values ...float64) []float64 {
	out := make([]float64, 0, n*len(values))
	for range n {
		out = append(out, values...)
	}
	return out
}

func TestStart_InitialState(t *testing.T) {
	h := newHarness(t, dice.NewSequence(0.5))
	c := hero("c1", 15)
	c.Health = 80
	h.store.Put(c)

	sess, err := h.svc.Start(context.Background(), "c1", "crypt")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.True(t, sess.Active)
	assert.Equal(t, dungeon.StateActive, sess.State)
	assert.Equal(t, 1, sess.Floor)
	assert.Zero(t, sess.RoomsCleared)
	assert.Equal(t, dungeon.StartingRooms, sess.TotalRooms)
	assert.Empty(t, sess.Treasures)
	assert.Equal(t, 80, sess.Health)
	assert.Equal(t, 20, sess.Mana)
	assert.Equal(t, 1, sess.Version)
	assert.Zero(t, h.seq.Drawn())
	assert.Equal(t, 1, h.logs.FilterMessage("dungeon started").Len())
}

func TestStart_Failures(t *testing.T) {
	h := newHarness(t, dice.NewSequence(0.5))
	h.store.Put(hero("novice", 1))
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "novice", "crypt")
	assert.ErrorIs(t, err, dungeon.ErrLevelRequirementNotMet)
	_, err = h.svc.Start(ctx, "novice", "moon")
	assert.ErrorIs(t, err, catalog.ErrDungeonNotFound)
	_, err = h.svc.Start(ctx, "ghost", "cellar")
	assert.ErrorIs(t, err, character.ErrNotFound)

	assert.Empty(t, h.store.SessionsFor("novice"))
}

func TestStart_SingleActiveSession(t *testing.T) {
	h := newHarness(t, dice.NewSequence(0.5))
	h.store.Put(hero("c1", 15))
	ctx := context.Background()

	first, err := h.svc.Start(ctx, "c1", "cellar")
	require.NoError(t, err)
	second, err := h.svc.Start(ctx, "c1", "crypt")
	require.NoError(t, err)

	all := h.store.SessionsFor("c1")
	require.Len(t, all, 2)
	active := 0
	for _, s := range all {
		if s.Active {
			active++
			assert.Equal(t, second.ID, s.ID)
		}
	}
	assert.Equal(t, 1, active)

	prior, ok := h.store.Session(first.ID)
	require.True(t, ok)
	assert.False(t, prior.Active)
	assert.Equal(t, dungeon.StateAbandoned, prior.State)

	got, err := h.svc.Active(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "crypt", got.DungeonID)
}

func TestStart_AbandonsRunInCombat(t *testing.T) {
	h := newHarness(t, dice.NewSequence(0.1, 0.0)) // monster, slime
	h.store.Put(hero("c1", 15))
	ctx := context.Background()

	first, err := h.svc.Start(ctx, "c1", "pit")
	require.NoError(t, err)
	room, err := h.svc.ProgressRoom(ctx, "c1", "")
	require.NoError(t, err)
	require.NotNil(t, room.Monster)
	require.Equal(t, dungeon.StateInCombat, room.Session.State)

	second, err := h.svc.Start(ctx, "c1", "cellar")
	require.NoError(t, err)

	prior, ok := h.store.Session(first.ID)
	require.True(t, ok)
	assert.False(t, prior.Active)
	assert.Equal(t, dungeon.StateAbandoned, prior.State)
	assert.True(t, prior.State.Terminal())
	assert.Nil(t, prior.Monster)
	assert.Equal(t, 1, h.logs.FilterMessage("prior session abandoned").Len())

	got, err := h.svc.Active(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	assert.Nil(t, got.Monster)
	assert.Equal(t, dungeon.StateActive, got.State)
}

func TestScenario_TreasureThenCombatVictory(t *testing.T) {
	h := newHarness(t, dice.NewSequence(
		0.8, 0.1, 0.5, // treasure, gold, 50 -> 50+25+50
		0.1, 0.0, // monster, slime
		0.5, 0.75, 0.75, // attack 19, counter 4
		0.5, 0.75, // attack 19 kills
		0.75, // gel drop
	))
	h.store.Put(hero("c1", 15))
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "c1", "pit")
	require.NoError(t, err)

	room, err := h.svc.ProgressRoom(ctx, "c1", "")
	require.NoError(t, err)
	require.NotNil(t, room.Treasure)
	assert.Equal(t, 125, room.Treasure.Gold)
	assert.True(t, room.RoomCleared)
	assert.Equal(t, 1, room.Session.RoomsCleared)
	assert.Equal(t, []string{"gold"}, room.Session.Treasures)
	assert.Equal(t, 125, h.character(t, "c1").Gold)

	room, err = h.svc.ProgressRoom(ctx, "c1", "")
	require.NoError(t, err)
	require.NotNil(t, room.Monster)
	assert.Equal(t, "slime", room.Monster.DefID)
	assert.Equal(t, dungeon.StateInCombat, room.Session.State)
	assert.False(t, room.RoomCleared)

	// floor(((20*0.5)+10) * (100/110) * 1.05) = 19
	turn, err := h.svc.ResolveCombatTurn(ctx, "c1", combat.Attack())
	require.NoError(t, err)
	assert.Equal(t, 19, turn.Turn.Actor.Damage)
	assert.Equal(t, 1, turn.Session.Monster.Health)
	assert.Equal(t, "critically wounded", turn.Turn.MonsterCondition)
	assert.Equal(t, 96, turn.Session.Health)
	assert.Equal(t, 96, h.character(t, "c1").Health)
	assert.False(t, turn.Victory)

	turn, err = h.svc.ResolveCombatTurn(ctx, "c1", combat.Attack())
	require.NoError(t, err)
	assert.True(t, turn.Victory)
	assert.Nil(t, turn.Session.Monster)
	assert.Equal(t, dungeon.StateActive, turn.Session.State)
	assert.Equal(t, 2, turn.Session.RoomsCleared)
	require.NotNil(t, turn.Settlement)
	assert.Equal(t, 12, turn.Settlement.Gold)
	assert.Equal(t, 30, turn.Settlement.XP)

	c := h.character(t, "c1")
	assert.Equal(t, 137, c.Gold)
	assert.Equal(t, 100*14*14+30, c.Experience)
	assert.Equal(t, 1, c.Inventory["gel"])
	assert.Equal(t, 96, c.Health)
}

func TestScenario_FleeMidCombat(t *testing.T) {
	h := newHarness(t, dice.NewSequence(0.1, 0.0))
	h.store.Put(hero("c1", 15))
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "c1", "pit")
	require.NoError(t, err)
	room, err := h.svc.ProgressRoom(ctx, "c1", "")
	require.NoError(t, err)
	require.NotNil(t, room.Monster)

	sess, err := h.svc.Flee(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, sess.Active)
	assert.Equal(t, dungeon.StateFled, sess.State)
	assert.Nil(t, sess.Monster)

	c := h.character(t, "c1")
	assert.Equal(t, 90, c.Health)
	assert.Zero(t, c.Gold)
	assert.Equal(t, 100*14*14, c.Experience)

	_, err = h.svc.Active(ctx, "c1")
	assert.ErrorIs(t, err, dungeon.ErrNoActiveSession)
	_, err = h.svc.Flee(ctx, "c1")
	assert.ErrorIs(t, err, dungeon.ErrNoActiveSession)
}

func TestFlee_FloorsAtZero(t *testing.T) {
	h := newHarness(t, dice.NewSequence(0.5))
	c := hero("c1", 15)
	c.Health = 4
	h.store.Put(c)
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "c1", "pit")
	require.NoError(t, err)
	_, err = h.svc.Flee(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, h.character(t, "c1").Health)
}

func TestScenario_Defeat(t *testing.T) {
	// monster, goblin, attack (crit roll, variance), counter 8
	h := newHarness(t, dice.NewSequence(0.1, 0.99, 0.5, 0.75, 0.75))
	c := hero("c1", 15)
	c.Health = 3
	h.store.Put(c)
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "c1", "cellar")
	require.NoError(t, err)
	room, err := h.svc.ProgressRoom(ctx, "c1", "")
	require.NoError(t, err)
	require.Equal(t, "goblin", room.Monster.DefID)

	turn, err := h.svc.ResolveCombatTurn(ctx, "c1", combat.Attack())
	require.NoError(t, err)
	assert.True(t, turn.Defeated)
	assert.False(t, turn.Session.Active)
	assert.Equal(t, dungeon.StateDefeated, turn.Session.State)
	assert.Equal(t, 1, h.character(t, "c1").Health)
	assert.Equal(t, 1, h.logs.FilterMessage("character defeated").Len())
}

func TestCompletion_TwoFloors(t *testing.T) {
	// Every room is an item treasure.
	h := newHarness(t, dice.NewSequence(repeat(20, 0.8, 0.9)...))
	c := hero("c1", 1)
	c.Health = 50
	h.store.Put(c)
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "c1", "cellar")
	require.NoError(t, err)

	rooms := dungeon.StartingRooms + dungeon.RoomsForFloor(2)
	completions := 0
	for i := 1; i <= rooms; i++ {
		room, err := h.svc.ProgressRoom(ctx, "c1", "")
		require.NoError(t, err, "room %d", i)
		require.NotNil(t, room.Treasure)
		if room.Completed {
			completions++
			assert.Equal(t, rooms, i, "completed early")
			assert.False(t, room.Session.Active)
			assert.Equal(t, dungeon.StateCompleted, room.Session.State)
			require.NotNil(t, room.Settlement)
			assert.Equal(t, 2, room.Settlement.LevelsGained)
		}
		if i == dungeon.StartingRooms {
			assert.True(t, room.FloorAdvanced)
			assert.Equal(t, 2, room.Session.Floor)
			assert.Equal(t, 5, room.Session.TotalRooms)
		}
	}
	assert.Equal(t, 1, completions)

	after := h.character(t, "c1")
	assert.Equal(t, 200, after.Gold)
	assert.Equal(t, 400, after.Experience)
	assert.Equal(t, 3, after.Level)
	assert.Equal(t, rooms, after.Inventory["gem"])
	assert.Equal(t, 110, after.Health, "full heal to the new max")
	assert.Equal(t, 26, after.Mana)

	_, err = h.svc.ProgressRoom(ctx, "c1", "")
	assert.ErrorIs(t, err, dungeon.ErrNoActiveSession)
}

func TestEvent_PendingChoice(t *testing.T) {
	h := newHarness(t, dice.NewSequence(0.95, 0.0))
	c := hero("c1", 15)
	c.Health = 50
	h.store.Put(c)
	ctx := context.Background()
	_, err := h.svc.Start(ctx, "c1", "cellar")
	require.NoError(t, err)

	room, err := h.svc.ProgressRoom(ctx, "c1", "")
	require.NoError(t, err)
	require.True(t, room.AwaitingChoice())
	assert.Equal(t, "fountain", room.Event.ID)
	assert.Equal(t, "fountain", room.Session.PendingEvent)
	assert.Zero(t, room.Session.RoomsCleared)
	drawn := h.seq.Drawn()

	room, err = h.svc.ProgressRoom(ctx, "c1", "")
	require.NoError(t, err)
	assert.True(t, room.AwaitingChoice())
	assert.Equal(t, "fountain", room.Event.ID)
	assert.Equal(t, drawn, h.seq.Drawn(), "pending event must not be regenerated")

	_, err = h.svc.ProgressRoom(ctx, "c1", "swim")
	assert.ErrorIs(t, err, dungeon.ErrInvalidAction)
	sess, err := h.svc.Active(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "fountain", sess.PendingEvent)

	room, err = h.svc.ProgressRoom(ctx, "c1", "drink")
	require.NoError(t, err)
	require.NotNil(t, room.Outcome)
	assert.Equal(t, 70, room.Outcome.Health)
	assert.Empty(t, room.Session.PendingEvent)
	assert.Equal(t, 1, room.Session.RoomsCleared)
	assert.Equal(t, 70, h.character(t, "c1").Health)
}

func TestEvent_NewEventAlwaysPending(t *testing.T) {
	for _, choice := range []string{"leave", "swim"} {
		t.Run(choice, func(t *testing.T) {
			h := newHarness(t, dice.NewSequence(0.95, 0.0))
			h.store.Put(hero("c1", 15))
			ctx := context.Background()
			_, err := h.svc.Start(ctx, "c1", "cellar")
			require.NoError(t, err)

			room, err := h.svc.ProgressRoom(ctx, "c1", choice)
			require.NoError(t, err)
			require.True(t, room.AwaitingChoice())
			assert.Equal(t, "fountain", room.Session.PendingEvent)
			assert.Zero(t, room.Session.RoomsCleared)
			drawn := h.seq.Drawn()

			_, err = h.svc.ProgressRoom(ctx, "c1", "swim")
			assert.ErrorIs(t, err, dungeon.ErrInvalidAction)
			sess, err := h.svc.Active(ctx, "c1")
			require.NoError(t, err)
			assert.Equal(t, "fountain", sess.PendingEvent, "a rejected choice must not drop the event")

			room, err = h.svc.ProgressRoom(ctx, "c1", "leave")
			require.NoError(t, err)
			assert.False(t, room.AwaitingChoice())
			assert.Equal(t, "fountain", room.Outcome.EventID)
			assert.Equal(t, 1, room.Session.RoomsCleared)
			assert.Equal(t, drawn, h.seq.Drawn(), "the event must not be regenerated")
		})
	}
}

func TestInvalidTransitions(t *testing.T) {
	h := newHarness(t, dice.NewSequence(0.1, 0.0))
	h.store.Put(hero("c1", 15))
	ctx := context.Background()

	_, err := h.svc.ProgressRoom(ctx, "c1", "")
	assert.ErrorIs(t, err, dungeon.ErrNoActiveSession)

	_, err = h.svc.Start(ctx, "c1", "pit")
	require.NoError(t, err)
	_, err = h.svc.ResolveCombatTurn(ctx, "c1", combat.Attack())
	assert.ErrorIs(t, err, dungeon.ErrInvalidAction, "no monster yet")

	_, err = h.svc.ProgressRoom(ctx, "c1", "")
	require.NoError(t, err)
	_, err = h.svc.ProgressRoom(ctx, "c1", "")
	assert.ErrorIs(t, err, dungeon.ErrInvalidAction, "in combat")
}

func TestResolveCombatTurn_FailureCommitsNothing(t *testing.T) {
	h := newHarness(t, dice.NewSequence(0.1, 0.0, 0.5))
	c := hero("c1", 15)
	c.Mana = 5
	h.store.Put(c)
	ctx := context.Background()
	_, err := h.svc.Start(ctx, "c1", "pit")
	require.NoError(t, err)
	_, err = h.svc.ProgressRoom(ctx, "c1", "")
	require.NoError(t, err)
	before, err := h.svc.Active(ctx, "c1")
	require.NoError(t, err)

	_, err = h.svc.ResolveCombatTurn(ctx, "c1", combat.UseSkill("fireball"))
	assert.ErrorIs(t, err, dungeon.ErrInsufficientResource)
	_, err = h.svc.ResolveCombatTurn(ctx, "c1", combat.UseItem("elixir"))
	assert.ErrorIs(t, err, dungeon.ErrInsufficientResource)

	after, err := h.svc.Active(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, before.Monster.Health, after.Monster.Health)
}

func TestResolveCombatTurn_PotionConsumed(t *testing.T) {
	h := newHarness(t, dice.NewSequence(0.1, 0.0, 0.75))
	c := hero("c1", 15)
	c.Health = 50
	h.store.Put(c)
	ctx := context.Background()
	_, err := h.svc.Start(ctx, "c1", "pit")
	require.NoError(t, err)
	_, err = h.svc.ProgressRoom(ctx, "c1", "")
	require.NoError(t, err)

	turn, err := h.svc.ResolveCombatTurn(ctx, "c1", combat.UseItem("potion"))
	require.NoError(t, err)
	// 50 + 30, slime counter 4
	assert.Equal(t, 76, turn.Session.Health)
	after := h.character(t, "c1")
	assert.NotContains(t, after.Inventory, "potion")
	assert.Equal(t, 76, after.Health)
}

func TestProperty_RoomArithmetic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		floor := rapid.IntRange(1, 100).Draw(rt, "floor")
		rooms := dungeon.RoomsForFloor(floor)
		assert.LessOrEqual(rt, rooms, dungeon.MaxRoomsPerFloor)
		assert.GreaterOrEqual(rt, rooms, dungeon.RoomsForFloor(max(1, floor-1)))

		gold, xp := dungeon.CompletionBonus(floor, 0, 0)
		assert.Equal(rt, 100+floor*50, gold)
		assert.Equal(rt, 2*gold, xp)
	})
}

func TestCompletionBonus_DungeonRewards(t *testing.T) {
	gold, xp := dungeon.CompletionBonus(3, 20, 10)
	assert.Equal(t, 250+60, gold)
	assert.Equal(t, 500+30, xp)
}

func TestConcurrentCharacters(t *testing.T) {
	h := newHarness(t, dice.NewSeededSource(42))
	ctx := context.Background()
	const players = 6
	for i := range players {
		id := fmt.Sprintf("c%d", i)
		h.store.Put(hero(id, 15))
		_, err := h.svc.Start(ctx, id, "cellar")
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for i := range players {
		id := fmt.Sprintf("c%d", i)
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 25 {
					room, err := h.svc.ProgressRoom(ctx, id, "leave")
					if err == nil && room.Monster != nil {
						_, _ = h.svc.ResolveCombatTurn(ctx, id, combat.Attack())
					}
					if err != nil {
						assert.NotErrorIs(t, err, dungeon.ErrSessionConflict)
						assert.NotErrorIs(t, err, dungeon.ErrSessionAlreadyActive)
					}
				}
			}()
		}
	}
	wg.Wait()

	for i := range players {
		id := fmt.Sprintf("c%d", i)
		active := 0
		for _, s := range h.store.SessionsFor(id) {
			if s.Active {
				active++
			}
			assert.GreaterOrEqual(t, s.Health, 0)
			assert.LessOrEqual(t, s.Health, 100)
		}
		assert.LessOrEqual(t, active, 1)
		c := h.character(t, id)
		assert.GreaterOrEqual(t, c.Health, 0)
	}
}

// gatedTx counts operations inside WithinTx before they reach the store,
// whose own lock would hide whether Service serialized them. An entering
// operation waits up to hold for a second one to join it.
type gatedTx struct {
	inner dungeon.Transactor
	hold  time.Duration

	mu       sync.Mutex
	inFlight int
	peak     int
	joined   chan struct{}
	once     sync.Once
}

func newGatedTx(inner dungeon.Transactor, hold time.Duration) *gatedTx {
	return &gatedTx{inner: inner, hold: hold, joined: make(chan struct{})}
}

func (g *gatedTx) WithinTx(ctx context.Context, fn func(ctx context.Context, s dungeon.Stores) error) error {
	g.mu.Lock()
	g.inFlight++
	g.peak = max(g.peak, g.inFlight)
	if g.inFlight >= 2 {
		g.once.Do(func() { close(g.joined) })
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.inFlight--
		g.mu.Unlock()
	}()

	select {
	case <-g.joined:
	case <-time.After(g.hold):
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.inner.WithinTx(ctx, fn)
}

func (g *gatedTx) maxInFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.peak
}

func startAll(t *testing.T, svc *dungeon.Service, ids ...string) {
	t.Helper()
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Start(context.Background(), id, "cellar")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestService_SerializesSameCharacter(t *testing.T) {
	store := memory.New()
	store.Put(hero("c1", 1))
	tx := newGatedTx(store, 20*time.Millisecond)
	svc := dungeon.NewService(catalogtest.Fixture(t), tx, dice.NewLoggedRoller(dice.NewSequence(0.5), zap.NewNop()), zap.NewNop())

	startAll(t, svc, "c1", "c1", "c1", "c1")

	assert.Equal(t, 1, tx.maxInFlight())
	active := 0
	for _, s := range store.SessionsFor("c1") {
		if s.Active {
			active++
		} else {
			assert.Equal(t, dungeon.StateAbandoned, s.State)
		}
	}
	assert.Equal(t, 1, active)
	assert.Len(t, store.SessionsFor("c1"), 4)
}

func TestService_ParallelAcrossCharacters(t *testing.T) {
	store := memory.New()
	store.Put(hero("c1", 1))
	store.Put(hero("c2", 1))
	tx := newGatedTx(store, 5*time.Second)
	svc := dungeon.NewService(catalogtest.Fixture(t), tx, dice.NewLoggedRoller(dice.NewSequence(0.5), zap.NewNop()), zap.NewNop())

	begin := time.Now()
	startAll(t, svc, "c1", "c2")

	assert.Equal(t, 2, tx.maxInFlight())
	assert.Less(t, time.Since(begin), 5*time.Second)
	for _, id := range []string{"c1", "c2"} {
		_, err := svc.Active(context.Background(), id)
		assert.NoError(t, err)
	}
}
