package sim_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/crawl/internal/game/catalog/catalogtest"
	"github.com/cory-johannsen/crawl/internal/game/character"
	"github.com/cory-johannsen/crawl/internal/game/dice"
	"github.com/cory-johannsen/crawl/internal/game/dungeon"
	"github.com/cory-johannsen/crawl/internal/sim"
	"github.com/cory-johannsen/crawl/internal/storage/memory"
)

func newSimulator(t *testing.T, seed uint64, params sim.Params) (*sim.Simulator, *memory.Store) {
	t.Helper()
	cat := catalogtest.Fixture(t)
	store := memory.New()
	logger := zap.NewNop()
	svc := dungeon.NewService(cat, store, dice.NewLoggedRoller(dice.NewSeededSource(seed), logger), logger)
	botRoller := dice.NewLoggedRoller(dice.NewSeededSource(seed+1), logger)
	return sim.New(svc, cat, store, botRoller, logger, params), store
}

func TestRun_EveryRunEnds(t *testing.T) {
	s, store := newSimulator(t, 7, sim.Params{Bots: 3, Runs: 4, Dungeon: "cellar", MaxTurns: 30})

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, sum.Runs)
	assert.Equal(t, sum.Runs, sum.Completed+sum.Fled+sum.Defeated)
	assert.GreaterOrEqual(t, sum.MaxLevel, 1)
	assert.Positive(t, sum.Rooms)

	for _, id := range []string{"bot-01", "bot-02", "bot-03"} {
		c, err := store.Load(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, character.LevelForXP(c.Experience), c.Level)

		for _, sess := range store.SessionsFor(id) {
			assert.False(t, sess.Active, "session %s", sess.ID)
			assert.True(t, sess.State.Terminal(), "session %s in %s", sess.ID, sess.State)
		}
		assert.Len(t, store.SessionsFor(id), 4)
	}
}

func TestRun_LevelRequirement(t *testing.T) {
	s, _ := newSimulator(t, 1, sim.Params{Bots: 1, Runs: 1, Dungeon: "crypt"})
	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, dungeon.ErrLevelRequirementNotMet)
}

func TestRun_HighLevelBotsEnterCrypt(t *testing.T) {
	s, _ := newSimulator(t, 3, sim.Params{Bots: 2, Runs: 2, Dungeon: "crypt", Level: 10})
	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Runs)
	assert.GreaterOrEqual(t, sum.MaxLevel, 10)
}

func TestRun_CancelledContext(t *testing.T) {
	s, _ := newSimulator(t, 1, sim.Params{Bots: 2, Runs: 5, Dungeon: "cellar"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Run(ctx)
	assert.ErrorIs(t, err, sim.ErrStopped)
}

func TestRun_DuplicateBots(t *testing.T) {
	s, store := newSimulator(t, 1, sim.Params{Bots: 1, Runs: 1, Dungeon: "cellar"})
	store.Put(sim.NewCharacter("bot-01", 1))
	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, character.ErrExists)
}

func TestNewCharacter_Property_LevelMatchesExperience(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		level := rapid.IntRange(1, 30).Draw(rt, "level")
		c := sim.NewCharacter("b", level)
		assert.Equal(rt, level, c.Level)
		assert.Equal(rt, character.LevelForXP(c.Experience), c.Level)
		assert.Equal(rt, c.MaxHealth, c.Health)
		assert.Equal(rt, c.MaxMana, c.Mana)
	})
}
