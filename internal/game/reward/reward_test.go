package reward_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/catalog/catalogtest"
	"github.com/cory-johannsen/crawl/internal/game/character"
	"github.com/cory-johannsen/crawl/internal/game/reward"
)

// countingStore is a character.Store that records saves.
type countingStore struct {
	chars   map[string]*character.Character
	saves   int
	failErr error
}

func (s *countingStore) Load(_ context.Context, id string) (*character.Character, error) {
	c, ok := s.chars[id]
	if !ok {
		return nil, character.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *countingStore) Save(_ context.Context, id string, u character.Update) error {
	if s.failErr != nil {
		return s.failErr
	}
	s.saves++
	u.Apply(s.chars[id])
	return nil
}

func newStore(c *character.Character) *countingStore {
	return &countingStore{chars: map[string]*character.Character{c.ID: c}}
}

func novice() *character.Character {
	return &character.Character{
		ID: "c1", Name: "Ana", Level: 1,
		Attributes: character.Attributes{Strength: 10, Intelligence: 10},
		Health:     40, MaxHealth: 100, Mana: 5, MaxMana: 20,
		Equipment: map[catalog.Slot]string{catalog.SlotHead: "leather_cap"},
	}
}

func TestSettle_GoldAndItems(t *testing.T) {
	store := newStore(novice())
	s := reward.NewSettler(catalogtest.Fixture(t), zap.NewNop())

	got, err := s.Settle(context.Background(), store, "c1", reward.Grant{Gold: 25, XP: 30, Items: map[string]int{"gem": 2}})
	require.NoError(t, err)
	assert.Zero(t, got.LevelsGained)
	assert.Equal(t, 1, got.Level)
	assert.Equal(t, 40, got.Health)
	assert.Equal(t, 1, store.saves)

	c := store.chars["c1"]
	assert.Equal(t, 25, c.Gold)
	assert.Equal(t, 30, c.Experience)
	assert.Equal(t, 2, c.Inventory["gem"])
	assert.Equal(t, 40, c.Health, "no heal without a level-up")
}

func TestSettle_MultiLevelUp(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	store := newStore(novice())
	s := reward.NewSettler(catalogtest.Fixture(t), zap.New(core))

	// 450 xp crosses the level 2 (100) and level 3 (400) boundaries.
	got, err := s.Settle(context.Background(), store, "c1", reward.Grant{XP: 450})
	require.NoError(t, err)
	assert.Equal(t, 2, got.LevelsGained)
	assert.Equal(t, 3, got.Level)
	assert.Equal(t, 1, store.saves)

	c := store.chars["c1"]
	assert.Equal(t, 3, c.Level)
	assert.Equal(t, 14, c.Attributes.Strength)
	assert.Equal(t, 14, c.Attributes.Intelligence)
	assert.Equal(t, 2, c.Attributes.Defense)
	assert.Equal(t, 110, c.MaxHealth)
	assert.Equal(t, 26, c.MaxMana)
	// leather_cap adds 15 max health on top of the base.
	assert.Equal(t, 125, c.Health)
	assert.Equal(t, 26, c.Mana)
	assert.Equal(t, 125, got.Health)
	assert.Equal(t, 26, got.Mana)

	require.Equal(t, 1, logs.FilterMessage("level up").Len())
	fields := logs.FilterMessage("level up").All()[0].ContextMap()
	assert.EqualValues(t, 1, fields["from"])
	assert.EqualValues(t, 3, fields["to"])
}

func TestSettle_ZeroGrantSavesNothing(t *testing.T) {
	store := newStore(novice())
	s := reward.NewSettler(catalogtest.Fixture(t), zap.NewNop())

	got, err := s.Settle(context.Background(), store, "c1", reward.Grant{})
	require.NoError(t, err)
	assert.Zero(t, store.saves)
	assert.Equal(t, 40, got.Health)
	assert.Equal(t, 1, got.Level)
}

func TestSettle_Errors(t *testing.T) {
	s := reward.NewSettler(catalogtest.Fixture(t), zap.NewNop())
	ctx := context.Background()

	_, err := s.Settle(ctx, newStore(novice()), "ghost", reward.Grant{Gold: 1})
	assert.ErrorIs(t, err, character.ErrNotFound)

	boom := errors.New("disk full")
	store := newStore(novice())
	store.failErr = boom
	_, err = s.Settle(ctx, store, "c1", reward.Grant{Gold: 1})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, store.chars["c1"].Gold)

	broken := novice()
	broken.Equipment[catalog.SlotHead] = "crown"
	_, err = s.Settle(ctx, newStore(broken), "c1", reward.Grant{XP: 100})
	assert.ErrorIs(t, err, catalog.ErrItemNotFound)
}

func TestGrant_Add(t *testing.T) {
	a := reward.Grant{Gold: 5, Items: map[string]int{"gem": 1}}
	b := reward.Grant{XP: 7, Items: map[string]int{"gem": 2, "gel": 1}}
	sum := a.Add(b)
	assert.Equal(t, reward.Grant{Gold: 5, XP: 7, Items: map[string]int{"gem": 3, "gel": 1}}, sum)
	assert.Equal(t, 1, a.Items["gem"], "Add must not alias its receiver")
	assert.Nil(t, reward.Grant{Gold: 1}.Add(reward.Grant{XP: 1}).Items)
	assert.True(t, reward.Grant{}.IsZero())
}

func TestProperty_LevelMatchesCurve(t *testing.T) {
	cat := catalogtest.Fixture(t)
	rapid.Check(t, func(rt *rapid.T) {
		store := newStore(novice())
		s := reward.NewSettler(cat, zap.NewNop())
		grants := rapid.SliceOfN(rapid.IntRange(0, 5000), 1, 5).Draw(rt, "grants")
		total := 0
		for _, xp := range grants {
			_, err := s.Settle(context.Background(), store, "c1", reward.Grant{XP: xp})
			require.NoError(rt, err)
			total += xp
		}
		c := store.chars["c1"]
		assert.Equal(rt, character.LevelForXP(total), c.Level)
		assert.Equal(rt, 100+5*(c.Level-1), c.MaxHealth)
		assert.LessOrEqual(rt, c.Health, c.MaxHealth+15)
	})
}
