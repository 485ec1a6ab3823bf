package encounter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/catalog/catalogtest"
	"github.com/cory-johannsen/crawl/internal/game/combat"
	"github.com/cory-johannsen/crawl/internal/game/dice"
	"github.com/cory-johannsen/crawl/internal/game/encounter"
)

func newGenerator(t *testing.T, src dice.Source, opts ...encounter.Option) (*encounter.Generator, *catalog.Catalog) {
	t.Helper()
	cat := catalogtest.Fixture(t)
	return encounter.NewGenerator(cat, dice.NewLoggedRoller(src, zap.NewNop()), zap.NewNop(), opts...), cat
}

func dungeon(t *testing.T, cat *catalog.Catalog, id string) *catalog.DungeonDef {
	t.Helper()
	d, err := cat.Dungeon(id)
	require.NoError(t, err)
	return d
}

func TestGenerate_Monster(t *testing.T) {
	g, cat := newGenerator(t, dice.NewSequence(0.1, 0.6))
	enc, err := g.Generate(dungeon(t, cat, "cellar"), 1)
	require.NoError(t, err)
	assert.Equal(t, encounter.KindMonster, enc.Kind)
	require.NotNil(t, enc.Monster)
	assert.Equal(t, "goblin", enc.Monster.DefID)
	assert.Equal(t, enc.Monster.MaxHealth, enc.Monster.Health)
	assert.Nil(t, enc.Treasure)
	assert.Nil(t, enc.Event)
}

func TestGenerate_MonsterLevelFilter(t *testing.T) {
	tests := []struct {
		dungeon string
		floor   int
		draw    float64
		want    string
	}{
		{"crypt", 1, 0.99, "goblin"},  // window [1,3] excludes the level 12 ogre
		{"crypt", 11, 0.0, "ogre"},    // window [10,13] excludes the goblin
		{"cellar", 10, 0.0, "slime"},  // nothing in [9,12]: full list
		{"cellar", 10, 0.99, "goblin"},
		{"cellar", 1, 0.0, "slime"},
	}
	for _, tc := range tests {
		g, cat := newGenerator(t, dice.NewSequence(0.1, tc.draw))
		enc, err := g.Generate(dungeon(t, cat, tc.dungeon), tc.floor)
		require.NoError(t, err)
		assert.Equal(t, tc.want, enc.Monster.DefID, "%s floor %d", tc.dungeon, tc.floor)
	}
}

func TestGenerate_Treasure(t *testing.T) {
	tests := []struct {
		name  string
		draws []float64
		want  encounter.Treasure
		tag   string
	}{
		// 50 + 2*25 + int(0.5*101)
		{"gold", []float64{0.75, 0.1, 0.5}, encounter.Treasure{Kind: encounter.TreasureGold, Gold: 150}, "gold"},
		// 25 + 2*15 + int(0.5*51)
		{"xp", []float64{0.75, 0.5, 0.5}, encounter.Treasure{Kind: encounter.TreasureXP, XP: 80}, "xp"},
		{"item", []float64{0.75, 0.9}, encounter.Treasure{Kind: encounter.TreasureItem, ItemID: "gem", Quantity: 1}, "item:gem"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g, cat := newGenerator(t, dice.NewSequence(tc.draws...))
			enc, err := g.Generate(dungeon(t, cat, "cellar"), 2)
			require.NoError(t, err)
			require.Equal(t, encounter.KindTreasure, enc.Kind)
			assert.Equal(t, tc.want, *enc.Treasure)
			assert.Equal(t, tc.tag, enc.Treasure.Tag())
		})
	}
}

func TestGenerate_Event(t *testing.T) {
	g, cat := newGenerator(t, dice.NewSequence(0.95, 0.6))
	enc, err := g.Generate(dungeon(t, cat, "cellar"), 1)
	require.NoError(t, err)
	assert.Equal(t, encounter.KindEvent, enc.Kind)
	assert.Equal(t, "shrine", enc.Event.ID)
}

func TestGenerate_UnknownMonsterFails(t *testing.T) {
	g, _ := newGenerator(t, dice.NewSequence(0.1))
	d := &catalog.DungeonDef{ID: "broken", Name: "Broken", MinLevel: 1, MaxFloors: 1, Monsters: []string{"wyrm"}, TreasureItem: "gem"}
	_, err := g.Generate(d, 1)
	assert.ErrorIs(t, err, catalog.ErrMonsterNotFound)
}

func TestProperty_WeightsHoldOverManyRooms(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		g, cat := newGenerator(t, dice.NewSeededSource(seed))
		d := dungeon(t, cat, "cellar")
		floor := rapid.IntRange(1, 2).Draw(rt, "floor")
		counts := map[encounter.Kind]int{}
		const n = 4000
		for range n {
			enc, err := g.Generate(d, floor)
			require.NoError(rt, err)
			counts[enc.Kind]++
		}
		assert.InDelta(rt, 0.70, float64(counts[encounter.KindMonster])/n, 0.04)
		assert.InDelta(rt, 0.20, float64(counts[encounter.KindTreasure])/n, 0.04)
		assert.InDelta(rt, 0.10, float64(counts[encounter.KindEvent])/n, 0.04)
	})
}

func TestProperty_TreasureAmountsInRange(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		floor := rapid.IntRange(1, 20).Draw(rt, "floor")
		kind := rapid.Float64Range(0, 0.699999).Draw(rt, "kind")
		amount := rapid.Float64Range(0, 0.999999).Draw(rt, "amount")
		g, cat := newGenerator(t, dice.NewSequence(0.8, kind, amount))
		enc, err := g.Generate(dungeon(t, cat, "cellar"), floor)
		require.NoError(rt, err)
		tr := enc.Treasure
		switch tr.Kind {
		case encounter.TreasureGold:
			assert.GreaterOrEqual(rt, tr.Gold, 50+floor*25)
			assert.LessOrEqual(rt, tr.Gold, 150+floor*25)
		case encounter.TreasureXP:
			assert.GreaterOrEqual(rt, tr.XP, 25+floor*15)
			assert.LessOrEqual(rt, tr.XP, 75+floor*15)
		default:
			rt.Fatalf("unexpected treasure kind %v", tr.Kind)
		}
	})
}

func TestResolveEvent_Heal(t *testing.T) {
	g, cat := newGenerator(t, dice.NewSequence(0.5))
	ev, err := cat.Event("fountain")
	require.NoError(t, err)

	out, err := g.ResolveEvent(ev, "drink", encounter.EventState{Health: 90, MaxHealth: 100, Mana: 3, MaxMana: 10})
	require.NoError(t, err)
	assert.Equal(t, 100, out.Health, "capped at max")
	assert.Equal(t, 3, out.Mana)
	assert.Zero(t, out.Gold)
}

func TestResolveEvent_RestoreMana(t *testing.T) {
	// 2d6+5 with both dice at int(0.5*6)+1 = 4 -> 13
	g, cat := newGenerator(t, dice.NewSequence(0.5))
	ev, err := cat.Event("shrine")
	require.NoError(t, err)

	out, err := g.ResolveEvent(ev, "pray", encounter.EventState{Health: 40, MaxHealth: 100, Mana: 5, MaxMana: 30})
	require.NoError(t, err)
	assert.Equal(t, 18, out.Mana)
	assert.Equal(t, 40, out.Health)
	assert.Contains(t, out.Message, "13 mana")
}

func TestResolveEvent_None(t *testing.T) {
	seq := dice.NewSequence(0.5)
	g, cat := newGenerator(t, seq)
	ev, err := cat.Event("shrine")
	require.NoError(t, err)

	out, err := g.ResolveEvent(ev, "leave", encounter.EventState{Health: 40, MaxHealth: 100, Mana: 5, MaxMana: 30})
	require.NoError(t, err)
	assert.Equal(t, 40, out.Health)
	assert.Equal(t, 5, out.Mana)
	assert.Zero(t, seq.Drawn())
}

func TestResolveEvent_UnknownChoice(t *testing.T) {
	seq := dice.NewSequence(0.5)
	g, cat := newGenerator(t, seq)
	ev, err := cat.Event("fountain")
	require.NoError(t, err)

	_, err = g.ResolveEvent(ev, "swim", encounter.EventState{Health: 1, MaxHealth: 10})
	assert.ErrorIs(t, err, combat.ErrInvalidAction)
	assert.Zero(t, seq.Drawn())
}

type fakeScripts struct {
	got encounter.ScriptInput
	out encounter.ScriptOutput
}

func (f *fakeScripts) RunEventHook(dungeonID, hook string, in encounter.ScriptInput) (encounter.ScriptOutput, error) {
	f.got = in
	return f.out, nil
}

func scriptedEvent() *catalog.EventDef {
	return &catalog.EventDef{
		ID: "chest", Title: "A Chest",
		Choices: []catalog.EventChoice{
			{ID: "open", Label: "Open it", Effect: catalog.EventEffect{Kind: catalog.EventScript, Hook: "open_chest"}},
			{ID: "leave", Label: "Leave it", Effect: catalog.EventEffect{Kind: catalog.EventNone}},
		},
	}
}

func TestResolveEvent_Script(t *testing.T) {
	scripts := &fakeScripts{out: encounter.ScriptOutput{HealthDelta: -500, GoldDelta: 40, XPDelta: -5, Message: "A trap!"}}
	g, _ := newGenerator(t, dice.NewSequence(0.5), encounter.WithScripts(scripts))

	out, err := g.ResolveEvent(scriptedEvent(), "open", encounter.EventState{
		CharacterID: "c1", DungeonID: "cellar", Floor: 2, Health: 30, MaxHealth: 100, Mana: 5, MaxMana: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Health)
	assert.Equal(t, 40, out.Gold)
	assert.Equal(t, 0, out.XP)
	assert.Equal(t, "A trap!", out.Message)
	assert.Equal(t, "cellar", scripts.got.DungeonID)
	assert.Equal(t, 2, scripts.got.Floor)
	assert.Equal(t, "open", scripts.got.ChoiceID)
}

func TestResolveEvent_ScriptDisabled(t *testing.T) {
	g, _ := newGenerator(t, dice.NewSequence(0.5))
	_, err := g.ResolveEvent(scriptedEvent(), "open", encounter.EventState{Health: 1, MaxHealth: 10})
	assert.ErrorIs(t, err, encounter.ErrScriptsDisabled)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "monster", encounter.KindMonster.String())
	assert.Equal(t, "treasure", encounter.KindTreasure.String())
	assert.Equal(t, "event", encounter.KindEvent.String())
	assert.Equal(t, "unknown", encounter.Kind(9).String())
}
