package dungeon

import (
	"context"

	"go.uber.org/zap"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/character"
	"github.com/cory-johannsen/crawl/internal/game/encounter"
	"github.com/cory-johannsen/crawl/internal/game/reward"
)

// run carries one operation's state inside its transaction.
type run struct {
	svc     *Service
	st      Stores
	sess    *Session
	dungeon *catalog.DungeonDef
	res     *RoomResult
}

func (r *run) save(ctx context.Context) error {
	r.sess.UpdatedAt = r.svc.now()
	if err := r.st.Sessions.Save(ctx, r.sess); err != nil {
		return err
	}
	r.res.Session = r.sess
	return nil
}

// settle credits g and folds the result into the room result. A level-up's
// full heal is carried into the session snapshot.
func (r *run) settle(ctx context.Context, g reward.Grant) error {
	if g.IsZero() {
		return nil
	}
	got, err := r.svc.settler.Settle(ctx, r.st.Characters, r.sess.CharacterID, g)
	if err != nil {
		return err
	}
	if got.LevelsGained > 0 {
		r.sess.Health = got.Health
		r.sess.Mana = got.Mana
	}
	if prev := r.res.Settlement; prev != nil {
		got.Grant = prev.Grant.Add(got.Grant)
		got.LevelsGained += prev.LevelsGained
	}
	r.res.Settlement = &got
	return nil
}

// clearRoom counts the current room as cleared and handles floor and dungeon
// completion.
func (r *run) clearRoom(ctx context.Context) error {
	s := r.sess
	s.RoomsCleared++
	r.res.RoomCleared = true
	if s.RoomsCleared < s.TotalRooms {
		return nil
	}

	if s.Floor >= r.dungeon.MaxFloors {
		gold, xp := CompletionBonus(s.Floor, r.dungeon.Rewards.GoldPerFloor, r.dungeon.Rewards.XPPerFloor)
		if err := r.settle(ctx, reward.Grant{Gold: gold, XP: xp}); err != nil {
			return err
		}
		s.Active = false
		s.State = StateCompleted
		r.res.Completed = true
		r.svc.logger.Info("dungeon completed",
			zap.String("character_id", s.CharacterID),
			zap.String("session_id", s.ID),
			zap.String("dungeon_id", s.DungeonID),
			zap.Int("floor", s.Floor),
			zap.Int("gold", gold),
			zap.Int("xp", xp),
		)
		return nil
	}

	s.Floor++
	s.RoomsCleared = 0
	s.TotalRooms = RoomsForFloor(s.Floor)
	r.res.FloorAdvanced = true
	r.svc.logger.Info("floor advanced",
		zap.String("character_id", s.CharacterID),
		zap.String("session_id", s.ID),
		zap.String("dungeon_id", s.DungeonID),
		zap.Int("floor", s.Floor),
		zap.Int("rooms", s.TotalRooms),
	)
	return nil
}

// resolveEvent applies choice to ev, commits the new pools and any scripted
// grants, then clears the room. Health is kept at 1 or more outside combat.
func (r *run) resolveEvent(ctx context.Context, ev *catalog.EventDef, choice string) error {
	s := r.sess
	c, err := r.st.Characters.Load(ctx, s.CharacterID)
	if err != nil {
		return err
	}
	stats, err := character.Derive(c, r.svc.cat)
	if err != nil {
		return err
	}
	out, err := r.svc.gen.ResolveEvent(ev, choice, encounter.EventState{
		CharacterID: s.CharacterID,
		DungeonID:   s.DungeonID,
		Floor:       s.Floor,
		Health:      s.Health,
		MaxHealth:   stats.MaxHealth,
		Mana:        s.Mana,
		MaxMana:     stats.MaxMana,
	})
	if err != nil {
		return err
	}
	out.Health = max(1, out.Health)
	r.res.Outcome = &out

	s.Health = out.Health
	s.Mana = out.Mana
	s.PendingEvent = ""
	if err := r.st.Characters.Save(ctx, s.CharacterID, character.Update{
		Health: character.Ptr(s.Health),
		Mana:   character.Ptr(s.Mana),
	}); err != nil {
		return err
	}
	if err := r.settle(ctx, reward.Grant{Gold: out.Gold, XP: out.XP}); err != nil {
		return err
	}
	if err := r.clearRoom(ctx); err != nil {
		return err
	}
	return r.save(ctx)
}
