package combat

import "fmt"

// ActionKind identifies what the character does on their turn.
// The zero value (ActionUnknown) is intentionally invalid.
type ActionKind int

const (
	ActionUnknown ActionKind = iota // zero value; intentionally invalid
	ActionAttack
	ActionDefend
	ActionSkill
	ActionItem
)

// String returns the human-readable name of the ActionKind.
// Postcondition: returns "attack", "defend", "skill", "item", or "unknown".
func (k ActionKind) String() string {
	switch k {
	case ActionAttack:
		return "attack"
	case ActionDefend:
		return "defend"
	case ActionSkill:
		return "skill"
	case ActionItem:
		return "item"
	default:
		return "unknown"
	}
}

// ParseActionKind maps a name produced by String back to its ActionKind.
//
// Postcondition: Returns ActionUnknown and an error wrapping ErrInvalidAction
// for any other name.
func ParseActionKind(s string) (ActionKind, error) {
	for _, k := range []ActionKind{ActionAttack, ActionDefend, ActionSkill, ActionItem} {
		if k.String() == s {
			return k, nil
		}
	}
	return ActionUnknown, fmt.Errorf("%w: unknown action kind %q", ErrInvalidAction, s)
}

// Action is one turn's choice. SkillID is read only for ActionSkill and ItemID
// only for ActionItem.
type Action struct {
	Kind    ActionKind
	SkillID string
	ItemID  string
}

// Attack returns a plain weapon attack.
func Attack() Action { return Action{Kind: ActionAttack} }

// Defend returns a defend action.
func Defend() Action { return Action{Kind: ActionDefend} }

// UseSkill returns an action casting skill id.
func UseSkill(id string) Action { return Action{Kind: ActionSkill, SkillID: id} }

// UseItem returns an action consuming one unit of item id.
func UseItem(id string) Action { return Action{Kind: ActionItem, ItemID: id} }

// Validate checks the shape of the action without consulting any state.
//
// Postcondition: Returns nil or an error wrapping ErrInvalidAction.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionAttack, ActionDefend:
		return nil
	case ActionSkill:
		if a.SkillID == "" {
			return fmt.Errorf("%w: skill action requires a skill id", ErrInvalidAction)
		}
		return nil
	case ActionItem:
		if a.ItemID == "" {
			return fmt.Errorf("%w: item action requires an item id", ErrInvalidAction)
		}
		return nil
	default:
		return fmt.Errorf("%w: action kind %q", ErrInvalidAction, a.Kind)
	}
}

// String describes the action.
func (a Action) String() string {
	switch a.Kind {
	case ActionSkill:
		return "skill:" + a.SkillID
	case ActionItem:
		return "item:" + a.ItemID
	default:
		return a.Kind.String()
	}
}
