package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/cory-johannsen/crawl/internal/game/catalog"
	"github.com/cory-johannsen/crawl/internal/game/character"
)

// ErrCharacterExists is returned when creating a character whose id is taken.
var ErrCharacterExists = character.ErrExists

// CharacterRepository provides character persistence operations. Inside a
// transaction Load and Save lock the character row, serializing concurrent
// read-modify-write cycles on the same character.
type CharacterRepository struct {
	q querier
}

// NewCharacterRepository creates a CharacterRepository on q, a pool or a
// transaction.
//
// Precondition: q must be non-nil.
func NewCharacterRepository(q querier) *CharacterRepository {
	return &CharacterRepository{q: q}
}

// Create inserts c with its equipment, inventory and skills.
//
// Precondition: c.ID and c.Name must be non-empty; q should be a transaction
// so a failure leaves no partial rows.
// Postcondition: Returns nil, ErrCharacterExists on a duplicate id, or a non-nil error.
func (r *CharacterRepository) Create(ctx context.Context, c *character.Character) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO characters
			(id, name, level, experience, gold,
			 strength, intelligence, defense, agility, luck,
			 health, max_health, mana, max_mana)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		c.ID, c.Name, c.Level, c.Experience, c.Gold,
		c.Attributes.Strength, c.Attributes.Intelligence, c.Attributes.Defense,
		c.Attributes.Agility, c.Attributes.Luck,
		c.Health, c.MaxHealth, c.Mana, c.MaxMana,
	)
	if err != nil {
		if constraintViolation(err) != "" {
			return fmt.Errorf("character %q: %w", c.ID, ErrCharacterExists)
		}
		return fmt.Errorf("inserting character: %w", err)
	}

	for slot, itemID := range c.Equipment {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO character_equipment (character_id, slot, item_id) VALUES ($1, $2, $3)`,
			c.ID, string(slot), itemID,
		); err != nil {
			return fmt.Errorf("inserting equipment: %w", err)
		}
	}
	for itemID, qty := range c.Inventory {
		if qty <= 0 {
			continue
		}
		if _, err := r.q.Exec(ctx, `
			INSERT INTO character_inventory (character_id, item_id, quantity) VALUES ($1, $2, $3)`,
			c.ID, itemID, qty,
		); err != nil {
			return fmt.Errorf("inserting inventory: %w", err)
		}
	}
	for i, skillID := range c.Skills {
		if _, err := r.q.Exec(ctx, `
			INSERT INTO character_skills (character_id, skill_id, position) VALUES ($1, $2, $3)`,
			c.ID, skillID, i,
		); err != nil {
			return fmt.Errorf("inserting skill: %w", err)
		}
	}
	return nil
}

// Load retrieves a character by id.
//
// Postcondition: Returns the Character or an error wrapping character.ErrNotFound.
func (r *CharacterRepository) Load(ctx context.Context, id string) (*character.Character, error) {
	c := &character.Character{
		Equipment: make(map[catalog.Slot]string),
		Inventory: make(map[string]int),
	}
	err := r.q.QueryRow(ctx, `
		SELECT id, name, level, experience, gold,
		       strength, intelligence, defense, agility, luck,
		       health, max_health, mana, max_mana
		FROM characters WHERE id = $1
		FOR UPDATE`,
		id,
	).Scan(
		&c.ID, &c.Name, &c.Level, &c.Experience, &c.Gold,
		&c.Attributes.Strength, &c.Attributes.Intelligence, &c.Attributes.Defense,
		&c.Attributes.Agility, &c.Attributes.Luck,
		&c.Health, &c.MaxHealth, &c.Mana, &c.MaxMana,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("character %q: %w", id, character.ErrNotFound)
		}
		return nil, fmt.Errorf("querying character: %w", err)
	}

	rows, err := r.q.Query(ctx, `SELECT slot, item_id FROM character_equipment WHERE character_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("querying equipment: %w", err)
	}
	for rows.Next() {
		var slot, itemID string
		if err := rows.Scan(&slot, &itemID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning equipment row: %w", err)
		}
		c.Equipment[catalog.Slot(slot)] = itemID
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading equipment: %w", err)
	}

	rows, err = r.q.Query(ctx, `SELECT item_id, quantity FROM character_inventory WHERE character_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("querying inventory: %w", err)
	}
	for rows.Next() {
		var itemID string
		var qty int
		if err := rows.Scan(&itemID, &qty); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning inventory row: %w", err)
		}
		c.Inventory[itemID] = qty
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading inventory: %w", err)
	}

	rows, err = r.q.Query(ctx, `
		SELECT skill_id FROM character_skills WHERE character_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying skills: %w", err)
	}
	skills, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("reading skills: %w", err)
	}
	c.Skills = skills
	return c, nil
}

// Save applies u to character id with the shared character.Update semantics.
//
// Precondition: q should be a transaction; the loaded row stays locked until
// it ends.
// Postcondition: Returns nil, an error wrapping character.ErrNotFound, or a
// non-nil error.
func (r *CharacterRepository) Save(ctx context.Context, id string, u character.Update) error {
	c, err := r.Load(ctx, id)
	if err != nil {
		return err
	}
	before := c.Clone()
	u.Apply(c)

	if _, err := r.q.Exec(ctx, `
		UPDATE characters SET
			level = $2, experience = $3, gold = $4,
			strength = $5, intelligence = $6, defense = $7, agility = $8, luck = $9,
			health = $10, max_health = $11, mana = $12, max_mana = $13,
			updated_at = NOW()
		WHERE id = $1`,
		id, c.Level, c.Experience, c.Gold,
		c.Attributes.Strength, c.Attributes.Intelligence, c.Attributes.Defense,
		c.Attributes.Agility, c.Attributes.Luck,
		c.Health, c.MaxHealth, c.Mana, c.MaxMana,
	); err != nil {
		return fmt.Errorf("updating character: %w", err)
	}

	for itemID := range u.InventoryDelta {
		qty, held := c.Inventory[itemID]
		switch {
		case !held:
			if _, err := r.q.Exec(ctx, `
				DELETE FROM character_inventory WHERE character_id = $1 AND item_id = $2`,
				id, itemID,
			); err != nil {
				return fmt.Errorf("removing inventory item %q: %w", itemID, err)
			}
		case qty != before.Inventory[itemID]:
			if _, err := r.q.Exec(ctx, `
				INSERT INTO character_inventory (character_id, item_id, quantity) VALUES ($1, $2, $3)
				ON CONFLICT (character_id, item_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
				id, itemID, qty,
			); err != nil {
				return fmt.Errorf("updating inventory item %q: %w", itemID, err)
			}
		}
	}
	return nil
}
