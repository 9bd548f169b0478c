package database

import (
	"context"
	"database/sql"
	"time"
)

const cardRepoTimeout = 2 * time.Second

// CardRepository persists the per-guild player card location so it survives
// restarts.
type CardRepository struct {
	db *sql.DB
}

func NewCardRepository() *CardRepository {
	return &CardRepository{db: GetDB()}
}

func (r *CardRepository) UpsertPlayerCard(guildID, channelID, messageID string) error {
	if r == nil || r.db == nil {
		return nil
	}
	if guildID == "" || channelID == "" || messageID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cardRepoTimeout)
	defer cancel()

	const query = `
		INSERT INTO player_cards (guild_id, channel_id, message_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (guild_id)
		DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			message_id = EXCLUDED.message_id,
			updated_at = NOW();
	`

	_, err := r.db.ExecContext(ctx, query, guildID, channelID, messageID)
	return err
}

func (r *CardRepository) GetPlayerCard(guildID string) (string, string, bool, error) {
	if r == nil || r.db == nil {
		return "", "", false, nil
	}
	if guildID == "" {
		return "", "", false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cardRepoTimeout)
	defer cancel()

	const query = `
		SELECT channel_id, message_id
		FROM player_cards
		WHERE guild_id = $1
	`

	var channelID, messageID string
	err := r.db.QueryRowContext(ctx, query, guildID).Scan(&channelID, &messageID)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", "", false, nil
		}
		return "", "", false, err
	}

	return channelID, messageID, true, nil
}

func (r *CardRepository) DeletePlayerCard(guildID string) error {
	if r == nil || r.db == nil {
		return nil
	}
	if guildID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), cardRepoTimeout)
	defer cancel()

	const query = `
		DELETE FROM player_cards
		WHERE guild_id = $1
	`

	_, err := r.db.ExecContext(ctx, query, guildID)
	return err
}
