package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sirfilior/jass/internal/cache"
)

// InsertPlayRecords batch-inserts archived play records from the historian
// queue into the room_plays table.
func InsertPlayRecords(ctx context.Context, records []cache.PlayRecord) error {
	if len(records) == 0 {
		return nil
	}

	q := `INSERT INTO room_plays (room_key, action_index, actor_id, action_type, payload, played_at)
	      VALUES ($1, $2, $3, $4, $5, to_timestamp($6 / 1000.0))`

	return pgx.BeginTxFunc(ctx, DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, rec := range records {
			payload, err := json.Marshal(rec.Payload)
			if err != nil {
				return fmt.Errorf("failed to marshal payload for %s/%d: %w", rec.RoomKey, rec.ActionIndex, err)
			}
			if _, err := tx.Exec(ctx, q,
				rec.RoomKey, rec.ActionIndex, rec.ActorID, rec.ActionType, payload, rec.Timestamp,
			); err != nil {
				return fmt.Errorf("failed to insert play record %s/%d: %w", rec.RoomKey, rec.ActionIndex, err)
			}
		}
		return nil
	})
}
