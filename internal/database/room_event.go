// internal/database/room_event.go
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/scribble/internal/models"
)

var roomEventColumns = []string{"room_id", "player_id", "event_type", "members", "occurred_at"}

// RoomEvents archives room lifecycle events.
type RoomEvents struct {
	pool *pgxpool.Pool
}

func NewRoomEvents(pool *pgxpool.Pool) *RoomEvents {
	return &RoomEvents{pool: pool}
}

// InsertRoomEvents bulk-copies events into room_events and returns the row count.
func (s *RoomEvents) InsertRoomEvents(ctx context.Context, events []models.RoomEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	n, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"room_events"},
		roomEventColumns,
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			return roomEventRow(events[i]), nil
		}),
	)
	if err != nil {
		return n, fmt.Errorf("failed to copy room events: %w", err)
	}
	return n, nil
}

// roomEventRow flattens ev into column order. Room-level events carry no player.
func roomEventRow(ev models.RoomEvent) []any {
	var player any
	if ev.PlayerID != uuid.Nil {
		player = ev.PlayerID
	}
	at := time.Now().UTC()
	if ev.Timestamp > 0 {
		at = time.UnixMilli(ev.Timestamp).UTC()
	}
	return []any{ev.RoomID, player, string(ev.Type), ev.Members, at}
}
