package database

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jason-s-yu/scribble/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "players_email_key"}
	assert.True(t, isUniqueViolation(dup))
	assert.True(t, isUniqueViolation(fmt.Errorf("insert: %w", dup)))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, isUniqueViolation(nil))
}

func TestRoomEventRow(t *testing.T) {
	roomID, playerID := uuid.New(), uuid.New()
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	row := roomEventRow(models.RoomEvent{
		RoomID:    roomID,
		PlayerID:  playerID,
		Type:      models.RoomJoined,
		Members:   3,
		Timestamp: ts.UnixMilli(),
	})
	assert.Len(t, row, len(roomEventColumns))
	assert.Equal(t, []any{roomID, playerID, "joined", 3, ts}, row)

	row = roomEventRow(models.RoomEvent{RoomID: roomID, Type: models.RoomExpired})
	assert.Nil(t, row[1])
	assert.WithinDuration(t, time.Now(), row[4].(time.Time), time.Minute)
}

func TestConnectRequiresURL(t *testing.T) {
	_, err := Connect(context.Background(), "")
	assert.Error(t, err)
}
