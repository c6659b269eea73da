package models

import (
	"time"

	"github.com/google/uuid"
)

// Player is a registered account. Password holds the Argon2id hash once stored.
type Player struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
