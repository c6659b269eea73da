// internal/database/player.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/scribble/internal/auth"
	"github.com/jason-s-yu/scribble/internal/models"
)

// Players is the account store backing registration, login and display names.
type Players struct {
	pool   *pgxpool.Pool
	hasher auth.Hasher
}

func NewPlayers(pool *pgxpool.Pool, hasher auth.Hasher) *Players {
	return &Players{pool: pool, hasher: hasher}
}

// CreatePlayer hashes p.Password and inserts the player, assigning an ID if it has none.
func (s *Players) CreatePlayer(ctx context.Context, p *models.Player) error {
	if p.ID == uuid.Nil {
		id, err := uuid.NewRandom()
		if err != nil {
			return fmt.Errorf("failed to generate player id: %w", err)
		}
		p.ID = id
	}

	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	p.Password = hash
	p.CreatedAt = time.Now().UTC()

	q := `INSERT INTO players (id, email, username, password, created_at)
	      VALUES ($1, $2, $3, $4, $5)`

	err = pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		_, execErr := tx.Exec(ctx, q, p.ID, p.Email, p.Username, p.Password, p.CreatedAt)
		return execErr
	})
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert player: %w", err)
	}
	return nil
}

func (s *Players) GetPlayerByEmail(ctx context.Context, email string) (*models.Player, error) {
	return s.getPlayer(ctx, `SELECT id, email, username, password, created_at FROM players WHERE email=$1`, email)
}

func (s *Players) GetPlayerByID(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	return s.getPlayer(ctx, `SELECT id, email, username, password, created_at FROM players WHERE id=$1`, id)
}

func (s *Players) getPlayer(ctx context.Context, q string, arg any) (*models.Player, error) {
	var p models.Player
	err := s.pool.QueryRow(ctx, q, arg).Scan(&p.ID, &p.Email, &p.Username, &p.Password, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load player: %w", err)
	}
	return &p, nil
}

// AuthenticatePlayer returns the player whose email and password match.
// Unknown emails and wrong passwords both yield ErrInvalidCredentials.
func (s *Players) AuthenticatePlayer(ctx context.Context, email, password string) (*models.Player, error) {
	p, err := s.GetPlayerByEmail(ctx, email)
	if errors.Is(err, ErrPlayerNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	match, err := s.hasher.Compare(password, p.Password)
	if err != nil || !match {
		return nil, ErrInvalidCredentials
	}
	return p, nil
}

// DeletePlayer removes the account after re-checking its password.
func (s *Players) DeletePlayer(ctx context.Context, id uuid.UUID, password string) error {
	p, err := s.GetPlayerByID(ctx, id)
	if err != nil {
		return err
	}
	match, err := s.hasher.Compare(password, p.Password)
	if err != nil || !match {
		return ErrInvalidCredentials
	}

	tag, err := s.pool.Exec(ctx, `DELETE FROM players WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

// GetUsernames looks up usernames for ids in one round trip. Unknown ids are
// absent from the result.
func (s *Players) GetUsernames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	out := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}

	rows, err := s.pool.Query(ctx, `SELECT id, username FROM players WHERE id = ANY($1::uuid[])`, strIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query usernames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   uuid.UUID
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return out, fmt.Errorf("failed to scan username: %w", err)
		}
		out[id] = name
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("failed to read usernames: %w", err)
	}
	return out, nil
}
