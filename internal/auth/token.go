// internal/auth/token.go
package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any token that fails signature, expiry or shape checks.
var ErrInvalidToken = errors.New("invalid token")

const (
	kindPlayer = "player"
	kindRoom   = "room"
)

// Claims carries the token subject (a player ID) and, for room tokens, the room ID.
type Claims struct {
	Kind   string `json:"kind"`
	RoomID string `json:"room,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies player and room tokens with an ed25519 key pair.
// A TTL of zero issues tokens without an exp claim.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
	playerTTL  time.Duration
	roomTTL    time.Duration
}

// NewIssuer generates a fresh ed25519 key pair. Tokens do not survive a restart.
func NewIssuer(playerTTL, roomTTL time.Duration) (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub, playerTTL: playerTTL, roomTTL: roomTTL}, nil
}

// NewIssuerFromFile reads a base64 ed25519 seed from path.
func NewIssuerFromFile(path string, playerTTL, roomTTL time.Duration) (*Issuer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	seed, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("private key seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Issuer{
		privateKey: priv,
		publicKey:  priv.Public().(ed25519.PublicKey),
		playerTTL:  playerTTL,
		roomTTL:    roomTTL,
	}, nil
}

// PlayerTTL is the lifetime of player tokens, zero meaning they never expire.
func (i *Issuer) PlayerTTL() time.Duration {
	return i.playerTTL
}

// CreatePlayerToken issues the bearer token returned by register and login.
func (i *Issuer) CreatePlayerToken(playerID uuid.UUID) (string, error) {
	return i.sign(Claims{Kind: kindPlayer}, playerID, i.playerTTL)
}

// CreateRoomToken issues the room-scoped token a client presents when opening its socket.
func (i *Issuer) CreateRoomToken(roomID, playerID uuid.UUID) (string, error) {
	return i.sign(Claims{Kind: kindRoom, RoomID: roomID.String()}, playerID, i.roomTTL)
}

// VerifyPlayerToken returns the player ID carried by a valid player token.
func (i *Issuer) VerifyPlayerToken(token string) (uuid.UUID, error) {
	claims, err := i.parse(token, kindPlayer)
	if err != nil {
		return uuid.Nil, err
	}
	return subject(claims)
}

// VerifyRoomToken returns the room and player IDs carried by a valid room token.
func (i *Issuer) VerifyRoomToken(token string) (roomID, playerID uuid.UUID, err error) {
	claims, err := i.parse(token, kindRoom)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	playerID, err = subject(claims)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	roomID, err = uuid.Parse(claims.RoomID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%w: malformed room id", ErrInvalidToken)
	}
	return roomID, playerID, nil
}

func (i *Issuer) sign(claims Claims, playerID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.Subject = playerID.String()
	claims.IssuedAt = jwt.NewNumericDate(now)
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

func (i *Issuer) parse(tokenString, kind string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !t.Valid || claims.Kind != kind {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func subject(claims *Claims) (uuid.UUID, error) {
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed subject", ErrInvalidToken)
	}
	return id, nil
}
