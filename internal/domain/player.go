package domain

import "time"

// PlayerStatus is the provider-side account state of a player.
type PlayerStatus string

const (
	PlayerActive    PlayerStatus = "active"
	PlayerSuspended PlayerStatus = "suspended"
)

// Player represents a players row. Currency is immutable once created.
// Token is the launch token for Provider; each provider keeps its own.
type Player struct {
	PlayID    string       `json:"play_id"`
	Username  string       `json:"username"`
	Currency  string       `json:"currency"`
	Provider  string       `json:"provider"`
	Status    PlayerStatus `json:"status"`
	Token     string       `json:"-"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
