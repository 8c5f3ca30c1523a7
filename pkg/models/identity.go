package models

import "time"

// Identity is a registered user record.
type Identity struct {
	Key           string    `json:"identityKey"`
	Verifier      string    `json:"-"` // bcrypt hash, never sent to clients
	Subscriptions []string  `json:"subscriptions"`
	CreatedAt     time.Time `json:"createdAt"`
}
