package domain

import "time"

// User is an identity record. Password hash is empty for OAuth-only
// accounts; GoogleID is empty for local-only accounts.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	GoogleID     string
	DisplayName  string
	Approved     bool
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary is the user shape returned to clients. Never includes hashes.
type Summary struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Approved    bool   `json:"approved"`
	IsAdmin     bool   `json:"isAdmin,omitempty"`
}

// Summary returns the client-safe view of the user.
func (u User) Summary() Summary {
	return Summary{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Approved:    u.Approved,
		IsAdmin:     u.IsAdmin,
	}
}
