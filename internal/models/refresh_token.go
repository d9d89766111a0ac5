package models

import (
	"time"
)

// RefreshToken is a stored long-lived session credential. Tokens rotate on
// every refresh; the superseded row is revoked rather than deleted so reuse of
// an old token is detectable.
type RefreshToken struct {
	BaseModel
	UserID    string    `gorm:"size:36;index" json:"userId"`
	Token     string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsRevoked bool      `gorm:"default:false" json:"isRevoked"`

	User User `gorm:"foreignKey:UserID" json:"-"`
}

// Revoke marks the token unusable from now on.
func (t *RefreshToken) Revoke(now time.Time) {
	t.IsRevoked = true
	t.ExpiresAt = now
}
