// Package domain contains the account and course access types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is a course customer. Users are only created as a side effect of a
// verified payment.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Email        string       `gorm:"column:email;type:text;not null;uniqueIndex"`
	PasswordHash *string      `gorm:"column:password_hash;type:text"`
	CreatedAt    time.Time    `gorm:"column:created_at;not null"`
	UpdatedAt    time.Time    `gorm:"column:updated_at;not null"`
}

func (User) TableName() string { return "users" }

// MagicLink is a single-use login token. Only the SHA-256 of the token is
// stored.
type MagicLink struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	UserID     snowflake.ID `gorm:"column:user_id;not null;index"`
	TokenHash  string       `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	ExpiresAt  time.Time    `gorm:"column:expires_at;not null"`
	ConsumedAt *time.Time   `gorm:"column:consumed_at"`
	CreatedAt  time.Time    `gorm:"column:created_at;not null"`
}

func (MagicLink) TableName() string { return "magic_links" }

// Usable reports whether the link can still be exchanged for a session.
func (m MagicLink) Usable(now time.Time) bool {
	return m.ConsumedAt == nil && now.Before(m.ExpiresAt)
}

// AccessGrant gives a user course access. A nil EndsAt is perpetual.
type AccessGrant struct {
	UserID    snowflake.ID `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	GrantedAt time.Time    `gorm:"column:granted_at;not null"`
	EndsAt    *time.Time   `gorm:"column:ends_at"`
}

func (AccessGrant) TableName() string { return "access_grants" }

func (g AccessGrant) Active(now time.Time) bool {
	return g.EndsAt == nil || now.Before(*g.EndsAt)
}

type Session struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	UserID     snowflake.ID `gorm:"column:user_id;not null;index"`
	TokenHash  string       `gorm:"column:token_hash;type:text;not null;uniqueIndex"`
	UserAgent  string       `gorm:"column:user_agent;type:text"`
	IPAddress  string       `gorm:"column:ip_address;type:text"`
	ExpiresAt  time.Time    `gorm:"column:expires_at;not null;index"`
	RevokedAt  *time.Time   `gorm:"column:revoked_at"`
	CreatedAt  time.Time    `gorm:"column:created_at;not null"`
	LastSeenAt time.Time    `gorm:"column:last_seen_at;not null"`
}

func (Session) TableName() string { return "sessions" }
