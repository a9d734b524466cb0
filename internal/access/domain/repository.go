package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository methods take the handle to run on so callers can compose them
// inside one transaction. Find methods return nil, nil when nothing matches.
type Repository interface {
	FindUserByEmail(ctx context.Context, db *gorm.DB, email string) (*User, error)
	FindUserByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	SetPasswordHash(ctx context.Context, db *gorm.DB, userID snowflake.ID, hash string, now time.Time) error

	InsertMagicLink(ctx context.Context, db *gorm.DB, link *MagicLink) error
	FindMagicLinkByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*MagicLink, error)
	MarkMagicLinkConsumed(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) (bool, error)

	UpsertAccessGrant(ctx context.Context, db *gorm.DB, grant *AccessGrant) error
	FindAccessGrant(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*AccessGrant, error)

	InsertSession(ctx context.Context, db *gorm.DB, session *Session) error
	FindSessionByTokenHash(ctx context.Context, db *gorm.DB, tokenHash string) (*Session, error)
	TouchSession(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	RevokeSession(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
}
