package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Provision finds or creates the user for email inside tx.
	Provision(ctx context.Context, tx *gorm.DB, email string) (*Provisioned, error)
	IssueMagicLink(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*MagicLinkToken, error)
	GrantAccess(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error

	ConsumeMagicLink(ctx context.Context, rawToken string, meta ClientMeta) (*LoginResult, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Authenticate(ctx context.Context, rawToken string) (*Identity, error)
	Logout(ctx context.Context, rawToken string) error
	HasAccess(ctx context.Context, userID snowflake.ID) (bool, error)
}

type Provisioned struct {
	UserID  snowflake.ID
	Email   string
	Created bool
	// TemporaryPassword is set only when provisioning generated one. It is
	// never persisted in clear text.
	TemporaryPassword string
}

type MagicLinkToken struct {
	Token     string
	ExpiresAt time.Time
}

type ClientMeta struct {
	UserAgent string
	IPAddress string
}

type LoginRequest struct {
	Email    string
	Password string
	ClientMeta
}

type LoginResult struct {
	UserID    snowflake.ID
	Email     string
	SessionID snowflake.ID
	RawToken  string
	ExpiresAt time.Time
}

type Identity struct {
	UserID    snowflake.ID
	SessionID snowflake.ID
	Email     string
}
