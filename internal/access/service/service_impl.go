package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/coursepay/internal/access/domain"
	"github.com/smallbiznis/coursepay/internal/access/password"
	"github.com/smallbiznis/coursepay/internal/clock"
	"github.com/smallbiznis/coursepay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	magicLinkTokenBytes = 32
	magicLinkTTL        = 24 * time.Hour

	sessionTokenBytes = 32
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Config config.Config
	Repo   domain.Repository
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	policy     config.PasswordPolicy
	sessionTTL time.Duration
}

func NewService(p Params) domain.Service {
	ttl := p.Config.Access.SessionTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	policy := p.Config.Access.PasswordPolicy
	if policy == "" {
		policy = config.PasswordPolicyNewUsers
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("access.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		policy:     policy,
		sessionTTL: ttl,
	}
}

func (s *Service) Provision(ctx context.Context, tx *gorm.DB, email string) (*domain.Provisioned, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}

	now := s.clock.Now()
	user, err := s.repo.FindUserByEmail(ctx, tx, normalized)
	if err != nil {
		return nil, err
	}

	result := &domain.Provisioned{Email: normalized}
	if user == nil {
		temp, hash, err := newTemporaryPassword()
		if err != nil {
			return nil, err
		}
		user = &domain.User{
			ID:           s.genID.Generate(),
			Email:        normalized,
			PasswordHash: &hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.InsertUser(ctx, tx, user); err != nil {
			return nil, fmt.Errorf("insert user: %w", err)
		}
		result.Created = true
		result.TemporaryPassword = temp
		s.log.Info("user provisioned", zap.String("user_id", user.ID.String()))
	} else if user.PasswordHash == nil && s.policy == config.PasswordPolicyBackfill {
		temp, hash, err := newTemporaryPassword()
		if err != nil {
			return nil, err
		}
		if err := s.repo.SetPasswordHash(ctx, tx, user.ID, hash, now); err != nil {
			return nil, fmt.Errorf("backfill password: %w", err)
		}
		result.TemporaryPassword = temp
		s.log.Info("password backfilled for existing user", zap.String("user_id", user.ID.String()))
	}

	result.UserID = user.ID
	return result, nil
}

func (s *Service) IssueMagicLink(ctx context.Context, tx *gorm.DB, userID snowflake.ID) (*domain.MagicLinkToken, error) {
	raw, err := randomHex(magicLinkTokenBytes)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	link := &domain.MagicLink{
		ID:        s.genID.Generate(),
		UserID:    userID,
		TokenHash: hashToken(raw),
		ExpiresAt: now.Add(magicLinkTTL),
		CreatedAt: now,
	}
	if err := s.repo.InsertMagicLink(ctx, tx, link); err != nil {
		return nil, fmt.Errorf("insert magic link: %w", err)
	}

	return &domain.MagicLinkToken{Token: raw, ExpiresAt: link.ExpiresAt}, nil
}

func (s *Service) GrantAccess(ctx context.Context, tx *gorm.DB, userID snowflake.ID) error {
	return s.repo.UpsertAccessGrant(ctx, tx, &domain.AccessGrant{
		UserID:    userID,
		GrantedAt: s.clock.Now(),
		EndsAt:    nil,
	})
}

func (s *Service) ConsumeMagicLink(ctx context.Context, rawToken string, meta domain.ClientMeta) (*domain.LoginResult, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrMagicLinkInvalid
	}

	var result *domain.LoginResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		link, err := s.repo.FindMagicLinkByTokenHash(ctx, tx, hashToken(token))
		if err != nil {
			return err
		}
		if link == nil {
			return domain.ErrMagicLinkInvalid
		}

		now := s.clock.Now()
		if link.ConsumedAt != nil {
			return domain.ErrMagicLinkConsumed
		}
		if !link.Usable(now) {
			return domain.ErrMagicLinkExpired
		}

		won, err := s.repo.MarkMagicLinkConsumed(ctx, tx, link.ID, now)
		if err != nil {
			return err
		}
		if !won {
			return domain.ErrMagicLinkConsumed
		}

		user, err := s.repo.FindUserByID(ctx, tx, link.UserID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}

		result, err = s.openSession(ctx, tx, user, meta)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if strings.TrimSpace(req.Password) == "" {
		return nil, domain.ErrInvalidCredentials
	}

	db := s.db.WithContext(ctx)
	user, err := s.repo.FindUserByEmail(ctx, db, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	return s.openSession(ctx, db, user, req.ClientMeta)
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Identity, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}

	db := s.db.WithContext(ctx)
	session, err := s.repo.FindSessionByTokenHash(ctx, db, hashToken(token))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, domain.ErrInvalidSession
	}

	now := s.clock.Now()
	if session.RevokedAt != nil {
		return nil, domain.ErrSessionRevoked
	}
	if !now.Before(session.ExpiresAt) {
		return nil, domain.ErrSessionExpired
	}

	user, err := s.repo.FindUserByID(ctx, db, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrInvalidSession
	}

	if err := s.repo.TouchSession(ctx, db, session.ID, now); err != nil {
		s.log.Warn("failed to update session last seen", zap.Error(err))
	}

	return &domain.Identity{
		UserID:    user.ID,
		SessionID: session.ID,
		Email:     user.Email,
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return domain.ErrInvalidSession
	}

	db := s.db.WithContext(ctx)
	session, err := s.repo.FindSessionByTokenHash(ctx, db, hashToken(token))
	if err != nil {
		return err
	}
	if session == nil {
		return domain.ErrInvalidSession
	}
	return s.repo.RevokeSession(ctx, db, session.ID, s.clock.Now())
}

func (s *Service) HasAccess(ctx context.Context, userID snowflake.ID) (bool, error) {
	grant, err := s.repo.FindAccessGrant(ctx, s.db.WithContext(ctx), userID)
	if err != nil {
		return false, err
	}
	if grant == nil {
		return false, nil
	}
	return grant.Active(s.clock.Now()), nil
}

func (s *Service) openSession(ctx context.Context, db *gorm.DB, user *domain.User, meta domain.ClientMeta) (*domain.LoginResult, error) {
	raw, err := randomHex(sessionTokenBytes)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &domain.Session{
		ID:         s.genID.Generate(),
		UserID:     user.ID,
		TokenHash:  hashToken(raw),
		UserAgent:  strings.TrimSpace(meta.UserAgent),
		IPAddress:  strings.TrimSpace(meta.IPAddress),
		ExpiresAt:  now.Add(s.sessionTTL),
		CreatedAt:  now,
		LastSeenAt: now,
	}
	if err := s.repo.InsertSession(ctx, db, session); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	return &domain.LoginResult{
		UserID:    user.ID,
		Email:     user.Email,
		SessionID: session.ID,
		RawToken:  raw,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func newTemporaryPassword() (string, string, error) {
	temp, err := password.Generate()
	if err != nil {
		return "", "", err
	}
	hash, err := password.Hash(temp)
	if err != nil {
		return "", "", err
	}
	return temp, hash, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(addr.Address)), nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
