package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/google/uuid"
	"github.com/mealgrid/mealgrid/internal/actorctx"
	auditdomain "github.com/mealgrid/mealgrid/internal/audit/domain"
	"github.com/mealgrid/mealgrid/internal/auth/domain"
	"github.com/mealgrid/mealgrid/internal/clock"
	"github.com/mealgrid/mealgrid/internal/config"
	"github.com/mealgrid/mealgrid/pkg/log/ctxlogger"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Cfg   config.Config
	Clock clock.Clock
	Repo  domain.Repository
	Audit auditdomain.Service
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	sessionTTL time.Duration
	repo       domain.Repository
	audit      auditdomain.Service
}

func NewService(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("auth.service"),
		clock:      p.Clock,
		sessionTTL: p.Cfg.SessionTTL,
		repo:       p.Repo,
		audit:      p.Audit,
	}
}

// dummyHash keeps password comparison roughly constant-time for unknown
// emails so login responses do not leak account existence.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindUserByEmail(ctx, s.db, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
		return nil, domain.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, domain.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, domain.ErrInvalidCredentials
	}

	now := s.clock.Now()
	session := &domain.Session{
		Token:     uuid.NewString(),
		UserID:    user.ID,
		ExpiresAt: now.Add(s.sessionTTL),
		CreatedAt: now,
	}
	if err := s.repo.InsertSession(ctx, s.db, session); err != nil {
		return nil, err
	}

	actorID := user.ID.String()
	auditCtx := actorctx.WithActor(ctx, string(auditdomain.ActorTypeUser), actorID)
	if err := s.audit.Record(auditCtx, auditdomain.ActionUserLoggedIn, "user", &actorID, map[string]any{
		"role": string(user.Role),
	}); err != nil {
		ctxlogger.WithContext(ctx, s.log).Warn("failed to record login", zap.Error(err))
	}

	return &domain.LoginResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		User:      *user,
	}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrUnauthenticated
	}
	return s.repo.RevokeSession(ctx, s.db, token)
}

// Authenticate resolves a session token to its user. The user row is read
// on every call, so role changes and deactivation take effect on the next
// request rather than at the next login.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}

	session, err := s.repo.FindSession(ctx, s.db, token)
	if err != nil {
		return nil, err
	}
	if session == nil || session.RevokedAt != nil || !s.clock.Now().Before(session.ExpiresAt) {
		return nil, domain.ErrUnauthenticated
	}

	user, err := s.repo.FindUserByID(ctx, s.db, session.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUnauthenticated
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}
	return user, nil
}
