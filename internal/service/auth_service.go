package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util"
)

const invalidCredentials = "the email or password is incorrect"

// AuthService coordinates login and account lookups.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		logger:     nopIfNil(deps.Logger),
	}
}

// Login authenticates by email and password and issues an access token.
// Unknown emails, wrong passwords and deactivated accounts all fail the
// same way.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.User, string, time.Time, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, "", time.Time{}, apperrors.NewValidationError("email and password are required", nil)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, "", time.Time{}, apperrors.NewUnauthorized(invalidCredentials)
		}
		return nil, "", time.Time{}, internalFailure(s.logger, "load user by email", err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil || !user.Active {
		return nil, "", time.Time{}, apperrors.NewUnauthorized(invalidCredentials)
	}

	token, exp, err := s.tokenMgr.GenerateToken(*user)
	if err != nil {
		return nil, "", time.Time{}, internalFailure(s.logger, "sign token", err, zap.String("user_id", user.ID))
	}
	return user, token, exp, nil
}

// Profile returns the caller's account.
func (s *AuthService) Profile(ctx context.Context, caller domain.Caller) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, caller.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": caller.ID})
		}
		return nil, internalFailure(s.logger, "load profile", err)
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap administrator unless an account with
// that email already exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, cfg config.BootstrapConfig) (*domain.User, bool, error) {
	if !cfg.Enabled() {
		return nil, false, nil
	}
	existing, err := s.users.GetByEmail(ctx, cfg.AdminEmail)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	hash, err := auth.HashPassword(cfg.AdminPassword, s.bcryptCost)
	if err != nil {
		return nil, false, err
	}
	admin := &domain.User{
		Name:         cfg.AdminName,
		Email:        cfg.AdminEmail,
		PasswordHash: hash,
		Role:         domain.RoleAdministrator,
		Active:       true,
	}
	if err := s.users.Create(ctx, admin); err != nil {
		return nil, false, err
	}
	s.logger.Info("bootstrap administrator created", zap.String("user_id", admin.ID), zap.String("email", admin.Email))
	return admin, true, nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
