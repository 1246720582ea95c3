package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"github.com/mdscolour/clawfactory/internal/domain"
	"github.com/mdscolour/clawfactory/internal/repository"
)

// AuthService handles registration, login and token resolution.
//
// The token is the user's numeric id, matching the original wire contract.
// Anyone who learns an id can act as that user; the scheme is kept for
// compatibility and is documented as such.
type AuthService struct {
	userRepo repository.UserRepository
	limiter  LoginLimiter
}

func NewAuthService(userRepo repository.UserRepository, limiter LoginLimiter) *AuthService {
	if userRepo == nil {
		panic("UserRepository cannot be nil for AuthService")
	}
	if limiter == nil {
		panic("LoginLimiter cannot be nil for AuthService")
	}
	return &AuthService{userRepo: userRepo, limiter: limiter}
}

// Register creates a user with a bcrypt-hashed password and returns the user
// together with their token.
func (s *AuthService) Register(ctx context.Context, username, password, email string) (*domain.User, string, error) {
	logCtx := logrus.WithFields(logrus.Fields{"username": username, "email": email})

	if username == "" || password == "" {
		return nil, "", fmt.Errorf("%w: username and password are required", ErrInvalidInput)
	}

	hash, err := hashPassword(password)
	if err != nil {
		logCtx.WithError(err).Error("Failed to hash password during registration")
		return nil, "", ErrInternalServer
	}

	user := &domain.User{
		Username:     username,
		PasswordHash: hash,
		Email:        email,
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Warn("Registration failed: username or email already exists")
			return nil, "", ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Database error during user creation")
		return nil, "", ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User registered")
	return user, TokenFor(user), nil
}

// Login verifies the password and returns the user and token. Ten failures
// within a rolling hour lock the username out until the window expires.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.User, string, error) {
	logCtx := logrus.WithField("username", username)

	blocked, err := s.limiter.TooMany(ctx, username)
	if err != nil {
		logCtx.WithError(err).Error("Login limiter check failed")
		return nil, "", ErrInternalServer
	}
	if blocked {
		logCtx.Warn("Login blocked: too many failed attempts")
		return nil, "", ErrRateLimited
	}

	user, err := s.userRepo.FindByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			logCtx.WithError(err).Error("Error finding user during login")
			return nil, "", ErrInternalServer
		}
		s.recordFailure(ctx, logCtx, username)
		return nil, "", ErrAuthenticationFailed
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		logCtx.Warn("Login attempt failed: invalid password")
		s.recordFailure(ctx, logCtx, username)
		return nil, "", ErrAuthenticationFailed
	}

	if err := s.limiter.Reset(ctx, username); err != nil {
		logCtx.WithError(err).Warn("Failed to reset login limiter after success")
	}

	logCtx.WithField("user_id", user.ID).Info("User logged in")
	return user, TokenFor(user), nil
}

// OAuthLogin finds or creates the user bound to an external identity.
func (s *AuthService) OAuthLogin(ctx context.Context, provider, providerID, username, email string) (*domain.User, string, error) {
	logCtx := logrus.WithFields(logrus.Fields{"provider": provider, "provider_id": providerID})

	if provider == "" || providerID == "" {
		return nil, "", fmt.Errorf("%w: provider and provider_id are required", ErrInvalidInput)
	}

	user, err := s.userRepo.FindByIdentity(ctx, provider, providerID)
	if err == nil {
		return user, TokenFor(user), nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		logCtx.WithError(err).Error("Error finding user by identity")
		return nil, "", ErrInternalServer
	}

	if username == "" {
		username = provider + "-" + providerID
	}
	user = &domain.User{
		Username:   username,
		Email:      email,
		Provider:   provider,
		ProviderID: providerID,
	}
	if err := s.userRepo.Save(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.Warn("OAuth registration failed: username or email already taken")
			return nil, "", ErrRegistrationFailed
		}
		logCtx.WithError(err).Error("Database error creating user from identity")
		return nil, "", ErrInternalServer
	}

	logCtx.WithField("user_id", user.ID).Info("User created from external identity")
	return user, TokenFor(user), nil
}

// UserFromToken resolves a bearer token to its user row.
func (s *AuthService) UserFromToken(ctx context.Context, token string) (*domain.User, error) {
	id, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	user, err := s.userRepo.FindByID(ctx, uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrAuthenticationFailed
		}
		logrus.WithError(err).Error("Error resolving token to user")
		return nil, ErrInternalServer
	}
	return user, nil
}

// TokenFor returns the bearer token for a user.
func TokenFor(user *domain.User) string {
	return strconv.FormatUint(uint64(user.ID), 10)
}

func (s *AuthService) recordFailure(ctx context.Context, logCtx *logrus.Entry, username string) {
	if err := s.limiter.RecordFailure(ctx, username); err != nil {
		logCtx.WithError(err).Warn("Failed to record login failure")
	}
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to generate hash from password: %w", err)
	}
	return string(bytes), nil
}
