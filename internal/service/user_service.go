package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"enrollment-service/internal/auth"
	"enrollment-service/internal/models"
	"enrollment-service/internal/store"
	"enrollment-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UserStore is the identity persistence
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

// TokenIssuer signs access tokens
type TokenIssuer interface {
	GenerateToken(user *models.User) (string, error)
}

// UserService handles registration and login
type UserService struct {
	store  UserStore
	tokens TokenIssuer
	logger *zap.Logger
}

// NewUserService creates a new user service
func NewUserService(store UserStore, tokens TokenIssuer) *UserService {
	return &UserService{
		store:  store,
		tokens: tokens,
		logger: util.GetLogger(),
	}
}

// RegisterRequest creates a learner account
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Phone    string `json:"phone" binding:"omitempty,max=20"`
}

// LoginRequest authenticates with email and password
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries the access token and the account it belongs to
type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates a user with role "user" and returns a token for it
func (s *UserService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Register")
	defer span.End()

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) {
			return nil, newError(KindValidation, err.Error(), err)
		}
		return nil, newError(KindInternal, "Failed to register user", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(req.Name),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		Role:         models.RoleUser,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, newError(KindConflict, "User with this email already exists", err)
		}
		return nil, newError(KindInternal, "Failed to register user", err)
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID))
	return s.issue(user)
}

// Login checks credentials and returns a fresh token
func (s *UserService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	ctx, span := util.StartSpan(ctx, "UserService.Login")
	defer span.End()

	invalid := newError(KindUnauthorized, "Invalid email or password", nil)

	user, err := s.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, invalid
		}
		return nil, newError(KindInternal, "Failed to log in", err)
	}
	if !user.IsActive {
		return nil, newError(KindForbidden, "Account is deactivated", nil)
	}

	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		s.logger.Info("Failed login attempt", zap.String("user_id", user.ID))
		return nil, invalid
	}

	return s.issue(user)
}

func (s *UserService) issue(user *models.User) (*AuthResponse, error) {
	token, err := s.tokens.GenerateToken(user)
	if err != nil {
		return nil, newError(KindInternal, "Failed to generate token", err)
	}
	return &AuthResponse{Token: token, User: user}, nil
}
