package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthService registers and signs in users, then folds the caller's guest cart into the account
type AuthService struct {
	users    UserStore
	identity *IdentityResolver
	merger   *CartMerger
	logger   *zap.Logger
}

func NewAuthService(users UserStore, identity *IdentityResolver, merger *CartMerger) *AuthService {
	return &AuthService{
		users:    users,
		identity: identity,
		merger:   merger,
		logger:   util.GetLogger(),
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResult is returned by register and login. Cart is set when a guest cart was merged.
type AuthResult struct {
	Token string           `json:"token"`
	User  *models.User     `json:"user"`
	Cart  *models.CartView `json:"cart,omitempty"`
}

func (s *AuthService) Register(ctx context.Context, req *RegisterRequest, guestID string) (*AuthResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Register")
	defer span.End()

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        normalizeEmail(req.Email),
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(req.Name),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, models.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, util.RecordError(span, fmt.Errorf("failed to create user: %w", err))
	}

	s.logger.Info("User registered", zap.String("user_id", user.ID))
	return s.signIn(ctx, user, guestID)
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest, guestID string) (*AuthResult, error) {
	ctx, span := util.StartSpan(ctx, "AuthService.Login")
	defer span.End()

	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, util.RecordError(span, fmt.Errorf("failed to load user: %w", err))
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.signIn(ctx, user, guestID)
}

// signIn issues the token and merges the guest cart. A failed merge is
// logged only; the guest lists stay put for the next sign-in.
func (s *AuthService) signIn(ctx context.Context, user *models.User, guestID string) (*AuthResult, error) {
	token, err := s.identity.IssueToken(user)
	if err != nil {
		return nil, err
	}
	result := &AuthResult{Token: token, User: user}

	if ValidGuestID(guestID) {
		view, err := s.merger.MergeGuestIntoUser(ctx, guestID, user.ID)
		if err != nil {
			s.logger.Warn("Sign-in succeeded but guest cart merge failed",
				zap.String("user_id", user.ID),
				zap.String("guest_id", guestID),
				zap.Error(err))
		} else {
			result.Cart = view
		}
	}

	return result, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
