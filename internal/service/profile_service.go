package service

import (
	"context"
	"errors"
	"fmt"

	"storefront-service/internal/models"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// ProfileService reads and updates a signed-in user's profile. The saved
// address prefills new checkout sessions.
type ProfileService struct {
	users  UserStore
	logger *zap.Logger
}

func NewProfileService(users UserStore) *ProfileService {
	return &ProfileService{users: users, logger: util.GetLogger()}
}

func (s *ProfileService) GetProfile(ctx context.Context, p models.Principal) (*models.User, error) {
	if p.IsGuest() {
		return nil, ErrUnauthorized
	}
	user, err := s.users.GetUserByID(ctx, p.ID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return user, nil
}

// UpdateAddress validates and stores addr as the user's saved address
func (s *ProfileService) UpdateAddress(ctx context.Context, p models.Principal, addr models.ProfileAddress) (*models.User, error) {
	ctx, span := util.StartSpan(ctx, "ProfileService.UpdateAddress")
	defer span.End()

	if p.IsGuest() {
		return nil, ErrUnauthorized
	}

	addr = trimAddress(addr)
	if err := validateFields(addr); err != nil {
		return nil, err
	}

	if err := s.users.UpdateUserAddress(ctx, p.ID, addr); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrUnauthorized
		}
		s.logger.Error("Failed to update profile address", zap.String("user_id", p.ID), zap.Error(err))
		return nil, util.RecordError(span, err)
	}

	s.logger.Info("Profile address updated", zap.String("user_id", p.ID))
	return s.GetProfile(ctx, p)
}
