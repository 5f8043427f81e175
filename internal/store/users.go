package store

import (
	"context"
	"database/sql"
	"fmt"

	"storefront-service/internal/models"
)

const userColumns = `id, email, password_hash, name, address, city, state, zip_code, phone, created_at`

// CreateUser inserts a user. A taken email returns models.ErrDuplicate.
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, password_hash, name, address, city, state, zip_code, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`

	err := s.db.GetContext(ctx, &user.CreatedAt, query,
		user.ID, user.Email, user.PasswordHash, user.Name,
		user.Address, user.City, user.State, user.ZipCode, user.Phone)
	if isUniqueViolation(err) {
		return models.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateUserAddress replaces the saved address of a user
func (s *Store) UpdateUserAddress(ctx context.Context, userID string, addr models.ProfileAddress) error {
	query := `
		UPDATE users
		SET name = $2, address = $3, city = $4, state = $5, zip_code = $6, phone = $7
		WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, userID,
		addr.Name, addr.Address, addr.City, addr.State, addr.ZipCode, addr.Phone)
	if err != nil {
		return fmt.Errorf("failed to update user address: %w", err)
	}
	return expectOneRow(res)
}

// GetUserByEmail retrieves a user by email
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
