// Package repository provides the data access layer for the auth service.
package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/arvense/authtrail/internal/models"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	FindByResetTokenHash(ctx context.Context, tokenHash string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	// IncrementFailedAttempts bumps the failure counter with a single
	// SQL expression so concurrent failed logins are never lost, then
	// opens a lockout window once the counter reaches threshold.
	IncrementFailedAttempts(ctx context.Context, userID string, threshold int, lockFor time.Duration) error
	// ResetFailedAttempts clears the counter and any lockout window.
	ResetFailedAttempts(ctx context.Context, userID string) error
	RecordLogin(ctx context.Context, userID string, at time.Time) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return &user, nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find user by id %s: %w", id, err)
	}
	return &user, nil
}

func (r *userRepository) FindByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("google_id = ?", googleID).First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find user by google id: %w", err)
	}
	return &user, nil
}

func (r *userRepository) FindByResetTokenHash(ctx context.Context, tokenHash string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("reset_token_hash = ? AND reset_token_expires_at > ?", tokenHash, time.Now()).
		First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find user by reset token: %w", err)
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return fmt.Errorf("failed to update user %s: %w", user.ID, err)
	}
	return nil
}

func (r *userRepository) IncrementFailedAttempts(ctx context.Context, userID string, threshold int, lockFor time.Duration) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("failed_login_attempts", gorm.Expr("failed_login_attempts + 1")).Error
	if err != nil {
		return fmt.Errorf("failed to increment login attempts for %s: %w", userID, err)
	}

	// Separate conditional statement: crossing the threshold opens the
	// lockout window and resets the counter so the next window starts
	// clean. Both statements are atomic per row.
	lockUntil := time.Now().Add(lockFor)
	err = r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND failed_login_attempts >= ?", userID, threshold).
		UpdateColumns(map[string]interface{}{
			"failed_login_attempts": 0,
			"locked_until":          lockUntil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to apply lockout for %s: %w", userID, err)
	}
	return nil
}

func (r *userRepository) ResetFailedAttempts(ctx context.Context, userID string) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"failed_login_attempts": 0,
			"locked_until":          nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to reset login attempts for %s: %w", userID, err)
	}
	return nil
}

func (r *userRepository) RecordLogin(ctx context.Context, userID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_login_at", at).Error
	if err != nil {
		return fmt.Errorf("failed to record login for %s: %w", userID, err)
	}
	return nil
}
