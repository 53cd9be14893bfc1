package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aimd54/questlog/internal/apperrors"
	"github.com/aimd54/questlog/internal/models"
)

// ErrStaleUser is returned when a progression write lost a version race.
var ErrStaleUser = fmt.Errorf("%w: user was modified concurrently", apperrors.ErrConflict)

// ProgressFunc mutates a freshly loaded user in place. Returning false skips the write.
// It may run more than once, so it must only depend on the user it receives.
type ProgressFunc func(user *models.User) (bool, error)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user. A taken email is a Conflict.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.Conflict("email %s is already registered", user.Email)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, lookupError(err, "user", id)
	}
	return &user, nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("user")
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// SaveProgress writes the progression snapshot if the stored version still
// matches user.Version, then bumps the version. Returns ErrStaleUser otherwise.
func (r *UserRepository) SaveProgress(ctx context.Context, user *models.User) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND version = ?", user.ID, user.Version).
		Updates(map[string]interface{}{
			"total_xp":         user.TotalXP,
			"level":            user.Level,
			"streak_count":     user.StreakCount,
			"last_activity_at": user.LastActivityAt,
			"version":          user.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to save progress for user %d: %w", user.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleUser
	}
	user.Version++
	return nil
}

// MutateProgress loads the user, applies fn and saves with a version check,
// retrying on lost races up to attempts times. It returns the saved user and
// how many version conflicts were hit.
func (r *UserRepository) MutateProgress(ctx context.Context, id uint, attempts int, fn ProgressFunc) (*models.User, int, error) {
	if attempts < 1 {
		attempts = 1
	}
	conflicts := 0
	for i := 0; i < attempts; i++ {
		user, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, conflicts, err
		}

		changed, err := fn(user)
		if err != nil {
			return nil, conflicts, err
		}
		if !changed {
			return user, conflicts, nil
		}

		err = r.SaveProgress(ctx, user)
		if err == nil {
			return user, conflicts, nil
		}
		if !errors.Is(err, ErrStaleUser) {
			return nil, conflicts, err
		}
		conflicts++
	}
	return nil, conflicts, ErrStaleUser
}
