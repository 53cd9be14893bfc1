// Package users handles registration, login and the progression snapshot.
package users

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/aimd54/questlog/internal/apperrors"
	"github.com/aimd54/questlog/internal/auth"
	"github.com/aimd54/questlog/internal/calendar"
	"github.com/aimd54/questlog/internal/models"
	"github.com/aimd54/questlog/internal/repository"
	"github.com/aimd54/questlog/internal/service/streaks"
	"github.com/aimd54/questlog/pkg/logger"
)

// RegisterInput holds the fields of a new account.
type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

// LoginInput holds login credentials.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned by Register and Login.
type AuthResult struct {
	User   *models.User    `json:"user"`
	Tokens *auth.TokenPair `json:"tokens"`
}

// Snapshot is the user's progression as shown on the dashboard.
type Snapshot struct {
	*models.User
	CurrentStreak    int   `json:"current_streak"`
	NextLevelXP      int   `json:"next_level_xp"`
	XPToNextLevel    int   `json:"xp_to_next_level"`
	AchievementCount int64 `json:"achievement_count"`
}

// Service manages accounts.
type Service struct {
	store  *repository.Store
	tokens *auth.TokenManager
	cal    *calendar.Calendar
	log    *logger.Logger
}

// NewService creates a new user service.
func NewService(store *repository.Store, tokens *auth.TokenManager, cal *calendar.Calendar, log *logger.Logger) *Service {
	return &Service{store: store, tokens: tokens, cal: cal, log: log}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperrors.Invalid("invalid email address")
	}
	return email, nil
}

// Register creates an account and signs the user in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.DisplayName)
	if name == "" {
		return nil, apperrors.Invalid("display_name is required")
	}

	hash, err := s.tokens.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  name,
	}
	if err := s.store.Users.Create(ctx, user); err != nil {
		return nil, err
	}

	tokens, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}

	s.log.Info().Uint("user_id", user.ID).Msg("User registered")
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Login verifies credentials. Unknown emails and wrong passwords fail alike.
func (s *Service) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	user, err := s.store.Users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid email or password")
		}
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, in.Password) {
		s.log.Debug().Uint("user_id", user.ID).Msg("Login rejected")
		return nil, apperrors.Unauthorized("invalid email or password")
	}

	tokens, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Refresh exchanges a refresh token for a new token pair.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	userID, err := s.tokens.Parse(refreshToken, auth.TokenRefresh)
	if err != nil {
		return nil, err
	}

	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("account no longer exists")
		}
		return nil, err
	}
	return s.tokens.Issue(user.ID, user.Email)
}

// Snapshot returns the user's current progression.
func (s *Service) Snapshot(ctx context.Context, userID uint) (*Snapshot, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	achievements, err := s.store.Achievements.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	next := models.XPForLevel(user.Level + 1)
	return &Snapshot{
		User:             user,
		CurrentStreak:    streaks.Current(s.cal, user, s.cal.Now()),
		NextLevelXP:      next,
		XPToNextLevel:    next - user.TotalXP,
		AchievementCount: achievements,
	}, nil
}
