// Package xp implements the XP ledger: immutable grant events plus each user's running total and level.
package xp

import (
	"context"

	"github.com/aimd54/questlog/internal/apperrors"
	"github.com/aimd54/questlog/internal/calendar"
	prommetrics "github.com/aimd54/questlog/internal/metrics"
	"github.com/aimd54/questlog/internal/models"
	"github.com/aimd54/questlog/internal/repository"
	"github.com/aimd54/questlog/pkg/logger"
)

// Page size bounds for event listings.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// GrantResult describes a recorded grant.
type GrantResult struct {
	Event         *models.XPEvent `json:"event"`
	TotalXP       int             `json:"total_xp"`
	Level         int             `json:"level"`
	PreviousLevel int             `json:"previous_level"`
}

// LeveledUp reports whether the grant crossed a level boundary upwards.
func (r *GrantResult) LeveledUp() bool {
	return r.Level > r.PreviousLevel
}

// EventPage is one page of a user's ledger.
type EventPage struct {
	Events []models.XPEvent `json:"events"`
	Page   int              `json:"page"`
	Limit  int              `json:"limit"`
	Total  int64            `json:"total"`
	Pages  int              `json:"pages"`
}

// Service is the XP ledger.
type Service struct {
	store      *repository.Store
	cal        *calendar.Calendar
	maxRetries int
	log        *logger.Logger
}

// NewService creates a new XP ledger.
func NewService(store *repository.Store, cal *calendar.Calendar, maxRetries int, log *logger.Logger) *Service {
	return &Service{store: store, cal: cal, maxRetries: maxRetries, log: log}
}

// WithStore returns a copy bound to another store, typically a transaction.
func (s *Service) WithStore(store *repository.Store) *Service {
	c := *s
	c.store = store
	return &c
}

// Grant appends an event and applies it to the user's total and level in one
// transaction. Totals may never go negative.
func (s *Service) Grant(ctx context.Context, userID uint, amount int, source models.XPSource, sourceID *uint) (*GrantResult, error) {
	if !source.Valid() {
		return nil, apperrors.Invalid("unknown xp source %q", source)
	}
	if amount == 0 {
		return nil, apperrors.Invalid("xp amount must not be zero")
	}
	if amount < 0 && source != models.XPSourceAdjust {
		return nil, apperrors.Invalid("only %s events may debit xp", models.XPSourceAdjust)
	}

	var result *GrantResult
	err := s.store.WithinTx(ctx, func(tx *repository.Store) error {
		var previousLevel int
		user, conflicts, err := tx.Users.MutateProgress(ctx, userID, s.maxRetries, func(u *models.User) (bool, error) {
			total := u.TotalXP + amount
			if total < 0 {
				return false, apperrors.Precondition("xp total cannot go below zero (have %d, change %d)", u.TotalXP, amount)
			}
			previousLevel = u.Level
			u.TotalXP = total
			u.Level = models.LevelForXP(total)
			return true, nil
		})
		prommetrics.RecordUserVersionConflicts("xp_grant", conflicts)
		if err != nil {
			return err
		}

		event := &models.XPEvent{
			UserID:    userID,
			Source:    source,
			SourceID:  sourceID,
			Amount:    amount,
			CreatedAt: s.cal.Now(),
		}
		if err := tx.XPEvents.Create(ctx, event); err != nil {
			return err
		}

		result = &GrantResult{
			Event:         event,
			TotalXP:       user.TotalXP,
			Level:         user.Level,
			PreviousLevel: previousLevel,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	prommetrics.RecordXPGranted(string(source), amount)

	ev := s.log.Info().
		Uint("user_id", userID).
		Str("source", string(source)).
		Int("amount", amount).
		Int("total_xp", result.TotalXP)
	if result.LeveledUp() {
		ev = ev.Int("level", result.Level)
	}
	ev.Msg("XP granted")

	return result, nil
}

// Adjust applies an administrative credit (ADMIN, positive) or debit (ADJUST, negative).
func (s *Service) Adjust(ctx context.Context, userID uint, amount int, source models.XPSource) (*GrantResult, error) {
	switch source {
	case models.XPSourceAdmin:
		if amount <= 0 {
			return nil, apperrors.Invalid("%s adjustments must be positive", source)
		}
	case models.XPSourceAdjust:
		if amount >= 0 {
			return nil, apperrors.Invalid("%s adjustments must be negative", source)
		}
	default:
		return nil, apperrors.Invalid("adjustments must use %s or %s", models.XPSourceAdmin, models.XPSourceAdjust)
	}
	return s.Grant(ctx, userID, amount, source, nil)
}

// ListEvents returns a page of the user's ledger, newest first.
func (s *Service) ListEvents(ctx context.Context, userID uint, page, limit int) (*EventPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	events, total, err := s.store.XPEvents.ListByUser(ctx, userID, (page-1)*limit, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []models.XPEvent{}
	}

	return &EventPage{
		Events: events,
		Page:   page,
		Limit:  limit,
		Total:  total,
		Pages:  int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

// Reconciliation compares a user's stored progression with their ledger.
type Reconciliation struct {
	UserID        uint `json:"user_id"`
	StoredXP      int  `json:"stored_xp"`
	LedgerXP      int  `json:"ledger_xp"`
	StoredLevel   int  `json:"stored_level"`
	ExpectedLevel int  `json:"expected_level"`
	Consistent    bool `json:"consistent"`
}

// Reconcile checks that the user's stored total equals the sum of their events
// and that the stored level matches that total.
func (s *Service) Reconcile(ctx context.Context, userID uint) (*Reconciliation, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.store.XPEvents.SumByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &Reconciliation{
		UserID:        userID,
		StoredXP:      user.TotalXP,
		LedgerXP:      sum,
		StoredLevel:   user.Level,
		ExpectedLevel: models.LevelForXP(user.TotalXP),
	}
	report.Consistent = report.StoredXP == report.LedgerXP && report.StoredLevel == report.ExpectedLevel
	if !report.Consistent {
		s.log.Warn().
			Uint("user_id", userID).
			Int("stored_xp", report.StoredXP).
			Int("ledger_xp", report.LedgerXP).
			Int("stored_level", report.StoredLevel).
			Msg("XP ledger out of sync")
	}
	return report, nil
}
