// Package rewards materializes the reward track per user and handles claims.
package rewards

import (
	"context"
	"strconv"

	"golang.org/x/sync/singleflight"

	"github.com/aimd54/questlog/internal/apperrors"
	"github.com/aimd54/questlog/internal/calendar"
	"github.com/aimd54/questlog/internal/catalog"
	prommetrics "github.com/aimd54/questlog/internal/metrics"
	"github.com/aimd54/questlog/internal/models"
	"github.com/aimd54/questlog/internal/repository"
	"github.com/aimd54/questlog/pkg/logger"
)

// RewardView is a reward annotated for one user's current XP.
type RewardView struct {
	models.Reward
	IsClaimable bool `json:"is_claimable"`
	IsLocked    bool `json:"is_locked"`
	IsClaimed   bool `json:"is_claimed"`
}

func newView(r models.Reward, totalXP int) RewardView {
	claimed := r.IsClaimed()
	return RewardView{
		Reward:      r,
		IsClaimable: totalXP >= r.XPThreshold && !claimed,
		IsLocked:    totalXP < r.XPThreshold,
		IsClaimed:   claimed,
	}
}

// Service manages rewards.
type Service struct {
	store   *repository.Store
	catalog *catalog.Catalog
	cal     *calendar.Calendar
	log     *logger.Logger

	materialize singleflight.Group
}

// NewService creates a new reward service.
func NewService(store *repository.Store, cat *catalog.Catalog, cal *calendar.Calendar, log *logger.Logger) *Service {
	return &Service{store: store, catalog: cat, cal: cal, log: log}
}

// ListForUser returns the user's rewards by ascending threshold, creating any
// catalog entries the user does not have yet.
func (s *Service) ListForUser(ctx context.Context, userID uint) ([]RewardView, error) {
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.ensureCatalog(ctx, userID); err != nil {
		return nil, err
	}

	rewards, err := s.store.Rewards.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]RewardView, 0, len(rewards))
	for _, r := range rewards {
		views = append(views, newView(r, user.TotalXP))
	}
	return views, nil
}

// ensureCatalog inserts missing catalog rewards for userID. Concurrent callers
// for the same user share one pass.
func (s *Service) ensureCatalog(ctx context.Context, userID uint) error {
	key := strconv.FormatUint(uint64(userID), 10)
	// Other callers may be waiting on this pass.
	shared := context.WithoutCancel(ctx)
	_, err, _ := s.materialize.Do(key, func() (interface{}, error) {
		existing, err := s.store.Rewards.ListByUser(shared, userID)
		if err != nil {
			return nil, err
		}
		have := make(map[int]bool, len(existing))
		for _, r := range existing {
			have[r.XPThreshold] = true
		}

		created := 0
		for _, tmpl := range s.catalog.Rewards {
			if have[tmpl.XPThreshold] {
				continue
			}
			ok, err := s.store.Rewards.CreateIfAbsent(shared, &models.Reward{
				UserID:      userID,
				Title:       tmpl.Title,
				ItemType:    tmpl.ItemType,
				Icon:        tmpl.Icon,
				Color:       tmpl.Color,
				XPThreshold: tmpl.XPThreshold,
			})
			if err != nil {
				return nil, err
			}
			if ok {
				created++
			}
		}

		if created > 0 {
			s.log.Debug().
				Uint("user_id", userID).
				Int("created", created).
				Msg("Reward catalog materialized")
		}
		return nil, nil
	})
	return err
}

// Claim claims a reward once the user has enough XP. Claiming twice returns
// the reward as already claimed.
func (s *Service) Claim(ctx context.Context, rewardID, userID uint) (*RewardView, error) {
	reward, err := s.store.Rewards.GetForUser(ctx, rewardID, userID)
	if err != nil {
		return nil, err
	}
	user, err := s.store.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if reward.IsClaimed() {
		view := newView(*reward, user.TotalXP)
		return &view, nil
	}
	if user.TotalXP < reward.XPThreshold {
		return nil, apperrors.Precondition("reward %q needs %d xp, you have %d", reward.Title, reward.XPThreshold, user.TotalXP)
	}

	now := s.cal.Now()
	claimed, err := s.store.Rewards.MarkClaimed(ctx, reward.ID, userID, now)
	if err != nil {
		return nil, err
	}
	if claimed {
		reward.ClaimedAt = &now
		prommetrics.RecordRewardClaimed(reward.ItemType)
		s.log.Info().
			Uint("user_id", userID).
			Uint("reward_id", reward.ID).
			Str("item_type", reward.ItemType).
			Msg("Reward claimed")
	} else if reward, err = s.store.Rewards.GetForUser(ctx, rewardID, userID); err != nil {
		return nil, err
	}

	view := newView(*reward, user.TotalXP)
	return &view, nil
}
