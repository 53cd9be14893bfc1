package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aimd54/questlog/internal/apperrors"
	"github.com/aimd54/questlog/internal/calendar"
	"github.com/aimd54/questlog/internal/models"
	"github.com/aimd54/questlog/internal/service/achievements"
	"github.com/aimd54/questlog/internal/service/missions"
	"github.com/aimd54/questlog/internal/service/quests"
	"github.com/aimd54/questlog/internal/service/rewards"
	"github.com/aimd54/questlog/internal/service/users"
	"github.com/aimd54/questlog/internal/service/xp"
	"github.com/aimd54/questlog/pkg/logger"
)

// Demo account credentials.
const (
	demoEmail    = "demo@demo.dev"
	demoPassword = "demo1234"
	demoName     = "Demo User"
	demoXP       = 130
)

type seeder struct {
	users        *users.Service
	xp           *xp.Service
	quests       *quests.Service
	missions     *missions.Service
	rewards      *rewards.Service
	achievements *achievements.Service
	cal          *calendar.Calendar
	log          *logger.Logger
}

// seedResult summarizes what a run created. User is nil when the demo
// account already existed.
type seedResult struct {
	User         *models.User
	Quests       int
	Missions     int
	Rewards      int
	Achievements int
}

// seed creates the demo account with a boss-fight main quest, two sub-quests
// and three missions for today.
func (s *seeder) seed(ctx context.Context) (*seedResult, error) {
	reg, err := s.users.Register(ctx, users.RegisterInput{
		Email:       demoEmail,
		Password:    demoPassword,
		DisplayName: demoName,
	})
	if errors.Is(err, apperrors.ErrConflict) {
		s.log.Warn().Str("email", demoEmail).Msg("Demo user already exists, nothing to seed")
		return &seedResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to register demo user: %w", err)
	}
	userID := reg.User.ID
	res := &seedResult{User: reg.User}

	grant, err := s.xp.Adjust(ctx, userID, demoXP, models.XPSourceAdmin)
	if err != nil {
		return nil, fmt.Errorf("failed to grant starting XP: %w", err)
	}
	reg.User.TotalXP, reg.User.Level = grant.TotalXP, grant.Level

	deadline := s.cal.Now().Add(7 * 24 * time.Hour)
	isBoss := true
	questInputs := []quests.CreateInput{
		{
			Type:        models.QuestMain,
			Title:       "Launch MVP",
			Description: "Deploy the gamified productivity app",
			BossFight:   &quests.BossFightInput{IsBoss: &isBoss, Deadline: &deadline},
		},
		{Type: models.QuestSub, Title: "Complete Backend API", Description: "Implement every service"},
		{Type: models.QuestSub, Title: "Build Frontend UI", Description: "Create the dashboard pages"},
	}
	questIDs := make([]uint, 0, len(questInputs))
	for _, in := range questInputs {
		q, err := s.quests.Create(ctx, userID, in)
		if err != nil {
			return nil, fmt.Errorf("failed to create quest %q: %w", in.Title, err)
		}
		questIDs = append(questIDs, q.ID)
	}
	res.Quests = len(questIDs)

	today := s.cal.StartOfDay(s.cal.Now())
	missionInputs := []missions.CreateInput{
		{Title: "Review code", Description: "Review pull requests", QuestID: &questIDs[1]},
		{Title: "Write tests", Description: "Add unit tests for the auth package", QuestID: &questIDs[1]},
		{Title: "Design dashboard", Description: "Create the dashboard mockup", QuestID: &questIDs[2]},
	}
	for _, in := range missionInputs {
		in.ScheduledFor = &today
		in.XPValue = 10
		if _, err := s.missions.Create(ctx, userID, in); err != nil {
			return nil, fmt.Errorf("failed to create mission %q: %w", in.Title, err)
		}
		res.Missions++
	}

	views, err := s.rewards.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to materialize rewards: %w", err)
	}
	res.Rewards = len(views)

	awarded, err := s.achievements.CheckFirstCompletion(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to award achievements: %w", err)
	}
	res.Achievements = len(awarded)

	return res, nil
}
