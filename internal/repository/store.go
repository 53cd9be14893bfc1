package repository

import (
	"context"
)

// Store bundles the repositories that share one connection or transaction.
type Store struct {
	db           *DB
	Users        *UserRepository
	XPEvents     *XPEventRepository
	Missions     *MissionRepository
	Quests       *QuestRepository
	Achievements *AchievementRepository
	Rewards      *RewardRepository
}

// NewStore creates a store over db.
func NewStore(db *DB) *Store {
	return &Store{
		db:           db,
		Users:        NewUserRepository(db),
		XPEvents:     NewXPEventRepository(db),
		Missions:     NewMissionRepository(db),
		Quests:       NewQuestRepository(db),
		Achievements: NewAchievementRepository(db),
		Rewards:      NewRewardRepository(db),
	}
}

// DB returns the underlying connection or transaction.
func (s *Store) DB() *DB {
	return s.db
}

// WithinTx runs fn with a store bound to a transaction. When s is already
// transactional the work nests in a savepoint.
func (s *Store) WithinTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.Transaction(ctx, func(tx *DB) error {
		return fn(NewStore(tx))
	})
}
