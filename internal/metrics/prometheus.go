// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the progression engine.
var (
	// XP ledger.
	XPGrantedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_granted_total",
			Help: "Total number of XP grants recorded",
		},
		[]string{"source"},
	)

	XPGrantedAmountTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xp_granted_amount_total",
			Help: "Sum of XP granted (debits reduce the net but are counted by absolute value)",
		},
		[]string{"source"},
	)

	// Lifecycles.
	MissionsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "missions_completed_total",
			Help: "Total number of mission completions",
		},
		[]string{"recurring"},
	)

	QuestsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quests_completed_total",
			Help: "Total number of quest completions",
		},
		[]string{"type", "outcome"},
	)

	RecurringMissionsResetTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recurring_missions_reset_total",
			Help: "Total number of recurring missions reopened for a new period",
		},
		[]string{"type"},
	)

	// Achievements, rewards and streaks.
	AchievementsUnlockedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievements_unlocked_total",
			Help: "Total number of achievements unlocked",
		},
		[]string{"code"},
	)

	RewardsClaimedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rewards_claimed_total",
			Help: "Total number of rewards claimed",
		},
		[]string{"item_type"},
	)

	StreakUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "streak_updates_total",
			Help: "Streak touches by result (started, extended, reset, unchanged)",
		},
		[]string{"result"},
	)

	// Concurrency.
	UserVersionConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "user_version_conflicts_total",
			Help: "Optimistic-lock conflicts on user progression writes",
		},
		[]string{"operation"},
	)

	UserLockWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "user_lock_wait_seconds",
			Help:    "Time spent waiting for the per-user progression lock",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	// HTTP.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests handled",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordXPGranted records one ledger entry.
func RecordXPGranted(source string, amount int) {
	XPGrantedTotal.WithLabelValues(source).Inc()
	if amount < 0 {
		amount = -amount
	}
	XPGrantedAmountTotal.WithLabelValues(source).Add(float64(amount))
}

// RecordMissionCompleted records a mission completion.
func RecordMissionCompleted(recurring bool) {
	MissionsCompletedTotal.WithLabelValues(strconv.FormatBool(recurring)).Inc()
}

// RecordQuestCompleted records a quest completion. outcome is standard, boss_won or boss_missed.
func RecordQuestCompleted(questType, outcome string) {
	QuestsCompletedTotal.WithLabelValues(questType, outcome).Inc()
}

// RecordRecurringReset records reopened recurring missions.
func RecordRecurringReset(recurringType string, count int) {
	RecurringMissionsResetTotal.WithLabelValues(recurringType).Add(float64(count))
}

// RecordAchievementUnlocked records an achievement unlock.
func RecordAchievementUnlocked(code string) {
	AchievementsUnlockedTotal.WithLabelValues(code).Inc()
}

// RecordRewardClaimed records a reward claim.
func RecordRewardClaimed(itemType string) {
	RewardsClaimedTotal.WithLabelValues(itemType).Inc()
}

// RecordStreakUpdate records the outcome of a streak touch.
func RecordStreakUpdate(result string) {
	StreakUpdatesTotal.WithLabelValues(result).Inc()
}

// RecordUserVersionConflicts records lost optimistic-lock races.
func RecordUserVersionConflicts(operation string, count int) {
	if count <= 0 {
		return
	}
	UserVersionConflictsTotal.WithLabelValues(operation).Add(float64(count))
}

// ObserveUserLockWait observes how long a per-user lock took to acquire.
func ObserveUserLockWait(seconds float64) {
	UserLockWaitSeconds.Observe(seconds)
}

// RecordHTTPRequest records a served HTTP request.
func RecordHTTPRequest(method, route string, status int, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(method, route).Observe(seconds)
}
