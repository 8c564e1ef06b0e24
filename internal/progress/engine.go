// Package progress maintains per-user exercise counters and awards
// achievements after every graded attempt.
package progress

import (
	"errors"
	"time"

	"code-judge/internal/logging"
	"code-judge/pkg/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("no progress recorded")

// Engine owns UserProgress and UserAchievement records.
type Engine struct {
	db  *gorm.DB
	log *zap.Logger
	now func() time.Time
}

// NewEngine wraps a gorm handle.
func NewEngine(db *gorm.DB) *Engine {
	return &Engine{
		db:  db,
		log: logging.L().Named("progress"),
		now: time.Now,
	}
}

// RecordAttempt upserts the (user, exercise) progress row and, for passing
// attempts, evaluates the achievement predicates. Counter increments are SQL
// expressions so concurrent attempts never lose an update; the completed flag
// flips through a conditional update whose row count tells us whether this
// attempt was the first completion.
func (e *Engine) RecordAttempt(userID uint, exerciseID string, allPassed bool, submission string) (*models.UserProgress, []models.Achievement, error) {
	now := e.now()

	err := e.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.UserProgress{
		UserID:      userID,
		ExerciseID:  exerciseID,
		FirstSeenAt: now,
	}).Error
	if err != nil {
		return nil, nil, err
	}

	updates := map[string]interface{}{
		"attempts":        gorm.Expr("attempts + 1"),
		"last_submission": submission,
		"updated_at":      now,
	}
	if allPassed {
		updates["successful_attempts"] = gorm.Expr("successful_attempts + 1")
	} else {
		updates["failed_attempts"] = gorm.Expr("failed_attempts + 1")
	}
	err = e.db.Model(&models.UserProgress{}).
		Where("user_id = ? AND exercise_id = ?", userID, exerciseID).
		Updates(updates).Error
	if err != nil {
		return nil, nil, err
	}

	firstCompletion := false
	if allPassed {
		res := e.db.Model(&models.UserProgress{}).
			Where("user_id = ? AND exercise_id = ? AND completed = ?", userID, exerciseID, false).
			Updates(map[string]interface{}{
				"completed":    true,
				"completed_at": now,
				// Captured at the moment of first completion: the failed
				// counter is final for this attempt, and later failing
				// re-submissions must not revoke the flag.
				"first_try": gorm.Expr("(failed_attempts = 0)"),
			})
		if res.Error != nil {
			return nil, nil, res.Error
		}
		firstCompletion = res.RowsAffected > 0
	}

	var prog models.UserProgress
	if err := e.db.First(&prog, "user_id = ? AND exercise_id = ?", userID, exerciseID).Error; err != nil {
		return nil, nil, err
	}

	var earned []models.Achievement
	if allPassed {
		var evalErr error
		earned, evalErr = e.evaluateAchievements(userID, exerciseID, &prog, firstCompletion, now)
		if evalErr != nil {
			// The grade stands even when award evaluation misfires.
			e.log.Error("achievement evaluation failed",
				zap.Uint("user", userID), zap.String("exercise", exerciseID), zap.Error(evalErr))
		}
	}

	return &prog, earned, nil
}

// Get returns the progress row for one (user, exercise).
func (e *Engine) Get(userID uint, exerciseID string) (*models.UserProgress, error) {
	var prog models.UserProgress
	err := e.db.First(&prog, "user_id = ? AND exercise_id = ?", userID, exerciseID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &prog, nil
}

// Statistics summarizes a user's overall standing.
type Statistics struct {
	ExercisesCompleted int64 `json:"exercises_completed"`
	TotalAttempts      int64 `json:"total_attempts"`
	SuccessfulAttempts int64 `json:"successful_attempts"`
	FailedAttempts     int64 `json:"failed_attempts"`
	AchievementsEarned int64 `json:"achievements_earned"`
	AchievementPoints  int64 `json:"achievement_points"`
}

// Summary aggregates the user's progress and achievement totals.
func (e *Engine) Summary(userID uint) (*Statistics, error) {
	var stats Statistics

	row := e.db.Model(&models.UserProgress{}).
		Select("COUNT(CASE WHEN completed THEN 1 END), COALESCE(SUM(attempts),0), COALESCE(SUM(successful_attempts),0), COALESCE(SUM(failed_attempts),0)").
		Where("user_id = ?", userID).Row()
	if err := row.Scan(&stats.ExercisesCompleted, &stats.TotalAttempts,
		&stats.SuccessfulAttempts, &stats.FailedAttempts); err != nil {
		return nil, err
	}

	row = e.db.Model(&models.UserAchievement{}).
		Joins("JOIN achievements ON achievements.id = user_achievements.achievement_id").
		Select("COUNT(*), COALESCE(SUM(achievements.points),0)").
		Where("user_achievements.user_id = ?", userID).Row()
	if err := row.Scan(&stats.AchievementsEarned, &stats.AchievementPoints); err != nil {
		return nil, err
	}

	return &stats, nil
}

// EarnedAchievement joins a badge definition with its award record.
type EarnedAchievement struct {
	models.Achievement
	EarnedAt time.Time `json:"earned_at"`
}

// ListEarned returns the user's achievements, newest first.
func (e *Engine) ListEarned(userID uint) ([]EarnedAchievement, error) {
	var out []EarnedAchievement
	err := e.db.Model(&models.Achievement{}).
		Select("achievements.*, user_achievements.earned_at").
		Joins("JOIN user_achievements ON user_achievements.achievement_id = achievements.id").
		Where("user_achievements.user_id = ?", userID).
		Order("user_achievements.earned_at DESC").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListCatalog returns every achievement definition.
func (e *Engine) ListCatalog() ([]models.Achievement, error) {
	var out []models.Achievement
	if err := e.db.Order("category, threshold, id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
