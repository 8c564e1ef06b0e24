package progress

import (
	"errors"
	"time"

	"code-judge/pkg/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// evaluateAchievements checks every unowned badge after a passing attempt.
// Awards go through an OnConflict insert, so a badge can never be granted
// twice even when two attempts finish at the same moment.
func (e *Engine) evaluateAchievements(userID uint, exerciseID string, prog *models.UserProgress, firstCompletion bool, now time.Time) ([]models.Achievement, error) {
	var catalog []models.Achievement
	if err := e.db.Find(&catalog).Error; err != nil {
		return nil, err
	}

	var ownedRows []models.UserAchievement
	if err := e.db.Where("user_id = ?", userID).Find(&ownedRows).Error; err != nil {
		return nil, err
	}
	owned := make(map[string]bool, len(ownedRows))
	for _, row := range ownedRows {
		owned[row.AchievementID] = true
	}

	var completions []models.UserProgress
	if err := e.db.Where("user_id = ? AND completed = ?", userID, true).Find(&completions).Error; err != nil {
		return nil, err
	}
	snap := buildSnapshot(completions, now)

	var earned []models.Achievement
	for _, a := range catalog {
		if owned[a.ID] {
			continue
		}
		met, err := e.satisfied(&a, userID, exerciseID, prog, firstCompletion, now, snap)
		if err != nil {
			return earned, err
		}
		if !met {
			continue
		}

		res := e.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.UserAchievement{
			UserID:        userID,
			AchievementID: a.ID,
			EarnedAt:      now,
			Progress:      100,
		})
		if res.Error != nil {
			return earned, res.Error
		}
		if res.RowsAffected > 0 {
			earned = append(earned, a)
			e.log.Info("achievement earned",
				zap.Uint("user", userID), zap.String("achievement", a.ID))
		}
	}
	return earned, nil
}

func (e *Engine) satisfied(a *models.Achievement, userID uint, exerciseID string, prog *models.UserProgress, firstCompletion bool, now time.Time, snap *completionSnapshot) (bool, error) {
	switch a.Kind {
	case models.AchievementKindTotalCompleted:
		return snap.total >= a.Threshold, nil

	case models.AchievementKindFirstTry:
		return snap.firstTry >= a.Threshold, nil

	case models.AchievementKindPersistence:
		// Only the attempt that finally cracks the exercise counts; later
		// re-submissions of a solved exercise never trigger it.
		return firstCompletion && prog.Attempts >= a.Threshold, nil

	case models.AchievementKindHourRush:
		return snap.lastHour >= a.Threshold, nil

	case models.AchievementKindDayRush:
		return snap.today >= a.Threshold, nil

	case models.AchievementKindNightOwl:
		h := now.Hour()
		return firstCompletion && h < 5, nil

	case models.AchievementKindEarlyBird:
		h := now.Hour()
		return firstCompletion && h >= 5 && h < 8, nil

	case models.AchievementKindStreak:
		return snap.streak(now) >= a.Threshold, nil

	case models.AchievementKindChapterComplete:
		if !firstCompletion {
			return false, nil
		}
		return e.chapterDone(userID, exerciseID)

	case models.AchievementKindLanguageComplete:
		if !firstCompletion {
			return false, nil
		}
		return e.languageDone(userID, exerciseID)
	}

	e.log.Warn("unknown achievement kind", zap.String("achievement", a.ID), zap.String("kind", a.Kind))
	return false, nil
}

// completionSnapshot caches per-user completion facts shared by the
// threshold predicates, so one pass over the progress rows serves them all.
type completionSnapshot struct {
	total    int
	firstTry int
	lastHour int
	today    int
	days     map[string]bool // local dates with at least one completion
}

func buildSnapshot(completions []models.UserProgress, now time.Time) *completionSnapshot {
	snap := &completionSnapshot{days: make(map[string]bool)}
	hourAgo := now.Add(-time.Hour)
	today := dateKey(now)

	for _, p := range completions {
		snap.total++
		if p.FirstTry {
			snap.firstTry++
		}
		if p.CompletedAt == nil {
			continue
		}
		at := p.CompletedAt.Local()
		if at.After(hourAgo) {
			snap.lastHour++
		}
		key := dateKey(at)
		if key == today {
			snap.today++
		}
		snap.days[key] = true
	}
	return snap
}

// streak counts consecutive completion days ending today, or yesterday when
// today has no completion yet.
func (s *completionSnapshot) streak(now time.Time) int {
	day := now
	if !s.days[dateKey(day)] {
		day = day.AddDate(0, 0, -1)
	}
	n := 0
	for s.days[dateKey(day)] {
		n++
		day = day.AddDate(0, 0, -1)
	}
	return n
}

func dateKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// chapterDone reports whether the user has completed every exercise of the
// chapter containing exerciseID.
func (e *Engine) chapterDone(userID uint, exerciseID string) (bool, error) {
	var ex models.Exercise
	if err := e.db.Select("id", "chapter_id").First(&ex, "id = ?", exerciseID).Error; err != nil {
		// An exercise deleted from the catalog cannot complete a chapter.
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	var total int64
	if err := e.db.Model(&models.Exercise{}).Where("chapter_id = ?", ex.ChapterID).Count(&total).Error; err != nil {
		return false, err
	}

	var done int64
	err := e.db.Model(&models.UserProgress{}).
		Joins("JOIN exercises ON exercises.id = user_progresses.exercise_id").
		Where("user_progresses.user_id = ? AND user_progresses.completed = ? AND exercises.chapter_id = ?",
			userID, true, ex.ChapterID).
		Count(&done).Error
	if err != nil {
		return false, err
	}

	return total > 0 && done >= total, nil
}

// languageDone reports whether the user has completed every exercise of the
// language containing exerciseID.
func (e *Engine) languageDone(userID uint, exerciseID string) (bool, error) {
	var ex models.Exercise
	if err := e.db.Select("id", "chapter_id").First(&ex, "id = ?", exerciseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	var ch models.Chapter
	if err := e.db.Select("id", "language_id").First(&ch, "id = ?", ex.ChapterID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	var total int64
	err := e.db.Model(&models.Exercise{}).
		Joins("JOIN chapters ON chapters.id = exercises.chapter_id").
		Where("chapters.language_id = ?", ch.LanguageID).
		Count(&total).Error
	if err != nil {
		return false, err
	}

	var done int64
	err = e.db.Model(&models.UserProgress{}).
		Joins("JOIN exercises ON exercises.id = user_progresses.exercise_id").
		Joins("JOIN chapters ON chapters.id = exercises.chapter_id").
		Where("user_progresses.user_id = ? AND user_progresses.completed = ? AND chapters.language_id = ?",
			userID, true, ch.LanguageID).
		Count(&done).Error
	if err != nil {
		return false, err
	}

	return total > 0 && done >= total, nil
}
