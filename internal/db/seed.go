package db

import (
	"fmt"

	"code-judge/internal/logging"
	"code-judge/pkg/models"

	"go.uber.org/zap"
	"gorm.io/gorm/clause"
)

// DefaultAchievements is the built-in badge catalog. Seeding is additive:
// existing rows keep any admin edits, new kinds are inserted as released.
func DefaultAchievements() []models.Achievement {
	return []models.Achievement{
		{ID: "first-steps", Category: "progress", Name: "First Steps", Description: "Complete your first exercise", Icon: "🌱", Points: 10, Kind: models.AchievementKindTotalCompleted, Threshold: 1},
		{ID: "getting-warmer", Category: "progress", Name: "Getting Warmer", Description: "Complete 5 exercises", Icon: "🔥", Points: 25, Kind: models.AchievementKindTotalCompleted, Threshold: 5},
		{ID: "quarter-century", Category: "progress", Name: "Quarter Century", Description: "Complete 25 exercises", Icon: "🏅", Points: 100, Kind: models.AchievementKindTotalCompleted, Threshold: 25},
		{ID: "centurion", Category: "progress", Name: "Centurion", Description: "Complete 100 exercises", Icon: "💯", Points: 500, Kind: models.AchievementKindTotalCompleted, Threshold: 100},

		{ID: "sharpshooter", Category: "skill", Name: "Sharpshooter", Description: "Solve 5 exercises on the first try", Icon: "🎯", Points: 50, Kind: models.AchievementKindFirstTry, Threshold: 5},
		{ID: "bullseye", Category: "skill", Name: "Bullseye", Description: "Solve 20 exercises on the first try", Icon: "🏹", Points: 200, Kind: models.AchievementKindFirstTry, Threshold: 20},

		{ID: "persistent", Category: "grit", Name: "Persistent", Description: "Crack an exercise after 10 or more attempts", Icon: "🧗", Points: 50, Kind: models.AchievementKindPersistence, Threshold: 10},

		{ID: "hour-rush", Category: "speed", Name: "Hour Rush", Description: "Complete 5 exercises within one hour", Icon: "⏱️", Points: 50, Kind: models.AchievementKindHourRush, Threshold: 5},
		{ID: "day-rush", Category: "speed", Name: "Marathon Day", Description: "Complete 10 exercises in a single day", Icon: "🏃", Points: 75, Kind: models.AchievementKindDayRush, Threshold: 10},

		{ID: "night-owl", Category: "habit", Name: "Night Owl", Description: "Complete an exercise between midnight and 5am", Icon: "🦉", Points: 20, Kind: models.AchievementKindNightOwl},
		{ID: "early-bird", Category: "habit", Name: "Early Bird", Description: "Complete an exercise between 5am and 8am", Icon: "🐦", Points: 20, Kind: models.AchievementKindEarlyBird},

		{ID: "streak-3", Category: "habit", Name: "On a Roll", Description: "Complete exercises on 3 consecutive days", Icon: "📆", Points: 30, Kind: models.AchievementKindStreak, Threshold: 3},
		{ID: "streak-7", Category: "habit", Name: "Weekly Ritual", Description: "Complete exercises on 7 consecutive days", Icon: "🗓️", Points: 100, Kind: models.AchievementKindStreak, Threshold: 7},
		{ID: "streak-30", Category: "habit", Name: "Iron Discipline", Description: "Complete exercises on 30 consecutive days", Icon: "🏆", Points: 500, Kind: models.AchievementKindStreak, Threshold: 30},

		{ID: "chapter-master", Category: "mastery", Name: "Chapter Master", Description: "Complete every exercise in a chapter", Icon: "📖", Points: 100, Kind: models.AchievementKindChapterComplete},
		{ID: "language-master", Category: "mastery", Name: "Language Master", Description: "Complete every chapter of a language", Icon: "👑", Points: 1000, Kind: models.AchievementKindLanguageComplete},
	}
}

// RunSeeds inserts the built-in achievement catalog and the default shell
// language when the catalog is empty.
func (d *Database) RunSeeds() error {
	for _, a := range DefaultAchievements() {
		if err := d.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&a).Error; err != nil {
			return fmt.Errorf("seed achievement %s: %w", a.ID, err)
		}
	}

	var languages int64
	if err := d.DB.Model(&models.Language{}).Count(&languages).Error; err != nil {
		return err
	}
	if languages == 0 {
		shell := models.Language{
			ID:          "shell",
			Name:        "Shell",
			Extension:   "sh",
			Interpreter: "sh",
			Image:       "alpine",
			OrderIndex:  1,
			Enabled:     true,
		}
		if err := d.DB.Create(&shell).Error; err != nil {
			return fmt.Errorf("seed shell language: %w", err)
		}
		logging.L().Info("seeded default language", zap.String("language", shell.ID))
	}

	return nil
}
