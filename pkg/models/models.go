package models

import (
	"time"
)

// Language describes an execution environment for submissions. The identifier
// is stable and never reused; attributes are mutable by admins.
type Language struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name        string `json:"name" gorm:"not null"`
	Extension   string `json:"extension" gorm:"not null"` // source file extension, without dot
	Interpreter string `json:"interpreter" gorm:"not null"`
	Image       string `json:"image" gorm:"not null"` // container image used for runs
	OrderIndex  int    `json:"order_index" gorm:"default:0"`
	Enabled     bool   `json:"enabled" gorm:"default:true"`

	Chapters []Chapter `json:"chapters,omitempty" gorm:"foreignKey:LanguageID;constraint:OnDelete:CASCADE"`
}

// Chapter groups exercises inside a language.
type Chapter struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LanguageID string `json:"language_id" gorm:"index;not null"`
	Name       string `json:"name" gorm:"not null"`
	OrderIndex int    `json:"order_index" gorm:"default:0"`

	Exercises []Exercise `json:"exercises,omitempty" gorm:"foreignKey:ChapterID;constraint:OnDelete:CASCADE"`
}

// Exercise is a single gradable task. The identifier is user-facing and must
// match [a-z0-9-]+; it is unique across all languages.
type Exercise struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ChapterID   uint   `json:"chapter_id" gorm:"index;not null"`
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"` // opaque markup rendered by the frontend
	Solution    string `json:"solution,omitempty" gorm:"type:text"`
	OrderIndex  int    `json:"order_index" gorm:"default:0"`

	TestCases []TestCase `json:"test_cases,omitempty" gorm:"foreignKey:ExerciseID;constraint:OnDelete:CASCADE"`
}

// TestCase is one invocation specification used to judge a submission.
// Order indices are dense and unique within an exercise.
type TestCase struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ExerciseID string `json:"exercise_id" gorm:"index;not null"`
	OrderIndex int    `json:"order_index" gorm:"not null"`

	Args           []string          `json:"args" gorm:"serializer:json"`
	StdinLines     []string          `json:"stdin_lines" gorm:"serializer:json"`
	ExpectedStdout string            `json:"expected_stdout" gorm:"type:text"`
	ExpectedStderr string            `json:"expected_stderr" gorm:"type:text"`
	ExpectedExit   int               `json:"expected_exit" gorm:"default:0"`
	Fixtures       []string          `json:"fixtures" gorm:"serializer:json"`
	OutputFiles    map[string]string `json:"output_files,omitempty" gorm:"serializer:json"` // filename -> expected SHA-256 hex
}

// Fixture is a file or folder asset staged into workspaces before execution.
// Content lives on disk under the fixtures root, mirroring Path; the record
// carries metadata only.
type Fixture struct {
	Path      string    `json:"path" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Kind        string `json:"kind" gorm:"not null"` // file, folder
	Size        int64  `json:"size" gorm:"default:0"`
	Permissions string `json:"permissions" gorm:"not null"` // nine-character rwx string
}

const (
	FixtureKindFile   = "file"
	FixtureKindFolder = "folder"
)

// User is a learner or admin. Users are auto-created on first successful
// authentication; ExternalID is the identity-provider subject.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	ExternalID   string     `json:"external_id" gorm:"uniqueIndex"`
	Email        string     `json:"email" gorm:"uniqueIndex;not null"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"` // set only for local-credential accounts
	IsAdmin      bool       `json:"is_admin" gorm:"default:false"`
	LastLoginAt  *time.Time `json:"last_login_at"`

	Progress     []UserProgress    `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Achievements []UserAchievement `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// UserProgress tracks one user's history against one exercise.
// Invariant: SuccessfulAttempts + FailedAttempts = Attempts.
type UserProgress struct {
	UserID     uint   `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	ExerciseID string `json:"exercise_id" gorm:"primaryKey"`

	Completed          bool       `json:"completed" gorm:"default:false"`
	FirstTry           bool       `json:"first_try" gorm:"default:false"` // completed with zero failed attempts beforehand
	LastSubmission     string     `json:"last_submission" gorm:"type:text"`
	FirstSeenAt        time.Time  `json:"first_seen_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	Attempts           int        `json:"attempts" gorm:"default:0"`
	SuccessfulAttempts int        `json:"successful_attempts" gorm:"default:0"`
	FailedAttempts     int        `json:"failed_attempts" gorm:"default:0"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Achievement kinds understood by the progress engine.
const (
	AchievementKindTotalCompleted   = "total_completed"   // exercises completed >= threshold
	AchievementKindFirstTry         = "first_try"         // first-try completions >= threshold
	AchievementKindPersistence      = "persistence"       // one exercise completed after >= threshold attempts
	AchievementKindHourRush         = "hour_rush"         // completions in the last rolling hour >= threshold
	AchievementKindDayRush          = "day_rush"          // completions in the local calendar day >= threshold
	AchievementKindNightOwl         = "night_owl"         // completion with local hour in [0,5)
	AchievementKindEarlyBird        = "early_bird"        // completion with local hour in [5,8)
	AchievementKindStreak           = "streak"            // consecutive-day completion streak >= threshold
	AchievementKindChapterComplete  = "chapter_complete"  // every exercise of a chapter completed
	AchievementKindLanguageComplete = "language_complete" // every chapter of a language completed
)

// Achievement is a badge definition; the (Kind, Threshold) pair encodes the
// requirement predicate.
type Achievement struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	Category    string `json:"category" gorm:"not null"`
	Name        string `json:"name" gorm:"not null"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Points      int    `json:"points" gorm:"default:0"`
	Kind        string `json:"kind" gorm:"not null"`
	Threshold   int    `json:"threshold" gorm:"default:0"`
}

// UserAchievement records an earned badge. Once present it is never removed.
type UserAchievement struct {
	UserID        uint      `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	AchievementID string    `json:"achievement_id" gorm:"primaryKey"`
	EarnedAt      time.Time `json:"earned_at"`
	Progress      int       `json:"progress" gorm:"default:100"` // percentage at award time
}
