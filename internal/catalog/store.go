// Package catalog is the durable store for languages, chapters, exercises and
// their test cases.
package catalog

import (
	"errors"
	"fmt"
	"regexp"

	"code-judge/pkg/models"

	"gorm.io/gorm"
)

var (
	ErrNotFound    = errors.New("catalog entry not found")
	ErrInvalidID   = errors.New("exercise identifier must match [a-z0-9-]+")
	ErrNoTestCases = errors.New("an exercise requires at least one test case")
)

var exerciseIDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Store provides transactional access to the exercise catalog.
type Store struct {
	db *gorm.DB
}

// NewStore wraps a gorm handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Languages ---

// ListLanguages returns all languages in display order.
func (s *Store) ListLanguages() ([]models.Language, error) {
	var out []models.Language
	if err := s.db.Order("order_index, id").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// GetLanguage resolves one language record.
func (s *Store) GetLanguage(id string) (*models.Language, error) {
	var lang models.Language
	if err := s.db.First(&lang, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &lang, nil
}

// CreateLanguage inserts a language. The identifier is immutable afterwards.
func (s *Store) CreateLanguage(lang *models.Language) error {
	if lang.ID == "" {
		return fmt.Errorf("%w: empty language id", ErrInvalidID)
	}
	return s.db.Create(lang).Error
}

// UpdateLanguage replaces the mutable attributes of a language.
func (s *Store) UpdateLanguage(id string, lang *models.Language) error {
	res := s.db.Model(&models.Language{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":        lang.Name,
		"extension":   lang.Extension,
		"interpreter": lang.Interpreter,
		"image":       lang.Image,
		"order_index": lang.OrderIndex,
		"enabled":     lang.Enabled,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteLanguage removes a language and, via FK cascade, its chapters and
// exercises.
func (s *Store) DeleteLanguage(id string) error {
	res := s.db.Delete(&models.Language{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Chapters ---

// ListChapters returns a language's chapters in display order.
func (s *Store) ListChapters(languageID string) ([]models.Chapter, error) {
	var out []models.Chapter
	err := s.db.Where("language_id = ?", languageID).Order("order_index, id").Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetChapter resolves one chapter.
func (s *Store) GetChapter(id uint) (*models.Chapter, error) {
	var ch models.Chapter
	if err := s.db.First(&ch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ch, nil
}

// CreateChapter inserts a chapter under an existing language.
func (s *Store) CreateChapter(ch *models.Chapter) error {
	if _, err := s.GetLanguage(ch.LanguageID); err != nil {
		return err
	}
	return s.db.Create(ch).Error
}

// UpdateChapter replaces a chapter's mutable attributes.
func (s *Store) UpdateChapter(id uint, ch *models.Chapter) error {
	res := s.db.Model(&models.Chapter{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":        ch.Name,
		"order_index": ch.OrderIndex,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChapter removes a chapter; owned exercises cascade.
func (s *Store) DeleteChapter(id uint) error {
	res := s.db.Delete(&models.Chapter{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Exercises ---

// ListExercises returns a language's exercises ordered by
// (chapter order, exercise order). Exercises whose chapter disappeared are
// skipped by the join.
func (s *Store) ListExercises(languageID string) ([]models.Exercise, error) {
	var out []models.Exercise
	err := s.db.
		Joins("JOIN chapters ON chapters.id = exercises.chapter_id").
		Where("chapters.language_id = ?", languageID).
		Order("chapters.order_index, exercises.order_index, exercises.id").
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetExercise returns exercise metadata without its test cases.
func (s *Store) GetExercise(id string) (*models.Exercise, error) {
	var ex models.Exercise
	if err := s.db.First(&ex, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ex, nil
}

// GetExerciseWithTests returns an exercise including its ordered test cases.
func (s *Store) GetExerciseWithTests(id string) (*models.Exercise, error) {
	var ex models.Exercise
	err := s.db.Preload("TestCases", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_index")
	}).First(&ex, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &ex, nil
}

// CreateExercise inserts an exercise with its test cases in one transaction.
// Test-case order indices are reassigned densely from input position.
func (s *Store) CreateExercise(ex *models.Exercise) error {
	if !exerciseIDPattern.MatchString(ex.ID) {
		return ErrInvalidID
	}
	if len(ex.TestCases) == 0 {
		return ErrNoTestCases
	}
	if _, err := s.GetChapter(ex.ChapterID); err != nil {
		return err
	}
	normalizeTestCases(ex)
	return s.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(ex).Error
	})
}

// UpdateExercise replaces the exercise attributes and its full test-case list.
// The delete-and-reinsert of cases happens inside a single transaction so an
// exercise is never observed with a partially replaced case list.
func (s *Store) UpdateExercise(id string, ex *models.Exercise) error {
	if len(ex.TestCases) == 0 {
		return ErrNoTestCases
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Exercise
		if err := tx.First(&existing, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		updates := map[string]interface{}{
			"title":       ex.Title,
			"description": ex.Description,
			"solution":    ex.Solution,
			"order_index": ex.OrderIndex,
		}
		if ex.ChapterID != 0 {
			updates["chapter_id"] = ex.ChapterID
		}
		if err := tx.Model(&models.Exercise{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		if err := tx.Where("exercise_id = ?", id).Delete(&models.TestCase{}).Error; err != nil {
			return err
		}
		cases := make([]models.TestCase, len(ex.TestCases))
		copy(cases, ex.TestCases)
		for i := range cases {
			cases[i].ID = 0
			cases[i].ExerciseID = id
			cases[i].OrderIndex = i + 1
		}
		return tx.Create(&cases).Error
	})
}

// DeleteExercise removes an exercise; test cases cascade. Fixtures and user
// progress referencing it are left intact.
func (s *Store) DeleteExercise(id string) error {
	res := s.db.Delete(&models.Exercise{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReorderEntry names an exercise and its target chapter. The new order index
// is the entry's position in the submitted list.
type ReorderEntry struct {
	ExerciseID string `json:"exercise_id"`
	ChapterID  uint   `json:"chapter_id"`
}

// ReorderExercises applies (chapter, position) to every listed exercise in one
// transaction. Applying the same list twice is a no-op.
func (s *Store) ReorderExercises(entries []ReorderEntry) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		for i, e := range entries {
			res := tx.Model(&models.Exercise{}).Where("id = ?", e.ExerciseID).
				Updates(map[string]interface{}{
					"chapter_id":  e.ChapterID,
					"order_index": i + 1,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: exercise %s", ErrNotFound, e.ExerciseID)
			}
		}
		return nil
	})
}

func normalizeTestCases(ex *models.Exercise) {
	for i := range ex.TestCases {
		ex.TestCases[i].ExerciseID = ex.ID
		ex.TestCases[i].OrderIndex = i + 1
	}
}
