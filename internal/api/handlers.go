package api

import (
	"context"
	"net/http"

	"code-judge/internal/auth"
	"code-judge/internal/catalog"
	"code-judge/internal/grader"
	"code-judge/internal/metrics"
	"code-judge/internal/middleware"
	"code-judge/pkg/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Health is the readiness probe.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"runtime": s.runner.Runtime(),
	})
}

// Login authenticates local credentials and returns an access token.
func (s *Server) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}
	token, err := s.auth.Login(&req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, token)
}

// CurrentUser reports the caller's identity; anonymous callers get
// authenticated=false rather than an error.
func (s *Server) CurrentUser(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"authenticated": false, "user": nil})
		return
	}
	user, err := s.auth.GetUser(userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user":          user,
		"is_admin":      s.auth.IsAdmin(user),
	})
}

// ListLanguages returns all languages in display order.
func (s *Server) ListLanguages(c *gin.Context) {
	langs, err := s.catalog.ListLanguages()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"languages": langs})
}

// ListChapters returns a language's chapters in display order.
func (s *Server) ListChapters(c *gin.Context) {
	chapters, err := s.catalog.ListChapters(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chapters": chapters})
}

// ListExercises returns ordered exercise metadata for the requested language
// (the first enabled language when none is given). Solutions and test cases
// never appear here.
func (s *Server) ListExercises(c *gin.Context) {
	languageID, err := s.resolveLanguage(c.Query("language"))
	if err != nil {
		s.fail(c, err)
		return
	}

	cacheKey := "exercises:" + languageID
	var cached []models.Exercise
	if s.cache.GetJSON(c.Request.Context(), cacheKey, &cached) {
		c.JSON(http.StatusOK, gin.H{"language": languageID, "exercises": cached})
		return
	}

	list, err := s.catalog.ListExercises(languageID)
	if err != nil {
		s.fail(c, err)
		return
	}
	for i := range list {
		list[i].Solution = ""
	}
	s.cache.SetJSON(c.Request.Context(), cacheKey, list)
	c.JSON(http.StatusOK, gin.H{"language": languageID, "exercises": list})
}

// GetExercise returns one exercise's metadata, without solution or test cases.
func (s *Server) GetExercise(c *gin.Context) {
	ex, err := s.catalog.GetExercise(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	ex.Solution = ""
	c.JSON(http.StatusOK, ex)
}

type runRequest struct {
	Script string `json:"script" binding:"required"`
}

// RunExercise grades a submission against an exercise's test cases and
// records the attempt. The grade is authoritative: a failure while recording
// progress is logged and the verdict is still returned.
func (s *Server) RunExercise(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": "AUTH_REQUIRED"})
		return
	}

	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "script is required")
		return
	}

	ex, err := s.catalog.GetExerciseWithTests(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	languageID, err := s.languageOf(ex)
	if err != nil {
		s.fail(c, err)
		return
	}

	// Grading runs on a detached context: a client abort must not kill
	// in-flight containers mid-case.
	results, err := s.grader.Grade(context.Background(), ex, req.Script, languageID)
	if err != nil {
		s.fail(c, err)
		return
	}

	passed := grader.AllPassed(results)
	casesPassed, casesFailed := tally(results)
	metrics.Get().RecordGrade(passed, casesPassed, casesFailed)

	prog, earned, err := s.progress.RecordAttempt(userID, ex.ID, passed, req.Script)
	if err != nil {
		s.log.Error("progress recording failed",
			zap.Uint("user", userID), zap.String("exercise", ex.ID), zap.Error(err))
	}

	resp := gin.H{
		"passed":  passed,
		"results": results,
	}
	if prog != nil {
		resp["statistics"] = prog
	}
	if len(earned) > 0 {
		resp["new_achievements"] = earned
	}
	c.JSON(http.StatusOK, resp)
}

// Statistics returns the caller's aggregate standing.
func (s *Server) Statistics(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	stats, err := s.progress.Summary(userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ExerciseStatistics returns the caller's progress on one exercise.
func (s *Server) ExerciseStatistics(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	prog, err := s.progress.Get(userID, c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, prog)
}

// ListAchievements returns the full badge catalog.
func (s *Server) ListAchievements(c *gin.Context) {
	list, err := s.progress.ListCatalog()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievements": list})
}

// MyAchievements returns the caller's earned badges, newest first.
func (s *Server) MyAchievements(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	list, err := s.progress.ListEarned(userID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"achievements": list})
}

// resolveLanguage picks the requested language or falls back to the first
// enabled one.
func (s *Server) resolveLanguage(requested string) (string, error) {
	if requested != "" {
		lang, err := s.catalog.GetLanguage(requested)
		if err != nil {
			return "", err
		}
		return lang.ID, nil
	}
	langs, err := s.catalog.ListLanguages()
	if err != nil {
		return "", err
	}
	for _, l := range langs {
		if l.Enabled {
			return l.ID, nil
		}
	}
	if len(langs) > 0 {
		return langs[0].ID, nil
	}
	return "", catalog.ErrNotFound
}

// languageOf resolves the language an exercise belongs to through its chapter.
func (s *Server) languageOf(ex *models.Exercise) (string, error) {
	ch, err := s.catalog.GetChapter(ex.ChapterID)
	if err != nil {
		return "", err
	}
	return ch.LanguageID, nil
}

func tally(results []grader.TestResult) (passed, failed int) {
	for _, r := range results {
		if r.Passed {
			passed++
		} else {
			failed++
		}
	}
	return
}
