package api

import (
	"context"
	"net/http"
	"strconv"

	"code-judge/internal/catalog"
	"code-judge/internal/grader"
	"code-judge/pkg/models"

	"github.com/gin-gonic/gin"
)

// --- Exercise administration ---

// AdminListExercises returns full exercises, test cases included.
func (s *Server) AdminListExercises(c *gin.Context) {
	languageID, err := s.resolveLanguage(c.Query("language"))
	if err != nil {
		s.fail(c, err)
		return
	}
	list, err := s.catalog.ListExercises(languageID)
	if err != nil {
		s.fail(c, err)
		return
	}
	full := make([]models.Exercise, 0, len(list))
	for _, ex := range list {
		loaded, err := s.catalog.GetExerciseWithTests(ex.ID)
		if err != nil {
			s.fail(c, err)
			return
		}
		full = append(full, *loaded)
	}
	c.JSON(http.StatusOK, gin.H{"language": languageID, "exercises": full})
}

// AdminGetExercise returns one full exercise.
func (s *Server) AdminGetExercise(c *gin.Context) {
	ex, err := s.catalog.GetExerciseWithTests(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ex)
}

// AdminCreateExercise inserts an exercise with its test cases.
func (s *Server) AdminCreateExercise(c *gin.Context) {
	var ex models.Exercise
	if err := c.ShouldBindJSON(&ex); err != nil {
		badRequest(c, "invalid exercise payload")
		return
	}
	if err := s.catalog.CreateExercise(&ex); err != nil {
		s.fail(c, err)
		return
	}
	s.invalidateListings(c)
	c.JSON(http.StatusCreated, ex)
}

// AdminUpdateExercise replaces an exercise and its full test-case list.
func (s *Server) AdminUpdateExercise(c *gin.Context) {
	var ex models.Exercise
	if err := c.ShouldBindJSON(&ex); err != nil {
		badRequest(c, "invalid exercise payload")
		return
	}
	if err := s.catalog.UpdateExercise(c.Param("id"), &ex); err != nil {
		s.fail(c, err)
		return
	}
	s.invalidateListings(c)
	c.JSON(http.StatusOK, gin.H{"updated": c.Param("id")})
}

// AdminDeleteExercise removes an exercise; its test cases cascade.
func (s *Server) AdminDeleteExercise(c *gin.Context) {
	if err := s.catalog.DeleteExercise(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.invalidateListings(c)
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// AdminReorderExercises applies a full (chapter, position) assignment.
func (s *Server) AdminReorderExercises(c *gin.Context) {
	var entries []catalog.ReorderEntry
	if err := c.ShouldBindJSON(&entries); err != nil || len(entries) == 0 {
		badRequest(c, "a non-empty reorder list is required")
		return
	}
	if err := s.catalog.ReorderExercises(entries); err != nil {
		s.fail(c, err)
		return
	}
	s.invalidateListings(c)
	c.JSON(http.StatusOK, gin.H{"reordered": len(entries)})
}

// --- Diagnostic runs ---

type testSolutionRequest struct {
	Solution string `json:"solution" binding:"required"`
	Language string `json:"language"`
}

// AdminTestSolution runs a reference script once, without test cases and
// without touching progress.
func (s *Server) AdminTestSolution(c *gin.Context) {
	var req testSolutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "solution is required")
		return
	}
	languageID, err := s.resolveLanguage(req.Language)
	if err != nil {
		s.fail(c, err)
		return
	}

	result, err := s.runner.Execute(context.Background(), req.Solution, languageID,
		nil, nil, nil, s.cfg.PerTestTimeout)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer s.runner.Release(result.Workspace)

	c.JSON(http.StatusOK, result)
}

type runTestCaseRequest struct {
	Solution    string   `json:"solution" binding:"required"`
	Language    string   `json:"language"`
	Arguments   []string `json:"arguments"`
	Input       []string `json:"input"`
	Fixtures    []string `json:"fixtures"`
	OutputFiles []string `json:"outputFiles"`
}

// AdminRunTestCase runs a candidate test-case configuration and reports the
// observed output plus the hash of every named output file, so an admin can
// capture expectations for a new case.
func (s *Server) AdminRunTestCase(c *gin.Context) {
	var req runTestCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "solution is required")
		return
	}
	languageID, err := s.resolveLanguage(req.Language)
	if err != nil {
		s.fail(c, err)
		return
	}

	result, err := s.runner.Execute(context.Background(), req.Solution, languageID,
		req.Arguments, req.Input, req.Fixtures, s.cfg.PerTestTimeout)
	if err != nil {
		s.fail(c, err)
		return
	}
	defer s.runner.Release(result.Workspace)

	expected := make(map[string]string, len(req.OutputFiles))
	for _, name := range req.OutputFiles {
		expected[name] = ""
	}
	files := grader.CheckOutputFiles(result.Workspace, expected)

	c.JSON(http.StatusOK, gin.H{
		"result": result,
		"files":  files,
	})
}

// --- Language / chapter administration ---

// AdminCreateLanguage inserts a language.
func (s *Server) AdminCreateLanguage(c *gin.Context) {
	var lang models.Language
	if err := c.ShouldBindJSON(&lang); err != nil {
		badRequest(c, "invalid language payload")
		return
	}
	if err := s.catalog.CreateLanguage(&lang); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, lang)
}

// AdminUpdateLanguage replaces a language's mutable attributes.
func (s *Server) AdminUpdateLanguage(c *gin.Context) {
	var lang models.Language
	if err := c.ShouldBindJSON(&lang); err != nil {
		badRequest(c, "invalid language payload")
		return
	}
	if err := s.catalog.UpdateLanguage(c.Param("id"), &lang); err != nil {
		s.fail(c, err)
		return
	}
	s.invalidateListings(c)
	c.JSON(http.StatusOK, gin.H{"updated": c.Param("id")})
}

// AdminDeleteLanguage removes a language and everything under it.
func (s *Server) AdminDeleteLanguage(c *gin.Context) {
	if err := s.catalog.DeleteLanguage(c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	s.invalidateListings(c)
	c.JSON(http.StatusOK, gin.H{"deleted": c.Param("id")})
}

// AdminCreateChapter inserts a chapter under an existing language.
func (s *Server) AdminCreateChapter(c *gin.Context) {
	var ch models.Chapter
	if err := c.ShouldBindJSON(&ch); err != nil {
		badRequest(c, "invalid chapter payload")
		return
	}
	if err := s.catalog.CreateChapter(&ch); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// AdminUpdateChapter replaces a chapter's mutable attributes.
func (s *Server) AdminUpdateChapter(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		badRequest(c, "chapter id must be numeric")
		return
	}
	var ch models.Chapter
	if err := c.ShouldBindJSON(&ch); err != nil {
		badRequest(c, "invalid chapter payload")
		return
	}
	if err := s.catalog.UpdateChapter(uint(id), &ch); err != nil {
		s.fail(c, err)
		return
	}
	s.invalidateListings(c)
	c.JSON(http.StatusOK, gin.H{"updated": id})
}

// AdminDeleteChapter removes a chapter; owned exercises cascade.
func (s *Server) AdminDeleteChapter(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		badRequest(c, "chapter id must be numeric")
		return
	}
	if err := s.catalog.DeleteChapter(uint(id)); err != nil {
		s.fail(c, err)
		return
	}
	s.invalidateListings(c)
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// invalidateListings drops every cached exercise listing after a catalog
// write.
func (s *Server) invalidateListings(c *gin.Context) {
	langs, err := s.catalog.ListLanguages()
	if err != nil {
		return
	}
	keys := make([]string, 0, len(langs))
	for _, l := range langs {
		keys = append(keys, "exercises:"+l.ID)
	}
	s.cache.Invalidate(c.Request.Context(), keys...)
}
