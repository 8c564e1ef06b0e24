package api

import (
	"code-judge/internal/metrics"
	"code-judge/internal/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router assembles the gin engine with the full middleware chain and route
// table.
func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(metrics.Middleware())

	r.GET("/health", s.Health)
	r.GET("/metrics", metrics.Handler())
	r.POST("/auth/login", s.Login)
	r.GET("/user", middleware.OptionalAuth(s.auth), s.CurrentUser)

	// Public catalog reads: metadata only, no solutions, no test cases.
	r.GET("/languages", s.ListLanguages)
	r.GET("/languages/:id/chapters", s.ListChapters)
	r.GET("/exercises", s.ListExercises)
	r.GET("/exercises/:id", s.GetExercise)

	// Grading is throttled per user on top of the global container ceiling.
	runLimiter := middleware.NewKeyedRateLimiter(rate.Limit(1), 5)

	authed := r.Group("/", middleware.RequireAuth(s.auth))
	{
		authed.POST("/exercises/:id/run", middleware.RateLimit(runLimiter), s.RunExercise)
		authed.GET("/statistics", s.Statistics)
		authed.GET("/statistics/:id", s.ExerciseStatistics)
		authed.GET("/achievements", s.ListAchievements)
		authed.GET("/achievements/mine", s.MyAchievements)
	}

	admin := r.Group("/admin", middleware.RequireAuth(s.auth), middleware.RequireAdmin())
	{
		admin.GET("/exercises", s.AdminListExercises)
		admin.GET("/exercises/:id/full", s.AdminGetExercise)
		admin.POST("/exercises", s.AdminCreateExercise)
		admin.PUT("/exercises/:id", s.AdminUpdateExercise)
		admin.DELETE("/exercises/:id", s.AdminDeleteExercise)
		admin.POST("/exercises/reorder", s.AdminReorderExercises)

		admin.POST("/test-solution", s.AdminTestSolution)
		admin.POST("/run-test-case", s.AdminRunTestCase)

		admin.POST("/languages", s.AdminCreateLanguage)
		admin.PUT("/languages/:id", s.AdminUpdateLanguage)
		admin.DELETE("/languages/:id", s.AdminDeleteLanguage)
		admin.POST("/chapters", s.AdminCreateChapter)
		admin.PUT("/chapters/:id", s.AdminUpdateChapter)
		admin.DELETE("/chapters/:id", s.AdminDeleteChapter)

		admin.GET("/fixtures", s.AdminListFixtures)
		admin.POST("/fixtures", s.AdminPutFixture)
		admin.DELETE("/fixtures", s.AdminDeleteFixture)
		admin.PUT("/fixtures/permissions", s.AdminSetFixturePermissions)
		admin.GET("/fixtures/contents", s.AdminFolderContents)
		admin.POST("/fixtures/files", s.AdminPutFolderFile)
		admin.DELETE("/fixtures/files", s.AdminDeleteFolderFile)
		admin.POST("/fixtures/sync", s.AdminSyncFixtures)

		admin.GET("/users", s.AdminListUsers)
		admin.GET("/users/:id", s.AdminGetUser)
		admin.POST("/users", s.AdminCreateUser)
		admin.PUT("/users/:id", s.AdminUpdateUser)
		admin.DELETE("/users/:id", s.AdminDeleteUser)
	}

	return r
}
