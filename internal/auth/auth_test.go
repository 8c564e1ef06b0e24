package auth

import (
	"testing"
	"time"

	"code-judge/pkg/models"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestService(t *testing.T, adminEmails ...string) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	s := NewService(db, "test-secret", adminEmails)
	s.bcryptCost = 4 // MinCost keeps the suite fast
	return s
}

func TestHashAndCheckPassword(t *testing.T) {
	s := newTestService(t)

	hash, err := s.HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	assert.NoError(t, s.CheckPassword("correct horse", hash))
	assert.ErrorIs(t, s.CheckPassword("wrong", hash), ErrInvalidCredentials)
}

func TestRegisterAndLogin(t *testing.T) {
	s := newTestService(t)

	user, err := s.Register("Learner@Example.com", "Learner", "password123", false)
	require.NoError(t, err)
	assert.Equal(t, "learner@example.com", user.Email, "emails are stored lowercased")
	assert.NotEmpty(t, user.PasswordHash)

	resp, err := s.Login(&LoginRequest{Email: "learner@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.NotEmpty(t, resp.AccessToken)
	require.NotNil(t, resp.User.LastLoginAt)

	_, err = s.Login(&LoginRequest{Email: "learner@example.com", Password: "nope"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Login(&LoginRequest{Email: "stranger@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterRejectsDuplicatesAndShortPasswords(t *testing.T) {
	s := newTestService(t)

	_, err := s.Register("a@example.com", "A", "password123", false)
	require.NoError(t, err)

	_, err = s.Register("A@example.com", "A again", "password456", false)
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = s.Register("b@example.com", "B", "short", false)
	assert.Error(t, err)
}

func TestLoginRejectsExternalOnlyAccounts(t *testing.T) {
	s := newTestService(t)

	_, err := s.EnsureUser("provider|123", "sso@example.com", "SSO User")
	require.NoError(t, err)

	// No local password hash means local login can never succeed.
	_, err = s.Login(&LoginRequest{Email: "sso@example.com", Password: "anything"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestEnsureUserCreatesAndRefreshes(t *testing.T) {
	s := newTestService(t, "Boss@Example.com")

	user, err := s.EnsureUser("provider|1", "Boss@Example.com", "The Boss")
	require.NoError(t, err)
	assert.Equal(t, "boss@example.com", user.Email)
	assert.True(t, user.IsAdmin, "listed emails become admins on creation")
	require.NotNil(t, user.LastLoginAt)

	// Second contact resolves to the same record, not a new one.
	again, err := s.EnsureUser("provider|1", "boss@example.com", "Renamed Boss")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)
	assert.Equal(t, "Renamed Boss", again.Name)

	var count int64
	s.db.Model(&models.User{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestEnsureUserFallsBackToEmail(t *testing.T) {
	s := newTestService(t)

	user, err := s.Register("mover@example.com", "Mover", "password123", false)
	require.NoError(t, err)

	// A provider change keeps the account through the email match.
	linked, err := s.EnsureUser("newprovider|42", "mover@example.com", "")
	require.NoError(t, err)
	assert.Equal(t, user.ID, linked.ID)

	stored, err := s.GetUser(user.ID)
	require.NoError(t, err)
	assert.Equal(t, "newprovider|42", stored.ExternalID)
}

func TestIsAdminSources(t *testing.T) {
	s := newTestService(t, "root@example.com")

	assert.True(t, s.IsAdmin(&models.User{Email: "user@example.com", IsAdmin: true}))
	assert.True(t, s.IsAdmin(&models.User{Email: "Root@Example.com"}))
	assert.False(t, s.IsAdmin(&models.User{Email: "user@example.com"}))
}

func TestIssueAndValidateToken(t *testing.T) {
	s := newTestService(t, "admin@example.com")

	user, err := s.Register("admin@example.com", "Admin", "password123", false)
	require.NoError(t, err)

	resp, err := s.IssueToken(user)
	require.NoError(t, err)

	claims, err := s.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, "admin@example.com", claims.Email)
	assert.True(t, claims.IsAdmin, "email-list standing rides inside the token")
	assert.Equal(t, "code-judge", claims.Issuer)
}

func TestValidateTokenRejectsGarbageAndForeignKeys(t *testing.T) {
	s := newTestService(t)

	_, err := s.ValidateToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other := NewService(s.db, "different-secret", nil)
	resp, err := other.IssueToken(&models.User{ID: 7, Email: "x@example.com"})
	require.NoError(t, err)

	_, err = s.ValidateToken(resp.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidateTokenExpiry(t *testing.T) {
	s := newTestService(t)

	claims := &Claims{
		UserID: 1,
		Email:  "x@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	require.NoError(t, err)

	_, err = s.ValidateToken(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestUserAdministration(t *testing.T) {
	s := newTestService(t)

	a, err := s.Register("a@example.com", "A", "password123", false)
	require.NoError(t, err)
	_, err = s.Register("b@example.com", "B", "password123", true)
	require.NoError(t, err)

	users, err := s.ListUsers()
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a@example.com", users[0].Email)

	name := "A Prime"
	admin := true
	updated, err := s.UpdateUser(a.ID, &UserUpdate{Name: &name, IsAdmin: &admin})
	require.NoError(t, err)
	assert.Equal(t, "A Prime", updated.Name)
	assert.True(t, updated.IsAdmin)

	// Untouched fields survive a partial update.
	updated, err = s.UpdateUser(a.ID, &UserUpdate{})
	require.NoError(t, err)
	assert.Equal(t, "A Prime", updated.Name)

	require.NoError(t, s.DeleteUser(a.ID))
	assert.ErrorIs(t, s.DeleteUser(a.ID), ErrUserNotFound)
	_, err = s.GetUser(a.ID)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
