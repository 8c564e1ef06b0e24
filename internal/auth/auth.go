// Package auth issues and validates access tokens and maintains user
// identities. Users are created automatically the first time a valid
// identity shows up; admin standing comes from the user record or from the
// configured admin email list.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"code-judge/pkg/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
)

// Service handles authentication and authorization.
type Service struct {
	db          *gorm.DB
	jwtSecret   []byte
	tokenExpiry time.Duration
	bcryptCost  int
	adminEmails map[string]bool
}

// Claims is the access-token payload.
type Claims struct {
	UserID  uint   `json:"user_id"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// LoginRequest carries local credentials.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// TokenResponse is the login payload returned to clients.
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresAt   time.Time    `json:"expires_at"`
	User        *models.User `json:"user"`
}

// NewService creates the auth service. adminEmails entries are matched
// case-insensitively against user emails.
func NewService(db *gorm.DB, jwtSecret string, adminEmails []string) *Service {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[strings.ToLower(e)] = true
	}
	return &Service{
		db:          db,
		jwtSecret:   []byte(jwtSecret),
		tokenExpiry: 24 * time.Hour,
		bcryptCost:  12,
		adminEmails: admins,
	}
}

// IsAdmin reports whether the user holds admin standing, either through the
// persisted flag or the configured email list.
func (s *Service) IsAdmin(user *models.User) bool {
	return user.IsAdmin || s.adminEmails[strings.ToLower(user.Email)]
}

// HashPassword hashes a password using bcrypt.
func (s *Service) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// CheckPassword compares a password with its hash.
func (s *Service) CheckPassword(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login authenticates local credentials and returns a signed token.
func (s *Service) Login(req *LoginRequest) (*TokenResponse, error) {
	var user models.User
	err := s.db.First(&user, "email = ?", strings.ToLower(req.Email)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := s.CheckPassword(req.Password, user.PasswordHash); err != nil {
		return nil, err
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := s.db.Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, err
	}

	return s.issueToken(&user)
}

// EnsureUser resolves an externally-authenticated identity to a local user,
// creating the record on first contact and refreshing the login timestamp.
func (s *Service) EnsureUser(externalID, email, name string) (*models.User, error) {
	email = strings.ToLower(email)
	now := time.Now()

	var user models.User
	err := s.db.First(&user, "external_id = ?", externalID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Fall back to email so a provider change keeps the account.
		err = s.db.First(&user, "email = ?", email).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			ExternalID:  externalID,
			Email:       email,
			Name:        name,
			IsAdmin:     s.adminEmails[email],
			LastLoginAt: &now,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, err
		}
		return &user, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{"last_login_at": now}
	if user.ExternalID == "" && externalID != "" {
		updates["external_id"] = externalID
	}
	if name != "" && user.Name != name {
		updates["name"] = name
	}
	if err := s.db.Model(&user).Updates(updates).Error; err != nil {
		return nil, err
	}
	user.LastLoginAt = &now
	return &user, nil
}

// Register creates a local-credential user. Admin-only; ordinary accounts
// arrive through EnsureUser.
func (s *Service) Register(email, name, password string, isAdmin bool) (*models.User, error) {
	email = strings.ToLower(email)
	if len(password) < 8 {
		return nil, errors.New("password must be at least 8 characters")
	}

	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUserExists
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GetUser loads a user by primary key.
func (s *Service) GetUser(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// IssueToken signs a token for an already-resolved user.
func (s *Service) IssueToken(user *models.User) (*TokenResponse, error) {
	return s.issueToken(user)
}

func (s *Service) issueToken(user *models.User) (*TokenResponse, error) {
	now := time.Now()
	expiresAt := now.Add(s.tokenExpiry)

	claims := &Claims{
		UserID:  user.ID,
		Email:   user.Email,
		IsAdmin: s.IsAdmin(user),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "code-judge",
			Subject:   fmt.Sprintf("user:%d", user.ID),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

// ValidateToken validates and parses an access token.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
