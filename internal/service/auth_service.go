package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/config"
	"github.com/stemsi/labexam-backend/internal/model"
	"github.com/stemsi/labexam-backend/internal/repository"
	"golang.org/x/crypto/bcrypt"
)

// TokenType distinguishes account tokens from exam session tokens.
type TokenType string

const (
	TokenTypeUser    TokenType = "user"
	TokenTypeSession TokenType = "session"
)

// Claims extends JWT standard claims with app-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	TokenType TokenType      `json:"token_type"`
	UserID    uuid.UUID      `json:"user_id"`
	Role      model.UserRole `json:"role,omitempty"` // User only
	SessionID uuid.UUID      `json:"session_id"`     // Session only
	ExamID    uuid.UUID      `json:"exam_id"`        // Session only
}

// IsStaff reports whether a user token belongs to a professor or an admin.
func (c *Claims) IsStaff() bool {
	return c.TokenType == TokenTypeUser && (c.Role == model.UserRoleProfessor || c.Role == model.UserRoleAdmin)
}

// Actor returns the identity used for exam ownership checks.
func (c *Claims) Actor() Actor {
	return Actor{UserID: c.UserID, Role: c.Role}
}

// Actor is the authenticated user performing an exam management operation.
type Actor struct {
	UserID uuid.UUID
	Role   model.UserRole
}

// Owns reports whether the actor may manage the exam. Admins manage every exam.
func (a Actor) Owns(e *model.Exam) bool {
	return a.Role == model.UserRoleAdmin || e.ProfessorID == a.UserID
}

// AuthService handles accounts, passwords and JWTs.
type AuthService struct {
	cfg   *config.Config
	users UserStore
	log   zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(cfg *config.Config, users UserStore, log zerolog.Logger) *AuthService {
	return &AuthService{
		cfg:   cfg,
		users: users,
		log:   log.With().Str("component", "auth_service").Logger(),
	}
}

// HashPassword hashes a password with the configured bcrypt cost.
func (s *AuthService) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	return string(hash), err
}

// CheckPassword compares a plaintext password against a bcrypt hash.
func (s *AuthService) CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Login verifies credentials and issues a user token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (*model.LoginResponse, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if err := s.CheckPassword(u.PasswordHash, req.Password); err != nil {
		return nil, err
	}

	token, err := s.GenerateUserToken(u)
	if err != nil {
		return nil, err
	}
	return &model.LoginResponse{Token: token, User: *u}, nil
}

// Register creates a PROFESSOR or STUDENT account. ADMIN accounts come from
// RegisterAdmin or cmd/create-user.
func (s *AuthService) Register(ctx context.Context, req model.RegisterUserRequest) (*model.User, error) {
	role := model.UserRoleProfessor
	if req.Role == string(model.UserRoleStudent) {
		role = model.UserRoleStudent
	}
	return s.CreateUser(ctx, req.Email, req.Password, req.Name, req.Department, req.RollNumber, role)
}

// RegisterAdmin creates an ADMIN account on behalf of an existing admin.
func (s *AuthService) RegisterAdmin(ctx context.Context, by Actor, req model.RegisterAdminRequest) (*model.User, error) {
	if by.Role != model.UserRoleAdmin {
		return nil, ErrNotAdmin
	}
	u, err := s.CreateUser(ctx, req.Email, req.Password, req.Name, req.Department, "", model.UserRoleAdmin)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", u.ID.String()).Str("created_by", by.UserID.String()).Msg("Admin registered")
	return u, nil
}

// UpdateDepartment changes the department of the calling account.
func (s *AuthService) UpdateDepartment(ctx context.Context, userID uuid.UUID, department string) (*model.User, error) {
	department = strings.TrimSpace(department)
	if department == "" {
		return nil, ErrDepartmentRequired
	}
	u, err := s.users.UpdateDepartment(ctx, userID, department)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("update department: %w", err)
	}
	return u, nil
}

// CreateUser hashes the password and stores a new account.
func (s *AuthService) CreateUser(ctx context.Context, email, password, name, department, rollNumber string, role model.UserRole) (*model.User, error) {
	hash, err := s.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &model.User{
		Email:        normalizeEmail(email),
		Name:         strings.TrimSpace(name),
		Role:         role,
		Department:   strings.TrimSpace(department),
		RollNumber:   strings.TrimSpace(rollNumber),
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.log.Info().Str("user_id", u.ID.String()).Str("role", string(role)).Msg("User created")
	return u, nil
}

// GetUser returns the account behind a user token.
func (s *AuthService) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

// ListUsers returns every account.
func (s *AuthService) ListUsers(ctx context.Context) ([]model.User, error) {
	return s.users.List(ctx)
}

// GenerateUserToken creates a JWT for a staff or student account.
func (s *AuthService) GenerateUserToken(u *model.User) (string, error) {
	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.JWTExpiry)),
		},
		TokenType: TokenTypeUser,
		UserID:    u.ID,
		Role:      u.Role,
	}
	return s.sign(claims)
}

// GenerateSessionToken creates the credential a lab client uses for every call
// after start. It outlives the exam so a late submit still authenticates.
func (s *AuthService) GenerateSessionToken(sessionID, examID uuid.UUID, examDuration time.Duration) (string, error) {
	now := time.Now()
	ttl := max(s.cfg.SessionTokenTTL, examDuration+time.Hour)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   sessionID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: TokenTypeSession,
		SessionID: sessionID,
		ExamID:    examID,
	}
	return s.sign(claims)
}

func (s *AuthService) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func (s *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
