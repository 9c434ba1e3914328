//go:generate go run go.uber.org/mock/mockgen -source=service.go -destination=../mocks/mock_auth.go -package=mocks
package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"chat-realtime/internal/apperr"
	"chat-realtime/internal/config"
	"chat-realtime/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, req *models.RegisterRequest) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

// Verifier admits a connection: it checks the bearer credential and that it
// belongs to the claimed user.
type Verifier interface {
	Verify(ctx context.Context, token string, claimedUserID int) (models.Identity, error)
}

type Claims struct {
	UserID   int    `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Service struct {
	users    UserStore
	cfg      config.JWTConfig
	validate *validator.Validate
}

func NewService(users UserStore, cfg config.JWTConfig) *Service {
	return &Service{
		users:    users,
		cfg:      cfg,
		validate: validator.New(),
	}
}

func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (*models.LoginResponse, error) {
	req.Username = strings.TrimSpace(req.Username)
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("invalid registration: %w", err)
	}

	user, err := s.users.CreateUser(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return &models.LoginResponse{
		Token: token,
		User:  *user,
	}, nil
}

func (s *Service) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperr.ErrAuthenticationFailed
	}

	user, err := s.users.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, apperr.ErrAuthenticationFailed
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperr.ErrAuthenticationFailed
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	user.PasswordHash = ""

	return &models.LoginResponse{
		Token: token,
		User:  *user,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.Secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// Verify implements Verifier. Every failure is reported as
// apperr.ErrAuthenticationFailed.
func (s *Service) Verify(ctx context.Context, token string, claimedUserID int) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, fmt.Errorf("missing token: %w", apperr.ErrAuthenticationFailed)
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%v: %w", err, apperr.ErrAuthenticationFailed)
	}
	if claims.UserID != claimedUserID {
		return models.Identity{}, fmt.Errorf("token subject %d claimed as %d: %w", claims.UserID, claimedUserID, apperr.ErrAuthenticationFailed)
	}

	user, err := s.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("unknown user %d: %w", claims.UserID, apperr.ErrAuthenticationFailed)
	}

	return models.Identity{ID: user.ID, DisplayName: user.Username}, nil
}

func (s *Service) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.ExpiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-realtime",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.Secret)
}
