package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	authdomain "mailcake-backend/internal/auth/domain"
	"mailcake-backend/internal/auth/repository"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// AuthUsecase validates the bearer tokens presented to the sync API.
type AuthUsecase interface {
	ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error)
	IssueAccessToken(user *authdomain.User) (string, error)
}

// authUsecase implements AuthUsecase interface
type authUsecase struct {
	userRepo  repository.UserRepository
	secret    []byte
	accessTTL time.Duration
}

// NewAuthUsecase creates a new instance of authUsecase
func NewAuthUsecase(userRepo repository.UserRepository, secret string, accessTTL time.Duration) AuthUsecase {
	return &authUsecase{
		userRepo:  userRepo,
		secret:    []byte(secret),
		accessTTL: accessTTL,
	}
}

func (u *authUsecase) IssueAccessToken(user *authdomain.User) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"exp":     now.Add(u.accessTTL).Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(u.secret)
}

func (u *authUsecase) ValidateToken(ctx context.Context, tokenString string) (*authdomain.User, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return u.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return nil, ErrInvalidToken
	}

	user, err := u.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load token owner: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidToken
	}

	return user, nil
}
