package service

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ringboard/ringboard/internal/domain"
)

// SessionPair holds a first-party access token and refresh token.
type SessionPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// SessionService issues and validates first-party session JWTs. These are
// unrelated to provider credentials; they only identify the caller to this
// service.
type SessionService struct {
	secret []byte
}

// NewSessionService creates a new SessionService.
func NewSessionService(secret string) *SessionService {
	return &SessionService{secret: []byte(secret)}
}

// Pair generates an access/refresh token pair for the profile.
func (s *SessionService) Pair(profileID uuid.UUID) (*SessionPair, error) {
	now := time.Now()

	accessToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  profileID.String(),
		"type": "access",
		"iat":  now.Unix(),
		"exp":  now.Add(15 * time.Minute).Unix(),
	})
	accessStr, err := accessToken.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshToken := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  profileID.String(),
		"type": "refresh",
		"iat":  now.Unix(),
		"exp":  now.Add(7 * 24 * time.Hour).Unix(),
	})
	refreshStr, err := refreshToken.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &SessionPair{
		AccessToken:  accessStr,
		RefreshToken: refreshStr,
	}, nil
}

// Validate validates a session access token and returns the profile ID.
func (s *SessionService) Validate(tokenString string) (uuid.UUID, error) {
	return s.parse(tokenString, "access")
}

// Refresh validates a refresh token and returns a new token pair.
func (s *SessionService) Refresh(refreshToken string) (*SessionPair, error) {
	profileID, err := s.parse(refreshToken, "refresh")
	if err != nil {
		return nil, err
	}
	return s.Pair(profileID)
}

func (s *SessionService) parse(tokenString, wantType string) (uuid.UUID, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return uuid.Nil, domain.ErrUnauthorized
	}

	tokenType, _ := claims["type"].(string)
	if tokenType != wantType {
		return uuid.Nil, domain.ErrUnauthorized
	}

	sub, _ := claims["sub"].(string)
	profileID, err := uuid.Parse(sub)
	if err != nil {
		return uuid.Nil, domain.ErrUnauthorized
	}

	return profileID, nil
}
