package security

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token has expired")
	ErrWrongTokenType = errors.New("wrong token type for this endpoint")
	ErrForbidden      = errors.New("missing required role")
)

type TokenType string

const (
	TokenTypeAccess TokenType = "access"
)

const (
	RoleCarrier  = "carrier"
	RoleOperator = "operator"
)

// UserClaims are issued by the auth service. The settlement API only
// validates them; CarrierID scopes every carrier endpoint.
type UserClaims struct {
	UserID    int64     `json:"user_id"`
	CarrierID int64     `json:"carrier_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	Type      TokenType `json:"type"`
	Roles     []string  `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

func (c *UserClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type TokenManager interface {
	GenerateAccessToken(userID, carrierID int64, email string, roles []string) (string, error)
	ValidateToken(tokenString string) (*UserClaims, error)
}

type tokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewTokenManager(secret, issuer string) TokenManager {
	if issuer == "" {
		issuer = "auth-service"
	}
	return &tokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    time.Hour,
	}
}

func (m *tokenManager) GenerateAccessToken(userID, carrierID int64, email string, roles []string) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID:    userID,
		CarrierID: carrierID,
		Email:     email,
		Type:      TokenTypeAccess,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{"api-access"},
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

func (m *tokenManager) ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Type != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	if claims.UserID == 0 && claims.Subject != "" {
		uid, _ := strconv.ParseInt(claims.Subject, 10, 64)
		claims.UserID = uid
	}
	return claims, nil
}
