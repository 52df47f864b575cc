package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenMalformed = errors.New("malformed token")
)

// InterServiceVerifier проверяет HMAC-подписанные межсервисные токены.
// Subject токена - имя сервиса-источника.
type InterServiceVerifier struct {
	secret []byte
	logger *zap.Logger
}

func NewInterServiceVerifier(secret string, logger *zap.Logger) (*InterServiceVerifier, error) {
	if secret == "" {
		return nil, errors.New("inter-service secret cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterServiceVerifier{secret: []byte(secret), logger: logger.Named("InterServiceVerifier")}, nil
}

// Verify возвращает claims валидного токена.
func (v *InterServiceVerifier) Verify(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrTokenMalformed
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Issue подписывает токен для вызова /internal другим сервисом (и тестами).
func (v *InterServiceVerifier) Issue(serviceName string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   serviceName,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func tokenSnippet(tokenString string) string {
	const limit = 15
	if len(tokenString) > limit {
		return tokenString[:limit] + "..."
	}
	return tokenString
}
