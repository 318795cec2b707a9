// Package auth gates relay routes behind an HS256 bearer token carrying the
// caller's email.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/papercomputeco/typhoon/pkg/chat"
)

const emailLocal = "typhoon.email"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
	ErrMissingEmail = errors.New("token has no email claim")
)

// Claims are the claims the relay reads from a token.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Sign issues a token for email, valid for ttl. A zero ttl issues a token
// without an expiry.
func Sign(secret, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  email,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify parses a token and returns the email it carries.
func Verify(secret, token string) (string, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	if claims.Email == "" {
		return "", ErrMissingEmail
	}
	return claims.Email, nil
}

// New returns middleware rejecting requests without a valid token with 401.
// The verified email is available to later handlers through Email.
func New(secret string, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := bearer(c.Get(fiber.HeaderAuthorization))
		if err == nil {
			var email string
			email, err = Verify(secret, token)
			if err == nil {
				c.Locals(emailLocal, email)
				return c.Next()
			}
		}

		logger.Debug("request rejected",
			zap.String("path", c.Path()),
			zap.Error(err),
		)
		return c.Status(fiber.StatusUnauthorized).JSON(chat.ErrorResponse{Error: "unauthorized"})
	}
}

// Email returns the email verified for this request, or "" when the request
// did not pass through the middleware.
func Email(c *fiber.Ctx) string {
	email, _ := c.Locals(emailLocal).(string)
	return email
}

func bearer(header string) (string, error) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}
