package middleware

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ManuelReschke/ReelPass/app/models"
	"github.com/ManuelReschke/ReelPass/app/repository"
	"github.com/ManuelReschke/ReelPass/internal/pkg/usercontext"
)

var errInvalidToken = errors.New("invalid token")

// Authenticate resolves the caller from an API key (X-API-Key or a bearer
// value with the API key prefix) or from an HS256 bearer JWT whose subject
// is the user id. Requests without credentials continue anonymously; bad
// credentials are rejected.
func Authenticate(users repository.UserRepository, jwtSecret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey, token := extractCredentials(c)
		if apiKey == "" && token == "" {
			return c.Next()
		}

		var user *models.User
		var err error
		if apiKey != "" {
			user, err = users.GetByAPIKeyHash(c.UserContext(), models.HashAPIKey(apiKey))
		} else {
			user, err = userFromJWT(c, users, token, jwtSecret)
		}
		if err != nil {
			if repository.IsNotFound(err) || errors.Is(err, errInvalidToken) {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid credentials"})
			}
			log.Errorf("[Auth] credential lookup failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Credential verification failed"})
		}

		if !user.IsActive() {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "User inactive"})
		}

		usercontext.Set(c, user)
		return c.Next()
	}
}

func userFromJWT(c *fiber.Ctx, users repository.UserRepository, raw, secret string) (*models.User, error) {
	if secret == "" {
		return nil, errInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		log.Debugf("[Auth] rejected token: %v", err)
		return nil, errInvalidToken
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return nil, errInvalidToken
	}
	return users.GetByID(c.UserContext(), uint(id))
}

func extractCredentials(c *fiber.Ctx) (apiKey, token string) {
	if key := strings.TrimSpace(c.Get("X-API-Key")); key != "" {
		return key, ""
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return "", ""
	}
	value := strings.TrimSpace(auth[7:])
	if strings.HasPrefix(value, models.RawAPIKeyPrefix) {
		return value, ""
	}
	return "", value
}
