package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/greenlattice/esgbench/internal/models"
	"github.com/greenlattice/esgbench/internal/types"
	"gorm.io/gorm"
)

// Claims carried by the bearer token.
type Claims struct {
	AccountSlug string `json:"account_slug"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// Auth validates the bearer token, resolves the account and stores
// account and role in the request context.
func Auth(db *gorm.DB, secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, err := parseToken(c, secret)
		if err != nil {
			return err
		}

		var account models.Account
		if err := db.Where("slug = ?", claims.AccountSlug).First(&account).Error; err != nil {
			return &types.CustomError{
				Code:    fiber.StatusForbidden,
				Message: "Unknown account " + claims.AccountSlug,
				Type:    "authorization",
			}
		}

		c.Locals("account", &account)
		c.Locals("role", claims.Role)
		return c.Next()
	}
}

// RequireRole rejects requests whose token role is not in roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		for _, allowed := range roles {
			if role == allowed {
				return c.Next()
			}
		}
		return &types.CustomError{
			Code:    fiber.StatusForbidden,
			Message: "Role " + role + " not authorized",
			Type:    "authorization",
		}
	}
}

// Account returns the authenticated account from the request context.
func Account(c *fiber.Ctx) *models.Account {
	account, _ := c.Locals("account").(*models.Account)
	return account
}

func parseToken(c *fiber.Ctx, secret string) (*Claims, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, &types.CustomError{
			Code:    fiber.StatusUnauthorized,
			Message: "Bearer token missing",
			Type:    "authorization",
		}
	}
	raw := strings.TrimPrefix(header, "Bearer ")

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, &types.CustomError{
			Code:    fiber.StatusUnauthorized,
			Message: "Invalid token",
			Type:    "authorization",
		}
	}
	return claims, nil
}
