// Package middleware - xác thực JWT cho API và cho đăng ký kênh thống kê.
package middleware

import (
	"strings"

	"github.com/dgrijalva/jwt-go"
	"github.com/gofiber/fiber/v3"

	basehdl "github.com/Jose00521/Raffle-sub003/internal/api/base/handler"
	"github.com/Jose00521/Raffle-sub003/internal/common"
	"github.com/Jose00521/Raffle-sub003/internal/global"
)

// Identity là danh tính đã xác thực của request, lưu vào ctx locals.
type Identity struct {
	UserID string // Hex ObjectID của user
	Role   string // "creator" hoặc "participant"
}

const identityLocalKey = "auth_identity"

// AuthMiddleware kiểm tra Bearer token (HS256, secret từ config) và đưa
// Identity vào context. requireRole khác rỗng thì role trong claims phải khớp.
func AuthMiddleware(requireRole string) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			return basehdl.RespondError(c, common.ErrTokenMissing)
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, common.ErrTokenInvalid
			}
			return []byte(global.ServerConfig.JwtSecret), nil
		})
		if err != nil || !token.Valid {
			return basehdl.RespondError(c, common.ErrTokenInvalid)
		}

		userID, _ := claims["userId"].(string)
		role, _ := claims["role"].(string)
		if userID == "" {
			return basehdl.RespondError(c, common.ErrTokenInvalid)
		}
		if requireRole != "" && role != requireRole {
			return basehdl.RespondError(c, common.ErrUnauthorized)
		}

		c.Locals(identityLocalKey, Identity{UserID: userID, Role: role})
		return c.Next()
	}
}

// IdentityFromContext lấy Identity đã xác thực từ ctx. ok=false nếu request
// chưa đi qua AuthMiddleware.
func IdentityFromContext(c fiber.Ctx) (Identity, bool) {
	identity, ok := c.Locals(identityLocalKey).(Identity)
	return identity, ok
}
