// Package invrouter - đăng ký route inventory.
package invrouter

import (
	"github.com/gofiber/fiber/v3"

	invhdl "github.com/Jose00521/Raffle-sub003/internal/api/inventory/handler"
	"github.com/Jose00521/Raffle-sub003/internal/api/middleware"
	"github.com/Jose00521/Raffle-sub003/internal/api/router"
)

// RegisterRoutes gắn các route số vé vào group /campaigns/:campaignId/numbers.
// Init và teardown chỉ dành cho creator; reserve/release/my cần user đã xác
// thực; check và diagnostics mở công khai.
func RegisterRoutes(parent fiber.Router, handler *invhdl.InventoryHandler) {
	prefix := "/campaigns/:campaignId/numbers"

	creatorOnly := []fiber.Handler{middleware.AuthMiddleware("creator")}
	authenticated := []fiber.Handler{middleware.AuthMiddleware("")}

	router.RegisterRouteWithMiddleware(parent, prefix, "POST", "/init", creatorOnly, handler.Initialize)
	router.RegisterRouteWithMiddleware(parent, prefix, "POST", "/reserve", authenticated, handler.Reserve)
	router.RegisterRouteWithMiddleware(parent, prefix, "POST", "/release", authenticated, handler.Release)
	router.RegisterRouteWithMiddleware(parent, prefix, "POST", "/check", nil, handler.Check)
	router.RegisterRouteWithMiddleware(parent, prefix, "GET", "/my", authenticated, handler.MyNumbers)
	router.RegisterRouteWithMiddleware(parent, prefix, "GET", "/diagnostics", nil, handler.Diagnostics)
	router.RegisterRouteWithMiddleware(parent, prefix, "DELETE", "", creatorOnly, handler.Teardown)
}
