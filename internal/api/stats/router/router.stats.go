// Package statsrouter - đăng ký route thống kê.
package statsrouter

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Jose00521/Raffle-sub003/internal/api/middleware"
	"github.com/Jose00521/Raffle-sub003/internal/api/router"
	statshdl "github.com/Jose00521/Raffle-sub003/internal/api/stats/handler"
)

// RegisterRoutes gắn các route thống kê vào group /stats. Cả hai route đều
// đi qua xác thực: kênh campaign mở cho mọi user đăng nhập, kênh
// creator/participant được handler kiểm tra đúng chủ thể.
func RegisterRoutes(parent fiber.Router, handler *statshdl.StatsHandler) {
	authenticated := []fiber.Handler{middleware.AuthMiddleware("")}

	router.RegisterRouteWithMiddleware(parent, "/stats", "GET", "/snapshot", authenticated, handler.GetSnapshot)
	router.RegisterRouteWithMiddleware(parent, "/stats", "GET", "/subscribe", authenticated, handler.Subscribe)
}
