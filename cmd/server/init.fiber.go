package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/gofiber/fiber/v3/middleware/requestid"

	invhdl "github.com/Jose00521/Raffle-sub003/internal/api/inventory/handler"
	invrouter "github.com/Jose00521/Raffle-sub003/internal/api/inventory/router"
	statshdl "github.com/Jose00521/Raffle-sub003/internal/api/stats/handler"
	statsrouter "github.com/Jose00521/Raffle-sub003/internal/api/stats/router"
	"github.com/Jose00521/Raffle-sub003/internal/common"
	"github.com/Jose00521/Raffle-sub003/internal/global"
	"github.com/Jose00521/Raffle-sub003/internal/logger"
)

// InitFiberApp khởi tạo ứng dụng Fiber với middleware stack và routes.
func InitFiberApp(inventoryHandler *invhdl.InventoryHandler, statsHandler *statshdl.StatsHandler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:       "Raffle Inventory API",
		ServerHeader:  "Raffle Inventory API",
		StrictRouting: true,
		CaseSensitive: true,

		BodyLimit:   2 * 1024 * 1024, // Request lớn nhất là check 10k số
		ReadTimeout: 15 * time.Second,
		// SSE giữ kết nối lâu nên không đặt WriteTimeout
		IdleTimeout: 120 * time.Second,

		ErrorHandler: func(c fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			message := "Internal Server Error"
			errorCode := common.ErrCodeInternalServer.Code

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				message = e.Message
				switch code {
				case fiber.StatusBadRequest:
					errorCode = common.ErrCodeValidationInput.Code
				case fiber.StatusUnauthorized:
					errorCode = common.ErrCodeAuthToken.Code
				case fiber.StatusNotFound:
					errorCode = common.ErrCodeDatabaseQuery.Code
				}
			}

			logger.WithRequest(c).WithFields(map[string]interface{}{
				"code":      code,
				"errorCode": errorCode,
				"message":   message,
			}).Error("Request error")

			return c.Status(code).JSON(fiber.Map{
				"code":    errorCode,
				"message": message,
				"status":  "error",
			})
		},
	})

	// 1. Request ID - trace mỗi request
	app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return fmt.Sprintf("%d", time.Now().UnixNano())
		},
	}))

	// 2. CORS - đặt trước các middleware khác để xử lý preflight
	corsOrigins := global.ServerConfig.CORS_Origins
	var allowOrigins []string
	if corsOrigins == "*" {
		allowOrigins = []string{"*"}
	} else {
		allowOrigins = strings.Split(corsOrigins, ",")
		for i, origin := range allowOrigins {
			allowOrigins[i] = strings.TrimSpace(origin)
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        24 * 60 * 60,
	}))

	// 3. Rate limiting theo IP
	if global.ServerConfig.RateLimit_Max > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        global.ServerConfig.RateLimit_Max,
			Expiration: time.Duration(global.ServerConfig.RateLimit_Window) * time.Second,
			KeyGenerator: func(c fiber.Ctx) string {
				return c.IP()
			},
			LimitReached: func(c fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"code":    common.ErrCodeValidationInput.Code,
					"message": "Quá nhiều yêu cầu, vui lòng thử lại sau",
					"status":  "error",
				})
			},
			Next: func(c fiber.Ctx) bool {
				// Health check, preflight và SSE không tính rate limit
				return c.Path() == "/health" ||
					c.Method() == "OPTIONS" ||
					c.Path() == "/api/v1/stats/subscribe"
			},
		}))
	}

	// 4. Recover
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
		StackTraceHandler: func(c fiber.Ctx, e interface{}) {
			logger.WithRequest(c).WithFields(map[string]interface{}{
				"panic": e,
			}).Error("Panic recovered")
		},
		Next: func(c fiber.Ctx) bool {
			return c.Path() == "/health"
		},
	}))

	// Health check
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Routes
	v1 := app.Group("/api/v1")
	invrouter.RegisterRoutes(v1, inventoryHandler)
	statsrouter.RegisterRoutes(v1, statsHandler)

	return app
}
