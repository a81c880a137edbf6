// Package router cung cấp helpers đăng ký route cho các domain.
package router

import (
	"github.com/gofiber/fiber/v3"
)

// RegisterRouteWithMiddleware đăng ký route với middleware qua group + .Use().
// LƯU Ý: Fiber v3 không gọi middleware khi truyền trực tiếp vào route
// (router.Get(path, middleware, handler)); phải đăng ký qua .Use() như dưới đây.
func RegisterRouteWithMiddleware(parent fiber.Router, prefix string, method string, path string, middlewares []fiber.Handler, handler fiber.Handler) {
	group := parent.Group(prefix + path)
	for _, m := range middlewares {
		group.Use(m)
	}

	switch method {
	case "GET":
		group.Get("", handler)
	case "POST":
		group.Post("", handler)
	case "PUT":
		group.Put("", handler)
	case "PATCH":
		group.Patch("", handler)
	case "DELETE":
		group.Delete("", handler)
	}
}
