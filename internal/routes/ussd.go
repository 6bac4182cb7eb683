package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ussd/internal/ussd"
)

// RegisterUSSDRoutes wires the gateway callback. guards run before the handler.
func RegisterUSSDRoutes(r fiber.Router, h *ussd.Handler, guards ...fiber.Handler) {
	handlers := append(guards, h.Callback)
	r.Post("/", handlers...)
}
