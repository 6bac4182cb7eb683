package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ussd/internal/funding"
)

// RegisterFundingRoutes wires the payment rail settlement callback.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/callbacks/rail", h.Callback)
}
