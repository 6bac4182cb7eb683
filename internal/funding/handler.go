package funding

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ussd/internal/transaction"
)

// Handler exposes the payment rail settlement callback.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Callback settles a pending deposit or withdrawal exactly once.
func (h *Handler) Callback(c *fiber.Ctx) error {
	var req CallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.Reference == "" {
		return fiber.NewError(http.StatusBadRequest, "reference is required")
	}

	tx, err := h.service.Settle(c.UserContext(), req)
	if err != nil {
		switch {
		case errors.Is(err, transaction.ErrAlreadySettled):
			return c.Status(http.StatusConflict).JSON(toResponse(tx))
		case errors.Is(err, transaction.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	return c.Status(http.StatusOK).JSON(toResponse(tx))
}

func toResponse(tx transaction.Transaction) CallbackResponse {
	return CallbackResponse{
		TransactionID: tx.ID,
		Reference:     tx.Reference,
		Status:        string(tx.Status),
	}
}
