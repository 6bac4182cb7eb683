package ussd

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Request is the gateway's form or JSON payload.
type Request struct {
	SessionID   string `json:"sessionId" form:"sessionId"`
	ServiceCode string `json:"serviceCode" form:"serviceCode"`
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
	Text        string `json:"text" form:"text"`
}

// Handler adapts the Machine to HTTP. It always answers 200 text/plain with a CON/END body.
type Handler struct {
	machine *Machine
	logger  *slog.Logger
}

// NewHandler constructs a USSD handler.
func NewHandler(machine *Machine, logger *slog.Logger) *Handler {
	return &Handler{machine: machine, logger: logger}
}

// Callback handles one gateway round-trip.
func (h *Handler) Callback(c *fiber.Ctx) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("ussd handler panic", slog.Any("panic", r))
			err = sendReply(c, Encode(false, Message(KindInternal)))
		}
	}()

	var req Request
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warn("malformed ussd request", slog.Any("error", err))
		return sendReply(c, Encode(false, Message(KindValidation)))
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.PhoneNumber = strings.TrimSpace(req.PhoneNumber)
	if req.SessionID == "" || req.PhoneNumber == "" {
		return sendReply(c, Encode(false, Message(KindValidation)))
	}

	return sendReply(c, h.machine.Handle(c.UserContext(), req.SessionID, req.PhoneNumber, req.Text))
}

func sendReply(c *fiber.Ctx, body string) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
	return c.Status(fiber.StatusOK).SendString(body)
}
