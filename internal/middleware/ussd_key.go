package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ussd/internal/walletid"
)

type ussdFields struct {
	SessionID   string `json:"sessionId" form:"sessionId"`
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
	Text        string `json:"text" form:"text"`
}

func parseUSSD(c *fiber.Ctx) (ussdFields, bool) {
	var f ussdFields
	if err := c.BodyParser(&f); err != nil {
		return ussdFields{}, false
	}
	f.SessionID = strings.TrimSpace(f.SessionID)
	f.PhoneNumber = strings.TrimSpace(f.PhoneNumber)
	return f, f.SessionID != "" && f.PhoneNumber != ""
}

// USSDRequestKey identifies a gateway round-trip by session id and the digest of its cumulative text.
// Empty for requests that are not USSD callbacks.
func USSDRequestKey(c *fiber.Ctx) string {
	f, ok := parseUSSD(c)
	if !ok {
		return ""
	}
	sum := sha256.Sum256([]byte(f.Text))
	return f.SessionID + ":" + hex.EncodeToString(sum[:8])
}

// USSDPhoneKey keys a request by the hash of the subscriber's phone number.
func USSDPhoneKey(c *fiber.Ctx) string {
	f, ok := parseUSSD(c)
	if !ok {
		return ""
	}
	return walletid.HashPhone(f.PhoneNumber)
}
