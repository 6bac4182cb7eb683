package ussd

import (
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/congo_ussd/internal/logging"
)

func setupHandlerApp(t *testing.T) *fiber.App {
	t.Helper()
	env := newTestEnv(t)
	app := fiber.New()
	app.Post("/ussd", NewHandler(env.machine, logging.Discard()).Callback)
	return app
}

func doRequest(t *testing.T, app *fiber.App, contentType, body string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/ussd", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, contentType)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, resp.Header.Get(fiber.HeaderContentType), string(payload)
}

func TestHandlerAcceptsFormAndJSON(t *testing.T) {
	app := setupHandlerApp(t)

	form := url.Values{
		"sessionId":   {"h1"},
		"serviceCode": {"*123#"},
		"phoneNumber": {alicePhone},
		"text":        {""},
	}
	status, ctype, body := doRequest(t, app, fiber.MIMEApplicationForm, form.Encode())
	if status != fiber.StatusOK || !strings.HasPrefix(ctype, "text/plain") {
		t.Fatalf("unexpected status %d content type %q", status, ctype)
	}
	if !strings.HasPrefix(body, "CON ") || !strings.Contains(body, "1. Create account") {
		t.Fatalf("unexpected body %q", body)
	}

	status, _, body = doRequest(t, app, fiber.MIMEApplicationJSON,
		`{"sessionId":"h1","serviceCode":"*123#","phoneNumber":"`+alicePhone+`","text":"1"}`)
	if status != fiber.StatusOK || body != "CON Please set a 4-digit PIN for your account:" {
		t.Fatalf("unexpected reply %d %q", status, body)
	}
}

func TestHandlerRejectsIncompleteRequests(t *testing.T) {
	app := setupHandlerApp(t)

	status, _, body := doRequest(t, app, fiber.MIMEApplicationJSON, `{"phoneNumber":"123"}`)
	if status != fiber.StatusOK || body != "END "+Message(KindValidation) {
		t.Fatalf("unexpected reply %d %q", status, body)
	}

	status, _, body = doRequest(t, app, fiber.MIMEApplicationJSON, `{not json`)
	if status != fiber.StatusOK || !strings.HasPrefix(body, "END ") {
		t.Fatalf("malformed body must still get an END reply, got %d %q", status, body)
	}
}
