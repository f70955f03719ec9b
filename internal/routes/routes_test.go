package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aquadrop/aquadrop/internal/config"
	"github.com/aquadrop/aquadrop/internal/logging"
)

func testConfig() config.Config {
	return config.Config{
		AppName:           "AquaDrop",
		AppEnv:            "test",
		JWTSecret:         "test-secret",
		SessionTTL:        time.Hour,
		SetupTokenTTL:     time.Minute,
		IdempotencyTTL:    time.Minute,
		ThrottlePerMinute: 100,
		Verification: config.Verification{
			TTL:             10 * time.Minute,
			Channel:         "log",
			DebugCodes:      true,
			DevPhonePattern: `^.{4,}$`,
		},
		Lockout: config.Lockout{Threshold: 5, Duration: time.Minute},
	}
}

func setupApp(t *testing.T, cfg config.Config) *fiber.App {
	t.Helper()
	app := fiber.New()
	if err := Setup(app, Deps{Cfg: cfg, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app
}

func call(t *testing.T, app *fiber.App, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

func TestRegistrationLoginAndStockFlow(t *testing.T) {
	app := setupApp(t, testConfig())

	status, _ := call(t, app, fiber.MethodPost, "/api/v1/verification/request", "", `{"name":"Asha","phone":"+15551234567"}`)
	if status != fiber.StatusAccepted {
		t.Fatalf("request: expected 202 got %d", status)
	}

	status, body := call(t, app, fiber.MethodGet, "/api/v1/debug/verification/+15551234567", "", "")
	if status != fiber.StatusOK {
		t.Fatalf("debug code: expected 200 got %d", status)
	}
	code, _ := body["code"].(string)
	if len(code) != 4 {
		t.Fatalf("unexpected debug code %v", body)
	}

	status, body = call(t, app, fiber.MethodPost, "/api/v1/verification/confirm", "", `{"phone":"+15551234567","code":"`+code+`"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("confirm: expected 201 got %d", status)
	}
	setupToken, _ := body["setup_token"].(string)

	status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", `{"phone":"+15551234567","pin":"4821"}`)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("login before pin: expected 401 got %d", status)
	}

	if status, _ = call(t, app, fiber.MethodGet, "/api/v1/me", setupToken, ""); status != fiber.StatusUnauthorized {
		t.Fatalf("setup token on /me: expected 401 got %d", status)
	}
	if status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/pin", setupToken, `{"pin":"4821"}`); status != fiber.StatusOK {
		t.Fatalf("set pin: expected 200 got %d", status)
	}
	if status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/pin", setupToken, `{"pin":"1111"}`); status != fiber.StatusConflict {
		t.Fatalf("second set pin: expected 409 got %d", status)
	}

	if status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", `{"phone":"+15551234567","pin":"48"}`); status != fiber.StatusBadRequest {
		t.Fatalf("short pin: expected 400 got %d", status)
	}
	if status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", `{"phone":"+15551234567","pin":"0000"}`); status != fiber.StatusUnauthorized {
		t.Fatalf("wrong pin: expected 401 got %d", status)
	}
	status, body = call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", `{"phone":"+15551234567","pin":"4821"}`)
	if status != fiber.StatusOK {
		t.Fatalf("login: expected 200 got %d", status)
	}
	session, _ := body["access_token"].(string)

	status, body = call(t, app, fiber.MethodGet, "/api/v1/me", session, "")
	if status != fiber.StatusOK {
		t.Fatalf("me: expected 200 got %d", status)
	}
	account, _ := body["account"].(map[string]any)
	if account["name"] != "Asha" || account["has_pin"] != true {
		t.Fatalf("unexpected profile %v", body)
	}

	if status, _ = call(t, app, fiber.MethodPost, "/api/v1/stock/production", session, `{"client_ref":"b1","sku":"bottle_20l","quantity":12}`); status != fiber.StatusCreated {
		t.Fatalf("production: expected 201 got %d", status)
	}
	if status, _ = call(t, app, fiber.MethodGet, "/api/v1/stock", "", ""); status != fiber.StatusUnauthorized {
		t.Fatalf("anonymous stock: expected 401 got %d", status)
	}

	if status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/pin/reset", "", `{}`); status != fiber.StatusNotImplemented {
		t.Fatalf("pin reset: expected 501 got %d", status)
	}

	if status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/logout", session, ""); status != fiber.StatusOK {
		t.Fatalf("logout: expected 200 got %d", status)
	}
	if status, _ = call(t, app, fiber.MethodGet, "/api/v1/me", session, ""); status != fiber.StatusUnauthorized {
		t.Fatalf("me after logout: expected 401 got %d", status)
	}
}

func TestDebugRouteAbsentWithoutFlag(t *testing.T) {
	cfg := testConfig()
	cfg.Verification.DebugCodes = false
	app := setupApp(t, cfg)

	status, _ := call(t, app, fiber.MethodGet, "/api/v1/debug/verification/+15551234567", "", "")
	if status == fiber.StatusOK {
		t.Fatal("debug route must not be served when disabled")
	}
}

func TestSetupRequiresBackendsOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	if err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()}); err == nil {
		t.Fatal("expected error without database in production")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	app := setupApp(t, testConfig())

	if status, _ := call(t, app, fiber.MethodGet, "/healthz", "", ""); status != fiber.StatusOK {
		t.Fatalf("healthz: expected 200 got %d", status)
	}
	call(t, app, fiber.MethodPost, "/api/v1/verification/request", "", `{"name":"Asha","phone":"+15551234567"}`)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "aquadrop_verification_dispatch_total") {
		t.Fatalf("expected dispatch counter in metrics output")
	}
}

func debugCode(t *testing.T, app *fiber.App, phone string) string {
	t.Helper()
	status, body := call(t, app, fiber.MethodGet, "/api/v1/debug/verification/"+phone, "", "")
	if status != fiber.StatusOK {
		t.Fatalf("debug code: expected 200 got %d", status)
	}
	code, _ := body["code"].(string)
	return code
}

func TestLostSetupTokenIsReissuedOnReverification(t *testing.T) {
	app := setupApp(t, testConfig())
	const phone = "+15551234567"

	call(t, app, fiber.MethodPost, "/api/v1/verification/request", "", `{"name":"Asha","phone":"`+phone+`"}`)
	status, first := call(t, app, fiber.MethodPost, "/api/v1/verification/confirm", "", `{"phone":"`+phone+`","code":"`+debugCode(t, app, phone)+`"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("first confirm: expected 201 got %d", status)
	}
	// The client never stores the first setup token.

	if status, _ = call(t, app, fiber.MethodPost, "/api/v1/verification/request", "", `{"name":"Asha","phone":"`+phone+`"}`); status != fiber.StatusAccepted {
		t.Fatalf("second request: expected 202 got %d", status)
	}
	status, second := call(t, app, fiber.MethodPost, "/api/v1/verification/confirm", "", `{"phone":"`+phone+`","code":"`+debugCode(t, app, phone)+`"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("second confirm: expected 201 got %d", status)
	}
	firstAccount, _ := first["account"].(map[string]any)
	secondAccount, _ := second["account"].(map[string]any)
	if firstAccount["id"] != secondAccount["id"] {
		t.Fatalf("expected the same account, got %v and %v", firstAccount["id"], secondAccount["id"])
	}
	setupToken, _ := second["setup_token"].(string)
	if setupToken == "" {
		t.Fatalf("expected a fresh setup token, got %v", second)
	}

	if status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/pin", setupToken, `{"pin":"4821"}`); status != fiber.StatusOK {
		t.Fatalf("set pin: expected 200 got %d", status)
	}
	if status, _ = call(t, app, fiber.MethodPost, "/api/v1/auth/login", "", `{"phone":"`+phone+`","pin":"4821"}`); status != fiber.StatusOK {
		t.Fatalf("login: expected 200 got %d", status)
	}

	// Once a PIN exists the phone is registered and no new code is sent.
	if status, _ = call(t, app, fiber.MethodPost, "/api/v1/verification/request", "", `{"name":"Asha","phone":"`+phone+`"}`); status != fiber.StatusConflict {
		t.Fatalf("request for registered phone: expected 409 got %d", status)
	}
}
