package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/aquadrop/aquadrop/internal/auth"
	"github.com/aquadrop/aquadrop/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *atomic.Int32) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var calls atomic.Int32
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(auth.LocalAccountID, c.Get("X-Account"))
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/stock/sale", func(c *fiber.Ctx) error {
		n := calls.Add(1)
		if strings.Contains(string(c.Body()), "fail") {
			return fiber.NewError(fiber.StatusConflict, "insufficient stock")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": n})
	})
	return app, &calls
}

func post(t *testing.T, app *fiber.App, account, key, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, "/stock/sale", strings.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set("X-Account", account)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(payload)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _ := setupTestApp(t)
	if status, _ := post(t, app, "acc-1", "", "{}"); status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls := setupTestApp(t)

	status, first := post(t, app, "acc-1", "abc123", `{"qty":1}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}
	status, second := post(t, app, "acc-1", "abc123", `{"qty":1}`)
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if first != second {
		t.Fatalf("expected cached payload %s got %s", first, second)
	}
	if calls.Load() != 1 {
		t.Fatalf("handler ran %d times", calls.Load())
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(second), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeyScopedToAccount(t *testing.T) {
	app, calls := setupTestApp(t)
	post(t, app, "acc-1", "shared", `{"qty":1}`)
	post(t, app, "acc-2", "shared", `{"qty":1}`)
	if calls.Load() != 2 {
		t.Fatalf("expected both accounts to reach the handler, got %d", calls.Load())
	}
}

func TestIdempotencyRejectsDifferentPayload(t *testing.T) {
	app, _ := setupTestApp(t)
	post(t, app, "acc-1", "k1", `{"qty":1}`)
	if status, _ := post(t, app, "acc-1", "k1", `{"qty":2}`); status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d", status)
	}
}

func TestIdempotencyDoesNotCacheFailures(t *testing.T) {
	app, calls := setupTestApp(t)
	if status, _ := post(t, app, "acc-1", "k2", `{"fail":true}`); status != fiber.StatusConflict {
		t.Fatalf("expected 409 got %d", status)
	}
	post(t, app, "acc-1", "k2", `{"fail":true}`)
	if calls.Load() != 2 {
		t.Fatalf("expected failed request to be retried, got %d calls", calls.Load())
	}
}
