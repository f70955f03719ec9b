package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aquadrop/aquadrop/internal/identity"
)

// LocalAccountID is the fiber.Ctx local holding the authenticated account id.
const LocalAccountID = "account_id"

// Handler exposes auth endpoints for login, PIN setup and logout.
type Handler struct {
	svc    *Service
	logger *slog.Logger
}

// NewHandler builds an auth HTTP handler.
func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type loginRequest struct {
	Phone string `json:"phone"`
	PIN   string `json:"pin"`
}

type sessionResponse struct {
	AccountID   string `json:"account_id"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Login validates the PIN and returns a session token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	session, err := h.svc.Login(c.UserContext(), req.Phone, req.PIN)
	if err != nil {
		return h.mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toSessionResponse(session))
}

type setPINRequest struct {
	PIN string `json:"pin"`
}

// SetPIN stores the initial PIN. Requires a pin_setup token.
func (h *Handler) SetPIN(c *fiber.Ctx) error {
	accountID, _ := c.Locals(LocalAccountID).(string)
	if accountID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	var req setPINRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetPIN(c.UserContext(), accountID, req.PIN); err != nil {
		return h.mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "pin_set"})
}

// ResetPIN is not implemented yet.
func (h *Handler) ResetPIN(c *fiber.Ctx) error {
	return fiber.NewError(http.StatusNotImplemented, h.svc.ResetPIN(c.UserContext(), "").Error())
}

// Logout invalidates the caller's sessions.
func (h *Handler) Logout(c *fiber.Ctx) error {
	accountID, _ := c.Locals(LocalAccountID).(string)
	if accountID == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	if err := h.svc.Logout(c.UserContext(), accountID); err != nil {
		return h.mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPIN):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrInvalidToken):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrPINAlreadySet):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrLockedOut):
		return fiber.NewError(http.StatusTooManyRequests, err.Error())
	case errors.Is(err, identity.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	default:
		h.logger.Error("auth request failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}

func toSessionResponse(s Session) sessionResponse {
	return sessionResponse{
		AccountID:   s.AccountID,
		AccessToken: s.Token,
		ExpiresIn:   int64(time.Until(s.ExpiresAt).Seconds()),
	}
}
