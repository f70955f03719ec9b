package verification

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aquadrop/aquadrop/internal/identity"
	"github.com/aquadrop/aquadrop/internal/notification"
)

// SetupIssuer grants a freshly created account a short-lived token for
// choosing its PIN.
type SetupIssuer interface {
	IssueSetupToken(account identity.Account) (token string, expiresAt time.Time, err error)
}

// SetupIssuerFunc adapts a function to SetupIssuer.
type SetupIssuerFunc func(account identity.Account) (string, time.Time, error)

// IssueSetupToken calls f.
func (f SetupIssuerFunc) IssueSetupToken(account identity.Account) (string, time.Time, error) {
	return f(account)
}

// Handler exposes the registration endpoints.
type Handler struct {
	flow   *Flow
	setup  SetupIssuer
	logger *slog.Logger
}

// NewHandler builds a verification HTTP handler.
func NewHandler(flow *Flow, setup SetupIssuer, logger *slog.Logger) *Handler {
	return &Handler{flow: flow, setup: setup, logger: logger}
}

type requestCodeRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type dispatchResponse struct {
	Success        bool   `json:"success"`
	Channel        string `json:"channel,omitempty"`
	ProviderStatus int    `json:"provider_status,omitempty"`
	ProviderBody   string `json:"provider_body,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Request issues a new verification code and sends it to the phone.
func (h *Handler) Request(c *fiber.Ctx) error {
	var req requestCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.flow.RequestCode(c.UserContext(), req.Name, req.Phone)
	if err == nil {
		return c.Status(http.StatusAccepted).JSON(dispatchResponse{Success: true, Channel: res.Channel})
	}

	var transport *notification.TransportError
	switch {
	case errors.As(err, &transport):
		return c.Status(http.StatusBadGateway).JSON(dispatchResponse{
			Channel:        res.Channel,
			ProviderStatus: res.ProviderStatus,
			ProviderBody:   res.ProviderBody,
			Error:          "failed to deliver verification code",
		})
	case errors.Is(err, notification.ErrNotConfigured):
		h.logger.Error("verification channel not configured", slog.String("channel", res.Channel))
		return fiber.NewError(http.StatusInternalServerError, "verification channel not configured")
	default:
		return h.mapError(err)
	}
}

type confirmCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
	Name  string `json:"name"`
}

// AccountView is the public JSON rendering of an account.
type AccountView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	HasPIN    bool      `json:"has_pin"`
	CreatedAt time.Time `json:"created_at"`
}

// Confirm checks the code and creates the account. The response carries a
// pin_setup token the client uses to choose a PIN.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	var req confirmCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	account, err := h.flow.ConfirmCode(c.UserContext(), req.Phone, req.Code, req.Name)
	if err != nil {
		return h.mapError(err)
	}
	token, exp, err := h.setup.IssueSetupToken(account)
	if err != nil {
		return h.mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"account":     NewAccountView(account),
		"setup_token": token,
		"expires_in":  int64(time.Until(exp).Seconds()),
	})
}

// NewAccountView renders the public view of an account.
func NewAccountView(a identity.Account) AccountView {
	return AccountView{ID: a.ID, Name: a.Name, Phone: a.Phone, HasPIN: a.HasPIN(), CreatedAt: a.CreatedAt}
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidPhone), errors.Is(err, ErrInvalidName):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFoundOrExpired):
		return fiber.NewError(http.StatusGone, err.Error())
	case errors.Is(err, ErrCodeMismatch):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, identity.ErrPhoneTaken):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		h.logger.Error("verification request failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
