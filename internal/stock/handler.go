package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes stock endpoints over HTTP.
type Handler struct {
	svc     *Service
	logger  *slog.Logger
	actorOf func(*fiber.Ctx) string
}

// NewHandler builds a stock HTTP handler. actorOf extracts the
// authenticated account id from the request.
func NewHandler(svc *Service, logger *slog.Logger, actorOf func(*fiber.Ctx) string) *Handler {
	return &Handler{svc: svc, logger: logger, actorOf: actorOf}
}

type movementRequest struct {
	ClientRef string `json:"client_ref"`
	SKU       string `json:"sku"`
	From      string `json:"from"`
	To        string `json:"to"`
	Quantity  int64  `json:"quantity"`
}

type movementResponse struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	ClientRef string    `json:"client_ref"`
	SKU       string    `json:"sku"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Quantity  int64     `json:"quantity"`
	FromLevel int64     `json:"from_level"`
	ToLevel   int64     `json:"to_level"`
	CreatedAt time.Time `json:"created_at"`
}

type levelResponse struct {
	Location string `json:"location"`
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`
}

// Levels lists current stock levels.
func (h *Handler) Levels(c *fiber.Ctx) error {
	levels, err := h.svc.Levels(c.UserContext())
	if err != nil {
		return h.mapError(err)
	}
	out := make([]levelResponse, 0, len(levels))
	for _, l := range levels {
		out = append(out, levelResponse{Location: l.Location, SKU: l.SKU, Quantity: l.Quantity})
	}
	return c.JSON(fiber.Map{"levels": out})
}

// Production records newly filled bottles at the factory.
func (h *Handler) Production(c *fiber.Ctx) error {
	req, err := parseMovement(c)
	if err != nil {
		return err
	}
	m, err := h.svc.RecordProduction(c.UserContext(), h.actorOf(c), req.ClientRef, req.SKU, req.Quantity)
	return h.respond(c, m, err)
}

// Transfer moves bottles between factory and godown.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	req, err := parseMovement(c)
	if err != nil {
		return err
	}
	m, err := h.svc.Transfer(c.UserContext(), h.actorOf(c), req.ClientRef, req.SKU, req.From, req.To, req.Quantity)
	return h.respond(c, m, err)
}

// Sale records bottles sold from a storage location.
func (h *Handler) Sale(c *fiber.Ctx) error {
	req, err := parseMovement(c)
	if err != nil {
		return err
	}
	m, err := h.svc.RecordSale(c.UserContext(), h.actorOf(c), req.ClientRef, req.SKU, req.From, req.Quantity)
	return h.respond(c, m, err)
}

func parseMovement(c *fiber.Ctx) (movementRequest, error) {
	var req movementRequest
	if err := c.BodyParser(&req); err != nil {
		return movementRequest{}, fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return req, nil
}

func (h *Handler) respond(c *fiber.Ctx, m Movement, err error) error {
	status := http.StatusCreated
	if errors.Is(err, ErrDuplicateMovement) {
		status = http.StatusOK
	} else if err != nil {
		return h.mapError(err)
	}
	return c.Status(status).JSON(movementResponse{
		ID:        m.ID,
		Kind:      m.Kind,
		ClientRef: m.ClientRef,
		SKU:       m.SKU,
		From:      m.From,
		To:        m.To,
		Quantity:  m.Quantity,
		FromLevel: m.FromLevel,
		ToLevel:   m.ToLevel,
		CreatedAt: m.CreatedAt,
	})
}

func (h *Handler) mapError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidLocation),
		errors.Is(err, ErrInvalidSKU), errors.Is(err, ErrInvalidReference):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInsufficientStock):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		h.logger.Error("stock request failed", slog.Any("error", err))
		return fiber.NewError(http.StatusInternalServerError, "internal error")
	}
}
