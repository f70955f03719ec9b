package stock

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aquadrop/aquadrop/internal/metrics"
)

var skuPattern = regexp.MustCompile(`^[a-z0-9_]{1,32}$`)

// Service applies the movement rules on top of a Ledger: production lands at
// the factory, transfers move between factory and godown, and sales leave
// from either.
type Service struct {
	ledger  Ledger
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewService builds a stock service.
func NewService(ledger Ledger, logger *slog.Logger, rec metrics.Recorder) *Service {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Service{ledger: ledger, logger: logger, metrics: rec}
}

// RecordProduction adds freshly filled units to factory stock.
func (s *Service) RecordProduction(ctx context.Context, actor, clientRef, sku string, qty int64) (Movement, error) {
	return s.move(ctx, Movement{
		Kind: KindProduction, ClientRef: clientRef, SKU: sku,
		From: LocationProduction, To: LocationFactory, Quantity: qty, CreatedBy: actor,
	})
}

// Transfer moves units between the factory and the godown.
func (s *Service) Transfer(ctx context.Context, actor, clientRef, sku, from, to string, qty int64) (Movement, error) {
	if !isStorage(from) || !isStorage(to) || from == to {
		return Movement{}, ErrInvalidLocation
	}
	return s.move(ctx, Movement{
		Kind: KindTransfer, ClientRef: clientRef, SKU: sku,
		From: from, To: to, Quantity: qty, CreatedBy: actor,
	})
}

// RecordSale removes sold units from a storage location.
func (s *Service) RecordSale(ctx context.Context, actor, clientRef, sku, from string, qty int64) (Movement, error) {
	if !isStorage(from) {
		return Movement{}, ErrInvalidLocation
	}
	return s.move(ctx, Movement{
		Kind: KindSale, ClientRef: clientRef, SKU: sku,
		From: from, To: LocationSold, Quantity: qty, CreatedBy: actor,
	})
}

// Levels reports stock held at the factory and godown plus units sold.
func (s *Service) Levels(ctx context.Context) ([]Level, error) {
	all, err := s.ledger.Levels(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, l := range all {
		if l.Location != LocationProduction {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *Service) move(ctx context.Context, m Movement) (Movement, error) {
	m.SKU = strings.ToLower(strings.TrimSpace(m.SKU))
	m.ClientRef = strings.TrimSpace(m.ClientRef)
	if !skuPattern.MatchString(m.SKU) {
		return Movement{}, ErrInvalidSKU
	}
	if m.ClientRef == "" {
		return Movement{}, ErrInvalidReference
	}
	if m.Quantity <= 0 {
		return Movement{}, ErrInvalidQuantity
	}

	res, err := s.ledger.Move(ctx, m)
	if errors.Is(err, ErrDuplicateMovement) {
		return res, err
	}
	if err != nil {
		return Movement{}, err
	}

	s.metrics.RecordStockMovement(res.Kind, res.Quantity)
	s.logger.Info("stock moved",
		slog.String("kind", res.Kind),
		slog.String("sku", res.SKU),
		slog.String("from", res.From),
		slog.String("to", res.To),
		slog.Int64("quantity", res.Quantity),
		slog.String("by", res.CreatedBy),
	)
	return res, nil
}

func isStorage(location string) bool {
	return location == LocationFactory || location == LocationGodown
}
