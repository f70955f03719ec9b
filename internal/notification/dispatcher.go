package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aquadrop/aquadrop/internal/metrics"
)

// DispatchResult reports how a verification message was delivered.
type DispatchResult struct {
	Success        bool
	Channel        string
	ProviderStatus int
	ProviderBody   string
}

// Dispatcher sends verification codes over a primary channel and, when
// configured, a fallback channel on transport failure.
type Dispatcher struct {
	primary  Channel
	fallback Channel
	debug    DebugSlot
	appName  string
	ttl      time.Duration
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithFallback sets a channel tried after a transport failure on the primary.
func WithFallback(ch Channel) DispatcherOption {
	return func(d *Dispatcher) { d.fallback = ch }
}

// WithDebugSlot records every dispatched code in slot.
func WithDebugSlot(slot DebugSlot) DispatcherOption {
	return func(d *Dispatcher) { d.debug = slot }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(rec metrics.Recorder) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = rec }
}

// NewDispatcher builds a Dispatcher. appName and ttl are used in the message text.
func NewDispatcher(primary Channel, appName string, ttl time.Duration, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		primary: primary,
		appName: appName,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendVerification delivers code to phone. A non-nil error is either
// ErrNotConfigured or a *TransportError; the result carries the channel used
// and any provider payload.
func (d *Dispatcher) SendVerification(ctx context.Context, phone, code string) (DispatchResult, error) {
	msg := Message{
		Kind:        KindVerificationCode,
		Destination: phone,
		Body:        d.body(code),
	}

	if d.debug != nil {
		if err := d.debug.Record(ctx, phone, code); err != nil {
			d.logger.Warn("record debug code", slog.String("phone", phone), slog.Any("error", err))
		}
	}

	res, err := d.send(ctx, d.primary, msg)
	var transportErr *TransportError
	if err != nil && d.fallback != nil && errors.As(err, &transportErr) {
		d.logger.Warn("primary channel failed, trying fallback",
			slog.String("primary", d.primary.Name()),
			slog.String("fallback", d.fallback.Name()),
			slog.Any("error", err),
		)
		res, err = d.send(ctx, d.fallback, msg)
	}
	return res, err
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, msg Message) (DispatchResult, error) {
	res := DispatchResult{Channel: ch.Name()}
	err := ch.Send(ctx, msg)
	d.metrics.RecordDispatch(ch.Name(), err == nil)
	if err == nil {
		res.Success = true
		return res, nil
	}

	var transportErr *TransportError
	switch {
	case errors.As(err, &transportErr):
		res.ProviderStatus = transportErr.Status
		res.ProviderBody = transportErr.Body
		d.logger.Error("verification dispatch failed",
			slog.String("channel", ch.Name()),
			slog.Int("provider_status", transportErr.Status),
			slog.String("provider_body", transportErr.Body),
			slog.Any("error", err),
		)
	case errors.Is(err, ErrNotConfigured):
		d.logger.Error("verification channel misconfigured", slog.String("channel", ch.Name()), slog.Any("error", err))
	default:
		err = &TransportError{Channel: ch.Name(), Err: err}
		d.logger.Error("verification dispatch failed", slog.String("channel", ch.Name()), slog.Any("error", err))
	}
	return res, err
}

func (d *Dispatcher) body(code string) string {
	minutes := int(d.ttl.Minutes())
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("Your %s verification code is %s. It expires in %d minutes. Do not share it with anyone.", d.appName, code, minutes)
}
