// Package alert implements alert dispatching to multiple sinks. The
// pipeline raises alerts for retry exhaustion, archive verification
// failures, and lock-store fail-opens; sinks deliver them to humans.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vitals-systems/siphon/internal/metrics"
	"github.com/vitals-systems/siphon/pkg/types"
)

// dispatchTimeout bounds a single sink delivery.
const dispatchTimeout = 10 * time.Second

// Sink is an alert destination.
type Sink interface {
	Send(ctx context.Context, alert types.Alert) error
	Name() string
}

// Dispatcher routes alerts to configured sinks. Sink failures are logged
// and counted, never propagated: alerting must not take the pipeline down.
type Dispatcher struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher from alert configs.
func NewDispatcher(configs []types.AlertConfig, logger *slog.Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{logger: logger}
	for _, cfg := range configs {
		sink, err := newSink(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating %s sink: %w", cfg.Type, err)
		}
		d.sinks = append(d.sinks, sink)
	}
	return d, nil
}

// AddSink appends a sink to the dispatcher.
func (d *Dispatcher) AddSink(s Sink) {
	d.sinks = append(d.sinks, s)
}

// Dispatch sends an alert to all configured sinks.
func (d *Dispatcher) Dispatch(ctx context.Context, alert types.Alert) {
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}
	for _, sink := range d.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
		err := sink.Send(sendCtx, alert)
		cancel()
		if err != nil {
			metrics.AlertsFailed.Add(1)
			d.logger.Error("alert delivery failed",
				"sink", sink.Name(),
				"category", alert.Category,
				"error", err)
			continue
		}
		metrics.AlertsDispatched.Add(1)
	}
}

// AlertFunc returns a callback suitable for the workers' alert hooks.
func (d *Dispatcher) AlertFunc() func(types.Alert) {
	return func(a types.Alert) {
		d.Dispatch(context.Background(), a)
	}
}

func newSink(cfg types.AlertConfig) (Sink, error) {
	switch cfg.Type {
	case types.AlertConsole:
		return NewConsoleSink(), nil
	case types.AlertWebhook:
		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook URL required")
		}
		return NewWebhookSink(cfg.URL), nil
	case types.AlertSNS:
		return NewSNSSink(cfg.TopicARN)
	default:
		return nil, fmt.Errorf("unknown alert type %q", cfg.Type)
	}
}
