// Package worker provides async alert processing off the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/openrisk-labs/kestrel/internal/domain"
	"github.com/openrisk-labs/kestrel/internal/metrics"
)

// Worker consumes alert events published by the pipeline and persists
// them as alert records. Runs until Stop.
type Worker struct {
	bus     domain.EventBus
	repo    domain.Repository
	metrics *metrics.Collector

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new alert worker. metrics may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, collector *metrics.Collector) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		repo:    repo,
		metrics: collector,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the alert topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicAlert, w.handleAlert)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("alert worker started", "topic", domain.TopicAlert)
	return nil
}

// handleAlert persists one alert event.
func (w *Worker) handleAlert(ctx context.Context, msg *domain.Message) error {
	var ev domain.AlertEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		slog.Error("failed to parse alert event",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	alert := &domain.Alert{
		ID:            uuid.New().String(),
		TransactionID: ev.TransactionID,
		AccountNumber: ev.AccountNumber,
		RiskScore:     ev.RiskScore,
		RiskLevel:     ev.RiskLevel,
		CreatedAt:     time.Now().UTC(),
	}

	if err := w.repo.SaveAlert(ctx, alert); err != nil {
		slog.Error("failed to save alert",
			"transaction_id", ev.TransactionID,
			"error", err,
		)
		return err
	}

	if w.metrics != nil {
		w.metrics.RecordAlert()
	}

	slog.Debug("alert saved",
		"transaction_id", ev.TransactionID,
		"risk_level", string(ev.RiskLevel),
		"risk_score", ev.RiskScore,
	)
	return nil
}

// Stop unsubscribes and halts processing.
func (w *Worker) Stop() {
	for _, sub := range w.subscriptions {
		_ = sub.Unsubscribe()
	}
	w.subscriptions = nil
	w.cancel()

	slog.Info("alert worker stopped")
}
