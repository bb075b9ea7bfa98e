// Package worker provides async payload processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/merlin/internal/domain"
	"github.com/opensource-finance/merlin/internal/session"
)

// Worker consumes submitted payloads from the EventBus and drives them
// through the assessment pipeline. Reports come back on the bus, so a
// producer never talks to the engine directly.
type Worker struct {
	bus     domain.EventBus
	service *session.Service

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc
	logger        *slog.Logger
}

// NewWorker creates an async worker over a wired session service.
func NewWorker(bus domain.EventBus, service *session.Service, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		service: service,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Start subscribes to the payload topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicPayloadSubmitted, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	w.logger.Info("worker started",
		"topic", domain.TopicPayloadSubmitted,
	)
	return nil
}

// PayloadMessage is the wire form of a payload submission.
//
// Two shapes are accepted: a complete set of payloads for a one-shot
// assessment, or a single payload addressed to an open session, with
// finalize set on the last one.
type PayloadMessage struct {
	SessionID string            `json:"sessionId,omitempty"`
	Payload   *domain.Payload   `json:"payload,omitempty"`
	Payloads  []*domain.Payload `json:"payloads,omitempty"`
	Finalize  bool              `json:"finalize,omitempty"`
}

// handleMessage routes one submission through the pipeline.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var pm PayloadMessage
	if err := json.Unmarshal(msg.Payload, &pm); err != nil {
		w.logger.Error("failed to parse payload message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	switch {
	case len(pm.Payloads) > 0:
		report, err := w.service.Assess(ctx, pm.Payloads)
		if err != nil {
			w.logger.Error("assessment failed",
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
		w.logger.Info("assessment processed",
			"session_id", report.SessionID,
			"score", report.Breakdown.Score,
			"label", report.Breakdown.Label,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil

	case pm.SessionID != "" && pm.Payload != nil:
		if _, err := w.service.Submit(ctx, pm.SessionID, pm.Payload); err != nil {
			w.logger.Error("submission failed",
				"session_id", pm.SessionID,
				"domain", pm.Payload.Domain,
				"error", err,
			)
			return err
		}
		if pm.Finalize {
			report, err := w.service.Finalize(ctx, pm.SessionID)
			if err != nil {
				w.logger.Error("finalize failed",
					"session_id", pm.SessionID,
					"error", err,
				)
				return err
			}
			w.logger.Info("session finalized",
				"session_id", report.SessionID,
				"score", report.Breakdown.Score,
				"label", report.Breakdown.Label,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		}
		return nil
	}

	err := fmt.Errorf("payload message needs either payloads or sessionId+payload")
	w.logger.Error("invalid payload message", "message_id", msg.ID, "error", err)
	return err
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.logger.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
