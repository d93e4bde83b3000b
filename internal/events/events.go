// Package events delivers change notifications to external consumers.
// Emission is at-least-once after the storage write committed; delivery
// guarantees end at the sink boundary.
package events

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/resilience"
)

// Sink receives one change event.
type Sink interface {
	Emit(ctx context.Context, ev model.ChangeEvent) error
}

// LogSink writes events to the structured log. Always available,
// used as the default sink.
type LogSink struct{}

func NewLogSink() *LogSink { return &LogSink{} }

func (s *LogSink) Emit(_ context.Context, ev model.ChangeEvent) error {
	fields := []zap.Field{
		zap.String("type", string(ev.Type)),
		zap.String("agency_id", ev.AgencyID),
		zap.String("listing_id", ev.ListingID),
		zap.String("hash", ev.Hash),
	}
	if ev.OldPrice != nil && ev.NewPrice != nil {
		fields = append(fields,
			zap.Int64("old_price", *ev.OldPrice),
			zap.Int64("new_price", *ev.NewPrice),
		)
	}
	zap.L().Info("listing change", fields...)
	return nil
}

// WebhookSink POSTs events as JSON to a configured endpoint, retrying
// transient failures.
type WebhookSink struct {
	url    string
	client *http.Client
	retry  resilience.RetryConfig
}

func NewWebhookSink(url string) *WebhookSink {
	return &WebhookSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		retry:  resilience.DefaultRetryConfig(),
	}
}

func (s *WebhookSink) Emit(ctx context.Context, ev model.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "events: marshal")
	}

	return resilience.Do(ctx, s.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
		if err != nil {
			return eris.Wrap(err, "events: create request")
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return resilience.NewTransientError(eris.Wrap(err, "events: post"), 0)
		}
		defer resp.Body.Close() //nolint:errcheck

		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(
				eris.Errorf("events: webhook returned %d", resp.StatusCode), resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return eris.Errorf("events: webhook returned %d", resp.StatusCode)
		}
		return nil
	})
}

// MultiSink fans one event out to several sinks; the first error wins
// but every sink is attempted.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (s *MultiSink) Emit(ctx context.Context, ev model.ChangeEvent) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Emit(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
