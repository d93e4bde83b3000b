package events

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/resilience"
)

func testEvent() model.ChangeEvent {
	price := int64(250000)
	return model.ChangeEvent{
		Type:      model.ChangeAdded,
		AgencyID:  "agency-1",
		ListingID: "listing-1",
		Hash:      "abc",
		Title:     "Appt 3p",
		NewPrice:  &price,
		At:        time.Now().UTC(),
	}
}

func newMockedWebhook(t *testing.T) *WebhookSink {
	t.Helper()
	s := NewWebhookSink("https://hooks.example/listings")
	s.retry = resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
	httpmock.ActivateNonDefault(s.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return s
}

func TestWebhookSink_Delivers(t *testing.T) {
	s := newMockedWebhook(t)
	httpmock.RegisterResponder("POST", "https://hooks.example/listings",
		httpmock.NewStringResponder(202, "ok"))

	require.NoError(t, s.Emit(context.Background(), testEvent()))
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

func TestWebhookSink_RetriesTransient(t *testing.T) {
	s := newMockedWebhook(t)
	calls := 0
	httpmock.RegisterResponder("POST", "https://hooks.example/listings",
		func(*http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return httpmock.NewStringResponse(503, "busy"), nil
			}
			return httpmock.NewStringResponse(200, "ok"), nil
		})

	require.NoError(t, s.Emit(context.Background(), testEvent()))
	assert.Equal(t, 3, calls)
}

func TestWebhookSink_PermanentErrorNotRetried(t *testing.T) {
	s := newMockedWebhook(t)
	httpmock.RegisterResponder("POST", "https://hooks.example/listings",
		httpmock.NewStringResponder(400, "bad payload"))

	err := s.Emit(context.Background(), testEvent())
	require.Error(t, err)
	assert.Equal(t, 1, httpmock.GetTotalCallCount())
}

type recordingSink struct {
	events []model.ChangeEvent
	err    error
}

func (r *recordingSink) Emit(_ context.Context, ev model.ChangeEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestMultiSink_AllSinksAttempted(t *testing.T) {
	a := &recordingSink{err: context.DeadlineExceeded}
	b := &recordingSink{}

	m := NewMultiSink(a, b)
	err := m.Emit(context.Background(), testEvent())
	require.Error(t, err)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestLogSink_NeverFails(t *testing.T) {
	require.NoError(t, NewLogSink().Emit(context.Background(), testEvent()))
}
