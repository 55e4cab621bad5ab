package consumers

import (
	"context"
	"testing"

	"github.com/farmacia/farmacia-backend/internal/inventory/repository"
	"github.com/farmacia/farmacia-backend/pkg/logger"
	"github.com/farmacia/farmacia-backend/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sinkRecorder struct {
	events []repository.AlertEvent
}

func (s *sinkRecorder) PublishAlertEvents(_ context.Context, events []repository.AlertEvent) {
	s.events = append(s.events, events...)
}

func TestHandleAlertChanged_ForwardsToSink(t *testing.T) {
	sink := &sinkRecorder{}
	c := &AlertFeedConsumer{sink: sink, logger: logger.Nop()}

	event, err := messaging.NewEvent(messaging.EventAlertResolved, "stock-service", "", messaging.AlertChangedEvent{
		EventID:   "ev-1",
		Kind:      string(repository.AlertResolved),
		AlertID:   "a-1",
		ProductID: "p-1",
		BatchID:   "b-1",
		AlertType: string(repository.AlertTypeVencimiento),
		Severity:  string(repository.SeverityWarning),
	})
	require.NoError(t, err)

	require.NoError(t, c.HandleAlertChanged(context.Background(), event))

	require.Len(t, sink.events, 1)
	got := sink.events[0]
	assert.Equal(t, "a-1", got.AlertID)
	assert.Equal(t, repository.AlertResolved, got.Kind)
	require.NotNil(t, got.BatchID)
	assert.Equal(t, "b-1", *got.BatchID)
}

func TestHandleAlertChanged_MalformedPayload(t *testing.T) {
	sink := &sinkRecorder{}
	c := &AlertFeedConsumer{sink: sink, logger: logger.Nop()}

	event := &messaging.Event{Type: messaging.EventAlertCreated, Data: []byte(`"not an object"`)}

	assert.Error(t, c.HandleAlertChanged(context.Background(), event))
	assert.Empty(t, sink.events)
}
