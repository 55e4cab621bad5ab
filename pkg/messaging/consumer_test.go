package messaging

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRetryCount(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{name: "no headers", headers: nil, want: 0},
		{name: "no x-death", headers: amqp.Table{"other": "x"}, want: 0},
		{
			name: "dead lettered twice",
			headers: amqp.Table{
				"x-death": []interface{}{amqp.Table{"count": int64(2), "queue": "q"}},
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getRetryCount(amqp.Delivery{Headers: tt.headers}))
		})
	}
}

func TestNewEvent_CarriesPayload(t *testing.T) {
	event, err := NewEvent(EventAlertCreated, "stock-service", "corr-1", AlertChangedEvent{
		Kind:      "created",
		AlertID:   "a-1",
		ProductID: "p-1",
		AlertType: "STOCK_BAJO",
		Severity:  "CRITICAL",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, EventAlertCreated, event.Type)
	assert.Equal(t, "corr-1", event.CorrelationID)

	var data AlertChangedEvent
	require.NoError(t, event.UnmarshalData(&data))
	assert.Equal(t, "a-1", data.AlertID)
	assert.Equal(t, "CRITICAL", data.Severity)
}
