package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reservedPayload struct {
	CheckoutID string `json:"checkout_id"`
	Units      int64  `json:"units"`
}

func TestNewEvent_Fields(t *testing.T) {
	data := reservedPayload{CheckoutID: "chk-1", Units: 3}
	event, err := NewEvent("promotion.reserved", "chk-1", "reservation", "promotion-service", data)
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "promotion.reserved", event.EventType)
	assert.Equal(t, "chk-1", event.AggregateID)
	assert.Equal(t, "reservation", event.AggregateType)
	assert.Equal(t, "promotion-service", event.Source)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)
	assert.Nil(t, event.Metadata)

	var decoded reservedPayload
	require.NoError(t, event.UnmarshalData(&decoded))
	assert.Equal(t, data, decoded)
}

func TestNewEvent_UnencodablePayload(t *testing.T) {
	_, err := NewEvent("x", "agg", "t", "svc", make(chan int))
	require.Error(t, err)
}

func TestEvent_EnvelopeSurvivesWire(t *testing.T) {
	original, err := NewEvent("campaign.created", "camp-1", "campaign", "promotion-service", map[string]string{"name": "Summer"})
	require.NoError(t, err)
	original.WithCorrelationID("corr-1").WithMetadata("actor", "ops")

	raw, err := original.Marshal()
	require.NoError(t, err)

	restored, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, original.EventID, restored.EventID)
	assert.Equal(t, "corr-1", restored.CorrelationID)
	assert.Equal(t, "ops", restored.Metadata["actor"])
	assert.JSONEq(t, string(original.Data), string(restored.Data))
}

func TestEvent_WithMetadata_NilMap(t *testing.T) {
	event := &Event{EventID: "e"}
	assert.Same(t, event, event.WithMetadata("k", "v"))
	assert.Equal(t, "v", event.Metadata["k"])
}

func TestUnmarshalEvent_Invalid(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{broken`))
	assert.Error(t, err)
	_, err = UnmarshalEvent(nil)
	assert.Error(t, err)

	_, err = UnmarshalEvent([]byte(`{"event_type":"order.confirmed","data":{}}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	e := &Event{Data: json.RawMessage(`nope`)}
	assert.Error(t, e.UnmarshalData(&map[string]string{}))
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "market.promotion.reserved", Topic("promotion", "reserved"))
	assert.Equal(t, "market.order.confirmed", Topic("order", "confirmed"))
	assert.Equal(t, "market.dlq.market.order.confirmed", DLQTopic(Topic("order", "confirmed")))
}
