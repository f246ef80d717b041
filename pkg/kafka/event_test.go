package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRoundTripAndData(t *testing.T) {
	e, err := NewEvent("product_card.deleted", "42", "product_card", "catalog", map[string]int64{"product_id": 42})
	require.NoError(t, err)
	require.NotEmpty(t, e.EventID)
	assert.Equal(t, 1, e.Version)

	b, err := e.Marshal()
	require.NoError(t, err)

	got, err := UnmarshalEvent(b)
	require.NoError(t, err)

	var data struct {
		ProductID int64 `json:"product_id"`
	}
	require.NoError(t, got.UnmarshalData(&data))
	assert.Equal(t, int64(42), data.ProductID)
}

func TestEvent_UnmarshalDataEmpty(t *testing.T) {
	var out map[string]any
	assert.Error(t, (&Event{EventID: "x"}).UnmarshalData(&out))
	assert.Error(t, (&Event{EventID: "x", Data: []byte("null")}).UnmarshalData(&out))
}

func TestUnmarshalEvent_Invalid(t *testing.T) {
	_, err := UnmarshalEvent([]byte("nope"))
	assert.Error(t, err)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "showcase.product_card.created", Topic("product_card", "created"))
}
