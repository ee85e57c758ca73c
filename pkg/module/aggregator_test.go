package module

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resultWith(attr string, event string, target string, data string) *Result {
	r := NewResult()
	r.Attributes = append(r.Attributes, Attribute{Key: "from", Value: attr})
	r.Events = append(r.Events, NewEvent(event))
	r.Messages = append(r.Messages, Message{Target: target, Payload: json.RawMessage(`{}`)})
	if data != "" {
		r.Data = json.RawMessage(data)
	}
	return r
}

func TestAggregator_ConcatenatesInArrivalOrder(t *testing.T) {
	agg := NewAggregator()
	require.NoError(t, agg.Fold("A", resultWith("a", "ev-a", "to-a", `{"x":1}`)))
	require.NoError(t, agg.Fold("B", resultWith("b", "ev-b", "to-b", `[2]`)))

	out, err := agg.Finalize()
	require.NoError(t, err)

	assert.Equal(t, []Attribute{{Key: "from", Value: "a"}, {Key: "from", Value: "b"}}, out.Attributes)
	require.Len(t, out.Events, 2)
	assert.Equal(t, "ev-a", out.Events[0].Type)
	assert.Equal(t, "ev-b", out.Events[1].Type)
	require.Len(t, out.Messages, 2)
	assert.Equal(t, "to-a", out.Messages[0].Target)
	assert.Equal(t, "to-b", out.Messages[1].Target)
	assert.JSONEq(t, `{"A":{"x":1},"B":[2]}`, string(out.Data))
}

func TestAggregator_DataKeysSorted(t *testing.T) {
	agg := NewAggregator()
	require.NoError(t, agg.Fold("zeta", &Result{Data: json.RawMessage(`{"z": 1}`)}))
	require.NoError(t, agg.Fold("alpha", &Result{Data: json.RawMessage(`"a"`)}))

	out, err := agg.Finalize()
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","zeta":{"z":1}}`, string(out.Data))
}

// Null data is dropped from the aggregated map rather than kept as a null
// entry; when nothing is left the data field is absent.
func TestAggregator_NullDataFixture(t *testing.T) {
	agg := NewAggregator()
	require.NoError(t, agg.Fold("A", resultWith("a", "ev-a", "t", `{"x":1}`)))
	require.NoError(t, agg.Fold("N", resultWith("n", "ev-n", "t", "")))
	require.NoError(t, agg.Fold("L", resultWith("l", "ev-l", "t", "null")))

	out, err := agg.Finalize()
	require.NoError(t, err)
	assert.JSONEq(t, `{"A":{"x":1}}`, string(out.Data))

	onlyNull := NewAggregator()
	require.NoError(t, onlyNull.Fold("N", resultWith("n", "ev-n", "t", "")))
	require.NoError(t, onlyNull.Fold("L", resultWith("l", "ev-l", "t", "null")))
	out, err = onlyNull.Finalize()
	require.NoError(t, err)
	assert.Nil(t, out.Data)

	encoded, err := EncodeResult(out)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(encoded, &fields))
	assert.NotContains(t, fields, "data")
	assert.Len(t, out.Events, 2)
}

func TestAggregator_EmptyFinalize(t *testing.T) {
	out, err := NewAggregator().Finalize()
	require.NoError(t, err)
	assert.Empty(t, out.Events)
	assert.Empty(t, out.Attributes)
	assert.Empty(t, out.Messages)
	assert.Nil(t, out.Data)
}

func TestAggregator_RejectsInvalidData(t *testing.T) {
	agg := NewAggregator()
	err := agg.Fold("bad", &Result{Data: json.RawMessage(`{oops`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExecution)
	assert.ErrorIs(t, err, ErrEncode)
	out, err := agg.Finalize()
	require.NoError(t, err)
	assert.Nil(t, out.Data)
}

func TestAggregator_FinalizeDoesNotAlias(t *testing.T) {
	agg := NewAggregator()
	require.NoError(t, agg.Fold("A", resultWith("a", "ev-a", "t", "")))
	first, err := agg.Finalize()
	require.NoError(t, err)
	first.Attributes[0].Value = "mutated"

	second, err := agg.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "a", second.Attributes[0].Value)
}
