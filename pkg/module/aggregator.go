package module

import (
	"encoding/json"
	"fmt"
)

// Aggregator folds the results of several modules into one Result. It is
// used by multi-module instantiation only.
type Aggregator struct {
	result *Result
	data   map[string]json.RawMessage
}

// NewAggregator returns an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		result: NewResult(),
		data:   make(map[string]json.RawMessage),
	}
}

// Fold appends r's events, attributes and messages in their own order after
// everything folded so far, and records r's data under name. A nil or null
// data value is recorded as absent.
func (a *Aggregator) Fold(name string, r *Result) error {
	if r == nil {
		a.data[name] = nil
		return nil
	}
	data := normalizeData(r.Data)
	if data != nil && !json.Valid(data) {
		return ExecutionError(name, fmt.Errorf("%w: data is not valid JSON", ErrEncode))
	}
	a.data[name] = data
	a.result.Events = append(a.result.Events, r.Events...)
	a.result.Attributes = append(a.result.Attributes, r.Attributes...)
	a.result.Messages = append(a.result.Messages, r.Messages...)
	return nil
}

// Finalize returns the combined result. Its data, when present, is a JSON
// object mapping module name to that module's data; modules whose data was
// null are left out, and if every module's data was null there is no data.
func (a *Aggregator) Finalize() (*Result, error) {
	out := &Result{
		Events:     append([]Event{}, a.result.Events...),
		Attributes: append([]Attribute{}, a.result.Attributes...),
		Messages:   append([]Message{}, a.result.Messages...),
	}

	data := make(map[string]json.RawMessage, len(a.data))
	for name, d := range a.data {
		if d != nil {
			data[name] = d
		}
	}
	if len(data) == 0 {
		return out, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregated data: %v", ErrEncode, err)
	}
	out.Data = raw
	return out, nil
}
