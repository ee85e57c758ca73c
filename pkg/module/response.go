package module

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Attribute is a key/value pair attached to a response or an event.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Event is a typed, attributed notification emitted by a module.
type Event struct {
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// NewEvent creates an event of the given type with no attributes.
func NewEvent(typ string) Event {
	return Event{Type: typ, Attributes: []Attribute{}}
}

// AddAttribute returns the event with key=value appended.
func (e Event) AddAttribute(key, value string) Event {
	e.Attributes = append(e.Attributes, Attribute{Key: key, Value: value})
	return e
}

// Message is an outbound message the host forwards to Target after the call.
type Message struct {
	Target  string          `json:"target"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage encodes payload and addresses it to target.
func NewMessage(target string, payload any) (Message, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("%w: message for %s: %v", ErrEncode, target, err)
	}
	return Message{Target: target, Payload: b}, nil
}

// Response is what a typed module returns from Instantiate and Execute.
// Data is encoded by the bridge; nil means "no data".
type Response struct {
	Events     []Event
	Attributes []Attribute
	Messages   []Message
	Data       any
}

// NewResponse returns an empty Response.
func NewResponse() *Response {
	return &Response{}
}

// AddAttribute appends a response-level attribute.
func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

// AddEvent appends an event.
func (r *Response) AddEvent(e Event) *Response {
	r.Events = append(r.Events, e)
	return r
}

// AddMessage appends an outbound message.
func (r *Response) AddMessage(m Message) *Response {
	r.Messages = append(r.Messages, m)
	return r
}

// SetData sets the data payload.
func (r *Response) SetData(v any) *Response {
	r.Data = v
	return r
}

// Result is the untyped form of a Response: what the dispatcher returns and
// what the host serialises. A nil Data is omitted from the encoding.
type Result struct {
	Events     []Event         `json:"events"`
	Attributes []Attribute     `json:"attributes"`
	Messages   []Message       `json:"messages"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewResult returns an empty Result with non-nil sequences.
func NewResult() *Result {
	return &Result{
		Events:     []Event{},
		Attributes: []Attribute{},
		Messages:   []Message{},
	}
}

// Result converts the typed response into its untyped form.
func (r *Response) Result() (*Result, error) {
	out := NewResult()
	if r == nil {
		return out, nil
	}
	out.Events = append(out.Events, r.Events...)
	out.Attributes = append(out.Attributes, r.Attributes...)
	out.Messages = append(out.Messages, r.Messages...)

	if r.Data != nil {
		b, err := json.Marshal(r.Data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncode, err)
		}
		out.Data = normalizeData(b)
	}
	return out, nil
}

// HasData reports whether the result carries a non-null data payload.
func (r *Result) HasData() bool {
	return r != nil && normalizeData(r.Data) != nil
}

// EncodeResult serialises a result for the wire.
func EncodeResult(r *Result) ([]byte, error) {
	return json.Marshal(r)
}

// DecodeResult parses a serialised result.
func DecodeResult(data []byte) (*Result, error) {
	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	r.Data = normalizeData(r.Data)
	return &r, nil
}

var jsonNull = []byte("null")

// normalizeData maps an empty or literal-null payload to nil.
func normalizeData(b json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, jsonNull) {
		return nil
	}
	return b
}
