// Package dispatcher routes JSON envelopes to the modules named in them.
package dispatcher

import (
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/morezero/modules-manager/pkg/module"
)

// Entry is one (module name, payload) pair of an envelope.
type Entry struct {
	Module  string
	Payload json.RawMessage
}

// Envelope is a parsed request object, one entry per distinct key. Entries
// keep the order in which the keys first appear in the raw request text.
type Envelope struct {
	Entries []Entry
}

// ParseEnvelope parses raw as a JSON object of module name to payload.
// Anything that is not a JSON object is a parse error without detail.
// A key that appears more than once keeps the position of its first
// occurrence and the payload of its last, so {"a":1,"b":2,"a":3} yields
// a=3 then b=2.
func ParseEnvelope(raw string) (*Envelope, error) {
	if !gjson.Valid(raw) {
		return nil, module.ParseError("")
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, module.ParseError("")
	}

	env := &Envelope{}
	seen := make(map[string]int)
	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		payload := json.RawMessage(value.Raw)
		if i, ok := seen[name]; ok {
			env.Entries[i].Payload = payload
			return true
		}
		seen[name] = len(env.Entries)
		env.Entries = append(env.Entries, Entry{Module: name, Payload: payload})
		return true
	})
	return env, nil
}

// Single returns the only entry of an execute or query envelope.
func (e *Envelope) Single() (Entry, error) {
	if len(e.Entries) != 1 {
		return Entry{}, module.ParseError(module.DetailTooManyPayloads)
	}
	return e.Entries[0], nil
}

// Names returns the module names in entry order.
func (e *Envelope) Names() []string {
	out := make([]string, len(e.Entries))
	for i, entry := range e.Entries {
		out[i] = entry.Module
	}
	return out
}

// Operation names a dispatch operation on the host wire.
type Operation string

const (
	OpInstantiate Operation = "instantiate"
	OpExecute     Operation = "execute"
	OpQuery       Operation = "query"
)

// Request is the host wire request carrying an envelope in Msg.
type Request struct {
	ID     string          `json:"id"`
	Op     Operation       `json:"op,omitempty"`
	Sender string          `json:"sender,omitempty"`
	Msg    json.RawMessage `json:"msg"`
}

// Reply is the host wire reply. Errors cross this boundary only as strings.
type Reply struct {
	ID     string          `json:"id"`
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorDetail    `json:"error,omitempty"`
}

// ErrorDetail holds the stringified error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
