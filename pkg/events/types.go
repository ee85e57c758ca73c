// Package events hands the events and outbound messages produced by module
// calls to the outside world.
package events

import (
	"github.com/morezero/modules-manager/pkg/module"
)

// CloudEvent type prefix for module events.
const EventTypePrefix = "io.morezero.modules."

// Batch is what one successful execute or instantiate call produced.
type Batch struct {
	RequestID string
	Sender    string
	Operation string
	Events    []module.Event
	Messages  []module.Message
}

// NewBatch collects the events and messages of res.
func NewBatch(requestID, sender, operation string, res *module.Result) *Batch {
	b := &Batch{RequestID: requestID, Sender: sender, Operation: operation}
	if res != nil {
		b.Events = res.Events
		b.Messages = res.Messages
	}
	return b
}

// Empty reports whether there is nothing to publish.
func (b *Batch) Empty() bool {
	return b == nil || (len(b.Events) == 0 && len(b.Messages) == 0)
}

// ModuleEventData is the CloudEvents data payload for one module event.
type ModuleEventData struct {
	RequestID  string             `json:"requestId"`
	Sender     string             `json:"sender,omitempty"`
	Operation  string             `json:"operation"`
	Type       string             `json:"type"`
	Attributes []module.Attribute `json:"attributes"`
}
