package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/modules-manager/pkg/commsutil"
	"github.com/morezero/modules-manager/pkg/module"
)

const commsPublisherLogPrefix = "events:comms_publisher"

// Headers set on forwarded outbound messages.
const (
	HeaderRequestID = "Modules-Request-Id"
	HeaderSender    = "Modules-Sender"
)

// CommsPublisherOpts configures CommsPublisher. Nil or zero values use defaults.
type CommsPublisherOpts struct {
	// Source is the CloudEvents source attribute (e.g. from SERVICE_NAME).
	Source string
	// EventPrefix overrides the module event subject prefix.
	EventPrefix string
	// OutboundPrefix overrides the outbound message subject prefix.
	OutboundPrefix string
}

// CommsPublisher publishes module events as CloudEvents and forwards
// outbound messages to COMMS subjects.
type CommsPublisher struct {
	nc             *comms.Conn
	source         string
	eventPrefix    string
	outboundPrefix string
}

// NewCommsPublisher creates a new CommsPublisher. Pass nil for opts to use defaults.
func NewCommsPublisher(nc *comms.Conn, opts *CommsPublisherOpts) *CommsPublisher {
	p := &CommsPublisher{
		nc:             nc,
		source:         "modules-manager",
		eventPrefix:    commsutil.DefaultEventPrefix,
		outboundPrefix: commsutil.DefaultOutboxPrefix,
	}
	if opts != nil {
		if opts.Source != "" {
			p.source = opts.Source
		}
		if opts.EventPrefix != "" {
			p.eventPrefix = opts.EventPrefix
		}
		if opts.OutboundPrefix != "" {
			p.outboundPrefix = opts.OutboundPrefix
		}
	}
	return p
}

// Publish sends every event, then every outbound message, in batch order.
// A failed publish does not stop the rest; all failures are returned joined.
func (p *CommsPublisher) Publish(_ context.Context, batch *Batch) error {
	if batch.Empty() {
		return nil
	}

	var errs []error
	for _, ev := range batch.Events {
		if err := p.publishEvent(batch, ev); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to publish event %s: %v", commsPublisherLogPrefix, ev.Type, err))
			errs = append(errs, err)
		}
	}
	for _, msg := range batch.Messages {
		if err := p.forwardMessage(batch, msg); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to forward message to %s: %v", commsPublisherLogPrefix, msg.Target, err))
			errs = append(errs, err)
		}
	}

	slog.Debug(fmt.Sprintf("%s - Published %d events and %d messages for request %s",
		commsPublisherLogPrefix, len(batch.Events), len(batch.Messages), batch.RequestID))
	return errors.Join(errs...)
}

// NewModuleCloudEvent wraps a module event in a CloudEvents envelope.
func NewModuleCloudEvent(source string, batch *Batch, ev module.Event) (cloudevents.Event, error) {
	ce := cloudevents.NewEvent()
	ce.SetID(newEventID())
	ce.SetSource(source)
	ce.SetType(EventTypePrefix + ev.Type)
	ce.SetSubject(ev.Type)
	ce.SetTime(time.Now())
	ce.SetSpecVersion(cloudevents.VersionV1)

	data := ModuleEventData{
		RequestID:  batch.RequestID,
		Sender:     batch.Sender,
		Operation:  batch.Operation,
		Type:       ev.Type,
		Attributes: ev.Attributes,
	}
	if err := ce.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return ce, fmt.Errorf("%s - failed to set event data: %w", commsPublisherLogPrefix, err)
	}
	if err := ce.Validate(); err != nil {
		return ce, fmt.Errorf("%s - invalid cloud event: %w", commsPublisherLogPrefix, err)
	}
	return ce, nil
}

func (p *CommsPublisher) publishEvent(batch *Batch, ev module.Event) error {
	ce, err := NewModuleCloudEvent(p.source, batch, ev)
	if err != nil {
		return err
	}
	data, err := commsutil.EncodePayload(ce)
	if err != nil {
		return fmt.Errorf("%s - failed to encode event: %w", commsPublisherLogPrefix, err)
	}
	return p.nc.Publish(commsutil.BuildEventSubject(p.eventPrefix, ev.Type), data)
}

func (p *CommsPublisher) forwardMessage(batch *Batch, msg module.Message) error {
	out := comms.NewMsg(commsutil.BuildOutboundSubject(p.outboundPrefix, msg.Target))
	out.Header.Set(HeaderRequestID, batch.RequestID)
	if batch.Sender != "" {
		out.Header.Set(HeaderSender, batch.Sender)
	}
	out.Data = msg.Payload
	return p.nc.PublishMsg(out)
}

func newEventID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
