package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/morezero/modules-manager/pkg/host"
	"github.com/morezero/modules-manager/pkg/module"
	"github.com/morezero/modules-manager/pkg/registry"
)

const logPrefix = "dispatcher:dispatch"

// Dispatcher routes envelopes to registered modules. It keeps no state
// between calls; calls are serialised so a module handle only ever sees one
// operation at a time.
type Dispatcher struct {
	registry *registry.Registry
	mu       sync.Mutex
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{registry: reg}
}

// Modules returns the registered module names in registration order.
func (d *Dispatcher) Modules() []string {
	return d.registry.Names()
}

// Execute dispatches a single-entry envelope to the named module's execute
// handler.
func (d *Dispatcher) Execute(ctx context.Context, env *host.Env, raw string) (*module.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, h, err := d.resolveSingle(raw)
	if err != nil {
		return nil, err
	}
	slog.Debug(fmt.Sprintf("%s - execute module=%s", logPrefix, entry.Module))

	res, err := h.Execute(ctx, env, entry.Payload)
	if err != nil {
		return nil, module.ExecutionError(entry.Module, err)
	}
	return res, nil
}

// Query dispatches a single-entry envelope to the named module's query
// handler and returns the module's encoded response.
func (d *Dispatcher) Query(ctx context.Context, env *host.Env, raw string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, h, err := d.resolveSingle(raw)
	if err != nil {
		return nil, err
	}
	slog.Debug(fmt.Sprintf("%s - query module=%s", logPrefix, entry.Module))

	out, err := h.Query(ctx, env, entry.Payload)
	if err != nil {
		return nil, module.QueryError(entry.Module, err)
	}
	return out, nil
}

// Instantiate instantiates every module named in the envelope, in the order
// the keys appear, and folds their results into one.
//
// A missing or failing module aborts the call. Modules instantiated before
// it are not rolled back: their own state changes stay in place, but the
// caller receives only the error.
func (d *Dispatcher) Instantiate(ctx context.Context, env *host.Env, raw string) (*module.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	envelope, err := ParseEnvelope(raw)
	if err != nil {
		return nil, err
	}

	agg := module.NewAggregator()
	for _, entry := range envelope.Entries {
		h, ok := d.registry.Resolve(entry.Module)
		if !ok {
			slog.Debug(fmt.Sprintf("%s - instantiate aborted, module=%s not found", logPrefix, entry.Module))
			return nil, module.NotFound(entry.Module)
		}
		slog.Debug(fmt.Sprintf("%s - instantiate module=%s", logPrefix, entry.Module))

		res, err := h.Instantiate(ctx, env, entry.Payload)
		if err != nil {
			return nil, module.ExecutionError(entry.Module, err)
		}
		if err := agg.Fold(entry.Module, res); err != nil {
			return nil, err
		}
	}
	res, err := agg.Finalize()
	if err != nil {
		return nil, module.ExecutionError(strings.Join(envelope.Names(), ","), err)
	}
	return res, nil
}

// Dispatch runs req and converts the outcome into a wire Reply. This is the
// only place canonical errors are turned into strings.
func (d *Dispatcher) Dispatch(ctx context.Context, env *host.Env, req *Request) *Reply {
	reply, _ := d.DispatchResult(ctx, env, req)
	return reply
}

// DispatchResult is Dispatch that also hands back the structured result of
// a successful execute or instantiate, for hosts that forward its events
// and messages. The result is nil for queries and failures.
func (d *Dispatcher) DispatchResult(ctx context.Context, env *host.Env, req *Request) (*Reply, *module.Result) {
	slog.Debug(fmt.Sprintf("%s - op=%s id=%s", logPrefix, req.Op, req.ID))

	raw := string(req.Msg)
	switch req.Op {
	case OpExecute:
		res, err := d.Execute(ctx, env, raw)
		if err != nil {
			return errorReply(req.ID, err), nil
		}
		return resultReply(req.ID, res), res
	case OpInstantiate:
		res, err := d.Instantiate(ctx, env, raw)
		if err != nil {
			return errorReply(req.ID, err), nil
		}
		return resultReply(req.ID, res), res
	case OpQuery:
		out, err := d.Query(ctx, env, raw)
		if err != nil {
			return errorReply(req.ID, err), nil
		}
		return &Reply{ID: req.ID, Ok: true, Result: out}, nil
	default:
		return &Reply{
			ID: req.ID,
			Ok: false,
			Error: &ErrorDetail{
				Code:    "METHOD_NOT_FOUND",
				Message: fmt.Sprintf("Unknown operation: %s", req.Op),
			},
		}, nil
	}
}

func (d *Dispatcher) resolveSingle(raw string) (Entry, module.Handler, error) {
	envelope, err := ParseEnvelope(raw)
	if err != nil {
		return Entry{}, nil, err
	}
	entry, err := envelope.Single()
	if err != nil {
		return Entry{}, nil, err
	}
	h, ok := d.registry.Resolve(entry.Module)
	if !ok {
		return Entry{}, nil, module.NotFound(entry.Module)
	}
	return entry, h, nil
}

// --- helpers ---

func resultReply(id string, res *module.Result) *Reply {
	data, err := module.EncodeResult(res)
	if err != nil {
		return errorReply(id, err)
	}
	return &Reply{ID: id, Ok: true, Result: data}
}

func errorReply(id string, err error) *Reply {
	code := "INTERNAL_ERROR"
	var me *module.Error
	if errors.As(err, &me) {
		code = me.Kind.String()
	}
	return &Reply{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:    code,
			Message: err.Error(),
		},
	}
}
