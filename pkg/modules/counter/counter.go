// Package counter is a stateful example module that keeps a signed counter
// and an owner in memory.
package counter

import (
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/morezero/modules-manager/pkg/host"
	"github.com/morezero/modules-manager/pkg/module"
)

// Kind is the catalog name of this module.
const Kind = "counter"

// Version is the module's semantic version.
const Version = "1.2.0"

var (
	ErrNotInstantiated = errors.New("counter: not instantiated")
	ErrBadVariant      = errors.New("counter: exactly one message variant must be set")
	ErrUnauthorized    = errors.New("counter: only the owner can reset")
	ErrOverflow        = errors.New("counter: overflow")
)

// InstantiateMsg sets the initial count. Owner defaults to the sender.
type InstantiateMsg struct {
	Count int64  `json:"count"`
	Owner string `json:"owner,omitempty"`
}

// ExecuteMsg is a sum type: exactly one field must be set.
type ExecuteMsg struct {
	Increment *IncrementMsg `json:"increment,omitempty"`
	Reset     *ResetMsg     `json:"reset,omitempty"`
}

// IncrementMsg adds By (default 1) to the counter.
type IncrementMsg struct {
	By *int64 `json:"by,omitempty"`
}

// ResetMsg sets the counter to Count.
type ResetMsg struct {
	Count int64 `json:"count"`
}

// QueryMsg is a sum type: exactly one field must be set.
type QueryMsg struct {
	GetCount *struct{} `json:"get_count,omitempty"`
}

// CountResponse is returned by queries and as execute data.
type CountResponse struct {
	Count int64  `json:"count"`
	Owner string `json:"owner"`
}

// Counter implements module.Module.
type Counter struct {
	count        int64
	owner        string
	instantiated bool
}

// New creates an uninstantiated counter.
func New() *Counter {
	return &Counter{}
}

// NewHandler returns a fresh counter behind the dynamic handler interface.
func NewHandler() module.Handler {
	return module.Adapt[InstantiateMsg, ExecuteMsg, QueryMsg, CountResponse](New())
}

func (c *Counter) Instantiate(_ context.Context, env *host.Env, msg InstantiateMsg) (*module.Response, error) {
	owner := msg.Owner
	if owner == "" && env != nil {
		owner = env.Sender
	}
	c.count = msg.Count
	c.owner = owner
	c.instantiated = true

	return module.NewResponse().
		AddAttribute("action", "instantiate").
		AddEvent(module.NewEvent("counter_instantiated").
			AddAttribute("count", strconv.FormatInt(c.count, 10)).
			AddAttribute("owner", owner)).
		SetData(c.snapshot()), nil
}

func (c *Counter) Execute(_ context.Context, env *host.Env, msg ExecuteMsg) (*module.Response, error) {
	if !c.instantiated {
		return nil, ErrNotInstantiated
	}
	switch {
	case msg.Increment != nil && msg.Reset == nil:
		by := int64(1)
		if msg.Increment.By != nil {
			by = *msg.Increment.By
		}
		if (by > 0 && c.count > math.MaxInt64-by) || (by < 0 && c.count < math.MinInt64-by) {
			return nil, ErrOverflow
		}
		c.count += by
		return module.NewResponse().
			AddAttribute("action", "increment").
			AddAttribute("count", strconv.FormatInt(c.count, 10)).
			SetData(c.snapshot()), nil

	case msg.Reset != nil && msg.Increment == nil:
		if env == nil || env.Sender != c.owner {
			return nil, ErrUnauthorized
		}
		c.count = msg.Reset.Count
		notice, err := module.NewMessage("counter.reset", c.snapshot())
		if err != nil {
			return nil, err
		}
		return module.NewResponse().
			AddAttribute("action", "reset").
			AddEvent(module.NewEvent("counter_reset").
				AddAttribute("count", strconv.FormatInt(c.count, 10))).
			AddMessage(notice).
			SetData(c.snapshot()), nil
	}
	return nil, ErrBadVariant
}

func (c *Counter) Query(_ context.Context, _ *host.Env, msg QueryMsg) (CountResponse, error) {
	if msg.GetCount == nil {
		return CountResponse{}, ErrBadVariant
	}
	if !c.instantiated {
		return CountResponse{}, ErrNotInstantiated
	}
	return c.snapshot(), nil
}

func (c *Counter) snapshot() CountResponse {
	return CountResponse{Count: c.count, Owner: c.owner}
}
