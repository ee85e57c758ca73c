package counter

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/morezero/modules-manager/pkg/host"
)

const counterTestPrefix = "counter:counter_test"

func int64p(v int64) *int64 { return &v }

func TestCounter_Lifecycle(t *testing.T) {
	ctx := context.Background()
	env := host.NewEnv("test", 1, "alice", nil)
	c := New()

	if _, err := c.Execute(ctx, env, ExecuteMsg{Increment: &IncrementMsg{}}); !errors.Is(err, ErrNotInstantiated) {
		t.Fatalf("%s - execute before instantiate err = %v, want ErrNotInstantiated", counterTestPrefix, err)
	}

	resp, err := c.Instantiate(ctx, env, InstantiateMsg{Count: 10})
	if err != nil {
		t.Fatalf("%s - Instantiate failed: %v", counterTestPrefix, err)
	}
	if got := resp.Data.(CountResponse); got.Count != 10 || got.Owner != "alice" {
		t.Errorf("%s - instantiate data = %+v", counterTestPrefix, got)
	}
	if len(resp.Events) != 1 || resp.Events[0].Type != "counter_instantiated" {
		t.Errorf("%s - unexpected events %+v", counterTestPrefix, resp.Events)
	}

	if _, err := c.Execute(ctx, env, ExecuteMsg{Increment: &IncrementMsg{}}); err != nil {
		t.Fatalf("%s - default increment failed: %v", counterTestPrefix, err)
	}
	if _, err := c.Execute(ctx, env, ExecuteMsg{Increment: &IncrementMsg{By: int64p(-4)}}); err != nil {
		t.Fatalf("%s - negative increment failed: %v", counterTestPrefix, err)
	}

	got, err := c.Query(ctx, env, QueryMsg{GetCount: &struct{}{}})
	if err != nil {
		t.Fatalf("%s - Query failed: %v", counterTestPrefix, err)
	}
	if got.Count != 7 {
		t.Errorf("%s - Count = %d, want 7", counterTestPrefix, got.Count)
	}
}

func TestCounter_ResetRequiresOwner(t *testing.T) {
	ctx := context.Background()
	c := New()
	_, _ = c.Instantiate(ctx, host.NewEnv("test", 1, "alice", nil), InstantiateMsg{Count: 3})

	_, err := c.Execute(ctx, host.NewEnv("test", 2, "mallory", nil), ExecuteMsg{Reset: &ResetMsg{Count: 0}})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("%s - reset by non-owner err = %v, want ErrUnauthorized", counterTestPrefix, err)
	}

	resp, err := c.Execute(ctx, host.NewEnv("test", 3, "alice", nil), ExecuteMsg{Reset: &ResetMsg{Count: 42}})
	if err != nil {
		t.Fatalf("%s - reset by owner failed: %v", counterTestPrefix, err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Target != "counter.reset" {
		t.Fatalf("%s - expected one counter.reset message, got %+v", counterTestPrefix, resp.Messages)
	}
	var payload CountResponse
	if err := json.Unmarshal(resp.Messages[0].Payload, &payload); err != nil || payload.Count != 42 {
		t.Errorf("%s - reset payload = %s (%v)", counterTestPrefix, resp.Messages[0].Payload, err)
	}
}

func TestCounter_BadVariantAndOverflow(t *testing.T) {
	ctx := context.Background()
	env := host.NewEnv("test", 1, "alice", nil)
	c := New()
	_, _ = c.Instantiate(ctx, env, InstantiateMsg{Count: math.MaxInt64})

	if _, err := c.Execute(ctx, env, ExecuteMsg{}); !errors.Is(err, ErrBadVariant) {
		t.Errorf("%s - empty execute err = %v, want ErrBadVariant", counterTestPrefix, err)
	}
	both := ExecuteMsg{Increment: &IncrementMsg{}, Reset: &ResetMsg{}}
	if _, err := c.Execute(ctx, env, both); !errors.Is(err, ErrBadVariant) {
		t.Errorf("%s - two variants err = %v, want ErrBadVariant", counterTestPrefix, err)
	}
	if _, err := c.Execute(ctx, env, ExecuteMsg{Increment: &IncrementMsg{}}); !errors.Is(err, ErrOverflow) {
		t.Errorf("%s - overflow err = %v, want ErrOverflow", counterTestPrefix, err)
	}
	if _, err := c.Query(ctx, env, QueryMsg{}); !errors.Is(err, ErrBadVariant) {
		t.Errorf("%s - empty query err = %v, want ErrBadVariant", counterTestPrefix, err)
	}
}

func TestNewHandler_RoundTrip(t *testing.T) {
	ctx := context.Background()
	env := host.NewEnv("test", 1, "alice", nil)
	h := NewHandler()

	if _, err := h.Instantiate(ctx, env, json.RawMessage(`{"count":1}`)); err != nil {
		t.Fatalf("%s - Instantiate failed: %v", counterTestPrefix, err)
	}
	res, err := h.Execute(ctx, env, json.RawMessage(`{"increment":{"by":2}}`))
	if err != nil {
		t.Fatalf("%s - Execute failed: %v", counterTestPrefix, err)
	}
	if string(res.Data) != `{"count":3,"owner":"alice"}` {
		t.Errorf("%s - Data = %s", counterTestPrefix, res.Data)
	}
	out, err := h.Query(ctx, env, json.RawMessage(`{"get_count":{}}`))
	if err != nil {
		t.Fatalf("%s - Query failed: %v", counterTestPrefix, err)
	}
	if string(out) != `{"count":3,"owner":"alice"}` {
		t.Errorf("%s - Query = %s", counterTestPrefix, out)
	}
}
