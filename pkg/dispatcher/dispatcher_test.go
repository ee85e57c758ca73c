package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/modules-manager/pkg/host"
	"github.com/morezero/modules-manager/pkg/module"
	"github.com/morezero/modules-manager/pkg/modules/counter"
	"github.com/morezero/modules-manager/pkg/modules/kvstore"
	"github.com/morezero/modules-manager/pkg/registry"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *host.Env) {
	t.Helper()
	reg := registry.NewRegistry()
	require.NoError(t, reg.Register("counter", counter.NewHandler()))
	require.NoError(t, reg.Register("kv", kvstore.NewHandler()))
	return NewDispatcher(reg), host.NewEnv("test-chain", 1, "alice", host.NewMemoryStore())
}

func queryCount(t *testing.T, d *Dispatcher, env *host.Env) counter.CountResponse {
	t.Helper()
	out, err := d.Query(context.Background(), env, `{"counter":{"get_count":{}}}`)
	require.NoError(t, err)
	var resp counter.CountResponse
	require.NoError(t, json.Unmarshal(out, &resp))
	return resp
}

func TestDispatcher_InstantiateAggregates(t *testing.T) {
	d, env := newTestDispatcher(t)

	res, err := d.Instantiate(context.Background(), env, `{"counter":{"count":5},"kv":{"namespace":"n"}}`)
	require.NoError(t, err)

	require.Len(t, res.Attributes, 3)
	assert.Equal(t, "action", res.Attributes[0].Key)
	assert.Equal(t, "instantiate", res.Attributes[0].Value)
	assert.Equal(t, "namespace", res.Attributes[2].Key)
	require.Len(t, res.Events, 1)
	assert.Equal(t, "counter_instantiated", res.Events[0].Type)

	// kv returns no data, so only counter appears.
	assert.JSONEq(t, `{"counter":{"count":5,"owner":"alice"}}`, string(res.Data))
}

func TestDispatcher_InstantiateFollowsSourceOrder(t *testing.T) {
	d, env := newTestDispatcher(t)

	res, err := d.Instantiate(context.Background(), env, `{"kv":{},"counter":{"count":1}}`)
	require.NoError(t, err)
	require.Len(t, res.Attributes, 2)
	assert.Equal(t, "namespace", res.Attributes[0].Key)
	assert.Equal(t, "action", res.Attributes[1].Key)
}

func TestDispatcher_InstantiateEmpty(t *testing.T) {
	d, env := newTestDispatcher(t)

	res, err := d.Instantiate(context.Background(), env, `{}`)
	require.NoError(t, err)
	assert.Empty(t, res.Events)
	assert.Empty(t, res.Attributes)
	assert.Empty(t, res.Messages)
	assert.False(t, res.HasData())
}

func TestDispatcher_InstantiateMissingModuleNoRollback(t *testing.T) {
	d, env := newTestDispatcher(t)
	ctx := context.Background()

	_, err := d.Instantiate(ctx, env, `{"counter":{"count":9},"ghost":{}}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, module.ErrNotFound))
	assert.Equal(t, `module "ghost" not found`, err.Error())

	// counter ran before the failure and keeps its state.
	assert.Equal(t, int64(9), queryCount(t, d, env).Count)
}

func TestDispatcher_InstantiateModuleFailure(t *testing.T) {
	d, env := newTestDispatcher(t)

	_, err := d.Instantiate(context.Background(), env, `{"counter":{"count":"nope"}}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, module.ErrExecution))
	assert.True(t, errors.Is(err, module.ErrDecode))
}

func TestDispatcher_Execute(t *testing.T) {
	d, env := newTestDispatcher(t)
	ctx := context.Background()
	_, err := d.Instantiate(ctx, env, `{"counter":{"count":1}}`)
	require.NoError(t, err)

	res, err := d.Execute(ctx, env, `{"counter":{"increment":{"by":4}}}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":5,"owner":"alice"}`, string(res.Data))
	assert.Equal(t, int64(5), queryCount(t, d, env).Count)
}

func TestDispatcher_ExecuteBadPayloadLeavesState(t *testing.T) {
	d, env := newTestDispatcher(t)
	ctx := context.Background()
	_, err := d.Instantiate(ctx, env, `{"counter":{"count":3}}`)
	require.NoError(t, err)

	_, err = d.Execute(ctx, env, `{"counter":{"increment":{"by":"x"}}}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, module.ErrExecution))
	assert.True(t, errors.Is(err, module.ErrDecode))
	assert.Contains(t, err.Error(), `error executing module "counter"`)

	assert.Equal(t, int64(3), queryCount(t, d, env).Count)
}

func TestDispatcher_ExtraFieldsIgnored(t *testing.T) {
	d, env := newTestDispatcher(t)
	ctx := context.Background()

	res, err := d.Instantiate(ctx, env, `{"counter":{"count":1,"note":"x"}}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"counter":{"count":1,"owner":"alice"}}`, string(res.Data))

	_, err = d.Execute(ctx, env, `{"counter":{"increment":{"by":2,"reason":"test"}}}`)
	require.NoError(t, err)
	assert.Equal(t, int64(3), queryCount(t, d, env).Count)
}

func TestDispatcher_DuplicateKeysDispatchOnce(t *testing.T) {
	d, env := newTestDispatcher(t)
	ctx := context.Background()

	res, err := d.Instantiate(ctx, env, `{"counter":{"count":1},"kv":{},"counter":{"count":7}}`)
	require.NoError(t, err)
	require.Len(t, res.Events, 1)
	assert.JSONEq(t, `{"counter":{"count":7,"owner":"alice"}}`, string(res.Data))
	assert.Equal(t, "action", res.Attributes[0].Key)

	res, err = d.Execute(ctx, env, `{"counter":{"increment":{}},"counter":{"increment":{"by":2}}}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":9,"owner":"alice"}`, string(res.Data))
}

func TestDispatcher_ExecuteModuleError(t *testing.T) {
	d, env := newTestDispatcher(t)

	_, err := d.Execute(context.Background(), env, `{"counter":{"increment":{}}}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, counter.ErrNotInstantiated))
	assert.Equal(t, `error executing module "counter": counter: not instantiated`, err.Error())
}

func TestDispatcher_SingleEntryRules(t *testing.T) {
	d, env := newTestDispatcher(t)
	ctx := context.Background()

	cases := []struct {
		name string
		raw  string
		want error
	}{
		{"empty object", `{}`, module.ErrParse},
		{"two entries", `{"counter":{},"kv":{}}`, module.ErrParse},
		{"not an object", `[1]`, module.ErrParse},
		{"invalid json", `{`, module.ErrParse},
		{"unknown module", `{"ghost":{}}`, module.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := d.Execute(ctx, env, tc.raw)
			assert.True(t, errors.Is(err, tc.want), "execute: %v", err)
			_, err = d.Query(ctx, env, tc.raw)
			assert.True(t, errors.Is(err, tc.want), "query: %v", err)
			assert.Equal(t, []string{"counter", "kv"}, d.Modules())
		})
	}
}

func TestDispatcher_QueryError(t *testing.T) {
	d, env := newTestDispatcher(t)

	_, err := d.Query(context.Background(), env, `{"counter":{}}`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, module.ErrQuery))
	assert.True(t, errors.Is(err, counter.ErrBadVariant))
}

func TestDispatcher_KVStoreThroughHost(t *testing.T) {
	d, env := newTestDispatcher(t)
	ctx := context.Background()
	_, err := d.Instantiate(ctx, env, `{"kv":{"namespace":"ns"}}`)
	require.NoError(t, err)

	_, err = d.Execute(ctx, env, `{"kv":{"set":{"key":"k","value":"v"}}}`)
	require.NoError(t, err)

	out, err := d.Query(ctx, env, `{"kv":{"get":{"key":"k"}}}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"k","value":"v","found":true}`, string(out))
}

func TestDispatcher_Dispatch(t *testing.T) {
	d, env := newTestDispatcher(t)
	ctx := context.Background()

	reply := d.Dispatch(ctx, env, &Request{ID: "1", Op: OpInstantiate, Msg: json.RawMessage(`{"counter":{"count":2}}`)})
	require.True(t, reply.Ok)
	assert.Equal(t, "1", reply.ID)
	var res module.Result
	require.NoError(t, json.Unmarshal(reply.Result, &res))
	assert.JSONEq(t, `{"counter":{"count":2,"owner":"alice"}}`, string(res.Data))

	reply = d.Dispatch(ctx, env, &Request{ID: "2", Op: OpQuery, Msg: json.RawMessage(`{"counter":{"get_count":{}}}`)})
	require.True(t, reply.Ok)
	assert.JSONEq(t, `{"count":2,"owner":"alice"}`, string(reply.Result))

	reply = d.Dispatch(ctx, env, &Request{ID: "3", Op: OpExecute, Msg: json.RawMessage(`{"ghost":{}}`)})
	require.False(t, reply.Ok)
	require.NotNil(t, reply.Error)
	assert.Equal(t, "NOT_FOUND", reply.Error.Code)
	assert.Equal(t, `module "ghost" not found`, reply.Error.Message)

	reply = d.Dispatch(ctx, env, &Request{ID: "4", Op: OpExecute, Msg: json.RawMessage(`{}`)})
	require.False(t, reply.Ok)
	assert.Equal(t, "PARSE_ERROR", reply.Error.Code)
	assert.Equal(t, "error parsing request: too many module payloads", reply.Error.Message)

	reply = d.Dispatch(ctx, env, &Request{ID: "5", Op: "migrate"})
	require.False(t, reply.Ok)
	assert.Equal(t, "METHOD_NOT_FOUND", reply.Error.Code)
}

func TestDispatcher_Modules(t *testing.T) {
	d, _ := newTestDispatcher(t)
	assert.Equal(t, []string{"counter", "kv"}, d.Modules())
}

func TestDispatcher_DispatchResult(t *testing.T) {
	d, env := newTestDispatcher(t)
	ctx := context.Background()

	reply, res := d.DispatchResult(ctx, env, &Request{ID: "1", Op: OpInstantiate, Msg: json.RawMessage(`{"counter":{"count":0}}`)})
	require.True(t, reply.Ok)
	require.NotNil(t, res)
	assert.Equal(t, "counter_instantiated", res.Events[0].Type)

	reply, res = d.DispatchResult(ctx, env, &Request{ID: "2", Op: OpQuery, Msg: json.RawMessage(`{"counter":{"get_count":{}}}`)})
	require.True(t, reply.Ok)
	assert.Nil(t, res)

	reply, res = d.DispatchResult(ctx, env, &Request{ID: "3", Op: OpExecute, Msg: json.RawMessage(`{"counter":{"reset":{"count":1}}}`)})
	require.True(t, reply.Ok)
	require.NotNil(t, res)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "counter.reset", res.Messages[0].Target)

	reply, res = d.DispatchResult(ctx, env, &Request{ID: "4", Op: OpExecute, Msg: json.RawMessage(`[]`)})
	require.False(t, reply.Ok)
	assert.Nil(t, res)
}
