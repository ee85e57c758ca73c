// Package module defines the typed module contract, the bridge that erases a
// module's types behind a uniform JSON handler, the canonical error type and
// the aggregator used for multi-module instantiation.
package module

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/morezero/modules-manager/pkg/host"
)

// Module is a statically typed handler unit.
//
// I, E and Q are the message types accepted by Instantiate, Execute and
// Query; R is the query response type. Any of the handlers may be a no-op.
// The returned error's Error() string is what callers eventually see.
type Module[I, E, Q, R any] interface {
	Instantiate(ctx context.Context, env *host.Env, msg I) (*Response, error)
	Execute(ctx context.Context, env *host.Env, msg E) (*Response, error)
	Query(ctx context.Context, env *host.Env, msg Q) (R, error)
}

// Handler is the dynamic face of a module: every operation takes and returns
// untyped JSON. The dispatcher only ever talks to Handlers.
type Handler interface {
	Instantiate(ctx context.Context, env *host.Env, msg json.RawMessage) (*Result, error)
	Execute(ctx context.Context, env *host.Env, msg json.RawMessage) (*Result, error)
	Query(ctx context.Context, env *host.Env, msg json.RawMessage) (json.RawMessage, error)
}

// Adapt wraps a typed module into a Handler.
func Adapt[I, E, Q, R any](m Module[I, E, Q, R]) Handler {
	return &bridge[I, E, Q, R]{m: m}
}

type bridge[I, E, Q, R any] struct {
	m Module[I, E, Q, R]
}

func (b *bridge[I, E, Q, R]) Instantiate(ctx context.Context, env *host.Env, raw json.RawMessage) (*Result, error) {
	msg, err := decode[I](raw)
	if err != nil {
		return nil, err
	}
	resp, err := b.m.Instantiate(ctx, env, msg)
	if err != nil {
		return nil, err
	}
	return resp.Result()
}

func (b *bridge[I, E, Q, R]) Execute(ctx context.Context, env *host.Env, raw json.RawMessage) (*Result, error) {
	msg, err := decode[E](raw)
	if err != nil {
		return nil, err
	}
	resp, err := b.m.Execute(ctx, env, msg)
	if err != nil {
		return nil, err
	}
	return resp.Result()
}

func (b *bridge[I, E, Q, R]) Query(ctx context.Context, env *host.Env, raw json.RawMessage) (json.RawMessage, error) {
	msg, err := decode[Q](raw)
	if err != nil {
		return nil, err
	}
	res, err := b.m.Query(ctx, env, msg)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return out, nil
}

// decode parses raw into T. Fields T does not declare are ignored; a
// mistyped field or trailing data after the message is an error.
func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return v, fmt.Errorf("%w: unexpected data after message", ErrDecode)
	}
	return v, nil
}
