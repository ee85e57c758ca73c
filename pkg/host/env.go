// Package host defines the execution environment handed to modules by the
// surrounding application. The manager treats it as an opaque bundle and
// passes it to modules unchanged.
package host

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Store implementations when a key is absent.
var ErrKeyNotFound = errors.New("key not found")

// Store is the key/value storage a host exposes to modules. Keys are
// namespaced by the caller; implementations do not interpret them.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// Block describes the host block/tick the call executes in.
type Block struct {
	Height  int64     `json:"height"`
	Time    time.Time `json:"time"`
	ChainID string    `json:"chainId"`
}

// Env is the host context for a single call.
type Env struct {
	Block  Block
	Sender string
	Store  Store
}

// NewEnv builds an Env for the given sender at the current time.
func NewEnv(chainID string, height int64, sender string, store Store) *Env {
	return &Env{
		Block: Block{
			Height:  height,
			Time:    time.Now().UTC(),
			ChainID: chainID,
		},
		Sender: sender,
		Store:  store,
	}
}
