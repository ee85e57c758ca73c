// Package kvstore is an example module that keeps string values in the
// host's Store under a per-instance namespace.
package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/morezero/modules-manager/pkg/host"
	"github.com/morezero/modules-manager/pkg/module"
)

// Kind is the catalog name of this module.
const Kind = "kvstore"

// Version is the module's semantic version.
const Version = "1.0.0"

var (
	ErrNotInstantiated = errors.New("kvstore: not instantiated")
	ErrBadVariant      = errors.New("kvstore: exactly one message variant must be set")
	ErrEmptyKey        = errors.New("kvstore: key must not be empty")
	ErrNoStore         = errors.New("kvstore: host store unavailable")
)

// InstantiateMsg sets the key namespace. Empty defaults to "kv".
type InstantiateMsg struct {
	Namespace string `json:"namespace"`
}

// ExecuteMsg is a sum type: exactly one field must be set.
type ExecuteMsg struct {
	Set    *SetMsg    `json:"set,omitempty"`
	Delete *DeleteMsg `json:"delete,omitempty"`
}

type SetMsg struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type DeleteMsg struct {
	Key string `json:"key"`
}

// QueryMsg is a sum type: exactly one field must be set.
type QueryMsg struct {
	Get *GetMsg `json:"get,omitempty"`
}

type GetMsg struct {
	Key string `json:"key"`
}

// GetResponse answers a get query.
type GetResponse struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
	Found bool   `json:"found"`
}

// KVStore implements module.Module.
type KVStore struct {
	namespace string
}

// New creates an uninstantiated store module.
func New() *KVStore {
	return &KVStore{}
}

// NewHandler returns a fresh store module behind the dynamic handler interface.
func NewHandler() module.Handler {
	return module.Adapt[InstantiateMsg, ExecuteMsg, QueryMsg, GetResponse](New())
}

func (k *KVStore) Instantiate(_ context.Context, _ *host.Env, msg InstantiateMsg) (*module.Response, error) {
	ns := msg.Namespace
	if ns == "" {
		ns = "kv"
	}
	k.namespace = ns
	return module.NewResponse().AddAttribute("namespace", ns), nil
}

func (k *KVStore) Execute(ctx context.Context, env *host.Env, msg ExecuteMsg) (*module.Response, error) {
	store, err := k.store(env)
	if err != nil {
		return nil, err
	}
	switch {
	case msg.Set != nil && msg.Delete == nil:
		if msg.Set.Key == "" {
			return nil, ErrEmptyKey
		}
		if err := store.Set(ctx, k.key(msg.Set.Key), []byte(msg.Set.Value)); err != nil {
			return nil, fmt.Errorf("kvstore: set %s: %w", msg.Set.Key, err)
		}
		return module.NewResponse().
			AddAttribute("action", "set").
			AddEvent(module.NewEvent("kv_set").AddAttribute("key", msg.Set.Key)), nil

	case msg.Delete != nil && msg.Set == nil:
		if msg.Delete.Key == "" {
			return nil, ErrEmptyKey
		}
		if err := store.Delete(ctx, k.key(msg.Delete.Key)); err != nil {
			return nil, fmt.Errorf("kvstore: delete %s: %w", msg.Delete.Key, err)
		}
		return module.NewResponse().
			AddAttribute("action", "delete").
			AddEvent(module.NewEvent("kv_delete").AddAttribute("key", msg.Delete.Key)), nil
	}
	return nil, ErrBadVariant
}

func (k *KVStore) Query(ctx context.Context, env *host.Env, msg QueryMsg) (GetResponse, error) {
	if msg.Get == nil {
		return GetResponse{}, ErrBadVariant
	}
	store, err := k.store(env)
	if err != nil {
		return GetResponse{}, err
	}
	v, err := store.Get(ctx, k.key(msg.Get.Key))
	if errors.Is(err, host.ErrKeyNotFound) {
		return GetResponse{Key: msg.Get.Key}, nil
	}
	if err != nil {
		return GetResponse{}, fmt.Errorf("kvstore: get %s: %w", msg.Get.Key, err)
	}
	return GetResponse{Key: msg.Get.Key, Value: string(v), Found: true}, nil
}

func (k *KVStore) store(env *host.Env) (host.Store, error) {
	if k.namespace == "" {
		return nil, ErrNotInstantiated
	}
	if env == nil || env.Store == nil {
		return nil, ErrNoStore
	}
	return env.Store, nil
}

func (k *KVStore) key(key string) string {
	return k.namespace + "/" + key
}
