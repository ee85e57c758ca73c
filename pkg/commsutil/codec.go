package commsutil

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/morezero/modules-manager/pkg/dispatcher"
)

const codecLogPrefix = "commsutil:codec"

// ErrEmptyRequest is returned for a request body with no envelope.
var ErrEmptyRequest = errors.New("request has no msg")

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// DecodeRequest parses a wire request for op. A missing id is filled with a
// fresh UUID so every reply can be correlated. The envelope itself is left
// raw; the dispatcher owns its validation.
func DecodeRequest(data []byte, op dispatcher.Operation) (*dispatcher.Request, error) {
	var req dispatcher.Request
	if err := DecodePayload(data, &req); err != nil {
		return nil, fmt.Errorf("%s - invalid request body: %w", codecLogPrefix, err)
	}
	if len(req.Msg) == 0 {
		return &req, fmt.Errorf("%s - %w", codecLogPrefix, ErrEmptyRequest)
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Op == "" {
		req.Op = op
	}
	return &req, nil
}
