package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mitchellh/mapstructure"

	"github.com/wouterc/sagsfiler/pkg/protocol"
)

// NetworkError is returned when no response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is a structured rejection from the server.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s failed: %d", e.Op, e.Status)
}

// LinkedError is the rejection of a delete or move on an entry bound to a
// checklist item.
type LinkedError struct {
	Op      string
	Details protocol.LinkedInfo
}

func (e *LinkedError) Error() string {
	return fmt.Sprintf("%s refused: linked to checklist item %d", e.Op, e.Details.ID)
}

// AsLinked checks if an error is a LinkedError and returns it.
func AsLinked(err error) (*LinkedError, bool) {
	var le *LinkedError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// AsAPIError checks if an error is an APIError and returns it.
func AsAPIError(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsNetwork reports whether err means the server could not be reached.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// decodeError turns a non-2xx response into an APIError or, for the
// recognised linked shape, a LinkedError.
func decodeError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return &APIError{Op: op, Status: resp.StatusCode}
	}

	errValue, _ := body["error"].(string)
	if errValue == protocol.ErrorLinked {
		if details, ok := body["details"].(map[string]interface{}); ok {
			var info protocol.LinkedInfo
			dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
				Result:           &info,
				WeaklyTypedInput: true,
			})
			if err == nil && dec.Decode(details) == nil {
				return &LinkedError{Op: op, Details: info}
			}
		}
	}

	// The "linked" code is not user-facing text; without usable details the
	// caller falls back to its generic message.
	msg, _ := body["message"].(string)
	if msg == "" && errValue != protocol.ErrorLinked {
		msg = errValue
	}
	return &APIError{Op: op, Status: resp.StatusCode, Message: msg}
}
