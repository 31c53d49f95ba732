package httpjson

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TransportError means the endpoint could not be reached or answered with a
// non-success status and no application-level error payload.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is returned when the endpoint answered with an error envelope.
type RemoteError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("remote error (%s): %s", e.Type, e.Message)
	}
	return "remote error: " + e.Message
}

// remoteErrorField decodes the "error" member of a response body, which is
// either a bare string or an object with type/message.
type remoteErrorField struct {
	Type    string
	Message string
}

func (f *remoteErrorField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		f.Message = s
		return nil
	}
	var obj struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	f.Type = obj.Type
	f.Message = obj.Message
	return nil
}

func (f *remoteErrorField) empty() bool {
	return strings.TrimSpace(f.Type) == "" && strings.TrimSpace(f.Message) == ""
}
