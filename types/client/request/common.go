// Package request defines structures for client request messages.
package request

import "encoding/json"

// Common represents a generic request structure used in WebSocket communication.
// A non-zero RequestID asks the server for an acknowledgement.
type Common struct {
	RequestID int             `json:"request_id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}
