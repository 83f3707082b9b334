// Package message provides data types for the events handled by the hub loop.
package message

import "roomcast/types/client/request"

// Request is a decoded client request bound to the connection that sent it.
// Err is set instead of Message when the envelope could not be decoded.
type Request struct {
	ConnectionID string
	RequestID    int
	Message      request.Message
	Err          error
}

// Type returns the request type, or "malformed" when decoding failed.
func (r Request) Type() string {
	if r.Message == nil {
		return "malformed"
	}
	return r.Message.Type()
}
