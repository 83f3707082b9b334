package registry

import "roomcast/types/client/response"

// Notifier delivers a server message to one connection. Implementations must
// not call back into the Registry.
//
//go:generate mockgen -destination=mock_notifier.go -package=registry . Notifier
type Notifier interface {
	Notify(connectionID string, msg response.Message)
}
