// Package controller handles the lifecycle of one signaling connection.
package controller

import (
	"context"

	"roomcast/pkg/socket"
)

// Processor serves one signaling connection.
//
//go:generate mockgen -destination=mock_processor.go -package=controller . Processor
type Processor interface {
	Process(ctx context.Context, conn socket.Socket) error
}
