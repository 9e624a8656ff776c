// Package live connects to broadcasters' live backends and turns their event
// streams into domain gift events.
package live

import (
	"context"

	"github.com/gh-ankitgupta/tiktok-live-tracking/internal/domain"
)

// Handlers receives the events of one subscribed connection. Callbacks run on
// the connection's read goroutine, one at a time.
type Handlers struct {
	OnGift      func(domain.GiftEvent)
	OnStreamEnd func()
	// OnInvalid reports payloads that could not be normalized. Optional.
	OnInvalid func(error)
}

// Handle is one established live connection.
type Handle interface {
	Subscribe(h Handlers) error
	State(ctx context.Context) (domain.ConnState, error)
	// Disconnect releases the connection. It must not block on the read
	// goroutine, since stream end handlers call it from there.
	Disconnect() error
}

// Adapter opens live connections. Failures are *domain.ConnectError values
// carrying a FailureCategory.
type Adapter interface {
	Connect(ctx context.Context, streamer string) (Handle, error)
}
