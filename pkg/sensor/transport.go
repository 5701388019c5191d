package sensor

import (
	"context"
	"time"
)

// DeviceInfo is one discovery result. The ID is the transport-level address
// and stays stable for the lifetime of the result.
type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FrameHandler receives raw notification payloads. Handlers are called on a
// transport-internal goroutine and must not block.
type FrameHandler func(data []byte)

// Link is one open wireless connection to a device.
type Link interface {
	// Subscribe starts delivering notification frames from channel to handler.
	Subscribe(channel string, handler FrameHandler) error
	// Unsubscribe stops notification delivery from channel.
	Unsubscribe(channel string) error
	// Close tears the connection down.
	Close() error
}

// Transport is the wireless stack capability the session core consumes. Real
// radios and test fakes both implement it.
type Transport interface {
	// Discover scans for devices whose advertised name contains nameFilter
	// (case-insensitive) and returns them sorted case-insensitively by name.
	Discover(ctx context.Context, nameFilter string, timeout time.Duration) ([]DeviceInfo, error)

	// Open connects to a device. onLinkLost is invoked, on a
	// transport-internal goroutine, when the link drops for any reason other
	// than a completed Close.
	Open(ctx context.Context, id string, onLinkLost func()) (Link, error)
}
