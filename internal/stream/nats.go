package stream

import (
	"time"

	"github.com/nats-io/nats.go"
)

// Connect dials NATS with unlimited reconnects; name identifies the binary
// in server monitoring.
func Connect(url, name string) (*nats.Conn, error) {
	return nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
}
