package ports

import (
	"context"
	"io"
	"time"
)

// SensorLink is an open byte stream to the sensor. *os.File satisfies it
// for tty devices; tests substitute in-memory fakes.
type SensorLink interface {
	io.ReadCloser
	SetReadDeadline(t time.Time) error
}

// LinkDialer opens the physical link. The connection supervisor owns the
// returned link's lifecycle.
type LinkDialer interface {
	Dial(ctx context.Context) (SensorLink, error)
}
