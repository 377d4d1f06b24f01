// Package serial opens the sensor's tty device as a SensorLink.
package serial

import (
	"context"
	"fmt"
	"os"

	"github.com/andrewrweber/pi-air/internal/ports"
)

// DeviceDialer opens a character device (e.g. /dev/ttyS0) for reading.
// Line discipline (9600 8N1 for the PMS7003) is expected to be configured
// by the host, as the systemd unit of the original deployment did. The
// returned *os.File supports read deadlines on pollable devices.
type DeviceDialer struct {
	Path string
}

// Dial opens the device. It does not retry; the connection supervisor
// owns the backoff policy.
func (d DeviceDialer) Dial(ctx context.Context) (ports.SensorLink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(d.Path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open sensor device %s: %w", d.Path, err)
	}
	return f, nil
}

var _ ports.LinkDialer = DeviceDialer{}
