package ports

import "github.com/andrewrweber/pi-air/internal/domain"

// SampleSource streams raw samples into the pipeline from sources that
// manage their own transport (OPC UA stations, simulators). The serial
// sensor path does not use this port; it is driven by the connection
// supervisor instead.
type SampleSource interface {
	Start(out chan<- domain.RawSample) error
	Stop() error
}
