package ports

import "github.com/andrewrweber/pi-air/internal/domain"

// HealthSource supplies host-health snapshots for system_health rules.
// Implemented by the surrounding system; the pipeline only reads it.
type HealthSource interface {
	Snapshot() (domain.HealthSnapshot, error)
}
