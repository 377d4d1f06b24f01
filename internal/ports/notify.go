package ports

import (
	"context"

	"github.com/andrewrweber/pi-air/internal/domain"
)

// Channel delivers one alert to one destination. Implementations must
// honor ctx cancellation; the dispatcher bounds every call with a
// timeout.
type Channel interface {
	Name() string
	Send(ctx context.Context, ev *domain.AlertEvent) error
}

// Mailer is the external mail-sending collaborator the email channel
// hands rendered messages to.
type Mailer interface {
	SendMail(ctx context.Context, to []string, subject, body string) error
}
