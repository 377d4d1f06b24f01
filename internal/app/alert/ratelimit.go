package alert

import (
	"sync"
	"time"

	"github.com/andrewrweber/pi-air/internal/domain"
)

// CooldownKey selects the cooldown duration for a (category, severity)
// pair. Per-rule dedup keys fall back to their pair's cooldown.
type CooldownKey struct {
	Category domain.Category
	Severity domain.Severity
}

// Limiter suppresses repeated alerts of the same kind. It admits a dedup
// key when no prior alert was sent, or when the configured cooldown has
// elapsed since the last admission. last-sent is updated unconditionally
// on admission, even if delivery later fails — a failing channel must not
// turn into a retry storm.
type Limiter struct {
	mu        sync.Mutex
	last      map[domain.DedupKey]time.Time
	cooldowns map[CooldownKey]time.Duration
	fallback  time.Duration
}

// NewLimiter builds a limiter. cooldowns may be nil; pairs without an
// entry use the fallback.
func NewLimiter(cooldowns map[CooldownKey]time.Duration, fallback time.Duration) *Limiter {
	return &Limiter{
		last:      make(map[domain.DedupKey]time.Time),
		cooldowns: cooldowns,
		fallback:  fallback,
	}
}

// Admit reports whether an alert under key may be sent at now, recording
// the admission when it may.
func (l *Limiter) Admit(key domain.DedupKey, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if sent, ok := l.last[key]; ok {
		if now.Sub(sent) < l.cooldownFor(key) {
			return false
		}
	}
	l.last[key] = now
	return true
}

func (l *Limiter) cooldownFor(key domain.DedupKey) time.Duration {
	if d, ok := l.cooldowns[CooldownKey{Category: key.Category, Severity: key.Severity}]; ok {
		return d
	}
	return l.fallback
}

// CooldownState describes one active suppression entry for the status
// surface.
type CooldownState struct {
	Key        string        `json:"key"`
	LastSentAt time.Time     `json:"last_sent_at"`
	Cooldown   time.Duration `json:"cooldown"`
}

// Snapshot returns the active suppression entries.
func (l *Limiter) Snapshot() []CooldownState {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]CooldownState, 0, len(l.last))
	for key, sent := range l.last {
		out = append(out, CooldownState{
			Key:        key.String(),
			LastSentAt: sent,
			Cooldown:   l.cooldownFor(key),
		})
	}
	return out
}
