package model

import "time"

// PolicyState is the rate-governor state machine for one domain.
// active → throttled → blocked; blocked is terminal until a manual reset.
type PolicyState string

const (
	PolicyActive    PolicyState = "active"
	PolicyThrottled PolicyState = "throttled"
	PolicyBlocked   PolicyState = "blocked"
)

// DomainPolicy holds per-domain throttle and consent state. It is mutated
// only by the rate governor and persisted through the store.
type DomainPolicy struct {
	Domain  string      `json:"domain"`
	Enabled bool        `json:"enabled"`
	State   PolicyState `json:"state"`

	// BaseDelay is the configured minimum inter-request delay at 1x.
	BaseDelay time.Duration `json:"base_delay"`
	// DelayMultiplier scales BaseDelay; doubled on rate-limit signals,
	// decayed geometrically toward 1.0 on success.
	DelayMultiplier float64 `json:"delay_multiplier"`
	// MaxDelay caps BaseDelay * DelayMultiplier.
	MaxDelay time.Duration `json:"max_delay"`

	MaxRequestsPerHour int  `json:"max_requests_per_hour"`
	RespectRobots      bool `json:"respect_robots"`

	// ConsecutiveRateLimits counts back-to-back 429/403/challenge
	// outcomes; at the block threshold the domain transitions to blocked.
	ConsecutiveRateLimits int `json:"consecutive_rate_limits"`

	// Rolling-hour request window.
	WindowStart time.Time `json:"window_start"`
	WindowCount int       `json:"window_count"`
	LastRequest time.Time `json:"last_request"`

	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveDelay returns the current minimum inter-request delay.
func (p *DomainPolicy) EffectiveDelay() time.Duration {
	mult := p.DelayMultiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(p.BaseDelay) * mult)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// PolicyTransition is an audit row recorded for every governor state
// change, adjacent to the scrape-attempt log for observability.
type PolicyTransition struct {
	ID     string      `json:"id"`
	Domain string      `json:"domain"`
	From   PolicyState `json:"from"`
	To     PolicyState `json:"to"`
	Reason string      `json:"reason"`
	At     time.Time   `json:"at"`
}
