// Package governor enforces per-domain crawl policy: minimum inter-request
// delay, hourly request budgets, robots.txt consent and the escalation
// ladder from active through throttled to blocked.
package governor

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/resilience"
	"github.com/immoweave/harvester/internal/store"
)

// Options carries the default policy applied to domains seen for the
// first time, plus the escalation tuning shared by all domains.
type Options struct {
	BaseDelay          time.Duration
	MinDelay           time.Duration
	MaxDelay           time.Duration
	MaxRequestsPerHour int
	RespectRobots      bool

	// BlockThreshold is the consecutive rate-limit count at which a
	// domain transitions to blocked.
	BlockThreshold int
	// DecayFactor pulls the delay multiplier back toward 1.0 on each
	// success: excess = excess * DecayFactor.
	DecayFactor float64

	// OnTransition is invoked for every state change, after the audit
	// row is written. Optional; used for metrics.
	OnTransition func(t model.PolicyTransition)
}

func (o *Options) defaults() {
	if o.BaseDelay == 0 {
		o.BaseDelay = 2 * time.Second
	}
	if o.MinDelay == 0 {
		o.MinDelay = 500 * time.Millisecond
	}
	if o.MaxDelay == 0 {
		o.MaxDelay = 5 * time.Minute
	}
	if o.MaxRequestsPerHour == 0 {
		o.MaxRequestsPerHour = 100
	}
	if o.BlockThreshold == 0 {
		o.BlockThreshold = 3
	}
	if o.DecayFactor == 0 {
		o.DecayFactor = 0.75
	}
}

// RobotsPolicy answers consent questions for a domain and path.
type RobotsPolicy interface {
	Allowed(ctx context.Context, domain, path string) (bool, error)
}

type entry struct {
	mu      sync.Mutex
	policy  *model.DomainPolicy
	limiter *rate.Limiter
}

// Governor owns all per-domain pacing state. One instance serves every
// worker; Acquire and Report are safe for concurrent use.
type Governor struct {
	st     store.Store
	robots RobotsPolicy
	opts   Options

	mu      sync.Mutex
	entries map[string]*entry
}

// New builds a Governor. robots may be nil to disable consent checks.
func New(st store.Store, robots RobotsPolicy, opts Options) *Governor {
	opts.defaults()
	return &Governor{
		st:      st,
		robots:  robots,
		opts:    opts,
		entries: make(map[string]*entry),
	}
}

// Domain extracts the policy key for a URL.
func Domain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrapf(err, "governor: parse url %s", rawURL)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", eris.Errorf("governor: no host in %s", rawURL)
	}
	return strings.TrimPrefix(host, "www."), nil
}

// Acquire blocks until a request to rawURL is permitted, or returns a
// PolicyDeniedError when the domain refuses consent or is blocked.
// Callers must follow up with Report once the request completes.
func (g *Governor) Acquire(ctx context.Context, rawURL string) error {
	domain, err := Domain(rawURL)
	if err != nil {
		return err
	}
	e, err := g.entryFor(ctx, domain)
	if err != nil {
		return err
	}

	e.mu.Lock()
	enabled := e.policy.Enabled
	state := e.policy.State
	respectRobots := e.policy.RespectRobots
	e.mu.Unlock()

	if !enabled {
		return resilience.NewPolicyDeniedError(eris.Errorf("governor: domain %s disabled", domain))
	}
	if state == model.PolicyBlocked {
		return resilience.NewPolicyDeniedError(eris.Errorf("governor: domain %s blocked", domain))
	}

	if respectRobots && g.robots != nil {
		path := urlPath(rawURL)
		allowed, err := g.robots.Allowed(ctx, domain, path)
		if err != nil {
			return err
		}
		if !allowed {
			return resilience.NewPolicyDeniedError(
				eris.Errorf("governor: robots.txt disallows %s on %s", path, domain))
		}
	}

	if err := g.waitHourlyBudget(ctx, e, domain); err != nil {
		return err
	}

	e.mu.Lock()
	lim := e.limiter
	e.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return eris.Wrap(err, "governor: limiter wait")
	}

	e.mu.Lock()
	e.policy.LastRequest = time.Now().UTC()
	snapshot := *e.policy
	e.mu.Unlock()

	if err := g.st.SaveDomainPolicy(ctx, &snapshot); err != nil {
		zap.L().Warn("failed to persist domain policy",
			zap.String("domain", domain),
			zap.Error(err),
		)
	}
	return nil
}

// waitHourlyBudget reserves one slot in the rolling-hour window, waiting
// for the window to roll over when the budget is spent.
func (g *Governor) waitHourlyBudget(ctx context.Context, e *entry, domain string) error {
	for {
		e.mu.Lock()
		now := time.Now().UTC()
		if now.Sub(e.policy.WindowStart) >= time.Hour {
			e.policy.WindowStart = now
			e.policy.WindowCount = 0
		}
		if e.policy.WindowCount < e.policy.MaxRequestsPerHour {
			e.policy.WindowCount++
			e.mu.Unlock()
			return nil
		}
		wait := e.policy.WindowStart.Add(time.Hour).Sub(now)
		e.mu.Unlock()

		zap.L().Info("hourly budget exhausted, waiting",
			zap.String("domain", domain),
			zap.Duration("wait", wait),
		)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Report feeds the outcome of a completed request back into the policy.
// Rate-limit signals escalate; successes decay the penalty.
func (g *Governor) Report(ctx context.Context, domain string, outcome model.OutcomeClass) error {
	e, err := g.entryFor(ctx, domain)
	if err != nil {
		return err
	}

	e.mu.Lock()
	p := e.policy
	from := p.State
	var transition *model.PolicyTransition

	switch outcome {
	case model.OutcomeRateLimited:
		p.ConsecutiveRateLimits++
		p.DelayMultiplier *= 2
		maxMult := float64(p.MaxDelay) / float64(p.BaseDelay)
		if p.DelayMultiplier > maxMult {
			p.DelayMultiplier = maxMult
		}
		if p.ConsecutiveRateLimits >= g.opts.BlockThreshold {
			p.State = model.PolicyBlocked
		} else {
			p.State = model.PolicyThrottled
		}

	case model.OutcomeSuccess:
		p.ConsecutiveRateLimits = 0
		p.DelayMultiplier = 1 + (p.DelayMultiplier-1)*g.opts.DecayFactor
		if p.DelayMultiplier < 1.05 {
			p.DelayMultiplier = 1
		}
		if p.State == model.PolicyThrottled && p.DelayMultiplier == 1 {
			p.State = model.PolicyActive
		}

	default:
		// Neutral outcomes never move the policy.
		e.mu.Unlock()
		return nil
	}

	e.limiter.SetLimit(limitFor(g.effectiveDelay(p)))
	if p.State != from {
		transition = &model.PolicyTransition{
			Domain: domain,
			From:   from,
			To:     p.State,
			Reason: string(outcome),
		}
	}
	snapshot := *p
	e.mu.Unlock()

	if transition != nil {
		zap.L().Warn("domain policy transition",
			zap.String("domain", domain),
			zap.String("from", string(transition.From)),
			zap.String("to", string(transition.To)),
			zap.String("reason", transition.Reason),
		)
		if err := g.st.AppendPolicyTransition(ctx, transition); err != nil {
			zap.L().Warn("failed to record policy transition", zap.Error(err))
		}
		if g.opts.OnTransition != nil {
			g.opts.OnTransition(*transition)
		}
	}
	return eris.Wrap(g.st.SaveDomainPolicy(ctx, &snapshot), "governor: save policy")
}

// Reset clears a blocked or throttled domain back to active. Operator
// action only; nothing in the pipeline calls this.
func (g *Governor) Reset(ctx context.Context, domain string) error {
	e, err := g.entryFor(ctx, domain)
	if err != nil {
		return err
	}

	e.mu.Lock()
	from := e.policy.State
	e.policy.State = model.PolicyActive
	e.policy.Enabled = true
	e.policy.DelayMultiplier = 1
	e.policy.ConsecutiveRateLimits = 0
	e.limiter.SetLimit(limitFor(g.effectiveDelay(e.policy)))
	snapshot := *e.policy
	e.mu.Unlock()

	if from != model.PolicyActive {
		transition := model.PolicyTransition{
			Domain: domain,
			From:   from,
			To:     model.PolicyActive,
			Reason: "manual reset",
		}
		if err := g.st.AppendPolicyTransition(ctx, &transition); err != nil {
			zap.L().Warn("failed to record policy transition", zap.Error(err))
		}
		if g.opts.OnTransition != nil {
			g.opts.OnTransition(transition)
		}
	}
	return eris.Wrap(g.st.SaveDomainPolicy(ctx, &snapshot), "governor: save policy")
}

// State returns the current policy snapshot for a domain.
func (g *Governor) State(ctx context.Context, domain string) (model.DomainPolicy, error) {
	e, err := g.entryFor(ctx, domain)
	if err != nil {
		return model.DomainPolicy{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.policy, nil
}

// entryFor returns the in-memory entry for a domain, hydrating it from
// the store or from defaults on first sight.
func (g *Governor) entryFor(ctx context.Context, domain string) (*entry, error) {
	g.mu.Lock()
	e, ok := g.entries[domain]
	g.mu.Unlock()
	if ok {
		return e, nil
	}

	p, err := g.st.GetDomainPolicy(ctx, domain)
	if err != nil {
		return nil, err
	}
	if p == nil {
		now := time.Now().UTC()
		p = &model.DomainPolicy{
			Domain:             domain,
			Enabled:            true,
			State:              model.PolicyActive,
			BaseDelay:          g.opts.BaseDelay,
			DelayMultiplier:    1,
			MaxDelay:           g.opts.MaxDelay,
			MaxRequestsPerHour: g.opts.MaxRequestsPerHour,
			RespectRobots:      g.opts.RespectRobots,
			WindowStart:        now,
			LastRequest:        now,
		}
		if err := g.st.SaveDomainPolicy(ctx, p); err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if existing, ok := g.entries[domain]; ok {
		return existing, nil
	}
	e = &entry{
		policy:  p,
		limiter: rate.NewLimiter(limitFor(g.effectiveDelay(p)), 1),
	}
	g.entries[domain] = e
	return e, nil
}

// effectiveDelay clamps the policy delay to the configured floor.
func (g *Governor) effectiveDelay(p *model.DomainPolicy) time.Duration {
	d := p.EffectiveDelay()
	if d < g.opts.MinDelay {
		d = g.opts.MinDelay
	}
	return d
}

func limitFor(delay time.Duration) rate.Limit {
	return rate.Every(delay)
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}
