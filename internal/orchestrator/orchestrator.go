// Package orchestrator drives the harvesting pipeline: acquire a domain
// slot, fetch, detect the format, extract, deduplicate, diff for
// disappearances, and record the attempt. Every execution appends
// exactly one ScrapeAttempt row whatever the outcome.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/immoweave/harvester/internal/change"
	"github.com/immoweave/harvester/internal/dedup"
	"github.com/immoweave/harvester/internal/detect"
	"github.com/immoweave/harvester/internal/events"
	"github.com/immoweave/harvester/internal/extract"
	"github.com/immoweave/harvester/internal/fetch"
	"github.com/immoweave/harvester/internal/governor"
	"github.com/immoweave/harvester/internal/model"
	"github.com/immoweave/harvester/internal/resilience"
	"github.com/immoweave/harvester/internal/store"
)

// Options bounds the cycle's concurrency and failure handling.
type Options struct {
	// Workers caps concurrent agency scrapes within one cycle.
	Workers int
	// RetryAttempts is the in-attempt retry budget for transient
	// network failures. Rate limits are never retried locally.
	RetryAttempts int
	// FailedCycleThreshold parks an agency in failed status after this
	// many consecutive failed attempts.
	FailedCycleThreshold int
}

func (o *Options) defaults() {
	if o.Workers <= 0 {
		o.Workers = 8
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 3
	}
	if o.FailedCycleThreshold <= 0 {
		o.FailedCycleThreshold = 5
	}
}

// Deps carries the pipeline stages the orchestrator coordinates.
type Deps struct {
	Store     store.Store
	Governor  *governor.Governor
	Fetcher   fetch.Fetcher
	Detector  *detect.Detector
	Profiles  *detect.ProfileCache
	Extractor *extract.Extractor
	Dedup     *dedup.Engine
	Change    *change.Detector
	Sink      events.Sink
	Metrics   *Metrics
}

// Orchestrator runs scrape attempts for agencies, one at a time per
// agency, up to Options.Workers in parallel across agencies.
type Orchestrator struct {
	deps  Deps
	opts  Options
	retry resilience.RetryConfig

	mu       sync.Mutex
	inFlight map[string]bool
}

func New(deps Deps, opts Options) *Orchestrator {
	opts.defaults()
	if deps.Sink == nil {
		deps.Sink = events.NewLogSink()
	}
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = opts.RetryAttempts
	return &Orchestrator{
		deps:     deps,
		opts:     opts,
		retry:    retry,
		inFlight: make(map[string]bool),
	}
}

// CycleSummary reports one full pass over the scrapeable agencies.
type CycleSummary struct {
	Agencies  int `json:"agencies"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Neutral   int `json:"neutral"`
	Skipped   int `json:"skipped"`
}

// RunCycle scrapes every scrapeable agency once. Individual agency
// failures are recorded in their attempt rows and never abort the
// cycle; only cancellation stops it early.
func (o *Orchestrator) RunCycle(ctx context.Context) (*CycleSummary, error) {
	agencies, err := o.deps.Store.ListActiveAgencies(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: list agencies")
	}

	var (
		mu      sync.Mutex
		summary CycleSummary
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	for _, a := range agencies {
		if !a.Scrapeable() {
			summary.Skipped++
			continue
		}
		summary.Agencies++
		agency := a
		g.Go(func() error {
			attempt, err := o.ScrapeAgency(ctx, agency.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				// Another scrape held the agency, or the agency vanished
				// mid-cycle. Not an attempt outcome.
				summary.Skipped++
				zap.L().Warn("agency skipped",
					zap.String("agency_id", agency.ID), zap.Error(err))
			case attempt.Outcome == model.OutcomeSuccess:
				summary.Succeeded++
			case attempt.Outcome.Failed():
				summary.Failed++
			default:
				summary.Neutral++
			}
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return &summary, eris.Wrap(err, "orchestrator: cycle interrupted")
	}

	zap.L().Info("cycle complete",
		zap.Int("agencies", summary.Agencies),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int("neutral", summary.Neutral),
		zap.Int("skipped", summary.Skipped),
	)
	return &summary, nil
}

// ScrapeAgency runs one attempt for the agency and records it. At most
// one attempt per agency runs at a time; a concurrent call returns an
// error without touching the attempt log.
func (o *Orchestrator) ScrapeAgency(ctx context.Context, agencyID string) (*model.ScrapeAttempt, error) {
	agency, err := o.deps.Store.GetAgency(ctx, agencyID)
	if err != nil {
		return nil, eris.Wrap(err, "orchestrator: load agency")
	}
	if agency == nil {
		return nil, eris.Errorf("orchestrator: agency %s not found", agencyID)
	}
	if !o.acquire(agencyID) {
		return nil, eris.Errorf("orchestrator: scrape already running for agency %s", agencyID)
	}
	defer o.release(agencyID)

	started := time.Now()
	attempt := &model.ScrapeAttempt{
		AgencyID:  agencyID,
		StartedAt: started.UTC(),
	}

	outcome, evs, scrapeErr := o.scrape(ctx, agency, attempt)
	attempt.Outcome = outcome
	attempt.DurationMS = time.Since(started).Milliseconds()
	if scrapeErr != nil {
		attempt.Error = scrapeErr.Error()
	}

	o.observe(attempt)

	// The attempt log is append-only history; losing a row is worth a
	// log line but must not mask the scrape result.
	if err := o.deps.Store.AppendScrapeAttempt(ctx, attempt); err != nil {
		zap.L().Error("append scrape attempt",
			zap.String("agency_id", agencyID), zap.Error(err))
	}
	if err := o.updateAgency(ctx, agency, attempt); err != nil {
		zap.L().Error("update agency after attempt",
			zap.String("agency_id", agencyID), zap.Error(err))
	}

	// Events go out only after the storage writes committed.
	for _, ev := range evs {
		if err := o.deps.Sink.Emit(ctx, ev); err != nil {
			zap.L().Warn("emit change event",
				zap.String("type", string(ev.Type)),
				zap.String("listing_id", ev.ListingID),
				zap.Error(err))
		}
	}

	zap.L().Info("scrape attempt finished",
		zap.String("agency_id", agencyID),
		zap.String("outcome", string(attempt.Outcome)),
		zap.Int("found", attempt.ListingsFound),
		zap.Int("new", attempt.New),
		zap.Int("updated", attempt.Updated),
		zap.Int("removed", attempt.Removed),
		zap.Int64("duration_ms", attempt.DurationMS),
	)
	return attempt, nil
}

// scrape runs the pipeline stages and classifies whatever stopped it.
func (o *Orchestrator) scrape(ctx context.Context, agency *model.Agency, attempt *model.ScrapeAttempt) (model.OutcomeClass, []model.ChangeEvent, error) {
	domain, err := governor.Domain(agency.WebsiteURL)
	if err != nil {
		return model.OutcomePolicyDenied, nil, err
	}

	// Every outbound request passes the governor gate, retries included:
	// a retried fetch re-acquires its domain slot so the min delay and
	// the hourly budget hold across attempts.
	res, err := resilience.DoVal(ctx, o.retry, func(ctx context.Context) (*fetch.Result, error) {
		waitStart := time.Now()
		if err := o.deps.Governor.Acquire(ctx, agency.WebsiteURL); err != nil {
			return nil, err
		}
		o.deps.Metrics.governorWait.Observe(time.Since(waitStart).Seconds())
		return o.deps.Fetcher.Fetch(ctx, agency.WebsiteURL)
	})
	if err != nil {
		outcome := resilience.Classify(err)
		o.report(ctx, domain, outcome)
		return outcome, nil, err
	}
	// The domain answered; decay its backoff regardless of what the
	// page turns out to contain.
	o.report(ctx, domain, model.OutcomeSuccess)

	profile, raws, err := o.detectAndExtract(ctx, domain, res)
	if err != nil {
		return resilience.Classify(err), nil, err
	}
	attempt.ListingsFound = len(raws)

	fresh := make(map[string]bool, len(raws))
	var evs []model.ChangeEvent
	for i := range raws {
		result, err := o.deps.Dedup.Apply(ctx, agency.ID, &raws[i])
		if err != nil {
			perr := resilience.NewPersistenceError(err)
			return resilience.Classify(perr), evs, perr
		}
		fresh[result.Listing.Hash] = true
		switch result.Kind {
		case dedup.KindCreated:
			attempt.New++
		case dedup.KindUpdated:
			attempt.Updated++
		}
		if result.Event != nil {
			evs = append(evs, *result.Event)
		}
	}

	diff, err := o.deps.Change.Diff(ctx, agency.ID, fresh)
	if err != nil {
		perr := resilience.NewPersistenceError(err)
		return resilience.Classify(perr), evs, perr
	}
	attempt.Removed = diff.Removed
	evs = append(evs, diff.Events...)

	zap.L().Debug("pipeline complete",
		zap.String("domain", domain),
		zap.String("platform", profile.Platform),
		zap.Float64("confidence", profile.Confidence),
		zap.Int("listings", len(raws)),
	)
	return model.OutcomeSuccess, evs, nil
}

// detectAndExtract resolves the format profile, preferring the cached
// one, and extracts the listing cards. A cached profile that yields
// nothing is invalidated and detection runs once more against the
// fresh page.
func (o *Orchestrator) detectAndExtract(ctx context.Context, domain string, res *fetch.Result) (*detect.FormatProfile, []model.RawListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	profile, cached := o.deps.Profiles.Get(domain)
	if !cached {
		var err error
		profile, err = o.deps.Detector.Detect(res.Body, res.FinalURL)
		if err != nil {
			return nil, nil, err
		}
		o.deps.Profiles.Put(domain, profile)
	}

	raws, err := o.deps.Extractor.Extract(res.Body, profile, res.FinalURL)
	if err != nil {
		return nil, nil, err
	}
	if len(raws) == 0 && cached {
		// The site likely changed its markup since the profile was
		// cached. Re-detect against the page we already have.
		o.deps.Profiles.Invalidate(domain)
		profile, err = o.deps.Detector.Detect(res.Body, res.FinalURL)
		if err != nil {
			return nil, nil, err
		}
		o.deps.Profiles.Put(domain, profile)
		raws, err = o.deps.Extractor.Extract(res.Body, profile, res.FinalURL)
		if err != nil {
			return nil, nil, err
		}
	}
	return profile, raws, nil
}

// updateAgency applies the attempt's outcome to the agency counters.
func (o *Orchestrator) updateAgency(ctx context.Context, agency *model.Agency, attempt *model.ScrapeAttempt) error {
	now := attempt.StartedAt
	agency.LastScraped = &now

	switch {
	case attempt.Outcome == model.OutcomeSuccess:
		agency.ErrorCount = 0
		if agency.Status == model.AgencyStatusPending || agency.Status == model.AgencyStatusFailed {
			agency.Status = model.AgencyStatusActive
		}
		agency.TotalListings += attempt.New
		hashes, err := o.deps.Store.GetActiveListingHashes(ctx, agency.ID)
		if err != nil {
			return eris.Wrap(err, "orchestrator: count active listings")
		}
		agency.ActiveListings = len(hashes)
	case attempt.Outcome.Failed():
		agency.ErrorCount++
		if agency.ErrorCount >= o.opts.FailedCycleThreshold && agency.Status != model.AgencyStatusFailed {
			agency.Status = model.AgencyStatusFailed
			o.deps.Metrics.agenciesFailed.Inc()
			zap.L().Warn("agency parked after consecutive failures",
				zap.String("agency_id", agency.ID),
				zap.Int("error_count", agency.ErrorCount))
		}
	default:
		// Cancelled and format-undetected attempts are recorded but
		// leave the failure counter alone.
	}

	return o.deps.Store.UpsertAgency(ctx, agency)
}

// ResetAgency clears the failure counter and returns a parked agency to
// the rotation. Operator action, never automatic.
func (o *Orchestrator) ResetAgency(ctx context.Context, agencyID string) error {
	agency, err := o.deps.Store.GetAgency(ctx, agencyID)
	if err != nil {
		return eris.Wrap(err, "orchestrator: load agency")
	}
	if agency == nil {
		return eris.Errorf("orchestrator: agency %s not found", agencyID)
	}
	agency.ErrorCount = 0
	if agency.Status == model.AgencyStatusFailed || agency.Status == model.AgencyStatusBlocked {
		agency.Status = model.AgencyStatusActive
	}
	agency.IsActive = true
	if err := o.deps.Store.UpsertAgency(ctx, agency); err != nil {
		return eris.Wrap(err, "orchestrator: reset agency")
	}
	zap.L().Info("agency reset", zap.String("agency_id", agencyID))
	return nil
}

func (o *Orchestrator) report(ctx context.Context, domain string, outcome model.OutcomeClass) {
	if err := o.deps.Governor.Report(ctx, domain, outcome); err != nil {
		zap.L().Warn("report outcome to governor",
			zap.String("domain", domain), zap.Error(err))
	}
}

func (o *Orchestrator) observe(attempt *model.ScrapeAttempt) {
	m := o.deps.Metrics
	m.attempts.WithLabelValues(string(attempt.Outcome)).Inc()
	m.scrapeDuration.Observe(float64(attempt.DurationMS) / 1000)
	m.listingsFound.Add(float64(attempt.ListingsFound))
	m.listingsNew.Add(float64(attempt.New))
	m.listingsUpdated.Add(float64(attempt.Updated))
	m.listingsRemoved.Add(float64(attempt.Removed))
}

func (o *Orchestrator) acquire(agencyID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inFlight[agencyID] {
		return false
	}
	o.inFlight[agencyID] = true
	return true
}

func (o *Orchestrator) release(agencyID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, agencyID)
}
