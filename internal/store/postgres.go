package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/immoweave/harvester/internal/db"
	"github.com/immoweave/harvester/internal/model"
)

// PostgresStore implements Store over a pgx pool. It accepts the db.Pool
// interface so tests can substitute pgxmock.
type PostgresStore struct {
	pool db.Pool
}

func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS agencies (
	id              TEXT PRIMARY KEY,
	website_url     TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL DEFAULT '',
	siret           TEXT NOT NULL DEFAULT '',
	phone           TEXT NOT NULL DEFAULT '',
	email           TEXT NOT NULL DEFAULT '',
	address         TEXT NOT NULL DEFAULT '',
	postal_code     TEXT NOT NULL DEFAULT '',
	city            TEXT NOT NULL DEFAULT '',
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	discovered_from JSONB NOT NULL DEFAULT '[]',
	status          TEXT NOT NULL DEFAULT 'pending',
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	last_scraped    TIMESTAMPTZ,
	error_count     INTEGER NOT NULL DEFAULT 0,
	total_listings  INTEGER NOT NULL DEFAULT 0,
	active_listings INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
	id             TEXT PRIMARY KEY,
	hash           TEXT NOT NULL,
	agency_id      TEXT NOT NULL REFERENCES agencies(id),
	title          TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	price          BIGINT,
	surface        INTEGER,
	rooms          INTEGER,
	bedrooms       INTEGER,
	address        TEXT NOT NULL DEFAULT '',
	postal_code    TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	property_type  TEXT NOT NULL DEFAULT '',
	operation_type TEXT NOT NULL DEFAULT '',
	photos         JSONB NOT NULL DEFAULT '[]',
	source_url     TEXT NOT NULL,
	confidence     JSONB NOT NULL DEFAULT '{}',
	duplicate_of   TEXT,
	quality_score  DOUBLE PRECISION NOT NULL DEFAULT 0,
	is_active      BOOLEAN NOT NULL DEFAULT TRUE,
	missing_streak INTEGER NOT NULL DEFAULT 0,
	first_seen     TIMESTAMPTZ NOT NULL,
	last_seen      TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS listing_history (
	id         TEXT PRIMARY KEY,
	listing_id TEXT NOT NULL,
	field      TEXT NOT NULL,
	old_value  TEXT NOT NULL DEFAULT '',
	new_value  TEXT NOT NULL DEFAULT '',
	changed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_attempts (
	id             TEXT PRIMARY KEY,
	agency_id      TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	listings_found INTEGER NOT NULL DEFAULT 0,
	new_count      INTEGER NOT NULL DEFAULT 0,
	updated_count  INTEGER NOT NULL DEFAULT 0,
	removed_count  INTEGER NOT NULL DEFAULT 0,
	duration_ms    BIGINT NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	started_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS domain_policies (
	domain                  TEXT PRIMARY KEY,
	enabled                 BOOLEAN NOT NULL DEFAULT TRUE,
	state                   TEXT NOT NULL DEFAULT 'active',
	base_delay_ms           BIGINT NOT NULL,
	delay_multiplier        DOUBLE PRECISION NOT NULL DEFAULT 1,
	max_delay_ms            BIGINT NOT NULL,
	max_requests_per_hour   INTEGER NOT NULL,
	respect_robots          BOOLEAN NOT NULL DEFAULT TRUE,
	consecutive_rate_limits INTEGER NOT NULL DEFAULT 0,
	window_start            TIMESTAMPTZ NOT NULL,
	window_count            INTEGER NOT NULL DEFAULT 0,
	last_request            TIMESTAMPTZ NOT NULL,
	updated_at              TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS policy_transitions (
	id         TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	at         TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agencies_status ON agencies(status);
CREATE INDEX IF NOT EXISTS idx_listings_hash ON listings(hash);
CREATE INDEX IF NOT EXISTS idx_listings_source_url ON listings(source_url);
CREATE INDEX IF NOT EXISTS idx_listings_agency_active ON listings(agency_id, is_active);
CREATE INDEX IF NOT EXISTS idx_history_listing ON listing_history(listing_id, changed_at);
CREATE INDEX IF NOT EXISTS idx_attempts_agency ON scrape_attempts(agency_id, started_at);
CREATE INDEX IF NOT EXISTS idx_transitions_domain ON policy_transitions(domain, at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetAgency(ctx context.Context, id string) (*model.Agency, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agencyColumns+` FROM agencies WHERE id = $1`, id)
	a, err := scanAgencyPg(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *PostgresStore) GetAgencyByURL(ctx context.Context, normalizedURL string) (*model.Agency, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agencyColumns+` FROM agencies WHERE website_url = $1`, normalizedURL)
	a, err := scanAgencyPg(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *PostgresStore) UpsertAgency(ctx context.Context, a *model.Agency) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = time.Now().UTC()

	provJSON, err := json.Marshal(a.DiscoveredFrom)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal provenance")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agencies (`+agencyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO UPDATE SET
			website_url = EXCLUDED.website_url,
			name = EXCLUDED.name,
			siret = EXCLUDED.siret,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email,
			address = EXCLUDED.address,
			postal_code = EXCLUDED.postal_code,
			city = EXCLUDED.city,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			discovered_from = EXCLUDED.discovered_from,
			status = EXCLUDED.status,
			is_active = EXCLUDED.is_active,
			last_scraped = EXCLUDED.last_scraped,
			error_count = EXCLUDED.error_count,
			total_listings = EXCLUDED.total_listings,
			active_listings = EXCLUDED.active_listings,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.WebsiteURL, a.Name, a.SIRET, a.Phone, a.Email, a.Address,
		a.PostalCode, a.City, a.Latitude, a.Longitude, string(provJSON),
		string(a.Status), a.IsActive, a.LastScraped, a.ErrorCount,
		a.TotalListings, a.ActiveListings, a.CreatedAt, a.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert agency %s", a.WebsiteURL)
}

func (s *PostgresStore) ListActiveAgencies(ctx context.Context) ([]model.Agency, error) {
	// Status gating is the orchestrator's call; the store only hides
	// soft-deleted rows.
	rows, err := s.pool.Query(ctx,
		`SELECT `+agencyColumns+` FROM agencies
		 WHERE is_active
		 ORDER BY last_scraped ASC NULLS FIRST`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active agencies")
	}
	defer rows.Close()
	return collectAgenciesPg(rows)
}

func (s *PostgresStore) ListAgencies(ctx context.Context, limit int) ([]model.Agency, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+agencyColumns+` FROM agencies ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list agencies")
	}
	defer rows.Close()
	return collectAgenciesPg(rows)
}

func (s *PostgresStore) GetActiveListingHashes(ctx context.Context, agencyID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT hash FROM listings WHERE agency_id = $1 AND is_active`, agencyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: active listing hashes")
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, eris.Wrap(err, "postgres: scan hash")
		}
		hashes = append(hashes, h)
	}
	return hashes, eris.Wrap(rows.Err(), "postgres: iterate hashes")
}

func (s *PostgresStore) ListActiveListings(ctx context.Context, agencyID string) ([]model.AggregatedListing, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE agency_id = $1 AND is_active`, agencyID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list active listings")
	}
	defer rows.Close()

	var out []model.AggregatedListing
	for rows.Next() {
		l, err := scanListingPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate listings")
}

func (s *PostgresStore) GetListingByHash(ctx context.Context, hash string) (*model.AggregatedListing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE hash = $1 AND is_active AND duplicate_of IS NULL
		 ORDER BY first_seen ASC LIMIT 1`, hash)
	l, err := scanListingPg(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (s *PostgresStore) GetListingBySourceURL(ctx context.Context, sourceURL string) (*model.AggregatedListing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE source_url = $1 ORDER BY last_seen DESC LIMIT 1`,
		sourceURL)
	l, err := scanListingPg(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (s *PostgresStore) GetListing(ctx context.Context, id string) (*model.AggregatedListing, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	l, err := scanListingPg(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (s *PostgresStore) UpsertListing(ctx context.Context, l *model.AggregatedListing) error {
	now := time.Now().UTC()
	if l.ID == "" {
		l.ID = uuid.New().String()
		if l.FirstSeen.IsZero() {
			l.FirstSeen = now
		}
	}
	if l.LastSeen.IsZero() {
		l.LastSeen = now
	}
	l.UpdatedAt = now
	l.QualityScore = model.QualityScoreOf(l)

	photosJSON, err := json.Marshal(l.Photos)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal photos")
	}
	confJSON, err := json.Marshal(l.Confidence)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal confidence")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
		ON CONFLICT (id) DO UPDATE SET
			hash = EXCLUDED.hash,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			surface = EXCLUDED.surface,
			rooms = EXCLUDED.rooms,
			bedrooms = EXCLUDED.bedrooms,
			address = EXCLUDED.address,
			postal_code = EXCLUDED.postal_code,
			city = EXCLUDED.city,
			property_type = EXCLUDED.property_type,
			operation_type = EXCLUDED.operation_type,
			photos = EXCLUDED.photos,
			source_url = EXCLUDED.source_url,
			confidence = EXCLUDED.confidence,
			duplicate_of = EXCLUDED.duplicate_of,
			quality_score = EXCLUDED.quality_score,
			is_active = EXCLUDED.is_active,
			missing_streak = EXCLUDED.missing_streak,
			last_seen = EXCLUDED.last_seen,
			updated_at = EXCLUDED.updated_at`,
		l.ID, l.Hash, l.AgencyID, l.Title, l.Description, l.Price, l.Surface,
		l.Rooms, l.Bedrooms, l.Address, l.PostalCode, l.City, l.PropertyType,
		l.OperationType, string(photosJSON), l.SourceURL, string(confJSON),
		l.DuplicateOf, l.QualityScore, l.IsActive, l.MissingStreak,
		l.FirstSeen, l.LastSeen, l.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: upsert listing %s", l.SourceURL)
}

func (s *PostgresStore) DeactivateListing(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE listings SET is_active = FALSE, updated_at = $1 WHERE id = $2`,
		time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: deactivate listing %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("listing not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) AppendListingHistory(ctx context.Context, h *model.ListingHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.ChangedAt.IsZero() {
		h.ChangedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO listing_history (id, listing_id, field, old_value, new_value, changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		h.ID, h.ListingID, h.Field, h.OldValue, h.NewValue, h.ChangedAt,
	)
	return eris.Wrap(err, "postgres: append listing history")
}

func (s *PostgresStore) ListListingHistory(ctx context.Context, listingID string, limit int) ([]model.ListingHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, listing_id, field, old_value, new_value, changed_at
		 FROM listing_history WHERE listing_id = $1
		 ORDER BY changed_at DESC LIMIT $2`, listingID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list listing history")
	}
	defer rows.Close()

	var out []model.ListingHistory
	for rows.Next() {
		var h model.ListingHistory
		if err := rows.Scan(&h.ID, &h.ListingID, &h.Field, &h.OldValue, &h.NewValue, &h.ChangedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan listing history")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate listing history")
}

func (s *PostgresStore) AppendScrapeAttempt(ctx context.Context, a *model.ScrapeAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scrape_attempts
			(id, agency_id, outcome, listings_found, new_count, updated_count, removed_count, duration_ms, error, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.AgencyID, string(a.Outcome), a.ListingsFound, a.New, a.Updated,
		a.Removed, a.DurationMS, a.Error, a.StartedAt,
	)
	return eris.Wrap(err, "postgres: append scrape attempt")
}

func (s *PostgresStore) ListScrapeAttempts(ctx context.Context, filter AttemptFilter) ([]model.ScrapeAttempt, error) {
	query := `SELECT id, agency_id, outcome, listings_found, new_count, updated_count, removed_count, duration_ms, error, started_at
		FROM scrape_attempts WHERE 1=1`
	var args []any
	if filter.AgencyID != "" {
		args = append(args, filter.AgencyID)
		query += ` AND agency_id = $` + strconv.Itoa(len(args))
	}
	if filter.Outcome != "" {
		args = append(args, string(filter.Outcome))
		query += ` AND outcome = $` + strconv.Itoa(len(args))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` ORDER BY started_at DESC LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list scrape attempts")
	}
	defer rows.Close()

	var out []model.ScrapeAttempt
	for rows.Next() {
		var a model.ScrapeAttempt
		var outcome string
		if err := rows.Scan(&a.ID, &a.AgencyID, &outcome, &a.ListingsFound,
			&a.New, &a.Updated, &a.Removed, &a.DurationMS, &a.Error, &a.StartedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan scrape attempt")
		}
		a.Outcome = model.OutcomeClass(outcome)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate scrape attempts")
}

func (s *PostgresStore) GetDomainPolicy(ctx context.Context, domain string) (*model.DomainPolicy, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT domain, enabled, state, base_delay_ms, delay_multiplier, max_delay_ms,
			max_requests_per_hour, respect_robots, consecutive_rate_limits,
			window_start, window_count, last_request, updated_at
		FROM domain_policies WHERE domain = $1`, domain)

	var p model.DomainPolicy
	var state string
	var baseMS, maxMS int64
	err := row.Scan(&p.Domain, &p.Enabled, &state, &baseMS, &p.DelayMultiplier,
		&maxMS, &p.MaxRequestsPerHour, &p.RespectRobots,
		&p.ConsecutiveRateLimits, &p.WindowStart, &p.WindowCount,
		&p.LastRequest, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get domain policy %s", domain)
	}
	p.State = model.PolicyState(state)
	p.BaseDelay = time.Duration(baseMS) * time.Millisecond
	p.MaxDelay = time.Duration(maxMS) * time.Millisecond
	return &p, nil
}

func (s *PostgresStore) SaveDomainPolicy(ctx context.Context, p *model.DomainPolicy) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO domain_policies
			(domain, enabled, state, base_delay_ms, delay_multiplier, max_delay_ms,
			 max_requests_per_hour, respect_robots, consecutive_rate_limits,
			 window_start, window_count, last_request, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (domain) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			state = EXCLUDED.state,
			base_delay_ms = EXCLUDED.base_delay_ms,
			delay_multiplier = EXCLUDED.delay_multiplier,
			max_delay_ms = EXCLUDED.max_delay_ms,
			max_requests_per_hour = EXCLUDED.max_requests_per_hour,
			respect_robots = EXCLUDED.respect_robots,
			consecutive_rate_limits = EXCLUDED.consecutive_rate_limits,
			window_start = EXCLUDED.window_start,
			window_count = EXCLUDED.window_count,
			last_request = EXCLUDED.last_request,
			updated_at = EXCLUDED.updated_at`,
		p.Domain, p.Enabled, string(p.State), p.BaseDelay.Milliseconds(),
		p.DelayMultiplier, p.MaxDelay.Milliseconds(), p.MaxRequestsPerHour,
		p.RespectRobots, p.ConsecutiveRateLimits, p.WindowStart, p.WindowCount,
		p.LastRequest, p.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: save domain policy %s", p.Domain)
}

func (s *PostgresStore) AppendPolicyTransition(ctx context.Context, t *model.PolicyTransition) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO policy_transitions (id, domain, from_state, to_state, reason, at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Domain, string(t.From), string(t.To), t.Reason, t.At,
	)
	return eris.Wrap(err, "postgres: append policy transition")
}

func scanAgencyPg(row pgx.Row) (*model.Agency, error) {
	var a model.Agency
	var provJSON, status string
	err := row.Scan(&a.ID, &a.WebsiteURL, &a.Name, &a.SIRET, &a.Phone, &a.Email,
		&a.Address, &a.PostalCode, &a.City, &a.Latitude, &a.Longitude,
		&provJSON, &status, &a.IsActive, &a.LastScraped, &a.ErrorCount,
		&a.TotalListings, &a.ActiveListings, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan agency")
	}
	a.Status = model.AgencyStatus(status)
	if err := json.Unmarshal([]byte(provJSON), &a.DiscoveredFrom); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal provenance")
	}
	return &a, nil
}

func collectAgenciesPg(rows pgx.Rows) ([]model.Agency, error) {
	var out []model.Agency
	for rows.Next() {
		a, err := scanAgencyPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate agencies")
}

func scanListingPg(row pgx.Row) (*model.AggregatedListing, error) {
	var l model.AggregatedListing
	var photosJSON, confJSON string
	err := row.Scan(&l.ID, &l.Hash, &l.AgencyID, &l.Title, &l.Description,
		&l.Price, &l.Surface, &l.Rooms, &l.Bedrooms, &l.Address, &l.PostalCode,
		&l.City, &l.PropertyType, &l.OperationType, &photosJSON, &l.SourceURL,
		&confJSON, &l.DuplicateOf, &l.QualityScore, &l.IsActive,
		&l.MissingStreak, &l.FirstSeen, &l.LastSeen, &l.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan listing")
	}
	if err := json.Unmarshal([]byte(photosJSON), &l.Photos); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal photos")
	}
	if err := json.Unmarshal([]byte(confJSON), &l.Confidence); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal confidence")
	}
	return &l, nil
}
