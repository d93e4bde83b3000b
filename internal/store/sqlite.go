package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/immoweave/harvester/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	latitude        REAL,
	longitude       REAL,
	discovered_from TEXT NOT NULL DEFAULT '[]',
	status          TEXT NOT NULL DEFAULT 'pending',
	is_active       INTEGER NOT NULL DEFAULT 1,
	last_scraped    DATETIME,
	error_count     INTEGER NOT NULL DEFAULT 0,
	total_listings  INTEGER NOT NULL DEFAULT 0,
	active_listings INTEGER NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS listings (
	id             TEXT PRIMARY KEY,
	hash           TEXT NOT NULL,
	agency_id      TEXT NOT NULL REFERENCES agencies(id),
	title          TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	price          INTEGER,
	surface        INTEGER,
	rooms          INTEGER,
	bedrooms       INTEGER,
	address        TEXT NOT NULL DEFAULT '',
	postal_code    TEXT NOT NULL DEFAULT '',
	city           TEXT NOT NULL DEFAULT '',
	property_type  TEXT NOT NULL DEFAULT '',
	operation_type TEXT NOT NULL DEFAULT '',
	photos         TEXT NOT NULL DEFAULT '[]',
	source_url     TEXT NOT NULL,
	confidence     TEXT NOT NULL DEFAULT '{}',
	duplicate_of   TEXT,
	quality_score  REAL NOT NULL DEFAULT 0,
	is_active      INTEGER NOT NULL DEFAULT 1,
	missing_streak INTEGER NOT NULL DEFAULT 0,
	first_seen     DATETIME NOT NULL,
	last_seen      DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS listing_history (
	id         TEXT PRIMARY KEY,
	listing_id TEXT NOT NULL,
	field      TEXT NOT NULL,
	old_value  TEXT NOT NULL DEFAULT '',
	new_value  TEXT NOT NULL DEFAULT '',
	changed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS scrape_attempts (
	id             TEXT PRIMARY KEY,
	agency_id      TEXT NOT NULL,
	outcome        TEXT NOT NULL,
	listings_found INTEGER NOT NULL DEFAULT 0,
	new_count      INTEGER NOT NULL DEFAULT 0,
	updated_count  INTEGER NOT NULL DEFAULT 0,
	removed_count  INTEGER NOT NULL DEFAULT 0,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	started_at     DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS domain_policies (
	domain                  TEXT PRIMARY KEY,
	enabled                 INTEGER NOT NULL DEFAULT 1,
	state                   TEXT NOT NULL DEFAULT 'active',
	base_delay_ms           INTEGER NOT NULL,
	delay_multiplier        REAL NOT NULL DEFAULT 1,
	max_delay_ms            INTEGER NOT NULL,
	max_requests_per_hour   INTEGER NOT NULL,
	respect_robots          INTEGER NOT NULL DEFAULT 1,
	consecutive_rate_limits INTEGER NOT NULL DEFAULT 0,
	window_start            DATETIME NOT NULL,
	window_count            INTEGER NOT NULL DEFAULT 0,
	last_request            DATETIME NOT NULL,
	updated_at              DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS policy_transitions (
	id         TEXT PRIMARY KEY,
	domain     TEXT NOT NULL,
	from_state TEXT NOT NULL,
	to_state   TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	at         DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_agencies_status ON agencies(status);
CREATE INDEX IF NOT EXISTS idx_listings_hash ON listings(hash);
CREATE INDEX IF NOT EXISTS idx_listings_source_url ON listings(source_url);
CREATE INDEX IF NOT EXISTS idx_listings_agency_active ON listings(agency_id, is_active);
CREATE INDEX IF NOT EXISTS idx_history_listing ON listing_history(listing_id, changed_at);
CREATE INDEX IF NOT EXISTS idx_attempts_agency ON scrape_attempts(agency_id, started_at);
CREATE INDEX IF NOT EXISTS idx_transitions_domain ON policy_transitions(domain, at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const agencyColumns = `id, website_url, name, siret, phone, email, address, postal_code, city,
	latitude, longitude, discovered_from, status, is_active, last_scraped,
	error_count, total_listings, active_listings, created_at, updated_at`

func (s *SQLiteStore) GetAgency(ctx context.Context, id string) (*model.Agency, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agencyColumns+` FROM agencies WHERE id = ?`, id)
	a, err := scanAgency(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) GetAgencyByURL(ctx context.Context, normalizedURL string) (*model.Agency, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agencyColumns+` FROM agencies WHERE website_url = ?`, normalizedURL)
	a, err := scanAgency(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return a, err
}

func (s *SQLiteStore) UpsertAgency(ctx context.Context, a *model.Agency) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = time.Now().UTC()

	provJSON, err := json.Marshal(a.DiscoveredFrom)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal provenance")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agencies (`+agencyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			website_url = excluded.website_url,
			name = excluded.name,
			siret = excluded.siret,
			phone = excluded.phone,
			email = excluded.email,
			address = excluded.address,
			postal_code = excluded.postal_code,
			city = excluded.city,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			discovered_from = excluded.discovered_from,
			status = excluded.status,
			is_active = excluded.is_active,
			last_scraped = excluded.last_scraped,
			error_count = excluded.error_count,
			total_listings = excluded.total_listings,
			active_listings = excluded.active_listings,
			updated_at = excluded.updated_at`,
		a.ID, a.WebsiteURL, a.Name, a.SIRET, a.Phone, a.Email, a.Address,
		a.PostalCode, a.City, a.Latitude, a.Longitude, string(provJSON),
		string(a.Status), a.IsActive, a.LastScraped, a.ErrorCount,
		a.TotalListings, a.ActiveListings, a.CreatedAt, a.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert agency %s", a.WebsiteURL)
}

func (s *SQLiteStore) ListActiveAgencies(ctx context.Context) ([]model.Agency, error) {
	// Status gating is the orchestrator's call; the store only hides
	// soft-deleted rows.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agencyColumns+` FROM agencies
		 WHERE is_active = 1
		 ORDER BY last_scraped ASC NULLS FIRST`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active agencies")
	}
	defer rows.Close()
	return collectAgencies(rows)
}

func (s *SQLiteStore) ListAgencies(ctx context.Context, limit int) ([]model.Agency, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+agencyColumns+` FROM agencies ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list agencies")
	}
	defer rows.Close()
	return collectAgencies(rows)
}

const listingColumns = `id, hash, agency_id, title, description, price, surface, rooms, bedrooms,
	address, postal_code, city, property_type, operation_type, photos, source_url,
	confidence, duplicate_of, quality_score, is_active, missing_streak,
	first_seen, last_seen, updated_at`

func (s *SQLiteStore) GetActiveListingHashes(ctx context.Context, agencyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash FROM listings WHERE agency_id = ? AND is_active = 1`, agencyID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: active listing hashes")
	}
	defer rows.Close()

	var hashes []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan hash")
		}
		hashes = append(hashes, h)
	}
	return hashes, eris.Wrap(rows.Err(), "sqlite: iterate hashes")
}

func (s *SQLiteStore) ListActiveListings(ctx context.Context, agencyID string) ([]model.AggregatedListing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE agency_id = ? AND is_active = 1`, agencyID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list active listings")
	}
	defer rows.Close()

	var out []model.AggregatedListing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate listings")
}

func (s *SQLiteStore) GetListingByHash(ctx context.Context, hash string) (*model.AggregatedListing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings
		 WHERE hash = ? AND is_active = 1 AND duplicate_of IS NULL
		 ORDER BY first_seen ASC LIMIT 1`, hash)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (s *SQLiteStore) GetListingBySourceURL(ctx context.Context, sourceURL string) (*model.AggregatedListing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE source_url = ? ORDER BY last_seen DESC LIMIT 1`,
		sourceURL)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (s *SQLiteStore) GetListing(ctx context.Context, id string) (*model.AggregatedListing, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+listingColumns+` FROM listings WHERE id = ?`, id)
	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (s *SQLiteStore) UpsertListing(ctx context.Context, l *model.AggregatedListing) error {
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
		return eris.Wrap(err, "sqlite: marshal photos")
	}
	confJSON, err := json.Marshal(l.Confidence)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal confidence")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO listings (`+listingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			hash = excluded.hash,
			title = excluded.title,
			description = excluded.description,
			price = excluded.price,
			surface = excluded.surface,
			rooms = excluded.rooms,
			bedrooms = excluded.bedrooms,
			address = excluded.address,
			postal_code = excluded.postal_code,
			city = excluded.city,
			property_type = excluded.property_type,
			operation_type = excluded.operation_type,
			photos = excluded.photos,
			source_url = excluded.source_url,
			confidence = excluded.confidence,
			duplicate_of = excluded.duplicate_of,
			quality_score = excluded.quality_score,
			is_active = excluded.is_active,
			missing_streak = excluded.missing_streak,
			last_seen = excluded.last_seen,
			updated_at = excluded.updated_at`,
		l.ID, l.Hash, l.AgencyID, l.Title, l.Description, l.Price, l.Surface,
		l.Rooms, l.Bedrooms, l.Address, l.PostalCode, l.City, l.PropertyType,
		l.OperationType, string(photosJSON), l.SourceURL, string(confJSON),
		l.DuplicateOf, l.QualityScore, l.IsActive, l.MissingStreak,
		l.FirstSeen, l.LastSeen, l.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: upsert listing %s", l.SourceURL)
}

func (s *SQLiteStore) DeactivateListing(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE listings SET is_active = 0, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: deactivate listing %s", id)
	}
	return checkRowsAffected(res, "listing", id)
}

func (s *SQLiteStore) AppendListingHistory(ctx context.Context, h *model.ListingHistory) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	if h.ChangedAt.IsZero() {
		h.ChangedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO listing_history (id, listing_id, field, old_value, new_value, changed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		h.ID, h.ListingID, h.Field, h.OldValue, h.NewValue, h.ChangedAt,
	)
	return eris.Wrap(err, "sqlite: append listing history")
}

func (s *SQLiteStore) ListListingHistory(ctx context.Context, listingID string, limit int) ([]model.ListingHistory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, listing_id, field, old_value, new_value, changed_at
		 FROM listing_history WHERE listing_id = ?
		 ORDER BY changed_at DESC LIMIT ?`, listingID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list listing history")
	}
	defer rows.Close()

	var out []model.ListingHistory
	for rows.Next() {
		var h model.ListingHistory
		if err := rows.Scan(&h.ID, &h.ListingID, &h.Field, &h.OldValue, &h.NewValue, &h.ChangedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan listing history")
		}
		out = append(out, h)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate listing history")
}

func (s *SQLiteStore) AppendScrapeAttempt(ctx context.Context, a *model.ScrapeAttempt) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.StartedAt.IsZero() {
		a.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scrape_attempts
			(id, agency_id, outcome, listings_found, new_count, updated_count, removed_count, duration_ms, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AgencyID, string(a.Outcome), a.ListingsFound, a.New, a.Updated,
		a.Removed, a.DurationMS, a.Error, a.StartedAt,
	)
	return eris.Wrap(err, "sqlite: append scrape attempt")
}

func (s *SQLiteStore) ListScrapeAttempts(ctx context.Context, filter AttemptFilter) ([]model.ScrapeAttempt, error) {
	query := `SELECT id, agency_id, outcome, listings_found, new_count, updated_count, removed_count, duration_ms, error, started_at
		FROM scrape_attempts WHERE 1=1`
	var args []any
	if filter.AgencyID != "" {
		query += ` AND agency_id = ?`
		args = append(args, filter.AgencyID)
	}
	if filter.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(filter.Outcome))
	}
	query += ` ORDER BY started_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list scrape attempts")
	}
	defer rows.Close()

	var out []model.ScrapeAttempt
	for rows.Next() {
		var a model.ScrapeAttempt
		var outcome string
		if err := rows.Scan(&a.ID, &a.AgencyID, &outcome, &a.ListingsFound,
			&a.New, &a.Updated, &a.Removed, &a.DurationMS, &a.Error, &a.StartedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan scrape attempt")
		}
		a.Outcome = model.OutcomeClass(outcome)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate scrape attempts")
}

func (s *SQLiteStore) GetDomainPolicy(ctx context.Context, domain string) (*model.DomainPolicy, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT domain, enabled, state, base_delay_ms, delay_multiplier, max_delay_ms,
			max_requests_per_hour, respect_robots, consecutive_rate_limits,
			window_start, window_count, last_request, updated_at
		FROM domain_policies WHERE domain = ?`, domain)

	var p model.DomainPolicy
	var state string
	var baseMS, maxMS int64
	err := row.Scan(&p.Domain, &p.Enabled, &state, &baseMS, &p.DelayMultiplier,
		&maxMS, &p.MaxRequestsPerHour, &p.RespectRobots,
		&p.ConsecutiveRateLimits, &p.WindowStart, &p.WindowCount,
		&p.LastRequest, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get domain policy %s", domain)
	}
	p.State = model.PolicyState(state)
	p.BaseDelay = time.Duration(baseMS) * time.Millisecond
	p.MaxDelay = time.Duration(maxMS) * time.Millisecond
	return &p, nil
}

func (s *SQLiteStore) SaveDomainPolicy(ctx context.Context, p *model.DomainPolicy) error {
	p.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO domain_policies
			(domain, enabled, state, base_delay_ms, delay_multiplier, max_delay_ms,
			 max_requests_per_hour, respect_robots, consecutive_rate_limits,
			 window_start, window_count, last_request, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			enabled = excluded.enabled,
			state = excluded.state,
			base_delay_ms = excluded.base_delay_ms,
			delay_multiplier = excluded.delay_multiplier,
			max_delay_ms = excluded.max_delay_ms,
			max_requests_per_hour = excluded.max_requests_per_hour,
			respect_robots = excluded.respect_robots,
			consecutive_rate_limits = excluded.consecutive_rate_limits,
			window_start = excluded.window_start,
			window_count = excluded.window_count,
			last_request = excluded.last_request,
			updated_at = excluded.updated_at`,
		p.Domain, p.Enabled, string(p.State), p.BaseDelay.Milliseconds(),
		p.DelayMultiplier, p.MaxDelay.Milliseconds(), p.MaxRequestsPerHour,
		p.RespectRobots, p.ConsecutiveRateLimits, p.WindowStart, p.WindowCount,
		p.LastRequest, p.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: save domain policy %s", p.Domain)
}

func (s *SQLiteStore) AppendPolicyTransition(ctx context.Context, t *model.PolicyTransition) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.At.IsZero() {
		t.At = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO policy_transitions (id, domain, from_state, to_state, reason, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Domain, string(t.From), string(t.To), t.Reason, t.At,
	)
	return eris.Wrap(err, "sqlite: append policy transition")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAgency(row scannable) (*model.Agency, error) {
	var a model.Agency
	var provJSON, status string
	err := row.Scan(&a.ID, &a.WebsiteURL, &a.Name, &a.SIRET, &a.Phone, &a.Email,
		&a.Address, &a.PostalCode, &a.City, &a.Latitude, &a.Longitude,
		&provJSON, &status, &a.IsActive, &a.LastScraped, &a.ErrorCount,
		&a.TotalListings, &a.ActiveListings, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan agency")
	}
	a.Status = model.AgencyStatus(status)
	if err := json.Unmarshal([]byte(provJSON), &a.DiscoveredFrom); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal provenance")
	}
	return &a, nil
}

func collectAgencies(rows *sql.Rows) ([]model.Agency, error) {
	var out []model.Agency
	for rows.Next() {
		a, err := scanAgency(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate agencies")
}

func scanListing(row scannable) (*model.AggregatedListing, error) {
	var l model.AggregatedListing
	var photosJSON, confJSON string
	err := row.Scan(&l.ID, &l.Hash, &l.AgencyID, &l.Title, &l.Description,
		&l.Price, &l.Surface, &l.Rooms, &l.Bedrooms, &l.Address, &l.PostalCode,
		&l.City, &l.PropertyType, &l.OperationType, &photosJSON, &l.SourceURL,
		&confJSON, &l.DuplicateOf, &l.QualityScore, &l.IsActive,
		&l.MissingStreak, &l.FirstSeen, &l.LastSeen, &l.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan listing")
	}
	if err := json.Unmarshal([]byte(photosJSON), &l.Photos); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal photos")
	}
	if err := json.Unmarshal([]byte(confJSON), &l.Confidence); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal confidence")
	}
	return &l, nil
}
