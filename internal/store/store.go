// Package store implements Postgres persistence for postings, channels and
// resume artifacts.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobwire/scraper-service/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("store: not found")

// Postgres is the pgx-backed store.
type Postgres struct {
	pool *pgxpool.Pool
}

// New returns a configured Postgres store.
func New(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ─── Postings ────────────────────────────────────────────────────────────────

// UpsertPosting inserts p or, when a row with the same job_id exists, updates
// it. Nullable fields (company, location, salary, currency) overwrite only
// when non-null in p, preserving previously stored values otherwise; the
// defaults apply on first insert only. updated_at is refreshed
// unconditionally. Returns true when a new row was created.
func (s *Postgres) UpsertPosting(ctx context.Context, p model.JobPosting) (bool, error) {
	var created bool
	err := s.pool.QueryRow(ctx,
		`INSERT INTO job_postings (
		   job_id, title, company_name, location, description, url, remote,
		   salary_min, salary_max, currency, categories,
		   telegram_channel_id, telegram_channel_name, telegram_message_id,
		   telegram_message_date, telegram_views, telegram_forwards, telegram_raw_text
		 ) VALUES (
		   $1, $2, COALESCE($3, 'Unknown Company'), COALESCE($4, 'Location not specified'),
		   $5, $6, $7, $8, $9, $10, COALESCE($11, '{}'), $12, $13, $14, $15, $16, $17, $18
		 )
		 ON CONFLICT (job_id) DO UPDATE SET
		   title                 = EXCLUDED.title,
		   company_name          = COALESCE($3, job_postings.company_name),
		   location              = COALESCE($4, job_postings.location),
		   description           = EXCLUDED.description,
		   url                   = EXCLUDED.url,
		   remote                = EXCLUDED.remote,
		   salary_min            = COALESCE(EXCLUDED.salary_min, job_postings.salary_min),
		   salary_max            = COALESCE(EXCLUDED.salary_max, job_postings.salary_max),
		   currency              = COALESCE(EXCLUDED.currency, job_postings.currency),
		   categories            = EXCLUDED.categories,
		   telegram_views        = EXCLUDED.telegram_views,
		   telegram_forwards     = EXCLUDED.telegram_forwards,
		   telegram_raw_text     = EXCLUDED.telegram_raw_text,
		   updated_at            = NOW()
		 RETURNING (xmax = 0)`,
		p.JobID, p.Title, p.CompanyName, p.Location, p.Description, p.URL, p.Remote,
		p.SalaryMin, p.SalaryMax, p.Currency, p.Categories,
		p.ChannelID, p.ChannelName, p.MessageID,
		p.MessageDate, p.Views, p.Forwards, p.RawText,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert posting %s: %w", p.JobID, err)
	}
	return created, nil
}

const postingColumns = `
	id, job_id, title, company_name, location, recruiter_contact, description,
	url, remote, salary_min, salary_max, currency, categories,
	telegram_channel_id, telegram_channel_name, telegram_message_id,
	telegram_message_date, telegram_views, telegram_forwards, telegram_raw_text,
	processed_by_llm, extracted_data, resume_artifact_id, created_at, updated_at`

func scanPosting(row pgx.Row) (model.JobPosting, error) {
	var p model.JobPosting
	err := row.Scan(
		&p.ID, &p.JobID, &p.Title, &p.CompanyName, &p.Location, &p.RecruiterContact,
		&p.Description, &p.URL, &p.Remote, &p.SalaryMin, &p.SalaryMax, &p.Currency,
		&p.Categories, &p.ChannelID, &p.ChannelName, &p.MessageID,
		&p.MessageDate, &p.Views, &p.Forwards, &p.RawText,
		&p.Processed, &p.Extracted, &p.ResumeArtifactID, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

// PostingByID fetches a posting by its numeric primary key.
func (s *Postgres) PostingByID(ctx context.Context, id int64) (model.JobPosting, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+postingColumns+` FROM job_postings WHERE id = $1`, id)
	p, err := scanPosting(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.JobPosting{}, ErrNotFound
	}
	if err != nil {
		return model.JobPosting{}, fmt.Errorf("posting %d: %w", id, err)
	}
	return p, nil
}

// PostingFilter narrows ListPostings. Zero values mean "no constraint".
type PostingFilter struct {
	Channel  string
	Category string
	Remote   *bool
	Limit    int
}

// ListPostings returns postings newest-first, filtered by f.
func (s *Postgres) ListPostings(ctx context.Context, f PostingFilter) ([]model.JobPosting, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + postingColumns + ` FROM job_postings WHERE TRUE`
	args := []any{}
	n := 0
	next := func() string { n++; return fmt.Sprintf("$%d", n) }

	if f.Channel != "" {
		query += ` AND telegram_channel_name = ` + next()
		args = append(args, f.Channel)
	}
	if f.Category != "" {
		query += ` AND ` + next() + ` = ANY(categories)`
		args = append(args, f.Category)
	}
	if f.Remote != nil {
		query += ` AND remote = ` + next()
		args = append(args, *f.Remote)
	}
	query += ` ORDER BY telegram_message_date DESC LIMIT ` + next()
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list postings: %w", err)
	}
	defer rows.Close()

	var postings []model.JobPosting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// UnprocessedPostings returns up to limit postings not yet enriched, newest
// message first.
func (s *Postgres) UnprocessedPostings(ctx context.Context, limit int) ([]model.JobPosting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postingColumns+`
		 FROM job_postings
		 WHERE NOT processed_by_llm
		 ORDER BY telegram_message_date DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("unprocessed postings: %w", err)
	}
	defer rows.Close()

	var postings []model.JobPosting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// ApplyEnrichment merges non-null extracted fields into the posting, stores
// the raw payload, and marks it processed. Marking is idempotent: callers
// never see an already-processed posting from UnprocessedPostings.
func (s *Postgres) ApplyEnrichment(ctx context.Context, jobID string, profile model.ExtractedProfile, raw []byte) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_postings SET
		   company_name      = COALESCE($2, company_name),
		   location          = COALESCE($3, location),
		   recruiter_contact = COALESCE($4, recruiter_contact),
		   extracted_data    = $5,
		   processed_by_llm  = TRUE,
		   updated_at        = NOW()
		 WHERE job_id = $1`,
		jobID, profile.CompanyName, profile.Location, profile.RecruiterContact, raw)
	if err != nil {
		return fmt.Errorf("apply enrichment %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ─── Channels ────────────────────────────────────────────────────────────────

const channelColumns = `id, channel_name, is_active, last_scraped, created_at, updated_at`

func scanChannel(row pgx.Row) (model.MonitoredChannel, error) {
	var c model.MonitoredChannel
	err := row.Scan(&c.ID, &c.Name, &c.Active, &c.LastScraped, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// CreateChannel registers a channel for monitoring. Registering an existing
// name reactivates it.
func (s *Postgres) CreateChannel(ctx context.Context, name string) (model.MonitoredChannel, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO monitored_channels (channel_name)
		 VALUES ($1)
		 ON CONFLICT (channel_name) DO UPDATE SET is_active = TRUE, updated_at = NOW()
		 RETURNING `+channelColumns, name)
	c, err := scanChannel(row)
	if err != nil {
		return model.MonitoredChannel{}, fmt.Errorf("create channel %q: %w", name, err)
	}
	return c, nil
}

// ChannelByName fetches a channel by its unique name.
func (s *Postgres) ChannelByName(ctx context.Context, name string) (model.MonitoredChannel, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+channelColumns+` FROM monitored_channels WHERE channel_name = $1`, name)
	c, err := scanChannel(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.MonitoredChannel{}, ErrNotFound
	}
	if err != nil {
		return model.MonitoredChannel{}, fmt.Errorf("channel %q: %w", name, err)
	}
	return c, nil
}

// ListChannels returns every monitored channel, name order.
func (s *Postgres) ListChannels(ctx context.Context) ([]model.MonitoredChannel, error) {
	return s.queryChannels(ctx,
		`SELECT `+channelColumns+` FROM monitored_channels ORDER BY channel_name`)
}

// ActiveChannels returns channels participating in scheduled scraping.
func (s *Postgres) ActiveChannels(ctx context.Context) ([]model.MonitoredChannel, error) {
	return s.queryChannels(ctx,
		`SELECT `+channelColumns+` FROM monitored_channels WHERE is_active ORDER BY channel_name`)
}

func (s *Postgres) queryChannels(ctx context.Context, query string) ([]model.MonitoredChannel, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	var channels []model.MonitoredChannel
	for rows.Next() {
		c, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, c)
	}
	return channels, rows.Err()
}

// DeactivateChannel flips is_active off after an unrecoverable scrape error.
func (s *Postgres) DeactivateChannel(ctx context.Context, name string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE monitored_channels SET is_active = FALSE, updated_at = NOW()
		 WHERE channel_name = $1`, name)
	if err != nil {
		return fmt.Errorf("deactivate channel %q: %w", name, err)
	}
	return nil
}

// TouchChannelScraped records a successful scrape pass for the channel.
func (s *Postgres) TouchChannelScraped(ctx context.Context, name string, at time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE monitored_channels SET last_scraped = $2, updated_at = NOW()
		 WHERE channel_name = $1`, name, at)
	if err != nil {
		return fmt.Errorf("touch channel %q: %w", name, err)
	}
	return nil
}

// ─── Resume artifacts ────────────────────────────────────────────────────────

// CreateArtifact stores a new resume artifact and returns its id.
func (s *Postgres) CreateArtifact(ctx context.Context, a model.ResumeArtifact) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO resume_artifacts (title, file_name, payload, is_template, description)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		a.Title, a.FileName, a.Payload, a.IsTemplate, a.Description).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create artifact: %w", err)
	}
	return id, nil
}

// ArtifactByID fetches an artifact.
func (s *Postgres) ArtifactByID(ctx context.Context, id int64) (model.ResumeArtifact, error) {
	var a model.ResumeArtifact
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, file_name, payload, is_template, description, created_at, updated_at
		 FROM resume_artifacts WHERE id = $1`, id).
		Scan(&a.ID, &a.Title, &a.FileName, &a.Payload, &a.IsTemplate, &a.Description,
			&a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ResumeArtifact{}, ErrNotFound
	}
	if err != nil {
		return model.ResumeArtifact{}, fmt.Errorf("artifact %d: %w", id, err)
	}
	return a, nil
}

// LinkArtifact points a posting at the artifact generated for it.
func (s *Postgres) LinkArtifact(ctx context.Context, postingID, artifactID int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_postings SET resume_artifact_id = $2, updated_at = NOW()
		 WHERE id = $1`, postingID, artifactID)
	if err != nil {
		return fmt.Errorf("link artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
