// Package enrich runs LLM post-processing over stored postings: structured
// company/location/recruiter-contact extraction from the raw message text.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"jobwire/scraper-service/internal/gemini"
	"jobwire/scraper-service/internal/model"
)

const promptTemplate = `Extract the following information from this job posting. Return a JSON object with these fields:
- company_name: The name of the company (null if not found)
- location: Work location or office location (null if not found)
- recruiter_contact: Any contact information for the recruiter/HR (email, telegram username, phone, etc.) (null if not found)

Focus on finding:
1. Company name - look for phrases like "company:", "at", "with", or company names followed by common suffixes (Inc, LLC, Ltd)
2. Location - look for phrases like "location:", "based in", city or country names, or remote/hybrid markers
3. Recruiter contact - look for emails, @usernames, phone numbers, or lines like "contact:" / "apply:"

Job posting:
%s`

// Store is the persistence surface the processor needs.
type Store interface {
	UnprocessedPostings(ctx context.Context, limit int) ([]model.JobPosting, error)
	ApplyEnrichment(ctx context.Context, jobID string, profile model.ExtractedProfile, raw []byte) error
}

// Generator produces text for a prompt; satisfied by *gemini.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Processor enriches postings one record at a time so a single failure never
// blocks the remainder of a batch.
type Processor struct {
	store     Store
	gen       Generator
	rdb       *redis.Client // nil disables event publishing
	batchSize int
}

// New constructs a Processor. batchSize bounds one ProcessBatch call.
func New(store Store, gen Generator, rdb *redis.Client, batchSize int) *Processor {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &Processor{store: store, gen: gen, rdb: rdb, batchSize: batchSize}
}

// ProcessBatch selects up to batchSize unprocessed postings (overriding the
// default when batchSize > 0) and enriches each. Already-processed postings
// are never selected, so re-running is a no-op for them. Returns the number
// of postings enriched and the number that failed.
func (p *Processor) ProcessBatch(ctx context.Context, batchSize int) (processed, failed int, err error) {
	if batchSize <= 0 {
		batchSize = p.batchSize
	}

	postings, err := p.store.UnprocessedPostings(ctx, batchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("select unprocessed: %w", err)
	}
	if len(postings) == 0 {
		return 0, 0, nil
	}

	for _, posting := range postings {
		if posting.Processed {
			continue // defensive against stale selections
		}
		if err := p.enrichOne(ctx, posting); err != nil {
			failed++
			log.Printf("[enrich] posting %s failed: %v — continuing", posting.JobID, err)
			continue
		}
		processed++
	}

	log.Printf("[enrich] batch done — processed=%d failed=%d", processed, failed)
	p.publishSummary(ctx, processed, failed)
	return processed, failed, nil
}

// enrichOne prompts the model for one posting and merges the result. A
// response that parses to an empty profile still marks the posting processed
// so it is not re-sent on the next sweep.
func (p *Processor) enrichOne(ctx context.Context, posting model.JobPosting) error {
	text := posting.RawText
	if text == "" {
		text = posting.Description
	}

	out, err := p.gen.Generate(ctx, fmt.Sprintf(promptTemplate, text))
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	cleaned := gemini.CleanJSON(out)
	var profile model.ExtractedProfile
	if err := json.Unmarshal([]byte(cleaned), &profile); err != nil {
		// Unusable output is still a completed attempt; store it raw for
		// inspection and move on.
		slog.Warn("enrichment output not valid JSON", "jobId", posting.JobID, "err", err)
		raw, _ := json.Marshal(map[string]string{"raw": cleaned})
		return p.store.ApplyEnrichment(ctx, posting.JobID, model.ExtractedProfile{}, raw)
	}

	return p.store.ApplyEnrichment(ctx, posting.JobID, profile, []byte(cleaned))
}

func (p *Processor) publishSummary(ctx context.Context, processed, failed int) {
	if p.rdb == nil {
		return
	}
	event, _ := json.Marshal(map[string]any{
		"type":      "EVENT_POSTINGS_ENRICHED",
		"processed": processed,
		"failed":    failed,
	})
	if err := p.rdb.Publish(ctx, "EVENT_POSTINGS_ENRICHED", event).Err(); err != nil {
		slog.Warn("publish EVENT_POSTINGS_ENRICHED failed", "err", err)
	}
}
