// Package scrape implements the channel scrape pass: resolve each channel,
// fetch recent messages, classify and extract, and upsert postings.
package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"jobwire/scraper-service/internal/extract"
	"jobwire/scraper-service/internal/messaging"
	"jobwire/scraper-service/internal/model"
)

// maxFieldLen caps title/company/location before storage.
const maxFieldLen = 255

// Store is the persistence surface the orchestrator needs.
type Store interface {
	UpsertPosting(ctx context.Context, p model.JobPosting) (created bool, err error)
	ActiveChannels(ctx context.Context) ([]model.MonitoredChannel, error)
	ChannelByName(ctx context.Context, name string) (model.MonitoredChannel, error)
	DeactivateChannel(ctx context.Context, name string) error
	TouchChannelScraped(ctx context.Context, name string, at time.Time) error
}

// Summary aggregates one scrape pass. Reported back to the operator surface
// as informational counts; nothing here is fatal.
type Summary struct {
	Channels    int `json:"channels"`
	NewPostings int `json:"newPostings"`
	Updated     int `json:"updatedPostings"`
	Errors      int `json:"channelErrors"`
}

// outcome is the per-channel scrape result variant.
type outcome int

const (
	channelOK outcome = iota
	channelAuthRequired
	channelFailed
)

// Orchestrator runs scrape passes. Channels are processed one at a time,
// messages within a channel one at a time.
type Orchestrator struct {
	client messaging.Client
	store  Store
	rdb    *redis.Client // nil disables event publishing
	limit  int           // default per-channel fetch limit
}

// New constructs an Orchestrator. limit is the default per-channel message
// fetch limit used when a run does not specify one.
func New(client messaging.Client, store Store, rdb *redis.Client, limit int) *Orchestrator {
	if limit <= 0 {
		limit = 50
	}
	return &Orchestrator{client: client, store: store, rdb: rdb, limit: limit}
}

// Run scrapes the named channels, or every active channel when names is
// empty. Per-channel failures deactivate the channel and are counted, not
// propagated; the batch continues. The one exception is
// messaging.ErrAuthRequired, which aborts the pass so the caller can redirect
// the operator to verification.
func (o *Orchestrator) Run(ctx context.Context, names []string, limit int) (Summary, error) {
	if limit <= 0 {
		limit = o.limit
	}

	channels, err := o.selectChannels(ctx, names)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Channels: len(channels)}
	for _, name := range channels {
		created, updated, res, err := o.scrapeChannel(ctx, name, limit)
		sum.NewPostings += created
		sum.Updated += updated

		switch res {
		case channelAuthRequired:
			return sum, messaging.ErrAuthRequired
		case channelFailed:
			sum.Errors++
			log.Printf("[scrape] channel %s failed: %v — deactivating and continuing", name, err)
			if derr := o.store.DeactivateChannel(ctx, name); derr != nil {
				slog.Warn("deactivate channel failed", "channel", name, "err", derr)
			}
		case channelOK:
			if terr := o.store.TouchChannelScraped(ctx, name, time.Now().UTC()); terr != nil {
				slog.Warn("update last_scraped failed", "channel", name, "err", terr)
			}
			log.Printf("[scrape] channel %s done — new=%d updated=%d", name, created, updated)
		}
		o.publishChannelScraped(ctx, name, created, updated, res == channelOK)
	}

	log.Printf("[scrape] pass complete — channels=%d new=%d updated=%d errors=%d",
		sum.Channels, sum.NewPostings, sum.Updated, sum.Errors)
	return sum, nil
}

// selectChannels expands the requested names to the channels actually
// scraped. Explicitly requested channels that are inactive are skipped with a
// warning; unknown names are skipped likewise.
func (o *Orchestrator) selectChannels(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		active, err := o.store.ActiveChannels(ctx)
		if err != nil {
			return nil, fmt.Errorf("load active channels: %w", err)
		}
		out := make([]string, 0, len(active))
		for _, c := range active {
			out = append(out, c.Name)
		}
		return out, nil
	}

	var out []string
	for _, name := range names {
		c, err := o.store.ChannelByName(ctx, name)
		if err != nil {
			slog.Warn("requested channel not found, skipping", "channel", name, "err", err)
			continue
		}
		if !c.Active {
			log.Printf("[scrape] channel %s is not active — skipping", name)
			continue
		}
		out = append(out, c.Name)
	}
	return out, nil
}

// scrapeChannel runs the resolve → fetch → extract → upsert sequence for one
// channel and reports its outcome variant.
func (o *Orchestrator) scrapeChannel(ctx context.Context, name string, limit int) (created, updated int, res outcome, err error) {
	ch, err := o.client.Resolve(ctx, name)
	if err != nil {
		if errors.Is(err, messaging.ErrAuthRequired) {
			return 0, 0, channelAuthRequired, err
		}
		return 0, 0, channelFailed, fmt.Errorf("resolve: %w", err)
	}

	messages, err := o.client.History(ctx, ch, limit)
	if err != nil {
		if errors.Is(err, messaging.ErrAuthRequired) {
			return 0, 0, channelAuthRequired, err
		}
		return 0, 0, channelFailed, fmt.Errorf("fetch: %w", err)
	}
	log.Printf("[scrape] channel %s: %d message(s) fetched", name, len(messages))

	for _, m := range messages {
		if !extract.IsJobPosting(m.Text) {
			continue
		}
		isNew, err := o.store.UpsertPosting(ctx, postingFromMessage(ch, m))
		if err != nil {
			// Per-message failure: skip this message, keep the channel going.
			slog.Warn("upsert failed", "channel", name, "message", m.ID, "err", err)
			continue
		}
		if isNew {
			created++
		} else {
			updated++
		}
	}
	return created, updated, channelOK, nil
}

// postingFromMessage builds the posting row for one classified message.
// Company/location stay nil when no pattern matched so an upsert preserves
// previously stored (possibly enriched) values; insert-time defaults are
// applied by the store.
func postingFromMessage(ch messaging.Channel, m model.Message) model.JobPosting {
	f := extract.Extract(m.Text, "")

	p := model.JobPosting{
		JobID:       fmt.Sprintf("%s_%d", ch.Name, m.ID),
		Title:       truncate(f.Title, maxFieldLen),
		Description: m.Text,
		URL:         fmt.Sprintf("https://t.me/%s/%d", ch.Name, m.ID),
		Remote:      f.Remote,
		SalaryMin:   f.SalaryMin,
		SalaryMax:   f.SalaryMax,
		Categories:  f.Categories,
		ChannelID:   ch.ID,
		ChannelName: ch.Name,
		MessageID:   m.ID,
		MessageDate: m.Date,
		Views:       m.Views,
		Forwards:    m.Forwards,
		RawText:     m.Text,
	}
	if f.Company != extract.DefaultCompany {
		company := truncate(f.Company, maxFieldLen)
		p.CompanyName = &company
	}
	if f.Location != extract.DefaultLocation {
		location := truncate(f.Location, maxFieldLen)
		p.Location = &location
	}
	if f.SalaryMin != nil || f.SalaryMax != nil {
		currency := "USD" // heuristic default, no currency detection
		p.Currency = &currency
	}
	return p
}

// truncate cuts s to max characters. Rune boundaries, not bytes: a byte cut
// can split a multi-byte character and produce invalid UTF-8 the database
// would reject.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

// publishChannelScraped emits a summary event for downstream consumers.
// Non-fatal: a publish failure is logged and ignored.
func (o *Orchestrator) publishChannelScraped(ctx context.Context, name string, created, updated int, ok bool) {
	if o.rdb == nil {
		return
	}
	event, _ := json.Marshal(map[string]any{
		"type":      "EVENT_CHANNEL_SCRAPED",
		"channel":   name,
		"new":       created,
		"updated":   updated,
		"ok":        ok,
		"scrapedAt": time.Now().UTC().Format(time.RFC3339),
	})
	if err := o.rdb.Publish(ctx, "EVENT_CHANNEL_SCRAPED", event).Err(); err != nil {
		slog.Warn("publish EVENT_CHANNEL_SCRAPED failed", "err", err)
	}
}
