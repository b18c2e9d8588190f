package scrape_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"jobwire/scraper-service/internal/messaging"
	"jobwire/scraper-service/internal/model"
	"jobwire/scraper-service/internal/scrape"
)

// ─── Fakes ───────────────────────────────────────────────────────────────────

type fakeClient struct {
	resolveErr map[string]error
	history    map[string][]model.Message
	historyErr map[string]error
}

func (f *fakeClient) Resolve(_ context.Context, name string) (messaging.Channel, error) {
	if err := f.resolveErr[name]; err != nil {
		return messaging.Channel{}, err
	}
	return messaging.Channel{ID: 1000, AccessHash: 42, Name: name}, nil
}

func (f *fakeClient) History(_ context.Context, ch messaging.Channel, _ int) ([]model.Message, error) {
	if err := f.historyErr[ch.Name]; err != nil {
		return nil, err
	}
	return f.history[ch.Name], nil
}

type fakeStore struct {
	channels    []model.MonitoredChannel
	existing    map[string]bool // job_id → already stored
	upserts     []model.JobPosting
	deactivated []string
	touched     []string
}

func (f *fakeStore) UpsertPosting(_ context.Context, p model.JobPosting) (bool, error) {
	f.upserts = append(f.upserts, p)
	if f.existing[p.JobID] {
		return false, nil
	}
	if f.existing == nil {
		f.existing = map[string]bool{}
	}
	f.existing[p.JobID] = true
	return true, nil
}

func (f *fakeStore) ActiveChannels(context.Context) ([]model.MonitoredChannel, error) {
	var active []model.MonitoredChannel
	for _, c := range f.channels {
		if c.Active {
			active = append(active, c)
		}
	}
	return active, nil
}

func (f *fakeStore) ChannelByName(_ context.Context, name string) (model.MonitoredChannel, error) {
	for _, c := range f.channels {
		if c.Name == name {
			return c, nil
		}
	}
	return model.MonitoredChannel{}, errors.New("not found")
}

func (f *fakeStore) DeactivateChannel(_ context.Context, name string) error {
	f.deactivated = append(f.deactivated, name)
	return nil
}

func (f *fakeStore) TouchChannelScraped(_ context.Context, name string, _ time.Time) error {
	f.touched = append(f.touched, name)
	return nil
}

func channel(name string, active bool) model.MonitoredChannel {
	return model.MonitoredChannel{Name: name, Active: active}
}

func message(id int64, text string) model.Message {
	return model.Message{ID: id, Text: text, Date: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)}
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestRun_ClassifiesAndUpserts(t *testing.T) {
	client := &fakeClient{history: map[string][]model.Message{
		"gojobs": {
			message(1, "We are hiring a Backend Engineer at Acme Inc. Remote. Salary: $80,000-$100,000"),
			message(2, "Happy Friday everyone!"),
		},
	}}
	st := &fakeStore{channels: []model.MonitoredChannel{channel("gojobs", true)}}

	sum, err := scrape.New(client, st, nil, 50).Run(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if sum.NewPostings != 1 || sum.Errors != 0 {
		t.Fatalf("summary = %+v, want 1 new posting and no errors", sum)
	}
	if len(st.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1 (non-posting skipped)", len(st.upserts))
	}

	p := st.upserts[0]
	if p.JobID != "gojobs_1" {
		t.Errorf("JobID = %q, want composite gojobs_1", p.JobID)
	}
	if p.URL != "https://t.me/gojobs/1" {
		t.Errorf("URL = %q", p.URL)
	}
	if p.CompanyName == nil || *p.CompanyName != "Acme Inc" {
		t.Errorf("CompanyName = %v, want Acme Inc", p.CompanyName)
	}
	if !p.Remote {
		t.Error("Remote should be true")
	}
	if p.SalaryMin == nil || *p.SalaryMin != 80000 || p.SalaryMax == nil || *p.SalaryMax != 100000 {
		t.Errorf("salary = (%v, %v), want (80000, 100000)", p.SalaryMin, p.SalaryMax)
	}
	if p.Currency == nil || *p.Currency != "USD" {
		t.Errorf("Currency = %v, want USD", p.Currency)
	}
	if len(st.touched) != 1 || st.touched[0] != "gojobs" {
		t.Errorf("touched = %v, want last_scraped update for gojobs", st.touched)
	}
}

func TestRun_RescrapeCountsAsUpdate(t *testing.T) {
	client := &fakeClient{history: map[string][]model.Message{
		"gojobs": {message(1, "hiring Go devs")},
	}}
	st := &fakeStore{
		channels: []model.MonitoredChannel{channel("gojobs", true)},
		existing: map[string]bool{"gojobs_1": true},
	}

	sum, err := scrape.New(client, st, nil, 50).Run(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if sum.NewPostings != 0 || sum.Updated != 1 {
		t.Fatalf("summary = %+v, want 0 new / 1 updated", sum)
	}
}

func TestRun_InactiveChannelSkippedEvenWhenListed(t *testing.T) {
	client := &fakeClient{}
	st := &fakeStore{channels: []model.MonitoredChannel{channel("stale", false)}}

	sum, err := scrape.New(client, st, nil, 50).Run(context.Background(), []string{"stale"}, 0)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if sum.Channels != 0 || len(st.upserts) != 0 {
		t.Fatalf("inactive channel must not be scraped, summary = %+v", sum)
	}
}

func TestRun_ResolveFailureDeactivatesAndContinues(t *testing.T) {
	client := &fakeClient{
		resolveErr: map[string]error{"broken": errors.New("no such peer")},
		history: map[string][]model.Message{
			"gojobs": {message(7, "new vacancy for a data engineer")},
		},
	}
	st := &fakeStore{channels: []model.MonitoredChannel{
		channel("broken", true),
		channel("gojobs", true),
	}}

	sum, err := scrape.New(client, st, nil, 50).Run(context.Background(), nil, 0)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if sum.Errors != 1 {
		t.Errorf("Errors = %d, want 1", sum.Errors)
	}
	if len(st.deactivated) != 1 || st.deactivated[0] != "broken" {
		t.Errorf("deactivated = %v, want [broken]", st.deactivated)
	}
	if sum.NewPostings != 1 {
		t.Errorf("NewPostings = %d, want 1 — later channels must still run", sum.NewPostings)
	}
}

func TestRun_AuthRequiredAbortsBatch(t *testing.T) {
	client := &fakeClient{
		resolveErr: map[string]error{"first": messaging.ErrAuthRequired},
	}
	st := &fakeStore{channels: []model.MonitoredChannel{
		channel("first", true),
		channel("second", true),
	}}

	_, err := scrape.New(client, st, nil, 50).Run(context.Background(), nil, 0)
	if !errors.Is(err, messaging.ErrAuthRequired) {
		t.Fatalf("err = %v, want ErrAuthRequired", err)
	}
	if len(st.deactivated) != 0 {
		t.Errorf("auth-required must not deactivate channels, got %v", st.deactivated)
	}
	if len(st.upserts) != 0 {
		t.Error("no channel after the auth failure should have been scraped")
	}
}

func TestRun_LongMultiByteTitleTruncatedOnRuneBoundary(t *testing.T) {
	// Cyrillic titles are two bytes per rune; a byte-based cut at 255 would
	// split a character and store invalid UTF-8.
	client := &fakeClient{history: map[string][]model.Message{
		"rujobs": {message(5, "job "+strings.Repeat("я", 300))},
	}}
	st := &fakeStore{channels: []model.MonitoredChannel{channel("rujobs", true)}}

	if _, err := scrape.New(client, st, nil, 50).Run(context.Background(), nil, 0); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(st.upserts) != 1 {
		t.Fatalf("upserts = %d, want 1", len(st.upserts))
	}

	title := st.upserts[0].Title
	if !utf8.ValidString(title) {
		t.Fatalf("stored title is not valid UTF-8: %q", title[len(title)-6:])
	}
	if got := utf8.RuneCountInString(title); got != 255 {
		t.Errorf("title length = %d characters, want 255", got)
	}
	if !strings.HasSuffix(title, "я") {
		t.Errorf("title must end on a whole character, got tail %q", title[len(title)-6:])
	}
}

func TestRun_NoLocationMatchLeavesNilForPartialUpdate(t *testing.T) {
	client := &fakeClient{history: map[string][]model.Message{
		"gojobs": {message(3, "hiring now, new vacancy")},
	}}
	st := &fakeStore{channels: []model.MonitoredChannel{channel("gojobs", true)}}

	if _, err := scrape.New(client, st, nil, 50).Run(context.Background(), nil, 0); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	p := st.upserts[0]
	if p.CompanyName != nil || p.Location != nil {
		t.Errorf("unmatched fields must stay nil so upsert preserves stored values, got company=%v location=%v",
			p.CompanyName, p.Location)
	}
	if p.Currency != nil {
		t.Errorf("Currency = %v, want nil without a parsed salary", *p.Currency)
	}
}
