package store_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"jobwire/scraper-service/internal/model"
	"jobwire/scraper-service/internal/store"
)

// Integration tests against a real Postgres with schema.sql applied. Skipped
// unless TEST_DATABASE_URL is set.

func testStore(t *testing.T) (*store.Postgres, *pgxpool.Pool) {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set; apply schema.sql and point it at a test database")
	}
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return store.New(pool), pool
}

// testChannelName returns a unique channel name and registers cleanup of the
// rows written under it.
func testChannelName(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	name := fmt.Sprintf("storetest_%d", time.Now().UnixNano())
	t.Cleanup(func() {
		pool.Exec(context.Background(),
			`DELETE FROM job_postings WHERE telegram_channel_name = $1`, name)
	})
	return name
}

func scrapedPosting(channel string, msgID int64) model.JobPosting {
	company := "Acme Inc"
	location := "Berlin"
	currency := "USD"
	min, max := 80000.0, 100000.0
	return model.JobPosting{
		JobID:       fmt.Sprintf("%s_%d", channel, msgID),
		Title:       "Backend Engineer",
		CompanyName: &company,
		Location:    &location,
		Description: "We are hiring a Backend Engineer at Acme Inc",
		URL:         fmt.Sprintf("https://t.me/%s/%d", channel, msgID),
		Remote:      true,
		SalaryMin:   &min,
		SalaryMax:   &max,
		Currency:    &currency,
		Categories:  []string{"backend"},
		ChannelID:   1000,
		ChannelName: channel,
		MessageID:   msgID,
		MessageDate: time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC),
		RawText:     "We are hiring a Backend Engineer at Acme Inc",
	}
}

func fetchPosting(t *testing.T, s *store.Postgres, channel string) model.JobPosting {
	t.Helper()
	got, err := s.ListPostings(context.Background(), store.PostingFilter{Channel: channel})
	if err != nil {
		t.Fatalf("ListPostings: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("postings for %s = %d, want 1", channel, len(got))
	}
	return got[0]
}

func TestUpsertPosting_RescrapePreservesEnrichedFields(t *testing.T) {
	s, pool := testStore(t)
	ctx := context.Background()
	channel := testChannelName(t, pool)

	created, err := s.UpsertPosting(ctx, scrapedPosting(channel, 1))
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if !created {
		t.Fatal("first upsert must report a new row")
	}

	// A later pass over the same message extracted nothing: nil company,
	// location, salary and currency must not clobber the stored values.
	rescrape := scrapedPosting(channel, 1)
	rescrape.CompanyName = nil
	rescrape.Location = nil
	rescrape.SalaryMin = nil
	rescrape.SalaryMax = nil
	rescrape.Currency = nil
	rescrape.Views = 120

	created, err = s.UpsertPosting(ctx, rescrape)
	if err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	if created {
		t.Fatal("re-upsert must report an update, not a new row")
	}

	p := fetchPosting(t, s, channel)
	if p.CompanyName == nil || *p.CompanyName != "Acme Inc" {
		t.Errorf("CompanyName = %v, want preserved Acme Inc", p.CompanyName)
	}
	if p.Location == nil || *p.Location != "Berlin" {
		t.Errorf("Location = %v, want preserved Berlin", p.Location)
	}
	if p.SalaryMin == nil || *p.SalaryMin != 80000 || p.SalaryMax == nil || *p.SalaryMax != 100000 {
		t.Errorf("salary = (%v, %v), want preserved (80000, 100000)", p.SalaryMin, p.SalaryMax)
	}
	if p.Currency == nil || *p.Currency != "USD" {
		t.Errorf("Currency = %v, want preserved USD", p.Currency)
	}
	if p.Views != 120 {
		t.Errorf("Views = %d, want refreshed 120", p.Views)
	}
}

func TestUpsertPosting_Idempotent(t *testing.T) {
	s, pool := testStore(t)
	ctx := context.Background()
	channel := testChannelName(t, pool)

	if _, err := s.UpsertPosting(ctx, scrapedPosting(channel, 2)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	first := fetchPosting(t, s, channel)

	created, err := s.UpsertPosting(ctx, scrapedPosting(channel, 2))
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Fatal("identical re-upsert must not create a second row")
	}

	second := fetchPosting(t, s, channel)
	if second.ID != first.ID || second.JobID != first.JobID {
		t.Fatalf("re-upsert changed identity: %d/%s vs %d/%s",
			first.ID, first.JobID, second.ID, second.JobID)
	}
	if second.Title != first.Title || second.Description != first.Description {
		t.Error("identical re-upsert must leave content unchanged")
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed on re-upsert: %v vs %v", first.CreatedAt, second.CreatedAt)
	}
	if second.UpdatedAt.Before(first.UpdatedAt) {
		t.Errorf("updated_at went backwards: %v vs %v", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestUpsertPosting_InsertAppliesDefaults(t *testing.T) {
	s, pool := testStore(t)
	ctx := context.Background()
	channel := testChannelName(t, pool)

	p := scrapedPosting(channel, 3)
	p.CompanyName = nil
	p.Location = nil
	p.Categories = nil

	if _, err := s.UpsertPosting(ctx, p); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got := fetchPosting(t, s, channel)
	if got.CompanyName == nil || *got.CompanyName != "Unknown Company" {
		t.Errorf("CompanyName = %v, want insert default", got.CompanyName)
	}
	if got.Location == nil || *got.Location != "Location not specified" {
		t.Errorf("Location = %v, want insert default", got.Location)
	}
	if len(got.Categories) != 0 {
		t.Errorf("Categories = %v, want empty", got.Categories)
	}
}
