// Package model defines shared data structures for the scraper service.
package model

import "time"

// JobPosting mirrors a job_postings row. The composite key
// "{channel_name}_{message_id}" is stored in JobID and is unique: re-scraping
// the same message updates the existing row instead of duplicating it.
type JobPosting struct {
	ID               int64
	JobID            string
	Title            string
	CompanyName      *string
	Location         *string
	RecruiterContact *string
	Description      string
	URL              string
	Remote           bool
	SalaryMin        *float64
	SalaryMax        *float64
	Currency         *string
	Categories       []string

	ChannelID   int64
	ChannelName string
	MessageID   int64
	MessageDate time.Time
	Views       int
	Forwards    int
	RawText     string

	Processed        bool
	Extracted        []byte // raw enrichment payload (JSONB)
	ResumeArtifactID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MonitoredChannel mirrors a monitored_channels row. Only active channels
// participate in scheduled scraping.
type MonitoredChannel struct {
	ID          int64
	Name        string
	Active      bool
	LastScraped *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ResumeArtifact mirrors a resume_artifacts row. Payload is plain résumé text
// or LaTeX source; artifacts flagged IsTemplate serve as adaptation bases.
type ResumeArtifact struct {
	ID          int64
	Title       string
	FileName    string
	Payload     string
	IsTemplate  bool
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Message is a single channel message as fetched from the messaging client.
type Message struct {
	ID       int64
	Text     string
	Date     time.Time
	Views    int
	Forwards int
}

// ExtractedProfile is the structured field set the enrichment model returns.
// All fields are optional; only non-null values are merged into the posting.
type ExtractedProfile struct {
	CompanyName      *string `json:"company_name"`
	Location         *string `json:"location"`
	RecruiterContact *string `json:"recruiter_contact"`
}
