// Package resume generates résumé artifacts for stored postings: drafting
// one from scratch or adapting a stored LaTeX template to the job.
//
// The two operations are deliberately independent; typesetting (PDF
// rendering) is out of scope — artifacts hold text or LaTeX source.
package resume

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"jobwire/scraper-service/internal/model"
)

const draftPrompt = `Create a professional resume tailored for the following job description:
%s

Format the resume with the following sections:
1. Professional Summary
2. Key Skills
3. Work Experience (create 2-3 relevant positions)
4. Education
5. Certifications (if relevant)

Make sure the experience and skills align perfectly with the job requirements.
Keep it professional and realistic.`

const adaptPrompt = `You are given a LaTeX resume template and a job description.
Adapt the resume content to the job: rewrite the summary, reorder and reword
skills and experience bullet points to match the requirements. Keep the LaTeX
structure, packages and commands of the template intact. Return only the
complete LaTeX source, no commentary.

Job description:
%s

LaTeX template:
%s`

// Store is the persistence surface the service needs.
type Store interface {
	PostingByID(ctx context.Context, id int64) (model.JobPosting, error)
	ArtifactByID(ctx context.Context, id int64) (model.ResumeArtifact, error)
	CreateArtifact(ctx context.Context, a model.ResumeArtifact) (int64, error)
	LinkArtifact(ctx context.Context, postingID, artifactID int64) error
}

// Generator produces text for a prompt; satisfied by *gemini.Client.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service generates and links resume artifacts.
type Service struct {
	store Store
	gen   Generator
}

// New constructs a Service.
func New(store Store, gen Generator) *Service {
	return &Service{store: store, gen: gen}
}

// GenerateForJob drafts a plain-text resume for the posting, stores it as a
// new artifact, and links the posting to it.
func (s *Service) GenerateForJob(ctx context.Context, postingID int64) (model.ResumeArtifact, error) {
	job, err := s.store.PostingByID(ctx, postingID)
	if err != nil {
		return model.ResumeArtifact{}, err
	}

	text, err := s.gen.Generate(ctx, fmt.Sprintf(draftPrompt, job.Description))
	if err != nil {
		return model.ResumeArtifact{}, fmt.Errorf("draft resume: %w", err)
	}

	artifact := model.ResumeArtifact{
		Title:    "AI Generated Resume for " + shortTitle(job.Title),
		FileName: fmt.Sprintf("resume_%s.txt", uuid.NewString()[:8]),
		Payload:  text,
		Description: fmt.Sprintf("Automatically generated resume for job: %s\nCompany: %s\nLocation: %s",
			job.Title, orDefault(job.CompanyName, "Unknown Company"), orDefault(job.Location, "Not specified")),
	}
	return s.saveAndLink(ctx, job.ID, artifact)
}

// AdaptTemplate rewrites a stored LaTeX template for the posting, stores the
// result as a new artifact, and links the posting to it. templateID must
// reference an artifact flagged as a template.
func (s *Service) AdaptTemplate(ctx context.Context, postingID, templateID int64) (model.ResumeArtifact, error) {
	job, err := s.store.PostingByID(ctx, postingID)
	if err != nil {
		return model.ResumeArtifact{}, err
	}
	tmpl, err := s.store.ArtifactByID(ctx, templateID)
	if err != nil {
		return model.ResumeArtifact{}, err
	}
	if !tmpl.IsTemplate {
		return model.ResumeArtifact{}, fmt.Errorf("artifact %d is not a template", templateID)
	}

	latex, err := s.gen.Generate(ctx, fmt.Sprintf(adaptPrompt, job.Description, tmpl.Payload))
	if err != nil {
		return model.ResumeArtifact{}, fmt.Errorf("adapt template: %w", err)
	}

	artifact := model.ResumeArtifact{
		Title:    fmt.Sprintf("Modified Resume for %s (Based on %s)", shortTitle(job.Title), tmpl.Title),
		FileName: fmt.Sprintf("resume_%s.tex", uuid.NewString()[:8]),
		Payload:  latex,
		Description: fmt.Sprintf("Modified from template: %s\nJob: %s\nCompany: %s",
			tmpl.Title, job.Title, orDefault(job.CompanyName, "Unknown Company")),
	}
	return s.saveAndLink(ctx, job.ID, artifact)
}

func (s *Service) saveAndLink(ctx context.Context, postingID int64, artifact model.ResumeArtifact) (model.ResumeArtifact, error) {
	id, err := s.store.CreateArtifact(ctx, artifact)
	if err != nil {
		return model.ResumeArtifact{}, err
	}
	artifact.ID = id
	if err := s.store.LinkArtifact(ctx, postingID, id); err != nil {
		return model.ResumeArtifact{}, err
	}
	return artifact, nil
}

// shortTitle bounds a job title to 200 characters for use inside artifact
// titles. Cuts on rune boundaries so multi-byte titles stay valid UTF-8.
func shortTitle(title string) string {
	runes := []rune(title)
	if len(runes) > 200 {
		return string(runes[:200]) + "..."
	}
	return title
}

func orDefault(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
