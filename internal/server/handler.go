// Package server implements the operator-facing JSON API.
//
// Routes:
//
//	GET  /health            → liveness
//	POST /scrape            → run a scrape pass now
//	GET  /telegram/status   → connection / verification state
//	POST /telegram/verify   → complete code-based sign-in
//	POST /enrich            → run one enrichment batch now
//	GET  /jobs              → list postings (filters: channel, category, remote)
//	POST /jobs/{id}/resume  → generate or adapt a resume for the posting
//	GET  /channels          → list monitored channels
//	POST /channels          → register a channel
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"jobwire/scraper-service/internal/enrich"
	"jobwire/scraper-service/internal/messaging"
	"jobwire/scraper-service/internal/model"
	"jobwire/scraper-service/internal/resume"
	"jobwire/scraper-service/internal/scrape"
	"jobwire/scraper-service/internal/store"
)

// Handler holds shared dependencies. Enricher and Resumes are nil when no
// Gemini key is configured; their routes answer 503 in that case.
type Handler struct {
	Version  string
	Orch     *scrape.Orchestrator
	Store    *store.Postgres
	Telegram *messaging.Telegram
	Enricher *enrich.Processor
	Resumes  *resume.Service
}

// RegisterRoutes mounts all routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/scrape", h.handleScrape)
	mux.HandleFunc("/telegram/status", h.handleTelegramStatus)
	mux.HandleFunc("/telegram/verify", h.handleTelegramVerify)
	mux.HandleFunc("/enrich", h.handleEnrich)
	mux.HandleFunc("/jobs", h.handleJobs)
	mux.HandleFunc("/jobs/", h.handleJobAction)
	mux.HandleFunc("/channels", h.handleChannels)
}

// ─── Health ──────────────────────────────────────────────────────────────────

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "scraper-service",
		"version": h.Version,
	})
}

// ─── Scrape ──────────────────────────────────────────────────────────────────

type scrapeRequest struct {
	Channels []string `json:"channels"`
	Limit    int      `json:"limit"`
}

func (h *Handler) handleScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req scrapeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	sum, err := h.Orch.Run(r.Context(), req.Channels, req.Limit)
	if errors.Is(err, messaging.ErrAuthRequired) {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":             "telegram authentication required",
			"needsVerification": true,
		})
		return
	}
	if err != nil {
		log.Printf("[server] scrape error: %v", err)
		jsonError(w, "scrape failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// ─── Telegram auth ───────────────────────────────────────────────────────────

func (h *Handler) handleTelegramStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"connected":         h.Telegram.Authorized(),
		"needsVerification": h.Telegram.NeedsVerification(),
	})
}

type verifyRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleTelegramVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		jsonError(w, "code is required", http.StatusBadRequest)
		return
	}

	if err := h.Telegram.VerifyCode(r.Context(), req.Code); err != nil {
		log.Printf("[server] verification failed: %v", err)
		jsonError(w, fmt.Sprintf("verification failed: %v", err), http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

// ─── Enrichment ──────────────────────────────────────────────────────────────

type enrichRequest struct {
	BatchSize int `json:"batchSize"`
}

func (h *Handler) handleEnrich(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.Enricher == nil {
		jsonError(w, "enrichment is not configured (missing GEMINI_API_KEY)", http.StatusServiceUnavailable)
		return
	}

	var req enrichRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	processed, failed, err := h.Enricher.ProcessBatch(r.Context(), req.BatchSize)
	if err != nil {
		log.Printf("[server] enrich error: %v", err)
		jsonError(w, "enrichment failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed, "failed": failed})
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

// jobResponse is the JSON shape for a posting.
type jobResponse struct {
	ID               int64     `json:"id"`
	JobID            string    `json:"jobId"`
	Title            string    `json:"title"`
	Company          *string   `json:"company"`
	Location         *string   `json:"location"`
	RecruiterContact *string   `json:"recruiterContact"`
	URL              string    `json:"url"`
	Remote           bool      `json:"remote"`
	SalaryMin        *float64  `json:"salaryMin"`
	SalaryMax        *float64  `json:"salaryMax"`
	Currency         *string   `json:"currency"`
	Categories       []string  `json:"categories"`
	Channel          string    `json:"channel"`
	MessageDate      time.Time `json:"messageDate"`
	Processed        bool      `json:"processed"`
	ResumeArtifactID *int64    `json:"resumeArtifactId"`
}

func toJobResponse(p model.JobPosting) jobResponse {
	return jobResponse{
		ID:               p.ID,
		JobID:            p.JobID,
		Title:            p.Title,
		Company:          p.CompanyName,
		Location:         p.Location,
		RecruiterContact: p.RecruiterContact,
		URL:              p.URL,
		Remote:           p.Remote,
		SalaryMin:        p.SalaryMin,
		SalaryMax:        p.SalaryMax,
		Currency:         p.Currency,
		Categories:       p.Categories,
		Channel:          p.ChannelName,
		MessageDate:      p.MessageDate,
		Processed:        p.Processed,
		ResumeArtifactID: p.ResumeArtifactID,
	}
}

func (h *Handler) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := store.PostingFilter{
		Channel:  r.URL.Query().Get("channel"),
		Category: r.URL.Query().Get("category"),
	}
	if s := r.URL.Query().Get("remote"); s != "" {
		remote, err := strconv.ParseBool(s)
		if err != nil {
			jsonError(w, "remote must be a boolean", http.StatusBadRequest)
			return
		}
		filter.Remote = &remote
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 1 {
			jsonError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	postings, err := h.Store.ListPostings(r.Context(), filter)
	if err != nil {
		log.Printf("[server] list jobs error: %v", err)
		jsonError(w, "database error", http.StatusInternalServerError)
		return
	}

	out := make([]jobResponse, 0, len(postings))
	for _, p := range postings {
		out = append(out, toJobResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

type resumeRequest struct {
	TemplateID *int64 `json:"templateId"`
}

// handleJobAction handles POST /jobs/{id}/resume.
func (h *Handler) handleJobAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[2] != "resume" {
		jsonError(w, "invalid path", http.StatusNotFound)
		return
	}
	jobID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		jsonError(w, "invalid job id", http.StatusBadRequest)
		return
	}

	if h.Resumes == nil {
		jsonError(w, "resume generation is not configured (missing GEMINI_API_KEY)", http.StatusServiceUnavailable)
		return
	}

	var req resumeRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	var artifact model.ResumeArtifact
	if req.TemplateID != nil {
		artifact, err = h.Resumes.AdaptTemplate(r.Context(), jobID, *req.TemplateID)
	} else {
		artifact, err = h.Resumes.GenerateForJob(r.Context(), jobID)
	}
	if errors.Is(err, store.ErrNotFound) {
		jsonError(w, "job or template not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[server] resume generation for job %d failed: %v", jobID, err)
		jsonError(w, "resume generation failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"artifactId": artifact.ID,
		"title":      artifact.Title,
		"fileName":   artifact.FileName,
	})
}

// ─── Channels ────────────────────────────────────────────────────────────────

type channelResponse struct {
	Name        string     `json:"name"`
	Active      bool       `json:"active"`
	LastScraped *time.Time `json:"lastScraped"`
}

type channelRequest struct {
	Name string `json:"name"`
}

func (h *Handler) handleChannels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		channels, err := h.Store.ListChannels(r.Context())
		if err != nil {
			log.Printf("[server] list channels error: %v", err)
			jsonError(w, "database error", http.StatusInternalServerError)
			return
		}
		out := make([]channelResponse, 0, len(channels))
		for _, c := range channels {
			out = append(out, channelResponse{Name: c.Name, Active: c.Active, LastScraped: c.LastScraped})
		}
		writeJSON(w, http.StatusOK, out)

	case http.MethodPost:
		var req channelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			jsonError(w, "name is required", http.StatusBadRequest)
			return
		}
		c, err := h.Store.CreateChannel(r.Context(), strings.TrimPrefix(req.Name, "@"))
		if err != nil {
			log.Printf("[server] create channel error: %v", err)
			jsonError(w, "database error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, channelResponse{Name: c.Name, Active: c.Active, LastScraped: c.LastScraped})

	default:
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
