package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/bobarin/habitcast/internal/models"
	"github.com/bobarin/habitcast/internal/schedule"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Generator is the synchronous generation entry point.
type Generator interface {
	RunNow(ctx context.Context, date *string, narratorID *int64) (*models.GenerationResult, error)
}

type Narrators interface {
	List(ctx context.Context) ([]models.Narrator, error)
	Get(ctx context.Context, id int64) (*models.Narrator, error)
	Create(ctx context.Context, in models.NarratorInput) (*models.Narrator, error)
	Update(ctx context.Context, id int64, in models.NarratorInput) (*models.Narrator, error)
	Delete(ctx context.Context, id int64) (*models.Narrator, error)
	SetDefault(ctx context.Context, id int64) (*models.Narrator, error)
	ListSamples(ctx context.Context) ([]models.NarratorSample, error)
	CreateSample(ctx context.Context, label, filename string, r io.Reader) (*models.NarratorSample, error)
	DeleteSample(ctx context.Context, id int64, removeFile bool) (*models.NarratorSample, error)
}

type ClipReader interface {
	ListClipsForDate(ctx context.Context, date string) ([]models.Clip, error)
	GetClip(ctx context.Context, key models.HabitKey, date string) (*models.Clip, error)
}

type JobStore interface {
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListRecentJobs(ctx context.Context, limit int) ([]models.Job, error)
}

// Enqueuer pushes asynchronous generation jobs. Nil when Redis is not configured.
type Enqueuer interface {
	EnqueueGenerateClips(ctx context.Context, jobID uuid.UUID, date *string, narratorID *int64) error
	PendingGenerateClips(ctx context.Context) (int64, error)
}

type Files interface {
	Open(relPath string) (*os.File, fs.FileInfo, error)
}

type Handler struct {
	generator Generator
	narrators Narrators
	clips     ClipReader
	jobs      JobStore
	queue     Enqueuer
	files     Files
	loc       *time.Location
	sampleDir string
	now       func() time.Time
}

type HandlerDeps struct {
	Generator Generator
	Narrators Narrators
	Clips     ClipReader
	Jobs      JobStore
	Queue     Enqueuer // optional
	Files     Files
	Location  *time.Location
	SampleDir string
}

func NewHandler(deps HandlerDeps) *Handler {
	loc := deps.Location
	if loc == nil {
		loc = time.Local
	}
	return &Handler{
		generator: deps.Generator,
		narrators: deps.Narrators,
		clips:     deps.Clips,
		jobs:      deps.Jobs,
		queue:     deps.Queue,
		files:     deps.Files,
		loc:       loc,
		sampleDir: deps.SampleDir,
		now:       time.Now,
	}
}

// Generate handles POST /v1/generate
// Body: {"date": "YYYY-MM-DD", "narrator_id": 1}, both optional.
// With ?async=true the run is queued and 202 is returned with the job id.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Date != nil && *req.Date != "" {
		if _, err := schedule.ParseDate(*req.Date, h.loc); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid date format; expected YYYY-MM-DD")
			return
		}
	}

	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		h.enqueueGeneration(w, r, req)
		return
	}

	h.runGeneration(w, r, req)
}

// runGeneration outlives the request: a client disconnect must not abandon a
// half-written batch.
func (h *Handler) runGeneration(w http.ResponseWriter, r *http.Request, req models.GenerateRequest) {
	result, err := h.generator.RunNow(context.WithoutCancel(r.Context()), req.Date, req.NarratorID)
	if err != nil {
		log.Printf("[API] Generation failed: %v", err)
		respondServiceError(w, err, "Failed to generate audio clips")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) enqueueGeneration(w http.ResponseWriter, r *http.Request, req models.GenerateRequest) {
	if h.queue == nil {
		respondError(w, http.StatusServiceUnavailable, "Asynchronous generation requires REDIS_URL")
		return
	}

	if req.Date != nil && *req.Date == "" {
		req.Date = nil
	}

	job := &models.Job{
		ID:            uuid.New(),
		ScheduledDate: req.Date,
		NarratorID:    req.NarratorID,
		Trigger:       models.JobTriggerQueued,
		Status:        models.JobStatusQueued,
	}

	if err := h.jobs.CreateJob(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.queue.EnqueueGenerateClips(r.Context(), job.ID, req.Date, req.NarratorID); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.EnqueueResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// ListClips handles GET /v1/clips?date=YYYY-MM-DD (default today)
func (h *Handler) ListClips(w http.ResponseWriter, r *http.Request) {
	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}

	clips, err := h.clips.ListClipsForDate(r.Context(), date)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load clips")
		return
	}

	respondJSON(w, http.StatusOK, models.ListClipsResponse{Date: date, Clips: clips})
}

// StreamHabitAudio handles GET /v1/audio/habit/{habitType}/{habitId}?date=
func (h *Handler) StreamHabitAudio(w http.ResponseWriter, r *http.Request) {
	habitType, err := models.ParseHabitType(chi.URLParam(r, "habitType"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid habit type")
		return
	}

	habitID, err := strconv.ParseInt(chi.URLParam(r, "habitId"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid habit id")
		return
	}

	date, ok := h.dateParam(w, r)
	if !ok {
		return
	}

	clip, err := h.clips.GetClip(r.Context(), models.HabitKey{ID: habitID, Type: habitType}, date)
	if errors.Is(err, models.ErrClipNotFound) {
		respondError(w, http.StatusNotFound, "Audio clip not found for the given habit/date")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to load clip")
		return
	}

	if clip.Status != models.ClipStatusReady {
		body := map[string]interface{}{
			"error":  fmt.Sprintf("Clip status is '%s', cannot stream audio", clip.Status),
			"status": clip.Status,
		}
		if clip.ErrorMessage != nil {
			body["message"] = *clip.ErrorMessage
		}
		respondJSON(w, http.StatusConflict, body)
		return
	}

	if clip.AudioPath == "" {
		respondError(w, http.StatusNotFound, "No audio file stored for this clip")
		return
	}

	f, info, err := h.files.Open(clip.AudioPath)
	if errors.Is(err, fs.ErrNotExist) {
		respondError(w, http.StatusNotFound, "Audio file is missing")
		return
	}
	if err != nil {
		log.Printf("[API] Failed to open audio %s: %v", clip.AudioPath, err)
		respondError(w, http.StatusInternalServerError, "Failed to read audio file")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "Failed to get job")
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /v1/jobs?limit= (default 20, max 100). With a queue
// configured, pending reports the jobs still waiting in Redis.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, 100)
	}

	jobs, err := h.jobs.ListRecentJobs(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get jobs")
		return
	}

	body := map[string]interface{}{"jobs": jobs}
	if h.queue != nil {
		pending, err := h.queue.PendingGenerateClips(r.Context())
		if err != nil {
			log.Printf("[API] Failed to read queue depth: %v", err)
		} else {
			body["pending"] = pending
		}
	}
	respondJSON(w, http.StatusOK, body)
}

// dateParam reads ?date=, defaulting to today in the configured zone.
func (h *Handler) dateParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return h.now().In(h.loc).Format(schedule.DateLayout), true
	}
	d, err := schedule.ParseDate(raw, h.loc)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format; expected YYYY-MM-DD")
		return "", false
	}
	return d.Format(schedule.DateLayout), true
}

func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidDate),
		errors.Is(err, models.ErrNarratorInvalid):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNarratorNotFound),
		errors.Is(err, models.ErrClipNotFound),
		errors.Is(err, models.ErrSampleNotFound),
		errors.Is(err, models.ErrJobNotFound),
		errors.Is(err, models.ErrNoDefaultNarrator):
		return http.StatusNotFound
	case errors.Is(err, models.ErrNarratorNameTaken):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondServiceError reports domain errors verbatim and hides everything else
// behind fallback.
func respondServiceError(w http.ResponseWriter, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		respondJSON(w, status, map[string]string{"error": fallback, "details": err.Error()})
		return
	}
	respondError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
