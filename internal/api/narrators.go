package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/bobarin/habitcast/internal/models"
	"github.com/go-chi/chi/v5"
)

const maxSampleUpload = 50 << 20

// ListNarrators handles GET /v1/narrators
func (h *Handler) ListNarrators(w http.ResponseWriter, r *http.Request) {
	narrators, err := h.narrators.List(r.Context())
	if err != nil {
		respondServiceError(w, err, "Failed to list narrators")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"narrators": narrators})
}

// GetNarrator handles GET /v1/narrators/{id}
func (h *Handler) GetNarrator(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "Invalid narrator ID")
	if !ok {
		return
	}

	narrator, err := h.narrators.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "Failed to get narrator")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"narrator": narrator})
}

// CreateNarrator handles POST /v1/narrators
func (h *Handler) CreateNarrator(w http.ResponseWriter, r *http.Request) {
	var in models.NarratorInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	narrator, err := h.narrators.Create(r.Context(), in)
	if err != nil {
		respondServiceError(w, err, "Failed to create narrator")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"narrator": narrator})
}

// UpdateNarrator handles PUT /v1/narrators/{id}. Absent fields are left as is.
func (h *Handler) UpdateNarrator(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "Invalid narrator ID")
	if !ok {
		return
	}

	var in models.NarratorInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	narrator, err := h.narrators.Update(r.Context(), id, in)
	if err != nil {
		respondServiceError(w, err, "Failed to update narrator")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"narrator": narrator})
}

// DeleteNarrator handles DELETE /v1/narrators/{id}
func (h *Handler) DeleteNarrator(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "Invalid narrator ID")
	if !ok {
		return
	}

	narrator, err := h.narrators.Delete(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "Failed to delete narrator")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"narrator": narrator})
}

// SetDefaultNarrator handles POST /v1/narrators/{id}/default
func (h *Handler) SetDefaultNarrator(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "Invalid narrator ID")
	if !ok {
		return
	}

	narrator, err := h.narrators.SetDefault(r.Context(), id)
	if err != nil {
		respondServiceError(w, err, "Failed to set default narrator")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"narrator": narrator})
}

// GenerateWithNarrator handles POST /v1/narrators/{id}/generate
// Body: {"date": "YYYY-MM-DD"}, optional.
func (h *Handler) GenerateWithNarrator(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "Invalid narrator ID")
	if !ok {
		return
	}

	var req models.GenerateRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if _, err := h.narrators.Get(r.Context(), id); err != nil {
		respondServiceError(w, err, "Failed to load narrator")
		return
	}

	req.NarratorID = &id
	h.runGeneration(w, r, req)
}

// ListSamples handles GET /v1/narrator-samples
func (h *Handler) ListSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := h.narrators.ListSamples(r.Context())
	if err != nil {
		respondServiceError(w, err, "Failed to list samples")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"samples":   samples,
		"directory": h.sampleDir,
	})
}

// UploadSample handles POST /v1/narrator-samples (multipart: sample, label)
func (h *Handler) UploadSample(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSampleUpload)
	if err := r.ParseMultipartForm(maxSampleUpload); err != nil {
		respondError(w, http.StatusBadRequest, "No sample file provided")
		return
	}

	file, header, err := r.FormFile("sample")
	if errors.Is(err, http.ErrMissingFile) {
		respondError(w, http.StatusBadRequest, "No sample file provided")
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid sample upload")
		return
	}
	defer file.Close()

	sample, err := h.narrators.CreateSample(r.Context(), r.FormValue("label"), header.Filename, file)
	if err != nil {
		log.Printf("[API] Sample upload failed: %v", err)
		respondServiceError(w, err, "Failed to store sample")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]interface{}{"sample": sample})
}

// DeleteSample handles DELETE /v1/narrator-samples/{id}?removeFile=true
func (h *Handler) DeleteSample(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "Invalid sample ID")
	if !ok {
		return
	}

	removeFile, _ := strconv.ParseBool(r.URL.Query().Get("removeFile"))

	sample, err := h.narrators.DeleteSample(r.Context(), id, removeFile)
	if errors.Is(err, models.ErrSampleNotFound) {
		respondError(w, http.StatusNotFound, "Sample not found")
		return
	}
	if err != nil {
		respondServiceError(w, err, "Failed to delete sample")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"sample": sample})
}

func idParam(w http.ResponseWriter, r *http.Request, msg string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		respondError(w, http.StatusBadRequest, msg)
		return 0, false
	}
	return id, true
}
