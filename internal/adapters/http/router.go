package httpadapter

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/chartmill/chartmill/internal/core/domain"
	"github.com/chartmill/chartmill/internal/core/ports"
)

const maxUploadBytes = 64 << 20

type Router struct {
	ingestor  ports.DocumentIngestor
	runner    ports.PipelineRunner
	rebuilder ports.TaxonomyRebuilder
	reader    ports.DocumentReader
	admin     ports.DocumentAdmin
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	runner ports.PipelineRunner,
	rebuilder ports.TaxonomyRebuilder,
	reader ports.DocumentReader,
	admin ports.DocumentAdmin,
) *Router {
	return &Router{
		ingestor:  ingestor,
		runner:    runner,
		rebuilder: rebuilder,
		reader:    reader,
		admin:     admin,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("POST /v1/documents", rt.uploadDocument)
	mux.HandleFunc("GET /v1/documents/{id}", rt.getDocumentByID)
	mux.HandleFunc("DELETE /v1/documents/{id}", rt.deleteDocument)
	mux.HandleFunc("POST /v1/documents/{id}/run", rt.runPipeline)
	mux.HandleFunc("POST /v1/documents/{id}/modules/{module}/rerun", rt.rerunModule)
	mux.HandleFunc("POST /v1/documents/{id}/active", rt.setActive)
	mux.HandleFunc("POST /v1/taxonomy/{category}/rebuild", rt.rebuildCategory)
	return requestIDMiddleware(accessLogMiddleware(mux))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// uploadDocument accepts a multipart upload with optional declared metadata:
// doc_type, provider, facility, and encounter_date (RFC 3339 or YYYY-MM-DD).
func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	req := ports.UploadRequest{
		Filename: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		DocType:  r.FormValue("doc_type"),
		Provider: r.FormValue("provider"),
		Facility: r.FormValue("facility"),
	}
	if raw := strings.TrimSpace(r.FormValue("encounter_date")); raw != "" {
		parsed, err := parseEncounterDate(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid encounter_date"})
			return
		}
		req.EncounterDate = &parsed
	}

	doc, err := rt.ingestor.Upload(r.Context(), req, file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	doc, err := rt.reader.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) deleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := rt.admin.HardDelete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runPipeline enqueues by default; ?sync=true runs inline and reports the
// aggregated stage outcome.
func (rt *Router) runPipeline(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if r.URL.Query().Get("sync") == "true" {
		if err := rt.runner.RunForDocument(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
		return
	}

	if err := rt.runner.Enqueue(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "enqueued"})
}

func (rt *Router) rerunModule(w http.ResponseWriter, r *http.Request) {
	module := domain.ModuleName(r.PathValue("module"))
	if err := rt.runner.RerunModule(r.Context(), r.PathValue("id"), module); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (rt *Router) setActive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be {\"active\": true|false}"})
		return
	}
	if err := rt.admin.SetActive(r.Context(), r.PathValue("id"), *req.Active); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": *req.Active})
}

func (rt *Router) rebuildCategory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	if err := rt.rebuilder.RebuildCategory(r.Context(), r.PathValue("category"), limit); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func parseEncounterDate(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
