// Package api exposes HTTP handlers for the training log service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/btmullin/supertl2/internal/auth"
	"github.com/btmullin/supertl2/internal/domain"
	"github.com/btmullin/supertl2/internal/persistence"
	"github.com/btmullin/supertl2/internal/projection"
	"github.com/btmullin/supertl2/internal/reconcile"
	"github.com/btmullin/supertl2/internal/summary"
)

// StagingReader lists the raw per-source staging rows awaiting import.
type StagingReader interface {
	ListStravaStaging(ctx context.Context) ([]domain.StravaStagingRow, error)
	ListSportTracksStaging(ctx context.Context) ([]domain.SportTracksStagingRow, error)
}

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service      *domain.Service
	engine       *reconcile.Engine
	staging      StagingReader
	fallbackZone string
	priority     []domain.Source
	weekStart    time.Weekday
}

// HandlerConfig carries display and aggregation settings into the Handler.
type HandlerConfig struct {
	FallbackZone string
	Priority     []domain.Source
	WeekStart    time.Weekday
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, engine *reconcile.Engine, staging StagingReader, cfg HandlerConfig) *Handler {
	if cfg.FallbackZone == "" {
		cfg.FallbackZone = "UTC"
	}
	if len(cfg.Priority) == 0 {
		cfg.Priority = append([]domain.Source(nil), projection.DefaultPriority...)
	}
	return &Handler{
		service:      service,
		engine:       engine,
		staging:      staging,
		fallbackZone: cfg.FallbackZone,
		priority:     cfg.Priority,
		weekStart:    cfg.WeekStart,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/merge", h.mergeActivities)
	mux.HandleFunc("/v1/activities/", h.activityByID)
	mux.HandleFunc("/v1/annotations/", h.annotationBySourceID)
	mux.HandleFunc("/v1/calendar", h.calendar)
	mux.HandleFunc("/v1/seasons", h.seasons)
	mux.HandleFunc("/v1/seasons/", h.seasonSummary)
	mux.HandleFunc("/v1/workout-types", h.workoutTypes)
	mux.HandleFunc("/v1/categories", h.categories)
	mux.HandleFunc("/v1/import", h.runImport)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func requireRead(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(auth.ScopeLogRead) && !claims.HasScope(auth.ScopeLogWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope log:read required")
		return false
	}
	return true
}

func requireWrite(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(auth.ScopeLogWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope log:write required")
		return false
	}
	return true
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireRead(w, r) {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	activities, next, err := h.service.ListActivities(r.Context(), cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ActivityView, 0, len(activities))
	for _, activity := range activities {
		sources, err := h.service.SourcesFor(r.Context(), activity.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		items = append(items, toActivityView(activity, sources, h.priority, h.fallbackZone))
	}

	resp := ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) activityByID(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimPrefix(r.URL.Path, "/v1/activities/")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "activity id must be numeric")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireRead(w, r) {
		return
	}

	activity, sources, err := h.service.GetActivity(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrActivityNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "activity not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := ActivityDetailResponse{
		Activity: toActivityView(*activity, sources, h.priority, h.fallbackZone),
		Sources:  make([]SourceView, 0, len(sources)),
	}
	for _, src := range sources {
		resp.Sources = append(resp.Sources, toSourceView(src))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) mergeActivities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireWrite(w, r) {
		return
	}

	var req MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if req.KeepID <= 0 || req.DropID <= 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", "keep_id and drop_id are required")
		return
	}

	err := h.service.MergeActivities(r.Context(), req.KeepID, req.DropID)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, domain.ErrInvalidMerge):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrActivityNotFound):
		writeError(w, http.StatusNotFound, "not_found", "activity not found")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

func (h *Handler) annotationBySourceID(w http.ResponseWriter, r *http.Request) {
	sourceID := strings.TrimPrefix(r.URL.Path, "/v1/annotations/")
	if sourceID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing source activity id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getAnnotation(w, r, sourceID)
	case http.MethodPut:
		h.putAnnotation(w, r, sourceID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) getAnnotation(w http.ResponseWriter, r *http.Request, sourceID string) {
	if !requireRead(w, r) {
		return
	}
	annotation, err := h.service.GetAnnotation(r.Context(), sourceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toAnnotationView(*annotation))
}

func (h *Handler) putAnnotation(w http.ResponseWriter, r *http.Request, sourceID string) {
	if !requireWrite(w, r) {
		return
	}

	var req AnnotationView
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	annotation := domain.Annotation{
		SourceActivityID: sourceID,
		WorkoutTypeID:    req.WorkoutTypeID,
		CategoryID:       req.CategoryID,
		Notes:            req.Notes,
		Tags:             req.Tags,
		Training:         domain.TrainingFlag(req.Training),
	}
	if !annotation.Training.Valid() {
		writeError(w, http.StatusBadRequest, "validation_failed", "training must be 0, 1, or 2")
		return
	}

	if err := h.service.SaveAnnotation(r.Context(), annotation); err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	saved, err := h.service.GetAnnotation(r.Context(), sourceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toAnnotationView(*saved))
}

func (h *Handler) calendar(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireRead(w, r) {
		return
	}

	year := time.Now().UTC().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1900 || parsed > 9999 {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid year")
			return
		}
		year = parsed
	}

	overview, err := summary.CalendarYear(r.Context(), h.service, year, h.fallbackZone)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toCalendarResponse(overview))
}

func (h *Handler) seasons(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireRead(w, r) {
			return
		}
		seasons, err := h.service.ListSeasons(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		views := make([]SeasonView, 0, len(seasons))
		for _, s := range seasons {
			views = append(views, toSeasonView(s))
		}
		writeJSON(w, http.StatusOK, map[string][]SeasonView{"items": views})
	case http.MethodPost:
		if !requireWrite(w, r) {
			return
		}
		h.createSeason(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createSeason(w http.ResponseWriter, r *http.Request) {
	var req SeasonView
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "name is required")
		return
	}
	start, err := time.ParseInLocation(dateLayout, req.StartDate, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "start_date must be YYYY-MM-DD")
		return
	}
	end, err := time.ParseInLocation(dateLayout, req.EndDate, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "end_date must be YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "validation_failed", "end_date precedes start_date")
		return
	}

	season := domain.Season{Name: req.Name, StartDate: start, EndDate: end, IsActive: req.IsActive}
	id, err := h.service.CreateSeason(r.Context(), season)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	season.ID = id
	writeJSON(w, http.StatusCreated, toSeasonView(season))
}

func (h *Handler) seasonSummary(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/seasons/")
	rawID, tail, _ := strings.Cut(rest, "/")
	if tail != "summary" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "season id must be numeric")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireRead(w, r) {
		return
	}

	seasons, err := h.service.ListSeasons(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	var season *domain.Season
	for i := range seasons {
		if seasons[i].ID == id {
			season = &seasons[i]
			break
		}
	}
	if season == nil {
		writeError(w, http.StatusNotFound, "not_found", "season not found")
		return
	}

	out, err := summary.Season(r.Context(), h.service, *season, h.fallbackZone, h.weekStart)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toSeasonSummaryResponse(out))
}

func (h *Handler) workoutTypes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireRead(w, r) {
		return
	}
	types, err := h.service.ListWorkoutTypes(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	views := make([]WorkoutTypeView, 0, len(types))
	for _, t := range types {
		views = append(views, WorkoutTypeView{ID: t.ID, Name: t.Name, Description: t.Description})
	}
	writeJSON(w, http.StatusOK, map[string][]WorkoutTypeView{"items": views})
}

func (h *Handler) categories(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !requireRead(w, r) {
			return
		}
		categories, err := h.service.ListCategories(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		views := make([]CategoryView, 0, len(categories))
		for _, c := range categories {
			views = append(views, CategoryView{ID: c.ID, ParentID: c.ParentID, Name: c.Name})
		}
		writeJSON(w, http.StatusOK, map[string][]CategoryView{"items": views})
	case http.MethodPost:
		if !requireWrite(w, r) {
			return
		}
		h.createCategory(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryView
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "validation_failed", "name is required")
		return
	}

	category := domain.Category{ParentID: req.ParentID, Name: req.Name}
	id, err := h.service.CreateCategory(r.Context(), category)
	switch {
	case err == nil:
		category.ID = id
		writeJSON(w, http.StatusCreated, CategoryView{ID: id, ParentID: category.ParentID, Name: category.Name})
	case errors.Is(err, domain.ErrCategoryCycle):
		writeError(w, http.StatusBadRequest, "validation_failed", "parent chain would form a cycle")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// runImport drains both staging tables through the reconciliation engine.
// Reconciliation is idempotent, so re-triggering after a partial failure is
// always safe.
func (h *Handler) runImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireWrite(w, r) {
		return
	}

	var resp ImportResponse

	stravaRows, err := h.staging.ListStravaStaging(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	stravaSummary, err := h.engine.ReconcileStrava(r.Context(), stravaRows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	resp.Batches = append(resp.Batches, toImportSummaryView(stravaSummary))

	stRows, err := h.staging.ListSportTracksStaging(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	stSummary, err := h.engine.ReconcileSportTracks(r.Context(), stRows)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	resp.Batches = append(resp.Batches, toImportSummaryView(stSummary))

	writeJSON(w, http.StatusOK, resp)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
