package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/btmullin/supertl2/internal/auth"
	"github.com/btmullin/supertl2/internal/domain"
)

type mockActivityRepo struct {
	activities map[int64]domain.Activity
	sources    map[int64][]domain.ActivitySource
	merged     [][2]int64
}

func (m *mockActivityRepo) Get(_ context.Context, id int64) (*domain.Activity, error) {
	if a, ok := m.activities[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *mockActivityRepo) Sources(_ context.Context, id int64) ([]domain.ActivitySource, error) {
	return m.sources[id], nil
}

func (m *mockActivityRepo) List(_ context.Context, _ *domain.Cursor, limit int) ([]domain.Activity, *domain.Cursor, error) {
	var out []domain.Activity
	for _, a := range m.activities {
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil, nil
}

func (m *mockActivityRepo) ListTrainingBetween(context.Context, time.Time, time.Time) ([]domain.Activity, error) {
	return nil, nil
}

func (m *mockActivityRepo) Merge(_ context.Context, keepID, dropID int64) error {
	m.merged = append(m.merged, [2]int64{keepID, dropID})
	delete(m.activities, dropID)
	return nil
}

type mockAnnotationRepo struct {
	stored map[string]domain.Annotation
}

func (m *mockAnnotationRepo) Get(_ context.Context, id string) (*domain.Annotation, error) {
	if a, ok := m.stored[id]; ok {
		return &a, nil
	}
	return nil, nil
}

func (m *mockAnnotationRepo) Upsert(_ context.Context, a domain.Annotation) error {
	if m.stored == nil {
		m.stored = make(map[string]domain.Annotation)
	}
	m.stored[a.SourceActivityID] = a
	return nil
}

func (m *mockAnnotationRepo) RepairLinks(context.Context) (int64, error) { return 0, nil }

type mockLookupRepo struct{}

func (mockLookupRepo) ListWorkoutTypes(context.Context) ([]domain.WorkoutType, error) {
	return []domain.WorkoutType{{ID: 1, Name: "Distance"}}, nil
}
func (mockLookupRepo) ListCategories(context.Context) ([]domain.Category, error) { return nil, nil }
func (mockLookupRepo) CreateCategory(context.Context, domain.Category) (int64, error) {
	return 1, nil
}
func (mockLookupRepo) ListSeasons(context.Context) ([]domain.Season, error) { return nil, nil }
func (mockLookupRepo) CreateSeason(context.Context, domain.Season) (int64, error) {
	return 1, nil
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func testHandler(activities *mockActivityRepo, annotations *mockAnnotationRepo) *Handler {
	service := domain.NewService(activities, annotations, mockLookupRepo{})
	return NewHandler(service, nil, nil, HandlerConfig{FallbackZone: "UTC", WeekStart: time.Monday})
}

func withScopes(r *http.Request, scopes ...string) *http.Request {
	claimScopes := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		claimScopes[s] = struct{}{}
	}
	claims := &auth.Claims{
		Subject:   "tester",
		Scopes:    claimScopes,
		ExpiresAt: time.Now().Add(time.Hour),
	}
	return r.WithContext(auth.WithClaims(r.Context(), claims))
}

func TestActivityDetailProjectsBestValues(t *testing.T) {
	start := time.Date(2025, time.January, 15, 5, 30, 0, 0, time.UTC)
	activities := &mockActivityRepo{
		activities: map[int64]domain.Activity{
			7: {
				ID:           7,
				StartTimeUTC: start,
				Name:         "Evening Run",
				Sport:        "run",
				TZName:       "America/Chicago",
			},
		},
		sources: map[int64][]domain.ActivitySource{
			7: {
				{Source: domain.SourceStrava, SourceActivityID: "111", DistanceM: floatPtr(10000)},
				{Source: domain.SourceSportTracks, SourceActivityID: "st-1", DistanceM: floatPtr(10050), ElapsedTimeS: intPtr(3600)},
			},
		},
	}
	handler := testHandler(activities, &mockAnnotationRepo{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := withScopes(httptest.NewRequest(http.MethodGet, "/v1/activities/7", nil), auth.ScopeLogRead)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp ActivityDetailResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if resp.Activity.DistanceM == nil || *resp.Activity.DistanceM != 10000 {
		t.Fatalf("expected Strava distance 10000, got %v", resp.Activity.DistanceM)
	}
	if resp.Activity.ElapsedTimeS == nil || *resp.Activity.ElapsedTimeS != 3600 {
		t.Fatalf("expected SportTracks elapsed 3600, got %v", resp.Activity.ElapsedTimeS)
	}
	if resp.Activity.LocalDate != "2025-01-14" {
		t.Fatalf("expected local date 2025-01-14, got %q", resp.Activity.LocalDate)
	}
	if !resp.Activity.HasStrava || !resp.Activity.HasSportTracks {
		t.Fatalf("expected both coverage flags set")
	}
	if len(resp.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(resp.Sources))
	}
}

func TestActivityDetailNotFound(t *testing.T) {
	handler := testHandler(&mockActivityRepo{}, &mockAnnotationRepo{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := withScopes(httptest.NewRequest(http.MethodGet, "/v1/activities/99", nil), auth.ScopeLogRead)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestListActivitiesRequiresReadScope(t *testing.T) {
	handler := testHandler(&mockActivityRepo{}, &mockAnnotationRepo{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := withScopes(httptest.NewRequest(http.MethodGet, "/v1/activities", nil)) // no scopes
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestAnnotationDefaultsToUnknown(t *testing.T) {
	handler := testHandler(&mockActivityRepo{}, &mockAnnotationRepo{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	req := withScopes(httptest.NewRequest(http.MethodGet, "/v1/annotations/12345", nil), auth.ScopeLogRead)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp AnnotationView
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Training != int(domain.TrainingUnknown) {
		t.Fatalf("expected training unknown (2), got %d", resp.Training)
	}
	if resp.CanonicalActivityID != nil {
		t.Fatalf("expected no canonical link on fresh annotation")
	}
}

func TestPutAnnotationRoundTrip(t *testing.T) {
	annotations := &mockAnnotationRepo{}
	handler := testHandler(&mockActivityRepo{}, annotations)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	body, _ := json.Marshal(AnnotationView{
		Notes:    "Threshold intervals",
		Tags:     []string{"intervals", "tempo"},
		Training: 1,
	})
	req := withScopes(httptest.NewRequest(http.MethodPut, "/v1/annotations/12345", bytes.NewReader(body)), auth.ScopeLogWrite)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	stored := annotations.stored["12345"]
	if stored.Training != domain.TrainingYes {
		t.Fatalf("expected training yes, got %d", stored.Training)
	}
	if len(stored.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %v", stored.Tags)
	}
}

func TestPutAnnotationRejectsBadTrainingFlag(t *testing.T) {
	handler := testHandler(&mockActivityRepo{}, &mockAnnotationRepo{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	body, _ := json.Marshal(AnnotationView{Training: 9})
	req := withScopes(httptest.NewRequest(http.MethodPut, "/v1/annotations/12345", bytes.NewReader(body)), auth.ScopeLogWrite)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMergeActivities(t *testing.T) {
	activities := &mockActivityRepo{
		activities: map[int64]domain.Activity{
			1: {ID: 1, StartTimeUTC: time.Now().UTC()},
			2: {ID: 2, StartTimeUTC: time.Now().UTC()},
		},
	}
	handler := testHandler(activities, &mockAnnotationRepo{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	body, _ := json.Marshal(MergeRequest{KeepID: 1, DropID: 2})
	req := withScopes(httptest.NewRequest(http.MethodPost, "/v1/activities/merge", bytes.NewReader(body)), auth.ScopeLogWrite)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(activities.merged) != 1 || activities.merged[0] != [2]int64{1, 2} {
		t.Fatalf("unexpected merge calls: %v", activities.merged)
	}
}

func TestMergeRejectsSelfMerge(t *testing.T) {
	activities := &mockActivityRepo{activities: map[int64]domain.Activity{1: {ID: 1}}}
	handler := testHandler(activities, &mockAnnotationRepo{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	body, _ := json.Marshal(MergeRequest{KeepID: 1, DropID: 1})
	req := withScopes(httptest.NewRequest(http.MethodPost, "/v1/activities/merge", bytes.NewReader(body)), auth.ScopeLogWrite)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestMergeRequiresWriteScope(t *testing.T) {
	handler := testHandler(&mockActivityRepo{}, &mockAnnotationRepo{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	body, _ := json.Marshal(MergeRequest{KeepID: 1, DropID: 2})
	req := withScopes(httptest.NewRequest(http.MethodPost, "/v1/activities/merge", bytes.NewReader(body)), auth.ScopeLogRead)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestHealthzNeedsNoAuth(t *testing.T) {
	handler := testHandler(&mockActivityRepo{}, &mockAnnotationRepo{})
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
