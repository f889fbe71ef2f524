package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/lambtrial/internal/domain/calendar"
	"github.com/mamadbah2/lambtrial/internal/domain/models"
	"github.com/mamadbah2/lambtrial/internal/observability"
	"github.com/mamadbah2/lambtrial/internal/repository/memory"
	"github.com/mamadbah2/lambtrial/internal/server/handlers"
	"github.com/mamadbah2/lambtrial/internal/service/export"
	"github.com/mamadbah2/lambtrial/internal/service/records"
	"github.com/mamadbah2/lambtrial/internal/service/reporting"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	store   *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cal, err := calendar.New(calendar.Boundaries{
		Arrival:    models.MustParseDate("2025-12-18"),
		TrialStart: models.MustParseDate("2025-12-24"),
		WeekOne:    models.MustParseDate("2025-12-31"),
		StudyStart: models.MustParseDate("2025-12-23"),
		StudyEnd:   models.MustParseDate("2026-02-04"),
	})
	require.NoError(t, err)
	metrics, err := observability.NewMetrics()
	require.NoError(t, err)

	store := memory.NewStore(models.Snapshot{})
	rec := records.NewService(store, cal, nil)
	rep := reporting.NewService(store, cal, metrics, time.UTC, nil)
	exp := export.NewService(store, nil, cal.Boundaries().StudyEnd, nil)

	engine := New(handlers.NewTrialHandler(rec, rep, exp, nil), nil, metrics, nil)
	return &testServer{t: t, handler: engine, store: store}
}

func (s *testServer) do(method, path string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lambtrial_http_requests_total{method="GET",route="/healthz",status="200"} 1`)

	rec = srv.do(http.MethodGet, "/webhook", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "webhook routes are absent when WhatsApp is disabled")
}

func TestAnimalLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(http.MethodPost, "/api/animals", map[string]any{
		"tag": "es001", "group": "A", "initialWeight": 20.5, "entryDate": "2025-12-18",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	animal := decode[models.Animal](t, rec)
	assert.Equal(t, "ES001", animal.Tag)

	rec = srv.do(http.MethodPost, "/api/animals", map[string]any{
		"tag": "ES001", "group": "B", "initialWeight": 21, "entryDate": "2025-12-18",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = srv.do(http.MethodPost, "/api/animals", map[string]any{
		"tag": "ES002", "group": "B", "initialWeight": 120, "entryDate": "2025-12-18",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = srv.do(http.MethodPost, "/api/animals", `{"tag":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodPost, "/api/animals/"+animal.ID+"/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[models.Animal](t, rec).Active)

	rec = srv.do(http.MethodPut, "/api/animals/"+animal.ID, map[string]any{
		"tag": "ES001", "group": "B", "initialWeight": 20, "entryDate": "2025-12-18",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[models.Animal](t, rec)
	assert.Equal(t, models.GroupB, updated.Group)
	assert.False(t, updated.Active)

	rec = srv.do(http.MethodDelete, "/api/animals/"+animal.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = srv.do(http.MethodDelete, "/api/animals/"+animal.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWeighingConfirmationFlow(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(http.MethodPost, "/api/animals", map[string]any{
		"tag": "ES001", "group": "A", "initialWeight": 25, "entryDate": "2025-12-18",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := map[string]any{"tag": "ES001", "date": "2026-01-07", "weight": 21}
	rec = srv.do(http.MethodPost, "/api/weighings", body)
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode[struct {
		Error  string                 `json:"error"`
		Result records.WeighingResult `json:"result"`
	}](t, rec)
	assert.True(t, conflict.Result.AbnormalLoss)
	assert.InDelta(t, 16.0, conflict.Result.LossPercent, 1e-9)

	body["confirmed"] = true
	rec = srv.do(http.MethodPost, "/api/weighings", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(http.MethodGet, "/api/weighings?tag=es001&week=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decode[[]models.WeighingRow](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0].Group)
	require.NotNil(t, rows[0].Week)
	assert.Equal(t, 2, *rows[0].Week)

	rec = srv.do(http.MethodGet, "/api/weighings?week=two", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodDelete, "/api/weighings/"+rows[0].ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestFeedAndReports(t *testing.T) {
	srv := newTestServer(t)
	for _, tag := range []string{"ES001", "ES002"} {
		rec := srv.do(http.MethodPost, "/api/animals", map[string]any{
			"tag": tag, "group": "A", "initialWeight": 20, "entryDate": "2025-12-18",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		rec = srv.do(http.MethodPost, "/api/weighings", map[string]any{"tag": tag, "date": "2026-01-07", "weight": 24})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	feedBody := map[string]any{"group": "A", "date": "2026-01-07", "feedOffered": 20, "feedRefused": 4}
	rec := srv.do(http.MethodPost, "/api/feed", feedBody)
	assert.Equal(t, http.StatusCreated, rec.Code)
	rec = srv.do(http.MethodPost, "/api/feed", feedBody)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[struct {
		Replaced bool `json:"replaced"`
	}](t, rec).Replaced)

	feedBody["feedRefused"] = 30
	rec = srv.do(http.MethodPost, "/api/feed", feedBody)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = srv.do(http.MethodGet, "/api/feed?group=a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.FeedRecord](t, rec), 1)

	rec = srv.do(http.MethodGet, "/api/reports/groups?asOf=2026-01-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	groups := decode[[]models.GroupSummary](t, rec)
	require.Len(t, groups, 2)
	assert.Equal(t, 2, groups[0].Count)
	assert.InDelta(t, 16.0, groups[0].TotalNetFeed, 1e-9)
	assert.True(t, groups[1].NoData)

	rec = srv.do(http.MethodGet, "/api/reports/conversion", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	conversion := decode[[]models.ConversionRow](t, rec)
	require.NotNil(t, conversion[0].Index)
	assert.InDelta(t, 2.0, *conversion[0].Index, 1e-9)
	assert.Nil(t, conversion[1].Index)

	rec = srv.do(http.MethodGet, "/api/reports/animals?asOf=2026-01-07", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.AnimalGrowth](t, rec), 2)

	rec = srv.do(http.MethodGet, "/api/reports/animals?asOf=07-01-2026", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodGet, "/api/reports/overview", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decode[models.Overview](t, rec).ActiveAnimals)
}

func TestIncidentsAndCalendar(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(http.MethodPost, "/api/animals", map[string]any{
		"tag": "ES001", "group": "B", "initialWeight": 20, "entryDate": "2025-12-18",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(http.MethodPost, "/api/incidents", map[string]any{
		"scope": "group_b", "date": "2026-01-12", "kind": "treatment",
		"medication": map[string]any{"name": "Oxytetracycline", "durationDays": 5},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = srv.do(http.MethodPost, "/api/incidents", map[string]any{
		"scope": "group_a", "date": "2026-01-12", "kind": "symptom",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = srv.do(http.MethodGet, "/api/calendar/day?date=2026-01-14", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	day := decode[models.DayOverview](t, rec)
	assert.True(t, day.Treatment)
	require.Len(t, day.Treatments, 1)
	assert.Equal(t, 3, day.Treatments[0].Day)

	rec = srv.do(http.MethodGet, "/api/calendar/week?date=2025-12-20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"label":"Arrival"`)
	assert.Contains(t, rec.Body.String(), `"week":null`)

	rec = srv.do(http.MethodGet, "/api/calendar/month?year=2026&month=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.DayOverview](t, rec), 31)

	rec = srv.do(http.MethodGet, "/api/calendar/month?month=13", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(http.MethodGet, "/api/incidents?tag=es001", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]models.Incident](t, rec), 1)
}

func TestBackupAndExport(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(http.MethodPost, "/api/animals", map[string]any{
		"tag": "ES001", "group": "A", "initialWeight": 20, "entryDate": "2025-12-18",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = srv.do(http.MethodGet, "/api/backup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "backup_lambtrial_")
	backup := rec.Body.String()
	assert.Contains(t, backup, `"version": "2.0"`)

	rec = srv.do(http.MethodPost, "/api/backup", `{"animals":[]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = srv.do(http.MethodPost, "/api/backup", strings.Replace(backup, "ES001", "ES777", 1))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	snap, err := srv.store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Animals, 1)
	assert.Equal(t, "ES777", snap.Animals[0].Tag)

	rec = srv.do(http.MethodPost, "/api/export/sheets", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
