package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/appointment-engine/internal/app"
	"github.com/jwalitptl/appointment-engine/internal/config"
	"github.com/jwalitptl/appointment-engine/internal/model"
	"github.com/jwalitptl/appointment-engine/pkg/auth"
	"github.com/jwalitptl/appointment-engine/pkg/errors"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
	"github.com/jwalitptl/appointment-engine/pkg/metrics"
)

const secret = "router-test-secret"

var (
	patient   = model.Actor{UserID: 7, Role: model.RolePatient}
	doctor    = model.Actor{UserID: 3, Role: model.RoleDoctor}
	scheduler = model.Actor{UserID: 1, Role: model.RoleScheduler}
	admin     = model.Actor{UserID: 99, Role: model.RoleAdmin}
)

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    errors.ErrorCode `json:"code"`
		Message string           `json:"message"`
		Details []struct {
			Field string `json:"field"`
		} `json:"details"`
	} `json:"error"`
}

type testServer struct {
	t        *testing.T
	engine   *gin.Engine
	tokens   auth.JWTService
	stores   *app.Stores
	gatherer *prometheus.Registry
}

func newTestServer(t *testing.T, mutate ...func(*config.Config)) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg, err := config.Defaults()
	require.NoError(t, err)
	cfg.JWT.Secret = secret
	cfg.Database.Driver = "memory"
	cfg.RateLimit.Enabled = false
	for _, m := range mutate {
		m(cfg)
	}

	stores := app.MemoryStores()
	reg := prometheus.NewRegistry()
	m := metrics.NewMetrics("test", "", reg)
	svc, err := app.NewServices(cfg, stores, logger.Nop(), m)
	require.NoError(t, err)

	return &testServer{
		t:        t,
		engine:   app.NewRouter(cfg, stores, svc, m, reg).Engine(),
		tokens:   auth.NewJWTService(secret, cfg.JWT.Issuer, time.Hour),
		stores:   stores,
		gatherer: reg,
	}
}

func (s *testServer) do(actor *model.Actor, method, path string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := s.tokens.GenerateToken(*actor)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (s *testServer) book(actor model.Actor, body gin.H) *model.Appointment {
	s.t.Helper()
	w, resp := s.do(&actor, http.MethodPost, "/api/v1/appointments", body)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var a model.Appointment
	require.NoError(s.t, json.Unmarshal(resp.Data, &a))
	return &a
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)

	w, _ := s.do(nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(nil, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(nil, http.MethodGet, "/api/v1/appointments", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, errors.ErrUnauthorized, resp.Error.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAvailableSlotsDefaultDay(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(&patient, http.MethodGet, "/api/v1/appointments/doctor/3/available-slots?date=2024-06-10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	availability := decode[model.Availability](t, resp.Data)
	assert.Len(t, availability.Slots, 18)
	assert.Equal(t, "08:00", availability.Slots[0].Time)
	assert.Equal(t, "16:30", availability.Slots[17].Time)
	assert.False(t, availability.Provisional)

	w, resp = s.do(&patient, http.MethodGet, "/api/v1/appointments/doctor/3/available-slots", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.ErrBadRequest, resp.Error.Code)
}

func TestBookThenSlotDisappears(t *testing.T) {
	s := newTestServer(t)

	created := s.book(patient, gin.H{"doctor_id": 3, "date": "2024-06-10", "time": "09:00"})
	assert.Equal(t, model.AppointmentStatusScheduled, created.Status)
	assert.Equal(t, int64(7), created.PatientID)

	_, resp := s.do(&patient, http.MethodGet, "/api/v1/appointments/doctor/3/available-slots?date=2024-06-10", nil)
	availability := decode[model.Availability](t, resp.Data)
	assert.False(t, availability.IsAvailable("09:00"))
	assert.Len(t, availability.Available(), 17)

	w, resp := s.do(&scheduler, http.MethodPost, "/api/v1/appointments", gin.H{"patient_id": 8, "doctor_id": 3, "date": "2024-06-10", "time": "09:00"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errors.ErrSlotNoLongerAvailable, resp.Error.Code)
}

func TestBookValidation(t *testing.T) {
	s := newTestServer(t)

	w, resp := s.do(&patient, http.MethodPost, "/api/v1/appointments", gin.H{"doctor_id": 3, "date": "10/06/2024", "time": "9am"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, resp.Error)
	fields := []string{}
	for _, d := range resp.Error.Details {
		fields = append(fields, d.Field)
	}
	assert.ElementsMatch(t, []string{"date", "time"}, fields)

	w, _ = s.do(&doctor, http.MethodPost, "/api/v1/appointments", gin.H{"patient_id": 7, "doctor_id": 3, "date": "2024-06-10", "time": "09:00"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	created := s.book(patient, gin.H{"doctor_id": 3, "date": "2024-06-10", "time": "10:00"})
	path := "/api/v1/appointments/" + itoa(created.ID)

	w, resp := s.do(&doctor, http.MethodPatch, path+"/status", gin.H{"status": "in_progress"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, errors.ErrInvalidTransition, resp.Error.Code)

	for _, status := range []string{"confirmed", "in_progress", "completed"} {
		w, resp = s.do(&doctor, http.MethodPatch, path+"/status", gin.H{"status": status})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, model.AppointmentStatus(status), decode[model.Appointment](t, resp.Data).Status)
	}

	w, resp = s.do(&patient, http.MethodPatch, path+"/status", gin.H{"status": "cancelled"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errors.ErrTerminalState, resp.Error.Code)

	w, resp = s.do(&doctor, http.MethodGet, path+"/transitions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"allowed":[]}`, string(resp.Data))

	w, _ = s.do(&doctor, http.MethodPatch, path+"/status", gin.H{"status": "archived"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestOwnershipAndDelete(t *testing.T) {
	s := newTestServer(t)
	created := s.book(patient, gin.H{"doctor_id": 3, "date": "2024-06-10", "time": "11:00", "reason": "checkup"})
	path := "/api/v1/appointments/" + itoa(created.ID)

	stranger := model.Actor{UserID: 8, Role: model.RolePatient}
	w, _ := s.do(&stranger, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp := s.do(&patient, http.MethodPatch, path, gin.H{"symptoms": "cough"})
	require.Equal(t, http.StatusOK, w.Code)
	updated := decode[model.Appointment](t, resp.Data)
	require.NotNil(t, updated.Symptoms)
	assert.Equal(t, "cough", *updated.Symptoms)

	w, _ = s.do(&patient, http.MethodPatch, path, gin.H{"diagnosis": "flu"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(&scheduler, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(&admin, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, resp = s.do(&admin, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, errors.ErrNotFound, resp.Error.Code)

	w, _ = s.do(&admin, http.MethodGet, "/api/v1/appointments/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListingsAndSummary(t *testing.T) {
	s := newTestServer(t)
	first := s.book(patient, gin.H{"doctor_id": 3, "date": "2024-06-10", "time": "09:00"})
	s.book(patient, gin.H{"doctor_id": 4, "date": "2024-06-10", "time": "09:00"})
	s.book(scheduler, gin.H{"patient_id": 8, "doctor_id": 3, "date": "2024-06-11", "time": "09:00"})

	w, _ := s.do(&patient, http.MethodPatch, "/api/v1/appointments/"+itoa(first.ID)+"/status", gin.H{"status": "cancelled"})
	require.Equal(t, http.StatusOK, w.Code)

	_, resp := s.do(&patient, http.MethodGet, "/api/v1/appointments", nil)
	assert.Len(t, decode[[]model.Appointment](t, resp.Data), 2)

	_, resp = s.do(&admin, http.MethodGet, "/api/v1/appointments", nil)
	assert.Len(t, decode[[]model.Appointment](t, resp.Data), 3)

	_, resp = s.do(&patient, http.MethodGet, "/api/v1/appointments/patient/7?view=grouped", nil)
	view := decode[model.PatientView](t, resp.Data)
	assert.Len(t, view.Upcoming, 1)
	assert.Len(t, view.Missed, 1)
	assert.Empty(t, view.History)

	w, _ = s.do(&patient, http.MethodGet, "/api/v1/appointments/patient/8", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	_, resp = s.do(&doctor, http.MethodGet, "/api/v1/appointments/doctor/3", nil)
	assert.Len(t, decode[[]model.Appointment](t, resp.Data), 2)

	w, resp = s.do(&doctor, http.MethodGet, "/api/v1/appointments/doctor/3/summary?date=2024-06-10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[map[model.AppointmentStatus]int](t, resp.Data)
	assert.Equal(t, 1, summary[model.AppointmentStatusCancelled])
	assert.Equal(t, 0, summary[model.AppointmentStatusScheduled])

	w, _ = s.do(&doctor, http.MethodGet, "/api/v1/appointments/doctor/4/summary", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit.Enabled = true
		cfg.RateLimit.RequestsPerSecond = 0.001
		cfg.RateLimit.Burst = 2
	})

	for i := 0; i < 2; i++ {
		w, _ := s.do(nil, http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	w, resp := s.do(nil, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, errors.ErrRateLimited, resp.Error.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.book(patient, gin.H{"doctor_id": 3, "date": "2024-06-10", "time": "09:00"})

	w, _ := s.do(nil, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `test_bookings_total{result="booked"} 1`)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}

func TestOutboxRecordsEvents(t *testing.T) {
	s := newTestServer(t)
	created := s.book(patient, gin.H{"doctor_id": 3, "date": "2024-06-10", "time": "09:00"})
	s.do(&doctor, http.MethodPatch, "/api/v1/appointments/"+itoa(created.ID)+"/status", gin.H{"status": "confirmed"})

	pending, err := s.stores.Outbox.GetPendingEvents(context.Background(), 10)
	require.NoError(t, err)
	types := []string{}
	for _, e := range pending {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []string{model.EventAppointmentBooked, "appointment.confirmed"}, types)
}
