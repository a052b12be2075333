package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/config"
	"github.com/ds124wfegd/WB_L3/parking/internal/broadcaster"
	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/database/memory"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/ds124wfegd/WB_L3/parking/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	router *gin.Engine
	repos  *database.Repositories
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repos := memory.NewStore().Repositories()
	settings := service.NewSettingsService(repos.Settings, config.TariffConfig{DayRate: 3, NightRate: 4, NightStart: 0, NightEnd: 6, ExchangeRate: 36})
	stats := service.NewStatsService(repos.Stats)

	h := Handlers{
		Lifecycle:     NewLifecycleHandler(service.NewLifecycleService(repos, nil, settings)),
		Stats:         NewStatsHandler(stats, broadcaster.New(repos.Feed, stats, broadcaster.Config{Heartbeat: time.Hour})),
		Admin:         NewAdminHandler(service.NewTicketService(repos.Tickets), service.NewStaffService(repos.Staff), service.NewHistoryService(repos.History), nil),
		Subscriptions: NewSubscriptionHandler(service.NewSubscriptionService(repos.Subscriptions, repos.Tickets)),
		Settings:      NewSettingsHandler(settings),
	}
	router := InitRoutes(h, RouterOptions{RequestTimeout: 5 * time.Second})

	for _, code := range []string{"T-01", "T-02"} {
		require.NoError(t, repos.Tickets.Create(context.Background(), &entity.Ticket{Code: code}))
	}
	return &testAPI{router: router, repos: repos}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var out map[string]interface{}
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func dataOf(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", body)
	return data
}

// TestRegisterVehicleStatusCodes проверяет коды ответов регистрации
func TestRegisterVehicleStatusCodes(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodPost, "/api/v1/vehicles", map[string]string{"plate": "abc123", "ticketCode": "T-01"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ABC123", dataOf(t, body)["plate"])

	tests := []struct {
		name   string
		body   interface{}
		status int
		reason string
	}{
		{"ticket taken", map[string]string{"plate": "XYZ999", "ticketCode": "T-01"}, http.StatusBadRequest, entity.ReasonTicketNotAvailable},
		{"ticket missing", map[string]string{"plate": "XYZ999", "ticketCode": "T-77"}, http.StatusNotFound, entity.ReasonTicketMissing},
		{"no plate", map[string]string{"ticketCode": "T-02"}, http.StatusBadRequest, entity.ReasonRequired},
		{"broken json", "not an object", http.StatusBadRequest, reasonInvalidBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := api.do(t, http.MethodPost, "/api/v1/vehicles", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.reason, body["reason"])
		})
	}
}

// TestLifecycleOverHTTP проходит весь цикл через HTTP
func TestLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodPost, "/api/v1/vehicles", map[string]string{"plate": "ABC123", "ticketCode": "T-01"})
	require.Equal(t, http.StatusOK, w.Code)
	vehicleID := dataOf(t, body)["id"].(string)

	w, _ = api.do(t, http.MethodPost, "/api/v1/payments", map[string]interface{}{"ticketCode": "T-01", "amount": 10, "method": "cash"})
	assert.Equal(t, http.StatusConflict, w.Code, "payment before confirmation")

	w, body = api.do(t, http.MethodPost, "/api/v1/parking/confirm", map[string]string{"ticketCode": "T-01"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, vehicleID, dataOf(t, body)["vehicleId"])

	w, _ = api.do(t, http.MethodPost, "/api/v1/parking/confirm", map[string]string{"ticketCode": "T-01"})
	assert.Equal(t, http.StatusNotFound, w.Code, "second confirmation")

	w, body = api.do(t, http.MethodPost, "/api/v1/payments", map[string]interface{}{"ticketCode": "T-01", "amount": 10, "method": "cash"})
	require.Equal(t, http.StatusOK, w.Code)
	paymentID := dataOf(t, body)["paymentId"].(string)

	w, _ = api.do(t, http.MethodPost, "/api/v1/vehicles/"+vehicleID+"/exit", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "exit before validation")

	w, body = api.do(t, http.MethodPost, "/api/v1/payments/validate", map[string]string{"paymentId": paymentID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, dataOf(t, body)["alreadyValidated"])

	w, body = api.do(t, http.MethodPost, "/api/v1/payments/validate", map[string]string{"paymentId": paymentID})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, dataOf(t, body)["alreadyValidated"])

	w, body = api.do(t, http.MethodPost, "/api/v1/vehicles/"+vehicleID+"/exit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "T-01", dataOf(t, body)["ticketCode"])

	w, body = api.do(t, http.MethodGet, "/api/v1/history/"+vehicleID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, dataOf(t, body)["isComplete"])

	ticket, err := api.repos.Tickets.GetByCode(context.Background(), "T-01")
	require.NoError(t, err)
	assert.Equal(t, entity.TicketAvailable, ticket.Status)
}

func TestQuickExitStatusCodes(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodPost, "/api/v1/vehicles", map[string]string{"plate": "ABC123", "ticketCode": "T-02"})
	require.Equal(t, http.StatusOK, w.Code)
	vehicleID := dataOf(t, body)["id"].(string)

	w, body = api.do(t, http.MethodPost, "/api/v1/vehicles/"+vehicleID+"/quick-exit", map[string]string{"justification": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, entity.ReasonNoteTooShort, body["reason"])

	w, _ = api.do(t, http.MethodPost, "/api/v1/vehicles/"+vehicleID+"/quick-exit", map[string]string{"justification": "customer left without paying"})
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/v1/vehicles/"+vehicleID+"/quick-exit", map[string]string{"justification": "customer left without paying"})
	assert.Equal(t, http.StatusNotFound, w.Code, "vehicle already gone")
}

func TestValidatePaymentBadID(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodPost, "/api/v1/payments/validate", map[string]string{"paymentId": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, entity.ReasonInvalidID, body["reason"])
}

func TestStatsSnapshot(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodGet, "/api/v1/admin/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, body["totalTickets"])
	assert.EqualValues(t, 2, body["availableTickets"])
	assert.EqualValues(t, 0, body["carsParked"])
}

// TestStatsStream проверяет, что поток отдает начальный снимок в формате SSE
func TestStatsStream(t *testing.T) {
	api := newTestAPI(t)
	srv := httptest.NewServer(api.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/admin/stats/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	var event, data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	assert.Equal(t, "stats", event)

	var stats entity.DashboardStats
	require.NoError(t, json.Unmarshal([]byte(data), &stats))
	assert.Equal(t, 2, stats.TotalTickets)
}

func TestAdminEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodPost, "/api/v1/tickets", map[string][]string{"codes": {"t-03", "T-04"}})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, body["data"], 2)

	w, _ = api.do(t, http.MethodPost, "/api/v1/tickets", map[string][]string{"codes": {"T-01"}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = api.do(t, http.MethodGet, "/api/v1/tickets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 4, body["meta"].(map[string]interface{})["total"])

	w, body = api.do(t, http.MethodPost, "/api/v1/staff", map[string]string{"firstName": "Ana", "lastName": "Diaz", "email": "Ana@Example.com", "role": "admin"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := dataOf(t, body)
	assert.NotEmpty(t, created["temporaryPassword"])
	staffID := created["staff"].(map[string]interface{})["id"].(string)

	w, _ = api.do(t, http.MethodDelete, "/api/v1/staff/"+staffID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodDelete, "/api/v1/staff/"+staffID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, body = api.do(t, http.MethodGet, "/api/v1/admin/notifications/failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disabled", body["meta"].(map[string]interface{})["queue"])

	w, _ = api.do(t, http.MethodGet, "/api/v1/history/summary", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/v1/subscriptions", map[string]string{"role": "user", "ticketCode": "T-99", "endpoint": "https://push.example/1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = api.do(t, http.MethodPost, "/api/v1/subscriptions", map[string]string{"role": "admin", "endpoint": "https://push.example/2"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w, _ = api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

// TestUpdateEndpoints проверяет маршруты PUT для автомобиля, сотрудника и настроек
func TestUpdateEndpoints(t *testing.T) {
	api := newTestAPI(t)

	w, body := api.do(t, http.MethodPost, "/api/v1/vehicles", map[string]string{"plate": "ABC123", "ticketCode": "T-01"})
	require.Equal(t, http.StatusOK, w.Code)
	vehicleID := dataOf(t, body)["id"].(string)

	w, body = api.do(t, http.MethodPost, "/api/v1/staff", map[string]string{"firstName": "Ana", "lastName": "Diaz", "email": "ana@example.com", "role": "admin"})
	require.Equal(t, http.StatusCreated, w.Code)
	anaID := dataOf(t, body)["staff"].(map[string]interface{})["id"].(string)
	w, _ = api.do(t, http.MethodPost, "/api/v1/staff", map[string]string{"firstName": "Luis", "lastName": "Rojas", "email": "luis@example.com", "role": "admin"})
	require.Equal(t, http.StatusCreated, w.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"vehicle plate", http.MethodPut, "/api/v1/vehicles/" + vehicleID, map[string]string{"plate": "xyz999"}, http.StatusOK},
		{"vehicle empty plate", http.MethodPut, "/api/v1/vehicles/" + vehicleID, map[string]string{"plate": " "}, http.StatusBadRequest},
		{"unknown vehicle", http.MethodPut, "/api/v1/vehicles/3f6d2a8e-1b7c-4e2a-9d41-7a0c5e9b2f10", map[string]string{"color": "blue"}, http.StatusNotFound},
		{"bad vehicle id", http.MethodPut, "/api/v1/vehicles/missing", map[string]string{"color": "blue"}, http.StatusBadRequest},
		{"staff duplicate email", http.MethodPut, "/api/v1/staff/" + anaID, map[string]string{"firstName": "Ana", "lastName": "Diaz", "email": "luis@example.com", "role": "admin"}, http.StatusBadRequest},
		{"staff update", http.MethodPut, "/api/v1/staff/" + anaID, map[string]string{"firstName": "Ana", "lastName": "Diaz", "email": "ana.diaz@example.com", "role": "operator"}, http.StatusOK},
		{"settings bad tariff", http.MethodPut, "/api/v1/settings", map[string]interface{}{"tariffs": map[string]interface{}{"dayRate": 0, "nightRate": 4, "exchangeRate": 36}}, http.StatusBadRequest},
		{"settings tariffs", http.MethodPut, "/api/v1/settings", map[string]interface{}{"tariffs": map[string]interface{}{"dayRate": 5, "nightRate": 6, "nightStart": 22, "nightEnd": 6, "exchangeRate": 40}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := api.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, w.Code, "body: %v", body)
		})
	}

	ticket, err := api.repos.Tickets.GetByCode(context.Background(), "T-01")
	require.NoError(t, err)
	assert.Equal(t, "XYZ999", ticket.VehicleSnapshot.Plate)

	w, body = api.do(t, http.MethodGet, "/api/v1/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	tariffs := dataOf(t, body)["tariffs"].(map[string]interface{})
	assert.EqualValues(t, 5, tariffs["dayRate"])
	assert.EqualValues(t, 22, tariffs["nightStart"])
}
