package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ds124wfegd/studio-booking/config"
	"github.com/ds124wfegd/studio-booking/internal/database/memory"
	"github.com/ds124wfegd/studio-booking/internal/entity"
	"github.com/ds124wfegd/studio-booking/internal/schedule"
	"github.com/ds124wfegd/studio-booking/internal/service"
	"github.com/ds124wfegd/studio-booking/pkg/kafka"
	"github.com/ds124wfegd/studio-booking/pkg/webhook"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
	Kind    entity.ErrorKind `json:"kind"`
	Error   string           `json:"error"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	slots := schedule.NewSlotFinder(schedule.NewCronExpander(), 0)
	// без очереди уведомления отбрасываются
	notifications := service.NewNotificationService(store, service.NewQueueAdapter(nil), kafka.NewMockProducer(), webhook.NewSender(nil, "", time.Second), 3)
	templates := service.NewTemplateService(store, slots)
	booking := config.BookingConfig{MaxAttempts: 3, TxTimeout: time.Second, ValidateSlots: true}
	allocations := service.NewAllocationService(store, slots, notifications, booking)
	reservations := service.NewReservationService(store, allocations, notifications, booking)
	bundles := service.NewBundleService(store, notifications, booking)
	ledger := service.NewLedgerService(store, booking)

	return InitRoutes(&Handlers{
		Templates:    NewTemplateHandler(templates, allocations),
		Allocations:  NewAllocationHandler(allocations, reservations),
		Reservations: NewReservationHandler(reservations),
		Bundles:      NewBundleHandler(bundles, ledger),
		Webhooks:     NewWebhookHandler(notifications),
	}, time.Second)
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (int, apiResponse) {
	t.Helper()

	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		var err error
		payload, err = json.Marshal(b)
		require.NoError(t, err)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w.Code, resp
}

func decode(t *testing.T, resp apiResponse, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

// TestReservationFlow проверяет полный цикл бронирования через HTTP API
func TestReservationFlow(t *testing.T) {
	r := newTestRouter(t)
	start := time.Date(2030, 5, 1, 18, 0, 0, 0, time.UTC)

	code, resp := do(t, r, http.MethodPost, "/api/v1/session-types", gin.H{
		"name": "spin", "max_consumers": 2, "default_duration_minutes": 45,
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var st entity.SessionType
	decode(t, resp, &st)

	code, resp = do(t, r, http.MethodPost, "/api/v1/templates", gin.H{
		"recurrence_expr": "0 18 * * *", "time_zone": "UTC", "session_type_id": st.ID,
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var tmpl entity.TimeSlotTemplate
	decode(t, resp, &tmpl)

	code, resp = do(t, r, http.MethodPost, "/api/v1/bundles", gin.H{
		"consumer_id": "c1",
		"items":       []gin.H{{"type": "SESSION", "quantity": 2}},
	})
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var bundle entity.BundleWithBalance
	decode(t, resp, &bundle)
	assert.Equal(t, 2, bundle.RemainingUses)

	booking := gin.H{
		"bundle_id":   bundle.ID,
		"template_id": tmpl.ID,
		"start_time":  start.Format(time.RFC3339),
		"consumer_id": "c1",
	}
	code, resp = do(t, r, http.MethodPost, "/api/v1/reservations", booking)
	require.Equal(t, http.StatusCreated, code, resp.Error)
	var res entity.Reservation
	decode(t, resp, &res)
	assert.Equal(t, entity.ReservationStatusConfirmed, res.Status)

	code, resp = do(t, r, http.MethodPost, "/api/v1/reservations", booking)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, entity.KindDuplicateBooking, resp.Kind)

	code, resp = do(t, r, http.MethodGet, "/api/v1/allocations/"+res.AllocationID, nil)
	require.Equal(t, http.StatusOK, code)
	var alloc entity.Allocation
	decode(t, resp, &alloc)
	assert.Equal(t, 1, alloc.Occupancy)

	code, resp = do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/allocations/%s/reservations", res.AllocationID), nil)
	require.Equal(t, http.StatusOK, code)
	var listed []entity.Reservation
	decode(t, resp, &listed)
	assert.Len(t, listed, 1)

	code, resp = do(t, r, http.MethodPost, "/api/v1/reservations/"+res.ID+"/cancel", gin.H{"reason": "sick"})
	require.Equal(t, http.StatusOK, code, resp.Error)
	decode(t, resp, &res)
	assert.Equal(t, entity.ReservationStatusCancelled, res.Status)

	code, resp = do(t, r, http.MethodPost, "/api/v1/reservations/"+res.ID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, entity.KindInvalidTransition, resp.Kind)

	code, resp = do(t, r, http.MethodGet, "/api/v1/bundles/"+bundle.ID, nil)
	require.Equal(t, http.StatusOK, code)
	decode(t, resp, &bundle)
	assert.Equal(t, 2, bundle.RemainingUses)

	code, resp = do(t, r, http.MethodGet, "/api/v1/bundles/"+bundle.ID+"/events", nil)
	require.Equal(t, http.StatusOK, code)
	var events []entity.BundleUsageEvent
	decode(t, resp, &events)
	require.Len(t, events, 2)
	assert.Equal(t, entity.UsageEventRefund, events[1].Type)

	from := start.Add(-time.Hour).Format(time.RFC3339)
	to := start.Add(47 * time.Hour).Format(time.RFC3339)
	code, resp = do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/templates/%s/slots?from=%s&to=%s", tmpl.ID, from, to), nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var slots []entity.Slot
	decode(t, resp, &slots)
	assert.Len(t, slots, 2)

	code, resp = do(t, r, http.MethodGet, fmt.Sprintf("/api/v1/templates/%s/allocations?from=%s&to=%s", tmpl.ID, from, to), nil)
	require.Equal(t, http.StatusOK, code, resp.Error)
	var allocs []entity.Allocation
	decode(t, resp, &allocs)
	assert.Len(t, allocs, 1)
}

func TestErrorMapping(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		kind   entity.ErrorKind
	}{
		{name: "missing reservation", method: http.MethodGet, path: "/api/v1/reservations/nope", status: http.StatusNotFound, kind: entity.KindNotFound},
		{name: "missing bundle", method: http.MethodPost, path: "/api/v1/bundles/nope/expire", status: http.StatusNotFound, kind: entity.KindNotFound},
		{name: "malformed json", method: http.MethodPost, path: "/api/v1/reservations", body: "{", status: http.StatusBadRequest, kind: entity.KindInvalidInput},
		{name: "missing bundle id", method: http.MethodPost, path: "/api/v1/reservations", body: gin.H{"consumer_id": "c1"}, status: http.StatusBadRequest, kind: entity.KindInvalidInput},
		{name: "bad window", method: http.MethodGet, path: "/api/v1/templates/x/slots?from=yesterday", status: http.StatusBadRequest, kind: entity.KindInvalidInput},
		{name: "unknown status", method: http.MethodPatch, path: "/api/v1/allocations/x/status", body: gin.H{"status": "OPEN"}, status: http.StatusBadRequest, kind: entity.KindInvalidInput},
		{name: "bad webhook", method: http.MethodPost, path: "/api/v1/webhooks", body: gin.H{"event_type": "NOPE", "target_url": "http://x", "secret": "s"}, status: http.StatusBadRequest, kind: entity.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := do(t, r, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.kind, resp.Kind)
			assert.False(t, resp.Success)
		})
	}
}

func TestRespondErrorHidesInternalErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)

	respondError(c, errors.New("pq: password authentication failed"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, entity.KindInternal, resp.Kind)
	assert.NotContains(t, resp.Error, "password")
}

func TestHealth(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}
