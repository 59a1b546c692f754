package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ds124wfegd/spa-booking/config"
	"github.com/ds124wfegd/spa-booking/internal/database"
	"github.com/ds124wfegd/spa-booking/internal/database/memory"
	"github.com/ds124wfegd/spa-booking/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   ErrorBody       `json:"error"`
}

func newRouter(t *testing.T) (*gin.Engine, *database.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	svc := service.NewServices(service.Deps{
		Store: store,
		Config: &config.Config{
			Booking:    config.BookingConfig{ResponseWindow: 30 * time.Minute},
			Commission: config.CommissionConfig{Deadline: 5 * time.Hour, ReminderAfter: 2 * time.Hour, UrgentAfter: 150 * time.Minute, Rates: map[string]float64{"pro": 0.3}},
			Chat:       config.ChatConfig{WarningThreshold: 3, RestrictThreshold: 5, MaxMessageLength: 2000},
			Review:     config.ReviewConfig{LinkSecret: "s", LinkTTL: time.Hour, BaseURL: "https://spa.test"},
			Discount:   config.DiscountConfig{MaxPercentage: 50, MaxValidDays: 90},
			Worker:     config.WorkerConfig{BatchSize: 10},
		},
	})

	router := InitRoutes(Handlers{
		Booking:    NewBookingHandler(svc.Booking),
		Commission: NewCommissionHandler(svc.Commission),
		Chat:       NewChatHandler(svc.Chat),
		Review:     NewReviewHandler(svc.Review),
		Account:    NewAccountHandler(svc.Account, svc.Chat),
		Admin:      NewAdminHandler(nil, nil),
	}, 5*time.Second)
	return router, store
}

func do(t *testing.T, router *gin.Engine, method, path, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

const createBody = `{"customer_id":"cust-1","customer_name":"Ayu","provider_id":"prov-1","provider_type":"therapist","provider_tier":"pro","service_type":"balinese","service_duration":60,"price":"200000"}`

func createBooking(t *testing.T, router *gin.Engine) string {
	t.Helper()
	code, env := do(t, router, http.MethodPost, "/api/v1/bookings", createBody)
	require.Equal(t, http.StatusCreated, code)
	require.True(t, env.Success)

	var b struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.Equal(t, "pending", b.Status)
	return b.ID
}

func TestHealth(t *testing.T) {
	router, _ := newRouter(t)
	code, env := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
}

func TestErrorMapping(t *testing.T) {
	router, _ := newRouter(t)
	id := createBooking(t, router)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"malformed body", http.MethodPost, "/api/v1/bookings", `{"price":`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing fields", http.MethodPost, "/api/v1/bookings", `{}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown booking", http.MethodGet, "/api/v1/bookings/nope", "", http.StatusNotFound, "BOOKING_NOT_FOUND"},
		{"confirm before completion", http.MethodPost, "/api/v1/functions/confirmPaymentReceived", `{"booking_id":"` + id + `"}`, http.StatusConflict, "INVALID_TRANSITION"},
		{"bad decision", http.MethodPost, "/api/v1/bookings/" + id + "/respond", `{"decision":"maybe"}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown review link", http.MethodGet, "/api/v1/reviews/links/abc", "", http.StatusNotFound, "REVIEW_LINK_NOT_FOUND"},
		{"duplicate booking", http.MethodPost, "/api/v1/bookings", createBody, http.StatusConflict, "DUPLICATE_BOOKING"},
		{"unknown discount", http.MethodGet, "/api/v1/discounts/SPA-X", "", http.StatusNotFound, "CODE_NOT_FOUND"},
		{"bad listing role", http.MethodGet, "/api/v1/accounts/cust-1/bookings?role=admin", "", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"unknown code", http.MethodPost, "/api/v1/functions/validateDiscount", `{"code":"SPA-X","booking_id":"` + id + `"}`, http.StatusNotFound, "CODE_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, router, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, status)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestChatFlow(t *testing.T) {
	router, store := newRouter(t)
	id := createBooking(t, router)

	room, err := store.Chat.GetRoomByBooking(context.Background(), id)
	require.NoError(t, err)

	send := func(content string) (int, envelope) {
		body, _ := json.Marshal(map[string]string{
			"room_id":     room.ID,
			"sender_id":   "cust-1",
			"sender_type": "customer",
			"content":     content,
		})
		return do(t, router, http.MethodPost, "/api/v1/functions/sendChatMessage", string(body))
	}

	status, env := send("Is 4 pm fine?")
	assert.Equal(t, http.StatusCreated, status)
	assert.True(t, env.Success)

	status, env = send("my instagram is @ayu.spa")
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "CONTENT_VIOLATION", env.Error.Code)

	status, env = do(t, router, http.MethodGet, "/api/v1/chat/rooms/"+room.ID+"/messages?user_id=cust-1", "")
	require.Equal(t, http.StatusOK, status)
	var msgs []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Is 4 pm fine?", msgs[0]["content"])

	status, _ = do(t, router, http.MethodGet, "/api/v1/chat/rooms/"+room.ID+"/messages?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestRestrictedAccountIsForbidden(t *testing.T) {
	router, store := newRouter(t)
	id := createBooking(t, router)
	room, err := store.Chat.GetRoomByBooking(context.Background(), id)
	require.NoError(t, err)

	body := `{"room_id":"` + room.ID + `","sender_id":"cust-1","sender_type":"customer","content":"call 081234567890"}`
	var status int
	var env envelope
	for i := 0; i < 5; i++ {
		status, env = do(t, router, http.MethodPost, "/api/v1/functions/sendChatMessage", body)
	}
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "ACCOUNT_RESTRICTED", env.Error.Code)

	status, env = do(t, router, http.MethodGet, "/api/v1/accounts/cust-1", "")
	require.Equal(t, http.StatusOK, status)
	assert.True(t, strings.Contains(string(env.Data), `"restricted":true`))

	status, _ = do(t, router, http.MethodPost, "/api/v1/admin/accounts/cust-1/clear-restriction", "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, router, http.MethodPost, "/api/v1/functions/sendChatMessage",
		`{"room_id":"`+room.ID+`","sender_id":"cust-1","sender_type":"customer","content":"sorry"}`)
	assert.Equal(t, http.StatusCreated, status)
}

func TestAccountViews(t *testing.T) {
	router, _ := newRouter(t)
	id := createBooking(t, router)

	status, env := do(t, router, http.MethodGet, "/api/v1/accounts/prov-1/bookings?role=provider", "")
	require.Equal(t, http.StatusOK, status)
	var bookings []map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &bookings))
	require.Len(t, bookings, 1)
	assert.Equal(t, id, bookings[0]["id"])

	status, env = do(t, router, http.MethodGet, "/api/v1/accounts/prov-1", "")
	require.Equal(t, http.StatusOK, status)
	var account map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Data, &account))
	assert.Contains(t, account, "average_rating")
	assert.Contains(t, account, "restricted")
}

func TestQueueStatsWithoutQueue(t *testing.T) {
	router, _ := newRouter(t)
	status, env := do(t, router, http.MethodGet, "/api/v1/admin/queue/stats", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(env.Data), `"queue_enabled":false`)
}
