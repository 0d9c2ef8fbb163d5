package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"peerline/internal/core/domain"

	"github.com/gin-gonic/gin"
)

type fakeTippingService struct {
	record *domain.TipRecord
	total  int64
	err    error

	sendCalls int
}

func (s *fakeTippingService) SendTip(ctx context.Context, recipient domain.ParticipantID, key domain.ChannelKey, amount int64) (*domain.TipRecord, error) {
	s.sendCalls++
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

func (s *fakeTippingService) GetTotal(ctx context.Context, recipient domain.ParticipantID, key domain.ChannelKey) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.total, nil
}

func newTipRouter(svc *fakeTippingService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewTipHandler(svc).SetupRoutes(router, passthroughAuth)
	return router
}

func TestTipHandler_SendTip(t *testing.T) {
	svc := &fakeTippingService{
		record: &domain.TipRecord{
			ID:          "t1",
			RecipientID: "bob",
			ChannelKey:  "alice|bob",
			Amount:      25,
		},
	}
	router := newTipRouter(svc)

	body, _ := json.Marshal(map[string]interface{}{
		"recipient_id": "bob",
		"channel_key":  "alice|bob",
		"amount":       25,
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/tips", bytes.NewReader(body))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	if svc.sendCalls != 1 {
		t.Errorf("expected 1 send call, got %d", svc.sendCalls)
	}
}

func TestTipHandler_SendTip_RejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"missing recipient", map[string]interface{}{"channel_key": "alice|bob", "amount": 10}},
		{"bad channel key", map[string]interface{}{"recipient_id": "bob", "channel_key": "not-a-key", "amount": 10}},
		{"unsorted channel key", map[string]interface{}{"recipient_id": "bob", "channel_key": "bob|alice", "amount": 10}},
		{"zero amount", map[string]interface{}{"recipient_id": "bob", "channel_key": "alice|bob", "amount": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeTippingService{}
			router := newTipRouter(svc)

			body, _ := json.Marshal(tt.body)
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/api/v1/tips", bytes.NewReader(body))
			router.ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected status 400, got %d", w.Code)
			}
			if svc.sendCalls != 0 {
				t.Errorf("service should not be called on invalid input")
			}
		})
	}
}

func TestTipHandler_SendTip_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domain.ErrAuthRequired, http.StatusUnauthorized},
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrTransferFailed, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			router := newTipRouter(&fakeTippingService{err: tt.err})

			body, _ := json.Marshal(map[string]interface{}{
				"recipient_id": "bob",
				"channel_key":  "alice|bob",
				"amount":       10,
			})
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodPost, "/api/v1/tips", bytes.NewReader(body))
			router.ServeHTTP(w, req)

			if w.Code != tt.status {
				t.Errorf("expected status %d, got %d", tt.status, w.Code)
			}
		})
	}
}

func TestTipHandler_GetTotal(t *testing.T) {
	router := newTipRouter(&fakeTippingService{total: 55})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/tips/total?recipient_id=bob&channel_key=alice%7Cbob", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Total int64 `json:"total"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Total != 55 {
		t.Errorf("expected total 55, got %d", resp.Total)
	}
}

func TestTipHandler_GetTotal_MissingParams(t *testing.T) {
	router := newTipRouter(&fakeTippingService{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/v1/tips/total", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", w.Code)
	}
}
