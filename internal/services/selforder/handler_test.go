package selforder

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"selforder-system/internal/models"
)

func newTestHandler(f *fixture) *http.ServeMux {
	h := NewHandler(f.service, f.payments, f.handoff, f.scheduler, nil, testLogger())
	return h.SetupRoutes()
}

func doRequest(t *testing.T, mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateSession(t *testing.T) {
	f := newFixture()
	mux := newTestHandler(f)

	rec := doRequest(t, mux, http.MethodPost, "/sessions", `{"outletId":"outlet-1","language":"id"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body %s", rec.Code, rec.Body.String())
	}

	var resp models.CreateSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !models.IsSessionCode(resp.SessionCode) {
		t.Errorf("session code %q does not have the expected shape", resp.SessionCode)
	}
}

func TestHandlerCreateSessionValidation(t *testing.T) {
	f := newFixture()
	mux := newTestHandler(f)

	tests := []struct {
		name string
		body string
	}{
		{"missing outlet", `{"language":"en"}`},
		{"invalid json", `{`},
		{"unknown field", `{"outletId":"outlet-1","bogus":true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, mux, http.MethodPost, "/sessions", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandlerDomainErrorMapping(t *testing.T) {
	f := newFixture()
	mux := newTestHandler(f)
	now := time.Now().UTC()

	expired := models.GenerateSessionCode(now)
	f.store.seedSession(expired, models.SessionExpired, now.Add(-time.Hour))

	submitted := models.GenerateSessionCode(now.Add(time.Second))
	f.store.seedSession(submitted, models.SessionSubmitted, now.Add(time.Hour))
	f.store.seedItem(submitted, 10000, 1)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unknown session is 404",
			method:     http.MethodGet,
			path:       "/sessions/SO-NOPE-ZZZZ",
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:       "expired session is 410",
			method:     http.MethodGet,
			path:       "/sessions/" + expired,
			wantStatus: http.StatusGone,
			wantCode:   "SESSION_EXPIRED",
		},
		{
			name:       "add item to submitted session is 409",
			method:     http.MethodPost,
			path:       "/sessions/" + submitted + "/items",
			body:       `{"productId":"prod-1","quantity":1}`,
			wantStatus: http.StatusConflict,
			wantCode:   "INVALID_STATE",
		},
		{
			// grand total is 11500 at these rates
			name:       "amount mismatch is 422",
			method:     http.MethodPost,
			path:       "/sessions/" + submitted + "/pay",
			body:       `{"paymentMethod":"cash","amount":9000}`,
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   "AMOUNT_MISMATCH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, mux, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tt.wantStatus, rec.Body.String())
			}

			var payload map[string]interface{}
			if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if payload["code"] != tt.wantCode {
				t.Errorf("error code = %v, want %s", payload["code"], tt.wantCode)
			}
		})
	}
}

func TestHandlerSubmitAndPayFlow(t *testing.T) {
	f := newFixture()
	mux := newTestHandler(f)
	now := time.Now().UTC()

	code := models.GenerateSessionCode(now)
	f.store.seedSession(code, models.SessionActive, now.Add(time.Hour))
	f.store.seedItem(code, 10000, 1)
	f.store.seedItem(code, 5000, 2)

	rec := doRequest(t, mux, http.MethodGet, "/sessions/"+code+"/total", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("total status = %d, body %s", rec.Code, rec.Body.String())
	}
	var totals models.Totals
	if err := json.Unmarshal(rec.Body.Bytes(), &totals); err != nil {
		t.Fatalf("failed to decode totals: %v", err)
	}
	if totals.GrandTotal != 23000 {
		t.Fatalf("grand total = %d, want 23000", totals.GrandTotal)
	}

	rec = doRequest(t, mux, http.MethodPost, "/sessions/"+code+"/submit", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, mux, http.MethodPost, "/sessions/"+code+"/pay",
		fmt.Sprintf(`{"paymentMethod":"qris","amount":%d}`, totals.GrandTotal))
	if rec.Code != http.StatusOK {
		t.Fatalf("pay status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result models.PaymentResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode payment result: %v", err)
	}

	rec = doRequest(t, mux, http.MethodPost, "/payment/callback",
		fmt.Sprintf(`{"orderId":%q,"status":"success"}`, result.TransactionID))
	if rec.Code != http.StatusOK {
		t.Fatalf("callback status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, mux, http.MethodGet, "/sessions/"+code+"/payment-status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("payment-status status = %d, body %s", rec.Code, rec.Body.String())
	}
	var status models.PaymentStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("failed to decode payment status: %v", err)
	}
	if !status.IsPaid {
		t.Error("IsPaid = false after successful callback")
	}
}

func TestHandlerCallbackAlwaysAcknowledges(t *testing.T) {
	f := newFixture()
	mux := newTestHandler(f)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"unparseable transaction id", `{"orderId":"garbage","status":"success"}`},
		{"unknown status", `{"orderId":"TXN-SO-ABC-WXYZ-1700000000","status":"refunded"}`},
		{"empty body fields", `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, mux, http.MethodPost, "/payment/callback", tt.body)
			if rec.Code != http.StatusOK {
				t.Errorf("status = %d, webhook responses must always be 200", rec.Code)
			}
		})
	}
}
