package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"tableside/internal/common/logger"
	"tableside/internal/domain"
	"tableside/internal/microservices/storage/repository"
	"tableside/internal/microservices/storage/service"
)

func init() { gin.SetMode(gin.TestMode) }

func newTestRouter(t *testing.T) (*gin.Engine, *repository.Memory) {
	t.Helper()
	mem := repository.NewMemory()
	mem.Seed(domain.Branch{ID: "b1", Name: "North"},
		[]domain.Table{{ID: "t1", Number: 1, Capacity: 4}, {ID: "t2", Number: 2, Capacity: 2}},
		[]domain.MenuItem{{ID: "m1", Name: "Ramen", Price: 1200}})
	svc := service.New(mem.Repository(), nil, logger.Nop())
	return Router(New(svc), []string{"http://floor.local"}, logger.Nop()), mem
}

func serve(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) problem {
	t.Helper()
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/problem+json") {
		t.Errorf("Content-Type = %q", ct)
	}
	var p problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("decoding problem %q: %v", w.Body.String(), err)
	}
	return p
}

func TestHealth(t *testing.T) {
	r, _ := newTestRouter(t)
	w := serve(r, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
}

func TestProblemResponses(t *testing.T) {
	r, _ := newTestRouter(t)

	tests := []struct {
		name, method, path, body string
		status                   int
		typ                      string
	}{
		{"unknown route", http.MethodGet, "/nowhere", "", http.StatusNotFound, "not_found"},
		{"unknown order", http.MethodGet, "/orders/o404", "", http.StatusNotFound, "not_found"},
		{"bad json", http.MethodPost, "/sessions", "{", http.StatusBadRequest, "invalid_json"},
		{"missing table", http.MethodPost, "/sessions", `{"branchId":"b1"}`, http.StatusBadRequest, "invalid_request"},
		{"bad line index", http.MethodPut, "/orders/o1/lines/x/status", `{"status":"served"}`, http.StatusBadRequest, "invalid_request"},
		{"unknown table status", http.MethodPut, "/tables/t1/status", `{"status":"dirty"}`, http.StatusBadRequest, "invalid_request"},
		{"unknown status filter", http.MethodGet, "/branches/b1/orders?status=cooking", "", http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(r, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			p := decodeProblem(t, w)
			if p.Type != tt.typ || p.Status != tt.status || p.Title != http.StatusText(tt.status) {
				t.Errorf("problem = %+v", p)
			}
		})
	}
}

func TestSecondCheckInIsConflict(t *testing.T) {
	r, _ := newTestRouter(t)
	body := `{"branchId":"b1","tableId":"t1"}`
	if w := serve(r, http.MethodPost, "/sessions", body); w.Code != http.StatusCreated {
		t.Fatalf("first check-in: %d %s", w.Code, w.Body.String())
	}
	w := serve(r, http.MethodPost, "/sessions", body)
	if w.Code != http.StatusConflict {
		t.Fatalf("second check-in: %d", w.Code)
	}
	if p := decodeProblem(t, w); p.Type != "conflict" {
		t.Errorf("problem = %+v", p)
	}
}

func TestTablesListedByNumber(t *testing.T) {
	r, _ := newTestRouter(t)
	w := serve(r, http.MethodGet, "/branches/b1/tables", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var tables []domain.Table
	if err := json.Unmarshal(w.Body.Bytes(), &tables); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(tables) != 2 || tables[0].ID != "t1" || tables[1].ID != "t2" || tables[0].Branch.ID() != "b1" {
		t.Errorf("tables = %+v", tables)
	}

	w = serve(r, http.MethodGet, "/branches/b9/tables", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty branch: %d %s", w.Code, w.Body.String())
	}
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	r, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/orders", nil)
	req.Header.Set("Origin", "http://floor.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://floor.local" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://elsewhere.local")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("foreign origin allowed: %q", got)
	}
}
