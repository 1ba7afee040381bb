package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ktasci/quizserve/internal/catalog"
	"github.com/ktasci/quizserve/internal/config"
	"github.com/ktasci/quizserve/internal/iap"
	"github.com/ktasci/quizserve/internal/questions"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeApple implements purchases.AppleClient for testing
type fakeApple struct {
	receipt *iap.Receipt
	err     error
}

func (f *fakeApple) Verify(_ context.Context, _ string) (*iap.Receipt, error) {
	if f.err != nil {
		return nil, f.err
	}
	r := *f.receipt
	return &r, nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:       "0",
		Env:        "development",
		LogLevel:   "error",
		AuthSecret: "test-secret",
	}
}

func testReceipt(key string) *iap.Receipt {
	return &iap.Receipt{
		Platform:       iap.PlatformApple,
		ProductSKU:     "com.quizapp.premium",
		TransactionID:  "tx-1",
		TransactionKey: key,
		PurchaseTime:   time.UnixMilli(1700000000000),
	}
}

// newTestServer creates a server with in-memory stores and a fake verifier
func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig(), WithAppleClient(&fakeApple{receipt: testReceipt("origin-1")}))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/metrics",
		"GET:/ws",
		"GET:/v1/categories",
		"GET:/v1/categories/:id",
		"GET:/v1/products",
		"GET:/v1/products/:sku",
		"POST:/v1/purchases/verify/apple",
		"POST:/v1/purchases/verify/google",
		"GET:/v1/users/:id/purchases",
		"GET:/v1/categories/:id/questions",
		"POST:/v1/webhooks",
		"GET:/v1/webhooks",
		"DELETE:/v1/webhooks/:id",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Purchase verification flow
// ---------------------------------------------------------------------------

func TestAppleVerifyFlow(t *testing.T) {
	s := newTestServer(t)

	body := `{"user":42,"receipt":"cmVjZWlwdA=="}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/purchases/verify/apple", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["error"] != false {
		t.Errorf("Expected error=false, got %v", resp["error"])
	}

	// Resubmitting the same receipt must be rejected as a duplicate
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/purchases/verify/apple", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 on duplicate, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Entitlement gating
// ---------------------------------------------------------------------------

func TestQuestionsGatedOnEntitlement(t *testing.T) {
	s := newTestServer(t)

	// Seed a paid category with one question
	catStore := s.catalogStore.(*catalog.MemoryStore)
	catID := catStore.AddCategory(catalog.Category{Name: "History Pro", Lang: "en", SKU: "com.quizapp.premium"})
	qStore := s.questionStore.(*questions.MemoryStore)
	qStore.Add(questions.Question{
		CategoryID:  catID,
		Question:    "In which year did the Berlin Wall fall?",
		Choices:     []string{"1987", "1989", "1991", "1993"},
		AnswerIndex: 1,
	})

	path := fmt.Sprintf("/v1/categories/%d/questions", catID)

	// Anonymous request is rejected
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for anonymous, got %d", w.Code)
	}

	token, err := s.authMgr.Issue(42)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Authenticated but without a purchase
	w = httptest.NewRecorder()
	req := httptest.NewRequest("GET", path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("Expected 403 without purchase, got %d", w.Code)
	}

	// Record the purchase through the verify endpoint
	body := `{"user":42,"receipt":"cmVjZWlwdA=="}`
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/purchases/verify/apple", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("verify: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Now the questions are accessible
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 after purchase, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// Webhook management auth
// ---------------------------------------------------------------------------

func TestWebhookRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t)

	body := `{"url":"https://hooks.example.com/purchases","events":["purchase.recorded"]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/webhooks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", w.Code)
	}
}

func TestWebhookURLValidatorBlocksLoopback(t *testing.T) {
	s := newTestServer(t)

	token, err := s.authMgr.Issue(1)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	body := `{"url":"http://127.0.0.1:9090/hook","events":["purchase.recorded"]}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/webhooks", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for loopback URL, got %d: %s", w.Code, w.Body.String())
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
