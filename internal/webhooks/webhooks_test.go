package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestDispatch_DeliversSignedEvent(t *testing.T) {
	var mu sync.Mutex
	var gotBody []byte
	var gotSig, gotEvent string
	received := make(chan struct{}, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		gotBody = buf.Bytes()
		gotSig = r.Header.Get("X-Quizserve-Signature")
		gotEvent = r.Header.Get("X-Quizserve-Event")
		w.WriteHeader(http.StatusOK)
		received <- struct{}{}
	}))
	defer server.Close()

	store := NewMemoryStore()
	_ = store.Create(context.Background(), &Subscription{
		ID:     "whk_1",
		URL:    server.URL,
		Secret: "hook-secret",
		Events: []EventType{EventPurchaseRecorded},
		Active: true,
	})

	d := NewDispatcher(store)
	event := &Event{
		ID:        "evt_1",
		Type:      EventPurchaseRecorded,
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"purchaseId": "pur_1"},
	}
	if err := d.Dispatch(context.Background(), event); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not delivered")
	}

	mu.Lock()
	defer mu.Unlock()

	if gotEvent != string(EventPurchaseRecorded) {
		t.Errorf("unexpected event header %q", gotEvent)
	}

	mac := hmac.New(sha256.New, []byte("hook-secret"))
	mac.Write(gotBody)
	want := hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Errorf("signature mismatch: got %q want %q", gotSig, want)
	}

	var delivered Event
	if err := json.Unmarshal(gotBody, &delivered); err != nil {
		t.Fatalf("decode delivered event: %v", err)
	}
	if delivered.ID != "evt_1" {
		t.Errorf("unexpected event id %q", delivered.ID)
	}
}

func TestDispatch_SkipsInactiveAndUnsubscribed(t *testing.T) {
	called := make(chan struct{}, 2)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called <- struct{}{}
	}))
	defer server.Close()

	store := NewMemoryStore()
	_ = store.Create(context.Background(), &Subscription{
		ID: "whk_inactive", URL: server.URL,
		Events: []EventType{EventPurchaseRecorded}, Active: false,
	})
	_ = store.Create(context.Background(), &Subscription{
		ID: "whk_other", URL: server.URL,
		Events: []EventType{EventPurchaseDuplicate}, Active: true,
	})

	d := NewDispatcher(store)
	_ = d.Dispatch(context.Background(), &Event{
		ID: "evt_1", Type: EventPurchaseRecorded, Timestamp: time.Now(),
	})

	select {
	case <-called:
		t.Fatal("no subscription should have been called")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDispatch_RecordsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := NewMemoryStore()
	sub := &Subscription{
		ID: "whk_1", URL: server.URL,
		Events: []EventType{EventPurchaseRecorded}, Active: true,
	}
	_ = store.Create(context.Background(), sub)

	d := NewDispatcher(store, WithDeliveryRetry(2, time.Millisecond))
	_ = d.Dispatch(context.Background(), &Event{
		ID: "evt_1", Type: EventPurchaseRecorded, Timestamp: time.Now(),
	})

	deadline := time.After(5 * time.Second)
	for {
		got, _ := store.Get(context.Background(), "whk_1")
		if got.LastError != "" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("delivery failure was not recorded")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestDispatch_RetriesUntilSubscriberRecovers(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	store := NewMemoryStore()
	_ = store.Create(context.Background(), &Subscription{
		ID: "whk_1", URL: server.URL,
		Events: []EventType{EventPurchaseRecorded}, Active: true,
	})

	d := NewDispatcher(store, WithDeliveryRetry(3, time.Millisecond))
	_ = d.Dispatch(context.Background(), &Event{
		ID: "evt_1", Type: EventPurchaseRecorded, Timestamp: time.Now(),
	})

	deadline := time.After(5 * time.Second)
	for {
		got, _ := store.Get(context.Background(), "whk_1")
		if got.LastSuccess != nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("delivery never succeeded despite subscriber recovering")
		case <-time.After(20 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestDispatch_SubscriberRejectionNotRetried(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	store := NewMemoryStore()
	_ = store.Create(context.Background(), &Subscription{
		ID: "whk_1", URL: server.URL,
		Events: []EventType{EventPurchaseRecorded}, Active: true,
	})

	d := NewDispatcher(store, WithDeliveryRetry(3, time.Millisecond))
	_ = d.Dispatch(context.Background(), &Event{
		ID: "evt_1", Type: EventPurchaseRecorded, Timestamp: time.Now(),
	})

	deadline := time.After(5 * time.Second)
	for {
		got, _ := store.Get(context.Background(), "whk_1")
		if got.LastError == "status 410" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("rejection was not recorded")
		case <-time.After(20 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("expected a single attempt for a 4xx rejection, got %d", attempts)
	}
}

func TestHandlers_CreateListDelete(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore()
	r := gin.New()
	NewHandlers(store).RegisterRoutes(r.Group("/v1"))

	body, _ := json.Marshal(gin.H{
		"url":    "https://example.com/hook",
		"secret": "s3cret",
		"events": []string{"purchase.recorded"},
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/webhooks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		Data Subscription `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/webhooks", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/v1/webhooks/"+created.Data.ID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/v1/webhooks/whk_missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHandlers_CreateWithURLValidator(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandlers(NewMemoryStore(), WithURLValidator(func(string) error {
		return errors.New("host not allowed")
	}))
	h.RegisterRoutes(r.Group("/v1"))

	body, _ := json.Marshal(gin.H{
		"url":    "https://internal.example.com/hook",
		"events": []string{"purchase.recorded"},
	})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/webhooks", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHandlers_CreateValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandlers(NewMemoryStore()).RegisterRoutes(r.Group("/v1"))

	cases := []gin.H{
		{"events": []string{"purchase.recorded"}},                             // missing url
		{"url": "ftp://example.com", "events": []string{"purchase.recorded"}}, // bad scheme
		{"url": "https://example.com", "events": []string{"bogus.event"}},     // unknown event
	}
	for i, body := range cases {
		data, _ := json.Marshal(body)
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/v1/webhooks", bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Errorf("case %d: expected 400, got %d", i, w.Code)
		}
	}
}
