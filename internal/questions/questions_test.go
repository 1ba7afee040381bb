package questions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func seeded() *MemoryStore {
	store := NewMemoryStore()
	store.Add(Question{CategoryID: 1, Question: "Başkent neresidir?", Choices: []string{"Ankara", "İstanbul", "İzmir"}, AnswerIndex: 0})
	store.Add(Question{CategoryID: 1, Question: "2+2?", Choices: []string{"3", "4"}, AnswerIndex: 1})
	store.Add(Question{CategoryID: 2, Question: "Other category", Choices: []string{"a", "b"}, AnswerIndex: 0})
	return store
}

func TestMemoryStore_ListByCategory(t *testing.T) {
	store := seeded()

	list, err := store.ListByCategory(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListByCategory: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(list))
	}
	if list[0].ID >= list[1].ID {
		t.Error("expected ascending ID order")
	}

	empty, _ := store.ListByCategory(context.Background(), 9)
	if len(empty) != 0 {
		t.Errorf("expected no questions, got %d", len(empty))
	}
}

func TestListByCategoryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandlers(seeded()).RegisterRoutes(r.Group("/v1/categories/:id/questions"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/categories/1/questions", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var resp struct {
		Error bool        `json:"error"`
		Data  []*Question `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Errorf("expected 2 questions, got %d", len(resp.Data))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/categories/abc/questions", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
