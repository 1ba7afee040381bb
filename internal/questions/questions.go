// Package questions serves quiz questions for a category. Access control is
// enforced upstream by the entitlement middleware.
package questions

import (
	"context"
	"time"
)

// Question is one quiz question with its answer choices.
type Question struct {
	ID          int64     `json:"id"`
	CategoryID  int64     `json:"categoryId"`
	Question    string    `json:"question"`
	Choices     []string  `json:"choices"`
	AnswerIndex int       `json:"answerIndex"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists questions.
type Store interface {
	ListByCategory(ctx context.Context, categoryID int64) ([]*Question, error)
}
