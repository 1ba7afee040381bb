package questions

import (
	"context"
	"database/sql"
	"encoding/json"
)

// PostgresStore persists questions in PostgreSQL. Answer choices are stored
// as a JSONB array.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new PostgreSQL-backed question store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) ListByCategory(ctx context.Context, categoryID int64) ([]*Question, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, category_id, question, choices, answer_index, created_at
		FROM questions
		WHERE category_id = $1
		ORDER BY id`, categoryID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []*Question
	for rows.Next() {
		var q Question
		var choices []byte
		if err := rows.Scan(&q.ID, &q.CategoryID, &q.Question, &choices, &q.AnswerIndex, &q.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(choices, &q.Choices); err != nil {
			return nil, err
		}
		result = append(result, &q)
	}
	return result, rows.Err()
}
