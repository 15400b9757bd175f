package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"class-quiz-service/internal/domain"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const uniqueViolation = "23505"

// QuizStore keeps quiz definitions as JSONB in Postgres, one row per quiz with
// the (course_id, class_number) key and publish flag in their own columns.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) Find(ctx context.Context, courseID string, classNumber int) (domain.Quiz, error) {
	row := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE course_id=$1 AND class_number=$2`, courseID, classNumber)
	return scanQuiz(row, "find")
}

func (s *QuizStore) Get(ctx context.Context, quizID string) (domain.Quiz, error) {
	row := s.pool.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID)
	return scanQuiz(row, "get")
}

// LoadQuiz lets the store back a quiz cache directly.
func (s *QuizStore) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.Get(ctx, quizID)
}

func (s *QuizStore) Save(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	data, err := json.Marshal(quiz)
	if err != nil {
		return domain.Quiz{}, domain.NewStoreError("save", fmt.Errorf("marshal quiz: %w", err))
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO quizzes (id, course_id, class_number, is_published, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			class_number = EXCLUDED.class_number,
			is_published = EXCLUDED.is_published,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`,
		quiz.ID, quiz.CourseID, quiz.ClassNumber, quiz.IsPublished, string(data), quiz.CreatedAt, quiz.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Quiz{}, domain.NewStoreError("save", fmt.Errorf("class %s/%d already has a quiz", quiz.CourseID, quiz.ClassNumber))
		}
		return domain.Quiz{}, domain.NewStoreError("save", err)
	}
	return quiz, nil
}

func (s *QuizStore) Delete(ctx context.Context, quizID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1`, quizID)
	if err != nil {
		return domain.NewStoreError("delete", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}

func (s *QuizStore) List(ctx context.Context) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `SELECT data FROM quizzes ORDER BY course_id, class_number`)
	if err != nil {
		return nil, domain.NewStoreError("list", err)
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows, "list")
		if err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("list", err)
	}
	return quizzes, nil
}

func scanQuiz(row pgx.Row, op string) (domain.Quiz, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Quiz{}, domain.ErrQuizNotFound
		}
		return domain.Quiz{}, domain.NewStoreError(op, err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, domain.NewStoreError(op, fmt.Errorf("unmarshal quiz: %w", err))
	}
	return quiz, nil
}
