package app

import (
	"context"
	"errors"
	"log"
	"time"

	"class-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// AuthoringService contains the admin use cases for building quizzes.
type AuthoringService struct {
	store    QuizStore
	quizzes  QuizRepository
	attempts AttemptRepository
	boards   BoardRepository
	now      func() time.Time
	newID    func() string
}

func NewAuthoringService(store QuizStore, quizzes QuizRepository, attempts AttemptRepository, boards BoardRepository) *AuthoringService {
	return &AuthoringService{
		store:    store,
		quizzes:  quizzes,
		attempts: attempts,
		boards:   boards,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// CreateOrReplace stores the draft as the quiz of a class. An existing quiz for
// the class is replaced wholesale (keeping its ID) and becomes unpublished.
func (s *AuthoringService) CreateOrReplace(ctx context.Context, courseID string, classNumber int, draft domain.Quiz) (domain.Quiz, error) {
	draft.CourseID = courseID
	draft.ClassNumber = classNumber
	draft.IsPublished = false

	quiz, err := domain.NewQuiz(draft)
	if err != nil {
		return domain.Quiz{}, err
	}

	now := s.now().UTC()
	existing, err := s.store.Find(ctx, quiz.CourseID, quiz.ClassNumber)
	switch {
	case err == nil:
		quiz.ID = existing.ID
		quiz.CreatedAt = existing.CreatedAt
	case errors.Is(err, domain.ErrQuizNotFound):
		quiz.ID = s.newID()
		quiz.CreatedAt = now
	default:
		return domain.Quiz{}, err
	}
	quiz.UpdatedAt = now

	saved, err := s.store.Save(ctx, quiz)
	if err != nil {
		return domain.Quiz{}, err
	}
	s.quizzes.Invalidate(ctx, saved.ID)
	return saved, nil
}

// Publish makes a quiz visible to students.
func (s *AuthoringService) Publish(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.setPublished(ctx, quizID, true)
}

// Unpublish hides a quiz from students without touching anything else.
func (s *AuthoringService) Unpublish(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.setPublished(ctx, quizID, false)
}

func (s *AuthoringService) setPublished(ctx context.Context, quizID string, published bool) (domain.Quiz, error) {
	quiz, err := s.store.Get(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.IsPublished = published
	saved, err := s.store.Save(ctx, quiz)
	if err != nil {
		return domain.Quiz{}, err
	}
	s.quizzes.Invalidate(ctx, quizID)
	return saved, nil
}

// Remove deletes a quiz. Attempts still running against it fail with
// domain.ErrQuizNotFound on their next operation.
func (s *AuthoringService) Remove(ctx context.Context, quizID string) error {
	if err := s.store.Delete(ctx, quizID); err != nil {
		return err
	}
	s.quizzes.Invalidate(ctx, quizID)

	revoked, err := s.attempts.RevokeQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if board, ok := s.boards.Get(quizID); ok {
		board.Close()
		s.boards.Delete(quizID)
	}
	log.Printf("quiz %s removed, %d running attempts revoked", quizID, revoked)
	return nil
}

// Get reads a quiz through the cache.
func (s *AuthoringService) Get(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

// List returns every stored quiz.
func (s *AuthoringService) List(ctx context.Context) ([]domain.Quiz, error) {
	return s.store.List(ctx)
}
