package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"class-quiz-service/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizStore, keyed by quiz ID
// with a secondary (course, class) index.
type QuizStore struct {
	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
	byClass map[classKey]string
}

type classKey struct {
	courseID    string
	classNumber int
}

func NewQuizStore(seed ...domain.Quiz) *QuizStore {
	s := &QuizStore{
		quizzes: make(map[string]domain.Quiz),
		byClass: make(map[classKey]string),
	}
	for _, quiz := range seed {
		s.quizzes[quiz.ID] = quiz
		s.byClass[classKey{quiz.CourseID, quiz.ClassNumber}] = quiz.ID
	}
	return s
}

func (s *QuizStore) Find(_ context.Context, courseID string, classNumber int) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byClass[classKey{courseID, classNumber}]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return s.quizzes[id], nil
}

func (s *QuizStore) Get(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *QuizStore) Save(_ context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if quiz.ID == "" {
		return domain.Quiz{}, domain.NewStoreError("save", errors.New("quiz id is required"))
	}
	key := classKey{quiz.CourseID, quiz.ClassNumber}

	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.byClass[key]; ok && owner != quiz.ID {
		return domain.Quiz{}, domain.NewStoreError("save", fmt.Errorf("class %s/%d already has quiz %s", quiz.CourseID, quiz.ClassNumber, owner))
	}
	if previous, ok := s.quizzes[quiz.ID]; ok {
		delete(s.byClass, classKey{previous.CourseID, previous.ClassNumber})
	}
	s.quizzes[quiz.ID] = quiz
	s.byClass[key] = quiz.ID
	return quiz, nil
}

func (s *QuizStore) Delete(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.quizzes, quizID)
	delete(s.byClass, classKey{quiz.CourseID, quiz.ClassNumber})
	return nil
}

// List returns quizzes ordered by course and class.
func (s *QuizStore) List(_ context.Context) ([]domain.Quiz, error) {
	s.mu.RLock()
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, quiz := range s.quizzes {
		out = append(out, quiz)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CourseID != out[j].CourseID {
			return out[i].CourseID < out[j].CourseID
		}
		return out[i].ClassNumber < out[j].ClassNumber
	})
	return out, nil
}
