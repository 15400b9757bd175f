package app

import (
	"context"
	"log"
	"time"

	"class-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// QuizStore is the persistence collaborator for quiz definitions (memory, Postgres, etc).
// Find and Get report domain.ErrQuizNotFound; other failures are *domain.StoreError.
type QuizStore interface {
	Find(ctx context.Context, courseID string, classNumber int) (domain.Quiz, error)
	Get(ctx context.Context, quizID string) (domain.Quiz, error)
	Save(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error)
	Delete(ctx context.Context, quizID string) error
	List(ctx context.Context) ([]domain.Quiz, error)
}

// QuizLoader fetches a quiz definition from a backing store on cache miss.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizLoaderFunc adapts a function, such as QuizStore.Get, to QuizLoader.
type QuizLoaderFunc func(ctx context.Context, quizID string) (domain.Quiz, error)

func (f QuizLoaderFunc) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return f(ctx, quizID)
}

// QuizRepository is a read-through cache of quiz definitions (in-memory, Redis).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID string)
}

// AttemptRepository abstracts where attempts and per-user attempt counts live.
type AttemptRepository interface {
	Save(ctx context.Context, attempt *Attempt) error
	Get(ctx context.Context, attemptID string) (*Attempt, error)
	// Release drops the store's live hold on an attempt once no session drives it.
	// The attempt stays readable until the store's retention expires.
	Release(ctx context.Context, attemptID string) error
	// RevokeQuiz revokes every held attempt of a quiz and reports how many were affected.
	RevokeQuiz(ctx context.Context, quizID string) (int, error)
	// ReserveAttempt atomically claims one attempt of a user on a quiz and returns
	// how many are now used. With limit > 0 a claim beyond the limit fails with
	// domain.ErrMaxAttemptsReached and is not counted.
	ReserveAttempt(ctx context.Context, quizID, userID string, limit int) (int, error)
	// CancelReservation returns a claim whose attempt never started.
	CancelReservation(ctx context.Context, quizID, userID string) error
}

// BoardRepository keeps one leaderboard per quiz. Boards with neither results
// nor subscribers may be dropped.
type BoardRepository interface {
	Record(result domain.Result) domain.Leaderboard
	Subscribe(quizID string) (<-chan domain.Leaderboard, func())
	Get(quizID string) (*Board, bool)
	Delete(quizID string)
}

// ResultPublisher announces graded results to other services.
type ResultPublisher interface {
	PublishResult(ctx context.Context, result domain.Result) error
}

// AttemptService runs quiz attempts for students.
type AttemptService struct {
	store    QuizStore
	attempts AttemptRepository
	boards   BoardRepository
	results  ResultPublisher
	newID    func() string
}

// NewAttemptService wires the attempt use cases. results may be nil.
func NewAttemptService(store QuizStore, attempts AttemptRepository, boards BoardRepository, results ResultPublisher) *AttemptService {
	return &AttemptService{
		store:    store,
		attempts: attempts,
		boards:   boards,
		results:  results,
		newID:    uuid.NewString,
	}
}

// Begin starts a new attempt on the published quiz of a class.
func (s *AttemptService) Begin(ctx context.Context, courseID string, classNumber int, userID, displayName string) (*Attempt, error) {
	quiz, err := s.store.Find(ctx, courseID, classNumber)
	if err != nil {
		return nil, err
	}
	if !quiz.IsPublished {
		return nil, domain.ErrQuizNotFound
	}

	// the slot is taken before the attempt exists so parallel sessions cannot exceed the limit
	if _, err := s.attempts.ReserveAttempt(ctx, quiz.ID, userID, quiz.Configuration.MaxAttempts); err != nil {
		return nil, err
	}

	attempt := NewAttempt(s.newID(), quiz, userID, displayName)
	err = attempt.Start()
	if err == nil {
		err = s.attempts.Save(ctx, attempt)
	}
	if err != nil {
		if cerr := s.attempts.CancelReservation(ctx, quiz.ID, userID); cerr != nil {
			log.Printf("cancel attempt reservation of %s on quiz %s: %v", userID, quiz.ID, cerr)
		}
		return nil, err
	}
	return attempt, nil
}

// Release ends the live hold on an attempt when its session goes away.
func (s *AttemptService) Release(ctx context.Context, attemptID string) error {
	return s.attempts.Release(ctx, attemptID)
}

// Attempt returns a held attempt.
func (s *AttemptService) Attempt(ctx context.Context, attemptID string) (*Attempt, error) {
	return s.attempts.Get(ctx, attemptID)
}

// Answer records an answer. For multiple-choice questions the value carries
// original option indices; transports map displayed positions with OriginalChoice.
func (s *AttemptService) Answer(ctx context.Context, attemptID, questionID string, value domain.Answer) (*Attempt, error) {
	return s.apply(ctx, attemptID, func(a *Attempt) error {
		return a.SelectAnswer(questionID, value)
	})
}

func (s *AttemptService) GoTo(ctx context.Context, attemptID string, index int) (*Attempt, error) {
	return s.apply(ctx, attemptID, func(a *Attempt) error {
		return a.GoTo(index)
	})
}

func (s *AttemptService) Next(ctx context.Context, attemptID string) (*Attempt, error) {
	return s.apply(ctx, attemptID, (*Attempt).Next)
}

func (s *AttemptService) Previous(ctx context.Context, attemptID string) (*Attempt, error) {
	return s.apply(ctx, attemptID, (*Attempt).Previous)
}

// Tick feeds elapsed seconds to the countdown; an expiring attempt is graded.
func (s *AttemptService) Tick(ctx context.Context, attemptID string, elapsedSeconds int) (*Attempt, error) {
	return s.apply(ctx, attemptID, func(a *Attempt) error {
		_, err := a.Tick(elapsedSeconds)
		return err
	})
}

// WindowSwitch records that the user left the quiz window.
func (s *AttemptService) WindowSwitch(ctx context.Context, attemptID string) (*Attempt, error) {
	return s.apply(ctx, attemptID, func(a *Attempt) error {
		_, err := a.ReportWindowSwitch()
		return err
	})
}

// Submit ends the attempt and returns its graded result.
func (s *AttemptService) Submit(ctx context.Context, attemptID string) (domain.Result, error) {
	if _, err := s.apply(ctx, attemptID, (*Attempt).Submit); err != nil {
		return domain.Result{}, err
	}
	return s.Result(ctx, attemptID)
}

// Result grades a finished attempt, hiding answers the quiz does not reveal.
func (s *AttemptService) Result(ctx context.Context, attemptID string) (domain.Result, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.Result{}, err
	}
	quiz := attempt.Quiz()
	result, err := Grade(quiz, attempt)
	if err != nil {
		return domain.Result{}, err
	}
	return Redact(result, quiz.Configuration, true), nil
}

// Feedback grades one answer of a running attempt when the quiz reveals answers immediately.
func (s *AttemptService) Feedback(ctx context.Context, attemptID, questionID string) (domain.QuestionResult, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return domain.QuestionResult{}, err
	}
	return Feedback(attempt, questionID)
}

// Subscribe returns a channel that receives leaderboard updates for a quiz.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *AttemptService) Subscribe(_ context.Context, quizID string) (<-chan domain.Leaderboard, func(), error) {
	ch, cancel := s.boards.Subscribe(quizID)
	return ch, cancel, nil
}

// Leaderboard returns the current standings of a quiz.
func (s *AttemptService) Leaderboard(_ context.Context, quizID string) domain.Leaderboard {
	board, ok := s.boards.Get(quizID)
	if !ok {
		return domain.Leaderboard{QuizID: quizID, Entries: []domain.LeaderboardEntry{}, UpdatedAt: time.Now()}
	}
	return board.Snapshot()
}

// apply runs one state-machine operation. A failed operation leaves the stored
// attempt untouched; an operation that finishes the attempt triggers grading.
func (s *AttemptService) apply(ctx context.Context, attemptID string, op func(*Attempt) error) (*Attempt, error) {
	attempt, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	wasFinished := attempt.State().Finished()
	if err := op(attempt); err != nil {
		return attempt, err
	}
	if err := s.attempts.Save(ctx, attempt); err != nil {
		return attempt, err
	}
	if !wasFinished && attempt.State().Finished() {
		if err := s.finished(ctx, attempt); err != nil {
			return attempt, err
		}
	}
	return attempt, nil
}

func (s *AttemptService) finished(ctx context.Context, attempt *Attempt) error {
	quiz := attempt.Quiz()
	result, err := Grade(quiz, attempt)
	if err != nil {
		return err
	}
	if s.results != nil {
		if err := s.results.PublishResult(ctx, result); err != nil {
			log.Printf("publish result for attempt %s: %v", attempt.ID(), err)
		}
	}
	if quiz.Configuration.LeaderboardEnabled {
		s.boards.Record(result)
	}
	return nil
}
