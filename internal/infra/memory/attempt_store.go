package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"class-quiz-service/internal/app"
	"class-quiz-service/internal/domain"
)

// DefaultRetention is how long a released attempt stays readable.
const DefaultRetention = time.Hour

// AttemptStore is an in-memory implementation of app.AttemptRepository.
// Released attempts are kept for the retention period so their results stay
// available, then purged on the next write.
type AttemptStore struct {
	mu        sync.RWMutex
	retention time.Duration
	now       func() time.Time
	attempts  map[string]*app.Attempt
	released  map[string]time.Time
	reserved  map[string]int
}

func NewAttemptStore() *AttemptStore {
	return NewAttemptStoreWithClock(DefaultRetention, time.Now)
}

// NewAttemptStoreWithClock allows a custom retention and deterministic time in tests.
func NewAttemptStoreWithClock(retention time.Duration, now func() time.Time) *AttemptStore {
	return &AttemptStore{
		retention: retention,
		now:       now,
		attempts:  make(map[string]*app.Attempt),
		released:  make(map[string]time.Time),
		reserved:  make(map[string]int),
	}
}

func (s *AttemptStore) Save(_ context.Context, attempt *app.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.attempts[attempt.ID()] = attempt
	delete(s.released, attempt.ID())
	return nil
}

func (s *AttemptStore) Get(_ context.Context, attemptID string) (*app.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attempt, ok := s.attempts[attemptID]
	if !ok || s.expiredLocked(attemptID) {
		return nil, domain.ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptStore) Release(_ context.Context, attemptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.attempts[attemptID]; ok {
		s.released[attemptID] = s.now().Add(s.retention)
	}
	s.purgeLocked()
	return nil
}

func (s *AttemptStore) RevokeQuiz(_ context.Context, quizID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	revoked := 0
	for _, attempt := range s.attempts {
		if attempt.QuizID() == quizID {
			attempt.Revoke()
			revoked++
		}
	}
	return revoked, nil
}

func (s *AttemptStore) ReserveAttempt(_ context.Context, quizID, userID string, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reservationKey(quizID, userID)
	used := s.reserved[key]
	if limit > 0 && used >= limit {
		return used, fmt.Errorf("%w: %d of %d used", domain.ErrMaxAttemptsReached, used, limit)
	}
	s.reserved[key] = used + 1
	return used + 1, nil
}

func (s *AttemptStore) CancelReservation(_ context.Context, quizID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reservationKey(quizID, userID)
	if s.reserved[key] > 0 {
		s.reserved[key]--
	}
	return nil
}

func (s *AttemptStore) expiredLocked(attemptID string) bool {
	deadline, ok := s.released[attemptID]
	return ok && !s.now().Before(deadline)
}

func (s *AttemptStore) purgeLocked() {
	for attemptID := range s.released {
		if s.expiredLocked(attemptID) {
			delete(s.attempts, attemptID)
			delete(s.released, attemptID)
		}
	}
}

func reservationKey(quizID, userID string) string {
	return quizID + "/" + userID
}
