package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"class-quiz-service/internal/app"
	"class-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// AttemptStore is a Redis-backed implementation of app.AttemptRepository.
// Notes:
//   - Attempts driven by a session on this instance stay in a local map so the
//     session keeps working on the same value; Release drops that hold.
//   - Every save writes a JSON snapshot with the attempt TTL, so an attempt survives
//     a restart of the process and is rebuilt on the next Get.
//   - Attempt counters and quiz revocation markers live only in Redis and are
//     shared across instances; the marker is checked on every Get.
type AttemptStore struct {
	client   *redis.Client
	quizzes  app.QuizRepository
	ttl      time.Duration
	mu       sync.RWMutex
	attempts map[string]*app.Attempt
}

func NewAttemptStore(client *redis.Client, quizzes app.QuizRepository, ttl time.Duration) *AttemptStore {
	return &AttemptStore{
		client:   client,
		quizzes:  quizzes,
		ttl:      ttl,
		attempts: make(map[string]*app.Attempt),
	}
}

func (s *AttemptStore) Save(ctx context.Context, attempt *app.Attempt) error {
	data, err := json.Marshal(attempt.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	s.mu.Lock()
	s.attempts[attempt.ID()] = attempt
	s.mu.Unlock()

	if err := s.client.Set(ctx, attemptKey(attempt.ID()), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (*app.Attempt, error) {
	s.mu.RLock()
	attempt, ok := s.attempts[attemptID]
	s.mu.RUnlock()
	if ok {
		if err := s.checkRevoked(ctx, attempt); err != nil {
			return nil, err
		}
		return attempt, nil
	}

	data, err := s.client.Get(ctx, attemptKey(attemptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load attempt: %w", err)
	}
	var snap domain.AttemptSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal attempt: %w", err)
	}

	quiz, err := s.quizzes.GetQuiz(ctx, snap.QuizID)
	if err != nil {
		return nil, err
	}
	attempt, err = app.RestoreAttempt(quiz, snap)
	if err != nil {
		return nil, err
	}
	// restored copies are not held; a Save takes the hold
	if err := s.checkRevoked(ctx, attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

// Release forgets the local copy; the snapshot stays until its TTL.
func (s *AttemptStore) Release(_ context.Context, attemptID string) error {
	s.mu.Lock()
	delete(s.attempts, attemptID)
	s.mu.Unlock()
	return nil
}

// checkRevoked applies a revocation made by any instance.
func (s *AttemptStore) checkRevoked(ctx context.Context, attempt *app.Attempt) error {
	if attempt.Revoked() {
		return nil
	}
	n, err := s.client.Exists(ctx, revokedKey(attempt.QuizID())).Result()
	if err != nil {
		return fmt.Errorf("check quiz revocation: %w", err)
	}
	if n > 0 {
		attempt.Revoke()
	}
	return nil
}

func (s *AttemptStore) RevokeQuiz(ctx context.Context, quizID string) (int, error) {
	s.mu.RLock()
	revoked := 0
	for _, attempt := range s.attempts {
		if attempt.QuizID() == quizID {
			attempt.Revoke()
			revoked++
		}
	}
	s.mu.RUnlock()

	// marks snapshots held by other instances
	if err := s.client.Set(ctx, revokedKey(quizID), "1", s.ttl).Err(); err != nil {
		return revoked, fmt.Errorf("mark quiz revoked: %w", err)
	}
	return revoked, nil
}

func (s *AttemptStore) ReserveAttempt(ctx context.Context, quizID, userID string, limit int) (int, error) {
	key := attemptsKey(quizID, userID)
	used, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("reserve attempt: %w", err)
	}
	if limit > 0 && used > int64(limit) {
		if err := s.client.Decr(ctx, key).Err(); err != nil {
			return 0, fmt.Errorf("undo attempt reservation: %w", err)
		}
		return limit, fmt.Errorf("%w: %d of %d used", domain.ErrMaxAttemptsReached, limit, limit)
	}
	return int(used), nil
}

func (s *AttemptStore) CancelReservation(ctx context.Context, quizID, userID string) error {
	if err := s.client.Decr(ctx, attemptsKey(quizID, userID)).Err(); err != nil {
		return fmt.Errorf("cancel attempt reservation: %w", err)
	}
	return nil
}

func attemptKey(attemptID string) string {
	return "quiz:attempt:" + attemptID
}

func revokedKey(quizID string) string {
	return "quiz:" + quizID + ":revoked"
}

func attemptsKey(quizID, userID string) string {
	return "quiz:" + quizID + ":attempts:" + userID
}
