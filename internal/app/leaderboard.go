package app

import (
	"sort"
	"sync"
	"time"

	"class-quiz-service/internal/domain"
)

// Board keeps the best graded result of every user for one quiz and fans out snapshots.
type Board struct {
	quizID      string
	now         func() time.Time
	mu          sync.RWMutex
	standings   map[string]*standing
	subscribers map[chan domain.Leaderboard]struct{}
}

type standing struct {
	userID      string
	displayName string
	percentage  float64
	grade       string
	achievedAt  time.Time
}

// NewBoard is exported for infrastructure layers that keep boards.
func NewBoard(quizID string) *Board {
	return NewBoardWithClock(quizID, time.Now)
}

// NewBoardWithClock allows deterministic timestamps in tests.
func NewBoardWithClock(quizID string, now func() time.Time) *Board {
	return &Board{
		quizID:      quizID,
		now:         now,
		standings:   make(map[string]*standing),
		subscribers: make(map[chan domain.Leaderboard]struct{}),
	}
}

// Record adds a graded result; a user's entry only moves when the new result is better.
func (b *Board) Record(result domain.Result) domain.Leaderboard {
	b.mu.Lock()
	defer b.mu.Unlock()

	achievedAt := result.FinishedAt
	if achievedAt.IsZero() {
		achievedAt = b.now()
	}
	current, ok := b.standings[result.UserID]
	if ok && current.percentage >= result.Percentage {
		return b.snapshotLocked()
	}
	b.standings[result.UserID] = &standing{
		userID:      result.UserID,
		displayName: result.DisplayName,
		percentage:  result.Percentage,
		grade:       result.Grade,
		achievedAt:  achievedAt,
	}
	return b.broadcastLocked()
}

// Snapshot returns the current ordering.
func (b *Board) Snapshot() domain.Leaderboard {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// IsEmpty reports whether the board has no results and no subscribers.
func (b *Board) IsEmpty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.standings) == 0 && len(b.subscribers) == 0
}

// Subscribe returns a channel primed with the current snapshot. The caller must
// invoke the cancel function to release the channel.
func (b *Board) Subscribe() (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	initial := b.snapshotLocked()
	b.mu.Unlock()

	ch <- initial

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Close drops every subscriber, used when the quiz is removed.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}

func (b *Board) broadcastLocked() domain.Leaderboard {
	lb := b.snapshotLocked()
	for ch := range b.subscribers {
		select {
		case ch <- lb:
		default:
			// slow reader: replace its oldest pending snapshot
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
	return lb
}

func (b *Board) snapshotLocked() domain.Leaderboard {
	ordered := make([]*standing, 0, len(b.standings))
	for _, s := range b.standings {
		ordered = append(ordered, s)
	}

	// best percentage first, then whoever got there earlier, then name
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].percentage != ordered[j].percentage {
			return ordered[i].percentage > ordered[j].percentage
		}
		if !ordered[i].achievedAt.Equal(ordered[j].achievedAt) {
			return ordered[i].achievedAt.Before(ordered[j].achievedAt)
		}
		return ordered[i].displayName < ordered[j].displayName
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ordered))
	for _, s := range ordered {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      s.userID,
			DisplayName: s.displayName,
			Percentage:  s.percentage,
			Grade:       s.grade,
		})
	}
	return domain.Leaderboard{
		QuizID:    b.quizID,
		Entries:   entries,
		UpdatedAt: b.now(),
	}
}
