package memory

import (
	"sync"

	"class-quiz-service/internal/app"
	"class-quiz-service/internal/domain"
)

// BoardStore is an in-memory implementation of app.BoardRepository. A board is
// dropped once its last subscriber leaves without any result recorded.
type BoardStore struct {
	mu     sync.Mutex
	boards map[string]*app.Board
}

func NewBoardStore() *BoardStore {
	return &BoardStore{
		boards: make(map[string]*app.Board),
	}
}

func (s *BoardStore) Record(result domain.Result) domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(result.QuizID).Record(result)
}

// Subscribe attaches to the quiz board, creating it if needed.
func (s *BoardStore) Subscribe(quizID string) (<-chan domain.Leaderboard, func()) {
	s.mu.Lock()
	board := s.getOrCreateLocked(quizID)
	ch, cancel := board.Subscribe()
	s.mu.Unlock()

	return ch, func() {
		cancel()
		s.mu.Lock()
		defer s.mu.Unlock()
		if current, ok := s.boards[quizID]; ok && current == board && board.IsEmpty() {
			delete(s.boards, quizID)
		}
	}
}

func (s *BoardStore) Get(quizID string) (*app.Board, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	board, ok := s.boards[quizID]
	return board, ok
}

func (s *BoardStore) Delete(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.boards, quizID)
}

func (s *BoardStore) getOrCreateLocked(quizID string) *app.Board {
	if board, ok := s.boards[quizID]; ok {
		return board
	}
	board := app.NewBoard(quizID)
	s.boards[quizID] = board
	return board
}
