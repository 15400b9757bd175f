package app

import (
	"fmt"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"class-quiz-service/internal/domain"
)

// Attempt is one user's run through a quiz. It is owned by a single session and
// is not safe for concurrent use, except for Revoke which may be called from anywhere.
type Attempt struct {
	id          string
	userID      string
	displayName string
	quiz        domain.Quiz
	now         func() time.Time

	state            domain.AttemptState
	currentIndex     int
	remainingSeconds int
	answers          map[string]domain.Answer
	optionOrder      map[string][]int
	windowSwitches   int
	startedAt        time.Time
	finishedAt       time.Time

	revoked atomic.Bool
}

// NewAttempt prepares an attempt in the not-started state.
func NewAttempt(id string, quiz domain.Quiz, userID, displayName string) *Attempt {
	return NewAttemptWithClock(id, quiz, userID, displayName, time.Now)
}

// NewAttemptWithClock allows deterministic timestamps in tests.
func NewAttemptWithClock(id string, quiz domain.Quiz, userID, displayName string, now func() time.Time) *Attempt {
	return &Attempt{
		id:          id,
		userID:      userID,
		displayName: displayName,
		quiz:        quiz,
		now:         now,
		state:       domain.AttemptNotStarted,
		answers:     make(map[string]domain.Answer),
		optionOrder: make(map[string][]int),
	}
}

// RestoreAttempt rebuilds an attempt from a snapshot taken by Snapshot.
func RestoreAttempt(quiz domain.Quiz, snap domain.AttemptSnapshot) (*Attempt, error) {
	if snap.QuizID != quiz.ID {
		return nil, fmt.Errorf("restore attempt %s: %w", snap.ID, domain.ErrQuizNotFound)
	}
	if len(quiz.Questions) == 0 || snap.CurrentIndex < 0 || snap.CurrentIndex >= len(quiz.Questions) || snap.RemainingSeconds < 0 {
		return nil, fmt.Errorf("restore attempt %s: %w", snap.ID, domain.ErrOutOfRange)
	}
	a := NewAttempt(snap.ID, quiz, snap.UserID, snap.DisplayName)
	a.state = snap.State
	a.currentIndex = snap.CurrentIndex
	a.remainingSeconds = snap.RemainingSeconds
	a.windowSwitches = snap.WindowSwitches
	a.startedAt = snap.StartedAt
	a.finishedAt = snap.FinishedAt
	for questionID, answer := range snap.Answers {
		if _, _, ok := quiz.Question(questionID); !ok {
			return nil, fmt.Errorf("restore attempt %s: %w: %s", snap.ID, domain.ErrUnknownQuestion, questionID)
		}
		a.answers[questionID] = copyAnswer(answer)
	}
	for questionID, order := range snap.OptionOrder {
		a.optionOrder[questionID] = append([]int(nil), order...)
	}
	return a, nil
}

// Start begins the countdown. It is only legal once.
func (a *Attempt) Start() error {
	if a.revoked.Load() {
		return domain.ErrQuizNotFound
	}
	if a.state != domain.AttemptNotStarted {
		return fmt.Errorf("%w: start while %s", domain.ErrInvalidTransition, a.state)
	}
	if len(a.quiz.Questions) == 0 {
		return fmt.Errorf("%w: quiz has no questions", domain.ErrOutOfRange)
	}

	a.remainingSeconds = a.quiz.TimeLimitSeconds()
	a.currentIndex = 0
	a.startedAt = a.now()
	if a.quiz.Configuration.ShuffleAnswers {
		a.shuffleOptions(rand.New(rand.NewSource(a.startedAt.UnixNano())))
	}
	a.state = domain.AttemptInProgress
	return nil
}

func (a *Attempt) shuffleOptions(rnd *rand.Rand) {
	for _, q := range a.quiz.Questions {
		if q.Kind != domain.KindMultipleChoice {
			continue
		}
		order := rnd.Perm(len(q.Options))
		a.optionOrder[q.ID] = order
	}
}

// Tick consumes elapsed seconds from the countdown. When the countdown reaches
// zero and auto-submit is on, the attempt expires; it reports true only on the
// tick that caused the expiry. Ticks arriving after expiry are ignored.
func (a *Attempt) Tick(elapsedSeconds int) (bool, error) {
	if a.revoked.Load() {
		return false, domain.ErrQuizNotFound
	}
	if a.state == domain.AttemptExpired {
		return false, nil
	}
	if err := a.requireInProgress("tick"); err != nil {
		return false, err
	}
	if elapsedSeconds < 0 {
		return false, fmt.Errorf("%w: negative tick %d", domain.ErrOutOfRange, elapsedSeconds)
	}

	a.remainingSeconds -= elapsedSeconds
	if a.remainingSeconds < 0 {
		a.remainingSeconds = 0
	}
	if a.remainingSeconds == 0 && a.quiz.Configuration.AutoSubmitOnTimeout {
		a.finish(domain.AttemptExpired)
		return true, nil
	}
	return false, nil
}

// SelectAnswer records the answer for a question, replacing any earlier one.
func (a *Attempt) SelectAnswer(questionID string, value domain.Answer) error {
	if err := a.requireInProgress("select answer"); err != nil {
		return err
	}
	question, _, ok := a.quiz.Question(questionID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownQuestion, questionID)
	}

	value = copyAnswer(value)
	if question.Kind == domain.KindMultipleChoice {
		if question.MultipleCorrect {
			seen := make(map[int]bool, len(value.Choices))
			choices := make([]int, 0, len(value.Choices))
			for _, idx := range value.Choices {
				if idx < 0 || idx >= len(question.Options) {
					return fmt.Errorf("%w: option %d of question %s", domain.ErrOutOfRange, idx, questionID)
				}
				if !seen[idx] {
					seen[idx] = true
					choices = append(choices, idx)
				}
			}
			sort.Ints(choices)
			value = domain.ChoicesAnswer(choices...)
		} else {
			if value.Choice < 0 || value.Choice >= len(question.Options) {
				return fmt.Errorf("%w: option %d of question %s", domain.ErrOutOfRange, value.Choice, questionID)
			}
			value = domain.ChoiceAnswer(value.Choice)
		}
	}

	a.answers[questionID] = value
	return nil
}

// GoTo moves to the question at index.
func (a *Attempt) GoTo(index int) error {
	if err := a.requireNavigation("go to"); err != nil {
		return err
	}
	if index < 0 || index >= len(a.quiz.Questions) {
		return fmt.Errorf("%w: question index %d of %d", domain.ErrOutOfRange, index, len(a.quiz.Questions))
	}
	a.currentIndex = index
	return nil
}

// Next moves forward one question, staying on the last one.
func (a *Attempt) Next() error {
	if err := a.requireNavigation("next"); err != nil {
		return err
	}
	if a.currentIndex < len(a.quiz.Questions)-1 {
		a.currentIndex++
	}
	return nil
}

// Previous moves back one question, staying on the first one.
func (a *Attempt) Previous() error {
	if err := a.requireNavigation("previous"); err != nil {
		return err
	}
	if a.currentIndex > 0 {
		a.currentIndex--
	}
	return nil
}

// Submit ends the attempt regardless of how many questions were answered.
func (a *Attempt) Submit() error {
	if err := a.requireInProgress("submit"); err != nil {
		return err
	}
	a.finish(domain.AttemptSubmitted)
	return nil
}

// ReportWindowSwitch records that the user left the quiz window. With window
// restriction on, exceeding the allowed warnings submits the attempt and the
// call reports true.
func (a *Attempt) ReportWindowSwitch() (bool, error) {
	if err := a.requireInProgress("window switch"); err != nil {
		return false, err
	}
	a.windowSwitches++
	cfg := a.quiz.Configuration
	if cfg.WindowRestrictionEnabled && a.windowSwitches > cfg.MaxWindowSwitchWarnings {
		a.finish(domain.AttemptSubmitted)
		return true, nil
	}
	return false, nil
}

// WarningsLeft is the number of window switches tolerated before forced submission,
// or -1 when window restriction is off.
func (a *Attempt) WarningsLeft() int {
	cfg := a.quiz.Configuration
	if !cfg.WindowRestrictionEnabled {
		return -1
	}
	left := cfg.MaxWindowSwitchWarnings - a.windowSwitches
	if left < 0 {
		return 0
	}
	return left
}

// Revoke marks the attempt's quiz as removed; every later operation fails with ErrQuizNotFound.
func (a *Attempt) Revoke() {
	a.revoked.Store(true)
}

func (a *Attempt) Revoked() bool {
	return a.revoked.Load()
}

func (a *Attempt) finish(state domain.AttemptState) {
	a.state = state
	a.finishedAt = a.now()
}

func (a *Attempt) requireInProgress(op string) error {
	if a.revoked.Load() {
		return domain.ErrQuizNotFound
	}
	if a.state != domain.AttemptInProgress {
		return fmt.Errorf("%w: %s while %s", domain.ErrInvalidTransition, op, a.state)
	}
	return nil
}

func (a *Attempt) requireNavigation(op string) error {
	if err := a.requireInProgress(op); err != nil {
		return err
	}
	if !a.quiz.Configuration.QuestionNavigationEnabled {
		return domain.ErrNavigationDisabled
	}
	return nil
}

func (a *Attempt) ID() string                 { return a.id }
func (a *Attempt) QuizID() string             { return a.quiz.ID }
func (a *Attempt) Quiz() domain.Quiz          { return a.quiz }
func (a *Attempt) UserID() string             { return a.userID }
func (a *Attempt) DisplayName() string        { return a.displayName }
func (a *Attempt) State() domain.AttemptState { return a.state }
func (a *Attempt) CurrentIndex() int          { return a.currentIndex }
func (a *Attempt) RemainingSeconds() int      { return a.remainingSeconds }
func (a *Attempt) StartedAt() time.Time       { return a.startedAt }
func (a *Attempt) FinishedAt() time.Time      { return a.finishedAt }

// Answer returns the recorded answer for a question.
func (a *Attempt) Answer(questionID string) (domain.Answer, bool) {
	answer, ok := a.answers[questionID]
	if !ok {
		return domain.Answer{}, false
	}
	return copyAnswer(answer), true
}

// Answered counts questions with a recorded answer.
func (a *Attempt) Answered() int {
	return len(a.answers)
}

// OptionOrder returns the display order of a question's options as original
// option indices. Without shuffling it is the identity order.
func (a *Attempt) OptionOrder(questionID string) []int {
	if order, ok := a.optionOrder[questionID]; ok {
		return append([]int(nil), order...)
	}
	question, _, ok := a.quiz.Question(questionID)
	if !ok {
		return nil
	}
	order := make([]int, len(question.Options))
	for i := range order {
		order[i] = i
	}
	return order
}

// OriginalChoice maps an option index as displayed to the user back to the authored index.
func (a *Attempt) OriginalChoice(questionID string, displayIndex int) (int, error) {
	order := a.OptionOrder(questionID)
	if order == nil {
		return 0, fmt.Errorf("%w: %s", domain.ErrUnknownQuestion, questionID)
	}
	if displayIndex < 0 || displayIndex >= len(order) {
		return 0, fmt.Errorf("%w: option %d of question %s", domain.ErrOutOfRange, displayIndex, questionID)
	}
	return order[displayIndex], nil
}

// Snapshot captures the attempt for persistence.
func (a *Attempt) Snapshot() domain.AttemptSnapshot {
	snap := domain.AttemptSnapshot{
		ID:               a.id,
		QuizID:           a.quiz.ID,
		UserID:           a.userID,
		DisplayName:      a.displayName,
		State:            a.state,
		CurrentIndex:     a.currentIndex,
		RemainingSeconds: a.remainingSeconds,
		Answers:          make(map[string]domain.Answer, len(a.answers)),
		WindowSwitches:   a.windowSwitches,
		StartedAt:        a.startedAt,
		FinishedAt:       a.finishedAt,
	}
	for questionID, answer := range a.answers {
		snap.Answers[questionID] = copyAnswer(answer)
	}
	if len(a.optionOrder) > 0 {
		snap.OptionOrder = make(map[string][]int, len(a.optionOrder))
		for questionID, order := range a.optionOrder {
			snap.OptionOrder[questionID] = append([]int(nil), order...)
		}
	}
	return snap
}

func copyAnswer(answer domain.Answer) domain.Answer {
	answer.Choices = append([]int(nil), answer.Choices...)
	return answer
}
