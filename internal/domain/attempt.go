package domain

import "time"

// AttemptState is the lifecycle position of a quiz attempt.
type AttemptState string

const (
	AttemptNotStarted AttemptState = "not_started"
	AttemptInProgress AttemptState = "in_progress"
	AttemptSubmitted  AttemptState = "submitted"
	AttemptExpired    AttemptState = "expired"
)

// Finished reports whether the state is terminal.
func (s AttemptState) Finished() bool {
	return s == AttemptSubmitted || s == AttemptExpired
}

// AttemptSnapshot is the serializable form of an attempt, used by stores that persist attempts.
type AttemptSnapshot struct {
	ID               string            `json:"id"`
	QuizID           string            `json:"quizId"`
	UserID           string            `json:"userId"`
	DisplayName      string            `json:"displayName"`
	State            AttemptState      `json:"state"`
	CurrentIndex     int               `json:"currentIndex"`
	RemainingSeconds int               `json:"remainingSeconds"`
	Answers          map[string]Answer `json:"answers"`
	OptionOrder      map[string][]int  `json:"optionOrder,omitempty"`
	WindowSwitches   int               `json:"windowSwitches"`
	StartedAt        time.Time         `json:"startedAt"`
	FinishedAt       time.Time         `json:"finishedAt"`
}

// QuestionResult is the grading outcome of one question.
type QuestionResult struct {
	QuestionID    string       `json:"questionId"`
	Kind          QuestionKind `json:"kind"`
	Given         *Answer      `json:"given,omitempty"`
	Correct       bool         `json:"correct"`
	PointsAwarded float64      `json:"pointsAwarded"`
	Expected      *Answer      `json:"expected,omitempty"`
	Explanation   string       `json:"explanation,omitempty"`
}

// Result is the scored outcome of a finished attempt.
type Result struct {
	QuizID      string           `json:"quizId"`
	AttemptID   string           `json:"attemptId"`
	UserID      string           `json:"userId"`
	DisplayName string           `json:"displayName"`
	State       AttemptState     `json:"state"`
	RawScore    float64          `json:"rawScore"`
	MaxScore    float64          `json:"maxScore"`
	Percentage  float64          `json:"percentage"`
	Passed      bool             `json:"passed"`
	Grade       string           `json:"grade"`
	PerQuestion []QuestionResult `json:"perQuestion"`
	FinishedAt  time.Time        `json:"finishedAt"`
}

// LeaderboardEntry is a snapshot-friendly view of a user's best result.
type LeaderboardEntry struct {
	UserID      string  `json:"userId"`
	DisplayName string  `json:"displayName"`
	Percentage  float64 `json:"percentage"`
	Grade       string  `json:"grade"`
}

// Leaderboard captures the ordered scoreboard for a quiz.
type Leaderboard struct {
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
