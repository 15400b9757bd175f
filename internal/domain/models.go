package domain

import "time"

// QuestionKind selects how a question is answered and graded.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple-choice"
	KindTrueFalse      QuestionKind = "true-false"
	KindFillBlank      QuestionKind = "fill-blank"
	KindNumerical      QuestionKind = "numerical"
	KindEssay          QuestionKind = "essay"
)

const (
	// DefaultPoints is applied to questions authored without a point value.
	DefaultPoints = 10
	minOptions    = 2
	maxOptions    = 6
)

// Answer is the value given to (or expected for) a question. The question kind
// decides which field is meaningful: Choice for multiple-choice, Choices for
// multiple-choice questions with several correct options, Text for the rest.
type Answer struct {
	Choice  int    `json:"choice"`
	Choices []int  `json:"choices,omitempty"`
	Text    string `json:"text,omitempty"`
}

func ChoiceAnswer(index int) Answer { return Answer{Choice: index} }

func ChoicesAnswer(indices ...int) Answer { return Answer{Choices: indices} }

func TextAnswer(text string) Answer { return Answer{Text: text} }

// Question models a single quiz question.
type Question struct {
	ID              string       `json:"id" validate:"required"`
	Text            string       `json:"text" validate:"required"`
	Kind            QuestionKind `json:"kind" validate:"oneof=multiple-choice true-false fill-blank numerical essay"`
	Options         []string     `json:"options,omitempty"`
	CorrectAnswer   Answer       `json:"correctAnswer"`
	MultipleCorrect bool         `json:"multipleCorrect,omitempty"`
	Points          int          `json:"points" validate:"gte=0"` // defaults to DefaultPoints if zero
	NegativeMarks   float64      `json:"negativeMarks" validate:"gte=0"`
	Tolerance       float64      `json:"tolerance,omitempty" validate:"gte=0"`
	Explanation     string       `json:"explanation,omitempty"`
}

// AnswerVisibility controls when correct answers are revealed to the student.
type AnswerVisibility string

const (
	ShowAnswersImmediately     AnswerVisibility = "immediately"
	ShowAnswersAfterSubmission AnswerVisibility = "after_submission"
	ShowAnswersNever           AnswerVisibility = "never"
)

// Configuration holds the authoring toggles of a quiz.
type Configuration struct {
	ShowQuestionMarks         bool             `json:"showQuestionMarks"`
	ShuffleAnswers            bool             `json:"shuffleAnswers"`
	WindowRestrictionEnabled  bool             `json:"windowRestrictionEnabled"`
	MaxWindowSwitchWarnings   int              `json:"maxWindowSwitchWarnings" validate:"gte=0"`
	ProctoringEnabled         bool             `json:"proctoringEnabled"`
	MaxAttempts               int              `json:"maxAttempts" validate:"gte=0"` // 0 means unlimited
	LeaderboardEnabled        bool             `json:"leaderboardEnabled"`
	AutoSubmitOnTimeout       bool             `json:"autoSubmitOnTimeout"`
	ShowAnswersAfter          AnswerVisibility `json:"showAnswersAfter" validate:"oneof=immediately after_submission never"`
	NegativeMarkingEnabled    bool             `json:"negativeMarkingEnabled"`
	NegativeMarksValue        float64          `json:"negativeMarksValue" validate:"gte=0"`
	PartialMarkingEnabled     bool             `json:"partialMarkingEnabled"`
	QuestionNavigationEnabled bool             `json:"questionNavigationEnabled"`
	ReviewModeEnabled         bool             `json:"reviewModeEnabled"`
	FullScreenRequired        bool             `json:"fullScreenRequired"`
	CopyPasteDisabled         bool             `json:"copyPasteDisabled"`
}

// DefaultConfiguration returns the toggles a freshly authored quiz starts with.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxWindowSwitchWarnings:   3,
		MaxAttempts:               1,
		AutoSubmitOnTimeout:       true,
		ShowAnswersAfter:          ShowAnswersAfterSubmission,
		QuestionNavigationEnabled: true,
		ReviewModeEnabled:         true,
	}
}

// GradeBand maps an inclusive percentage range to a letter grade.
type GradeBand struct {
	Name          string  `json:"name" validate:"required"`
	MinPercentage float64 `json:"minPercentage" validate:"gte=0,lte=100"`
	MaxPercentage float64 `json:"maxPercentage" validate:"gte=0,lte=100,gtefield=MinPercentage"`
}

// GradingScheme is the passing threshold plus letter-grade bands, highest band first.
type GradingScheme struct {
	PassingPercentage float64     `json:"passingPercentage" validate:"gte=0,lte=100"`
	Grades            []GradeBand `json:"grades" validate:"min=1,dive"`
}

// DefaultGradingScheme is used when a draft does not carry its own scheme.
func DefaultGradingScheme() GradingScheme {
	return GradingScheme{
		PassingPercentage: 60,
		Grades: []GradeBand{
			{Name: "A", MinPercentage: 90, MaxPercentage: 100},
			{Name: "B", MinPercentage: 80, MaxPercentage: 89},
			{Name: "C", MinPercentage: 70, MaxPercentage: 79},
			{Name: "D", MinPercentage: 60, MaxPercentage: 69},
			{Name: "F", MinPercentage: 0, MaxPercentage: 59},
		},
	}
}

// Quiz is a named, timed collection of questions for one class of a course.
type Quiz struct {
	ID               string        `json:"id"`
	CourseID         string        `json:"courseId" validate:"required"`
	ClassNumber      int           `json:"classNumber" validate:"gte=1"`
	Title            string        `json:"title" validate:"required"`
	Description      string        `json:"description,omitempty"`
	Instructions     string        `json:"instructions,omitempty"`
	TimeLimitMinutes int           `json:"timeLimitMinutes" validate:"gt=0"`
	Questions        []Question    `json:"questions" validate:"min=1"`
	Configuration    Configuration `json:"configuration"`
	GradingScheme    GradingScheme `json:"gradingScheme"`
	IsPublished      bool          `json:"isPublished"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Question returns the question with the given ID and its position.
func (q Quiz) Question(id string) (Question, int, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return q.Questions[i], i, true
		}
	}
	return Question{}, -1, false
}

// MaxScore is the sum of the question points.
func (q Quiz) MaxScore() float64 {
	total := 0
	for _, question := range q.Questions {
		total += question.Points
	}
	return float64(total)
}

// TimeLimitSeconds is the countdown an attempt starts with.
func (q Quiz) TimeLimitSeconds() int {
	return q.TimeLimitMinutes * 60
}
