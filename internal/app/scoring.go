package app

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"class-quiz-service/internal/domain"
)

// ErrFeedbackHidden is returned when per-answer feedback is requested but the quiz reveals answers later.
var ErrFeedbackHidden = errors.New("answer feedback not available")

// Grade scores a finished attempt against the quiz definition. It has no side effects.
func Grade(quiz domain.Quiz, attempt *Attempt) (domain.Result, error) {
	if !attempt.State().Finished() {
		return domain.Result{}, fmt.Errorf("grade attempt %s: %w", attempt.ID(), domain.ErrAttemptNotFinished)
	}
	if attempt.QuizID() != quiz.ID {
		return domain.Result{}, fmt.Errorf("grade attempt %s: %w", attempt.ID(), domain.ErrQuizNotFound)
	}

	result := domain.Result{
		QuizID:      quiz.ID,
		AttemptID:   attempt.ID(),
		UserID:      attempt.UserID(),
		DisplayName: attempt.DisplayName(),
		State:       attempt.State(),
		MaxScore:    quiz.MaxScore(),
		PerQuestion: make([]domain.QuestionResult, 0, len(quiz.Questions)),
		FinishedAt:  attempt.FinishedAt(),
	}

	raw := 0.0
	for _, question := range quiz.Questions {
		given, answered := attempt.Answer(question.ID)
		row := gradeQuestion(question, quiz.Configuration, given, answered)
		raw += row.PointsAwarded
		result.PerQuestion = append(result.PerQuestion, row)
	}

	result.RawScore = roundTo(math.Max(0, raw), 2)
	if result.MaxScore > 0 {
		result.Percentage = math.Min(100, roundTo(100*result.RawScore/result.MaxScore, 1))
	}
	result.Passed = result.Percentage >= quiz.GradingScheme.PassingPercentage

	band, err := quiz.GradingScheme.Band(result.Percentage)
	if err != nil {
		return domain.Result{}, fmt.Errorf("grade attempt %s: %w", attempt.ID(), err)
	}
	result.Grade = band.Name
	return result, nil
}

// Feedback grades the current answer of a single question while the attempt is
// running. It is only available for quizzes that reveal answers immediately.
func Feedback(attempt *Attempt, questionID string) (domain.QuestionResult, error) {
	quiz := attempt.Quiz()
	if quiz.Configuration.ShowAnswersAfter != domain.ShowAnswersImmediately {
		return domain.QuestionResult{}, ErrFeedbackHidden
	}
	if attempt.Revoked() {
		return domain.QuestionResult{}, domain.ErrQuizNotFound
	}
	question, _, ok := quiz.Question(questionID)
	if !ok {
		return domain.QuestionResult{}, fmt.Errorf("%w: %s", domain.ErrUnknownQuestion, questionID)
	}
	given, answered := attempt.Answer(questionID)
	return gradeQuestion(question, quiz.Configuration, given, answered), nil
}

// Redact hides expected answers and explanations the quiz does not reveal yet.
func Redact(result domain.Result, cfg domain.Configuration, finished bool) domain.Result {
	reveal := false
	switch cfg.ShowAnswersAfter {
	case domain.ShowAnswersImmediately:
		reveal = true
	case domain.ShowAnswersAfterSubmission:
		reveal = finished
	}
	if reveal {
		return result
	}

	rows := make([]domain.QuestionResult, len(result.PerQuestion))
	for i, row := range result.PerQuestion {
		row.Expected = nil
		row.Explanation = ""
		rows[i] = row
	}
	result.PerQuestion = rows
	return result
}

func gradeQuestion(question domain.Question, cfg domain.Configuration, given domain.Answer, answered bool) domain.QuestionResult {
	row := domain.QuestionResult{
		QuestionID:  question.ID,
		Kind:        question.Kind,
		Explanation: question.Explanation,
	}
	if question.Kind != domain.KindEssay {
		expected := copyAnswer(question.CorrectAnswer)
		row.Expected = &expected
	}
	if !answered {
		return row
	}
	row.Given = &given

	// essays wait for manual grading and are never penalized
	if question.Kind == domain.KindEssay {
		return row
	}

	fraction := credit(question, given, cfg.PartialMarkingEnabled)
	row.Correct = fraction == 1
	switch {
	case fraction > 0:
		row.PointsAwarded = roundTo(float64(question.Points)*fraction, 2)
	case cfg.NegativeMarkingEnabled:
		row.PointsAwarded = -penalty(question, cfg)
	}
	return row
}

// penalty prefers the question's own deduction and falls back to the quiz default.
func penalty(question domain.Question, cfg domain.Configuration) float64 {
	if question.NegativeMarks != 0 {
		return question.NegativeMarks
	}
	return cfg.NegativeMarksValue
}

// credit returns the fraction of the question's points earned by the answer, in [0, 1].
func credit(question domain.Question, given domain.Answer, partial bool) float64 {
	expected := question.CorrectAnswer
	switch question.Kind {
	case domain.KindMultipleChoice:
		if question.MultipleCorrect {
			return choicesCredit(len(question.Options), expected.Choices, given.Choices, partial)
		}
		return boolCredit(given.Choice == expected.Choice)
	case domain.KindTrueFalse:
		return boolCredit(given.Text == expected.Text)
	case domain.KindFillBlank:
		return boolCredit(strings.TrimSpace(given.Text) == strings.TrimSpace(expected.Text))
	case domain.KindNumerical:
		want, err := strconv.ParseFloat(strings.TrimSpace(expected.Text), 64)
		if err != nil {
			return 0
		}
		got, err := strconv.ParseFloat(strings.TrimSpace(given.Text), 64)
		if err != nil {
			return 0
		}
		return boolCredit(math.Abs(got-want) <= question.Tolerance)
	}
	return 0
}

// choicesCredit scores a multi-select answer. An exact match earns full credit.
// With partial marking the credit is hits/correct minus wrongPicks/incorrect, floored at 0.
func choicesCredit(optionCount int, expected, given []int, partial bool) float64 {
	want := make(map[int]bool, len(expected))
	for _, idx := range expected {
		want[idx] = true
	}
	hits, wrong := 0, 0
	for _, idx := range given {
		if want[idx] {
			hits++
		} else {
			wrong++
		}
	}
	if hits == len(want) && wrong == 0 {
		return 1
	}
	if !partial || len(want) == 0 {
		return 0
	}

	fraction := float64(hits) / float64(len(want))
	if incorrect := optionCount - len(want); incorrect > 0 {
		fraction -= float64(wrong) / float64(incorrect)
	}
	return math.Max(0, fraction)
}

func boolCredit(ok bool) float64 {
	if ok {
		return 1
	}
	return 0
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
