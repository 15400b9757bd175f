package app

import "class-quiz-service/internal/domain"

// QuestionView is a question as shown to a student: options in display order
// and no correct answer.
type QuestionView struct {
	ID       string              `json:"id"`
	Text     string              `json:"text"`
	Kind     domain.QuestionKind `json:"kind"`
	Options  []string            `json:"options,omitempty"`
	Multiple bool                `json:"multiple,omitempty"`
	Points   *int                `json:"points,omitempty"`
	Selected *domain.Answer      `json:"selected,omitempty"`
}

// AttemptView is the student-facing state of an attempt.
type AttemptView struct {
	AttemptID        string              `json:"attemptId"`
	QuizID           string              `json:"quizId"`
	Title            string              `json:"title"`
	Instructions     string              `json:"instructions,omitempty"`
	State            domain.AttemptState `json:"state"`
	CurrentIndex     int                 `json:"currentIndex"`
	Total            int                 `json:"total"`
	Answered         int                 `json:"answered"`
	RemainingSeconds int                 `json:"remainingSeconds"`
	WarningsLeft     int                 `json:"warningsLeft"`
	Question         QuestionView        `json:"question"`
}

// View renders the current question of an attempt. Selected choices are
// reported in display positions.
func View(a *Attempt) AttemptView {
	quiz := a.Quiz()
	view := AttemptView{
		AttemptID:        a.ID(),
		QuizID:           quiz.ID,
		Title:            quiz.Title,
		Instructions:     quiz.Instructions,
		State:            a.State(),
		CurrentIndex:     a.CurrentIndex(),
		Total:            len(quiz.Questions),
		Answered:         a.Answered(),
		RemainingSeconds: a.RemainingSeconds(),
		WarningsLeft:     a.WarningsLeft(),
	}
	if len(quiz.Questions) == 0 {
		return view
	}

	q := quiz.Questions[a.CurrentIndex()]
	qv := QuestionView{
		ID:       q.ID,
		Text:     q.Text,
		Kind:     q.Kind,
		Multiple: q.MultipleCorrect,
	}
	if quiz.Configuration.ShowQuestionMarks {
		points := q.Points
		qv.Points = &points
	}

	order := a.OptionOrder(q.ID)
	displayOf := make(map[int]int, len(order))
	for display, original := range order {
		qv.Options = append(qv.Options, q.Options[original])
		displayOf[original] = display
	}

	if answer, ok := a.Answer(q.ID); ok {
		if q.Kind == domain.KindMultipleChoice {
			answer.Choice = displayOf[answer.Choice]
			for i, original := range answer.Choices {
				answer.Choices[i] = displayOf[original]
			}
		}
		qv.Selected = &answer
	}
	view.Question = qv
	return view
}
