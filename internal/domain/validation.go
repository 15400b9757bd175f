package domain

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkStruct runs the tag rules and reports the first failure as a *ValidationError.
func checkStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return invalid(fieldPath(fe.Namespace()), describe(fe))
	}
	return err
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be at least " + fe.Param()
	case "lte":
		return "must be at most " + fe.Param()
	case "min":
		return "needs at least " + fe.Param() + " entries"
	case "gtefield":
		return "must not be below " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// NewQuestion applies defaults and validates a question.
func NewQuestion(q Question) (Question, error) {
	if q.Points == 0 {
		q.Points = DefaultPoints
	}
	q.Options = append([]string(nil), q.Options...)
	q.CorrectAnswer.Choices = append([]int(nil), q.CorrectAnswer.Choices...)

	if err := checkStruct(q); err != nil {
		return Question{}, err
	}
	if q.MultipleCorrect && q.Kind != KindMultipleChoice {
		return Question{}, invalid("multipleCorrect", "only multiple-choice questions may have several correct options")
	}
	if q.Kind != KindMultipleChoice && len(q.Options) > 0 {
		return Question{}, invalid("options", "only multiple-choice questions carry options")
	}

	switch q.Kind {
	case KindMultipleChoice:
		if len(q.Options) < minOptions || len(q.Options) > maxOptions {
			return Question{}, invalid("options", "multiple-choice needs %d to %d options, got %d", minOptions, maxOptions, len(q.Options))
		}
		for i, opt := range q.Options {
			if strings.TrimSpace(opt) == "" {
				return Question{}, invalid(fmt.Sprintf("options[%d]", i), "is empty")
			}
		}
		if q.MultipleCorrect {
			if len(q.CorrectAnswer.Choices) == 0 {
				return Question{}, invalid("correctAnswer.choices", "is required")
			}
			seen := make(map[int]bool, len(q.CorrectAnswer.Choices))
			for _, idx := range q.CorrectAnswer.Choices {
				if idx < 0 || idx >= len(q.Options) {
					return Question{}, invalid("correctAnswer.choices", "index %d is not an option", idx)
				}
				if seen[idx] {
					return Question{}, invalid("correctAnswer.choices", "index %d repeated", idx)
				}
				seen[idx] = true
			}
			sort.Ints(q.CorrectAnswer.Choices)
		} else if q.CorrectAnswer.Choice < 0 || q.CorrectAnswer.Choice >= len(q.Options) {
			return Question{}, invalid("correctAnswer.choice", "index %d is not an option", q.CorrectAnswer.Choice)
		}
	case KindTrueFalse:
		if q.CorrectAnswer.Text != "true" && q.CorrectAnswer.Text != "false" {
			return Question{}, invalid("correctAnswer.text", `must be "true" or "false"`)
		}
	case KindFillBlank:
		if strings.TrimSpace(q.CorrectAnswer.Text) == "" {
			return Question{}, invalid("correctAnswer.text", "is required")
		}
	case KindNumerical:
		value, err := strconv.ParseFloat(strings.TrimSpace(q.CorrectAnswer.Text), 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			return Question{}, invalid("correctAnswer.text", "is not a finite number")
		}
	}
	return q, nil
}

// NewGradingScheme validates the bands and orders them highest first. Bands must
// not overlap, must leave no gap wider than one point, and must span 0 to 100.
func NewGradingScheme(g GradingScheme) (GradingScheme, error) {
	g.Grades = append([]GradeBand(nil), g.Grades...)
	if err := checkStruct(g); err != nil {
		return GradingScheme{}, err
	}

	sort.SliceStable(g.Grades, func(i, j int) bool {
		return g.Grades[i].MinPercentage > g.Grades[j].MinPercentage
	})

	names := make(map[string]bool, len(g.Grades))
	for i, band := range g.Grades {
		if names[band.Name] {
			return GradingScheme{}, invalid("grades", "grade %q defined twice", band.Name)
		}
		names[band.Name] = true
		if i == 0 {
			continue
		}
		above := g.Grades[i-1]
		if band.MaxPercentage >= above.MinPercentage {
			return GradingScheme{}, invalid("grades", "band %s overlaps band %s", band.Name, above.Name)
		}
		if above.MinPercentage-band.MaxPercentage > 1 {
			return GradingScheme{}, invalid("grades", "gap between band %s and band %s", band.Name, above.Name)
		}
	}
	if top := g.Grades[0]; top.MaxPercentage != 100 {
		return GradingScheme{}, invalid("grades", "highest band %s must reach 100", top.Name)
	}
	if bottom := g.Grades[len(g.Grades)-1]; bottom.MinPercentage != 0 {
		return GradingScheme{}, invalid("grades", "lowest band %s must start at 0", bottom.Name)
	}
	return g, nil
}

// Band returns the grade band for a percentage, checking the highest band first.
// A percentage between two integer bands (e.g. 89.5 with B:70-89 and A:90-100)
// belongs to the lower band.
func (g GradingScheme) Band(percentage float64) (GradeBand, error) {
	for i, band := range g.Grades {
		if percentage < band.MinPercentage {
			continue
		}
		if percentage <= band.MaxPercentage || (i > 0 && percentage < g.Grades[i-1].MinPercentage) {
			return band, nil
		}
	}
	return GradeBand{}, fmt.Errorf("%w: %.1f%%", ErrNoMatchingGrade, percentage)
}

// NewQuiz applies defaults and validates a quiz together with its questions and grading scheme.
func NewQuiz(q Quiz) (Quiz, error) {
	q.CourseID = strings.TrimSpace(q.CourseID)
	q.Title = strings.TrimSpace(q.Title)
	if q.Configuration.ShowAnswersAfter == "" {
		q.Configuration.ShowAnswersAfter = ShowAnswersAfterSubmission
	}
	if len(q.GradingScheme.Grades) == 0 {
		q.GradingScheme = DefaultGradingScheme()
	}

	if err := checkStruct(q); err != nil {
		return Quiz{}, err
	}

	questions := make([]Question, 0, len(q.Questions))
	seen := make(map[string]bool, len(q.Questions))
	for i, question := range q.Questions {
		normalized, err := NewQuestion(question)
		if err != nil {
			return Quiz{}, prefixed(fmt.Sprintf("questions[%d]", i), err)
		}
		if seen[normalized.ID] {
			return Quiz{}, invalid(fmt.Sprintf("questions[%d].id", i), "duplicate question id %q", normalized.ID)
		}
		seen[normalized.ID] = true
		questions = append(questions, normalized)
	}
	q.Questions = questions

	scheme, err := NewGradingScheme(q.GradingScheme)
	if err != nil {
		return Quiz{}, prefixed("gradingScheme", err)
	}
	q.GradingScheme = scheme
	return q, nil
}
