package app_test

import (
	"context"
	"errors"
	"testing"

	"class-quiz-service/internal/domain"
)

func publishQuiz(t *testing.T, f *fixture, cfg domain.Configuration, questions ...domain.Question) domain.Quiz {
	t.Helper()
	ctx := context.Background()
	d := draft(questions...)
	d.Configuration = cfg
	quiz, err := f.authoring.CreateOrReplace(ctx, "course-1", 1, d)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	quiz, err = f.authoring.Publish(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return quiz
}

func TestAttemptServiceSubmitGradesAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	cfg := domain.DefaultConfiguration()
	cfg.LeaderboardEnabled = true
	quiz := publishQuiz(t, f, cfg, mcQuestion("q1", 0), mcQuestion("q2", 1))

	attempt, err := f.service.Begin(ctx, "course-1", 1, "u1", "Alice")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if attempt.QuizID() != quiz.ID || attempt.State() != domain.AttemptInProgress {
		t.Fatalf("unexpected attempt %s %s", attempt.QuizID(), attempt.State())
	}
	if _, err := f.service.Answer(ctx, attempt.ID(), "q1", domain.ChoiceAnswer(0)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if _, err := f.service.Next(ctx, attempt.ID()); err != nil {
		t.Fatalf("next: %v", err)
	}
	if _, err := f.service.Answer(ctx, attempt.ID(), "q2", domain.ChoiceAnswer(3)); err != nil {
		t.Fatalf("answer: %v", err)
	}

	result, err := f.service.Submit(ctx, attempt.ID())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Percentage != 50 || result.State != domain.AttemptSubmitted {
		t.Fatalf("expected 50%% submitted, got %+v", result)
	}
	if len(f.published) != 1 || f.published[0].AttemptID != attempt.ID() {
		t.Fatalf("expected one published result, got %+v", f.published)
	}

	lb := f.service.Leaderboard(ctx, quiz.ID)
	if len(lb.Entries) != 1 || lb.Entries[0].UserID != "u1" {
		t.Fatalf("expected Alice on the leaderboard, got %+v", lb.Entries)
	}

	if _, err := f.service.Submit(ctx, attempt.ID()); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected second submit to fail, got %v", err)
	}
	if len(f.published) != 1 {
		t.Fatalf("failed submit must not publish again")
	}
}

func TestAttemptServiceEnforcesMaxAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	cfg := domain.DefaultConfiguration()
	cfg.MaxAttempts = 1
	publishQuiz(t, f, cfg, mcQuestion("q1", 0))

	attempt, err := f.service.Begin(ctx, "course-1", 1, "u1", "Alice")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.service.Submit(ctx, attempt.ID()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := f.service.Begin(ctx, "course-1", 1, "u1", "Alice"); !errors.Is(err, domain.ErrMaxAttemptsReached) {
		t.Fatalf("expected max attempts reached, got %v", err)
	}
	if _, err := f.service.Begin(ctx, "course-1", 1, "u2", "Bob"); err != nil {
		t.Fatalf("other users keep their attempts: %v", err)
	}
}

func TestAttemptServiceTickExpiresAndGrades(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	publishQuiz(t, f, domain.DefaultConfiguration(), mcQuestion("q1", 0), mcQuestion("q2", 0), mcQuestion("q3", 0))

	attempt, err := f.service.Begin(ctx, "course-1", 1, "u1", "Alice")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.service.Answer(ctx, attempt.ID(), "q1", domain.ChoiceAnswer(0)); err != nil {
		t.Fatalf("answer: %v", err)
	}
	for i := 0; i < 61; i++ {
		if _, err := f.service.Tick(ctx, attempt.ID(), 1); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	if len(f.published) != 1 {
		t.Fatalf("expected exactly one graded result, got %d", len(f.published))
	}
	result, err := f.service.Result(ctx, attempt.ID())
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.State != domain.AttemptExpired || result.RawScore != 10 || result.MaxScore != 30 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAttemptServiceResultRequiresFinishedAttempt(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	publishQuiz(t, f, domain.DefaultConfiguration(), mcQuestion("q1", 0))

	attempt, _ := f.service.Begin(ctx, "course-1", 1, "u1", "Alice")
	if _, err := f.service.Result(ctx, attempt.ID()); !errors.Is(err, domain.ErrAttemptNotFinished) {
		t.Fatalf("expected not finished, got %v", err)
	}
	if _, err := f.service.Answer(ctx, "missing", "q1", domain.ChoiceAnswer(0)); !errors.Is(err, domain.ErrAttemptNotFound) {
		t.Fatalf("expected attempt not found, got %v", err)
	}
}

func TestAttemptServiceWindowSwitchSubmits(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	cfg := domain.DefaultConfiguration()
	cfg.WindowRestrictionEnabled = true
	cfg.MaxWindowSwitchWarnings = 0
	publishQuiz(t, f, cfg, mcQuestion("q1", 0))

	attempt, _ := f.service.Begin(ctx, "course-1", 1, "u1", "Alice")
	got, err := f.service.WindowSwitch(ctx, attempt.ID())
	if err != nil {
		t.Fatalf("window switch: %v", err)
	}
	if got.State() != domain.AttemptSubmitted || len(f.published) != 1 {
		t.Fatalf("expected forced submission, got %s with %d results", got.State(), len(f.published))
	}
}

func TestAttemptServiceCountsRunningAttemptsAgainstLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	cfg := domain.DefaultConfiguration()
	cfg.MaxAttempts = 2
	publishQuiz(t, f, cfg, mcQuestion("q1", 0))

	// two tabs open at once use up both attempts before either is submitted
	for i := 0; i < 2; i++ {
		if _, err := f.service.Begin(ctx, "course-1", 1, "u1", "Alice"); err != nil {
			t.Fatalf("begin %d: %v", i, err)
		}
	}
	if _, err := f.service.Begin(ctx, "course-1", 1, "u1", "Alice"); !errors.Is(err, domain.ErrMaxAttemptsReached) {
		t.Fatalf("expected max attempts reached while attempts run, got %v", err)
	}
	if len(f.published) != 0 {
		t.Fatalf("nothing was submitted, got %d results", len(f.published))
	}
}

func TestAttemptServiceReleaseKeepsResultReadable(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	publishQuiz(t, f, domain.DefaultConfiguration(), mcQuestion("q1", 0))

	attempt, err := f.service.Begin(ctx, "course-1", 1, "u1", "Alice")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := f.service.Submit(ctx, attempt.ID()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := f.service.Release(ctx, attempt.ID()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := f.service.Result(ctx, attempt.ID()); err != nil {
		t.Fatalf("expected result after release, got %v", err)
	}
}
