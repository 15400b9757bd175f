package app_test

import (
	"context"
	"errors"
	"testing"

	"class-quiz-service/internal/app"
	"class-quiz-service/internal/domain"
	"class-quiz-service/internal/infra/memory"
)

type fixture struct {
	store     *memory.QuizStore
	attempts  *memory.AttemptStore
	boards    *memory.BoardStore
	authoring *app.AuthoringService
	service   *app.AttemptService
	published []domain.Result
}

func (f *fixture) PublishResult(_ context.Context, result domain.Result) error {
	f.published = append(f.published, result)
	return nil
}

func newFixture() *fixture {
	f := &fixture{
		store:    memory.NewQuizStore(),
		attempts: memory.NewAttemptStore(),
		boards:   memory.NewBoardStore(),
	}
	cache := memory.NewQuizRepository(app.QuizLoaderFunc(f.store.Get), 0)
	f.authoring = app.NewAuthoringService(f.store, cache, f.attempts, f.boards)
	f.service = app.NewAttemptService(f.store, f.attempts, f.boards, f)
	return f
}

func draft(questions ...domain.Question) domain.Quiz {
	return domain.Quiz{
		Title:            "Week 1",
		TimeLimitMinutes: 1,
		Questions:        questions,
		Configuration:    domain.DefaultConfiguration(),
	}
}

func TestCreateOrReplaceKeepsOneQuizPerClass(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	first, err := f.authoring.CreateOrReplace(ctx, "course-1", 1, draft(mcQuestion("q1", 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if first.ID == "" || first.IsPublished {
		t.Fatalf("expected new unpublished quiz with id, got %+v", first)
	}
	if _, err := f.authoring.Publish(ctx, first.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}

	second, err := f.authoring.CreateOrReplace(ctx, "course-1", 1, draft(mcQuestion("q1", 1), mcQuestion("q2", 0)))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if second.ID != first.ID || !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("replace must keep identity, got %s vs %s", second.ID, first.ID)
	}
	if second.IsPublished {
		t.Fatalf("replaced quiz must be unpublished")
	}

	quizzes, err := f.authoring.List(ctx)
	if err != nil || len(quizzes) != 1 || len(quizzes[0].Questions) != 2 {
		t.Fatalf("expected one quiz with two questions, got %d %v", len(quizzes), err)
	}
	got, err := f.authoring.Get(ctx, first.ID)
	if err != nil || len(got.Questions) != 2 {
		t.Fatalf("expected cache to see replacement, got %+v %v", got, err)
	}
}

func TestCreateOrReplaceRejectsInvalidDraft(t *testing.T) {
	f := newFixture()
	_, err := f.authoring.CreateOrReplace(context.Background(), "course-1", 1, draft())
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if quizzes, _ := f.authoring.List(context.Background()); len(quizzes) != 0 {
		t.Fatalf("invalid draft must not be stored")
	}
}

func TestRemoveRevokesRunningAttempts(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	quiz, err := f.authoring.CreateOrReplace(ctx, "course-1", 1, draft(mcQuestion("q1", 0)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.authoring.Publish(ctx, quiz.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	attempt, err := f.service.Begin(ctx, "course-1", 1, "u1", "Alice")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	if err := f.authoring.Remove(ctx, quiz.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := f.service.Answer(ctx, attempt.ID(), "q1", domain.ChoiceAnswer(0)); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found for running attempt, got %v", err)
	}
	if _, err := f.authoring.Get(ctx, quiz.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected removed quiz gone, got %v", err)
	}
	if err := f.authoring.Remove(ctx, quiz.ID); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected second remove to fail, got %v", err)
	}
}

func TestUnpublishHidesQuizFromStudents(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	quiz, _ := f.authoring.CreateOrReplace(ctx, "course-1", 1, draft(mcQuestion("q1", 0)))
	if _, err := f.service.Begin(ctx, "course-1", 1, "u1", "Alice"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected draft to be hidden, got %v", err)
	}
	if _, err := f.authoring.Publish(ctx, quiz.ID); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := f.service.Begin(ctx, "course-1", 1, "u1", "Alice"); err != nil {
		t.Fatalf("begin after publish: %v", err)
	}
	if _, err := f.authoring.Unpublish(ctx, quiz.ID); err != nil {
		t.Fatalf("unpublish: %v", err)
	}
	if _, err := f.service.Begin(ctx, "course-1", 1, "u2", "Bob"); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected unpublished quiz to be hidden, got %v", err)
	}
}
