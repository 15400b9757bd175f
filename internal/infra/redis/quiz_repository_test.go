package redis

import (
	"context"
	"testing"
	"time"

	"class-quiz-service/internal/domain"
	"class-quiz-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQuizRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := newClient(mr)

	loader := &countingLoader{store: memory.NewQuizStore(sampleQuiz())}
	repo := NewQuizRepository(client, loader, time.Minute)

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:quiz-1:definition") {
		t.Fatalf("expected definition cached in redis")
	}

	// Second call should hit cache, loader not incremented.
	cached, _ := repo.GetQuiz(context.Background(), "quiz-1")
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached.Title != quiz.Title || len(cached.Questions) != 1 || cached.Questions[0].CorrectAnswer.Choice != 1 {
		t.Fatalf("cached quiz differs: %+v", cached)
	}

	repo.Invalidate(context.Background(), "quiz-1")
	if mr.Exists("quiz:quiz-1:definition") {
		t.Fatalf("expected definition removed on invalidate")
	}
}

func TestQuizRepositoryInvalidateDuringLoad(t *testing.T) {
	ctx := context.Background()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := memory.NewQuizStore(sampleQuiz())
	loader := &countingLoader{store: store}
	repo := NewQuizRepository(newClient(mr), loader, time.Minute)

	// the quiz is edited and invalidated while the first read is still loading the old version
	loader.afterLoad = func() {
		edited := sampleQuiz()
		edited.Title = "Algebra"
		if _, err := store.Save(ctx, edited); err != nil {
			t.Fatalf("save: %v", err)
		}
		repo.Invalidate(ctx, "quiz-1")
	}
	if _, err := repo.GetQuiz(ctx, "quiz-1"); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if mr.Exists("quiz:quiz-1:definition") {
		t.Fatalf("a load overtaken by invalidate must not be cached")
	}

	quiz, err := repo.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("get quiz 2: %v", err)
	}
	if quiz.Title != "Algebra" || loader.calls != 2 {
		t.Fatalf("expected edited quiz from a second load, got %q after %d loads", quiz.Title, loader.calls)
	}
}

type countingLoader struct {
	store *memory.QuizStore
	calls int
	// afterLoad runs once the loader has read the store, before the result reaches the cache
	afterLoad func()
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	quiz, err := l.store.Get(ctx, quizID)
	if l.afterLoad != nil {
		hook := l.afterLoad
		l.afterLoad = nil
		hook()
	}
	return quiz, err
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:               "quiz-1",
		CourseID:         "course-1",
		ClassNumber:      1,
		Title:            "Arithmetic",
		TimeLimitMinutes: 1,
		Configuration:    domain.DefaultConfiguration(),
		GradingScheme:    domain.DefaultGradingScheme(),
		IsPublished:      true,
		Questions: []domain.Question{
			{
				ID:            "q1",
				Text:          "What is 2 + 2?",
				Kind:          domain.KindMultipleChoice,
				Options:       []string{"3", "4"},
				CorrectAnswer: domain.ChoiceAnswer(1),
				Points:        10,
			},
			{
				ID:            "q2",
				Text:          "Square root of 9",
				Kind:          domain.KindNumerical,
				CorrectAnswer: domain.TextAnswer("3"),
				Points:        10,
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
