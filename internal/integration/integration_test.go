package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"archetype-chat-service/internal/app"
	"archetype-chat-service/internal/chatapi"
	"archetype-chat-service/internal/domain"
	"archetype-chat-service/internal/identity"
	pgloader "archetype-chat-service/internal/infra/postgres"
	pgmigrations "archetype-chat-service/internal/infra/postgres/migrations"
	infraredis "archetype-chat-service/internal/infra/redis"
	"archetype-chat-service/internal/scoring"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestQuizAndChatEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateSchema(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	loader := pgloader.NewQuizLoader(pool)
	if err := loader.SaveQuiz(ctx, sampleQuiz()); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	remote := newFakeRemote()
	defer remote.Close()
	chat, err := chatapi.NewClient(nil, remote.URL, 2*time.Second)
	if err != nil {
		t.Fatalf("chat client: %v", err)
	}

	quizRepo := infraredis.NewQuizRepository(redisClient, loader, 5*time.Minute)
	quizzes, err := app.NewQuizService(quizRepo, chat, scoring.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("quiz service: %v", err)
	}
	store := infraredis.NewSessionStore(redisClient, time.Hour).Namespace("device:it:")
	ids := identity.NewManager(store)

	sessionID, err := ids.StartNewSession(ctx)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	answers := []domain.AnswerSubmission{
		{QuestionID: 1, OptionID: "q1b"},
		{QuestionID: 2, OptionID: "q2c"},
		{QuestionID: 3, OptionID: "q3a"},
	}
	out, err := quizzes.Submit(ctx, store, sessionID, "quiz-1", answers)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if out.Result.Winner != "nurturer" || out.Result.TieRule != "Question 1 preference" {
		t.Fatalf("unexpected result %+v", out.Result)
	}
	again, err := quizzes.Submit(ctx, store, sessionID, "quiz-1", answers)
	if err != nil || !again.AlreadySubmitted {
		t.Fatalf("expected idempotent resubmit, got %+v err=%v", again, err)
	}
	if remote.quizCount() != 1 {
		t.Fatalf("expected one remote submission, got %d", remote.quizCount())
	}

	conv := app.NewConversation(chat, ids, nil)
	if err := conv.InitializeSession(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	conv.SetDraft("hello")
	if _, err := conv.SendMessage(ctx); err != nil {
		t.Fatalf("send: %v", err)
	}
	snap := conv.Snapshot()
	if len(snap.Messages) != 3 || snap.Messages[2].Text != "echo: hello" {
		t.Fatalf("unexpected log %+v", snap.Messages)
	}

	// A new manager over the same Redis namespace sees the persisted pair.
	restored, ok, err := identity.NewManager(store).Identity(ctx)
	if err != nil || !ok {
		t.Fatalf("restore identity: ok=%v err=%v", ok, err)
	}
	if restored.SessionID != sessionID || restored.ConversationID != "conv-"+sessionID {
		t.Fatalf("unexpected restored identity %+v", restored)
	}
}

type fakeRemote struct {
	*httptest.Server
	mu      sync.Mutex
	quizzes int
}

func newFakeRemote() *fakeRemote {
	f := &fakeRemote{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/greeting", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(chatapi.Greeting{GreetingMessage: "Hello!", SessionID: r.URL.Query().Get("sessionId")})
	})
	mux.HandleFunc("/api/chat/message", func(w http.ResponseWriter, r *http.Request) {
		var req chatapi.SendRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(chatapi.SendResponse{Success: true, Data: &chatapi.ReplyData{
			Response:        "echo: " + req.Message,
			SessionMetadata: chatapi.SessionMetadata{ConversationID: "conv-" + req.SessionID},
		}})
	})
	mux.HandleFunc("/api/quiz/submit", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.quizzes++
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	f.Server = httptest.NewServer(mux)
	return f
}

func (f *fakeRemote) quizCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quizzes
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateSchema(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	options := func(prefix string) []domain.Option {
		return []domain.Option{
			{ID: prefix + "a", Text: "Imagine", Archetype: "visionary"},
			{ID: prefix + "b", Text: "Support", Archetype: "nurturer"},
			{ID: prefix + "c", Text: "Explore", Archetype: "adventurer"},
			{ID: prefix + "d", Text: "Protect", Archetype: "guardian"},
		}
	}
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{
			{ID: 1, Prompt: "First impression?", Core: true, Options: options("q1")},
			{ID: 2, Prompt: "Weekend plan?", Core: true, Options: options("q2")},
			{ID: 3, Prompt: "Gift?", Options: options("q3")},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
