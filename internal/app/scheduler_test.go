package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"telegram-quiz-bot/internal/domain"
)

type sentQuestion struct {
	messageID int
	text      string
	buttons   []Button
}

// fakeMessenger records transport traffic on channels so tests can follow
// a session's progression without a real chat backend.
type fakeMessenger struct {
	mu        sync.Mutex
	nextID    int
	editCount int

	questions chan sentQuestion
	texts     chan string
	reveals   chan string

	failSendQuestion bool
	failEditQuestion bool
	failEditText     bool

	names      map[int64]string
	resolveErr error
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		questions: make(chan sentQuestion, 32),
		texts:     make(chan string, 32),
		reveals:   make(chan string, 32),
		names:     make(map[int64]string),
	}
}

func (m *fakeMessenger) SendQuestion(_ context.Context, _ int64, text string, buttons []Button) (int, error) {
	if m.failSendQuestion {
		return 0, errors.New("send question failed")
	}
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()
	m.questions <- sentQuestion{messageID: id, text: text, buttons: buttons}
	return id, nil
}

func (m *fakeMessenger) EditQuestion(context.Context, int64, int, string, []Button) error {
	m.mu.Lock()
	m.editCount++
	m.mu.Unlock()
	if m.failEditQuestion {
		return errors.New("edit question failed")
	}
	return nil
}

func (m *fakeMessenger) edits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editCount
}

func (m *fakeMessenger) SendText(_ context.Context, _ int64, text string) error {
	m.texts <- text
	return nil
}

func (m *fakeMessenger) EditText(_ context.Context, _ int64, _ int, text string) error {
	if m.failEditText {
		return errors.New("edit text failed")
	}
	m.reveals <- text
	return nil
}

func (m *fakeMessenger) ResolveDisplayName(_ context.Context, userID int64) (string, error) {
	if m.resolveErr != nil {
		return "", m.resolveErr
	}
	return m.names[userID], nil
}

type staticBanks map[string]domain.Bank

func (b staticBanks) GetBank(_ context.Context, bankID string) (domain.Bank, error) {
	if bank, ok := b[bankID]; ok {
		return bank, nil
	}
	return domain.Bank{}, domain.ErrBankNotFound
}

func testQuestions() []domain.Question {
	return []domain.Question{
		{Text: "Capital of France?", Options: []string{"Paris", "London", "Rome", "Berlin"}, Correct: "Paris"},
		{Text: "What is 2 + 2?", Options: []string{"3", "4", "5", "6"}, Correct: "4"},
	}
}

func newTestService(fake *fakeMessenger, cfg Config) *Service {
	cfg.BankID = "bank-1"
	return NewService(Deps{
		Banks:     staticBanks{"bank-1": {ID: "bank-1", Questions: testQuestions()}},
		Messenger: fake,
		Config:    cfg,
	})
}

func recvQuestion(t *testing.T, ch <-chan sentQuestion) sentQuestion {
	t.Helper()
	select {
	case q := <-ch:
		return q
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for a question")
		return sentQuestion{}
	}
}

func recvString(t *testing.T, ch <-chan string, what string) string {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		return ""
	}
}

func expectQuiet(t *testing.T, fake *fakeMessenger, d time.Duration) {
	t.Helper()
	select {
	case q := <-fake.questions:
		t.Fatalf("unexpected question: %s", q.text)
	case r := <-fake.reveals:
		t.Fatalf("unexpected reveal: %s", r)
	case <-time.After(d):
	}
}

// bankQuestionFor matches a presented message back to its bank question.
func bankQuestionFor(t *testing.T, sq sentQuestion) domain.Question {
	t.Helper()
	for _, q := range testQuestions() {
		if strings.Contains(sq.text, q.Text) {
			return q
		}
	}
	t.Fatalf("unknown question message: %s", sq.text)
	return domain.Question{}
}

func optionIndexOf(t *testing.T, sq sentQuestion, option string, match bool) int {
	t.Helper()
	for i, button := range sq.buttons {
		if strings.EqualFold(strings.TrimSpace(button.Text), strings.TrimSpace(option)) == match {
			return i
		}
	}
	t.Fatalf("no option with match=%v for %q in %+v", match, option, sq.buttons)
	return -1
}

func questionIndexOf(t *testing.T, sq sentQuestion) int {
	t.Helper()
	if len(sq.buttons) == 0 {
		t.Fatalf("question has no buttons")
	}
	index, _, err := ParseAnswerPayload(sq.buttons[0].Data)
	if err != nil {
		t.Fatalf("parse button payload: %v", err)
	}
	return index
}

// submitAnswer retries through the brief window between a question being
// sent and its round being armed.
func submitAnswer(t *testing.T, svc *Service, chatID, userID int64, name, payload string) domain.AnswerOutcome {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		got := svc.SubmitAnswer(context.Background(), chatID, userID, name, payload)
		if got != domain.AnswerNoActiveRound || time.Now().After(deadline) {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFullSessionFlow(t *testing.T) {
	fake := newFakeMessenger()
	fake.names[1] = "Alice"
	fake.names[2] = "Bob"
	svc := newTestService(fake, Config{
		MaxQuestions: 2,
		QuestionTime: 300 * time.Millisecond,
		TickInterval: 100 * time.Millisecond,
		RevealPause:  50 * time.Millisecond,
	})
	ctx := context.Background()
	const chatID = int64(7)

	if err := svc.StartQuiz(ctx, chatID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if msg := recvString(t, fake.texts, "start announcement"); !strings.Contains(msg, "started") {
		t.Fatalf("unexpected announcement: %s", msg)
	}

	first := recvQuestion(t, fake.questions)
	q := bankQuestionFor(t, first)
	firstIndex := questionIndexOf(t, first)
	if firstIndex != 0 {
		t.Fatalf("expected question index 0, got %d", firstIndex)
	}

	correct := optionIndexOf(t, first, q.Correct, true)
	wrong := optionIndexOf(t, first, q.Correct, false)
	if got := submitAnswer(t, svc, chatID, 1, "Alice", AnswerPayload(firstIndex, correct)); got != domain.AnswerAccepted {
		t.Fatalf("alice submit: %v", got)
	}
	if got := svc.SubmitAnswer(ctx, chatID, 1, "Alice", AnswerPayload(firstIndex, wrong)); got != domain.AnswerAlreadyGiven {
		t.Fatalf("alice duplicate: %v", got)
	}
	if got := svc.SubmitAnswer(ctx, chatID, 2, "Bob", AnswerPayload(firstIndex, wrong)); got != domain.AnswerAccepted {
		t.Fatalf("bob submit: %v", got)
	}

	if reveal := recvString(t, fake.reveals, "first reveal"); !strings.Contains(reveal, strings.TrimSpace(q.Correct)) {
		t.Fatalf("reveal must contain the correct answer, got: %s", reveal)
	}

	second := recvQuestion(t, fake.questions)
	if got := questionIndexOf(t, second); got != 1 {
		t.Fatalf("expected question index 1, got %d", got)
	}

	// Button from the superseded first round.
	if got := submitAnswer(t, svc, chatID, 2, "Bob", AnswerPayload(firstIndex, 0)); got != domain.AnswerStaleRound {
		t.Fatalf("expected StaleRound, got %v", got)
	}

	recvString(t, fake.reveals, "second reveal")
	results := recvString(t, fake.texts, "results")
	if !strings.Contains(results, "Leaderboard") {
		t.Fatalf("expected leaderboard, got: %s", results)
	}
	alice := strings.Index(results, "Alice: 1 point")
	bob := strings.Index(results, "Bob: 0 points")
	if alice < 0 || bob < 0 || alice > bob {
		t.Fatalf("expected Alice ranked above Bob:\n%s", results)
	}

	if got := svc.SubmitAnswer(ctx, chatID, 1, "Alice", AnswerPayload(1, 0)); got != domain.AnswerSessionStopped {
		t.Fatalf("finished session must reject answers, got %v", got)
	}
}

func TestDuplicateStartLeavesRoundUntouched(t *testing.T) {
	fake := newFakeMessenger()
	svc := newTestService(fake, Config{
		QuestionTime: time.Second,
		TickInterval: 200 * time.Millisecond,
		RevealPause:  50 * time.Millisecond,
	})
	ctx := context.Background()

	if err := svc.StartQuiz(ctx, 7); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	recvString(t, fake.texts, "start announcement")
	first := recvQuestion(t, fake.questions)

	if err := svc.StartQuiz(ctx, 7); err != domain.ErrSessionAlreadyActive {
		t.Fatalf("expected ErrSessionAlreadyActive, got %v", err)
	}

	// The original round still accepts answers.
	index := questionIndexOf(t, first)
	if got := submitAnswer(t, svc, 7, 1, "Alice", AnswerPayload(index, 0)); got != domain.AnswerAccepted {
		t.Fatalf("round must survive a duplicate start, got %v", got)
	}
}

func TestStopMidCountdown(t *testing.T) {
	fake := newFakeMessenger()
	svc := newTestService(fake, Config{
		QuestionTime: 400 * time.Millisecond,
		TickInterval: 100 * time.Millisecond,
		RevealPause:  50 * time.Millisecond,
	})
	ctx := context.Background()

	if err := svc.StartQuiz(ctx, 7); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	recvString(t, fake.texts, "start announcement")
	recvQuestion(t, fake.questions)

	if err := svc.StopQuiz(ctx, 7); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	recvString(t, fake.texts, "stop announcement")

	if got := svc.SubmitAnswer(ctx, 7, 1, "Alice", AnswerPayload(0, 0)); got != domain.AnswerSessionStopped {
		t.Fatalf("expected SessionStopped, got %v", got)
	}
	// Pending timers must drain without revealing or presenting anything.
	expectQuiet(t, fake, time.Second)
}

func TestCountdownEditsRemainingTime(t *testing.T) {
	fake := newFakeMessenger()
	svc := newTestService(fake, Config{
		MaxQuestions: 1,
		QuestionTime: 300 * time.Millisecond,
		TickInterval: 100 * time.Millisecond,
		RevealPause:  20 * time.Millisecond,
	})
	ctx := context.Background()

	if err := svc.StartQuiz(ctx, 7); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	recvString(t, fake.texts, "start announcement")
	recvQuestion(t, fake.questions)
	recvString(t, fake.reveals, "reveal")

	if fake.edits() == 0 {
		t.Fatalf("expected at least one countdown edit before the reveal")
	}
}

func TestTickEditFailureNeverAbortsRound(t *testing.T) {
	fake := newFakeMessenger()
	fake.failEditQuestion = true
	svc := newTestService(fake, Config{
		MaxQuestions: 2,
		QuestionTime: 200 * time.Millisecond,
		TickInterval: 50 * time.Millisecond,
		RevealPause:  20 * time.Millisecond,
	})
	ctx := context.Background()

	if err := svc.StartQuiz(ctx, 7); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	recvString(t, fake.texts, "start announcement")
	first := recvQuestion(t, fake.questions)
	q := bankQuestionFor(t, first)

	reveal := recvString(t, fake.reveals, "first reveal")
	if !strings.Contains(reveal, strings.TrimSpace(q.Correct)) {
		t.Fatalf("reveal must contain the correct answer, got: %s", reveal)
	}

	// The round advanced past the failed edits.
	second := recvQuestion(t, fake.questions)
	if got := questionIndexOf(t, second); got != 1 {
		t.Fatalf("expected question index 1, got %d", got)
	}
	if fake.edits() == 0 {
		t.Fatalf("expected tick edits to be attempted")
	}
}

func TestRevealFallsBackToFreshMessage(t *testing.T) {
	fake := newFakeMessenger()
	fake.failEditText = true
	svc := newTestService(fake, Config{
		MaxQuestions: 1,
		QuestionTime: 100 * time.Millisecond,
		TickInterval: 50 * time.Millisecond,
		RevealPause:  20 * time.Millisecond,
	})
	ctx := context.Background()

	if err := svc.StartQuiz(ctx, 7); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	recvString(t, fake.texts, "start announcement")
	sq := recvQuestion(t, fake.questions)
	q := bankQuestionFor(t, sq)

	fallback := recvString(t, fake.texts, "reveal fallback")
	if !strings.Contains(fallback, strings.TrimSpace(q.Correct)) {
		t.Fatalf("fallback reveal must contain the correct answer, got: %s", fallback)
	}
}

func TestPresentFailureStopsSession(t *testing.T) {
	fake := newFakeMessenger()
	fake.failSendQuestion = true
	svc := newTestService(fake, Config{
		QuestionTime: 100 * time.Millisecond,
		TickInterval: 50 * time.Millisecond,
		RevealPause:  20 * time.Millisecond,
	})
	ctx := context.Background()

	if err := svc.StartQuiz(ctx, 7); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	recvString(t, fake.texts, "start announcement")

	deadline := time.Now().Add(2 * time.Second)
	for {
		session, ok := svc.registry.Get(7)
		if ok && !session.Active() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("session must stop when its question cannot be presented")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestEarlyAdvanceEndsCountdown(t *testing.T) {
	fake := newFakeMessenger()
	svc := newTestService(fake, Config{
		MaxQuestions: 1,
		QuestionTime: 5 * time.Second,
		TickInterval: 50 * time.Millisecond,
		RevealPause:  20 * time.Millisecond,
		EarlyAdvance: true,
	})
	ctx := context.Background()

	if err := svc.StartQuiz(ctx, 7); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	recvString(t, fake.texts, "start announcement")
	sq := recvQuestion(t, fake.questions)
	index := questionIndexOf(t, sq)

	if got := submitAnswer(t, svc, 7, 1, "Alice", AnswerPayload(index, 0)); got != domain.AnswerAccepted {
		t.Fatalf("submit: %v", got)
	}

	select {
	case <-fake.reveals:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected early reveal well before the 5s countdown")
	}
}

func TestRestartSupersedesAndResets(t *testing.T) {
	fake := newFakeMessenger()
	svc := newTestService(fake, Config{
		QuestionTime: time.Second,
		TickInterval: 200 * time.Millisecond,
		RevealPause:  50 * time.Millisecond,
	})
	ctx := context.Background()

	if err := svc.StartQuiz(ctx, 7); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	recvString(t, fake.texts, "start announcement")
	first := recvQuestion(t, fake.questions)
	if got := submitAnswer(t, svc, 7, 1, "Alice", AnswerPayload(questionIndexOf(t, first), 0)); got != domain.AnswerAccepted {
		t.Fatalf("submit: %v", got)
	}

	if err := svc.RestartQuiz(ctx, 7); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	recvString(t, fake.texts, "restart announcement")
	recvQuestion(t, fake.questions)

	// Fresh session: Alice's earlier answer is gone from the scoreboard.
	updates, cancel, err := svc.Subscribe(7)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	snapshot := <-updates
	if len(snapshot.Entries) != 0 {
		t.Fatalf("restart must reset scores, got %+v", snapshot.Entries)
	}
}
