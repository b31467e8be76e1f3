package app

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"telegram-quiz-bot/internal/domain"
)

// Button is one inline answer button: its label is the (shuffled) option
// text, its data the q<index>:<option> callback payload.
type Button struct {
	Text string
	Data string
}

// Messenger is the chat transport the quiz core talks to.
type Messenger interface {
	// SendQuestion posts a question with answer buttons and returns the
	// message ID used for subsequent countdown edits.
	SendQuestion(ctx context.Context, chatID int64, text string, buttons []Button) (int, error)
	// EditQuestion re-renders a previously sent question in place.
	EditQuestion(ctx context.Context, chatID int64, messageID int, text string, buttons []Button) error
	// SendText posts a plain announcement.
	SendText(ctx context.Context, chatID int64, text string) error
	// EditText replaces a message's content, dropping its buttons.
	EditText(ctx context.Context, chatID int64, messageID int, text string) error
	// ResolveDisplayName looks up a user's display name.
	ResolveDisplayName(ctx context.Context, userID int64) (string, error)
}

// BankRepository loads question banks (from cache/backing store).
type BankRepository interface {
	GetBank(ctx context.Context, bankID string) (domain.Bank, error)
}

// ResultsArchive persists session liveness and final leaderboards.
// All calls are best-effort from the scheduler's point of view.
type ResultsArchive interface {
	MarkActive(ctx context.Context, chatID int64) error
	ClearActive(ctx context.Context, chatID int64) error
	SaveLeaderboard(ctx context.Context, lb domain.Leaderboard) error
}

// Config carries the per-session timing knobs.
type Config struct {
	BankID       string
	MaxQuestions int
	QuestionTime time.Duration
	TickInterval time.Duration
	RevealPause  time.Duration
	// EarlyAdvance ends a countdown as soon as everyone already on the
	// scoreboard has answered the open round. Off by default.
	EarlyAdvance bool
}

func (c Config) withDefaults() Config {
	if c.MaxQuestions <= 0 {
		c.MaxQuestions = 25
	}
	if c.QuestionTime <= 0 {
		c.QuestionTime = 10 * time.Second
	}
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.RevealPause <= 0 {
		c.RevealPause = 3 * time.Second
	}
	return c
}

// Deps bundles the service's collaborators. Archive and Logger are optional.
type Deps struct {
	Banks     BankRepository
	Messenger Messenger
	Archive   ResultsArchive
	Logger    *zap.Logger
	Config    Config
}

// Service contains the quiz use cases triggered by chat commands.
type Service struct {
	registry  *Registry
	banks     BankRepository
	messenger Messenger
	archive   ResultsArchive
	scheduler *Scheduler
	cfg       Config
	log       *zap.Logger

	// runCtx outlives individual command callbacks; session goroutines
	// run against it rather than against a single update's context.
	runCtx context.Context
}

func NewService(deps Deps) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	cfg := deps.Config.withDefaults()
	return &Service{
		registry:  NewRegistry(),
		banks:     deps.Banks,
		messenger: deps.Messenger,
		archive:   deps.Archive,
		scheduler: newScheduler(deps.Messenger, deps.Archive, cfg, log),
		cfg:       cfg,
		log:       log,
		runCtx:    context.Background(),
	}
}

// StartQuiz begins a quiz in the chat. Returns domain.ErrSessionAlreadyActive
// without side effects when one is already running.
func (s *Service) StartQuiz(ctx context.Context, chatID int64) error {
	order, err := s.shuffledOrder(ctx)
	if err != nil {
		return err
	}
	session, err := s.registry.Start(chatID, order, s.cfg.MaxQuestions)
	if err != nil {
		return err
	}
	s.markActive(ctx, chatID)
	if err := s.messenger.SendText(ctx, chatID, "🎯 The quiz has started!"); err != nil {
		s.log.Warn("start announcement failed", zap.Int64("chat", chatID), zap.Error(err))
	}
	go s.scheduler.Run(s.runCtx, session)
	return nil
}

// StopQuiz halts the chat's quiz. Idempotent; pending timers for the
// stopped session become no-ops at their next wake-up.
func (s *Service) StopQuiz(ctx context.Context, chatID int64) error {
	s.registry.Stop(chatID)
	if s.archive != nil {
		if err := s.archive.ClearActive(ctx, chatID); err != nil {
			s.log.Warn("clear liveness failed", zap.Int64("chat", chatID), zap.Error(err))
		}
	}
	return s.messenger.SendText(ctx, chatID, "🛑 The quiz was stopped. Send /restart to play again.")
}

// RestartQuiz always starts over: scores reset, index back to zero, a fresh
// shuffled question order. Any running session is superseded.
func (s *Service) RestartQuiz(ctx context.Context, chatID int64) error {
	order, err := s.shuffledOrder(ctx)
	if err != nil {
		return err
	}
	session := s.registry.Restart(chatID, order, s.cfg.MaxQuestions)
	s.markActive(ctx, chatID)
	if err := s.messenger.SendText(ctx, chatID, "🔁 The quiz starts over!"); err != nil {
		s.log.Warn("restart announcement failed", zap.Int64("chat", chatID), zap.Error(err))
	}
	go s.scheduler.Run(s.runCtx, session)
	return nil
}

// SubmitAnswer routes one button press into the chat's session.
func (s *Service) SubmitAnswer(ctx context.Context, chatID, userID int64, displayName, payload string) domain.AnswerOutcome {
	questionIndex, optionIndex, err := ParseAnswerPayload(payload)
	if err != nil {
		return domain.AnswerMalformed
	}
	session, ok := s.registry.Get(chatID)
	if !ok {
		return domain.AnswerNoActiveRound
	}
	return session.recordAnswer(userID, displayName, questionIndex, optionIndex)
}

// Subscribe returns a channel of leaderboard updates for a chat.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Service) Subscribe(chatID int64) (<-chan domain.Leaderboard, func(), error) {
	session, ok := s.registry.Get(chatID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.subscribe()
	return ch, cancel, nil
}

func (s *Service) shuffledOrder(ctx context.Context) ([]domain.Question, error) {
	bank, err := s.banks.GetBank(ctx, s.cfg.BankID)
	if err != nil {
		return nil, err
	}
	if len(bank.Questions) == 0 {
		return nil, domain.ErrBankEmpty
	}
	return snapshotShuffled(bank.Questions), nil
}

func (s *Service) markActive(ctx context.Context, chatID int64) {
	if s.archive == nil {
		return
	}
	if err := s.archive.MarkActive(ctx, chatID); err != nil {
		s.log.Warn("mark liveness failed", zap.Int64("chat", chatID), zap.Error(err))
	}
}

// snapshotShuffled returns a new permutation of the bank's questions,
// independent of any other snapshot in flight. The shared slice is never
// mutated.
func snapshotShuffled(questions []domain.Question) []domain.Question {
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
