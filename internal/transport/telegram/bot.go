// Package telegram wires the quiz core to the Telegram Bot API via telebot.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	tele "gopkg.in/telebot.v3"

	"telegram-quiz-bot/internal/domain"
)

// Quiz is the surface the bot needs from the application core.
type Quiz interface {
	StartQuiz(ctx context.Context, chatID int64) error
	StopQuiz(ctx context.Context, chatID int64) error
	RestartQuiz(ctx context.Context, chatID int64) error
	SubmitAnswer(ctx context.Context, chatID, userID int64, displayName, payload string) domain.AnswerOutcome
}

// Bot runs the long-polling loop and translates commands and button presses
// into quiz use cases. It also implements app.Messenger.
type Bot struct {
	bot *tele.Bot
	log *zap.Logger
}

func New(token string, log *zap.Logger) (*Bot, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, err
	}
	return &Bot{bot: b, log: log}, nil
}

// Attach registers the command and callback handlers.
func (b *Bot) Attach(quiz Quiz) {
	b.bot.Handle("/start", func(c tele.Context) error {
		err := quiz.StartQuiz(context.Background(), c.Chat().ID)
		if errors.Is(err, domain.ErrSessionAlreadyActive) {
			return c.Send("⚠️ A quiz is already running. Send /stop to end it first.")
		}
		if err != nil {
			b.log.Error("start quiz failed", zap.Int64("chat", c.Chat().ID), zap.Error(err))
			return c.Send("Could not start the quiz, please try again later.")
		}
		return nil
	})

	b.bot.Handle("/stop", func(c tele.Context) error {
		return quiz.StopQuiz(context.Background(), c.Chat().ID)
	})

	b.bot.Handle("/restart", func(c tele.Context) error {
		err := quiz.RestartQuiz(context.Background(), c.Chat().ID)
		if err != nil {
			b.log.Error("restart quiz failed", zap.Int64("chat", c.Chat().ID), zap.Error(err))
			return c.Send("Could not restart the quiz, please try again later.")
		}
		return nil
	})

	b.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		callback := c.Callback()
		if callback == nil || callback.Message == nil {
			return nil
		}
		payload := strings.TrimSpace(strings.TrimPrefix(callback.Data, "\f"))
		name := displayName(c.Sender())
		outcome := quiz.SubmitAnswer(context.Background(), callback.Message.Chat.ID, c.Sender().ID, name, payload)
		return c.Respond(ackFor(outcome))
	})
}

// Start begins long polling and blocks until Stop is called.
func (b *Bot) Start() { b.bot.Start() }

// Stop ends the polling loop.
func (b *Bot) Stop() { b.bot.Stop() }

// ackFor maps an answer outcome to the short callback acknowledgment the
// user sees. Acks are informational only; scoring already happened.
func ackFor(outcome domain.AnswerOutcome) *tele.CallbackResponse {
	switch outcome {
	case domain.AnswerAccepted:
		return &tele.CallbackResponse{Text: "✅ Answer received!"}
	case domain.AnswerAlreadyGiven:
		return &tele.CallbackResponse{Text: "You already answered this question!", ShowAlert: true}
	case domain.AnswerStaleRound, domain.AnswerNoActiveRound:
		return &tele.CallbackResponse{Text: "⏰ This question is already over!", ShowAlert: true}
	case domain.AnswerSessionStopped:
		return &tele.CallbackResponse{Text: "🛑 The quiz was stopped.", ShowAlert: true}
	case domain.AnswerOutOfRange:
		return &tele.CallbackResponse{Text: "That option does not exist.", ShowAlert: true}
	default:
		// Malformed payloads get no text, just the spinner cleared.
		return &tele.CallbackResponse{}
	}
}

func displayName(user *tele.User) string {
	if user == nil {
		return "Player"
	}
	if name := strings.TrimSpace(user.FirstName); name != "" {
		return name
	}
	if user.Username != "" {
		return user.Username
	}
	return "Player"
}
