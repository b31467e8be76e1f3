package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"telegram-quiz-bot/internal/domain"
)

// Scheduler drives one session's progression: present a question, count it
// down with in-place edits, reveal the correct answer, pause, advance.
// Nothing cancels its timers; instead every wake-up re-validates the session
// status and round token, so a stopped or superseded session simply makes
// the next check fail and the goroutine drain out without side effects.
type Scheduler struct {
	messenger Messenger
	archive   ResultsArchive
	cfg       Config
	log       *zap.Logger
	sleep     func(ctx context.Context, d time.Duration)
}

func newScheduler(messenger Messenger, archive ResultsArchive, cfg Config, log *zap.Logger) *Scheduler {
	return &Scheduler{
		messenger: messenger,
		archive:   archive,
		cfg:       cfg,
		log:       log,
		sleep:     sleepCtx,
	}
}

// Run loops through the session's questions until they are exhausted or the
// session is stopped. One Run goroutine exists per started session.
func (sc *Scheduler) Run(ctx context.Context, session *Session) {
	for {
		question, index, ok := session.nextQuestion()
		if !ok {
			if session.Active() {
				sc.finish(ctx, session)
			}
			return
		}
		if !sc.runRound(ctx, session, question, index) {
			return
		}
	}
}

func (sc *Scheduler) runRound(ctx context.Context, session *Session, question domain.Question, index int) bool {
	options := shuffledOptions(question)
	buttons := answerButtons(index, options)
	text := questionText(index+1, session.totalRounds(), question.Text, sc.cfg.QuestionTime)

	messageID, err := sc.messenger.SendQuestion(ctx, session.ChatID(), text, buttons)
	if err != nil {
		// A question must never vanish silently; without its message there
		// is nothing to answer, so the session ends here.
		sc.log.Error("present question failed", zap.Int64("chat", session.ChatID()), zap.Error(err))
		session.stop()
		return false
	}

	token, ok := session.beginRound(index, options, messageID)
	if !ok {
		return false
	}

	sc.countdown(ctx, session, token, messageID, index, options, question)

	if !session.matchRound(token) {
		return false
	}
	sc.reveal(ctx, session.ChatID(), messageID, question)

	sc.sleep(ctx, sc.cfg.RevealPause)
	return session.finishRound(token)
}

// countdown refreshes the remaining-time line every tick. Edit failures are
// logged and swallowed; a tick never aborts the round.
func (sc *Scheduler) countdown(ctx context.Context, session *Session, token string, messageID, index int, options []string, question domain.Question) {
	buttons := answerButtons(index, options)
	for remaining := sc.cfg.QuestionTime; remaining > 0; remaining -= sc.cfg.TickInterval {
		wait := sc.cfg.TickInterval
		if remaining < wait {
			wait = remaining
		}
		sc.sleep(ctx, wait)

		if !session.matchRound(token) {
			return
		}
		if sc.cfg.EarlyAdvance && session.allAnswered(token) {
			return
		}

		left := remaining - sc.cfg.TickInterval
		if left <= 0 {
			return
		}
		text := questionText(index+1, session.totalRounds(), question.Text, left)
		if err := sc.messenger.EditQuestion(ctx, session.ChatID(), messageID, text, buttons); err != nil {
			sc.log.Warn("countdown edit failed", zap.Int64("chat", session.ChatID()), zap.Error(err))
		}
	}
}

// reveal replaces the question message with the correct answer. If editing
// fails, a fresh message is sent so the chat always sees the reveal.
func (sc *Scheduler) reveal(ctx context.Context, chatID int64, messageID int, question domain.Question) {
	text := fmt.Sprintf("⏰ *Time is up!*\n\n✅ Correct answer:\n\n*%s*", question.Correct)
	if err := sc.messenger.EditText(ctx, chatID, messageID, text); err != nil {
		sc.log.Warn("reveal edit failed, sending fresh message", zap.Int64("chat", chatID), zap.Error(err))
		if err := sc.messenger.SendText(ctx, chatID, text); err != nil {
			sc.log.Error("reveal send failed", zap.Int64("chat", chatID), zap.Error(err))
		}
	}
}

// finish closes the session, announces the ranking, and archives it.
func (sc *Scheduler) finish(ctx context.Context, session *Session) {
	lb := session.finish()
	text := sc.renderResults(ctx, lb)
	if err := sc.messenger.SendText(ctx, session.ChatID(), text); err != nil {
		sc.log.Error("results send failed", zap.Int64("chat", session.ChatID()), zap.Error(err))
	}
	if sc.archive == nil {
		return
	}
	if err := sc.archive.SaveLeaderboard(ctx, lb); err != nil {
		sc.log.Warn("archive leaderboard failed", zap.Int64("chat", session.ChatID()), zap.Error(err))
	}
	if err := sc.archive.ClearActive(ctx, session.ChatID()); err != nil {
		sc.log.Warn("clear liveness failed", zap.Int64("chat", session.ChatID()), zap.Error(err))
	}
}

func questionText(number, total int, text string, remaining time.Duration) string {
	return fmt.Sprintf("❓ Question %d/%d\n\n%s\n\n⏳ %d seconds left.", number, total, text, int(remaining.Seconds()))
}

func answerButtons(questionIndex int, options []string) []Button {
	buttons := make([]Button, 0, len(options))
	for i, option := range options {
		buttons = append(buttons, Button{Text: option, Data: AnswerPayload(questionIndex, i)})
	}
	return buttons
}

// shuffledOptions returns a per-round display order for the question's
// options. The stored correct answer is matched by value, so the shuffle
// never affects scoring.
func shuffledOptions(question domain.Question) []string {
	options := make([]string, len(question.Options))
	copy(options, question.Options)
	rand.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
	})
	return options
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
