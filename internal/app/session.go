package app

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"telegram-quiz-bot/internal/domain"
)

// Status tracks whether a chat session still accepts questions and answers.
type Status int

const (
	StatusActive Status = iota
	StatusStopped
)

// round describes the question currently open in a chat. The token is a
// fresh identity per round: timer callbacks compare it instead of being
// cancelled, so a stale wake-up from a superseded round is a silent no-op.
type round struct {
	token     string
	index     int
	messageID int
	options   []string
	answers   map[int64]domain.AnswerRecord
}

type participant struct {
	displayName string
	score       int
	lastScored  time.Time
}

// Session holds all mutable state for one chat's quiz. Every mutation goes
// through the session mutex; no lock is held across transport I/O.
type Session struct {
	chatID    int64
	questions []domain.Question
	limit     int

	mu           sync.Mutex
	status       Status
	index        int
	round        *round
	participants map[int64]*participant
	subscribers  map[chan domain.Leaderboard]struct{}
	now          func() time.Time
}

func newSession(chatID int64, questions []domain.Question, maxQuestions int) *Session {
	return newSessionWithClock(chatID, questions, maxQuestions, time.Now)
}

// newSessionWithClock allows deterministic timestamps in tests.
func newSessionWithClock(chatID int64, questions []domain.Question, maxQuestions int, now func() time.Time) *Session {
	limit := len(questions)
	if maxQuestions > 0 && maxQuestions < limit {
		limit = maxQuestions
	}
	return &Session{
		chatID:       chatID,
		questions:    questions,
		limit:        limit,
		participants: make(map[int64]*participant),
		subscribers:  make(map[chan domain.Leaderboard]struct{}),
		now:          now,
	}
}

// ChatID returns the chat this session belongs to.
func (s *Session) ChatID() int64 { return s.chatID }

// Active reports whether the session still accepts questions and answers.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusActive
}

// totalRounds is the number of questions this session will ask.
func (s *Session) totalRounds() int { return s.limit }

// nextQuestion returns the question at the current index, or ok=false when
// the session is stopped or all questions have been asked.
func (s *Session) nextQuestion() (domain.Question, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive || s.index >= s.limit {
		return domain.Question{}, 0, false
	}
	return s.questions[s.index], s.index, true
}

// beginRound opens a round for the given question and returns its token.
// Fails when the session was stopped between presenting and arming.
func (s *Session) beginRound(index int, options []string, messageID int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive {
		return "", false
	}
	s.round = &round{
		token:     uuid.NewString(),
		index:     index,
		messageID: messageID,
		options:   options,
		answers:   make(map[int64]domain.AnswerRecord),
	}
	return s.round.token, true
}

// matchRound reports whether the given token still identifies the open round.
func (s *Session) matchRound(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusActive && s.round != nil && s.round.token == token
}

// finishRound clears the round and advances the index. Returns false when
// the round was superseded or the session stopped in the meantime.
func (s *Session) finishRound(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive || s.round == nil || s.round.token != token {
		return false
	}
	s.round = nil
	s.index++
	return true
}

// allAnswered reports whether every participant already on the scoreboard
// has answered the current round. Used by the early-advance policy.
func (s *Session) allAnswered(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusActive || s.round == nil || s.round.token != token {
		return false
	}
	if len(s.participants) == 0 {
		return false
	}
	for userID := range s.participants {
		if _, ok := s.round.answers[userID]; !ok {
			return false
		}
	}
	return true
}

// recordAnswer validates and records one answer, at most once per user per
// round. Correct answers score immediately and are never reversed.
func (s *Session) recordAnswer(userID int64, displayName string, questionIndex, optionIndex int) domain.AnswerOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return domain.AnswerSessionStopped
	}
	r := s.round
	if r == nil {
		return domain.AnswerNoActiveRound
	}
	if questionIndex != r.index {
		return domain.AnswerStaleRound
	}
	if _, ok := r.answers[userID]; ok {
		return domain.AnswerAlreadyGiven
	}
	if optionIndex < 0 || optionIndex >= len(r.options) {
		return domain.AnswerOutOfRange
	}

	chosen := r.options[optionIndex]
	correct := s.questions[r.index].IsCorrect(chosen)
	now := s.now()
	r.answers[userID] = domain.AnswerRecord{
		DisplayName: displayName,
		Option:      chosen,
		Correct:     correct,
		At:          now,
	}

	p, ok := s.participants[userID]
	if !ok {
		p = &participant{}
		s.participants[userID] = p
	}
	p.displayName = displayName
	if correct {
		p.score++
		p.lastScored = now
	}

	s.broadcastLocked(false)
	return domain.AnswerAccepted
}

// stop marks the session stopped and drops the open round. Idempotent.
// In-flight timer callbacks observe the status at their next wake-up.
func (s *Session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusStopped
	s.round = nil
}

// finish stops the session and returns the final ranked leaderboard.
func (s *Session) finish() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = StatusStopped
	s.round = nil
	return s.broadcastLocked(true)
}

// subscribe registers a leaderboard listener. The caller must invoke the
// returned cancel function to avoid leaks.
func (s *Session) subscribe() (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked(false)
	s.mu.Unlock()

	// Sent outside the mutex: the channel is buffered and freshly
	// registered, so at worst a concurrent broadcast lands first and this
	// snapshot arrives momentarily stale, superseded by the next update.
	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked(final bool) domain.Leaderboard {
	lb := s.snapshotLocked(final)
	for ch := range s.subscribers {
		select {
		case ch <- lb:
		default:
			// Drop the oldest pending update so slow readers never block scoring.
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
	return lb
}

func (s *Session) snapshotLocked(final bool) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(s.participants))
	for userID, p := range s.participants {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      userID,
			DisplayName: p.displayName,
			Score:       p.score,
		})
	}
	sortEntries(entries, s.participants)
	return domain.Leaderboard{
		ChatID:    s.chatID,
		Entries:   entries,
		Final:     final,
		UpdatedAt: s.now(),
	}
}
