package domain

import (
	"strings"
	"time"
)

// OptionsPerQuestion is the number of choices shown for every question.
const OptionsPerQuestion = 4

// Question is a single multiple-choice question. Immutable after load.
// The correct answer is matched by text value, not by option position.
type Question struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
	Correct string   `json:"correct"`
}

// IsCorrect compares a chosen option text against the correct answer,
// ignoring case and surrounding whitespace.
func (q Question) IsCorrect(chosen string) bool {
	return strings.EqualFold(strings.TrimSpace(chosen), strings.TrimSpace(q.Correct))
}

// Bank is a named, ordered collection of questions shared read-only
// across sessions. Each session shuffles its own snapshot.
type Bank struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// AnswerOutcome classifies the result of a single answer submission.
type AnswerOutcome int

const (
	// AnswerAccepted means the answer was recorded (and scored if correct).
	AnswerAccepted AnswerOutcome = iota
	// AnswerNoActiveRound means no question is currently open in the chat.
	AnswerNoActiveRound
	// AnswerStaleRound means the button belongs to an earlier question.
	AnswerStaleRound
	// AnswerAlreadyGiven means the user already answered this question.
	AnswerAlreadyGiven
	// AnswerOutOfRange means the option index does not exist for this round.
	AnswerOutOfRange
	// AnswerSessionStopped means the quiz was stopped for this chat.
	AnswerSessionStopped
	// AnswerMalformed means the callback payload could not be parsed.
	AnswerMalformed
)

// AnswerRecord captures one user's first answer to a round.
type AnswerRecord struct {
	DisplayName string
	Option      string
	Correct     bool
	At          time.Time
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	UserID      int64  `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for one chat session.
type Leaderboard struct {
	ChatID    int64              `json:"chatId"`
	Entries   []LeaderboardEntry `json:"entries"`
	Final     bool               `json:"final"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
