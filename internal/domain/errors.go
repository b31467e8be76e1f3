package domain

import "errors"

var (
	// ErrSessionAlreadyActive is returned when /start hits a chat with a running quiz.
	ErrSessionAlreadyActive = errors.New("quiz session already active")
	// ErrSessionNotFound is returned when a chat has no quiz session.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrBankNotFound indicates the question bank could not be located.
	ErrBankNotFound = errors.New("question bank not found")
	// ErrBankEmpty indicates the question bank contains no questions.
	ErrBankEmpty = errors.New("question bank has no questions")
)
