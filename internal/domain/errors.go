package domain

import "errors"

var (
	// ErrInvalidInput is the parent of every scoring precondition failure.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmptyAnswers is returned when scoring is requested with no answers.
	ErrEmptyAnswers = errors.New("no answers to score")
	// ErrUnknownCategory is returned when an answer names a category the config does not know.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrInvalidScoringConfig is returned when categories or tie-break order are malformed.
	ErrInvalidScoringConfig = errors.New("invalid scoring config")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrOptionNotFound indicates a submitted option ID is invalid.
	ErrOptionNotFound = errors.New("option not found")
	// ErrAwaitingReply is returned when a send is attempted while a reply is outstanding.
	ErrAwaitingReply = errors.New("awaiting reply")
)
