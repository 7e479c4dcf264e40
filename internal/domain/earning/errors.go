package earning

import "errors"

var (
	ErrInvalidSource = errors.New("invalid earning source")

	ErrInvalidCompletion = errors.New("invalid completion status")

	// ErrRecordNotFound is returned when MarkPaid references ids that do not exist
	ErrRecordNotFound = errors.New("earning record not found")
)
