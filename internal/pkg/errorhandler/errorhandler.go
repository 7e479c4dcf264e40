package errorhandler

import (
	"context"
	"net/http"

	"github.com/avalove/avalove-ledger/internal/pkg/logger"
	"github.com/avalove/avalove-ledger/internal/pkg/response"
)

// HandleError logs through the request logger and writes the error envelope.
// Server-side failures keep the cause in the log only.
func HandleError(ctx context.Context, w http.ResponseWriter, status int, code, message string, err error) {
	l := logger.FromContext(ctx)
	event := l.Warn()
	if status >= http.StatusInternalServerError {
		event = l.Error()
	}
	if err != nil {
		event = event.Err(err)
	}

	event.
		Str("error_code", code).
		Int("status_code", status).
		Msg(message)

	response.Error(w, status, code, message)
}

// LogValidationError records rejected writes from the activity services.
func LogValidationError(ctx context.Context, fieldErrors map[string]string) {
	event := logger.FromContext(ctx).Warn()
	for field, msg := range fieldErrors {
		event = event.Str("field."+field, msg)
	}
	event.Int("fields", len(fieldErrors)).Msg("Validation failed")
}
