package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/rhuss/trianswer/pkg/api"
)

// RequestID returns middleware that assigns a unique request ID to each
// submission. If the incoming context already carries a request ID (set by
// the HTTP adapter from the X-Request-ID header), that value is used.
// Otherwise, a new random UUID is generated.
//
// The request ID is stored in the context and can be retrieved with
// RequestIDFromContext.
func RequestID() Middleware {
	return func(next TurnSubmitter) TurnSubmitter {
		return TurnSubmitterFunc(func(ctx context.Context, conversationID string, req *api.SubmitRequest) (*Submission, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, uuid.NewString())
			}
			return next.Submit(ctx, conversationID, req)
		})
	}
}
