package transport

import (
	"context"
	"fmt"

	"github.com/rhuss/trianswer/pkg/api"
)

// Recovery returns middleware that catches panics in the handler and
// converts them to server error responses. The server continues to
// accept new requests after a panic is recovered.
func Recovery() Middleware {
	return func(next TurnSubmitter) TurnSubmitter {
		return TurnSubmitterFunc(func(ctx context.Context, conversationID string, req *api.SubmitRequest) (sub *Submission, retErr error) {
			defer func() {
				if r := recover(); r != nil {
					sub = nil
					retErr = api.NewServerError(fmt.Sprintf("internal server error: %v", r))
				}
			}()
			return next.Submit(ctx, conversationID, req)
		})
	}
}
